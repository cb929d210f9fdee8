// seehuhn.de/go/fontsubset - reduce fonts to the glyphs needed for a text
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seehuhn.de/go/fontsubset/engine"
	"seehuhn.de/go/fontsubset/inspect"
	"seehuhn.de/go/fontsubset/woff"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err         error
		kind        Kind
		recoverable bool
	}{
		{&inspect.UnsupportedFormatError{FileName: "a.txt"}, UnsupportedFormat, false},
		{&inspect.CorruptFontError{Err: errors.New("x")}, CorruptFont, false},
		{&woff.DecodeError{Format: "woff2", Err: errors.New("x")}, CorruptFont, false},
		{&woff.CompressionError{Format: "woff2", Err: errors.New("x")}, CompressionFailed, false},
		{&engine.SubsetError{Op: "subset", Err: errors.New("x"), Transient: true}, SubsetFailed, true},
		{&engine.SubsetError{Op: "subset", Err: errors.New("x")}, SubsetFailed, false},
		{&ConnError{Op: "send", Err: errors.New("x")}, ChannelError, true},
		{fmt.Errorf("stage: %w", context.Canceled), Cancelled, true},
		{errors.New("something else"), SubsetFailed, false},
	}
	for _, c := range cases {
		got := Classify(c.err)
		assert.Equal(t, c.kind, got.Kind, "%v", c.err)
		assert.Equal(t, c.recoverable, got.Recoverable, "%v", c.err)
		assert.Equal(t, c.err.Error(), got.Message)
	}

	assert.Nil(t, Classify(nil))

	orig := &Error{Kind: CorruptFont, Message: "bad"}
	assert.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig)))
}

func TestKindJSON(t *testing.T) {
	in := &Error{Kind: CompressionFailed, Message: "oops"}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"compression-failed","message":"oops","recoverable":false}`, string(data))

	out := &Error{}
	require.NoError(t, json.Unmarshal(data, out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"nope"}`), out))
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("task x: %w", &Error{Kind: Cancelled, Message: "stopped"})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.NotErrorIs(t, err, ErrChannel)
}
