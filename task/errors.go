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
	"errors"
	"fmt"

	"seehuhn.de/go/fontsubset/engine"
	"seehuhn.de/go/fontsubset/inspect"
	"seehuhn.de/go/fontsubset/woff"
)

// Kind classifies the errors reported to a client.
type Kind int

// These are the possible error kinds.
const (
	SubsetFailed Kind = iota
	UnsupportedFormat
	CorruptFont
	CompressionFailed
	ChannelError
	Cancelled
)

var kindNames = [...]string{
	SubsetFailed:      "subset-failed",
	UnsupportedFormat: "unsupported-format",
	CorruptFont:       "corrupt-font",
	CompressionFailed: "compression-failed",
	ChannelError:      "channel-error",
	Cancelled:         "cancelled",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements the [encoding.TextMarshaler] interface.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("invalid error kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements the [encoding.TextUnmarshaler] interface.
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}

// Error is the error information sent to a client when a task fails.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	// Recoverable is true if retrying the same request may succeed.
	Recoverable bool `json:"recoverable"`
}

func (err *Error) Error() string {
	return err.Kind.String() + ": " + err.Message
}

// Is allows errors.Is to match an *Error by kind.  The target must be an
// *Error with an empty message.
func (err *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == err.Kind
}

// ErrCancelled matches every error of kind [Cancelled] under errors.Is.
var ErrCancelled error = &Error{Kind: Cancelled}

// ErrChannel matches every error of kind [ChannelError] under errors.Is.
var ErrChannel error = &Error{Kind: ChannelError}

// ConnError is returned when a connection between client and runner fails.
type ConnError struct {
	Op  string
	Err error
}

func (err *ConnError) Error() string {
	return "connection " + err.Op + " failed: " + err.Err.Error()
}

func (err *ConnError) Unwrap() error {
	return err.Err
}

// Classify converts an error returned by one of the pipeline components
// into the form sent to clients.  Classify returns nil if err is nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var (
		taskErr     *Error
		connErr     *ConnError
		formatErr   *inspect.UnsupportedFormatError
		corruptErr  *inspect.CorruptFontError
		decodeErr   *woff.DecodeError
		compressErr *woff.CompressionError
		subsetErr   *engine.SubsetError
	)
	res := &Error{Message: err.Error()}
	switch {
	case errors.As(err, &taskErr):
		return taskErr
	case errors.Is(err, context.Canceled):
		res.Kind = Cancelled
		res.Recoverable = true
	case errors.As(err, &connErr):
		res.Kind = ChannelError
		res.Recoverable = true
	case errors.As(err, &formatErr):
		res.Kind = UnsupportedFormat
	case errors.As(err, &corruptErr), errors.As(err, &decodeErr):
		res.Kind = CorruptFont
	case errors.As(err, &compressErr):
		res.Kind = CompressionFailed
	case errors.As(err, &subsetErr):
		res.Kind = SubsetFailed
		res.Recoverable = subsetErr.Transient
	default:
		res.Kind = SubsetFailed
	}
	return res
}
