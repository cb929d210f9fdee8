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


package woff

import (
	"errors"
	"fmt"
)

// CompressionError is returned when a font cannot be re-encoded.
type CompressionError struct {
	Format string
	Err    error
}

func (err *CompressionError) Error() string {
	return fmt.Sprintf("%s encoding failed: %v", err.Format, err.Err)
}

func (err *CompressionError) Unwrap() error {
	return err.Err
}

// DecodeError is returned by [Decode] when a WOFF or WOFF2 file is
// malformed.
type DecodeError struct {
	Format string
	Err    error
}

func (err *DecodeError) Error() string {
	return fmt.Sprintf("malformed %s file: %v", err.Format, err.Err)
}

func (err *DecodeError) Unwrap() error {
	return err.Err
}

// ErrUnsupported indicates a well-formed file which uses features the
// decoder does not implement, like transformed glyf tables.
var ErrUnsupported = errors.New("unsupported WOFF feature")

var (
	errBase128     = errors.New("invalid UIntBase128 value")
	errNotWOFF     = errors.New("not a WOFF file")
	errTableBounds = errors.New("table data out of bounds")
	errSizeLimit   = errors.New("decompressed size exceeds limit")
)
