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


package engine

import (
	"errors"
	"fmt"
)

// SubsetError is returned when a subset operation fails.
type SubsetError struct {
	// Op is the step which failed.
	Op string

	// Err is the underlying error.
	Err error

	// Transient is true if the failure is caused by the codec runtime
	// rather than by the font or the request.
	Transient bool
}

func (err *SubsetError) Error() string {
	return "subset failed: " + err.Op + ": " + err.Err.Error()
}

func (err *SubsetError) Unwrap() error {
	return err.Err
}

// PinError describes an axis pin which could not be applied.
type PinError struct {
	Tag    string
	Value  float64
	Reason string
}

func (err *PinError) Error() string {
	return fmt.Sprintf("cannot pin axis %q to %g: %s", err.Tag, err.Value, err.Reason)
}

var (
	errEmptyInput    = errors.New("empty font data")
	errInputTooLarge = errors.New("font data too large")
	errEmptyResult   = errors.New("codec returned an empty font")
)
