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


package inspect

import "errors"

// UnsupportedFormatError indicates that a file is not in one of the
// supported font formats.
type UnsupportedFormatError struct {
	FileName string
	Err      error
}

func (err *UnsupportedFormatError) Error() string {
	msg := "unsupported font format"
	if err.FileName != "" {
		msg = err.FileName + ": " + msg
	}
	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}
	return msg
}

func (err *UnsupportedFormatError) Unwrap() error {
	return err.Err
}

// CorruptFontError indicates a font file which cannot be read.
type CorruptFontError struct {
	Container Container
	Err       error
}

func (err *CorruptFontError) Error() string {
	if err.Container == "" {
		return "corrupt font: " + err.Err.Error()
	}
	return "corrupt " + string(err.Container) + " font: " + err.Err.Error()
}

func (err *CorruptFontError) Unwrap() error {
	return err.Err
}

var (
	errSignature = errors.New("unrecognized file signature")
	errTruncated = errors.New("truncated font collection")
)
