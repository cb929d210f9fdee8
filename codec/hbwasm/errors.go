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


package hbwasm

import (
	"errors"
	"strings"
)

// ErrNoPath is returned by [Load] if no module location is known.
var ErrNoPath = errors.New("hbwasm: no path to hb-subset.wasm given (set " + EnvPath + ")")

var (
	errNotExported = errors.New("function not exported")
	errOutOfRange  = errors.New("address out of range")
)

// LoadError indicates that the WebAssembly module could not be
// instantiated.
type LoadError struct {
	Err error
}

func (err *LoadError) Error() string {
	return "hbwasm: cannot load module: " + err.Err.Error()
}

func (err *LoadError) Unwrap() error {
	return err.Err
}

// MissingExportsError lists required functions not exported by the module.
type MissingExportsError struct {
	Names []string
}

func (err *MissingExportsError) Error() string {
	return "missing exports: " + strings.Join(err.Names, ", ")
}
