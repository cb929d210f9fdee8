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

package repertoire

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// The ranges follow the unicode-range subsets commonly used for web fonts.
var presets = map[string]string{
	"ascii":  "U+0020-007E",
	"digits": "U+0030-0039",
	"punctuation": "U+0020-002F,U+003A-0040,U+005B-0060,U+007B-007E," +
		"U+2010-2027,U+2030-205E",
	"latin": "U+0020-007E,U+00A0-00FF,U+0131,U+0152-0153,U+02BB-02BC," +
		"U+02C6,U+02DA,U+02DC,U+2000-206F,U+2074,U+20AC,U+2122,U+2191," +
		"U+2193,U+2212,U+2215,U+FEFF,U+FFFD",
	"latin-ext": "U+0100-024F,U+0259,U+1E00-1EFF,U+2020,U+20A0-20AB," +
		"U+20AD-20CF,U+2113,U+2C60-2C7F,U+A720-A7FF",
	"greek":    "U+0370-03FF",
	"cyrillic": "U+0301,U+0400-045F,U+0490-0491,U+04B0-04B1,U+2116",
	"vietnamese": "U+0102-0103,U+0110-0111,U+0128-0129,U+0168-0169," +
		"U+01A0-01A1,U+01AF-01B0,U+1EA0-1EF9,U+20AB",
}

// Preset returns the repertoire with the given name.
// Use [Presets] to get the list of available names.
func Preset(name string) (*Repertoire, error) {
	ranges, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown character preset %q", name)
	}
	res := &Repertoire{}
	for _, field := range strings.Split(ranges, ",") {
		lo, hi, err := parseRange(field)
		if err != nil {
			panic("invalid preset " + name + ": " + err.Error())
		}
		res.AddRange(lo, hi)
	}
	return res, nil
}

// Presets returns the names of all presets in alphabetical order.
func Presets() []string {
	return slices.Sorted(maps.Keys(presets))
}
