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

// Package repertoire implements sets of Unicode code points which a font
// subset must retain.
package repertoire

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Repertoire is a deduplicated, sorted set of Unicode code points.
//
// The zero value is an empty repertoire.
type Repertoire struct {
	runes []rune
}

// New returns the repertoire containing the given code points.  Duplicates
// and invalid code points are dropped.
func New(rr ...rune) *Repertoire {
	res := &Repertoire{}
	res.Add(rr...)
	return res
}

// FromString returns the repertoire of all characters in s.
//
// The string is normalized to NFC first, so that precomposed characters
// are retained in their precomposed form.  Both the original and the
// normalized code points are included.
func FromString(s string) *Repertoire {
	rr := []rune(s)
	rr = append(rr, []rune(norm.NFC.String(s))...)
	return New(rr...)
}

// Add adds code points to the repertoire.
func (rep *Repertoire) Add(rr ...rune) {
	merged := slices.Clone(rep.runes)
	n := len(merged)
	for _, r := range rr {
		if valid(r) {
			merged = append(merged, r)
		}
	}
	if len(merged) == n {
		return
	}
	slices.Sort(merged)
	rep.runes = slices.Compact(merged)
}

// AddRange adds all code points from lo to hi (inclusive).
func (rep *Repertoire) AddRange(lo, hi rune) {
	if lo > hi {
		lo, hi = hi, lo
	}
	merged := make([]rune, 0, len(rep.runes)+int(hi-lo)+1)
	for r := lo; r <= hi; r++ {
		if valid(r) {
			merged = append(merged, r)
		}
	}
	merged = append(merged, rep.runes...)
	slices.Sort(merged)
	rep.runes = slices.Compact(merged)
}

// Merge adds all code points of other to rep.
func (rep *Repertoire) Merge(other *Repertoire) {
	if other == nil {
		return
	}
	merged := append(slices.Clone(rep.runes), other.runes...)
	slices.Sort(merged)
	rep.runes = slices.Compact(merged)
}

// Contains reports whether r is in the repertoire.
func (rep *Repertoire) Contains(r rune) bool {
	if rep == nil {
		return false
	}
	_, found := slices.BinarySearch(rep.runes, r)
	return found
}

// Len returns the number of code points in the repertoire.
func (rep *Repertoire) Len() int {
	if rep == nil {
		return 0
	}
	return len(rep.runes)
}

// Runes returns the code points in increasing order.
// The caller must not modify the returned slice.
func (rep *Repertoire) Runes() []rune {
	if rep == nil {
		return nil
	}
	return rep.runes
}

// String returns the repertoire as a list of code points and ranges
// in the syntax accepted by [Parse], for example "U+0041-005A,U+00E9".
func (rep *Repertoire) String() string {
	if rep.Len() == 0 {
		return ""
	}
	var parts []string
	rr := rep.runes
	for i := 0; i < len(rr); {
		j := i
		for j+1 < len(rr) && rr[j+1] == rr[j]+1 {
			j++
		}
		if j == i {
			parts = append(parts, fmt.Sprintf("U+%04X", rr[i]))
		} else {
			parts = append(parts, fmt.Sprintf("U+%04X-%04X", rr[i], rr[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// Parse parses a comma separated list of code points and code point ranges.
// Each element is either "U+XXXX", "U+XXXX-YYYY", or the name of a preset
// prefixed with '@' (for example "@latin").
func Parse(list string) (*Repertoire, error) {
	res := &Repertoire{}
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		switch {
		case field == "":
			continue
		case strings.HasPrefix(field, "@"):
			p, err := Preset(field[1:])
			if err != nil {
				return nil, err
			}
			res.Merge(p)
		default:
			lo, hi, err := parseRange(field)
			if err != nil {
				return nil, err
			}
			res.AddRange(lo, hi)
		}
	}
	return res, nil
}

func parseRange(field string) (rune, rune, error) {
	upper := strings.ToUpper(field)
	if !strings.HasPrefix(upper, "U+") {
		return 0, 0, fmt.Errorf("invalid code point %q", field)
	}
	a, b, isRange := strings.Cut(upper[2:], "-")
	lo, err := parseHex(a)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid code point %q", field)
	}
	hi := lo
	if isRange {
		b = strings.TrimPrefix(b, "U+")
		hi, err = parseHex(b)
		if err != nil || hi < lo {
			return 0, 0, fmt.Errorf("invalid code point range %q", field)
		}
	}
	return lo, hi, nil
}

func parseHex(s string) (rune, error) {
	x, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	if x > utf8.MaxRune {
		return 0, strconv.ErrRange
	}
	return rune(x), nil
}

// valid excludes surrogates and values outside the Unicode range, which
// can never be mapped by a cmap table.
func valid(r rune) bool {
	return r >= 0 && r <= utf8.MaxRune && !(r >= 0xD800 && r <= 0xDFFF)
}
