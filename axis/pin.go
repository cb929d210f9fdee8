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

package axis

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Pinning maps axis tags to the value the axis is fixed at.
//
// Pinning an axis removes the corresponding variation from the font.
// Once all axes are pinned, the result is a static font.
type Pinning map[string]float64

// ParsePinning parses a comma separated list of "tag=value" pairs,
// for example "wght=700,wdth=87.5".
func ParsePinning(s string) (Pinning, error) {
	res := Pinning{}
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		tag, val, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("axis pin %q: missing '='", field)
		}
		tag, err := NormalizeTag(strings.TrimSpace(tag))
		if err != nil {
			return nil, err
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("axis pin %q: %w", field, err)
		}
		if _, dup := res[tag]; dup {
			return nil, fmt.Errorf("axis %q pinned twice", strings.TrimSpace(tag))
		}
		res[tag] = x
	}
	if len(res) == 0 {
		return nil, errEmptyPinning
	}
	return res, nil
}

// Tags returns the pinned tags in sorted order.
func (p Pinning) Tags() []string {
	tags := make([]string, 0, len(p))
	for tag := range p {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Normalize returns a copy of p where all tags are padded to four
// characters.
func (p Pinning) Normalize() (Pinning, error) {
	if p == nil {
		return nil, nil
	}
	res := make(Pinning, len(p))
	for tag, val := range p {
		norm, err := NormalizeTag(tag)
		if err != nil {
			return nil, err
		}
		if _, dup := res[norm]; dup {
			return nil, fmt.Errorf("axis %q pinned twice", tag)
		}
		res[norm] = val
	}
	return res, nil
}

func (p Pinning) String() string {
	var parts []string
	for _, tag := range p.Tags() {
		parts = append(parts, strings.TrimRight(tag, " ")+"="+strconv.FormatFloat(p[tag], 'g', -1, 64))
	}
	return strings.Join(parts, ",")
}

var errEmptyPinning = errors.New("empty axis pinning")
