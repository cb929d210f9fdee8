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

// Package axis describes the design axes of variable fonts.
//
// Font parsers report axes in one of two shapes: as a list in file order
// ([List], for example decoded from the "fvar" table) or keyed by axis tag
// ([Table], for example as reported by the subsetting codec).  [Canonical]
// turns either shape into a single []VariableAxis, which is the only
// form used by the rest of the module.
package axis

import (
	"fmt"
	"slices"
	"strings"
)

// VariableAxis is one design axis of a variable font.
type VariableAxis struct {
	Tag     string  `json:"tag"`
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// Contains reports whether v lies within the range of the axis.
func (a VariableAxis) Contains(v float64) bool {
	return v >= a.Min && v <= a.Max
}

func (a VariableAxis) String() string {
	return fmt.Sprintf("%s[%g-%g, default %g]", a.Tag, a.Min, a.Max, a.Default)
}

// Range is the value range of an axis in a [Table].
type Range struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
}

// Set is a collection of axes in one of the shapes reported by parsers.
// The implementations are [List] and [Table].
type Set interface {
	isAxisSet()
}

// List is an axis set in file order.
type List []VariableAxis

// Table is an axis set keyed by axis tag.
type Table map[string]Range

func (List) isAxisSet()  {}
func (Table) isAxisSet() {}

// Canonical converts an axis set into the canonical list of axes.
//
// For a [List], file order is kept and later duplicates of a tag are
// dropped.  A [Table] is sorted by tag.  Axes with an invalid tag are
// dropped, swapped bounds are put in order, and a missing name is replaced
// by the tag.  The result is nil if no axes remain, which means that the
// font is not variable.
func Canonical(s Set) []VariableAxis {
	var res []VariableAxis
	seen := make(map[string]bool)
	add := func(a VariableAxis) {
		tag, err := NormalizeTag(a.Tag)
		if err != nil || seen[tag] {
			return
		}
		seen[tag] = true
		a.Tag = tag
		if a.Min > a.Max {
			a.Min, a.Max = a.Max, a.Min
		}
		a.Default = min(max(a.Default, a.Min), a.Max)
		if a.Name == "" {
			a.Name = strings.TrimRight(tag, " ")
		}
		res = append(res, a)
	}

	switch s := s.(type) {
	case List:
		for _, a := range s {
			add(a)
		}
	case Table:
		tags := make([]string, 0, len(s))
		for tag := range s {
			tags = append(tags, tag)
		}
		slices.Sort(tags)
		for _, tag := range tags {
			r := s[tag]
			add(VariableAxis{
				Tag:     tag,
				Name:    r.Name,
				Min:     r.Min,
				Max:     r.Max,
				Default: r.Default,
			})
		}
	}
	return res
}

// Find returns the axis with the given tag.
func Find(axes []VariableAxis, tag string) (VariableAxis, bool) {
	tag, err := NormalizeTag(tag)
	if err != nil {
		return VariableAxis{}, false
	}
	for _, a := range axes {
		if a.Tag == tag {
			return a, true
		}
	}
	return VariableAxis{}, false
}

// NormalizeTag checks that tag is a valid OpenType tag.  Tags shorter than
// four characters are padded with spaces.
func NormalizeTag(tag string) (string, error) {
	if tag == "" || len(tag) > 4 {
		return "", fmt.Errorf("invalid axis tag %q", tag)
	}
	for i := 0; i < len(tag); i++ {
		if tag[i] < 0x20 || tag[i] > 0x7E {
			return "", fmt.Errorf("invalid axis tag %q", tag)
		}
	}
	if tag[0] == ' ' {
		return "", fmt.Errorf("invalid axis tag %q", tag)
	}
	for len(tag) < 4 {
		tag += " "
	}
	return tag, nil
}
