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


// Package inspect extracts metadata from font files.
//
// The supported formats are TrueType and OpenType fonts, font collections
// and the WOFF and WOFF2 web font formats.  For collections, only the first
// face is inspected.
package inspect

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/image/font/sfnt"

	"seehuhn.de/go/sfnt/cmap"
	"seehuhn.de/go/sfnt/header"

	"seehuhn.de/go/fontsubset/axis"
)

// Metadata describes a font file.
type Metadata struct {
	Family     string              `json:"family"`
	Subfamily  string              `json:"subfamily"`
	Version    string              `json:"version"`
	GlyphCount int                 `json:"glyphCount"`
	Ranges     []Range             `json:"ranges,omitempty"`
	Axes       []axis.VariableAxis `json:"axes,omitempty"`
	IsVariable bool                `json:"isVariable"`
	Container  Container           `json:"container"`
	NumFaces   int                 `json:"numFaces"`
}

// Range is a range of consecutive code points mapped by a font.
type Range struct {
	First rune `json:"first"`
	Last  rune `json:"last"`
}

func (r Range) String() string {
	if r.First == r.Last {
		return fmt.Sprintf("U+%04X", r.First)
	}
	return fmt.Sprintf("U+%04X-%04X", r.First, r.Last)
}

// Covers reports whether the font maps the code point r.
func (md *Metadata) Covers(r rune) bool {
	for _, rng := range md.Ranges {
		if r >= rng.First && r <= rng.Last {
			return true
		}
	}
	return false
}

// Inspect extracts the metadata of a font file.
func Inspect(blob []byte) (*Metadata, error) {
	return InspectFile(blob, "")
}

// InspectFile extracts the metadata of a font file.  The file name is only
// used to tell broken font files from files which are not fonts at all.
//
// The error is a *CorruptFontError if the file looks like a font but cannot
// be read, and an *UnsupportedFormatError otherwise.
func InspectFile(blob []byte, fileName string) (*Metadata, error) {
	raw, container, err := Extract(blob, fileName)
	if err != nil {
		return nil, err
	}

	var f *sfnt.Font
	numFaces := 1
	if container == Collection {
		coll, err := sfnt.ParseCollection(blob)
		if err != nil {
			return nil, &CorruptFontError{Container: container, Err: err}
		}
		numFaces = coll.NumFonts()
		f, err = coll.Font(0)
		if err != nil {
			return nil, &CorruptFontError{Container: container, Err: err}
		}
	} else {
		f, err = sfnt.Parse(raw)
		if err != nil {
			return nil, &CorruptFontError{Container: container, Err: err}
		}
	}

	buf := &sfnt.Buffer{}
	name := func(id sfnt.NameID) string {
		s, err := f.Name(buf, id)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	md := &Metadata{
		Family:     name(sfnt.NameIDFamily),
		Subfamily:  name(sfnt.NameIDSubfamily),
		Version:    name(sfnt.NameIDVersion),
		GlyphCount: f.NumGlyphs(),
		Container:  container,
		NumFaces:   numFaces,
	}

	r := bytes.NewReader(raw)
	info, err := header.Read(r)
	if err != nil {
		return nil, &CorruptFontError{Container: container, Err: err}
	}

	if _, ok := info.Toc["cmap"]; ok {
		data, err := info.ReadTableBytes(r, "cmap")
		if err != nil {
			return nil, &CorruptFontError{Container: container, Err: err}
		}
		md.Ranges, err = codeRanges(data)
		if err != nil {
			return nil, &CorruptFontError{Container: container, Err: err}
		}
	}

	if _, ok := info.Toc["fvar"]; ok {
		data, err := info.ReadTableBytes(r, "fvar")
		if err != nil {
			return nil, &CorruptFontError{Container: container, Err: err}
		}
		list, err := axis.DecodeFvar(data, func(id uint16) string {
			return name(sfnt.NameID(id))
		})
		if err != nil {
			return nil, &CorruptFontError{Container: container, Err: err}
		}
		md.Axes = axis.Canonical(list)
	}
	md.IsVariable = len(md.Axes) > 0

	return md, nil
}

// codeRanges returns the ranges of code points mapped by the best
// subtable of a cmap table.
func codeRanges(data []byte) ([]Range, error) {
	table, err := cmap.Decode(data)
	if err != nil {
		return nil, err
	}
	sub, err := table.GetBest()
	if err != nil {
		// no Unicode subtable
		return nil, nil
	}

	low, high := sub.CodeRange()
	var res []Range
	inRange := false
	for r := max(low, 0); r <= min(high, 0x10FFFF); r++ {
		mapped := sub.Lookup(r) != 0
		switch {
		case mapped && !inRange:
			res = append(res, Range{First: r, Last: r})
			inRange = true
		case mapped:
			res[len(res)-1].Last = r
		default:
			inRange = false
		}
	}
	return res, nil
}
