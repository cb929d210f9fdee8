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


package mockcodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"slices"

	"seehuhn.de/go/sfnt/cmap"
	"seehuhn.de/go/sfnt/glyph"
	"seehuhn.de/go/sfnt/header"

	"seehuhn.de/go/fontsubset/axis"
)

// variationTables are removed once every axis is pinned.
var variationTables = []string{"avar", "cvar", "fvar", "gvar", "HVAR", "MVAR", "STAT", "VVAR"}

var errMalformed = errors.New("malformed font")

func readFont(data []byte) (uint32, map[string][]byte, error) {
	if len(data) < 4 {
		return 0, nil, errMalformed
	}
	r := bytes.NewReader(data)
	info, err := header.Read(r)
	if err != nil {
		return 0, nil, err
	}
	tables := make(map[string][]byte, len(info.Toc))
	for tag := range info.Toc {
		body, err := info.ReadTableBytes(r, tag)
		if err != nil {
			return 0, nil, err
		}
		tables[tag] = bytes.Clone(body)
	}
	return binary.BigEndian.Uint32(data), tables, nil
}

// fontAxes returns the axes of a font, or nil if the font is static or
// cannot be parsed.
func fontAxes(data []byte) axis.Table {
	_, tables, err := readFont(data)
	if err != nil {
		return nil
	}
	fvar, ok := tables["fvar"]
	if !ok {
		return nil
	}
	list, err := axis.DecodeFvar(fvar, nil)
	if err != nil || len(list) == 0 {
		return nil
	}
	res := make(axis.Table, len(list))
	for _, a := range list {
		res[a.Tag] = axis.Range{Min: a.Min, Max: a.Max, Default: a.Default}
	}
	return res
}

// subsetFont keeps the outlines of the glyphs needed for the given code
// points.  Glyph IDs are not changed.
func subsetFont(data []byte, unicodes map[uint32]bool, pins map[string]float32) ([]byte, error) {
	scalerType, tables, err := readFont(data)
	if err != nil {
		return nil, err
	}

	head := tables["head"]
	maxp := tables["maxp"]
	if len(head) < 54 || len(maxp) < 6 || tables["glyf"] == nil || tables["loca"] == nil {
		return nil, errMalformed
	}
	numGlyphs := int(binary.BigEndian.Uint16(maxp[4:6]))
	longLoca := binary.BigEndian.Uint16(head[50:52]) != 0
	offsets, err := decodeLoca(tables["loca"], longLoca, numGlyphs)
	if err != nil {
		return nil, err
	}
	glyf := tables["glyf"]
	if int(offsets[numGlyphs]) > len(glyf) {
		return nil, errMalformed
	}

	cmapTable, err := cmap.Decode(tables["cmap"])
	if err != nil {
		return nil, err
	}
	sub, err := cmapTable.GetBest()
	if err != nil {
		return nil, err
	}

	keep := map[glyph.ID]bool{0: true}
	newCmap := cmap.Format4{}
	for cp := range unicodes {
		if cp > 0xFFFF {
			continue
		}
		gid := sub.Lookup(rune(cp))
		if gid == 0 || int(gid) >= numGlyphs {
			continue
		}
		newCmap[uint16(cp)] = gid
		keep[gid] = true
	}

	// add the components of composite glyphs
	todo := make([]glyph.ID, 0, len(keep))
	for gid := range keep {
		todo = append(todo, gid)
	}
	for len(todo) > 0 {
		gid := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		for _, comp := range components(glyf[offsets[gid]:offsets[gid+1]]) {
			if int(comp) < numGlyphs && !keep[comp] {
				keep[comp] = true
				todo = append(todo, comp)
			}
		}
	}

	newGlyf := make([]byte, 0, len(glyf)/4)
	newLoca := make([]byte, 4*(numGlyphs+1))
	for gid := range numGlyphs {
		binary.BigEndian.PutUint32(newLoca[4*gid:], uint32(len(newGlyf)))
		if keep[glyph.ID(gid)] {
			newGlyf = append(newGlyf, glyf[offsets[gid]:offsets[gid+1]]...)
			for len(newGlyf)%4 != 0 {
				newGlyf = append(newGlyf, 0)
			}
		}
	}
	binary.BigEndian.PutUint32(newLoca[4*numGlyphs:], uint32(len(newGlyf)))

	tables["glyf"] = newGlyf
	tables["loca"] = newLoca
	binary.BigEndian.PutUint16(head[50:52], 1)
	tables["cmap"] = cmap.Table{
		{PlatformID: 3, EncodingID: 1}: newCmap.Encode(0),
	}.Encode()
	delete(tables, "DSIG")

	if axes := fontAxes(data); len(axes) > 0 {
		allPinned := true
		for tag := range axes {
			if _, ok := pins[tag]; !ok {
				allPinned = false
			}
		}
		if allPinned {
			for _, tag := range variationTables {
				delete(tables, tag)
			}
		}
	}

	buf := &bytes.Buffer{}
	if _, err := header.Write(buf, scalerType, tables); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeLoca(loca []byte, long bool, numGlyphs int) ([]uint32, error) {
	res := make([]uint32, numGlyphs+1)
	if long {
		if len(loca) < 4*(numGlyphs+1) {
			return nil, errMalformed
		}
		for i := range res {
			res[i] = binary.BigEndian.Uint32(loca[4*i:])
		}
	} else {
		if len(loca) < 2*(numGlyphs+1) {
			return nil, errMalformed
		}
		for i := range res {
			res[i] = 2 * uint32(binary.BigEndian.Uint16(loca[2*i:]))
		}
	}
	if !slices.IsSorted(res) {
		return nil, errMalformed
	}
	return res, nil
}

// components returns the glyphs referenced by a composite glyph.
func components(data []byte) []glyph.ID {
	if len(data) < 10 || int16(binary.BigEndian.Uint16(data[0:2])) >= 0 {
		return nil
	}

	const (
		argsAreWords = 0x0001
		haveScale    = 0x0008
		moreComps    = 0x0020
		haveXYScale  = 0x0040
		haveTwoByTwo = 0x0080
	)

	var res []glyph.ID
	p := 10
	for p+4 <= len(data) {
		flags := binary.BigEndian.Uint16(data[p:])
		res = append(res, glyph.ID(binary.BigEndian.Uint16(data[p+2:])))
		p += 4
		if flags&argsAreWords != 0 {
			p += 4
		} else {
			p += 2
		}
		switch {
		case flags&haveScale != 0:
			p += 2
		case flags&haveXYScale != 0:
			p += 4
		case flags&haveTwoByTwo != 0:
			p += 8
		}
		if flags&moreComps == 0 {
			break
		}
	}
	return res
}
