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


// Package testfont provides fonts for use in unit tests.
//
// All fonts are derived from the Go fonts.  Every call returns a fresh
// copy, which the caller may modify.
package testfont

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"seehuhn.de/go/sfnt/header"

	"seehuhn.de/go/fontsubset/axis"
	"seehuhn.de/go/fontsubset/woff"
)

const scalerTypeTrueType = 0x00010000

// WeightAxis is the axis of the font returned by [Variable].
var WeightAxis = axis.FvarAxis{
	Tag:     "wght",
	Min:     100,
	Default: 400,
	Max:     900,
	NameID:  256,
}

// Static returns Go Regular, a static TrueType font.
func Static() []byte {
	return bytes.Clone(goregular.TTF)
}

// Bold returns Go Bold, a static TrueType font.
func Bold() []byte {
	return bytes.Clone(gobold.TTF)
}

// Variable returns Go Regular with a weight axis added.  The font has
// "fvar" and "gvar" tables, but the glyph variations are empty.
func Variable() []byte {
	tables := ReadTables(goregular.TTF)
	numGlyphs := int(binary.BigEndian.Uint16(tables["maxp"][4:6]))
	tables["fvar"] = axis.EncodeFvar([]axis.FvarAxis{WeightAxis})
	tables["gvar"] = makeGvar(numGlyphs)
	return WriteTables(tables)
}

// Collection returns a TrueType collection with Go Regular as the first
// face and Go Bold as the second face.
func Collection() []byte {
	return MakeCollection(goregular.TTF, gobold.TTF)
}

// WOFF2 returns Go Regular in WOFF2 format.
func WOFF2() []byte {
	enc, err := woff.EncodeWOFF2(goregular.TTF)
	if err != nil {
		panic(err)
	}
	return enc.Data
}

// WOFF returns Go Regular in WOFF 1.0 format.
func WOFF() []byte {
	enc, err := woff.EncodeWOFF(goregular.TTF)
	if err != nil {
		panic(err)
	}
	return enc.Data
}

// ReadTables returns copies of all tables of an sfnt font.
func ReadTables(raw []byte) map[string][]byte {
	r := bytes.NewReader(raw)
	info, err := header.Read(r)
	if err != nil {
		panic(err)
	}
	tables := make(map[string][]byte, len(info.Toc))
	for tag := range info.Toc {
		data, err := info.ReadTableBytes(r, tag)
		if err != nil {
			panic(err)
		}
		tables[tag] = bytes.Clone(data)
	}
	return tables
}

// WriteTables assembles a TrueType font from its tables.
func WriteTables(tables map[string][]byte) []byte {
	buf := &bytes.Buffer{}
	_, err := header.Write(buf, scalerTypeTrueType, tables)
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// MakeCollection combines sfnt fonts into a font collection.
// The faces do not share tables.
func MakeCollection(faces ...[]byte) []byte {
	headerSize := 12 + 4*len(faces)
	out := make([]byte, headerSize, headerSize+len(faces)*len(faces[0]))
	copy(out[0:4], "ttcf")
	binary.BigEndian.PutUint32(out[4:8], 0x00010000)
	binary.BigEndian.PutUint32(out[8:12], uint32(len(faces)))

	for i, face := range faces {
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
		base := uint32(len(out))
		binary.BigEndian.PutUint32(out[12+4*i:], base)
		out = append(out, face...)

		// table offsets are relative to the start of the collection
		numTables := int(binary.BigEndian.Uint16(face[4:6]))
		for j := range numTables {
			rec := out[int(base)+12+16*j:]
			offs := binary.BigEndian.Uint32(rec[8:12])
			binary.BigEndian.PutUint32(rec[8:12], offs+base)
		}
	}
	return out
}

// makeGvar returns a "gvar" table for one axis, with one shared tuple
// and without variation data for any glyph.
func makeGvar(numGlyphs int) []byte {
	const headerSize = 20
	offsetsSize := 2 * (numGlyphs + 1)
	sharedTuples := headerSize + offsetsSize
	dataStart := sharedTuples + 4

	buf := make([]byte, dataStart)
	binary.BigEndian.PutUint16(buf[0:2], 1) // majorVersion
	binary.BigEndian.PutUint16(buf[4:6], 1) // axisCount
	binary.BigEndian.PutUint16(buf[6:8], 1) // sharedTupleCount
	binary.BigEndian.PutUint32(buf[8:12], uint32(sharedTuples))
	binary.BigEndian.PutUint16(buf[12:14], uint16(numGlyphs))
	binary.BigEndian.PutUint32(buf[16:20], uint32(dataStart))
	binary.BigEndian.PutUint16(buf[sharedTuples:], 0x4000) // +1.0 in F2DOT14
	return buf
}
