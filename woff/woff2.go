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

// Package woff re-encodes sfnt fonts in the compressed WOFF 1.0 and WOFF2
// web font formats, and decodes such files back to sfnt.
//
// The WOFF2 encoder uses the null transform for all tables, so the glyf and
// loca tables are stored as in the sfnt file and only brotli compression is
// applied.  The decoder accepts only files using null transforms.
package woff

import (
	"bytes"
	"encoding/binary"

	"github.com/andybalholm/brotli"
)

const (
	woff2Signature  = 0x774F4632 // "wOF2"
	woff2HeaderSize = 48

	// flag bits 6-7 of a WOFF2 table directory entry
	transformShift = 6

	// glyf and loca use transform version 3 for the null transform,
	// all other tables use version 0.
	glyfNullTransform = 3
)

// knownTags lists the tags which have a one-byte code in the WOFF2 table
// directory.  The code is the index into this list.
var knownTags = [...]string{
	"cmap", "head", "hhea", "hmtx", "maxp", "name", "OS/2", "post",
	"cvt ", "fpgm", "glyf", "loca", "prep", "CFF ", "VORG", "EBDT",
	"EBLC", "gasp", "hdmx", "kern", "LTSH", "PCLT", "VDMX", "vhea",
	"vmtx", "BASE", "GDEF", "GPOS", "GSUB", "EBSC", "JSTF", "MATH",
	"CBDT", "CBLC", "COLR", "CPAL", "SVG ", "sbix", "acnt", "avar",
	"bdat", "bloc", "bsln", "cvar", "fdsc", "feat", "fmtx", "fvar",
	"gvar", "hsty", "just", "lcar", "mort", "morx", "opbd", "prop",
	"trak", "Zapf", "Silf", "Glat", "Gloc", "Feat", "Sill",
}

const arbitraryTag = 63

// Encoded is the result of re-encoding a font.
type Encoded struct {
	// Data is the encoded font.
	Data []byte

	// InputSize is the size of the sfnt font which was encoded.
	InputSize int
}

// Ratio returns the size of the encoded font as a fraction of the input
// size.  Smaller values mean better compression.
func (e *Encoded) Ratio() float64 {
	if e == nil || e.InputSize == 0 {
		return 0
	}
	return float64(len(e.Data)) / float64(e.InputSize)
}

// EncodeWOFF2 converts an sfnt font into WOFF2 format.
// The output is deterministic.
func EncodeWOFF2(raw []byte) (*Encoded, error) {
	flavor, tables, err := readTables(raw)
	if err != nil {
		return nil, &CompressionError{Format: "woff2", Err: err}
	}

	dir := &bytes.Buffer{}
	stream := &bytes.Buffer{}
	for _, t := range tables {
		idx := arbitraryTag
		for i, known := range knownTags {
			if known == t.tag {
				idx = i
				break
			}
		}
		flags := byte(idx)
		if t.tag == "glyf" || t.tag == "loca" {
			flags |= glyfNullTransform << transformShift
		}
		dir.WriteByte(flags)
		if idx == arbitraryTag {
			dir.WriteString(t.tag)
		}
		writeBase128(dir, uint32(len(t.data)))
		stream.Write(t.data)
	}

	compressed := &bytes.Buffer{}
	w := brotli.NewWriterOptions(compressed, brotli.WriterOptions{
		Quality: brotli.BestCompression,
		LGWin:   22,
	})
	if _, err := w.Write(stream.Bytes()); err != nil {
		return nil, &CompressionError{Format: "woff2", Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, &CompressionError{Format: "woff2", Err: err}
	}

	length := woff2HeaderSize + dir.Len() + compressed.Len()
	total := pad4(uint32(length))

	out := make([]byte, woff2HeaderSize, total)
	binary.BigEndian.PutUint32(out[0:4], woff2Signature)
	binary.BigEndian.PutUint32(out[4:8], flavor)
	binary.BigEndian.PutUint32(out[8:12], total)
	binary.BigEndian.PutUint16(out[12:14], uint16(len(tables)))
	binary.BigEndian.PutUint32(out[16:20], sfntSize(tables))
	binary.BigEndian.PutUint32(out[20:24], uint32(compressed.Len()))
	binary.BigEndian.PutUint16(out[24:26], 1) // majorVersion
	// minorVersion and the metadata/private block fields stay zero
	out = append(out, dir.Bytes()...)
	out = append(out, compressed.Bytes()...)
	for uint32(len(out)) < total {
		out = append(out, 0)
	}

	return &Encoded{Data: out, InputSize: len(raw)}, nil
}

// writeBase128 writes a UIntBase128 value, using the shortest encoding.
func writeBase128(buf *bytes.Buffer, x uint32) {
	var tmp [5]byte
	n := 0
	for {
		tmp[4-n] = byte(x & 0x7F)
		n++
		x >>= 7
		if x == 0 {
			break
		}
	}
	enc := tmp[5-n:]
	for i := 0; i < n-1; i++ {
		enc[i] |= 0x80
	}
	buf.Write(enc)
}

// readBase128 decodes a UIntBase128 value and returns the number of bytes
// used.
func readBase128(data []byte) (uint32, int, error) {
	var x uint32
	for i := 0; i < 5; i++ {
		if i >= len(data) {
			return 0, 0, errTruncated
		}
		b := data[i]
		if i == 0 && b == 0x80 {
			return 0, 0, errBase128
		}
		if x&0xFE000000 != 0 {
			return 0, 0, errBase128
		}
		x = x<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return x, i + 1, nil
		}
	}
	return 0, 0, errBase128
}
