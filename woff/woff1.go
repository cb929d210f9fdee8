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

package woff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
)

const (
	woff1Signature  = 0x774F4646 // "wOFF"
	woff1HeaderSize = 44
	woff1EntrySize  = 20
)

// EncodeWOFF converts an sfnt font into WOFF 1.0 format.
//
// Every table is zlib-compressed on its own.  Tables where compression does
// not reduce the size are stored uncompressed, as required by the format.
func EncodeWOFF(raw []byte) (*Encoded, error) {
	flavor, tables, err := readTables(raw)
	if err != nil {
		return nil, &CompressionError{Format: "woff", Err: err}
	}

	type entry struct {
		table
		stored []byte
	}
	entries := make([]entry, len(tables))
	for i, t := range tables {
		stored, err := deflate(t.data)
		if err != nil {
			return nil, &CompressionError{Format: "woff", Err: err}
		}
		if len(stored) >= len(t.data) {
			stored = t.data
		}
		entries[i] = entry{table: t, stored: stored}
	}

	offset := uint32(woff1HeaderSize + woff1EntrySize*len(entries))
	out := make([]byte, offset)
	binary.BigEndian.PutUint32(out[0:4], woff1Signature)
	binary.BigEndian.PutUint32(out[4:8], flavor)
	binary.BigEndian.PutUint16(out[12:14], uint16(len(entries)))
	binary.BigEndian.PutUint32(out[16:20], sfntSize(tables))
	binary.BigEndian.PutUint16(out[20:22], 1) // majorVersion

	for i, e := range entries {
		rec := out[woff1HeaderSize+i*woff1EntrySize:]
		copy(rec[0:4], e.tag)
		binary.BigEndian.PutUint32(rec[4:8], offset)
		binary.BigEndian.PutUint32(rec[8:12], uint32(len(e.stored)))
		binary.BigEndian.PutUint32(rec[12:16], uint32(len(e.data)))
		binary.BigEndian.PutUint32(rec[16:20], e.checksum)
		offset += pad4(uint32(len(e.stored)))
	}
	for _, e := range entries {
		out = append(out, e.stored...)
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
	}
	binary.BigEndian.PutUint32(out[8:12], uint32(len(out)))

	return &Encoded{Data: out, InputSize: len(raw)}, nil
}

func deflate(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w, err := zlib.NewWriterLevel(buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
