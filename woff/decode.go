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
	"io"

	"github.com/andybalholm/brotli"
)

// maxSfntSize bounds the memory used while decoding.
const maxSfntSize = 1 << 28

// Decode converts a WOFF or WOFF2 file back to sfnt format.
//
// WOFF2 files are only accepted if all tables use the null transform.
// Other files are rejected with an error wrapping [ErrUnsupported].
func Decode(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, &DecodeError{Format: "woff", Err: errTruncated}
	}
	switch binary.BigEndian.Uint32(data) {
	case woff1Signature:
		flavor, tables, err := decodeWOFF(data)
		if err != nil {
			return nil, &DecodeError{Format: "woff", Err: err}
		}
		return finish("woff", flavor, tables)
	case woff2Signature:
		flavor, tables, err := decodeWOFF2(data)
		if err != nil {
			return nil, &DecodeError{Format: "woff2", Err: err}
		}
		return finish("woff2", flavor, tables)
	default:
		return nil, &DecodeError{Format: "woff", Err: errNotWOFF}
	}
}

func finish(format string, flavor uint32, tables map[string][]byte) ([]byte, error) {
	raw, err := writeSfnt(flavor, tables)
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	return raw, nil
}

func decodeWOFF(data []byte) (uint32, map[string][]byte, error) {
	if len(data) < woff1HeaderSize {
		return 0, nil, errTruncated
	}
	flavor := binary.BigEndian.Uint32(data[4:8])
	if flavor == 0x74746366 {
		return 0, nil, ErrUnsupported
	}
	numTables := int(binary.BigEndian.Uint16(data[12:14]))
	if len(data) < woff1HeaderSize+woff1EntrySize*numTables {
		return 0, nil, errTruncated
	}

	tables := make(map[string][]byte, numTables)
	total := 0
	for i := range numTables {
		rec := data[woff1HeaderSize+i*woff1EntrySize:]
		tag := string(rec[0:4])
		offset := uint64(binary.BigEndian.Uint32(rec[4:8]))
		compLength := uint64(binary.BigEndian.Uint32(rec[8:12]))
		origLength := uint64(binary.BigEndian.Uint32(rec[12:16]))
		if offset+compLength > uint64(len(data)) || compLength > origLength {
			return 0, nil, errTableBounds
		}
		total += int(origLength)
		if total > maxSfntSize {
			return 0, nil, errSizeLimit
		}

		stored := data[offset : offset+compLength]
		var body []byte
		if compLength == origLength {
			// Write patches the head table, so we need our own copy.
			body = bytes.Clone(stored)
		} else {
			zr, err := zlib.NewReader(bytes.NewReader(stored))
			if err != nil {
				return 0, nil, err
			}
			body, err = io.ReadAll(io.LimitReader(zr, int64(origLength)+1))
			if err != nil {
				return 0, nil, err
			}
			if uint64(len(body)) != origLength {
				return 0, nil, errTableBounds
			}
		}
		if body == nil {
			body = []byte{}
		}
		tables[tag] = body
	}
	return flavor, tables, nil
}

func decodeWOFF2(data []byte) (uint32, map[string][]byte, error) {
	if len(data) < woff2HeaderSize {
		return 0, nil, errTruncated
	}
	flavor := binary.BigEndian.Uint32(data[4:8])
	if flavor == 0x74746366 {
		return 0, nil, ErrUnsupported
	}
	numTables := int(binary.BigEndian.Uint16(data[12:14]))
	compressedSize := uint64(binary.BigEndian.Uint32(data[20:24]))

	type entry struct {
		tag    string
		length uint32
	}
	entries := make([]entry, 0, numTables)
	pos := woff2HeaderSize
	var total uint64
	for range numTables {
		if pos >= len(data) {
			return 0, nil, errTruncated
		}
		flags := data[pos]
		pos++
		var tag string
		if idx := int(flags & 0x3F); idx == arbitraryTag {
			if pos+4 > len(data) {
				return 0, nil, errTruncated
			}
			tag = string(data[pos : pos+4])
			pos += 4
		} else {
			tag = knownTags[idx]
		}
		length, n, err := readBase128(data[pos:])
		if err != nil {
			return 0, nil, err
		}
		pos += n

		version := flags >> transformShift
		isGlyf := tag == "glyf" || tag == "loca"
		if isGlyf && version != glyfNullTransform || !isGlyf && version != 0 {
			return 0, nil, ErrUnsupported
		}

		total += uint64(length)
		if total > maxSfntSize {
			return 0, nil, errSizeLimit
		}
		entries = append(entries, entry{tag: tag, length: length})
	}

	if uint64(pos)+compressedSize > uint64(len(data)) {
		return 0, nil, errTruncated
	}
	br := brotli.NewReader(bytes.NewReader(data[pos : uint64(pos)+compressedSize]))
	stream, err := io.ReadAll(io.LimitReader(br, int64(total)+1))
	if err != nil {
		return 0, nil, err
	}
	if uint64(len(stream)) != total {
		return 0, nil, errTableBounds
	}

	tables := make(map[string][]byte, len(entries))
	var offset uint32
	for _, e := range entries {
		tables[e.tag] = stream[offset : offset+e.length : offset+e.length]
		offset += e.length
	}
	return flavor, tables, nil
}
