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
	"encoding/binary"
	"errors"
	"slices"

	"seehuhn.de/go/sfnt/header"
)

type table struct {
	tag      string
	data     []byte
	checksum uint32
}

// readTables splits an sfnt file into its tables, sorted by tag.
// The table data aliases raw.
func readTables(raw []byte) (uint32, []table, error) {
	if len(raw) < 12 {
		return 0, nil, errTruncated
	}
	flavor := binary.BigEndian.Uint32(raw[0:4])
	switch flavor {
	case 0x00010000, 0x4F54544F, 0x74727565: // TrueType, "OTTO", "true"
		// pass
	case 0x74746366: // "ttcf"
		return 0, nil, errCollection
	default:
		return 0, nil, errNotSfnt
	}

	r := bytes.NewReader(raw)
	info, err := header.Read(r)
	if err != nil {
		return 0, nil, err
	}

	tags := make([]string, 0, len(info.Toc))
	for tag := range info.Toc {
		tags = append(tags, tag)
	}
	slices.Sort(tags)

	tables := make([]table, 0, len(tags))
	for _, tag := range tags {
		rec := info.Toc[tag]
		start := int64(rec.Offset)
		end := start + int64(rec.Length)
		if end > int64(len(raw)) {
			return 0, nil, errTruncated
		}
		data := raw[start:end]
		tables = append(tables, table{
			tag:      tag,
			data:     data,
			checksum: checksum(data, tag == "head"),
		})
	}
	return flavor, tables, nil
}

// sfntSize returns the size of an sfnt file holding the given tables.
func sfntSize(tables []table) uint32 {
	size := uint32(12 + 16*len(tables))
	for _, t := range tables {
		size += pad4(uint32(len(t.data)))
	}
	return size
}

// writeSfnt assembles an sfnt file from decoded tables.
func writeSfnt(flavor uint32, tables map[string][]byte) ([]byte, error) {
	if head, ok := tables["head"]; ok && len(head) < 12 {
		return nil, errTruncated
	}
	buf := &bytes.Buffer{}
	_, err := header.Write(buf, flavor, tables)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// checksum computes the sfnt table checksum.  For the "head" table the
// checkSumAdjustment field is treated as zero.
func checksum(data []byte, isHead bool) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var word [4]byte
		copy(word[:], data[i:])
		if isHead && i == 8 {
			continue
		}
		sum += binary.BigEndian.Uint32(word[:])
	}
	return sum
}

func pad4(n uint32) uint32 {
	return (n + 3) &^ 3
}

var (
	errTruncated  = errors.New("truncated font data")
	errNotSfnt    = errors.New("not an sfnt font")
	errCollection = errors.New("font collections are not supported")
)
