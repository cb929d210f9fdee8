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


package inspect

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"path"
	"strings"

	"seehuhn.de/go/sfnt/header"

	"seehuhn.de/go/fontsubset/woff"
)

// Container is the file format of a font.
// The values double as file name extensions.
type Container string

// These are the supported font containers.
const (
	TrueType   Container = "ttf"
	OpenType   Container = "otf"
	Collection Container = "ttc"
	WOFF       Container = "woff"
	WOFF2      Container = "woff2"
)

// Detect determines the container format from the first bytes of a file.
func Detect(blob []byte) (Container, bool) {
	if len(blob) < 4 {
		return "", false
	}
	switch binary.BigEndian.Uint32(blob) {
	case 0x00010000, 0x74727565: // "true"
		return TrueType, true
	case 0x4F54544F: // "OTTO"
		return OpenType, true
	case 0x74746366: // "ttcf"
		return Collection, true
	case 0x774F4646: // "wOFF"
		return WOFF, true
	case 0x774F4632: // "wOF2"
		return WOFF2, true
	}
	return "", false
}

// ContainerFromName guesses the container format from a file name
// extension.
func ContainerFromName(fileName string) (Container, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	switch c := Container(ext); c {
	case TrueType, OpenType, Collection, WOFF, WOFF2:
		return c, true
	case "otc":
		return Collection, true
	}
	return "", false
}

// Extract returns the sfnt data of the first face of a font file.
//
// WOFF and WOFF2 files are decoded, and the first face of a collection is
// copied into a stand-alone font.  For plain TrueType and OpenType fonts,
// blob is returned unchanged.  The file name is only used as a hint for
// error reporting.
func Extract(blob []byte, fileName string) ([]byte, Container, error) {
	container, ok := Detect(blob)
	if !ok {
		if _, isFont := ContainerFromName(fileName); isFont {
			return nil, "", &CorruptFontError{Err: errSignature}
		}
		return nil, "", &UnsupportedFormatError{FileName: fileName}
	}

	switch container {
	case WOFF, WOFF2:
		raw, err := woff.Decode(blob)
		if errors.Is(err, woff.ErrUnsupported) {
			return nil, "", &UnsupportedFormatError{FileName: fileName, Err: err}
		} else if err != nil {
			return nil, "", &CorruptFontError{Container: container, Err: err}
		}
		return raw, container, nil
	case Collection:
		raw, err := firstFace(blob)
		if err != nil {
			return nil, "", &CorruptFontError{Container: container, Err: err}
		}
		return raw, container, nil
	default:
		return blob, container, nil
	}
}

// faceReader gives access to one face of a font collection, as if it was a
// stand-alone font.  Only the table directory is moved, since the table
// offsets in a collection are relative to the start of the file.
type faceReader struct {
	data    []byte
	offset  int64
	dirSize int64
}

func newFaceReader(data []byte, index int) (*faceReader, error) {
	if len(data) < 12 {
		return nil, errTruncated
	}
	numFaces := int(binary.BigEndian.Uint32(data[8:12]))
	if index >= numFaces || len(data) < 12+4*numFaces {
		return nil, errTruncated
	}
	offset := int64(binary.BigEndian.Uint32(data[12+4*index:]))
	if offset+12 > int64(len(data)) {
		return nil, errTruncated
	}
	numTables := int64(binary.BigEndian.Uint16(data[offset+4:]))
	return &faceReader{
		data:    data,
		offset:  offset,
		dirSize: 12 + 16*numTables,
	}, nil
}

func (r *faceReader) ReadAt(p []byte, off int64) (int, error) {
	if off < r.dirSize {
		off += r.offset
	}
	if off < 0 || off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// firstFace copies the first face of a collection into a new sfnt file.
func firstFace(data []byte) ([]byte, error) {
	r, err := newFaceReader(data, 0)
	if err != nil {
		return nil, err
	}
	info, err := header.Read(r)
	if err != nil {
		return nil, err
	}
	tables := make(map[string][]byte, len(info.Toc))
	for tag := range info.Toc {
		body, err := info.ReadTableBytes(r, tag)
		if err != nil {
			return nil, err
		}
		tables[tag] = bytes.Clone(body)
	}
	scalerType := binary.BigEndian.Uint32(data[r.offset:])

	buf := &bytes.Buffer{}
	if _, err := header.Write(buf, scalerType, tables); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
