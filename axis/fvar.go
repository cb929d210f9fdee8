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
	"encoding/binary"
	"errors"
	"math"
)

// FvarAxis is an axis record of the "fvar" table.
type FvarAxis struct {
	Tag     string
	Min     float64
	Default float64
	Max     float64
	Hidden  bool
	NameID  uint16
}

const (
	fvarHeaderSize = 16
	fvarAxisSize   = 20
)

// DecodeFvar decodes the axis records of an "fvar" table.
//
// If names is not nil, it is used to look up the axis names in the "name"
// table.
func DecodeFvar(data []byte, names func(nameID uint16) string) (List, error) {
	records, err := decodeFvarRecords(data)
	if err != nil {
		return nil, err
	}

	res := make(List, 0, len(records))
	for _, rec := range records {
		a := VariableAxis{
			Tag:     rec.Tag,
			Min:     rec.Min,
			Max:     rec.Max,
			Default: rec.Default,
		}
		if names != nil {
			a.Name = names(rec.NameID)
		}
		res = append(res, a)
	}
	return res, nil
}

func decodeFvarRecords(data []byte) ([]FvarAxis, error) {
	if len(data) < fvarHeaderSize {
		return nil, errMalformedFvar
	}
	major := binary.BigEndian.Uint16(data[0:2])
	if major != 1 {
		return nil, errFvarVersion
	}
	axesOffset := int(binary.BigEndian.Uint16(data[4:6]))
	axisCount := int(binary.BigEndian.Uint16(data[8:10]))
	axisSize := int(binary.BigEndian.Uint16(data[10:12]))
	if axisCount == 0 {
		return nil, nil
	}
	if axisSize < fvarAxisSize || axesOffset < fvarHeaderSize ||
		axesOffset+axisCount*axisSize > len(data) {
		return nil, errMalformedFvar
	}

	res := make([]FvarAxis, axisCount)
	for i := range res {
		rec := data[axesOffset+i*axisSize:]
		res[i] = FvarAxis{
			Tag:     string(rec[0:4]),
			Min:     fixed(rec[4:8]),
			Default: fixed(rec[8:12]),
			Max:     fixed(rec[12:16]),
			Hidden:  binary.BigEndian.Uint16(rec[16:18])&0x0001 != 0,
			NameID:  binary.BigEndian.Uint16(rec[18:20]),
		}
	}
	return res, nil
}

// EncodeFvar encodes an "fvar" table without named instances.
func EncodeFvar(axes []FvarAxis) []byte {
	buf := make([]byte, fvarHeaderSize+fvarAxisSize*len(axes))
	binary.BigEndian.PutUint16(buf[0:2], 1)
	binary.BigEndian.PutUint16(buf[4:6], fvarHeaderSize)
	binary.BigEndian.PutUint16(buf[6:8], 2)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(axes)))
	binary.BigEndian.PutUint16(buf[10:12], fvarAxisSize)
	binary.BigEndian.PutUint16(buf[14:16], 4+4*uint16(len(axes)))
	for i, a := range axes {
		rec := buf[fvarHeaderSize+i*fvarAxisSize:]
		copy(rec[0:4], a.Tag+"    ")
		binary.BigEndian.PutUint32(rec[4:8], toFixed(a.Min))
		binary.BigEndian.PutUint32(rec[8:12], toFixed(a.Default))
		binary.BigEndian.PutUint32(rec[12:16], toFixed(a.Max))
		if a.Hidden {
			binary.BigEndian.PutUint16(rec[16:18], 1)
		}
		binary.BigEndian.PutUint16(rec[18:20], a.NameID)
	}
	return buf
}

func fixed(b []byte) float64 {
	return float64(int32(binary.BigEndian.Uint32(b))) / 65536
}

func toFixed(x float64) uint32 {
	return uint32(int32(math.Round(x * 65536)))
}

var (
	errMalformedFvar = errors.New("fvar: malformed table")
	errFvarVersion   = errors.New("fvar: unsupported version")
)
