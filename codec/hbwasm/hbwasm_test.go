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

package hbwasm

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero/api"

	"seehuhn.de/go/fontsubset/axis"
	"seehuhn.de/go/fontsubset/engine"
	"seehuhn.de/go/fontsubset/inspect"
	"seehuhn.de/go/fontsubset/internal/testfont"
	"seehuhn.de/go/fontsubset/repertoire"
)

func TestLoadNoPath(t *testing.T) {
	t.Setenv(EnvPath, "")
	_, err := Load(context.Background(), "")
	if !errors.Is(err, ErrNoPath) {
		t.Errorf("got %v, want ErrNoPath", err)
	}
}

func TestInvalidModule(t *testing.T) {
	_, err := New(context.Background(), []byte("this is not WebAssembly"))
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Errorf("got %v, want *LoadError", err)
	}
}

func TestMissingExports(t *testing.T) {
	empty := []byte("\x00asm\x01\x00\x00\x00")
	_, err := New(context.Background(), empty)

	var missing *MissingExportsError
	if !errors.As(err, &missing) {
		t.Fatalf("got %v, want *MissingExportsError", err)
	}
	if d := cmp.Diff(requiredExports, missing.Names); d != "" {
		t.Errorf("unexpected missing exports (-want +got):\n%s", d)
	}
}

func TestDecodeAxisInfos(t *testing.T) {
	rec := func(tag string, lo, def, hi float32) []byte {
		b := make([]byte, axisInfoSize)
		binary.LittleEndian.PutUint32(b[0:4], 0) // axis index
		binary.LittleEndian.PutUint32(b[4:8], binary.BigEndian.Uint32([]byte(tag)))
		binary.LittleEndian.PutUint32(b[16:20], math.Float32bits(lo))
		binary.LittleEndian.PutUint32(b[20:24], math.Float32bits(def))
		binary.LittleEndian.PutUint32(b[24:28], math.Float32bits(hi))
		return b
	}
	data := append(rec("wght", 100, 400, 900), rec("wdth", 75, 100, 125)...)
	data = append(data, 1, 2, 3) // trailing garbage is ignored

	want := axis.Table{
		"wght": {Min: 100, Default: 400, Max: 900},
		"wdth": {Min: 75, Default: 100, Max: 125},
	}
	if d := cmp.Diff(want, decodeAxisInfos(data)); d != "" {
		t.Errorf("unexpected axes (-want +got):\n%s", d)
	}
}

// loadCodec returns the real codec, or skips the test if the module is not
// available.
func loadCodec(t *testing.T) *Codec {
	t.Helper()
	path := os.Getenv(EnvPath)
	if path == "" {
		t.Skip(EnvPath + " not set")
	}
	c, err := Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		c.Close(context.Background())
	})
	return c
}

func TestSubsetStatic(t *testing.T) {
	c := loadCodec(t)
	e := engine.New(c)

	font := testfont.Static()
	out, err := e.Subset(context.Background(), font, repertoire.FromString("Hello"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Data) >= len(font) {
		t.Errorf("subset is not smaller: %d >= %d", len(out.Data), len(font))
	}

	md, err := inspect.Inspect(out.Data)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range "Helo" {
		if !md.Covers(r) {
			t.Errorf("subset lacks %q", r)
		}
	}
	if md.Covers('Z') {
		t.Error("subset contains 'Z'")
	}
}

func TestFaceAxesAndPin(t *testing.T) {
	c := loadCodec(t)
	if c.fns["hb_subset_input_pin_axis_location"] == nil {
		t.Skip("codec built without instancing support")
	}
	e := engine.New(c, engine.WithPinPolicy(engine.Strict))

	out, err := e.Subset(context.Background(), testfont.Variable(),
		repertoire.FromString("Hamburg"), axis.Pinning{"wght": 700})
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]string{"wght"}, out.Pinned); d != "" {
		t.Errorf("unexpected pinned axes (-want +got):\n%s", d)
	}
	md, err := inspect.Inspect(out.Data)
	if err != nil {
		t.Fatal(err)
	}
	if md.IsVariable {
		t.Error("pinned font is still variable")
	}
}

type fakeFunction struct {
	api.Function
	res []uint64
	err error
}

func (f fakeFunction) Call(context.Context, ...uint64) ([]uint64, error) {
	return f.res, f.err
}

// fakeMemory reports zero axes written by hb_ot_var_get_axis_infos.
type fakeMemory struct {
	api.Memory
}

func (fakeMemory) WriteUint32Le(uint32, uint32) bool { return true }
func (fakeMemory) ReadUint32Le(uint32) (uint32, bool) { return 0, true }
func (fakeMemory) Read(_, n uint32) ([]byte, bool) { return make([]byte, n), true }

func TestFaceAxesFreeFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	c := &Codec{
		mem: fakeMemory{},
		fns: map[string]api.Function{
			"hb_ot_var_get_axis_count": fakeFunction{res: []uint64{2}},
			"hb_ot_var_get_axis_infos": fakeFunction{res: []uint64{0}},
			"malloc":                   fakeFunction{res: []uint64{64}},
			"free":                     fakeFunction{err: errors.New("trap")},
		},
		logger: slog.New(slog.NewTextHandler(buf, nil)),
	}

	axes, err := c.FaceAxes(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(axes) != 0 {
		t.Errorf("unexpected axes %v", axes)
	}
	if !strings.Contains(buf.String(), "cannot free axis info buffer") {
		t.Errorf("free failure not logged, log is %q", buf.String())
	}
}
