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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"seehuhn.de/go/fontsubset/axis"
	"seehuhn.de/go/fontsubset/internal/testfont"
)

func TestStatic(t *testing.T) {
	md, err := Inspect(testfont.Static())
	if err != nil {
		t.Fatal(err)
	}
	if md.Family != "Go" || md.Subfamily != "Regular" {
		t.Errorf("unexpected name %q %q", md.Family, md.Subfamily)
	}
	if md.GlyphCount < 100 {
		t.Errorf("GlyphCount = %d", md.GlyphCount)
	}
	if md.IsVariable || md.Axes != nil {
		t.Error("static font reported as variable")
	}
	if md.Container != TrueType || md.NumFaces != 1 {
		t.Errorf("container %q with %d faces", md.Container, md.NumFaces)
	}
	for _, r := range "AZaz09äé" {
		if !md.Covers(r) {
			t.Errorf("%q not covered", r)
		}
	}
	if md.Covers(0x4E00) {
		t.Error("CJK ideograph reported as covered")
	}
	for i := 1; i < len(md.Ranges); i++ {
		if md.Ranges[i].First <= md.Ranges[i-1].Last+1 {
			t.Errorf("ranges %s and %s not separated", md.Ranges[i-1], md.Ranges[i])
		}
	}
}

func TestVariable(t *testing.T) {
	md, err := InspectFile(testfont.Variable(), "GoVariable.ttf")
	if err != nil {
		t.Fatal(err)
	}
	want := []axis.VariableAxis{
		{Tag: "wght", Name: "wght", Min: 100, Max: 900, Default: 400},
	}
	if d := cmp.Diff(want, md.Axes); d != "" {
		t.Errorf("unexpected axes (-want +got):\n%s", d)
	}
	if !md.IsVariable {
		t.Error("variable font reported as static")
	}
}

func TestContainers(t *testing.T) {
	ref, err := Inspect(testfont.Static())
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		data      []byte
		container Container
		numFaces  int
	}{
		{testfont.WOFF(), WOFF, 1},
		{testfont.WOFF2(), WOFF2, 1},
		{testfont.Collection(), Collection, 2},
	}
	for _, c := range cases {
		md, err := Inspect(c.data)
		if err != nil {
			t.Errorf("%s: %v", c.container, err)
			continue
		}
		if md.Container != c.container || md.NumFaces != c.numFaces {
			t.Errorf("%s: got container %q with %d faces", c.container, md.Container, md.NumFaces)
		}
		md.Container = ref.Container
		md.NumFaces = ref.NumFaces
		if d := cmp.Diff(ref, md); d != "" {
			t.Errorf("%s: metadata differs (-want +got):\n%s", c.container, d)
		}
	}
}

func TestExtractCollection(t *testing.T) {
	raw, container, err := Extract(testfont.Collection(), "go.ttc")
	if err != nil {
		t.Fatal(err)
	}
	if container != Collection {
		t.Errorf("container = %q", container)
	}
	if c, _ := Detect(raw); c != TrueType {
		t.Errorf("extracted face has container %q", c)
	}
	md, err := Inspect(raw)
	if err != nil {
		t.Fatal(err)
	}
	if md.Subfamily != "Regular" {
		t.Errorf("extracted the wrong face: %q", md.Subfamily)
	}
}

func TestErrors(t *testing.T) {
	static := testfont.Static()
	cases := []struct {
		data     []byte
		fileName string
		corrupt  bool
	}{
		{[]byte{0, 1, 2, 3}, "broken.ttf", true},
		{[]byte{0, 1, 2, 3}, "notes.txt", false},
		{nil, "", false},
		{[]byte("%PDF-1.7"), "document.pdf", false},
		{static[:100], "cut.ttf", true},
		{static[:100], "", true},
		{[]byte("wOF2\x00\x01\x00\x00"), "", true},
		{[]byte("ttcf\x00\x01\x00\x00\x00\x00\x00\x05"), "", true},
	}
	for i, c := range cases {
		_, err := InspectFile(c.data, c.fileName)
		var corrupt *CorruptFontError
		var unsupported *UnsupportedFormatError
		switch {
		case c.corrupt && !errors.As(err, &corrupt):
			t.Errorf("%d: got %v, want CorruptFontError", i, err)
		case !c.corrupt && !errors.As(err, &unsupported):
			t.Errorf("%d: got %v, want UnsupportedFormatError", i, err)
		}
	}
}

func TestContainerFromName(t *testing.T) {
	cases := map[string]Container{
		"a.ttf":         TrueType,
		"dir/B.OTF":     OpenType,
		"x.woff2":       WOFF2,
		"fonts.otc":     Collection,
		"Font.Woff":     WOFF,
		"archive.woff3": "",
		"noext":         "",
	}
	for name, want := range cases {
		got, _ := ContainerFromName(name)
		if got != want {
			t.Errorf("%s: got %q, want %q", name, got, want)
		}
	}
}

func TestCache(t *testing.T) {
	c := &Cache{}
	static := testfont.Static()

	md1, err := c.Inspect(static, "a.ttf")
	if err != nil {
		t.Fatal(err)
	}
	md2, err := c.Inspect(static, "a.ttf")
	if err != nil {
		t.Fatal(err)
	}
	if md1 != md2 {
		t.Error("second call was not served from the cache")
	}

	_, err = c.Inspect(testfont.Variable(), "b.ttf")
	if err != nil {
		t.Fatal(err)
	}
	md3, _ := c.Inspect(static, "a.ttf")
	if md3 == md1 {
		t.Error("cache holds more than one entry")
	}

	if hits, misses := c.Stats(); hits != 1 || misses != 3 {
		t.Errorf("hits = %d, misses = %d", hits, misses)
	}
}
