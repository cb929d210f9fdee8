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

package repertoire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromStringDedup(t *testing.T) {
	rep := FromString("ABA")
	if d := cmp.Diff([]rune{'A', 'B'}, rep.Runes()); d != "" {
		t.Errorf("unexpected runes (-want +got):\n%s", d)
	}
}

func TestFromStringNormalization(t *testing.T) {
	// "e" followed by a combining acute accent
	rep := FromString("e\u0301")
	for _, r := range []rune{'e', 0x0301, 0x00E9} {
		if !rep.Contains(r) {
			t.Errorf("missing U+%04X", r)
		}
	}
	if rep.Len() != 3 {
		t.Errorf("Len() = %d, want 3", rep.Len())
	}
}

func TestInvalidRunes(t *testing.T) {
	rep := New(-1, 0xD800, 0x110000, 'x')
	if d := cmp.Diff([]rune{'x'}, rep.Runes()); d != "" {
		t.Errorf("unexpected runes (-want +got):\n%s", d)
	}
}

func TestZeroValue(t *testing.T) {
	var rep Repertoire
	if rep.Len() != 0 || rep.Contains('A') || rep.String() != "" {
		t.Error("zero value is not empty")
	}
	rep.Add('A')
	if !rep.Contains('A') {
		t.Error("Add on zero value failed")
	}
}

func TestParse(t *testing.T) {
	rep, err := Parse("U+0041-0043, u+00e9 ,U+1F600")
	if err != nil {
		t.Fatal(err)
	}
	want := []rune{'A', 'B', 'C', 0xE9, 0x1F600}
	if d := cmp.Diff(want, rep.Runes()); d != "" {
		t.Errorf("unexpected runes (-want +got):\n%s", d)
	}
	if s := rep.String(); s != "U+0041-0043,U+00E9,U+1F600" {
		t.Errorf("String() = %q", s)
	}

	for _, bad := range []string{"A", "U+", "U+0043-0041", "U+110000", "@nonsense"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) succeeded", bad)
		}
	}
}

func TestPresets(t *testing.T) {
	for _, name := range Presets() {
		rep, err := Preset(name)
		if err != nil {
			t.Fatal(err)
		}
		if rep.Len() == 0 {
			t.Errorf("preset %q is empty", name)
		}
	}

	digits, err := Parse("@digits")
	if err != nil {
		t.Fatal(err)
	}
	if digits.Len() != 10 || !digits.Contains('7') {
		t.Errorf("unexpected digits preset: %s", digits)
	}
}

func TestMerge(t *testing.T) {
	a := New('a', 'c')
	b := New('b', 'c')
	a.Merge(b)
	a.Merge(nil)
	if d := cmp.Diff([]rune{'a', 'b', 'c'}, a.Runes()); d != "" {
		t.Errorf("unexpected runes (-want +got):\n%s", d)
	}
}
