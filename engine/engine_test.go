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


package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"seehuhn.de/go/fontsubset/axis"
	"seehuhn.de/go/fontsubset/codec"
	"seehuhn.de/go/fontsubset/inspect"
	"seehuhn.de/go/fontsubset/internal/mockcodec"
	"seehuhn.de/go/fontsubset/internal/testfont"
	"seehuhn.de/go/fontsubset/repertoire"
)

func TestIdempotent(t *testing.T) {
	ctx := context.Background()
	font := testfont.Static()
	rep := repertoire.FromString("Hello, World!")

	mock := mockcodec.New()
	e := New(mock)
	out1, err := e.Subset(ctx, font, rep, nil)
	if err != nil {
		t.Fatal(err)
	}
	out2, err := e.Subset(ctx, font, rep, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out1.Data, out2.Data) {
		t.Error("subsetting twice gave different results")
	}
	if !bytes.Equal(font, testfont.Static()) {
		t.Error("input font was modified")
	}
	if err := mock.Check(); err != nil {
		t.Error(err)
	}
}

func TestRepertoireCoverage(t *testing.T) {
	font := testfont.Static()
	mock := mockcodec.New()
	e := New(mock)

	out, err := e.Subset(context.Background(), font, repertoire.FromString("ABA"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]uint32{'A', 'B'}, mock.Added()); d != "" {
		t.Errorf("unexpected code points (-want +got):\n%s", d)
	}
	if len(out.Data) >= len(font) {
		t.Errorf("output has %d bytes, input %d", len(out.Data), len(font))
	}
	if err := mock.Check(); err != nil {
		t.Error(err)
	}
}

func TestEmptyRepertoire(t *testing.T) {
	font := testfont.Static()
	mock := mockcodec.New()
	e := New(mock)

	out, err := e.Subset(context.Background(), font, repertoire.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Data) == 0 {
		t.Fatal("empty output")
	}
	if n := mock.Calls("SetAdd"); n != 0 {
		t.Errorf("%d calls to SetAdd", n)
	}

	// only .notdef is left
	glyf := testfont.ReadTables(out.Data)["glyf"]
	orig := testfont.ReadTables(font)["glyf"]
	if len(glyf)*100 > len(orig) {
		t.Errorf("glyf table has %d bytes, original %d", len(glyf), len(orig))
	}
}

func TestReleaseOrder(t *testing.T) {
	mock := mockcodec.New()
	var calls []string
	mock.OnCall = func(method string) {
		switch method {
		case "Malloc", "Free", "BlobCreate", "BlobDestroy", "FaceCreate",
			"FaceDestroy", "InputCreate", "InputDestroy", "Subset",
			"FaceReferenceBlob":
			calls = append(calls, method)
		}
	}
	e := New(mock)
	_, err := e.Subset(context.Background(), testfont.Static(), repertoire.FromString("x"), nil)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Malloc", "BlobCreate", "FaceCreate", "BlobDestroy", "InputCreate",
		"Subset", "FaceReferenceBlob",
		"BlobDestroy", "FaceDestroy", "InputDestroy", "FaceDestroy", "Free",
	}
	if d := cmp.Diff(want, calls); d != "" {
		t.Errorf("unexpected call sequence (-want +got):\n%s", d)
	}
}

// TestResourceSafety injects a failure into every codec method in turn
// and checks that every resource is still released exactly once.
func TestResourceSafety(t *testing.T) {
	methods := []string{
		"Malloc", "WriteMemory", "BlobCreate", "FaceCreate", "BlobDestroy",
		"InputCreate", "InputUnicodeSet", "SetAdd", "FaceAxes",
		"PinAxisLocation", "Subset", "FaceReferenceBlob", "BlobData",
		"ReadMemory", "FaceDestroy", "InputDestroy", "Free",
	}
	releases := map[codec.Category]string{
		codec.Region: "Free",
		codec.Blob:   "BlobDestroy",
		codec.Face:   "FaceDestroy",
		codec.Input:  "InputDestroy",
	}
	pins := axis.Pinning{"wght": 700}

	for _, inject := range []string{"fail", "null"} {
		for _, method := range methods {
			mock := mockcodec.New()
			if inject == "fail" {
				mock.FailOn = method
			} else {
				mock.NullOn = method
			}
			e := New(mock)
			_, err := e.Subset(context.Background(), testfont.Variable(), repertoire.FromString("AB"), pins)

			var sErr *SubsetError
			if mock.Calls(method) > 0 && inject == "fail" && !errors.As(err, &sErr) {
				t.Errorf("%s %s: got %v, want SubsetError", inject, method, err)
			}
			for cat, release := range releases {
				if a, r := mock.Acquired(cat), mock.Calls(release); a != r {
					t.Errorf("%s %s: %s acquired %d times, released %d times",
						inject, method, cat, a, r)
				}
			}
			isRelease := false
			for _, release := range releases {
				isRelease = isRelease || release == method
			}
			if isRelease && inject == "fail" {
				// the injected failure itself leaks the resource
				continue
			}
			if err := mock.Check(); err != nil {
				t.Errorf("%s %s: %v", inject, method, err)
			}
		}
	}
}

func TestNullResult(t *testing.T) {
	mock := mockcodec.New()
	mock.NullOn = "Subset"
	e := New(mock)
	_, err := e.Subset(context.Background(), testfont.Static(), repertoire.FromString("A"), nil)

	var sErr *SubsetError
	if !errors.As(err, &sErr) {
		t.Fatalf("got %v, want SubsetError", err)
	}
	if sErr.Transient {
		t.Error("null result reported as transient")
	}
	if err := mock.Check(); err != nil {
		t.Error(err)
	}
}

func TestRuntimeFailureIsTransient(t *testing.T) {
	mock := mockcodec.New()
	mock.FailOn = "Subset"
	e := New(mock)
	_, err := e.Subset(context.Background(), testfont.Static(), repertoire.FromString("A"), nil)

	var sErr *SubsetError
	if !errors.As(err, &sErr) || !sErr.Transient {
		t.Fatalf("got %v, want transient SubsetError", err)
	}
	if !errors.Is(err, mockcodec.ErrInjected) {
		t.Error("cause is not reported")
	}
}

func TestEmptyInput(t *testing.T) {
	mock := mockcodec.New()
	e := New(mock)
	_, err := e.Subset(context.Background(), nil, repertoire.FromString("A"), nil)
	var sErr *SubsetError
	if !errors.As(err, &sErr) {
		t.Fatalf("got %v, want SubsetError", err)
	}
	if n := mock.Calls(); n != 0 {
		t.Errorf("%d codec calls for empty input", n)
	}
}

func TestPinVariable(t *testing.T) {
	font := testfont.Variable()
	rep := repertoire.FromString("Hamburgefonstiv")

	mock := mockcodec.New()
	e := New(mock)
	unpinned, err := e.Subset(context.Background(), font, rep, nil)
	if err != nil {
		t.Fatal(err)
	}
	pinned, err := e.Subset(context.Background(), font, rep, axis.Pinning{"wght": 700})
	if err != nil {
		t.Fatal(err)
	}

	if d := cmp.Diff([]string{"wght"}, pinned.Pinned); d != "" {
		t.Errorf("unexpected pinned axes (-want +got):\n%s", d)
	}
	if len(pinned.Warnings) != 0 {
		t.Errorf("unexpected warnings: %q", pinned.Warnings)
	}
	if _, hasFvar := testfont.ReadTables(pinned.Data)["fvar"]; hasFvar {
		t.Error("pinned font is still variable")
	}
	if len(pinned.Data) >= len(unpinned.Data) {
		t.Errorf("pinned font has %d bytes, unpinned %d", len(pinned.Data), len(unpinned.Data))
	}
	if err := mock.Check(); err != nil {
		t.Error(err)
	}
}

func TestPinPolicy(t *testing.T) {
	cases := []struct {
		pins axis.Pinning
		desc string
	}{
		{axis.Pinning{"wdth": 100}, "unknown axis"},
		{axis.Pinning{"wght": 1000}, "out of range"},
	}
	for _, c := range cases {
		mock := mockcodec.New()
		e := New(mock)
		out, err := e.Subset(context.Background(), testfont.Variable(), repertoire.FromString("A"), c.pins)
		if err != nil {
			t.Errorf("%s, permissive: %v", c.desc, err)
		} else if len(out.Warnings) != 1 || len(out.Pinned) != 0 {
			t.Errorf("%s, permissive: warnings %q, pinned %q", c.desc, out.Warnings, out.Pinned)
		}

		mock = mockcodec.New()
		e = New(mock, WithPinPolicy(Strict))
		_, err = e.Subset(context.Background(), testfont.Variable(), repertoire.FromString("A"), c.pins)
		var sErr *SubsetError
		var pErr *PinError
		if !errors.As(err, &sErr) || !errors.As(err, &pErr) || sErr.Transient {
			t.Errorf("%s, strict: got %v", c.desc, err)
		}
		if err := mock.Check(); err != nil {
			t.Errorf("%s, strict: %v", c.desc, err)
		}
	}
}

// TestPinStatic checks that pins for a static font are silently ignored.
func TestPinStatic(t *testing.T) {
	for _, policy := range []PinPolicy{Permissive, Strict} {
		mock := mockcodec.New()
		e := New(mock, WithPinPolicy(policy))
		out, err := e.Subset(context.Background(), testfont.Static(), repertoire.FromString("A"),
			axis.Pinning{"wght": 700, "zzzz": 1})
		if err != nil {
			t.Fatalf("%s: %v", policy, err)
		}
		if len(out.Warnings) != 0 {
			t.Errorf("%s: unexpected warnings %q", policy, out.Warnings)
		}
		if n := mock.Calls("PinAxisLocation"); n != 0 {
			t.Errorf("%s: %d calls to PinAxisLocation", policy, n)
		}
	}
}

// noAxesCodec behaves like a codec built without the variation API.
type noAxesCodec struct {
	*mockcodec.Codec
}

func (noAxesCodec) FaceAxes(context.Context, codec.Handle) (axis.Table, error) {
	return nil, nil
}

// TestPinWithoutCodecAxes checks that pins are not dropped silently when
// the font declares axes which the codec cannot see.
func TestPinWithoutCodecAxes(t *testing.T) {
	font := testfont.Variable()
	md, err := inspect.Inspect(font)
	if err != nil {
		t.Fatal(err)
	}
	if !md.IsVariable {
		t.Fatal("test font is not variable")
	}
	pins := axis.Pinning{"wght": 700}

	mock := mockcodec.New()
	e := New(noAxesCodec{mock})
	out, err := e.Subset(context.Background(), font, repertoire.FromString("A"), pins,
		DeclaredAxes(md.Axes))
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Pinned) != 0 || len(out.Warnings) != 1 {
		t.Errorf("permissive: pinned %q, warnings %q", out.Pinned, out.Warnings)
	}
	if err := mock.Check(); err != nil {
		t.Error(err)
	}

	mock = mockcodec.New()
	e = New(noAxesCodec{mock}, WithPinPolicy(Strict))
	_, err = e.Subset(context.Background(), font, repertoire.FromString("A"), pins,
		DeclaredAxes(md.Axes))
	var pErr *PinError
	if !errors.As(err, &pErr) || pErr.Tag != "wght" {
		t.Errorf("strict: got %v", err)
	}
	if n := mock.Calls("PinAxisLocation"); n != 0 {
		t.Errorf("%d calls to PinAxisLocation", n)
	}
	if err := mock.Check(); err != nil {
		t.Error(err)
	}

	// without declared axes the font looks static
	mock = mockcodec.New()
	e = New(noAxesCodec{mock}, WithPinPolicy(Strict))
	out, err = e.Subset(context.Background(), font, repertoire.FromString("A"), pins)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Warnings) != 0 {
		t.Errorf("unexpected warnings %q", out.Warnings)
	}
}

func TestParsePinPolicy(t *testing.T) {
	for _, p := range []PinPolicy{Permissive, Strict} {
		got, err := ParsePinPolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePinPolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePinPolicy("lenient"); err == nil {
		t.Error("invalid policy accepted")
	}
}
