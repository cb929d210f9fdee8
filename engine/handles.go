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
	"context"

	"seehuhn.de/go/fontsubset/codec"
)

// The types in this file own one codec resource each.  Close releases the
// resource and is safe to call more than once, so that every resource can
// be released by a deferred Close and, where needed, earlier by an explicit
// call.

type releaser interface {
	Close(ctx context.Context) error
	category() codec.Category
}

// region is memory in the codec's address space.
type region struct {
	c    codec.Codec
	ptr  codec.Ptr
	size uint32
}

// newRegion copies data into newly allocated codec memory.
func newRegion(ctx context.Context, c codec.Codec, data []byte) (*region, error) {
	p, err := c.Malloc(ctx, uint32(len(data)))
	if err != nil {
		return nil, err
	}
	r := &region{c: c, ptr: p, size: uint32(len(data))}
	if err := c.WriteMemory(p, data); err != nil {
		r.Close(ctx)
		return nil, err
	}
	return r, nil
}

func (r *region) Close(ctx context.Context) error {
	if r.ptr == 0 {
		return nil
	}
	p := r.ptr
	r.ptr = 0
	return r.c.Free(ctx, p)
}

func (r *region) category() codec.Category { return codec.Region }

// blobHandle is a reference to a codec blob.
type blobHandle struct {
	c codec.Codec
	h codec.Handle
}

func newBlob(ctx context.Context, mem *region) (*blobHandle, error) {
	h, err := mem.c.BlobCreate(ctx, mem.ptr, mem.size)
	if err != nil {
		return nil, err
	}
	return &blobHandle{c: mem.c, h: h}, nil
}

// referenceBlob returns a new reference to the blob of a face.
func referenceBlob(ctx context.Context, f *faceHandle) (*blobHandle, error) {
	h, err := f.c.FaceReferenceBlob(ctx, f.h)
	if err != nil {
		return nil, err
	}
	return &blobHandle{c: f.c, h: h}, nil
}

// bytes copies the contents of the blob out of codec memory.
func (b *blobHandle) bytes(ctx context.Context) ([]byte, error) {
	p, n, err := b.c.BlobData(ctx, b.h)
	if err != nil {
		return nil, err
	}
	if p == 0 || n == 0 {
		return nil, errEmptyResult
	}
	return b.c.ReadMemory(p, n)
}

func (b *blobHandle) Close(ctx context.Context) error {
	if b.h == 0 {
		return nil
	}
	h := b.h
	b.h = 0
	return b.c.BlobDestroy(ctx, h)
}

func (b *blobHandle) category() codec.Category { return codec.Blob }

// faceHandle is a codec face, either loaded from a blob or produced by
// the subsetter.
type faceHandle struct {
	c codec.Codec
	h codec.Handle
}

func newFace(ctx context.Context, b *blobHandle, index uint32) (*faceHandle, error) {
	h, err := b.c.FaceCreate(ctx, b.h, index)
	if err != nil {
		return nil, err
	}
	return &faceHandle{c: b.c, h: h}, nil
}

func (f *faceHandle) Close(ctx context.Context) error {
	if f.h == 0 {
		return nil
	}
	h := f.h
	f.h = 0
	return f.c.FaceDestroy(ctx, h)
}

func (f *faceHandle) category() codec.Category { return codec.Face }

// inputHandle holds the parameters of one subset operation.
type inputHandle struct {
	c codec.Codec
	h codec.Handle
}

func newInput(ctx context.Context, c codec.Codec) (*inputHandle, error) {
	h, err := c.InputCreate(ctx)
	if err != nil {
		return nil, err
	}
	return &inputHandle{c: c, h: h}, nil
}

func (in *inputHandle) Close(ctx context.Context) error {
	if in.h == 0 {
		return nil
	}
	h := in.h
	in.h = 0
	return in.c.InputDestroy(ctx, h)
}

func (in *inputHandle) category() codec.Category { return codec.Input }
