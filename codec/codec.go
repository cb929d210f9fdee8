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


// Package codec defines the calling convention of the external font
// subsetting codec.
//
// The codec lives in its own linear memory.  Font data must be copied in
// with [Codec.Malloc] and [Codec.WriteMemory] before use, and results must be
// copied out with [Codec.ReadMemory] before the next call into the codec,
// since any call may reuse or move memory.  Codec objects are referred to by
// opaque handles, which must be released explicitly.
//
// Implementations of [Codec] are not safe for concurrent use.
package codec

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"seehuhn.de/go/fontsubset/axis"
)

// Ptr is an address in the codec's linear memory.
type Ptr uint32

// Handle refers to an object owned by the codec.  The zero handle means
// that an operation failed.
type Handle uint32

// Tag is an OpenType tag, as used for variation axes.
type Tag [4]byte

// MakeTag converts a string of at most 4 bytes to a Tag.
// Short tags are padded with spaces.
func MakeTag(s string) Tag {
	if len(s) > 4 {
		panic("tag must be at most 4 bytes")
	}
	tag := Tag{' ', ' ', ' ', ' '}
	copy(tag[:], s)
	return tag
}

// Uint32 returns the tag in the big-endian integer form used by the codec.
func (tag Tag) Uint32() uint32 {
	return binary.BigEndian.Uint32(tag[:])
}

func (tag Tag) String() string {
	return string(tag[:])
}

// TagFromUint32 converts the integer form of a tag back to a Tag.
func TagFromUint32(x uint32) Tag {
	var tag Tag
	binary.BigEndian.PutUint32(tag[:], x)
	return tag
}

// Category classifies the resources which the codec hands out.
type Category int

// These are the resource categories.  Every resource acquired in one of
// these categories must be released exactly once.
const (
	Region Category = iota // memory allocated with Malloc
	Blob                   // blob handles
	Face                   // face handles, including subset results
	Input                  // subset input handles
)

func (c Category) String() string {
	switch c {
	case Region:
		return "region"
	case Blob:
		return "blob"
	case Face:
		return "face"
	case Input:
		return "input"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Codec is the interface to the font subsetting codec.
//
// Methods returning a [Handle] or [Ptr] fail with an error wrapping
// [ErrNull] if the codec returns zero.  All other errors indicate a
// failure of the codec runtime itself.
type Codec interface {
	// Malloc allocates size bytes of codec memory.
	Malloc(ctx context.Context, size uint32) (Ptr, error)
	// Free releases memory obtained from Malloc.
	Free(ctx context.Context, p Ptr) error
	// WriteMemory copies data into codec memory.
	WriteMemory(p Ptr, data []byte) error
	// ReadMemory copies n bytes out of codec memory.
	// The returned slice is owned by the caller.
	ReadMemory(p Ptr, n uint32) ([]byte, error)

	// BlobCreate wraps a memory region as a read-only blob.
	// The region must stay allocated until the blob is destroyed.
	BlobCreate(ctx context.Context, p Ptr, n uint32) (Handle, error)
	BlobDestroy(ctx context.Context, blob Handle) error
	// BlobData returns the location of the blob contents in codec memory.
	BlobData(ctx context.Context, blob Handle) (Ptr, uint32, error)

	// FaceCreate creates a face for the given face index of a blob.
	// The face holds its own reference to the blob.
	FaceCreate(ctx context.Context, blob Handle, index uint32) (Handle, error)
	FaceDestroy(ctx context.Context, face Handle) error
	// FaceReferenceBlob returns a new reference to the blob of a face.
	// The reference must be released with BlobDestroy.
	FaceReferenceBlob(ctx context.Context, face Handle) (Handle, error)
	// FaceAxes returns the variation axes of a face, keyed by tag.
	// The result is empty for static fonts.
	FaceAxes(ctx context.Context, face Handle) (axis.Table, error)

	// InputCreate creates a subset input.
	InputCreate(ctx context.Context) (Handle, error)
	InputDestroy(ctx context.Context, input Handle) error
	// InputUnicodeSet returns the set of code points to retain.  The set
	// is owned by the input and must not be released.
	InputUnicodeSet(ctx context.Context, input Handle) (Handle, error)
	// SetAdd adds a code point to a set.
	SetAdd(ctx context.Context, set Handle, cp uint32) error
	// PinAxisLocation pins an axis of the face to a fixed value.
	// The result is false if the codec rejected the pin.
	PinAxisLocation(ctx context.Context, input, face Handle, tag Tag, value float32) (bool, error)

	// Subset computes the subset of a face.  The result is a new face,
	// which must be released with FaceDestroy.
	Subset(ctx context.Context, face, input Handle) (Handle, error)

	// Close releases the codec and all memory it holds.
	Close(ctx context.Context) error
}

// ErrNull indicates that the codec returned a null pointer or handle.
var ErrNull = errors.New("codec returned null")

// CallError reports a failed call into the codec.
type CallError struct {
	Func string
	Err  error
}

func (err *CallError) Error() string {
	return "codec: " + err.Func + ": " + err.Err.Error()
}

func (err *CallError) Unwrap() error {
	return err.Err
}

// NullError returns the error used when Func returned zero.
func NullError(function string) error {
	return &CallError{Func: function, Err: ErrNull}
}
