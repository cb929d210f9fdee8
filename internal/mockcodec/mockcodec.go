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


// Package mockcodec implements an in-process [codec.Codec] for tests.
//
// The mock keeps its own emulated linear memory and counts every
// acquisition and release of a resource, so that tests can verify that
// callers release everything exactly once.  Freed memory is overwritten,
// which turns most use-after-free bugs into failed subset operations.
//
// The subsetting itself is simplified: glyph IDs are retained, the
// outlines of unused glyphs are dropped, and the cmap table is rebuilt for
// the requested BMP code points.  If all axes of a variable font are
// pinned, the variation tables are removed.
package mockcodec

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"seehuhn.de/go/fontsubset/axis"
	"seehuhn.de/go/fontsubset/codec"
)

const poison = 0xDD

type blob struct {
	ptr   codec.Ptr
	n     uint32
	refs  int
	owned bool // the memory belongs to the blob, not to the caller
}

type face struct {
	blob codec.Handle
}

type input struct {
	set      codec.Handle
	unicodes map[uint32]bool
	pins     map[string]float32
}

// Codec is a counting mock of the subsetting codec.
// The zero value is not usable, use [New].
type Codec struct {
	// FailOn makes the named method fail with a runtime error.
	FailOn string

	// NullOn makes the named method return a null pointer or handle.
	NullOn string

	// OnCall, if set, is called at the start of every method, before
	// the codec is locked.
	OnCall func(method string)

	mu      sync.Mutex
	mem     []byte
	regions map[codec.Ptr]uint32
	blobs   map[codec.Handle]*blob
	faces   map[codec.Handle]*face
	inputs  map[codec.Handle]*input
	sets    map[codec.Handle]*input
	handle  codec.Handle
	closed  bool

	calls    map[string]int
	added    []uint32
	acquired [4]int
	released [4]int
	faults   []string
}

var _ codec.Codec = (*Codec)(nil)

// New returns a new mock codec.
func New() *Codec {
	return &Codec{
		mem:     make([]byte, 8), // keep address 0 unused
		regions: make(map[codec.Ptr]uint32),
		blobs:   make(map[codec.Handle]*blob),
		faces:   make(map[codec.Handle]*face),
		inputs:  make(map[codec.Handle]*input),
		sets:    make(map[codec.Handle]*input),
		calls:   make(map[string]int),
	}
}

// ErrInjected is the error returned by methods named in FailOn.
var ErrInjected = errors.New("injected failure")

var errClosed = errors.New("codec is closed")

// begin is called at the start of every method.  On success, the codec is
// locked and the caller must unlock it.
func (c *Codec) begin(method string) error {
	if c.OnCall != nil {
		c.OnCall(method)
	}
	c.mu.Lock()
	c.calls[method]++
	if c.closed {
		c.mu.Unlock()
		return &codec.CallError{Func: method, Err: errClosed}
	}
	if c.FailOn == method {
		c.mu.Unlock()
		return &codec.CallError{Func: method, Err: ErrInjected}
	}
	return nil
}

func (c *Codec) newHandle() codec.Handle {
	c.handle++
	return c.handle
}

func (c *Codec) fault(format string, args ...any) {
	c.faults = append(c.faults, fmt.Sprintf(format, args...))
}

// alloc reserves memory in the arena.
func (c *Codec) alloc(size uint32) codec.Ptr {
	p := codec.Ptr(len(c.mem))
	c.mem = append(c.mem, make([]byte, (size+7)&^7)...)
	c.regions[p] = size
	return p
}

func (c *Codec) release(p codec.Ptr) bool {
	size, ok := c.regions[p]
	if !ok {
		return false
	}
	delete(c.regions, p)
	for i := range size {
		c.mem[uint32(p)+i] = poison
	}
	return true
}

// Malloc implements [codec.Codec].
func (c *Codec) Malloc(_ context.Context, size uint32) (codec.Ptr, error) {
	if err := c.begin("Malloc"); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	if c.NullOn == "Malloc" {
		return 0, codec.NullError("Malloc")
	}
	p := c.alloc(size)
	c.acquired[codec.Region]++
	return p, nil
}

// Free implements [codec.Codec].
func (c *Codec) Free(_ context.Context, p codec.Ptr) error {
	if err := c.begin("Free"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if p == 0 {
		return nil
	}
	if !c.release(p) {
		c.fault("Free(%d): not allocated", p)
		return nil
	}
	c.released[codec.Region]++
	return nil
}

// WriteMemory implements [codec.Codec].
func (c *Codec) WriteMemory(p codec.Ptr, data []byte) error {
	if err := c.begin("WriteMemory"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	size, ok := c.regions[p]
	if !ok || uint32(len(data)) > size {
		c.fault("WriteMemory(%d, %d bytes): outside allocation", p, len(data))
		return &codec.CallError{Func: "WriteMemory", Err: errors.New("address out of range")}
	}
	copy(c.mem[p:], data)
	return nil
}

// ReadMemory implements [codec.Codec].
func (c *Codec) ReadMemory(p codec.Ptr, n uint32) ([]byte, error) {
	if err := c.begin("ReadMemory"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	end := uint64(p) + uint64(n)
	if end > uint64(len(c.mem)) {
		return nil, &codec.CallError{Func: "ReadMemory", Err: errors.New("address out of range")}
	}
	return slices.Clone(c.mem[p:end]), nil
}

// BlobCreate implements [codec.Codec].
func (c *Codec) BlobCreate(_ context.Context, p codec.Ptr, n uint32) (codec.Handle, error) {
	if err := c.begin("BlobCreate"); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	if c.NullOn == "BlobCreate" {
		return 0, codec.NullError("BlobCreate")
	}
	if size, ok := c.regions[p]; !ok || n > size {
		c.fault("BlobCreate(%d, %d): outside allocation", p, n)
	}
	h := c.newHandle()
	c.blobs[h] = &blob{ptr: p, n: n, refs: 1}
	c.acquired[codec.Blob]++
	return h, nil
}

// unref drops one reference to a blob.
func (c *Codec) unref(h codec.Handle) bool {
	b, ok := c.blobs[h]
	if !ok {
		return false
	}
	b.refs--
	if b.refs == 0 {
		delete(c.blobs, h)
		if b.owned {
			c.release(b.ptr)
		}
	}
	return true
}

// BlobDestroy implements [codec.Codec].
func (c *Codec) BlobDestroy(_ context.Context, h codec.Handle) error {
	if err := c.begin("BlobDestroy"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if !c.unref(h) {
		c.fault("BlobDestroy(%d): unknown blob", h)
		return nil
	}
	c.released[codec.Blob]++
	return nil
}

// BlobData implements [codec.Codec].
func (c *Codec) BlobData(_ context.Context, h codec.Handle) (codec.Ptr, uint32, error) {
	if err := c.begin("BlobData"); err != nil {
		return 0, 0, err
	}
	defer c.mu.Unlock()
	b, ok := c.blobs[h]
	if !ok {
		c.fault("BlobData(%d): unknown blob", h)
		return 0, 0, nil
	}
	return b.ptr, b.n, nil
}

// FaceCreate implements [codec.Codec].
func (c *Codec) FaceCreate(_ context.Context, blobHandle codec.Handle, index uint32) (codec.Handle, error) {
	if err := c.begin("FaceCreate"); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	if c.NullOn == "FaceCreate" {
		return 0, codec.NullError("FaceCreate")
	}
	b, ok := c.blobs[blobHandle]
	if !ok {
		c.fault("FaceCreate(%d): unknown blob", blobHandle)
		return 0, codec.NullError("FaceCreate")
	}
	if index != 0 {
		c.fault("FaceCreate: unexpected face index %d", index)
	}
	b.refs++
	h := c.newHandle()
	c.faces[h] = &face{blob: blobHandle}
	c.acquired[codec.Face]++
	return h, nil
}

// FaceDestroy implements [codec.Codec].
func (c *Codec) FaceDestroy(_ context.Context, h codec.Handle) error {
	if err := c.begin("FaceDestroy"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	f, ok := c.faces[h]
	if !ok {
		c.fault("FaceDestroy(%d): unknown face", h)
		return nil
	}
	delete(c.faces, h)
	c.unref(f.blob)
	c.released[codec.Face]++
	return nil
}

// FaceReferenceBlob implements [codec.Codec].
func (c *Codec) FaceReferenceBlob(_ context.Context, h codec.Handle) (codec.Handle, error) {
	if err := c.begin("FaceReferenceBlob"); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	if c.NullOn == "FaceReferenceBlob" {
		return 0, codec.NullError("FaceReferenceBlob")
	}
	f, ok := c.faces[h]
	if !ok {
		c.fault("FaceReferenceBlob(%d): unknown face", h)
		return 0, codec.NullError("FaceReferenceBlob")
	}
	c.blobs[f.blob].refs++
	c.acquired[codec.Blob]++
	return f.blob, nil
}

// faceData returns the font data of a face.  The caller must hold the
// lock and must not keep the slice.
func (c *Codec) faceData(h codec.Handle) ([]byte, bool) {
	f, ok := c.faces[h]
	if !ok {
		return nil, false
	}
	b := c.blobs[f.blob]
	return c.mem[b.ptr : uint32(b.ptr)+b.n], true
}

// FaceAxes implements [codec.Codec].
func (c *Codec) FaceAxes(_ context.Context, h codec.Handle) (axis.Table, error) {
	if err := c.begin("FaceAxes"); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	data, ok := c.faceData(h)
	if !ok {
		c.fault("FaceAxes(%d): unknown face", h)
		return nil, nil
	}
	return fontAxes(data), nil
}

// InputCreate implements [codec.Codec].
func (c *Codec) InputCreate(context.Context) (codec.Handle, error) {
	if err := c.begin("InputCreate"); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	if c.NullOn == "InputCreate" {
		return 0, codec.NullError("InputCreate")
	}
	in := &input{
		unicodes: make(map[uint32]bool),
		pins:     make(map[string]float32),
	}
	h := c.newHandle()
	in.set = c.newHandle()
	c.inputs[h] = in
	c.sets[in.set] = in
	c.acquired[codec.Input]++
	return h, nil
}

// InputDestroy implements [codec.Codec].
func (c *Codec) InputDestroy(_ context.Context, h codec.Handle) error {
	if err := c.begin("InputDestroy"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	in, ok := c.inputs[h]
	if !ok {
		c.fault("InputDestroy(%d): unknown input", h)
		return nil
	}
	delete(c.inputs, h)
	delete(c.sets, in.set)
	c.released[codec.Input]++
	return nil
}

// InputUnicodeSet implements [codec.Codec].
func (c *Codec) InputUnicodeSet(_ context.Context, h codec.Handle) (codec.Handle, error) {
	if err := c.begin("InputUnicodeSet"); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	in, ok := c.inputs[h]
	if !ok {
		c.fault("InputUnicodeSet(%d): unknown input", h)
		return 0, codec.NullError("InputUnicodeSet")
	}
	return in.set, nil
}

// SetAdd implements [codec.Codec].
func (c *Codec) SetAdd(_ context.Context, set codec.Handle, cp uint32) error {
	if err := c.begin("SetAdd"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	in, ok := c.sets[set]
	if !ok {
		c.fault("SetAdd(%d): unknown set", set)
		return nil
	}
	in.unicodes[cp] = true
	c.added = append(c.added, cp)
	return nil
}

// PinAxisLocation implements [codec.Codec].
func (c *Codec) PinAxisLocation(_ context.Context, inputHandle, faceHandle codec.Handle, tag codec.Tag, value float32) (bool, error) {
	if err := c.begin("PinAxisLocation"); err != nil {
		return false, err
	}
	defer c.mu.Unlock()
	in, ok := c.inputs[inputHandle]
	if !ok {
		c.fault("PinAxisLocation: unknown input %d", inputHandle)
		return false, nil
	}
	data, ok := c.faceData(faceHandle)
	if !ok {
		c.fault("PinAxisLocation: unknown face %d", faceHandle)
		return false, nil
	}
	r, ok := fontAxes(data)[tag.String()]
	if !ok || float64(value) < r.Min || float64(value) > r.Max {
		return false, nil
	}
	in.pins[tag.String()] = value
	return true, nil
}

// Subset implements [codec.Codec].
func (c *Codec) Subset(_ context.Context, faceHandle, inputHandle codec.Handle) (codec.Handle, error) {
	if err := c.begin("Subset"); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	if c.NullOn == "Subset" {
		return 0, codec.NullError("Subset")
	}
	in, ok := c.inputs[inputHandle]
	if !ok {
		c.fault("Subset: unknown input %d", inputHandle)
		return 0, codec.NullError("Subset")
	}
	data, ok := c.faceData(faceHandle)
	if !ok {
		c.fault("Subset: unknown face %d", faceHandle)
		return 0, codec.NullError("Subset")
	}

	out, err := subsetFont(data, in.unicodes, in.pins)
	if err != nil {
		return 0, codec.NullError("Subset")
	}

	p := c.alloc(uint32(len(out)))
	copy(c.mem[p:], out)
	bh := c.newHandle()
	c.blobs[bh] = &blob{ptr: p, n: uint32(len(out)), refs: 1, owned: true}
	fh := c.newHandle()
	c.faces[fh] = &face{blob: bh}
	c.acquired[codec.Face]++
	return fh, nil
}

// Close implements [codec.Codec].
func (c *Codec) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Calls returns the number of calls to the named method.
// If no names are given, the total number of calls is returned.
func (c *Codec) Calls(methods ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(methods) == 0 {
		total := 0
		for _, n := range c.calls {
			total += n
		}
		return total
	}
	total := 0
	for _, m := range methods {
		total += c.calls[m]
	}
	return total
}

// Added returns all code points passed to SetAdd, in call order.
func (c *Codec) Added() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.added)
}

// Acquired returns the number of resources acquired in a category.
func (c *Codec) Acquired(cat codec.Category) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired[cat]
}

// Released returns the number of resources released in a category.
func (c *Codec) Released(cat codec.Category) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released[cat]
}

// Check returns an error describing leaked resources and invalid calls.
func (c *Codec) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, f := range c.faults {
		errs = append(errs, errors.New(f))
	}
	for cat := codec.Region; cat <= codec.Input; cat++ {
		if c.acquired[cat] != c.released[cat] {
			errs = append(errs, fmt.Errorf("%s: %d acquired, %d released",
				cat, c.acquired[cat], c.released[cat]))
		}
	}
	return errors.Join(errs...)
}
