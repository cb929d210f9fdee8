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


// Package hbwasm runs the HarfBuzz subsetter, compiled to WebAssembly,
// inside the wazero runtime.
//
// The WebAssembly module must export malloc, free and the hb_* functions of
// the HarfBuzz blob, face, set and subset APIs.  Imports from
// "wasi_snapshot_preview1" are provided by wazero, imports from "env" are
// replaced by stubs.
package hbwasm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"seehuhn.de/go/fontsubset/axis"
	"seehuhn.de/go/fontsubset/codec"
)

// EnvPath is the environment variable which can hold the location of
// the hb-subset.wasm file.
const EnvPath = "FONTSUBSET_HB_WASM"

// hbMemoryModeWritable tells HarfBuzz that it may modify blob data in place.
const hbMemoryModeWritable = 2

// axisInfoSize is the size of hb_ot_var_axis_info_t.
const axisInfoSize = 32

var requiredExports = []string{
	"malloc",
	"free",
	"hb_blob_create",
	"hb_blob_destroy",
	"hb_blob_get_data",
	"hb_blob_get_length",
	"hb_face_create",
	"hb_face_destroy",
	"hb_face_reference_blob",
	"hb_set_add",
	"hb_subset_input_create_or_fail",
	"hb_subset_input_destroy",
	"hb_subset_input_unicode_set",
	"hb_subset_or_fail",
}

var optionalExports = []string{
	"_initialize",
	"hb_subset_input_pin_axis_location",
	"hb_ot_var_get_axis_count",
	"hb_ot_var_get_axis_infos",
}

// Codec is a [codec.Codec] backed by a WebAssembly instance of
// the HarfBuzz subsetter.
type Codec struct {
	mu     sync.Mutex
	rt     wazero.Runtime
	mod    api.Module
	mem    api.Memory
	fns    map[string]api.Function
	logger *slog.Logger
}

var _ codec.Codec = (*Codec)(nil)

// Option configures a [Codec].
type Option func(*options)

type options struct {
	logger     *slog.Logger
	limitPages uint32
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMemoryLimit limits the linear memory of the codec to the given
// number of 64 KiB pages.
func WithMemoryLimit(pages uint32) Option {
	return func(o *options) {
		o.limitPages = pages
	}
}

// Load reads the WebAssembly module from the named file and instantiates it.
// If path is empty, the value of the environment variable [EnvPath] is used.
func Load(ctx context.Context, path string, opts ...Option) (*Codec, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return nil, ErrNoPath
	}
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(ctx, wasm, opts...)
}

// New instantiates the WebAssembly module given as wasm.
func New(ctx context.Context, wasm []byte, opts ...Option) (*Codec, error) {
	o := &options{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		limitPages: 16384, // 1 GiB
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(o.limitPages)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	c, err := instantiate(ctx, rt, wasm, o.logger)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return c, nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, wasm []byte, logger *slog.Logger) (*Codec, error) {
	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, &LoadError{Err: err}
	}

	exports := compiled.ExportedFunctions()
	var missing []string
	for _, name := range requiredExports {
		if _, ok := exports[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &LoadError{Err: &MissingExportsError{Names: missing}}
	}

	needWASI := false
	env := make(map[string]api.FunctionDefinition)
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		switch module {
		case wasi_snapshot_preview1.ModuleName:
			needWASI = true
		case "env":
			env[name] = def
		default:
			return nil, &LoadError{Err: fmt.Errorf("unsupported import %s.%s", module, name)}
		}
	}
	if needWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			return nil, &LoadError{Err: err}
		}
	}
	if len(env) > 0 {
		b := rt.NewHostModuleBuilder("env")
		for name, def := range env {
			b.NewFunctionBuilder().
				WithGoModuleFunction(envStub(name, len(def.ResultTypes()), logger),
					def.ParamTypes(), def.ResultTypes()).
				Export(name)
		}
		if _, err := b.Instantiate(ctx); err != nil {
			return nil, &LoadError{Err: err}
		}
	}

	modCfg := wazero.NewModuleConfig().WithName("hb-subset").WithStartFunctions()
	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, &LoadError{Err: errors.New("module has no exported memory")}
	}

	c := &Codec{
		rt:     rt,
		mod:    mod,
		mem:    mem,
		fns:    make(map[string]api.Function),
		logger: logger,
	}
	for _, name := range slices.Concat(requiredExports, optionalExports) {
		if fn := mod.ExportedFunction(name); fn != nil {
			c.fns[name] = fn
		}
	}
	if _, ok := c.fns["_initialize"]; ok {
		if _, err := c.call(ctx, "_initialize"); err != nil {
			return nil, &LoadError{Err: err}
		}
	}
	logger.Debug("codec loaded",
		"exports", len(exports),
		"variations", c.fns["hb_ot_var_get_axis_infos"] != nil)
	return c, nil
}

// envStub returns a host function which replaces an import from "env".
// Functions which signal a fatal condition trap, all others return zero.
func envStub(name string, numResults int, logger *slog.Logger) api.GoModuleFunc {
	fatal := strings.Contains(name, "abort") || strings.Contains(name, "assert")
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		if fatal {
			panic(fmt.Errorf("hb-subset called %s", name))
		}
		logger.Debug("stub import called", "name", name)
		for i := range numResults {
			stack[i] = 0
		}
	}
}

// Close releases the runtime and all codec memory.
func (c *Codec) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rt.Close(ctx)
}

func (c *Codec) call(ctx context.Context, name string, args ...uint64) (uint64, error) {
	fn := c.fns[name]
	if fn == nil {
		return 0, &codec.CallError{Func: name, Err: errNotExported}
	}
	res, err := fn.Call(ctx, args...)
	if err != nil {
		return 0, &codec.CallError{Func: name, Err: err}
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0], nil
}

// callHandle calls a function returning a pointer or handle.
func (c *Codec) callHandle(ctx context.Context, name string, args ...uint64) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.call(ctx, name, args...)
	if err != nil {
		return 0, err
	}
	h := api.DecodeU32(res)
	if h == 0 {
		return 0, codec.NullError(name)
	}
	return h, nil
}

// callVoid calls a function whose result is not needed.
func (c *Codec) callVoid(ctx context.Context, name string, args ...uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.call(ctx, name, args...)
	return err
}

// Malloc implements [codec.Codec].
func (c *Codec) Malloc(ctx context.Context, size uint32) (codec.Ptr, error) {
	p, err := c.callHandle(ctx, "malloc", api.EncodeU32(size))
	return codec.Ptr(p), err
}

// Free implements [codec.Codec].
func (c *Codec) Free(ctx context.Context, p codec.Ptr) error {
	return c.callVoid(ctx, "free", api.EncodeU32(uint32(p)))
}

// WriteMemory implements [codec.Codec].
func (c *Codec) WriteMemory(p codec.Ptr, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mem.Write(uint32(p), data) {
		return &codec.CallError{Func: "memory write", Err: errOutOfRange}
	}
	return nil
}

// ReadMemory implements [codec.Codec].
func (c *Codec) ReadMemory(p codec.Ptr, n uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.mem.Read(uint32(p), n)
	if !ok {
		return nil, &codec.CallError{Func: "memory read", Err: errOutOfRange}
	}
	// view aliases the linear memory, which the next call may change
	return slices.Clone(view), nil
}

// BlobCreate implements [codec.Codec].
func (c *Codec) BlobCreate(ctx context.Context, p codec.Ptr, n uint32) (codec.Handle, error) {
	h, err := c.callHandle(ctx, "hb_blob_create",
		api.EncodeU32(uint32(p)), api.EncodeU32(n), api.EncodeU32(hbMemoryModeWritable), 0, 0)
	return codec.Handle(h), err
}

// BlobDestroy implements [codec.Codec].
func (c *Codec) BlobDestroy(ctx context.Context, blob codec.Handle) error {
	return c.callVoid(ctx, "hb_blob_destroy", api.EncodeU32(uint32(blob)))
}

// BlobData implements [codec.Codec].
func (c *Codec) BlobData(ctx context.Context, blob codec.Handle) (codec.Ptr, uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.call(ctx, "hb_blob_get_length", api.EncodeU32(uint32(blob)))
	if err != nil {
		return 0, 0, err
	}
	p, err := c.call(ctx, "hb_blob_get_data", api.EncodeU32(uint32(blob)), 0)
	if err != nil {
		return 0, 0, err
	}
	return codec.Ptr(api.DecodeU32(p)), api.DecodeU32(n), nil
}

// FaceCreate implements [codec.Codec].
func (c *Codec) FaceCreate(ctx context.Context, blob codec.Handle, index uint32) (codec.Handle, error) {
	h, err := c.callHandle(ctx, "hb_face_create", api.EncodeU32(uint32(blob)), api.EncodeU32(index))
	return codec.Handle(h), err
}

// FaceDestroy implements [codec.Codec].
func (c *Codec) FaceDestroy(ctx context.Context, face codec.Handle) error {
	return c.callVoid(ctx, "hb_face_destroy", api.EncodeU32(uint32(face)))
}

// FaceReferenceBlob implements [codec.Codec].
func (c *Codec) FaceReferenceBlob(ctx context.Context, face codec.Handle) (codec.Handle, error) {
	h, err := c.callHandle(ctx, "hb_face_reference_blob", api.EncodeU32(uint32(face)))
	return codec.Handle(h), err
}

// FaceAxes implements [codec.Codec].
//
// If the module was built without the variation API, all fonts are
// reported as static.
func (c *Codec) FaceAxes(ctx context.Context, face codec.Handle) (axis.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fns["hb_ot_var_get_axis_count"] == nil || c.fns["hb_ot_var_get_axis_infos"] == nil {
		c.logger.Debug("codec has no variation API")
		return nil, nil
	}

	res, err := c.call(ctx, "hb_ot_var_get_axis_count", api.EncodeU32(uint32(face)))
	if err != nil {
		return nil, err
	}
	count := api.DecodeU32(res)
	if count == 0 {
		return nil, nil
	}

	// layout: the in/out count, followed by the axis info array
	size := 4 + count*axisInfoSize
	res, err = c.call(ctx, "malloc", api.EncodeU32(size))
	if err != nil {
		return nil, err
	}
	buf := api.DecodeU32(res)
	if buf == 0 {
		return nil, codec.NullError("malloc")
	}
	defer func() {
		if _, err := c.call(ctx, "free", api.EncodeU32(buf)); err != nil {
			c.logger.Warn("cannot free axis info buffer", "error", err)
		}
	}()

	if !c.mem.WriteUint32Le(buf, count) {
		return nil, &codec.CallError{Func: "memory write", Err: errOutOfRange}
	}
	_, err = c.call(ctx, "hb_ot_var_get_axis_infos",
		api.EncodeU32(uint32(face)), 0, api.EncodeU32(buf), api.EncodeU32(buf+4))
	if err != nil {
		return nil, err
	}
	n, ok := c.mem.ReadUint32Le(buf)
	if !ok || n > count {
		return nil, &codec.CallError{Func: "hb_ot_var_get_axis_infos", Err: errOutOfRange}
	}
	data, ok := c.mem.Read(buf+4, n*axisInfoSize)
	if !ok {
		return nil, &codec.CallError{Func: "memory read", Err: errOutOfRange}
	}
	return decodeAxisInfos(data), nil
}

// decodeAxisInfos decodes an array of hb_ot_var_axis_info_t.
func decodeAxisInfos(data []byte) axis.Table {
	res := make(axis.Table)
	for i := 0; i+axisInfoSize <= len(data); i += axisInfoSize {
		rec := data[i : i+axisInfoSize]
		tag := codec.TagFromUint32(le32(rec[4:8]))
		res[tag.String()] = axis.Range{
			Min:     float64(api.DecodeF32(uint64(le32(rec[16:20])))),
			Default: float64(api.DecodeF32(uint64(le32(rec[20:24])))),
			Max:     float64(api.DecodeF32(uint64(le32(rec[24:28])))),
		}
	}
	return res
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// InputCreate implements [codec.Codec].
func (c *Codec) InputCreate(ctx context.Context) (codec.Handle, error) {
	h, err := c.callHandle(ctx, "hb_subset_input_create_or_fail")
	return codec.Handle(h), err
}

// InputDestroy implements [codec.Codec].
func (c *Codec) InputDestroy(ctx context.Context, input codec.Handle) error {
	return c.callVoid(ctx, "hb_subset_input_destroy", api.EncodeU32(uint32(input)))
}

// InputUnicodeSet implements [codec.Codec].
func (c *Codec) InputUnicodeSet(ctx context.Context, input codec.Handle) (codec.Handle, error) {
	h, err := c.callHandle(ctx, "hb_subset_input_unicode_set", api.EncodeU32(uint32(input)))
	return codec.Handle(h), err
}

// SetAdd implements [codec.Codec].
func (c *Codec) SetAdd(ctx context.Context, set codec.Handle, cp uint32) error {
	return c.callVoid(ctx, "hb_set_add", api.EncodeU32(uint32(set)), api.EncodeU32(cp))
}

// PinAxisLocation implements [codec.Codec].
func (c *Codec) PinAxisLocation(ctx context.Context, input, face codec.Handle, tag codec.Tag, value float32) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fns["hb_subset_input_pin_axis_location"] == nil {
		c.logger.Warn("codec cannot pin axes", "tag", tag.String())
		return false, nil
	}
	res, err := c.call(ctx, "hb_subset_input_pin_axis_location",
		api.EncodeU32(uint32(input)), api.EncodeU32(uint32(face)),
		api.EncodeU32(tag.Uint32()), api.EncodeF32(value))
	if err != nil {
		return false, err
	}
	return api.DecodeU32(res) != 0, nil
}

// Subset implements [codec.Codec].
func (c *Codec) Subset(ctx context.Context, face, input codec.Handle) (codec.Handle, error) {
	h, err := c.callHandle(ctx, "hb_subset_or_fail", api.EncodeU32(uint32(face)), api.EncodeU32(uint32(input)))
	return codec.Handle(h), err
}
