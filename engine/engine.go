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


// Package engine subsets fonts using an external codec.
//
// The engine copies the font into codec memory, loads it as a face,
// optionally pins variation axes, runs the subsetter and copies the result
// back out.  Every codec resource acquired along the way is released
// exactly once, in reverse order of acquisition, whether the operation
// succeeds or fails.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"seehuhn.de/go/fontsubset/axis"
	"seehuhn.de/go/fontsubset/codec"
	"seehuhn.de/go/fontsubset/repertoire"
)

// PinPolicy decides what happens if an axis cannot be pinned.
type PinPolicy int

const (
	// Permissive records a warning for every failed pin and subsets the
	// font with the remaining pins.
	Permissive PinPolicy = iota

	// Strict fails the subset operation if any pin fails.
	Strict
)

func (p PinPolicy) String() string {
	switch p {
	case Permissive:
		return "permissive"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("PinPolicy(%d)", int(p))
	}
}

// ParsePinPolicy converts the name of a policy into a PinPolicy.
func ParsePinPolicy(s string) (PinPolicy, error) {
	switch s {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return 0, fmt.Errorf("unknown pin policy %q", s)
	}
}

// Engine runs subset operations on a codec.
//
// An Engine must not be used concurrently, since the underlying codec is
// single threaded.
type Engine struct {
	codec  codec.Codec
	policy PinPolicy
	logger *slog.Logger
}

// Option configures an [Engine].
type Option func(*Engine)

// WithPinPolicy sets the policy for failed axis pins.
// The default is [Permissive].
func WithPinPolicy(p PinPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithLogger sets the logger.  By default, nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New returns an engine which uses the given codec.
func New(c codec.Codec, opts ...Option) *Engine {
	e := &Engine{
		codec:  c,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Output is the result of a subset operation.
type Output struct {
	// Data is the subsetted font.  The slice is owned by the caller.
	Data []byte

	// Pinned lists the tags of the axes which were pinned.
	Pinned []string

	// Warnings describes pins which could not be applied.
	Warnings []string
}

// SubsetOption configures a single call to [Engine.Subset].
type SubsetOption func(*subsetConfig)

type subsetConfig struct {
	declared []axis.VariableAxis
}

// DeclaredAxes tells the engine which axes the font itself declares, for
// example as found by the inspect package.  If the font declares axes but
// the codec reports none, every pin counts as failed.
func DeclaredAxes(axes []axis.VariableAxis) SubsetOption {
	return func(cfg *subsetConfig) {
		cfg.declared = axes
	}
}

// Subset reduces a font to the glyphs needed for the code points in rep.
//
// If pins is not empty and the font is variable, the given axes are fixed
// to the given values.  Pins for static fonts are ignored.  Axis pins which
// cannot be applied are handled according to the pin policy.
//
// The blob is not modified.  Errors are of type *SubsetError.
func (e *Engine) Subset(ctx context.Context, blob []byte, rep *repertoire.Repertoire, pins axis.Pinning, opts ...SubsetOption) (*Output, error) {
	cfg := &subsetConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(blob) == 0 {
		return nil, &SubsetError{Op: "load", Err: errEmptyInput}
	}
	if uint64(len(blob)) > math.MaxUint32 {
		return nil, &SubsetError{Op: "load", Err: errInputTooLarge}
	}

	out, err := e.run(ctx, blob, rep, pins, cfg)
	if err != nil {
		e.logger.Debug("subset failed", "error", err)
		return nil, err
	}
	e.logger.Debug("subset done",
		"input", len(blob),
		"output", len(out.Data),
		"codepoints", rep.Len(),
		"pinned", out.Pinned)
	return out, nil
}

func (e *Engine) run(ctx context.Context, blob []byte, rep *repertoire.Repertoire, pins axis.Pinning, cfg *subsetConfig) (out *Output, err error) {
	mem, err := newRegion(ctx, e.codec, blob)
	if err != nil {
		return nil, codecError("load", err)
	}
	defer e.release(ctx, &err, mem)

	b, err := newBlob(ctx, mem)
	if err != nil {
		return nil, codecError("load", err)
	}
	defer e.release(ctx, &err, b)

	face, err := newFace(ctx, b, 0)
	if err != nil {
		return nil, codecError("load", err)
	}
	defer e.release(ctx, &err, face)

	// The face keeps its own reference to the blob.
	if err := b.Close(ctx); err != nil {
		return nil, codecError("release blob", err)
	}

	in, err := newInput(ctx, e.codec)
	if err != nil {
		return nil, codecError("input", err)
	}
	defer e.release(ctx, &err, in)

	set, err := e.codec.InputUnicodeSet(ctx, in.h)
	if err != nil {
		return nil, codecError("input", err)
	}
	for _, r := range rep.Runes() {
		if err := e.codec.SetAdd(ctx, set, uint32(r)); err != nil {
			return nil, codecError("input", err)
		}
	}

	out = &Output{}
	if len(pins) > 0 {
		if err := e.pin(ctx, face, in, pins, cfg.declared, out); err != nil {
			return nil, err
		}
	}

	resHandle, err := e.codec.Subset(ctx, face.h, in.h)
	if err != nil {
		return nil, codecError("subset", err)
	}
	result := &faceHandle{c: e.codec, h: resHandle}
	defer e.release(ctx, &err, result)

	resBlob, err := referenceBlob(ctx, result)
	if err != nil {
		return nil, codecError("subset", err)
	}
	defer e.release(ctx, &err, resBlob)

	// Any later call may reuse the memory, so the data is copied out
	// right away.
	out.Data, err = resBlob.bytes(ctx)
	if err != nil {
		return nil, codecError("read result", err)
	}
	return out, nil
}

// pin applies the axis pins to the subset input.
func (e *Engine) pin(ctx context.Context, face *faceHandle, in *inputHandle, pins axis.Pinning, declared []axis.VariableAxis, out *Output) error {
	table, err := e.codec.FaceAxes(ctx, face.h)
	if err != nil {
		return codecError("pin", err)
	}
	axes := axis.Canonical(table)
	if len(axes) == 0 && len(declared) == 0 {
		e.logger.Debug("font is not variable, ignoring axis pins", "pins", pins.String())
		return nil
	}

	for _, tag := range pins.Tags() {
		value := pins[tag]
		pinErr := &PinError{Tag: tag, Value: value}

		a, found := axis.Find(axes, tag)
		switch {
		case len(axes) == 0:
			pinErr.Reason = "codec reports no variation axes"
		case !found:
			pinErr.Reason = "font has no such axis"
		case !a.Contains(value):
			pinErr.Reason = fmt.Sprintf("value outside range %g to %g", a.Min, a.Max)
		default:
			ok, err := e.codec.PinAxisLocation(ctx, in.h, face.h, codec.MakeTag(a.Tag), float32(value))
			if err != nil {
				return codecError("pin", err)
			}
			if ok {
				out.Pinned = append(out.Pinned, a.Tag)
				continue
			}
			pinErr.Reason = "rejected by codec"
		}

		if e.policy == Strict {
			return &SubsetError{Op: "pin", Err: pinErr}
		}
		e.logger.Warn("cannot pin axis", "tag", tag, "value", value, "reason", pinErr.Reason)
		out.Warnings = append(out.Warnings, pinErr.Error())
	}
	return nil
}

// release closes a codec resource.  A failure is reported through err,
// unless an earlier error is already present.
func (e *Engine) release(ctx context.Context, err *error, r releaser) {
	cerr := r.Close(ctx)
	if cerr == nil {
		return
	}
	e.logger.Warn("cannot release codec resource",
		"category", r.category().String(),
		"error", cerr)
	if *err == nil {
		*err = codecError("release "+r.category().String(), cerr)
	}
}

// codecError wraps an error returned by the codec.  A null result means
// that the codec rejected the input, any other error is a failure of the
// codec runtime and may go away on retry.
func codecError(op string, err error) *SubsetError {
	var sErr *SubsetError
	if errors.As(err, &sErr) {
		return sErr
	}
	return &SubsetError{
		Op:        op,
		Err:       err,
		Transient: !errors.Is(err, codec.ErrNull) && !errors.Is(err, errEmptyResult),
	}
}
