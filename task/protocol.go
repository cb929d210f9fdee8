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

// Package task runs font subsetting jobs on behalf of a remote client.
//
// A [Runner] reads requests from a [Conn], executes them one at a time and
// sends progress events and results back over the same connection.  The
// messages exchanged are defined in this file.
package task

import (
	"seehuhn.de/go/fontsubset/axis"
	"seehuhn.de/go/fontsubset/inspect"
)

// MessageType identifies the kind of a [Message].
type MessageType string

// Requests, sent by the client.
const (
	TypeSubset  MessageType = "subset"
	TypeInspect MessageType = "inspect"
	TypeCancel  MessageType = "cancel"
)

// Responses, sent by the runner.
const (
	TypeProgress  MessageType = "progress"
	TypeResult    MessageType = "result"
	TypeMetadata  MessageType = "metadata"
	TypeError     MessageType = "error"
	TypeCancelled MessageType = "cancelled"
)

// IsTerminal reports whether a message of type t ends a task.
func (t MessageType) IsTerminal() bool {
	switch t {
	case TypeResult, TypeMetadata, TypeError, TypeCancelled:
		return true
	default:
		return false
	}
}

// Message is the unit of communication between a client and a runner.
// Exactly one of the payload fields is set, depending on Type.
// Cancel and cancelled messages carry no payload.
type Message struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`

	Subset   *SubsetRequest    `json:"subset,omitempty"`
	Inspect  *InspectRequest   `json:"inspect,omitempty"`
	Progress *Progress         `json:"progress,omitempty"`
	Result   *Result           `json:"result,omitempty"`
	Metadata *inspect.Metadata `json:"metadata,omitempty"`
	Error    *Error            `json:"error,omitempty"`
}

// SubsetRequest asks for a font to be reduced to a set of characters.
type SubsetRequest struct {
	// Font is the font file, in any of the supported container formats.
	Font []byte `json:"font"`

	// FileName is the name of the font file.  It is used to derive the
	// name of the output file.
	FileName string `json:"fileName"`

	// Codepoints lists the characters to keep.
	Codepoints []rune `json:"codepoints"`

	// Pins optionally fixes axes of a variable font to the given values.
	Pins axis.Pinning `json:"pins,omitempty"`

	// Format is the output format, one of "ttf", "otf", "woff" or
	// "woff2".  If this is empty, the format of the input is used.
	Format string `json:"format,omitempty"`
}

// InspectRequest asks for the metadata of a font.
type InspectRequest struct {
	Font     []byte `json:"font"`
	FileName string `json:"fileName"`
}

// Stage names the step a running task is in.
type Stage string

// These are the stages of a subset task, in order.
const (
	StageInitializing Stage = "initializing"
	StageSubsetting   Stage = "subsetting"
	StageCompressing  Stage = "compressing"
	StageComplete     Stage = "complete"
)

// Progress reports how far a task has advanced.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// Result is the outcome of a successful subset task.
type Result struct {
	Data         []byte   `json:"data"`
	FileName     string   `json:"fileName"`
	Format       string   `json:"format"`
	OriginalSize int      `json:"originalSize"`
	OutputSize   int      `json:"outputSize"`
	Warnings     []string `json:"warnings,omitempty"`
}

// CompressionRatio returns the output size as a fraction of the original
// size.
func (r *Result) CompressionRatio() float64 {
	if r == nil || r.OriginalSize == 0 {
		return 0
	}
	return float64(r.OutputSize) / float64(r.OriginalSize)
}

// SavedPercent returns how much smaller the output is than the input,
// in percent.
func (r *Result) SavedPercent() float64 {
	ratio := r.CompressionRatio()
	if ratio == 0 {
		return 0
	}
	return 100 * (1 - ratio)
}
