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

package task

import (
	"context"
	"errors"
	"sync"
)

// Conn is a bidirectional message channel between a client and a runner.
//
// Send and Receive may be called concurrently with each other, but
// concurrent calls to Send (or to Receive) need not be supported.
type Conn interface {
	// Send transmits a message to the peer.
	Send(ctx context.Context, msg *Message) error

	// Receive waits for the next message from the peer.
	// After the connection has been closed, Receive returns [ErrClosed].
	Receive(ctx context.Context) (*Message, error)

	// Close shuts down the connection.  Pending and future calls to
	// Send and Receive on both ends fail.
	Close() error
}

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("connection closed")

// Pipe returns two connected in-memory endpoints.  Messages sent on one
// end are received on the other, in order.  Messages are passed by
// pointer and must not be modified after sending.
func Pipe() (Conn, Conn) {
	ab := make(chan *Message, pipeBuffer)
	ba := make(chan *Message, pipeBuffer)
	shared := &pipeState{done: make(chan struct{})}
	a := &pipeEnd{send: ab, recv: ba, state: shared}
	b := &pipeEnd{send: ba, recv: ab, state: shared}
	return a, b
}

const pipeBuffer = 16

type pipeState struct {
	once sync.Once
	done chan struct{}
}

type pipeEnd struct {
	send  chan<- *Message
	recv  <-chan *Message
	state *pipeState
}

func (p *pipeEnd) Send(ctx context.Context, msg *Message) error {
	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}
	select {
	case p.send <- msg:
		return nil
	case <-p.state.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-p.recv:
		return msg, nil
	case <-p.state.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.state.once.Do(func() {
		close(p.state.done)
	})
	return nil
}
