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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// StreamConn is a [Conn] which exchanges messages as JSON lines over a
// byte stream, for example the standard input and output of a worker
// process.
type StreamConn struct {
	rwc io.ReadWriteCloser

	wmu sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder

	in   chan *Message
	done chan struct{}
	once sync.Once

	// err is the reason the reader stopped.  It is written before in is
	// closed.
	err error
}

// NewStreamConn starts reading messages from rwc.  The returned connection
// owns rwc and closes it when the connection is closed.
func NewStreamConn(rwc io.ReadWriteCloser) *StreamConn {
	w := bufio.NewWriter(rwc)
	c := &StreamConn{
		rwc:  rwc,
		w:    w,
		enc:  json.NewEncoder(w),
		in:   make(chan *Message),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *StreamConn) readLoop() {
	defer close(c.in)

	dec := json.NewDecoder(bufio.NewReader(c.rwc))
	for {
		msg := &Message{}
		err := dec.Decode(msg)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			c.err = err
			return
		}
		select {
		case c.in <- msg:
		case <-c.done:
			c.err = ErrClosed
			return
		}
	}
}

// Send implements the [Conn] interface.
func (c *StreamConn) Send(ctx context.Context, msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.enc.Encode(msg); err != nil {
		return err
	}
	return c.w.Flush()
}

// Receive implements the [Conn] interface.
func (c *StreamConn) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-c.in:
		if !ok {
			return nil, c.err
		}
		return msg, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements the [Conn] interface.
func (c *StreamConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.rwc.Close()
	})
	return err
}
