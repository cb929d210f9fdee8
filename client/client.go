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

// Package client submits subset and inspect requests to a task runner.
//
// Each request is represented by a [Task], which delivers progress events
// on a channel and resolves exactly once, with a result or an error.
// A single [Client] can have many tasks in flight.  The runner executes
// them in the order they were submitted.
package client

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nuid"
	"github.com/puzpuzpuz/xsync/v4"

	"seehuhn.de/go/fontsubset/inspect"
	"seehuhn.de/go/fontsubset/task"
)

const defaultProgressBuffer = 8

// Client is the client side of a task protocol connection.
// A Client is safe for concurrent use.
type Client struct {
	conn           task.Conn
	logger         *slog.Logger
	progressBuffer int

	prefix  string
	seq     atomic.Uint64
	pending *xsync.Map[string, *Task]

	sendMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	err       error // set before done is closed
}

// Option configures a [Client].
type Option func(*Client)

// WithLogger sets the logger used by the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithProgressBuffer sets the capacity of the progress channel of each
// task.  Progress events are dropped when the channel is full.
func WithProgressBuffer(n int) Option {
	return func(c *Client) {
		c.progressBuffer = max(n, 0)
	}
}

// New starts a client on the given connection.  The client owns the
// connection and closes it in [Client.Close].
func New(conn task.Conn, opts ...Option) *Client {
	c := &Client{
		conn:           conn,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		progressBuffer: defaultProgressBuffer,
		prefix:         nuid.Next(),
		pending:        xsync.NewMap[string, *Task](),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Subset submits a subset request.  The returned task resolves when the
// runner has finished the request.  The request must not be modified
// until the task has resolved.
func (c *Client) Subset(ctx context.Context, req *task.SubsetRequest) (*Task, error) {
	t, err := c.submit(ctx, &task.Message{Type: task.TypeSubset, Subset: req})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Inspect asks the runner for the metadata of a font and waits for the
// answer.  If ctx is cancelled before the answer arrives, the request is
// cancelled.
func (c *Client) Inspect(ctx context.Context, blob []byte, fileName string) (*inspect.Metadata, error) {
	t, err := c.submit(ctx, &task.Message{
		Type:    task.TypeInspect,
		Inspect: &task.InspectRequest{Font: blob, FileName: fileName},
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		_ = t.Cancel(context.WithoutCancel(ctx))
		return nil, ctx.Err()
	}
	if t.err != nil {
		return nil, t.err
	}
	return t.metadata, nil
}

// Close shuts down the connection.  All pending tasks resolve with an
// error of kind [task.ChannelError].
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	<-c.done
	return err
}

func (c *Client) submit(ctx context.Context, msg *task.Message) (*Task, error) {
	id := c.prefix + "." + strconv.FormatUint(c.seq.Add(1), 10)
	t := &Task{
		id:       id,
		client:   c,
		progress: make(chan task.Progress, c.progressBuffer),
		done:     make(chan struct{}),
	}
	c.pending.Store(id, t)

	select {
	case <-c.done:
		c.pending.Delete(id)
		return nil, c.channelError()
	default:
	}

	msg.ID = id
	if err := c.send(ctx, msg); err != nil {
		c.pending.Delete(id)
		return nil, err
	}
	c.logger.Debug("task submitted", "type", msg.Type, "id", id)
	return t, nil
}

func (c *Client) send(ctx context.Context, msg *task.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	err := c.conn.Send(ctx, msg)
	if err != nil && ctx.Err() == nil {
		return task.Classify(&task.ConnError{Op: "send", Err: err})
	}
	return err
}

func (c *Client) channelError() error {
	return task.Classify(c.err)
}

func (c *Client) readLoop() {
	var err error
	for {
		var msg *task.Message
		msg, err = c.conn.Receive(context.Background())
		if err != nil {
			break
		}
		c.dispatch(msg)
	}

	c.logger.Debug("connection closed", "error", err)
	c.err = &task.ConnError{Op: "receive", Err: err}
	close(c.done)

	c.pending.Range(func(id string, t *Task) bool {
		c.pending.Delete(id)
		t.fail(c.channelError())
		return true
	})
}

func (c *Client) dispatch(msg *task.Message) {
	t, ok := c.pending.Load(msg.ID)
	if !ok {
		c.logger.Debug("dropping message for unknown task",
			"type", msg.Type,
			"id", msg.ID)
		return
	}

	switch {
	case msg.Type == task.TypeProgress:
		if msg.Progress == nil {
			return
		}
		select {
		case t.progress <- *msg.Progress:
		default:
			c.logger.Debug("dropping progress event", "id", msg.ID)
		}
	case msg.Type.IsTerminal():
		c.pending.Delete(msg.ID)
		t.resolve(msg)
	default:
		c.logger.Warn("unexpected message from runner",
			"type", msg.Type,
			"id", msg.ID)
	}
}

// Task is a request which has been submitted to the runner.
type Task struct {
	id       string
	client   *Client
	progress chan task.Progress

	once     sync.Once
	done     chan struct{}
	result   *task.Result
	metadata *inspect.Metadata
	err      error
}

// ID returns the identifier of the task.
func (t *Task) ID() string {
	return t.id
}

// Progress returns a channel which delivers progress events.  Events are
// dropped if the channel is full.  The channel is closed when the task
// resolves.
func (t *Task) Progress() <-chan task.Progress {
	return t.progress
}

// Done returns a channel which is closed when the task has resolved.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task has resolved or ctx is done.
//
// Failed tasks return an error of type [*task.Error].  Use errors.Is with
// [task.ErrCancelled] to check whether the task was cancelled.
func (t *Task) Wait(ctx context.Context) (*task.Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel asks the runner to stop the task.  The task may still complete
// successfully, if the runner had already passed the last point where
// cancellation is checked.  Cancel does not wait for the task to resolve.
func (t *Task) Cancel(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	default:
	}
	return t.client.send(ctx, &task.Message{Type: task.TypeCancel, ID: t.id})
}

func (t *Task) resolve(msg *task.Message) {
	t.once.Do(func() {
		switch msg.Type {
		case task.TypeResult:
			t.result = msg.Result
		case task.TypeMetadata:
			t.metadata = msg.Metadata
		case task.TypeCancelled:
			t.err = &task.Error{
				Kind:        task.Cancelled,
				Message:     "task cancelled",
				Recoverable: true,
			}
		default:
			t.err = msg.Error
			if msg.Error == nil {
				t.err = &task.Error{Kind: task.SubsetFailed, Message: "unknown error"}
			}
		}
		close(t.progress)
		close(t.done)
	})
}

func (t *Task) fail(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.progress)
		close(t.done)
	})
}
