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

// Package natsconn carries the task protocol over NATS.
//
// Workers subscribe to "<prefix>.req" in a queue group, so that each
// request is delivered to exactly one worker.  Every request carries its
// own reply subject below the inbox of the client, and all responses for
// the task are published there.  Cancel requests are published on
// "<prefix>.cancel" and reach every worker; workers which do not know the
// task id ignore them.
//
// A client resolves a task with a ChannelError if no worker is subscribed
// when the request is published, or if the worker holding the task stops
// sending heartbeats.
package natsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/puzpuzpuz/xsync/v4"

	"seehuhn.de/go/fontsubset/task"
)

// Defaults for the subject prefix, the worker queue group and the
// liveness checks.
const (
	DefaultPrefix    = "fontsubset"
	DefaultQueue     = "fontsubset-workers"
	DefaultHeartbeat = 5 * time.Second
	DefaultTimeout   = 4 * DefaultHeartbeat
)

const inboxSize = 64

const (
	// set by the NATS server on the reply sent when nobody is subscribed
	statusHeader = "Status"
	noResponders = "503"

	heartbeatHeader = "Fontsubset-Heartbeat"
)

type config struct {
	prefix    string
	queue     string
	heartbeat time.Duration
	timeout   time.Duration
}

// Option configures a NATS connection.
type Option func(*config)

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithQueue sets the name of the queue group used by workers.
func WithQueue(queue string) Option {
	return func(c *config) {
		c.queue = queue
	}
}

// WithHeartbeat sets how often a worker signals that it is still working
// on its tasks.
func WithHeartbeat(interval time.Duration) Option {
	return func(c *config) {
		c.heartbeat = interval
	}
}

// WithTimeout sets how long a client waits for any sign of life from the
// worker holding a task, before the task fails with a ChannelError.
// The timeout must be several times the heartbeat interval of the workers.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		prefix:    DefaultPrefix,
		queue:     DefaultQueue,
		heartbeat: DefaultHeartbeat,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *config) requestSubject() string { return c.prefix + ".req" }
func (c *config) cancelSubject() string  { return c.prefix + ".cancel" }

var errNoRoute = errors.New("no reply subject for task")

// endpoint holds the parts shared by workers and clients.
type endpoint struct {
	nc     *nats.Conn
	subs   []*nats.Subscription
	in     chan *nats.Msg
	status chan nats.Status

	once sync.Once
	done chan struct{}
}

func newEndpoint(nc *nats.Conn) *endpoint {
	return &endpoint{
		nc:     nc,
		in:     make(chan *nats.Msg, inboxSize),
		status: nc.StatusChanged(nats.CLOSED),
		done:   make(chan struct{}),
	}
}

// receive waits for the next NATS message and decodes it.
func (e *endpoint) receive(ctx context.Context) (*nats.Msg, *task.Message, error) {
	for {
		select {
		case m := <-e.in:
			msg := &task.Message{}
			if err := json.Unmarshal(m.Data, msg); err != nil {
				// skip garbage on the subject
				continue
			}
			return m, msg, nil
		case <-e.status:
			return nil, nil, nats.ErrConnectionClosed
		case <-e.done:
			return nil, nil, task.ErrClosed
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

func (e *endpoint) publish(ctx context.Context, m *nats.Msg, msg *task.Message) error {
	select {
	case <-e.done:
		return task.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if limit := e.nc.MaxPayload(); limit > 0 && int64(len(data)) > limit {
		return fmt.Errorf("message for task %q exceeds the NATS payload limit (%d > %d bytes)",
			msg.ID, len(data), limit)
	}
	m.Data = data
	return e.nc.PublishMsg(m)
}

func (e *endpoint) close() error {
	var err error
	e.once.Do(func() {
		close(e.done)
		e.nc.RemoveStatusListener(e.status)
		for _, sub := range e.subs {
			err = errors.Join(err, sub.Unsubscribe())
		}
	})
	return err
}

// Worker is the runner side of a NATS connection.
// It implements [task.Conn].
type Worker struct {
	*endpoint
	routes *xsync.Map[string, string]
}

var _ task.Conn = (*Worker)(nil)

// NewWorker subscribes to the request and cancel subjects.
// The NATS connection remains owned by the caller.
func NewWorker(nc *nats.Conn, opts ...Option) (*Worker, error) {
	cfg := newConfig(opts)
	w := &Worker{
		endpoint: newEndpoint(nc),
		routes:   xsync.NewMap[string, string](),
	}

	req, err := nc.ChanQueueSubscribe(cfg.requestSubject(), cfg.queue, w.in)
	if err != nil {
		w.close()
		return nil, err
	}
	w.subs = append(w.subs, req)
	cancel, err := nc.ChanSubscribe(cfg.cancelSubject(), w.in)
	if err != nil {
		w.close()
		return nil, err
	}
	w.subs = append(w.subs, cancel)

	if err := nc.Flush(); err != nil {
		w.close()
		return nil, err
	}
	if cfg.heartbeat > 0 {
		go w.heartbeat(cfg.heartbeat)
	}
	return w, nil
}

// heartbeat tells the clients of all tasks held by the worker that the
// worker is still alive.
func (w *Worker) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
		}
		w.routes.Range(func(id, reply string) bool {
			m := nats.NewMsg(reply)
			m.Header.Set(heartbeatHeader, id)
			return w.nc.PublishMsg(m) == nil
		})
	}
}

// Receive implements the [task.Conn] interface.
func (w *Worker) Receive(ctx context.Context) (*task.Message, error) {
	for {
		m, msg, err := w.receive(ctx)
		if err != nil {
			return nil, err
		}
		switch msg.Type {
		case task.TypeSubset, task.TypeInspect:
			if m.Reply == "" {
				continue
			}
			// a duplicate id keeps the route of the active task
			w.routes.LoadOrStore(msg.ID, m.Reply)
		case task.TypeCancel:
			if _, ok := w.routes.Load(msg.ID); !ok {
				// the task belongs to another worker
				continue
			}
		}
		return msg, nil
	}
}

// Send implements the [task.Conn] interface.  Responses are published to
// the reply subject of the request with the same id.
func (w *Worker) Send(ctx context.Context, msg *task.Message) error {
	reply, ok := w.routes.Load(msg.ID)
	if !ok {
		return fmt.Errorf("%w %q", errNoRoute, msg.ID)
	}
	if msg.Type.IsTerminal() {
		w.routes.Delete(msg.ID)
	}
	return w.publish(ctx, &nats.Msg{Subject: reply}, msg)
}

// Close unsubscribes from all subjects.
func (w *Worker) Close() error {
	return w.close()
}

// Client is the client side of a NATS connection.
// It implements [task.Conn].
type Client struct {
	*endpoint
	cfg   *config
	inbox string

	seq     atomic.Uint64
	pending *xsync.Map[string, *request] // by reply token
	lost    chan *task.Message
}

// request is a task which has not yet seen its terminal message.
type request struct {
	id       string
	subject  string
	lastSeen atomic.Int64 // unix nanoseconds
}

func (r *request) touch() {
	r.lastSeen.Store(time.Now().UnixNano())
}

var _ task.Conn = (*Client)(nil)

// NewClient subscribes to a fresh inbox for responses.
// The NATS connection remains owned by the caller.
func NewClient(nc *nats.Conn, opts ...Option) (*Client, error) {
	c := &Client{
		endpoint: newEndpoint(nc),
		cfg:      newConfig(opts),
		inbox:    nc.NewInbox(),
		pending:  xsync.NewMap[string, *request](),
		lost:     make(chan *task.Message, inboxSize),
	}
	sub, err := nc.ChanSubscribe(c.inbox+".*", c.in)
	if err != nil {
		c.close()
		return nil, err
	}
	c.subs = append(c.subs, sub)
	if err := nc.Flush(); err != nil {
		c.close()
		return nil, err
	}
	if c.cfg.timeout > 0 {
		go c.watch(c.cfg.timeout)
	}
	return c, nil
}

// watch fails the tasks whose worker has not been heard from for longer
// than timeout.
func (c *Client) watch(timeout time.Duration) {
	ticker := time.NewTicker(timeout / 4)
	defer ticker.Stop()
	for {
		var now time.Time
		select {
		case <-c.done:
			return
		case now = <-ticker.C:
		}
		c.pending.Range(func(token string, req *request) bool {
			if now.Sub(time.Unix(0, req.lastSeen.Load())) <= timeout {
				return true
			}
			if _, ok := c.pending.LoadAndDelete(token); !ok {
				return true
			}
			msg := lostMessage(req.id, fmt.Sprintf("no response from worker for %s", timeout))
			select {
			case c.lost <- msg:
				return true
			case <-c.done:
				return false
			}
		})
	}
}

// Receive implements the [task.Conn] interface.
func (c *Client) Receive(ctx context.Context) (*task.Message, error) {
	for {
		select {
		case msg := <-c.lost:
			return msg, nil
		case m := <-c.in:
			if msg := c.decode(m); msg != nil {
				return msg, nil
			}
		case <-c.status:
			return nil, nats.ErrConnectionClosed
		case <-c.done:
			return nil, task.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// decode turns a message on the inbox into a task message.  The result is
// nil for heartbeats and for messages which do not belong to a pending
// task.
func (c *Client) decode(m *nats.Msg) *task.Message {
	token := strings.TrimPrefix(m.Subject, c.inbox+".")
	req, ok := c.pending.Load(token)
	if !ok {
		return nil
	}

	if m.Header.Get(statusHeader) == noResponders {
		if _, ok := c.pending.LoadAndDelete(token); !ok {
			return nil
		}
		return lostMessage(req.id, "no worker is subscribed to "+req.subject)
	}
	req.touch()
	if m.Header.Get(heartbeatHeader) != "" {
		return nil
	}

	msg := &task.Message{}
	if err := json.Unmarshal(m.Data, msg); err != nil {
		return nil
	}
	if msg.Type.IsTerminal() {
		if _, ok := c.pending.LoadAndDelete(token); !ok {
			return nil
		}
	}
	return msg
}

// Send implements the [task.Conn] interface.
func (c *Client) Send(ctx context.Context, msg *task.Message) error {
	if msg.Type == task.TypeCancel {
		return c.publish(ctx, &nats.Msg{Subject: c.cfg.cancelSubject()}, msg)
	}

	token := strconv.FormatUint(c.seq.Add(1), 36)
	req := &request{id: msg.ID, subject: c.cfg.requestSubject()}
	req.touch()
	c.pending.Store(token, req)
	m := &nats.Msg{Subject: req.subject, Reply: c.inbox + "." + token}
	err := c.publish(ctx, m, msg)
	if err != nil {
		c.pending.Delete(token)
	}
	return err
}

// Close unsubscribes from the inbox.
func (c *Client) Close() error {
	return c.close()
}

func lostMessage(id, reason string) *task.Message {
	return &task.Message{
		Type: task.TypeError,
		ID:   id,
		Error: &task.Error{
			Kind:        task.ChannelError,
			Message:     reason,
			Recoverable: true,
		},
	}
}
