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
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"seehuhn.de/go/fontsubset/engine"
	"seehuhn.de/go/fontsubset/inspect"
	"seehuhn.de/go/fontsubset/repertoire"
	"seehuhn.de/go/fontsubset/woff"
)

// State is the life cycle state of a task.
type State int

// These are the possible task states.  A task starts out queued, and
// ends in exactly one of the last three states.
const (
	StateQueued State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Progress milestones, in percent.
const (
	percentInitializing = 10
	percentSubsetting   = 30
	percentCompressing  = 70
	percentComplete     = 100
)

// sendTimeout bounds the time spent delivering a single message, so that a
// stalled peer cannot block the worker forever.
const sendTimeout = 30 * time.Second

// Runner executes subset and inspect requests received over a [Conn].
//
// Requests are queued and executed one at a time, in the order they were
// received.  A queued task can be cancelled at any time.  A running task
// notices cancellation only between stages, so a cancel request may arrive
// too late to stop a task from completing.
type Runner struct {
	conn    Conn
	engine  *engine.Engine
	cache   *inspect.Cache
	logger  *slog.Logger
	metrics Metrics

	sendMu sync.Mutex

	mu     sync.Mutex
	active map[string]*job
	queue  []*job
	wake   chan struct{}
}

type job struct {
	msg    *Message
	ctx    context.Context
	cancel context.CancelFunc
	start  time.Time

	// state is protected by Runner.mu
	state State
}

// Option configures a [Runner].
type Option func(*Runner)

// WithLogger sets the logger used by the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetrics sets the collector which receives the runner's metrics.
func WithMetrics(m Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithCache sets the metadata cache used for inspect requests.  This
// allows several runners to share one cache.
func WithCache(c *inspect.Cache) Option {
	return func(r *Runner) {
		r.cache = c
	}
}

// NewRunner returns a runner which serves requests from conn, using eng to
// subset fonts.
func NewRunner(conn Conn, eng *engine.Engine, opts ...Option) *Runner {
	r := &Runner{
		conn:    conn,
		engine:  eng,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: NewNop(),
		active:  make(map[string]*job),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = &inspect.Cache{}
	}
	return r
}

// Run serves requests until the peer closes the connection, the connection
// fails, or ctx is cancelled.  On return, all tasks have been cancelled.
//
// If the connection fails, the returned error is a [*ConnError].
// Otherwise, Run returns nil.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.work(ctx)
	}()

	err := r.read(ctx)
	if err != nil {
		r.logger.Error("connection failed", "error", err)
	}

	cancel()
	wg.Wait()
	r.drain(ctx)
	return err
}

func (r *Runner) read(ctx context.Context) error {
	for {
		msg, err := r.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return nil
			}
			return &ConnError{Op: "receive", Err: err}
		}

		switch msg.Type {
		case TypeSubset, TypeInspect:
			r.enqueue(ctx, msg)
		case TypeCancel:
			r.cancelTask(ctx, msg.ID)
		default:
			r.logger.Warn("ignoring unexpected message",
				"type", msg.Type,
				"id", msg.ID)
		}
	}
}

func (r *Runner) enqueue(ctx context.Context, msg *Message) {
	if msg.ID == "" {
		r.logger.Warn("ignoring request without id", "type", msg.Type)
		return
	}

	r.mu.Lock()
	if _, dup := r.active[msg.ID]; dup {
		r.mu.Unlock()
		r.logger.Warn("ignoring request with duplicate id",
			"type", msg.Type,
			"id", msg.ID)
		return
	}
	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{
		msg:    msg,
		ctx:    jobCtx,
		cancel: cancel,
		start:  time.Now(),
		state:  StateQueued,
	}
	r.active[msg.ID] = j
	r.queue = append(r.queue, j)
	depth := len(r.queue)
	r.mu.Unlock()

	r.logger.Debug("task queued", "type", msg.Type, "id", msg.ID)
	r.metrics.TaskQueued(msg.Type)
	r.metrics.QueueDepth(depth)

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// cancelTask requests cancellation of a task.  Queued tasks are removed
// from the queue and resolved immediately, running tasks stop at the next
// stage boundary.
func (r *Runner) cancelTask(ctx context.Context, id string) {
	r.mu.Lock()
	j, ok := r.active[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("cancel for unknown task", "id", id)
		return
	}
	j.cancel()
	if j.state != StateQueued {
		r.mu.Unlock()
		r.logger.Debug("cancelling running task", "id", id)
		return
	}
	r.queue = slices.DeleteFunc(r.queue, func(q *job) bool { return q == j })
	j.state = StateCancelled
	depth := len(r.queue)
	r.mu.Unlock()

	r.metrics.QueueDepth(depth)
	r.finish(ctx, j, &Message{Type: TypeCancelled})
}

// next removes the first task from the queue and marks it as running.
func (r *Runner) next() *job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil
	}
	j := r.queue[0]
	r.queue = slices.Delete(r.queue, 0, 1)
	j.state = StateRunning
	r.metrics.QueueDepth(len(r.queue))
	return j
}

func (r *Runner) work(ctx context.Context) {
	for ctx.Err() == nil {
		j := r.next()
		if j == nil {
			select {
			case <-r.wake:
			case <-ctx.Done():
			}
			continue
		}
		r.execute(ctx, j)
	}
}

// drain resolves all tasks which are still queued after the worker has
// stopped.
func (r *Runner) drain(ctx context.Context) {
	r.mu.Lock()
	queue := r.queue
	r.queue = nil
	for _, j := range queue {
		j.state = StateCancelled
	}
	r.mu.Unlock()

	for _, j := range queue {
		j.cancel()
		r.finish(ctx, j, &Message{Type: TypeCancelled})
	}
}

func (r *Runner) execute(ctx context.Context, j *job) {
	r.logger.Debug("task started", "type", j.msg.Type, "id", j.msg.ID)

	var resp *Message
	switch j.msg.Type {
	case TypeSubset:
		resp = r.subset(j)
	case TypeInspect:
		resp = r.inspect(j)
	}
	r.finish(ctx, j, resp)
}

// finish sends the terminal message of a task and forgets the task.
func (r *Runner) finish(ctx context.Context, j *job, resp *Message) {
	resp.ID = j.msg.ID
	var state State
	switch resp.Type {
	case TypeCancelled:
		state = StateCancelled
	case TypeError:
		state = StateFailed
	default:
		state = StateSucceeded
	}

	err := r.send(ctx, resp)
	if err != nil {
		r.logger.Warn("cannot deliver task outcome",
			"id", j.msg.ID,
			"state", state,
			"error", err)
	}

	r.mu.Lock()
	j.state = state
	delete(r.active, j.msg.ID)
	r.mu.Unlock()
	j.cancel()

	elapsed := time.Since(j.start)
	r.metrics.TaskFinished(j.msg.Type, state, elapsed)
	logArgs := []any{"type", j.msg.Type, "id", j.msg.ID, "state", state, "elapsed", elapsed}
	if resp.Error != nil {
		logArgs = append(logArgs, "error", resp.Error)
	}
	r.logger.Info("task finished", logArgs...)
}

func (r *Runner) send(ctx context.Context, msg *Message) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	return r.conn.Send(ctx, msg)
}

func (r *Runner) progress(j *job, stage Stage, percent int, message string) {
	err := r.send(j.ctx, &Message{
		Type: TypeProgress,
		ID:   j.msg.ID,
		Progress: &Progress{
			Stage:   stage,
			Percent: percent,
			Message: message,
		},
	})
	if err != nil {
		r.logger.Debug("cannot deliver progress", "id", j.msg.ID, "error", err)
	}
}

func (r *Runner) subset(j *job) *Message {
	req := j.msg.Subset
	if req == nil {
		return errorMessage(&Error{Kind: SubsetFailed, Message: "missing subset request"})
	}

	r.progress(j, StageInitializing, percentInitializing, "")
	if j.ctx.Err() != nil {
		return &Message{Type: TypeCancelled}
	}
	stageStart := time.Now()
	raw, container, err := inspect.Extract(req.Font, req.FileName)
	if err != nil {
		return errorMessage(err)
	}
	md, err := r.cache.Inspect(req.Font, req.FileName)
	if err != nil {
		return errorMessage(err)
	}
	format, err := OutputFormat(req.Format, container)
	if err != nil {
		return errorMessage(err)
	}
	pins, err := req.Pins.Normalize()
	if err != nil {
		return errorMessage(&Error{
			Kind:    SubsetFailed,
			Message: "invalid axis pins: " + err.Error(),
		})
	}
	if len(pins) > 0 && !md.IsVariable {
		r.logger.Info("ignoring axis pins for static font",
			"id", j.msg.ID,
			"pins", pins)
		pins = nil
	}
	rep := repertoire.New(req.Codepoints...)
	r.metrics.StageCompleted(StageInitializing, time.Since(stageStart))

	if j.ctx.Err() != nil {
		return &Message{Type: TypeCancelled}
	}
	r.progress(j, StageSubsetting, percentSubsetting,
		fmt.Sprintf("keeping %d characters", rep.Len()))
	stageStart = time.Now()
	// Once started, the codec call runs to completion.
	out, err := r.engine.Subset(context.WithoutCancel(j.ctx), raw, rep, pins,
		engine.DeclaredAxes(md.Axes))
	if err != nil {
		return errorMessage(err)
	}
	r.metrics.StageCompleted(StageSubsetting, time.Since(stageStart))

	data := out.Data
	if format == "woff" || format == "woff2" {
		if j.ctx.Err() != nil {
			return &Message{Type: TypeCancelled}
		}
		r.progress(j, StageCompressing, percentCompressing, "")
		stageStart = time.Now()
		var enc *woff.Encoded
		if format == "woff2" {
			enc, err = woff.EncodeWOFF2(data)
		} else {
			enc, err = woff.EncodeWOFF(data)
		}
		if err != nil {
			return errorMessage(err)
		}
		data = enc.Data
		r.metrics.StageCompleted(StageCompressing, time.Since(stageStart))
	}

	res := &Result{
		Data:         data,
		FileName:     OutputName(req.FileName, format),
		Format:       format,
		OriginalSize: len(req.Font),
		OutputSize:   len(data),
		Warnings:     out.Warnings,
	}
	r.metrics.OutputSize(format, res.OriginalSize, res.OutputSize)
	r.progress(j, StageComplete, percentComplete, "")
	return &Message{Type: TypeResult, Result: res}
}

func (r *Runner) inspect(j *job) *Message {
	req := j.msg.Inspect
	if req == nil {
		return errorMessage(&Error{Kind: UnsupportedFormat, Message: "missing inspect request"})
	}
	if j.ctx.Err() != nil {
		return &Message{Type: TypeCancelled}
	}
	md, err := r.cache.Inspect(req.Font, req.FileName)
	if err != nil {
		return errorMessage(err)
	}
	return &Message{Type: TypeMetadata, Metadata: md}
}

func errorMessage(err error) *Message {
	return &Message{Type: TypeError, Error: Classify(err)}
}

// OutputFormat determines the format of a generated font.  If requested is
// empty, the format of the input container is used, where collections
// produce a single TrueType font.
func OutputFormat(requested string, input inspect.Container) (string, error) {
	format := strings.ToLower(strings.TrimPrefix(requested, "."))
	if format == "" {
		format = string(input)
		if input == inspect.Collection {
			format = string(inspect.TrueType)
		}
	}
	switch format {
	case "ttf", "otf", "woff", "woff2":
		return format, nil
	default:
		return "", &Error{
			Kind:    UnsupportedFormat,
			Message: fmt.Sprintf("unsupported output format %q", requested),
		}
	}
}

// OutputName returns the file name for a subsetted font,
// of the form "{base}-subset.{format}".
func OutputName(fileName, format string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "font"
	}
	return base + "-subset." + format
}
