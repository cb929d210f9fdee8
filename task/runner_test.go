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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seehuhn.de/go/fontsubset/axis"
	"seehuhn.de/go/fontsubset/engine"
	"seehuhn.de/go/fontsubset/inspect"
	"seehuhn.de/go/fontsubset/internal/mockcodec"
	"seehuhn.de/go/fontsubset/internal/testfont"
	"seehuhn.de/go/fontsubset/woff"
)

// startRunner runs a runner backed by mc and returns the client end of
// the connection.
func startRunner(t *testing.T, mc *mockcodec.Codec, opts ...Option) *collector {
	t.Helper()

	client, server := Pipe()
	r := NewRunner(server, engine.New(mc), opts...)
	errc := make(chan error, 1)
	go func() {
		errc <- r.Run(context.Background())
	}()
	t.Cleanup(func() {
		client.Close()
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("runner did not stop")
		}
	})
	return &collector{t: t, conn: client, msgs: make(map[string][]*Message)}
}

// collector receives messages and sorts them by task id.
type collector struct {
	t    *testing.T
	conn Conn
	msgs map[string][]*Message
}

func (c *collector) send(msg *Message) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(c.t, c.conn.Send(ctx, msg))
}

// wait receives messages until all the given tasks have finished.
func (c *collector) wait(ids ...string) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for !c.finished(ids...) {
		msg, err := c.conn.Receive(ctx)
		require.NoError(c.t, err)
		c.msgs[msg.ID] = append(c.msgs[msg.ID], msg)
	}
}

func (c *collector) finished(ids ...string) bool {
	for _, id := range ids {
		msgs := c.msgs[id]
		if len(msgs) == 0 || !msgs[len(msgs)-1].Type.IsTerminal() {
			return false
		}
	}
	return true
}

func (c *collector) terminal(id string) *Message {
	msgs := c.msgs[id]
	return msgs[len(msgs)-1]
}

func (c *collector) percents(id string) []int {
	var res []int
	for _, msg := range c.msgs[id] {
		if msg.Type == TypeProgress {
			res = append(res, msg.Progress.Percent)
		}
	}
	return res
}

// barrier makes sure that the runner has processed all messages sent so
// far.  This works because cancelling a queued task is answered by the
// reader.
func (c *collector) barrier(id string) {
	c.t.Helper()
	c.send(&Message{Type: TypeSubset, ID: id, Subset: &SubsetRequest{}})
	c.send(&Message{Type: TypeCancel, ID: id})
	c.wait(id)
	require.Equal(c.t, TypeCancelled, c.terminal(id).Type)
}

// blockOnMalloc makes the first Malloc call of mc wait until the returned
// release function is called.  The entered channel is closed once the
// call is blocked.
func blockOnMalloc(mc *mockcodec.Codec) (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	mc.OnCall = func(method string) {
		if method == "Malloc" {
			once.Do(func() {
				close(in)
				<-gate
			})
		}
	}
	var releaseOnce sync.Once
	return in, func() { releaseOnce.Do(func() { close(gate) }) }
}

func TestSubsetStatic(t *testing.T) {
	mc := mockcodec.New()
	c := startRunner(t, mc)

	font := testfont.Static()
	c.send(&Message{
		Type: TypeSubset,
		ID:   "a",
		Subset: &SubsetRequest{
			Font:       font,
			FileName:   "Go-Regular.ttf",
			Codepoints: []rune{'A', 'B', 'A'},
		},
	})
	c.wait("a")

	msg := c.terminal("a")
	require.Equal(t, TypeResult, msg.Type, "error: %v", msg.Error)
	res := msg.Result
	assert.Equal(t, "ttf", res.Format)
	assert.Equal(t, "Go-Regular-subset.ttf", res.FileName)
	assert.Equal(t, len(font), res.OriginalSize)
	assert.Equal(t, len(res.Data), res.OutputSize)
	assert.Less(t, res.OutputSize, res.OriginalSize)
	assert.Equal(t, []uint32{'A', 'B'}, mc.Added())
	assert.Equal(t, []int{10, 30, 100}, c.percents("a"))
	assert.NoError(t, mc.Check())
}

func TestSubsetPinnedWOFF2(t *testing.T) {
	mc := mockcodec.New()
	c := startRunner(t, mc)

	font := testfont.Variable()
	req := func(id string, pins axis.Pinning) *Message {
		return &Message{
			Type: TypeSubset,
			ID:   id,
			Subset: &SubsetRequest{
				Font:       font,
				FileName:   "GoVariable.ttf",
				Codepoints: []rune("Hamburgefonts"),
				Pins:       pins,
				Format:     "woff2",
			},
		}
	}
	c.send(req("pinned", axis.Pinning{"wght": 700}))
	c.send(req("plain", nil))
	c.wait("pinned", "plain")

	pinned := c.terminal("pinned")
	plain := c.terminal("plain")
	require.Equal(t, TypeResult, pinned.Type, "error: %v", pinned.Error)
	require.Equal(t, TypeResult, plain.Type, "error: %v", plain.Error)

	assert.Equal(t, "GoVariable-subset.woff2", pinned.Result.FileName)
	assert.Less(t, pinned.Result.OutputSize, plain.Result.OutputSize)
	assert.Equal(t, []int{10, 30, 70, 100}, c.percents("pinned"))
	assert.Empty(t, pinned.Result.Warnings)

	raw, err := woff.Decode(pinned.Result.Data)
	require.NoError(t, err)
	tables := testfont.ReadTables(raw)
	assert.NotContains(t, tables, "fvar")
	assert.NotContains(t, tables, "gvar")

	raw, err = woff.Decode(plain.Result.Data)
	require.NoError(t, err)
	assert.Contains(t, testfont.ReadTables(raw), "fvar")
	assert.NoError(t, mc.Check())
}

func TestCancelQueued(t *testing.T) {
	mc := mockcodec.New()
	entered, release := blockOnMalloc(mc)
	defer release()
	c := startRunner(t, mc)

	c.send(&Message{
		Type:   TypeSubset,
		ID:     "busy",
		Subset: &SubsetRequest{Font: testfont.Static(), Codepoints: []rune("x")},
	})
	<-entered
	before := mc.Calls()

	c.send(&Message{
		Type:   TypeSubset,
		ID:     "victim",
		Subset: &SubsetRequest{Font: testfont.Static(), Codepoints: []rune("y")},
	})
	c.send(&Message{Type: TypeCancel, ID: "victim"})
	c.wait("victim")

	assert.Equal(t, TypeCancelled, c.terminal("victim").Type)
	assert.Len(t, c.msgs["victim"], 1)
	assert.Equal(t, before, mc.Calls())

	release()
	c.wait("busy")
	assert.Equal(t, TypeResult, c.terminal("busy").Type)
	assert.NoError(t, mc.Check())
}

func TestCancelRunning(t *testing.T) {
	mc := mockcodec.New()
	entered, release := blockOnMalloc(mc)
	defer release()
	c := startRunner(t, mc)

	c.send(&Message{
		Type: TypeSubset,
		ID:   "t",
		Subset: &SubsetRequest{
			Font:       testfont.Static(),
			Codepoints: []rune("abc"),
			Format:     "woff2",
		},
	})
	<-entered
	c.send(&Message{Type: TypeCancel, ID: "t"})
	c.barrier("sync")
	release()
	c.wait("t")

	// The codec call completes, the task stops before compression.
	assert.Equal(t, TypeCancelled, c.terminal("t").Type)
	assert.Equal(t, []int{10, 30}, c.percents("t"))
	assert.NoError(t, mc.Check())
}

func TestCancelTooLate(t *testing.T) {
	mc := mockcodec.New()
	entered, release := blockOnMalloc(mc)
	defer release()
	c := startRunner(t, mc)

	c.send(&Message{
		Type: TypeSubset,
		ID:   "t",
		Subset: &SubsetRequest{
			Font:       testfont.Static(),
			Codepoints: []rune("abc"),
			Format:     "ttf",
		},
	})
	<-entered
	c.send(&Message{Type: TypeCancel, ID: "t"})
	c.barrier("sync")
	release()
	c.wait("t")

	// There is no stage boundary after the subset call for ttf output.
	assert.Equal(t, TypeResult, c.terminal("t").Type)
}

func TestCorruptFont(t *testing.T) {
	mc := mockcodec.New()
	c := startRunner(t, mc)

	c.send(&Message{
		Type: TypeSubset,
		ID:   "d",
		Subset: &SubsetRequest{
			Font:       []byte{0, 1, 2, 3},
			FileName:   "broken.ttf",
			Codepoints: []rune("A"),
		},
	})
	c.wait("d")

	msg := c.terminal("d")
	require.Equal(t, TypeError, msg.Type)
	assert.Equal(t, CorruptFont, msg.Error.Kind)
	assert.False(t, msg.Error.Recoverable)
	assert.Zero(t, mc.Calls())
}

func TestUnsupportedOutputFormat(t *testing.T) {
	mc := mockcodec.New()
	c := startRunner(t, mc)

	c.send(&Message{
		Type: TypeSubset,
		ID:   "f",
		Subset: &SubsetRequest{
			Font:       testfont.Static(),
			Codepoints: []rune("A"),
			Format:     "eot",
		},
	})
	c.wait("f")

	msg := c.terminal("f")
	require.Equal(t, TypeError, msg.Type)
	assert.Equal(t, UnsupportedFormat, msg.Error.Kind)
	assert.Zero(t, mc.Calls())
}

func TestDuplicatePinTags(t *testing.T) {
	mc := mockcodec.New()
	c := startRunner(t, mc)

	c.send(&Message{
		Type: TypeSubset,
		ID:   "p",
		Subset: &SubsetRequest{
			Font:       testfont.Variable(),
			Codepoints: []rune("A"),
			Pins:       axis.Pinning{"wdt": 90, "wdt ": 95},
		},
	})
	c.wait("p")

	msg := c.terminal("p")
	require.Equal(t, TypeError, msg.Type)
	assert.Equal(t, SubsetFailed, msg.Error.Kind)
	assert.False(t, msg.Error.Recoverable)
	assert.Zero(t, mc.Calls())
}

func TestSubsetFailure(t *testing.T) {
	mc := mockcodec.New()
	mc.FailOn = "Subset"
	c := startRunner(t, mc)

	c.send(&Message{
		Type:   TypeSubset,
		ID:     "s",
		Subset: &SubsetRequest{Font: testfont.Static(), Codepoints: []rune("A")},
	})
	c.wait("s")

	msg := c.terminal("s")
	require.Equal(t, TypeError, msg.Type)
	assert.Equal(t, SubsetFailed, msg.Error.Kind)
	assert.True(t, msg.Error.Recoverable)
	assert.NoError(t, mc.Check())
}

func TestDuplicateID(t *testing.T) {
	mc := mockcodec.New()
	entered, release := blockOnMalloc(mc)
	defer release()
	c := startRunner(t, mc)

	req := &Message{
		Type:   TypeSubset,
		ID:     "dup",
		Subset: &SubsetRequest{Font: testfont.Static(), Codepoints: []rune("A")},
	}
	c.send(req)
	<-entered
	c.send(req)
	c.barrier("sync")
	release()
	c.wait("dup")

	// A duplicate which had been queued would run before this request.
	c.send(&Message{
		Type:    TypeInspect,
		ID:      "after",
		Inspect: &InspectRequest{Font: testfont.Static()},
	})
	c.wait("after")

	var terminals int
	for _, msg := range c.msgs["dup"] {
		if msg.Type.IsTerminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.Equal(t, []int{10, 30, 100}, c.percents("dup"))
}

func TestInspect(t *testing.T) {
	mc := mockcodec.New()
	cache := &inspect.Cache{}
	c := startRunner(t, mc, WithCache(cache))

	font := testfont.Variable()
	for _, id := range []string{"i1", "i2"} {
		c.send(&Message{
			Type:    TypeInspect,
			ID:      id,
			Inspect: &InspectRequest{Font: font, FileName: "var.ttf"},
		})
		c.wait(id)
		msg := c.terminal(id)
		require.Equal(t, TypeMetadata, msg.Type, "error: %v", msg.Error)
		assert.True(t, msg.Metadata.IsVariable)
		require.Len(t, msg.Metadata.Axes, 1)
		assert.Equal(t, "wght", msg.Metadata.Axes[0].Tag)
	}
	hits, misses := cache.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
	assert.Zero(t, mc.Calls())
}

func TestConnFailure(t *testing.T) {
	boom := errors.New("boom")
	r := NewRunner(failingConn{err: boom}, engine.New(mockcodec.New()))
	err := r.Run(context.Background())

	var connErr *ConnError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, boom)
}

func TestRunStopsOnContext(t *testing.T) {
	client, server := Pipe()
	defer client.Close()
	r := NewRunner(server, engine.New(mockcodec.New()))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- r.Run(ctx)
	}()
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestMetrics(t *testing.T) {
	m := &countingMetrics{}
	c := startRunner(t, mockcodec.New(), WithMetrics(m))

	c.send(&Message{
		Type: TypeSubset,
		ID:   "m",
		Subset: &SubsetRequest{
			Font:       testfont.Static(),
			Codepoints: []rune("A"),
			Format:     "woff",
		},
	})
	c.wait("m")
	require.Equal(t, TypeResult, c.terminal("m").Type)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.queued)
	assert.Equal(t, map[State]int{StateSucceeded: 1}, m.finished)
	assert.ElementsMatch(t,
		[]Stage{StageInitializing, StageSubsetting, StageCompressing},
		m.stages)
}

func TestOutputName(t *testing.T) {
	cases := []struct {
		in, format, out string
	}{
		{"Roboto.ttf", "woff2", "Roboto-subset.woff2"},
		{"fonts/Inter.var.ttf", "ttf", "Inter.var-subset.ttf"},
		{`C:\fonts\Noto.otf`, "otf", "Noto-subset.otf"},
		{"", "woff", "font-subset.woff"},
		{".ttf", "ttf", "font-subset.ttf"},
	}
	for _, c := range cases {
		assert.Equal(t, c.out, OutputName(c.in, c.format), "input %q", c.in)
	}
}

func TestOutputFormat(t *testing.T) {
	cases := []struct {
		requested string
		input     string
		want      string
	}{
		{"", "ttf", "ttf"},
		{"", "otf", "otf"},
		{"", "ttc", "ttf"},
		{"", "woff2", "woff2"},
		{"WOFF2", "ttf", "woff2"},
		{".woff", "ttf", "woff"},
	}
	for _, c := range cases {
		got, err := OutputFormat(c.requested, inspect.Container(c.input))
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	_, err := OutputFormat("svg", "ttf")
	assert.ErrorIs(t, err, &Error{Kind: UnsupportedFormat})
}

type failingConn struct {
	err error
}

func (c failingConn) Send(context.Context, *Message) error      { return c.err }
func (c failingConn) Receive(context.Context) (*Message, error) { return nil, c.err }
func (c failingConn) Close() error                              { return nil }

type countingMetrics struct {
	NopMetrics

	mu       sync.Mutex
	queued   int
	finished map[State]int
	stages   []Stage
}

func (m *countingMetrics) TaskQueued(MessageType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued++
}

func (m *countingMetrics) TaskFinished(_ MessageType, state State, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		m.finished = make(map[State]int)
	}
	m.finished[state]++
}

func (m *countingMetrics) StageCompleted(stage Stage, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}
