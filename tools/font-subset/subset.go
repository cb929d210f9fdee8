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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"seehuhn.de/go/fontsubset/axis"
	"seehuhn.de/go/fontsubset/client"
	"seehuhn.de/go/fontsubset/repertoire"
	"seehuhn.de/go/fontsubset/task"
	"seehuhn.de/go/fontsubset/task/natsconn"
)

type subsetFlags struct {
	text     string
	textFile string
	unicodes string
	presets  []string
	pins     string
	format   string
	output   string
	remote   bool
}

func (a *app) subsetCommand() *cobra.Command {
	f := &subsetFlags{}
	cmd := &cobra.Command{
		Use:   "subset [flags] <font>",
		Short: "reduce a font to the glyphs for a set of characters",
		Example: `  font-subset subset --text "Hello, World" Roboto.ttf
  font-subset subset --preset latin --format woff2 -o web/ Inter.ttf
  font-subset subset --unicodes U+0020-007E --pin wght=700 InterVariable.ttf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSubset(cmd, f, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.text, "text", "t", "", "keep the characters of `text`")
	flags.StringVar(&f.textFile, "text-file", "", "keep the characters used in `file`")
	flags.StringVarP(&f.unicodes, "unicodes", "u", "", "keep the given code points, e.g. U+0041-005A,U+00E9")
	flags.StringSliceVarP(&f.presets, "preset", "p", nil, "keep the characters of a named preset (see \"presets\")")
	flags.StringVar(&f.pins, "pin", "", "fix variable font axes, e.g. wght=700,wdth=90")
	flags.StringVarP(&f.format, "format", "f", "", "output format: ttf, otf, woff or woff2 (default: same as input)")
	flags.StringVarP(&f.output, "output", "o", "", "output `file` or directory")
	flags.BoolVar(&f.remote, "remote", false, "send the request to workers over NATS")
	return cmd
}

func (f *subsetFlags) repertoire(defaults []string) (*repertoire.Repertoire, error) {
	rep := repertoire.FromString(f.text)
	if f.textFile != "" {
		data, err := os.ReadFile(f.textFile)
		if err != nil {
			return nil, err
		}
		rep.Merge(repertoire.FromString(string(data)))
	}
	if f.unicodes != "" {
		extra, err := repertoire.Parse(f.unicodes)
		if err != nil {
			return nil, usageError{err}
		}
		rep.Merge(extra)
	}
	for _, name := range slices.Concat(defaults, f.presets) {
		extra, err := repertoire.Preset(name)
		if err != nil {
			return nil, usageError{err}
		}
		rep.Merge(extra)
	}
	return rep, nil
}

func (a *app) runSubset(cmd *cobra.Command, f *subsetFlags, fileName string) error {
	ctx := cmd.Context()

	font, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}
	rep, err := f.repertoire(a.cfg.Subset.Presets)
	if err != nil {
		return err
	}
	if rep.Len() == 0 {
		a.logger.Warn("no characters selected, the subset will only contain .notdef")
	}
	var pins axis.Pinning
	if f.pins != "" {
		pins, err = axis.ParsePinning(f.pins)
		if err != nil {
			return usageError{err}
		}
	}
	format := f.format
	if format == "" {
		format = a.cfg.Subset.Format
	}

	cl, closeClient, err := a.newClient(ctx, f.remote)
	if err != nil {
		return err
	}
	defer closeClient()

	tsk, err := cl.Subset(ctx, &task.SubsetRequest{
		Font:       font,
		FileName:   filepath.Base(fileName),
		Codepoints: rep.Runes(),
		Pins:       pins,
		Format:     format,
	})
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		showProgress(stderr, tsk.Progress())
	}()

	res, err := await(ctx, tsk, cancelGrace, a.logger)
	select {
	case <-tsk.Done():
		<-progressDone
	default:
	}
	if err != nil {
		return err
	}

	outName := outputPath(f.output, fileName, res.FileName)
	if err := os.WriteFile(outName, res.Data, 0o644); err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(stderr, "warning:", w)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d characters, %d -> %d bytes (%.1f%% smaller)\n",
		outName, rep.Len(), res.OriginalSize, res.OutputSize, res.SavedPercent())
	return nil
}

// cancelGrace is how long a cancelled task may take to stop.
const cancelGrace = 10 * time.Second

// await waits for tsk to resolve.  If ctx ends first, the task is
// cancelled and given the grace period to stop.
func await(ctx context.Context, tsk *client.Task, grace time.Duration, logger *slog.Logger) (*task.Result, error) {
	select {
	case <-tsk.Done():
		return tsk.Wait(context.WithoutCancel(ctx))
	case <-ctx.Done():
	}

	logger.Info("cancelling", "task", tsk.ID())
	waitCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer stop()
	if err := tsk.Cancel(waitCtx); err != nil {
		logger.Warn("cannot cancel task", "error", err)
	}
	res, err := tsk.Wait(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) && waitCtx.Err() != nil {
		return nil, &task.Error{
			Kind:    task.Cancelled,
			Message: fmt.Sprintf("task %s did not stop within %s", tsk.ID(), grace),
		}
	}
	return res, err
}

// newClient connects to a task runner, either in-process or over NATS.
func (a *app) newClient(ctx context.Context, remote bool) (*client.Client, func(), error) {
	opts := []client.Option{client.WithLogger(a.logger)}

	if remote {
		nc, err := nats.Connect(a.cfg.Worker.NATS.URL, nats.Name("font-subset"))
		if err != nil {
			return nil, nil, err
		}
		conn, err := natsconn.NewClient(nc, natsconn.WithPrefix(a.cfg.Worker.NATS.Prefix))
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		cl := client.New(conn, opts...)
		return cl, func() {
			cl.Close()
			nc.Close()
		}, nil
	}

	eng, release, err := a.newEngine(ctx)
	if err != nil {
		return nil, nil, err
	}
	clientEnd, runnerEnd := task.Pipe()
	r := task.NewRunner(runnerEnd, eng, task.WithLogger(a.logger))
	runDone := make(chan error, 1)
	go func() {
		runDone <- r.Run(context.WithoutCancel(ctx))
	}()
	cl := client.New(clientEnd, opts...)
	return cl, func() {
		cl.Close()
		if err := <-runDone; err != nil {
			a.logger.Warn("runner stopped", "error", err)
		}
		release()
	}, nil
}

// outputPath decides where to write a generated font.
func outputPath(output, input, generated string) string {
	if output == "" {
		return filepath.Join(filepath.Dir(input), generated)
	}
	if strings.HasSuffix(output, string(filepath.Separator)) {
		return filepath.Join(output, generated)
	}
	if fi, err := os.Stat(output); err == nil && fi.IsDir() {
		return filepath.Join(output, generated)
	}
	return output
}

// showProgress renders progress events on a single terminal line.
// Nothing is shown if w is not a terminal.
func showProgress(w io.Writer, events <-chan task.Progress) {
	fd, isTerm := terminalFd(w)
	if !isTerm {
		for range events {
		}
		return
	}

	width := 40
	if cols, _, err := term.GetSize(fd); err == nil && cols > 40 {
		width = min(cols-30, 60)
	}
	for p := range events {
		filled := width * p.Percent / 100
		bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
		fmt.Fprintf(w, "\r[%s] %3d%% %-12s", bar, p.Percent, p.Stage)
	}
	fmt.Fprint(w, "\r\033[K")
}

func terminalFd(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}
