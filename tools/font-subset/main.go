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

// Command font-subset reduces fonts to the glyphs needed for a given text.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"seehuhn.de/go/fontsubset/codec/hbwasm"
	"seehuhn.de/go/fontsubset/engine"
	"seehuhn.de/go/fontsubset/internal/config"
	"seehuhn.de/go/fontsubset/task"
	"seehuhn.de/go/fontsubset/tools/internal/buildinfo"
	"seehuhn.de/go/fontsubset/tools/internal/profile"
)

// exit codes
const (
	exitOK = iota
	exitError
	exitUsage
	exitUnsupportedFormat
	exitCorruptFont
	exitSubsetFailed
	exitCompressionFailed
	exitChannelError
	exitCancelled = 130
)

// app holds the state shared by all sub-commands.
type app struct {
	configFile string
	logLevel   string
	logFormat  string
	codecPath  string
	cpuprofile string
	memprofile string

	cfg    *config.Config
	logger *slog.Logger
	stop   func()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	a := &app{}
	root := a.rootCommand()
	err := root.ExecuteContext(ctx)
	if a.stop != nil {
		a.stop()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "font-subset:", err)
		cancel()
		os.Exit(exitCode(err))
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "font-subset",
		Short: "reduce fonts to the glyphs needed for a text",
		Long: `font-subset removes all glyphs from a font which are not needed to
display a given set of characters.  Variable fonts can be instantiated at
fixed axis values, and the result can be written as TrueType, OpenType,
WOFF or WOFF2 file.`,
		Version:           buildinfo.Short("font-subset"),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "read settings from `file` (.yaml or .json)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (text or json)")
	flags.StringVar(&a.codecPath, "codec", "", "location of hb-subset.wasm (overrides $"+hbwasm.EnvPath+")")
	flags.StringVar(&a.cpuprofile, "cpuprofile", "", "write cpu profile to `file`")
	flags.StringVar(&a.memprofile, "memprofile", "", "write memory profile to `file`")

	root.AddCommand(
		a.subsetCommand(),
		a.inspectCommand(),
		a.workerCommand(),
		a.presetsCommand(),
	)
	return root
}

// setup loads the configuration and applies command line overrides.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var err error
	if a.configFile != "" {
		a.cfg, err = config.Load(a.configFile)
		if err != nil {
			return usageError{err}
		}
	} else {
		a.cfg = config.Default()
		a.cfg.ApplyEnv(os.LookupEnv)
	}

	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.Log.Format = a.logFormat
	}
	if a.codecPath != "" {
		a.cfg.Codec.Path = a.codecPath
	}
	if err := a.cfg.Validate(); err != nil {
		return usageError{err}
	}

	a.logger, err = a.cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return usageError{err}
	}

	a.stop, err = profile.Start(a.cpuprofile, a.memprofile)
	return err
}

// newEngine loads the codec and wraps it in a subset engine.  The
// returned function releases the codec.
func (a *app) newEngine(ctx context.Context) (*engine.Engine, func(), error) {
	c, err := hbwasm.Load(ctx, a.cfg.Codec.Path, a.cfg.HBOptions(a.logger)...)
	if err != nil {
		return nil, nil, err
	}
	eng := engine.New(c,
		engine.WithPinPolicy(a.cfg.PinPolicy()),
		engine.WithLogger(a.logger))
	release := func() {
		if err := c.Close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("closing codec", "error", err)
		}
	}
	return eng, release, nil
}

// usageError marks errors caused by invalid arguments or settings.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var uErr usageError
	if errors.As(err, &uErr) || errors.Is(err, hbwasm.ErrNoPath) {
		return exitUsage
	}
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}

	var taskErr *task.Error
	if !errors.As(err, &taskErr) {
		return exitError
	}
	switch taskErr.Kind {
	case task.UnsupportedFormat:
		return exitUnsupportedFormat
	case task.CorruptFont:
		return exitCorruptFont
	case task.SubsetFailed:
		return exitSubsetFailed
	case task.CompressionFailed:
		return exitCompressionFailed
	case task.ChannelError:
		return exitChannelError
	case task.Cancelled:
		return exitCancelled
	default:
		return exitError
	}
}
