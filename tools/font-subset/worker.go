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
	"net"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"seehuhn.de/go/fontsubset/task"
	"seehuhn.de/go/fontsubset/task/natsconn"
)

func (a *app) workerCommand() *cobra.Command {
	var (
		transport   string
		natsURL     string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "worker [flags]",
		Short: "serve subset requests",
		Long: `worker runs a task runner which serves subset and inspect requests.

With the stdio transport, requests are read as JSON lines from standard
input and responses are written to standard output.  With the nats
transport, the worker joins a queue group, so that several workers can
share the load.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := a.cfg.Worker
			if transport != "" {
				w.Transport = transport
			}
			if natsURL != "" {
				w.NATS.URL = natsURL
			}
			if metricsAddr != "" {
				w.MetricsAddr = metricsAddr
			}
			a.cfg.Worker = w
			if err := a.cfg.Validate(); err != nil {
				return usageError{err}
			}
			return a.runWorker(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&transport, "transport", "", "stdio or nats")
	flags.StringVar(&natsURL, "nats-url", "", "NATS server `url`")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on `address`")
	return cmd
}

func (a *app) runWorker(ctx context.Context) error {
	eng, release, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	defer release()

	opts := []task.Option{task.WithLogger(a.logger)}
	if addr := a.cfg.Worker.MetricsAddr; addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, task.WithMetrics(task.NewPrometheus(reg, "")))
		stop, err := a.serveMetrics(addr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	var conn task.Conn
	switch a.cfg.Worker.Transport {
	case "nats":
		nc, err := nats.Connect(a.cfg.Worker.NATS.URL, nats.Name("font-subset worker"))
		if err != nil {
			return err
		}
		defer nc.Close()
		w, err := natsconn.NewWorker(nc,
			natsconn.WithPrefix(a.cfg.Worker.NATS.Prefix),
			natsconn.WithQueue(a.cfg.Worker.NATS.Queue))
		if err != nil {
			return err
		}
		conn = w
		a.logger.Info("worker listening",
			"url", nc.ConnectedUrlRedacted(),
			"prefix", a.cfg.Worker.NATS.Prefix)
	default:
		conn = task.NewStreamConn(stdio{Reader: os.Stdin, Writer: os.Stdout})
	}
	defer conn.Close()

	err = task.NewRunner(conn, eng, opts...).Run(ctx)
	if err != nil {
		return task.Classify(err)
	}
	return nil
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics endpoint: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics endpoint failed", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

// stdio combines standard input and output into one stream.
type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error {
	return os.Stdin.Close()
}
