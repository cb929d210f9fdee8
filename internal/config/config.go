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

// Package config reads the configuration file of the font-subset tool.
//
// Configuration files can be written in YAML or in JSON with comments.
// The format is chosen by the file name extension.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"seehuhn.de/go/fontsubset/codec/hbwasm"
	"seehuhn.de/go/fontsubset/engine"
	"seehuhn.de/go/fontsubset/repertoire"
	"seehuhn.de/go/fontsubset/task/natsconn"
)

// Config holds the settings of the font-subset tool.
type Config struct {
	Codec  Codec  `yaml:"codec" json:"codec"`
	Subset Subset `yaml:"subset" json:"subset"`
	Log    Log    `yaml:"log" json:"log"`
	Worker Worker `yaml:"worker" json:"worker"`
}

// Codec describes the subsetting codec.
type Codec struct {
	// Path is the location of hb-subset.wasm.
	Path string `yaml:"path" json:"path"`

	// MemoryLimitPages limits the linear memory of the codec, in 64 KiB
	// pages.  Zero selects the default.
	MemoryLimitPages uint32 `yaml:"memoryLimitPages" json:"memoryLimitPages"`
}

// Subset holds the defaults for subset requests.
type Subset struct {
	// Format is the output format.  If empty, the input format is kept.
	Format string `yaml:"format" json:"format"`

	// PinPolicy is "permissive" or "strict".
	PinPolicy string `yaml:"pinPolicy" json:"pinPolicy"`

	// Presets are character presets which are always included.
	Presets []string `yaml:"presets" json:"presets"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Worker configures the worker command.
type Worker struct {
	// Transport is "stdio" or "nats".
	Transport string `yaml:"transport" json:"transport"`

	NATS NATS `yaml:"nats" json:"nats"`

	// MetricsAddr is the listen address for the Prometheus endpoint.
	// If empty, no metrics are served.
	MetricsAddr string `yaml:"metricsAddr" json:"metricsAddr"`
}

// NATS holds the connection settings for the NATS transport.
type NATS struct {
	URL    string `yaml:"url" json:"url"`
	Prefix string `yaml:"prefix" json:"prefix"`
	Queue  string `yaml:"queue" json:"queue"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Subset: Subset{
			PinPolicy: engine.Permissive.String(),
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Worker: Worker{
			Transport: "stdio",
			NATS: NATS{
				URL:    "nats://127.0.0.1:4222",
				Prefix: natsconn.DefaultPrefix,
				Queue:  natsconn.DefaultQueue,
			},
		},
	}
}

// Load reads a configuration file.  Settings missing from the file keep
// their default values.  The environment variable named by
// [hbwasm.EnvPath] overrides the codec path.
func Load(fileName string) (*Config, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	var format string
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".json", ".jsonc":
		format = "json"
	default:
		return nil, fmt.Errorf("%s: unknown configuration file type", fileName)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// Parse decodes a configuration in the given format, "yaml" or "json",
// and validates the result.  Unknown keys are an error.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Default()
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err := dec.Decode(cfg)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		err := dec.Decode(cfg)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown configuration format %q", format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies overrides from the environment.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if p, ok := lookup(hbwasm.EnvPath); ok && p != "" {
		cfg.Codec.Path = p
	}
}

// Validate checks the configuration for invalid values.
func (cfg *Config) Validate() error {
	var errs []error

	switch strings.ToLower(cfg.Subset.Format) {
	case "", "ttf", "otf", "woff", "woff2":
		// pass
	default:
		errs = append(errs, fmt.Errorf("subset.format: unsupported format %q", cfg.Subset.Format))
	}
	if _, err := engine.ParsePinPolicy(cfg.Subset.PinPolicy); err != nil {
		errs = append(errs, fmt.Errorf("subset.pinPolicy: %w", err))
	}
	for _, name := range cfg.Subset.Presets {
		if _, err := repertoire.Preset(name); err != nil {
			errs = append(errs, fmt.Errorf("subset.presets: %w", err))
		}
	}

	if _, err := parseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch cfg.Log.Format {
	case "text", "json":
		// pass
	default:
		errs = append(errs, fmt.Errorf("log.format: must be \"text\" or \"json\", not %q", cfg.Log.Format))
	}

	switch cfg.Worker.Transport {
	case "stdio":
		// pass
	case "nats":
		if cfg.Worker.NATS.URL == "" {
			errs = append(errs, errors.New("worker.nats.url: missing"))
		}
		if cfg.Worker.NATS.Prefix == "" || strings.ContainsAny(cfg.Worker.NATS.Prefix, " *>") {
			errs = append(errs, fmt.Errorf("worker.nats.prefix: invalid subject prefix %q", cfg.Worker.NATS.Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("worker.transport: must be \"stdio\" or \"nats\", not %q", cfg.Worker.Transport))
	}

	return errors.Join(errs...)
}

// PinPolicy returns the configured pin policy.
func (cfg *Config) PinPolicy() engine.PinPolicy {
	p, _ := engine.ParsePinPolicy(cfg.Subset.PinPolicy)
	return p
}

// HBOptions returns the options for loading the codec.
func (cfg *Config) HBOptions(logger *slog.Logger) []hbwasm.Option {
	opts := []hbwasm.Option{hbwasm.WithLogger(logger)}
	if cfg.Codec.MemoryLimitPages > 0 {
		opts = append(opts, hbwasm.WithMemoryLimit(cfg.Codec.MemoryLimitPages))
	}
	return opts
}

// NewLogger constructs the logger described by the configuration.
func (cfg *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch cfg.Log.Format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(s))
	return level, err
}
