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

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"seehuhn.de/go/fontsubset/codec/hbwasm"
	"seehuhn.de/go/fontsubset/engine"
)

const yamlConfig = `
codec:
  path: /opt/hb/hb-subset.wasm
subset:
  format: woff2
  pinPolicy: strict
  presets: [latin, digits]
log:
  level: debug
worker:
  transport: nats
  nats:
    url: nats://broker:4222
  metricsAddr: ":9090"
`

const jsonConfig = `{
	// the codec binary
	"codec": {"path": "/opt/hb/hb-subset.wasm"},
	"subset": {
		"format": "woff2",
		"pinPolicy": "strict",
		"presets": ["latin", "digits",],
	},
	/* more verbose output */
	"log": {"level": "debug"},
	"worker": {
		"transport": "nats",
		"nats": {"url": "nats://broker:4222"},
		"metricsAddr": ":9090",
	},
}`

func TestParseFormats(t *testing.T) {
	want := Default()
	want.Codec.Path = "/opt/hb/hb-subset.wasm"
	want.Subset.Format = "woff2"
	want.Subset.PinPolicy = "strict"
	want.Subset.Presets = []string{"latin", "digits"}
	want.Log.Level = "debug"
	want.Worker.Transport = "nats"
	want.Worker.NATS.URL = "nats://broker:4222"
	want.Worker.MetricsAddr = ":9090"

	for _, c := range []struct{ format, data string }{
		{"yaml", yamlConfig},
		{"json", jsonConfig},
	} {
		got, err := Parse([]byte(c.data), c.format)
		if err != nil {
			t.Fatalf("%s: %v", c.format, err)
		}
		if d := cmp.Diff(want, got); d != "" {
			t.Errorf("%s: unexpected config (-want +got):\n%s", c.format, d)
		}
		if got.PinPolicy() != engine.Strict {
			t.Errorf("%s: wrong pin policy %s", c.format, got.PinPolicy())
		}
	}
}

func TestEmpty(t *testing.T) {
	for _, format := range []string{"yaml", "json"} {
		got, err := Parse(nil, format)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if d := cmp.Diff(Default(), got); d != "" {
			t.Errorf("%s: unexpected config (-want +got):\n%s", format, d)
		}
	}
}

func TestUnknownKey(t *testing.T) {
	if _, err := Parse([]byte("codec:\n  pth: x\n"), "yaml"); err == nil {
		t.Error("unknown YAML key accepted")
	}
	if _, err := Parse([]byte(`{"log": {"colour": true}}`), "json"); err == nil {
		t.Error("unknown JSON key accepted")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Subset.Format = "eot"
	cfg.Subset.PinPolicy = "lenient"
	cfg.Subset.Presets = []string{"klingon"}
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Worker.Transport = "carrier-pigeon"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid configuration accepted")
	}
	msg := err.Error()
	for _, key := range []string{
		"subset.format", "subset.pinPolicy", "subset.presets",
		"log.level", "log.format", "worker.transport",
	} {
		if !strings.Contains(msg, key) {
			t.Errorf("error does not mention %s: %s", key, msg)
		}
	}

	cfg = Default()
	cfg.Worker.Transport = "nats"
	cfg.Worker.NATS.Prefix = "a.*"
	if err := cfg.Validate(); err == nil {
		t.Error("wildcard prefix accepted")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	fileName := filepath.Join(dir, "font-subset.jsonc")
	err := os.WriteFile(fileName, []byte(jsonConfig), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv(hbwasm.EnvPath, "/from/env.wasm")
	cfg, err := Load(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Codec.Path != "/from/env.wasm" {
		t.Errorf("codec path = %q", cfg.Codec.Path)
	}

	other := filepath.Join(dir, "font-subset.toml")
	if err := os.WriteFile(other, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(other); err == nil {
		t.Error("unknown file type accepted")
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); !os.IsNotExist(err) {
		t.Errorf("missing file: got %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	buf := &bytes.Buffer{}
	logger, err := cfg.NewLogger(buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "n", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("unexpected log output %q", out)
	}
}
