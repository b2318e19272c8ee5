package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/devprobe/internal/config"
	"github.com/hazz-dev/devprobe/internal/preset"
)

func itoa(n int) string { return strconv.Itoa(n) }

func TestPrintPresets(t *testing.T) {
	var buf bytes.Buffer
	if err := printPresets(&buf, preset.Default(), []string{"databases"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"PRESET", "PostgreSQL", "localhost:5432", "MongoDB", "port 27017"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
	if strings.Contains(output, "web_dev") {
		t.Errorf("expected only the named preset, got:\n%s", output)
	}
}

func TestPrintPresets_Unknown(t *testing.T) {
	var buf bytes.Buffer
	if err := printPresets(&buf, preset.Default(), []string{"nope"}); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devprobe.yml")
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := writeConfig(cmd, path, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("written config does not load: %v", err)
	}

	if err := writeConfig(cmd, path, false); err == nil {
		t.Error("expected error when config exists")
	}
	if err := writeConfig(cmd, path, true); err != nil {
		t.Errorf("expected --force to overwrite, got %v", err)
	}
}

func TestLoadConfig_NoMaterialize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devprobe.yml")

	cfg, err := loadConfig(path, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != config.Default().Server.Address {
		t.Errorf("expected defaults, got %+v", cfg.Server)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("config file should not be written")
	}

	if _, err := loadConfig(path, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should be written: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	root := rootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "devprobe dev") {
		t.Errorf("unexpected version output %q", buf.String())
	}
}
