package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gpimon/internal/domain"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIncludeSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "pins.yaml", "monitor:\n  input_pins: [5, 6]\n")
	path := writeConfigFile(t, dir, "gpimon.yaml", "includes:\n  - pins.yaml\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Monitor.InputPins) != 2 {
		t.Errorf("input pins not loaded from include: %v", cfg.Monitor.InputPins)
	}
	if cfg.Includes != nil {
		t.Errorf("Includes = %v, want cleared", cfg.Includes)
	}
}

func TestIncludeGlobMixedFormats(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "parts/bus.toml", "[bus]\ncapacity = 7\n")
	writeConfigFile(t, dir, "parts/logger.toml", "[logger]\nlevel = \"error\"\n")
	path := writeConfigFile(t, dir, "gpimon.yaml", "includes:\n  - \"parts/*.toml\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bus.Capacity != 7 || cfg.Logger.Level != "error" {
		t.Errorf("glob includes had no effect: bus=%+v logger=%+v", cfg.Bus, cfg.Logger)
	}
}

func TestIncludingFileWins(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "board.yaml", "monitor:\n  sample_count: 9\n  filter: and\n")
	path := writeConfigFile(t, dir, "gpimon.yaml", "includes:\n  - board.yaml\nmonitor:\n  sample_count: 4\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.SampleCount != 4 {
		t.Errorf("SampleCount = %d, want 4 from the including file", cfg.Monitor.SampleCount)
	}
	if cfg.Monitor.Filter != "and" {
		t.Errorf("Filter = %q, want include value", cfg.Monitor.Filter)
	}
}

func TestIncludeDiamondAllowed(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "common.yaml", "bus:\n  capacity: 5\n")
	writeConfigFile(t, dir, "a.yaml", "includes: [common.yaml]\n")
	writeConfigFile(t, dir, "b.yaml", "includes: [common.yaml]\n")
	path := writeConfigFile(t, dir, "gpimon.yaml", "includes: [a.yaml, b.yaml]\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bus.Capacity != 5 {
		t.Errorf("Capacity = %d, want 5", cfg.Bus.Capacity)
	}
}

func TestIncludeCircular(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", "includes: [b.yaml]\n")
	writeConfigFile(t, dir, "b.yaml", "includes: [a.yaml]\n")
	path := writeConfigFile(t, dir, "gpimon.yaml", "includes: [a.yaml]\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "circular") {
		t.Fatalf("err = %v, want circular include error", err)
	}
	if !errors.Is(err, domain.ErrConfigLoad) {
		t.Errorf("err = %v, want ErrConfigLoad", err)
	}
}

func TestIncludeEscapesConfigDir(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "outside.yaml", "logger:\n  level: debug\n")
	path := writeConfigFile(t, dir, "etc/gpimon.yaml", "includes: [\"../outside.yaml\"]\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Fatalf("err = %v, want traversal error", err)
	}
}

func TestIncludeMissingFile(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "gpimon.yaml", "includes: [missing.yaml]\n")
	_, err := Load(path)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist cause", err)
	}
}

func TestIncludeEmptyGlob(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "gpimon.yaml", "includes: [\"boards/*.yaml\"]\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestIncludeMaxDepth(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i <= maxIncludeDepth+1; i++ {
		writeConfigFile(t, dir, fmt.Sprintf("f%02d.yaml", i), fmt.Sprintf("includes: [f%02d.yaml]\n", i+1))
	}
	path := writeConfigFile(t, dir, "gpimon.yaml", "includes: [f00.yaml]\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "max depth") {
		t.Fatalf("err = %v, want max depth error", err)
	}
}

func TestDropInsOverrideMain(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "gpimon.yaml", "monitor:\n  sample_count: 4\n  input_pins: [1]\n")
	writeConfigFile(t, dir, DropInDir+"/10-board.yaml", "monitor:\n  input_pins: [2, 3]\n  sample_count: 6\n")
	writeConfigFile(t, dir, DropInDir+"/20-local.toml", "[monitor]\nsample_count = 8\n")
	writeConfigFile(t, dir, DropInDir+"/README", "not config")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.SampleCount != 8 {
		t.Errorf("SampleCount = %d, want 8 from the last drop-in", cfg.Monitor.SampleCount)
	}
	if len(cfg.Monitor.InputPins) != 2 {
		t.Errorf("InputPins = %v, want drop-in pins", cfg.Monitor.InputPins)
	}
}

func TestDropInInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "gpimon.yaml", "logger:\n  level: info\n")
	frag := writeConfigFile(t, dir, DropInDir+"/pins.yaml", "monitor:\n  input_pins: [1]\n")
	if err := os.Chmod(frag, 0o666); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Fatalf("err = %v, want insecure permissions", err)
	}
}
