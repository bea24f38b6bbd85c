package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderUnit(t *testing.T) {
	cfg := Config{
		Name:       "gpimon",
		BinaryPath: "/usr/local/bin/gpimon",
		ConfigPath: "/etc/gpimon/gpimon.yaml",
		User:       "gpimon",
		Group:      "gpio",
		Env:        map[string]string{"GPIMON_LOGGER_FORMAT": "json"},
	}

	content, err := RenderUnit(cfg)
	if err != nil {
		t.Fatalf("RenderUnit: %v", err)
	}

	checks := []string{
		"[Unit]",
		"Description=gpimon GPIO monitor",
		"ExecStart=/usr/local/bin/gpimon run --config /etc/gpimon/gpimon.yaml",
		"User=gpimon",
		"SupplementaryGroups=gpio",
		"Environment=GPIMON_LOGGER_FORMAT=json",
		"EnvironmentFile=-/etc/gpimon/env",
		"KillSignal=SIGTERM",
		"[Install]",
		"WantedBy=multi-user.target",
	}
	for _, check := range checks {
		if !strings.Contains(content, check) {
			t.Errorf("unit missing %q:\n%s", check, content)
		}
	}
}

func TestRenderUnitWithoutGroup(t *testing.T) {
	content, err := RenderUnit(Config{Name: "gpimon", BinaryPath: "/bin/gpimon", ConfigPath: "/etc/g.yaml", User: "root"})
	if err != nil {
		t.Fatalf("RenderUnit: %v", err)
	}
	if strings.Contains(content, "SupplementaryGroups") {
		t.Errorf("unexpected SupplementaryGroups:\n%s", content)
	}
	if strings.Contains(content, "Environment=") {
		t.Errorf("unexpected Environment:\n%s", content)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "gpimon" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.BinaryPath == "" {
		t.Error("BinaryPath is empty")
	}
	if cfg.ConfigPath != "/etc/gpimon/gpimon.yaml" {
		t.Errorf("ConfigPath = %q", cfg.ConfigPath)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "gpimon")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	plain := filepath.Join(dir, "plain")
	if err := os.WriteFile(plain, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Name: "gpimon", BinaryPath: exe, ConfigPath: "/etc/gpimon.yaml"}, false},
		{"no name", Config{BinaryPath: exe, ConfigPath: "/etc/gpimon.yaml"}, true},
		{"no binary", Config{Name: "gpimon", ConfigPath: "/etc/gpimon.yaml"}, true},
		{"missing binary", Config{Name: "gpimon", BinaryPath: filepath.Join(dir, "nope"), ConfigPath: "/etc/gpimon.yaml"}, true},
		{"not executable", Config{Name: "gpimon", BinaryPath: plain, ConfigPath: "/etc/gpimon.yaml"}, true},
		{"relative config", Config{Name: "gpimon", BinaryPath: exe, ConfigPath: "gpimon.yaml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUnitPath(t *testing.T) {
	old := UnitDir
	t.Cleanup(func() { UnitDir = old })
	UnitDir = "/tmp/units"
	if got := UnitPath("gpimon"); got != "/tmp/units/gpimon.service" {
		t.Errorf("UnitPath = %q", got)
	}
}

func TestParseMainPID(t *testing.T) {
	tests := map[string]int{
		"MainPID=1234\n": 1234,
		"MainPID=0":      0,
		"garbage":        0,
		"MainPID=":       0,
	}
	for in, want := range tests {
		if got := parseMainPID(in); got != want {
			t.Errorf("parseMainPID(%q) = %d, want %d", in, got, want)
		}
	}
}
