package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Validate(Defaults()): %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string // substring of the single expected error; "" means valid
	}{
		{"bad backend", func(c *Config) { c.Monitor.Backend = "mmio" }, "monitor.backend"},
		{"pin out of range", func(c *Config) { c.Monitor.InputPins = []int{-1} }, "monitor.input_pins[0] = -1"},
		{"duplicate pin", func(c *Config) { c.Monitor.OutputPins = []int{3, 3} }, "listed twice"},
		{"high pins ok", func(c *Config) { c.Monitor.InputPins = []int{32, 63} }, ""},
		{"bad pull", func(c *Config) { c.Monitor.Pull = "sideways" }, "monitor.pull"},
		{"bad interrupt", func(c *Config) { c.Monitor.Interrupt = "level" }, "monitor.interrupt"},
		{"edge on gpiocdev", func(c *Config) { c.Monitor.Backend = "gpiocdev"; c.Monitor.Interrupt = "rising" }, "gpiocdev"},
		{"edge on periph", func(c *Config) { c.Monitor.Backend = "periph"; c.Monitor.Interrupt = "any" }, ""},
		{"negative interval", func(c *Config) { c.Monitor.SampleInterval = -time.Millisecond }, "sample_interval"},
		{"zero samples", func(c *Config) { c.Monitor.SampleCount = 0 }, "sample_count"},
		{"bad filter", func(c *Config) { c.Monitor.Filter = "median" }, "monitor.filter"},
		{"mixed-case filter ok", func(c *Config) { c.Monitor.Filter = "Bitwise" }, ""},
		{"negative capacity", func(c *Config) { c.Bus.Capacity = -1 }, "bus.capacity"},
		{"negative publish timeout", func(c *Config) { c.Bus.PublishTimeout = -1 }, "bus.publish_timeout"},
		{"task without name", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Tasks = []ScheduledTaskConfig{{Schedule: "1m"}}
		}, "name is required"},
		{"duplicate task names", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Tasks = []ScheduledTaskConfig{{Name: "a", Schedule: "1m"}, {Name: "a", Schedule: "@hourly"}}
		}, "not unique"},
		{"bad schedule", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Tasks = []ScheduledTaskConfig{{Name: "a", Schedule: "every tuesday"}}
		}, "neither a duration nor a cron expression"},
		{"zero duration", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Tasks = []ScheduledTaskConfig{{Name: "a", Schedule: "0s"}}
		}, "must be > 0"},
		{"cron ok", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Tasks = []ScheduledTaskConfig{{Name: "a", Schedule: "*/5 * * * *"}}
		}, ""},
		{"disabled scheduler not checked", func(c *Config) {
			c.Scheduler.Tasks = []ScheduledTaskConfig{{}}
		}, ""},
		{"gateway bad addr", func(c *Config) { c.Gateway.Enabled = true; c.Gateway.Addr = "nope" }, "gateway.addr"},
		{"gateway static no tokens", func(c *Config) { c.Gateway.Enabled = true; c.Gateway.Auth.Type = "static" }, "tokens must not be empty"},
		{"gateway empty token", func(c *Config) {
			c.Gateway.Enabled = true
			c.Gateway.Auth = AuthConfig{Type: "static", Tokens: []TokenConfig{{Name: "x"}}}
		}, "tokens[0].token"},
		{"gateway bad auth type", func(c *Config) { c.Gateway.Enabled = true; c.Gateway.Auth.Type = "oauth" }, "gateway.auth.type"},
		{"gateway zero burst", func(c *Config) { c.Gateway.Enabled = true; c.Gateway.RateLimit.Burst = 0 }, "burst"},
		{"gateway mdns needs instance", func(c *Config) {
			c.Gateway.Enabled = true
			c.Gateway.MDNS = MDNSConfig{Enabled: true}
		}, "mdns.instance"},
		{"gateway bad audit size", func(c *Config) {
			c.Gateway.Enabled = true
			c.Gateway.Audit = AuditConfig{Path: "/var/log/gpimon-audit.jsonl", MaxSize: "huge"}
		}, "gateway.audit.max_size"},
		{"gateway audit ok", func(c *Config) {
			c.Gateway.Enabled = true
			c.Gateway.Audit = AuditConfig{Path: "/var/log/gpimon-audit.jsonl", MaxSize: "10MB"}
		}, ""},
		{"bad log level", func(c *Config) { c.Logger.Level = "loud" }, "logger.level"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"bad exporter", func(c *Config) { c.Tracer.Exporter = "jaeger" }, "tracer.exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if len(ve.Errors) != 1 || !strings.Contains(ve.Errors[0], tt.want) {
				t.Errorf("errors = %q, want one containing %q", ve.Errors, tt.want)
			}
		})
	}
}

func TestValidationErrorAccumulates(t *testing.T) {
	cfg := Defaults()
	cfg.Monitor.SampleCount = 0
	cfg.Logger.Level = "loud"
	err := Validate(cfg)
	var ve *ValidationError
	if !errors.As(err, &ve) || len(ve.Errors) != 2 {
		t.Fatalf("err = %v, want two errors", err)
	}
	if !strings.HasPrefix(err.Error(), "config validation failed:") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWarnings(t *testing.T) {
	cfg := Defaults()
	if w := Warnings(cfg); len(w) != 0 {
		t.Fatalf("defaults warned: %v", w)
	}

	cfg.Monitor.InputPins = []int{1, 2}
	cfg.Monitor.OutputPins = []int{2, 3}
	cfg.Monitor.InitialOutput = 1 << 5
	cfg.Monitor.SampleInterval = time.Microsecond
	cfg.Scheduler.Tasks = []ScheduledTaskConfig{{Name: "t", Value: 1<<3 | 1<<7}}
	cfg.Gateway.Enabled = true

	w := strings.Join(Warnings(cfg), "\n")
	for _, want := range []string{
		"pins [2] are both input and output",
		`task "t": value sets pins [7]`,
		"initial_output sets pins [5]",
		"raised to 1ms",
		"auth disabled",
	} {
		if !strings.Contains(w, want) {
			t.Errorf("warnings missing %q:\n%s", want, w)
		}
	}
}
