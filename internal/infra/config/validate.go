package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"gpimon/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateMonitor(cfg, ve)
	validateBus(cfg, ve)
	validateScheduler(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Warnings reports settings that are legal but probably unintended.
func Warnings(cfg *Config) []string {
	var warn []string
	in, errIn := cfg.Monitor.InputMask()
	out, errOut := cfg.Monitor.OutputMask()
	if errIn == nil && errOut == nil {
		if both := in & out; both != 0 {
			warn = append(warn, fmt.Sprintf("monitor: pins %v are both input and output", both.Pins()))
		}
		for _, t := range cfg.Scheduler.Tasks {
			if extra := domain.Mask(t.Value) &^ out; extra != 0 {
				warn = append(warn, fmt.Sprintf("scheduler task %q: value sets pins %v outside output_pins", t.Name, extra.Pins()))
			}
		}
		if extra := domain.Mask(cfg.Monitor.InitialOutput) &^ out; extra != 0 {
			warn = append(warn, fmt.Sprintf("monitor.initial_output sets pins %v outside output_pins", extra.Pins()))
		}
	}
	if cfg.Monitor.SampleInterval > 0 && cfg.Monitor.SampleInterval < time.Millisecond {
		warn = append(warn, fmt.Sprintf("monitor.sample_interval %s is raised to 1ms", cfg.Monitor.SampleInterval))
	}
	if cfg.Gateway.Enabled && cfg.Gateway.Auth.Type == "" {
		warn = append(warn, "gateway: auth disabled, any client may drive outputs")
	}
	return warn
}

var validBackends = map[string]bool{
	"sim":      true,
	"periph":   true,
	"gpiocdev": true,
}

var validFilters = map[string]bool{
	"":        true,
	"window":  true,
	"bitwise": true,
	"and":     true,
}

func validateMonitor(cfg *Config, ve *ValidationError) {
	m := cfg.Monitor
	if !validBackends[m.Backend] {
		ve.Add("monitor.backend %q is invalid (want: sim, periph, gpiocdev)", m.Backend)
	}
	validatePins("monitor.input_pins", m.InputPins, ve)
	validatePins("monitor.output_pins", m.OutputPins, ve)
	if _, err := domain.ParsePull(m.Pull); err != nil {
		ve.Add("monitor.pull %q is invalid (want: none, up, down)", m.Pull)
	}
	intr, err := domain.ParseInterrupt(m.Interrupt)
	if err != nil {
		ve.Add("monitor.interrupt %q is invalid (want: disabled, rising, falling, any)", m.Interrupt)
	} else if intr != domain.InterruptDisabled && m.Backend == "gpiocdev" {
		ve.Add("monitor.interrupt must be disabled with the gpiocdev backend")
	}
	if m.SampleInterval < 0 {
		ve.Add("monitor.sample_interval must be >= 0")
	}
	if m.SampleCount < 1 {
		ve.Add("monitor.sample_count must be >= 1")
	}
	if !validFilters[strings.ToLower(m.Filter)] {
		ve.Add("monitor.filter %q is invalid (want: window, bitwise, and)", m.Filter)
	}
}

func validatePins(field string, pins []int, ve *ValidationError) {
	seen := make(map[int]bool, len(pins))
	for i, p := range pins {
		if p < 0 || p >= domain.MaxPins {
			ve.Add("%s[%d] = %d is outside 0..%d", field, i, p, domain.MaxPins-1)
			continue
		}
		if seen[p] {
			ve.Add("%s[%d] = %d is listed twice", field, i, p)
		}
		seen[p] = true
	}
}

func validateBus(cfg *Config, ve *ValidationError) {
	if cfg.Bus.Capacity < 0 {
		ve.Add("bus.capacity must be >= 0")
	}
	if cfg.Bus.PublishTimeout < 0 {
		ve.Add("bus.publish_timeout must be >= 0")
	}
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	names := make(map[string]bool)
	for i, t := range cfg.Scheduler.Tasks {
		if t.Name == "" {
			ve.Add("scheduler.tasks[%d].name is required", i)
		} else if names[t.Name] {
			ve.Add("scheduler.tasks[%d].name %q is not unique", i, t.Name)
		}
		names[t.Name] = true
		if t.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule is required", i)
			continue
		}
		if d, err := time.ParseDuration(t.Schedule); err == nil {
			if d <= 0 {
				ve.Add("scheduler.tasks[%d].schedule duration must be > 0", i)
			}
			continue
		}
		if _, err := scheduleParser.Parse(t.Schedule); err != nil {
			ve.Add("scheduler.tasks[%d].schedule %q is neither a duration nor a cron expression", i, t.Schedule)
		}
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
	} else if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}

	switch cfg.Gateway.Auth.Type {
	case "":
	case "static":
		if len(cfg.Gateway.Auth.Tokens) == 0 {
			ve.Add("gateway.auth.tokens must not be empty when auth type is static")
		}
		for i, tok := range cfg.Gateway.Auth.Tokens {
			if tok.Token == "" {
				ve.Add("gateway.auth.tokens[%d].token is required", i)
			}
		}
	default:
		ve.Add("gateway.auth.type %q is invalid (want: static or empty)", cfg.Gateway.Auth.Type)
	}

	if cfg.Gateway.RateLimit.RequestsPerSecond < 0 {
		ve.Add("gateway.rate_limit.requests_per_second must be >= 0")
	}
	if cfg.Gateway.RateLimit.RequestsPerSecond > 0 && cfg.Gateway.RateLimit.Burst < 1 {
		ve.Add("gateway.rate_limit.burst must be >= 1 when rate limiting is enabled")
	}
	if cfg.Gateway.MDNS.Enabled && cfg.Gateway.MDNS.Instance == "" {
		ve.Add("gateway.mdns.instance is required when mdns is enabled")
	}
	if _, err := ParseSize(cfg.Gateway.Audit.MaxSize); err != nil {
		ve.Add("gateway.audit.max_size %q is invalid (e.g. 10MB)", cfg.Gateway.Audit.MaxSize)
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
