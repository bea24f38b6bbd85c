package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"gpimon/internal/domain"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "gpimon.yaml"

// Config is the top-level daemon configuration.
type Config struct {
	Monitor   MonitorConfig   `yaml:"monitor" toml:"monitor"`
	Bus       BusConfig       `yaml:"bus" toml:"bus"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
	Gateway   GatewayConfig   `yaml:"gateway" toml:"gateway"`
	Logger    LoggerConfig    `yaml:"logger" toml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer" toml:"tracer"`
	Includes  []string        `yaml:"includes,omitempty" toml:"includes,omitempty"`
}

// MonitorConfig describes the pins the daemon watches and drives.
type MonitorConfig struct {
	Backend        string        `yaml:"backend" toml:"backend"` // "sim", "periph", "gpiocdev"
	Chip           string        `yaml:"chip,omitempty" toml:"chip,omitempty"`
	InputPins      []int         `yaml:"input_pins" toml:"input_pins"`
	OutputPins     []int         `yaml:"output_pins" toml:"output_pins"`
	Pull           string        `yaml:"pull" toml:"pull"`           // "none", "up", "down"
	Interrupt      string        `yaml:"interrupt" toml:"interrupt"` // "disabled", "rising", "falling", "any"
	SampleInterval time.Duration `yaml:"sample_interval" toml:"sample_interval"`
	SampleCount    int           `yaml:"sample_count" toml:"sample_count"`
	Filter         string        `yaml:"filter" toml:"filter"` // "window", "bitwise", "and"
	InitialOutput  uint64        `yaml:"initial_output" toml:"initial_output"`
}

// InputMask returns the input pins as a mask.
func (m MonitorConfig) InputMask() (domain.Mask, error) { return domain.MaskOf(m.InputPins...) }

// OutputMask returns the output pins as a mask.
func (m MonitorConfig) OutputMask() (domain.Mask, error) { return domain.MaskOf(m.OutputPins...) }

// BusConfig holds event bus settings.
type BusConfig struct {
	Capacity       int           `yaml:"capacity" toml:"capacity"`
	PublishTimeout time.Duration `yaml:"publish_timeout" toml:"publish_timeout"` // bound for output requests, 0 = unbounded
}

// SchedulerConfig holds cron/scheduler settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled" toml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks" toml:"tasks"`
}

// ScheduledTaskConfig defines a single scheduled output write.
type ScheduledTaskConfig struct {
	Name     string `yaml:"name" toml:"name"`
	Schedule string `yaml:"schedule" toml:"schedule"` // cron expression or duration string
	Value    uint64 `yaml:"value" toml:"value"`
	OneShot  bool   `yaml:"one_shot,omitempty" toml:"one_shot,omitempty"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled   bool            `yaml:"enabled" toml:"enabled"`
	Addr      string          `yaml:"addr" toml:"addr"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	MDNS      MDNSConfig      `yaml:"mdns" toml:"mdns"`
	Audit     AuditConfig     `yaml:"audit" toml:"audit"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type" toml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty" toml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token" toml:"token"`
	Name  string `yaml:"name" toml:"name"`
}

// RateLimitConfig holds per-client HTTP rate limits for the gateway.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"` // 0 disables limiting
	Burst             int     `yaml:"burst" toml:"burst"`
}

// MDNSConfig controls LAN advertisement of the gateway.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Instance string `yaml:"instance" toml:"instance"`
}

// AuditConfig enables the JSONL audit trail of remote output writes.
type AuditConfig struct {
	Path    string `yaml:"path" toml:"path"`         // empty disables auditing
	MaxSize string `yaml:"max_size" toml:"max_size"` // e.g. "10MB"; rotated to <path>.1 past it
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Exporter string `yaml:"exporter" toml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Backend:        "sim",
			Pull:           "none",
			Interrupt:      "disabled",
			SampleInterval: 10 * time.Millisecond,
			SampleCount:    3,
			Filter:         "window",
		},
		Bus: BusConfig{
			Capacity:       32,
			PublishTimeout: time.Second,
		},
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:8790",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				Burst:             20,
			},
			MDNS: MDNSConfig{Instance: "gpimon"},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// decode unmarshals data onto cfg. Files ending in .toml are TOML, anything
// else is YAML.
func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Load reads a YAML or TOML config file together with its includes and the
// drop-ins in DropInDir, applies env var overrides, and decrypts secrets. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, domain.NewDomainError("config.Load", domain.ErrConfigLoad, path).WithCause(err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	ov := newOverlay(absPath)
	if err := ov.apply(cfg, absPath, 0); err != nil {
		return nil, err
	}
	if err := ov.applyDropIns(cfg); err != nil {
		return nil, err
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(KeyEnv); passphrase != "" {
		if err := openSecrets(cfg, passphrase); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps GPIMON_* env vars to config fields. Values that do
// not parse are ignored and left for Validate to judge the file value.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GPIMON_MONITOR_BACKEND"); v != "" {
		cfg.Monitor.Backend = v
	}
	if v := os.Getenv("GPIMON_MONITOR_CHIP"); v != "" {
		cfg.Monitor.Chip = v
	}
	if v := os.Getenv("GPIMON_MONITOR_INPUT_PINS"); v != "" {
		if pins, err := parsePins(v); err == nil {
			cfg.Monitor.InputPins = pins
		}
	}
	if v := os.Getenv("GPIMON_MONITOR_OUTPUT_PINS"); v != "" {
		if pins, err := parsePins(v); err == nil {
			cfg.Monitor.OutputPins = pins
		}
	}
	if v := os.Getenv("GPIMON_MONITOR_PULL"); v != "" {
		cfg.Monitor.Pull = v
	}
	if v := os.Getenv("GPIMON_MONITOR_SAMPLE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.SampleInterval = d
		}
	}
	if v := os.Getenv("GPIMON_MONITOR_SAMPLE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.SampleCount = n
		}
	}
	if v := os.Getenv("GPIMON_MONITOR_FILTER"); v != "" {
		cfg.Monitor.Filter = v
	}
	if v := os.Getenv("GPIMON_BUS_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bus.Capacity = n
		}
	}
	if v := os.Getenv("GPIMON_GATEWAY_ENABLED"); v != "" {
		cfg.Gateway.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("GPIMON_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("GPIMON_GATEWAY_TOKEN"); v != "" && len(cfg.Gateway.Auth.Tokens) == 0 {
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = []TokenConfig{{Token: v, Name: "env"}}
	}
	if v := os.Getenv("GPIMON_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("GPIMON_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("GPIMON_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("GPIMON_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// parsePins parses a comma-separated pin list such as "4, 17,27".
func parsePins(s string) ([]int, error) {
	var pins []int
	for _, p := range splitAndTrim(s, ",") {
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("pin %q: %w", p, err)
		}
		pins = append(pins, n)
	}
	return pins, nil
}

var sizeUnits = []struct {
	suffix string
	factor int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseSize parses a human-readable size string (e.g. "512KB", "10MB").
// Units are case-insensitive powers of 1024. Empty means 0.
func ParseSize(s string) (int64, error) {
	num := strings.ToUpper(strings.TrimSpace(s))
	if num == "" {
		return 0, nil
	}
	factor := int64(1)
	for _, u := range sizeUnits {
		if rest, ok := strings.CutSuffix(num, u.suffix); ok {
			num, factor = strings.TrimSpace(rest), u.factor
			break
		}
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n < 0 {
		return 0, domain.NewDomainError("config.ParseSize", domain.ErrInvalidInput, fmt.Sprintf("size %q", s))
	}
	return n * factor, nil
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// validatePermissions checks the config file is not writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
