// Package daemon installs gpimon as a systemd service.
package daemon

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"text/template"
)

// Name is the default service name.
const Name = "gpimon"

// UnitDir is where service units are written.
var UnitDir = "/etc/systemd/system"

// Config holds parameters for service installation.
type Config struct {
	Name       string
	BinaryPath string
	ConfigPath string
	User       string
	Group      string // supplementary group granting GPIO access, e.g. "gpio"
	Env        map[string]string // non-secret variables; secrets go in /etc/<name>/env
}

// Status holds the status of an installed service.
type Status struct {
	Running bool
	PID     int
}

// DefaultConfig returns a Config for a system-wide install.
func DefaultConfig() Config {
	binary, _ := os.Executable()
	if binary == "" {
		binary = "/usr/local/bin/gpimon"
	}
	return Config{
		Name:       Name,
		BinaryPath: binary,
		ConfigPath: filepath.Join("/etc", Name, "gpimon.yaml"),
		User:       "root",
		Group:      "gpio",
	}
}

// Validate checks the Config for correctness.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.BinaryPath == "" {
		return fmt.Errorf("binary path is required")
	}
	if !filepath.IsAbs(c.ConfigPath) {
		return fmt.Errorf("config path %q must be absolute", c.ConfigPath)
	}
	info, err := os.Stat(c.BinaryPath)
	if err != nil {
		return fmt.Errorf("binary %q: %w", c.BinaryPath, err)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("binary %q is not executable", c.BinaryPath)
	}
	return nil
}

const unitTemplate = `[Unit]
Description={{.Name}} GPIO monitor
After=network.target

[Service]
Type=simple
ExecStart={{.BinaryPath}} run --config {{.ConfigPath}}
User={{.User}}
{{- if .Group}}
SupplementaryGroups={{.Group}}
{{- end}}
EnvironmentFile=-/etc/{{.Name}}/env
{{- range $k, $v := .Env}}
Environment={{$k}}={{$v}}
{{- end}}
Restart=on-failure
RestartSec=2
KillSignal=SIGTERM
TimeoutStopSec=15
NoNewPrivileges=true
ProtectSystem=strict
ProtectHome=true
PrivateTmp=true

[Install]
WantedBy=multi-user.target
`

// RenderUnit renders the systemd service file content.
func RenderUnit(cfg Config) (string, error) {
	tmpl, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// UnitPath returns the unit file path for a service name.
func UnitPath(name string) string {
	return filepath.Join(UnitDir, name+".service")
}

// Install writes the unit file and enables and starts the service.
func Install(cfg Config) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	content, err := RenderUnit(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(UnitPath(cfg.Name), []byte(content), 0644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}
	return systemctl(
		[]string{"daemon-reload"},
		[]string{"enable", cfg.Name},
		[]string{"start", cfg.Name},
	)
}

// Uninstall stops and disables the service and removes its unit file.
func Uninstall(name string) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	exec.Command("systemctl", "stop", name).Run()    // best effort
	exec.Command("systemctl", "disable", name).Run() // best effort
	if err := os.Remove(UnitPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit file: %w", err)
	}
	return systemctl([]string{"daemon-reload"})
}

// QueryStatus reports whether the service is active and its main PID.
func QueryStatus(name string) (*Status, error) {
	if runtime.GOOS != "linux" {
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	out, _ := exec.Command("systemctl", "is-active", name).Output()
	st := &Status{Running: strings.TrimSpace(string(out)) == "active"}
	if !st.Running {
		return st, nil
	}
	if pidOut, err := exec.Command("systemctl", "show", "--property=MainPID", name).Output(); err == nil {
		st.PID = parseMainPID(string(pidOut))
	}
	return st, nil
}

func parseMainPID(s string) int {
	_, v, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok {
		return 0
	}
	pid, _ := strconv.Atoi(v)
	return pid
}

func systemctl(cmds ...[]string) error {
	for _, args := range cmds {
		if out, err := exec.Command("systemctl", args...).CombinedOutput(); err != nil {
			return fmt.Errorf("systemctl %s: %s: %w", strings.Join(args, " "), bytes.TrimSpace(out), err)
		}
	}
	return nil
}
