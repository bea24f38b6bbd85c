package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"gpimon/internal/adapter/gateway"
	"gpimon/internal/domain"
	"gpimon/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Config warnings", Fn: checkConfigWarnings},
		{Name: "GPIO backend", Fn: checkBackend},
		{Name: "Gateway address", Fn: checkGatewayAddr},
		{Name: "Gateway auth", Fn: checkGatewayAuth},
		{Name: "mDNS", Fn: checkMDNS},
	}

	fmt.Println("gpimon doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	pass, warn, fail := runChecks(os.Stdout, checks, cfg)

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before running gpimon.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\ngpimon should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! gpimon is ready to run.")
	}
	return nil
}

func runChecks(w io.Writer, checks []Check, cfg *config.Config) (pass, warn, fail int) {
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// checkConfigFile returns a check that verifies the config file parses and validates.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Check %s syntax and values", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config at %s, using defaults (sim backend, no pins)", cfgPath),
				Fix:     "Create gpimon.yaml with monitor.input_pins and monitor.output_pins",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkConfigWarnings(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	warns := config.Warnings(cfg)
	if len(warns) > 0 {
		return CheckResult{Status: StatusWarn, Message: strings.Join(warns, "; ")}
	}
	return CheckResult{Status: StatusPass, Message: "no suspicious settings"}
}

// checkBackend opens the configured backend, reads both input words and
// releases it again.
func checkBackend(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if _, err := monitorConfig(cfg.Monitor); err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}

	bank, err := openBank(cfg.Monitor, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		res := CheckResult{Status: StatusFail, Message: fmt.Sprintf("%s: %v", cfg.Monitor.Backend, err)}
		if errors.Is(err, domain.ErrUnsupported) {
			res.Fix = "Rebuild with -tags edge, or set monitor.backend: sim"
		}
		return res
	}
	defer bank.Close()

	lo, hi := bank.Input(0), bank.Input(1)
	if cfg.Monitor.Backend == "sim" || cfg.Monitor.Backend == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "sim backend, no hardware is touched",
			Fix:     "Set monitor.backend to periph or gpiocdev on the target board",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s opened, inputs 0x%08x%08x", cfg.Monitor.Backend, hi, lo),
	}
}

// checkGatewayAddr verifies the gateway address can be bound.
func checkGatewayAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if !cfg.Gateway.Enabled {
		return CheckResult{Status: StatusPass, Message: "gateway disabled"}
	}
	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("cannot bind %s: %v", cfg.Gateway.Addr, err),
			Fix:     "Another gpimon may already be running; change gateway.addr otherwise",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s is free", cfg.Gateway.Addr)}
}

func checkGatewayAuth(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if !cfg.Gateway.Enabled {
		return CheckResult{Status: StatusPass, Message: "gateway disabled"}
	}
	if cfg.Gateway.Auth.Type == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "gateway accepts unauthenticated clients",
			Fix:     "Set gateway.auth.type: static and add tokens (GPIMON_GATEWAY_TOKEN also works)",
		}
	}
	for _, t := range cfg.Gateway.Auth.Tokens {
		if config.IsSealed(t.Token) {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("token %q is still sealed", t.Name),
				Fix:     "Export " + config.KeyEnv + " with the passphrase used by 'gpimon seal'",
			}
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d static token(s)", len(cfg.Gateway.Auth.Tokens))}
}

func checkMDNS(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if !cfg.Gateway.Enabled || !cfg.Gateway.MDNS.Enabled {
		return CheckResult{Status: StatusPass, Message: "mdns disabled"}
	}
	if !gateway.MDNSSupported {
		return CheckResult{
			Status:  StatusWarn,
			Message: "gateway.mdns.enabled is set but this binary has no mdns support",
			Fix:     "Rebuild with -tags mdns",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("advertising as %q", cfg.Gateway.MDNS.Instance)}
}
