package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gpimon/cmd/gpimon/daemon"
	"gpimon/internal/infra/config"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := runMonitor(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runMonitor()
	case "set":
		err = runSet(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "doctor":
		err = runDoctor()
	case "seal":
		err = runSeal(os.Stdin, os.Stdout)
	case "daemon":
		err = runDaemon(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'gpimon --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`gpimon - debounced GPIO input monitor and masked output writer

USAGE:
    gpimon [COMMAND] [FLAGS]

COMMANDS:
    run             Run the monitor (default)
    set VALUE       Request a new output value from a running gateway
    status          Print the status of a running monitor
    watch           Print input changes from a running gateway
    doctor          Check config and GPIO backend
    seal            Seal a gateway token read from stdin with GPIMON_CONFIG_KEY
    daemon          Manage gpimon as system service
                    Subcommands: install, uninstall, status

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./gpimon.yaml, .toml also accepted)
    --addr HOST:PORT   Gateway address for set/status/watch (default: gateway.addr)
    --token TOKEN      Gateway token for set/status/watch
    --discover         Find the gateway with mDNS (mdns builds only)

CONFIGURATION:
    Environment: GPIMON_* variables override config
    Drop-ins:    gpimon.d/*.yaml next to the config file override it
    Secrets:     enc:... values are opened with GPIMON_CONFIG_KEY

EXAMPLES:
    gpimon                          # Run with gpimon.yaml
    gpimon --config /etc/gpimon.toml
    gpimon set 0x0FAF               # Drive output pins
    echo s3cret | gpimon seal       # Produce an enc:... token
    gpimon watch --addr 10.0.0.5:8790 --token s3cret
    gpimon daemon install           # Install as system service`)
}

// flagValue returns the value of --name from args, accepting both
// "--name value" and "--name=value".
func flagValue(args []string, name string) string {
	long := "--" + name
	for i, arg := range args {
		if arg == long && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, long+"=") {
			return strings.TrimPrefix(arg, long+"=")
		}
	}
	return ""
}

func hasFlag(args []string, name string) bool {
	long := "--" + name
	for _, arg := range args {
		if arg == long || arg == long+"=true" {
			return true
		}
	}
	return false
}

// positional returns args that are neither flags nor flag values.
func positional(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--") {
			if !strings.Contains(arg, "=") && takesValue(arg) {
				i++
			}
			continue
		}
		out = append(out, arg)
	}
	return out
}

func takesValue(flag string) bool {
	switch flag {
	case "--config", "--addr", "--token":
		return true
	}
	return false
}

func configPath() string {
	if p := flagValue(os.Args, "config"); p != "" {
		return p
	}
	if p := os.Getenv("GPIMON_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath
}

func runDaemon(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: gpimon daemon <install|uninstall|status>")
	}

	switch args[0] {
	case "install":
		cfg := daemon.DefaultConfig()
		if p := flagValue(os.Args, "config"); p != "" {
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			cfg.ConfigPath = abs
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := daemon.Install(cfg); err != nil {
			return err
		}
		fmt.Printf("installed %s\n", daemon.UnitPath(cfg.Name))
		return nil
	case "uninstall":
		return daemon.Uninstall(daemon.Name)
	case "status":
		st, err := daemon.QueryStatus(daemon.Name)
		if err != nil {
			return err
		}
		if st.Running {
			fmt.Printf("gpimon is running (PID %d)\n", st.PID)
		} else {
			fmt.Println("gpimon is not running")
		}
		return nil
	default:
		return fmt.Errorf("unknown daemon subcommand: %s", args[0])
	}
}
