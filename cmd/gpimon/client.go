package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gpimon/internal/adapter/gateway"
	"gpimon/internal/infra/config"
)

const dialTimeout = 5 * time.Second

// target is where the CLI client connects.
type target struct {
	Addr  string
	Token string
}

// resolveTarget picks the gateway address and token from flags, then the
// environment, then the config file.
func resolveTarget(ctx context.Context, args []string) (target, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		cfg = config.Defaults()
		config.ApplyEnvOverrides(cfg)
	}

	t := target{Addr: flagValue(args, "addr"), Token: flagValue(args, "token")}
	if t.Token == "" {
		t.Token = os.Getenv("GPIMON_GATEWAY_TOKEN")
	}
	if t.Token == "" && len(cfg.Gateway.Auth.Tokens) > 0 {
		t.Token = cfg.Gateway.Auth.Tokens[0].Token
	}

	if t.Addr == "" && hasFlag(args, "discover") {
		addrs, err := gateway.Discover(ctx, slog.New(slog.NewTextHandler(os.Stderr, nil)))
		if err != nil {
			return t, fmt.Errorf("discover: %w", err)
		}
		if len(addrs) == 0 {
			return t, fmt.Errorf("discover: no gateway found")
		}
		t.Addr = addrs[0]
	}
	if t.Addr == "" {
		t.Addr = cfg.Gateway.Addr
	}
	return t, nil
}

func dial(args []string) (*gateway.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	t, err := resolveTarget(ctx, args)
	if err != nil {
		return nil, err
	}
	return gateway.Dial(ctx, t.Addr, t.Token)
}

// parseValue accepts decimal, 0x hex, 0o octal and 0b binary values.
func parseValue(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q: %w", s, err)
	}
	return v, nil
}

func runSet(args []string) error {
	pos := positional(args)
	if len(pos) != 1 {
		return fmt.Errorf("usage: gpimon set VALUE [--addr HOST:PORT] [--token TOKEN]")
	}
	value, err := parseValue(pos[0])
	if err != nil {
		return err
	}

	c, err := dial(args)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := c.Write(ctx, value); err != nil {
		return err
	}
	fmt.Printf("output 0x%x queued\n", value)
	return nil
}

func runStatus(args []string) error {
	c, err := dial(args)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func runWatch(args []string) error {
	c, err := dial(args)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for {
		select {
		case v, ok := <-c.Events():
			if !ok {
				return fmt.Errorf("gateway closed the connection")
			}
			fmt.Printf("%s 0x%016x\n", time.Now().Format(time.RFC3339Nano), v)
		case <-ctx.Done():
			return nil
		}
	}
}
