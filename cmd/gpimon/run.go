package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gpimon/internal/adapter/gateway"
	"gpimon/internal/domain"
	"gpimon/internal/infra/config"
	"gpimon/internal/infra/logger"
	"gpimon/internal/infra/middleware"
	"gpimon/internal/infra/tracer"
	"gpimon/internal/security"
	"gpimon/internal/usecase/eventbus"
	"gpimon/internal/usecase/gpi"
	"gpimon/internal/usecase/scheduling"
)

const shutdownTimeout = 10 * time.Second

func runMonitor() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	for _, w := range config.Warnings(cfg) {
		log.Warn("config warning", "detail", w)
	}

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. GPIO backend
	bank, err := openBank(cfg.Monitor, log)
	if err != nil {
		return fmt.Errorf("gpio backend: %w", err)
	}
	defer func() {
		if err := bank.Close(); err != nil {
			log.Error("gpio backend close error", "error", err)
		}
	}()

	monCfg, err := monitorConfig(cfg.Monitor)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	// 4. Event bus & controller
	bus := eventbus.New(eventbus.Config{Capacity: cfg.Bus.Capacity}, log)
	defer bus.Close()

	ctrl := gpi.NewController(bank, bank, bus, log, gpi.ControllerConfig{
		PublishTimeout: cfg.Bus.PublishTimeout,
	})

	unsubLog, err := gpi.OnChange(bus, func(_ context.Context, v uint64) {
		log.Info("input changed", "value", fmt.Sprintf("0x%016x", v))
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer unsubLog()

	// 5. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := ctrl.Initialize(ctx, monCfg); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer stopController(ctrl, log)

	// 6. Scheduler
	if cfg.Scheduler.Enabled {
		sched, err := startScheduler(ctx, cfg.Scheduler, ctrl, log)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer sched.Stop()
	}

	// 7. Gateway
	if cfg.Gateway.Enabled {
		audit, err := openAudit(cfg.Gateway.Audit)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		if audit != nil {
			defer audit.Close()
		}
		srv := newGateway(cfg.Gateway, bus, ctrl, audit, log)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(ctx) }()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Error("gateway shutdown error", "error", err)
			}
		}()

		select {
		case <-srv.Ready():
		case err := <-errCh:
			return fmt.Errorf("gateway: %w", err)
		}
		if cfg.Gateway.MDNS.Enabled {
			go advertise(ctx, cfg.Gateway.MDNS.Instance, srv.BoundAddr(), log)
		}
	}

	log.Info("gpimon started",
		"backend", cfg.Monitor.Backend,
		"input", monCfg.Input.Mask.String(),
		"output", monCfg.Output.Mask.String(),
		"interval", cfg.Monitor.SampleInterval,
		"samples", cfg.Monitor.SampleCount,
		"filter", monCfg.Filter.String(),
		"gateway", cfg.Gateway.Enabled,
	)

	<-ctx.Done()
	log.Info("gpimon shutting down")
	return nil
}

func stopController(ctrl *gpi.Controller, log *slog.Logger) {
	if err := ctrl.Terminate(); err != nil && !errors.Is(err, domain.ErrNotActive) {
		log.Error("terminate error", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ctrl.Wait(ctx); err != nil {
		log.Error("monitor worker did not exit", "error", err)
	}
}

func startScheduler(ctx context.Context, sc config.SchedulerConfig, w scheduling.OutputWriter, log *slog.Logger) (*scheduling.Scheduler, error) {
	sched := scheduling.NewScheduler(w, log)
	for _, t := range sc.Tasks {
		err := sched.AddTask(scheduling.Task{
			Name:     t.Name,
			Schedule: t.Schedule,
			Value:    t.Value,
			OneShot:  t.OneShot,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := sched.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("scheduler started", "tasks", len(sc.Tasks))
	return sched, nil
}

// openAudit returns nil when auditing is not configured.
func openAudit(ac config.AuditConfig) (domain.AuditLogger, error) {
	if ac.Path == "" {
		return nil, nil
	}
	maxSize, err := config.ParseSize(ac.MaxSize)
	if err != nil {
		return nil, err
	}
	a, err := security.NewFileAuditLogger(ac.Path, maxSize)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newGateway(gc config.GatewayConfig, bus domain.EventBus, mon gateway.Monitor, audit domain.AuditLogger, log *slog.Logger) *gateway.Server {
	var auth gateway.Authenticator = gateway.OpenAuth{}
	if gc.Auth.Type == "static" {
		entries := make([]gateway.TokenEntry, len(gc.Auth.Tokens))
		for i, t := range gc.Auth.Tokens {
			entries[i] = gateway.TokenEntry{Token: t.Token, Name: t.Name}
		}
		auth = gateway.NewStaticTokenAuth(entries)
	}
	return gateway.NewServer(bus, mon, auth, gateway.Options{
		Addr: gc.Addr,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: gc.RateLimit.RequestsPerSecond,
			Burst:             gc.RateLimit.Burst,
		},
		Audit: audit,
	}, log)
}

func advertise(ctx context.Context, instance, addr string, log *slog.Logger) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		log.Warn("mdns: bad gateway address", "addr", addr, "error", err)
		return
	}
	port, _ := strconv.Atoi(portStr)
	if err := gateway.Advertise(ctx, instance, port, log); err != nil {
		log.Warn("mdns advertisement unavailable", "error", err)
	}
}
