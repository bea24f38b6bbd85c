package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpimon/internal/adapter/gpio"
	"gpimon/internal/domain"
	"gpimon/internal/infra/config"
	"gpimon/internal/usecase/gpi"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMonitorConfig(t *testing.T) {
	mc := config.Defaults().Monitor
	mc.InputPins = []int{0, 8}
	mc.OutputPins = []int{4, 33}
	mc.Pull = "up"
	mc.Interrupt = "rising"
	mc.Filter = "bitwise"
	mc.SampleCount = 5
	mc.InitialOutput = 1 << 33

	cfg, err := monitorConfig(mc)
	require.NoError(t, err)

	assert.Equal(t, domain.Mask(0x101), cfg.Input.Mask)
	assert.Equal(t, domain.DirectionInput, cfg.Input.Direction)
	assert.Equal(t, domain.PullUp, cfg.Input.Pull)
	assert.Equal(t, domain.InterruptRising, cfg.Input.Interrupt)
	assert.Equal(t, domain.Mask(1<<4|1<<33), cfg.Output.Mask)
	assert.Equal(t, domain.DirectionOutput, cfg.Output.Direction)
	assert.Equal(t, gpi.FilterBitwise, cfg.Filter)
	assert.Equal(t, 5, cfg.SampleCount)
	assert.Equal(t, 10*time.Millisecond, cfg.SampleInterval)
	assert.Equal(t, uint64(1<<33), cfg.OutputValue())
}

func TestMonitorConfigErrors(t *testing.T) {
	tests := map[string]func(*config.MonitorConfig){
		"input pin":  func(m *config.MonitorConfig) { m.InputPins = []int{64} },
		"output pin": func(m *config.MonitorConfig) { m.OutputPins = []int{-1} },
		"pull":       func(m *config.MonitorConfig) { m.Pull = "sideways" },
		"interrupt":  func(m *config.MonitorConfig) { m.Interrupt = "level" },
		"filter":     func(m *config.MonitorConfig) { m.Filter = "median" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			mc := config.Defaults().Monitor
			mutate(&mc)
			_, err := monitorConfig(mc)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestOpenBank(t *testing.T) {
	bank, err := openBank(config.MonitorConfig{Backend: "sim"}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &gpio.SimBank{}, bank)
	require.NoError(t, bank.Close())

	_, err = openBank(config.MonitorConfig{Backend: "spi"}, discardLogger())
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

type recordingWriter struct{ values chan uint64 }

func (w recordingWriter) RequestOutput(_ context.Context, v uint64) error {
	w.values <- v
	return nil
}

func TestStartScheduler(t *testing.T) {
	w := recordingWriter{values: make(chan uint64, 4)}
	sc := config.SchedulerConfig{
		Enabled: true,
		Tasks:   []config.ScheduledTaskConfig{{Name: "blink", Schedule: "20ms", Value: 0xA, OneShot: true}},
	}

	sched, err := startScheduler(context.Background(), sc, w, discardLogger())
	require.NoError(t, err)
	defer sched.Stop()

	select {
	case v := <-w.values:
		assert.Equal(t, uint64(0xA), v)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire")
	}
}

func TestStartSchedulerRejectsBadTask(t *testing.T) {
	sc := config.SchedulerConfig{Tasks: []config.ScheduledTaskConfig{{Name: "bad", Schedule: "whenever"}}}
	_, err := startScheduler(context.Background(), sc, recordingWriter{}, discardLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestNewGatewayAuth(t *testing.T) {
	gc := config.Defaults().Gateway
	gc.Auth.Type = "static"
	gc.Auth.Tokens = []config.TokenConfig{{Token: "t1", Name: "panel"}}

	srv := newGateway(gc, nil, nil, nil, discardLogger())
	require.NotNil(t, srv)
}

func TestOpenAudit(t *testing.T) {
	a, err := openAudit(config.AuditConfig{})
	require.NoError(t, err)
	assert.Nil(t, a)

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err = openAudit(config.AuditConfig{Path: path, MaxSize: "1KB"})
	require.NoError(t, err)
	require.NotNil(t, a)
	require.NoError(t, a.Log(context.Background(), domain.AuditEvent{Type: domain.AuditOutputWrite}))
	require.NoError(t, a.Close())

	_, err = openAudit(config.AuditConfig{Path: path, MaxSize: "big"})
	assert.Error(t, err)
}
