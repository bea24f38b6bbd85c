package gpi

import (
	"sync/atomic"
	"time"

	"gpimon/internal/domain"
)

// MinSampleInterval is the shortest sampling period; shorter intervals are
// raised to it.
const MinSampleInterval = time.Millisecond

// Config describes one monitoring instance. It is owned by the caller and
// borrowed by the controller until the worker has exited, so it must be
// passed by pointer and outlive the worker.
type Config struct {
	Input          domain.PinConfig
	Output         domain.PinConfig
	SampleInterval time.Duration
	SampleCount    int
	Filter         Filter

	outputValue atomic.Uint64
}

// OutputValue returns the last requested output value.
func (c *Config) OutputValue() uint64 { return c.outputValue.Load() }

// SetOutputValue records a requested output value. It does not touch hardware;
// Initialize applies it once and the write handler applies later requests.
func (c *Config) SetOutputValue(v uint64) { c.outputValue.Store(v) }

func (c *Config) interval() time.Duration {
	if c.SampleInterval < MinSampleInterval {
		return MinSampleInterval
	}
	return c.SampleInterval
}
