package main

import (
	"fmt"
	"log/slog"

	"gpimon/internal/adapter/gpio"
	"gpimon/internal/domain"
	"gpimon/internal/infra/config"
	"gpimon/internal/usecase/gpi"
)

// openBank returns the register bank selected by monitor.backend.
func openBank(mc config.MonitorConfig, logger *slog.Logger) (gpio.Bank, error) {
	switch mc.Backend {
	case "", "sim":
		return gpio.NewSimBank(), nil
	case "periph":
		b, err := gpio.NewPeriphBank(logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "gpiocdev":
		chip := mc.Chip
		if chip == "" {
			chip = gpio.DefaultChip
		}
		b, err := gpio.NewCdevBank(chip, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, domain.NewSubSystemError("gpio", "openBank", domain.ErrUnsupported, fmt.Sprintf("backend %q", mc.Backend))
}

// monitorConfig converts the file representation into the controller's Config.
func monitorConfig(mc config.MonitorConfig) (*gpi.Config, error) {
	in, err := mc.InputMask()
	if err != nil {
		return nil, fmt.Errorf("input_pins: %w", err)
	}
	out, err := mc.OutputMask()
	if err != nil {
		return nil, fmt.Errorf("output_pins: %w", err)
	}
	pull, err := domain.ParsePull(mc.Pull)
	if err != nil {
		return nil, err
	}
	irq, err := domain.ParseInterrupt(mc.Interrupt)
	if err != nil {
		return nil, err
	}
	filter, err := gpi.ParseFilter(mc.Filter)
	if err != nil {
		return nil, err
	}

	cfg := &gpi.Config{
		Input: domain.PinConfig{
			Mask:      in,
			Direction: domain.DirectionInput,
			Pull:      pull,
			Interrupt: irq,
		},
		Output: domain.PinConfig{
			Mask:      out,
			Direction: domain.DirectionOutput,
		},
		SampleInterval: mc.SampleInterval,
		SampleCount:    mc.SampleCount,
		Filter:         filter,
	}
	cfg.SetOutputValue(mc.InitialOutput)
	return cfg, nil
}
