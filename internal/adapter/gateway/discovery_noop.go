//go:build !mdns

package gateway

import (
	"context"
	"log/slog"

	"gpimon/internal/domain"
)

// MDNSSupported reports whether Advertise and Discover are functional.
const MDNSSupported = false

// Advertise is unavailable without the mdns build tag.
func Advertise(_ context.Context, _ string, _ int, _ *slog.Logger) error {
	return domain.NewSubSystemError("gateway", "Advertise", domain.ErrUnsupported, "built without mdns tag")
}

// Discover is unavailable without the mdns build tag.
func Discover(_ context.Context, _ *slog.Logger) ([]string, error) {
	return nil, domain.NewSubSystemError("gateway", "Discover", domain.ErrUnsupported, "built without mdns tag")
}
