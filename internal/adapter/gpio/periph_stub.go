//go:build !edge

package gpio

import (
	"log/slog"

	"gpimon/internal/domain"
)

// NewPeriphBank is only available in edge builds.
func NewPeriphBank(_ *slog.Logger) (Bank, error) {
	return nil, domain.NewSubSystemError("gpio", "NewPeriphBank", domain.ErrUnsupported, "build with -tags edge")
}
