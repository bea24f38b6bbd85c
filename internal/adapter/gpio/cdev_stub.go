//go:build !(edge && linux)

package gpio

import (
	"log/slog"

	"gpimon/internal/domain"
)

// DefaultChip is the character device used when none is configured.
const DefaultChip = "gpiochip0"

// NewCdevBank is only available in Linux edge builds.
func NewCdevBank(_ string, _ *slog.Logger) (Bank, error) {
	return nil, domain.NewSubSystemError("gpio", "NewCdevBank", domain.ErrUnsupported, "build with -tags edge on linux")
}
