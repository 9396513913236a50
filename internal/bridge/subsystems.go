package bridge

import (
	"context"

	"github.com/danmuck/spilink/internal/hooks"
	"github.com/rs/zerolog"
)

// Subsystem names, in the order they come up.
const (
	SubsystemSerial    = "serial"
	SubsystemNetCard   = "netcard"
	SubsystemBluetooth = "bluetooth"
)

// builtinSubsystems returns the co-processor's sibling subsystems. They
// only announce themselves; the upper layers attach through the link.
func builtinSubsystems(logger zerolog.Logger) *hooks.Registry {
	announce := func(name string) hooks.Func {
		return hooks.Func{
			ID: name,
			SetupFn: func(context.Context) error {
				logger.Info().Str("subsystem", name).Msg("subsystem_ready")
				return nil
			},
			CleanupFn: func() {
				logger.Info().Str("subsystem", name).Msg("subsystem_released")
			},
		}
	}
	return hooks.NewRegistry(
		announce(SubsystemSerial),
		announce(SubsystemNetCard),
		announce(SubsystemBluetooth),
	)
}
