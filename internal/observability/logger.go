package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component returns a child of the global logger tagged with component.
// Call it after logging is configured; the global logger is captured.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// LinkComponent is Component with the link name attached.
func LinkComponent(name, link string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Str("link", link).Logger()
}
