package testlog

import (
	"testing"

	"github.com/rs/zerolog"
)

// Logger returns a quiet logger tagged with the test name. Bump the level
// via KLIMATE_LOG_LEVEL handling in observability when debugging locally.
func Logger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.Nop().With().Str("test", t.Name()).Logger()
}
