package testlog

import (
	"testing"

	"github.com/danmuck/amulectl/internal/logging"
	"github.com/rs/zerolog"
)

// Start configures test logging and records the test name.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	l := logging.New("test")
	l.Info().Str("test", t.Name()).Msg("start")
}

// Logger returns a logger that writes through t.Log.
func Logger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.ConsoleWriter{Out: zerolog.NewTestWriter(t), NoColor: true}).
		Level(zerolog.DebugLevel).
		With().
		Str("test", t.Name()).
		Logger()
}
