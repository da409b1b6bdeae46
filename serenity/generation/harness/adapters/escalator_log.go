package adapters

import (
	"context"

	ports "github.com/ZanzyTHEbar/serenity/serenity/generation/harness/ports"
	"github.com/rs/zerolog"
)

// LogEscalator records crisis alerts in the log when no database is configured.
type LogEscalator struct {
	logger zerolog.Logger
}

func NewLogEscalator(logger zerolog.Logger) *LogEscalator {
	return &LogEscalator{logger: logger.With().Str("component", "escalation").Logger()}
}

// Notify logs the alert. The message body is withheld from the log.
func (e *LogEscalator) Notify(ctx context.Context, identity, message string) error {
	e.logger.Warn().
		Str("identity", identity).
		Int("message_length", len(message)).
		Str("status", AlertPending).
		Msg("crisis alert raised")
	return nil
}

var _ ports.Escalator = (*LogEscalator)(nil)
