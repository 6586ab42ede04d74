// Package logging wraps zerolog with the structured fields every
// component attaches: conversation id, request id, and component name.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

var base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

// For returns a logger scoped to one component, e.g. logging.For("ingress").
func For(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// WithConversation attaches conversation/request correlation fields.
func WithConversation(l zerolog.Logger, conversationID, requestID string) zerolog.Logger {
	return l.With().Str("conversation_id", conversationID).Str("request_id", requestID).Logger()
}

// SetLevel adjusts the global minimum level, e.g. from configuration.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
