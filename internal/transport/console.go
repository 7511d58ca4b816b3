package transport

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/textflare/dispatch/internal/pkg/logger"
)

// ConsoleSender logs messages instead of sending them. Used in dev mode
// when no gateway is configured, and in tests.
type ConsoleSender struct{}

// NewConsoleSender creates a sender that writes to the process log.
func NewConsoleSender() *ConsoleSender {
	return &ConsoleSender{}
}

// Send logs the message and returns a locally generated message id.
func (c *ConsoleSender) Send(ctx context.Context, msg Message) (string, error) {
	id := uuid.New().String()
	log.Printf("[Transport] (console) %s -> %s: %q", id, logger.RedactPhone(msg.To), msg.Body)
	return id, nil
}

// Ping always succeeds; there is nothing to reach.
func (c *ConsoleSender) Ping(ctx context.Context) error {
	return nil
}
