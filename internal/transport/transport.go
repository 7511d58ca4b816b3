// Package transport abstracts the outbound message gateway. The dispatch
// loop only needs "send this body to this phone, give me a message id";
// everything gateway-specific (auth, payload shape, typing hints) lives
// behind the Sender interface.
package transport

import "context"

// Message is a single outbound message, fully rendered.
type Message struct {
	To   string
	Body string

	// Typing hints are passed through to gateways that support presence
	// simulation. Gateways without the feature ignore them.
	SimulateTyping   bool
	TypingDurationMs int
}

// Sender delivers messages to recipients. Send is called at most once per
// recipient per campaign; there is no retry on failure.
type Sender interface {
	// Send delivers msg and returns the gateway-assigned message id.
	// Delivery and read receipts reference this id later.
	Send(ctx context.Context, msg Message) (string, error)

	// Ping verifies the gateway is reachable. Used at startup and by the
	// health endpoint.
	Ping(ctx context.Context) error
}
