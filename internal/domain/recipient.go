package domain

import "time"

// RecipientStatus enumerates the delivery lifecycle of a single recipient.
// Transitions are monotonic forward along pending → sent → delivered → read;
// failed is reachable from pending or sent only and is terminal.
type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientSent      RecipientStatus = "sent"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientRead      RecipientStatus = "read"
	RecipientFailed    RecipientStatus = "failed"
)

// rank orders statuses along the forward delivery path. failed sits outside
// the path and is handled separately by CanTransitionTo.
var recipientStatusRank = map[RecipientStatus]int{
	RecipientPending:   0,
	RecipientSent:      1,
	RecipientDelivered: 2,
	RecipientRead:      3,
}

// CanTransitionTo reports whether moving from s to next is a legal
// recipient transition.
func (s RecipientStatus) CanTransitionTo(next RecipientStatus) bool {
	if s == RecipientFailed {
		return false
	}
	if next == RecipientFailed {
		return s == RecipientPending || s == RecipientSent
	}
	from, ok := recipientStatusRank[s]
	if !ok {
		return false
	}
	to, ok := recipientStatusRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// Recipient is one addressable target of a campaign with its own delivery
// status. Position preserves import order; batches are served FIFO by it.
type Recipient struct {
	ID         string            `json:"id" db:"id"`
	CampaignID string            `json:"campaign_id" db:"campaign_id"`
	Phone      string            `json:"phone" db:"phone"`
	Variables  map[string]string `json:"variables"`
	Status     RecipientStatus   `json:"status" db:"status"`
	Position   int               `json:"position" db:"position"`

	// MessageID is the gateway-assigned id of the sent message; delivery
	// receipts are keyed by it.
	MessageID string `json:"message_id,omitempty" db:"message_id"`

	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt      *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
