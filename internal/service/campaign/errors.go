package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoRecipients      = errors.New("campaign has no recipients")
	ErrNotDraft          = errors.New("campaign is not in draft")

	// ErrTransportUnreachable means the outbound gateway failed its health
	// check; starting a campaign that cannot send is refused.
	ErrTransportUnreachable = errors.New("message transport unreachable")
)
