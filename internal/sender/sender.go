// Package sender delivers rendered messages through an outbound provider.
package sender

import (
	"context"
	"time"
)

// Message is one rendered, addressed send.
type Message struct {
	To             string
	FromName       string
	FromAddress    string
	Subject        string
	HTMLBody       string
	TextBody       string
	CampaignID     string
	DistributionID string
}

// Result reports a single delivery attempt.
type Result struct {
	Success   bool
	MessageID string
	Provider  string
	Error     error
	SentAt    time.Time
}

// Sender delivers one message. Implementations must respect ctx deadlines;
// the scheduler bounds every call with the configured send timeout.
type Sender interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
}
