// Package ingest is the entry point for delivery and engagement signals.
// Events advance distribution status, feed the timing model, and cancel
// follow-ups on engagement.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignite/campaign-dispatch/internal/campaign"
)

// EventType classifies an inbound signal.
type EventType string

const (
	EventSent       EventType = "sent"
	EventDelivered  EventType = "delivered"
	EventOpened     EventType = "opened"
	EventClicked    EventType = "clicked"
	EventBounced    EventType = "bounced"
	EventComplained EventType = "complained"
)

// Event is one inbound webhook signal. DistributionRef is optional; events
// without one resolve through the recipient address.
type Event struct {
	Type             EventType         `json:"type"`
	RecipientAddress string            `json:"recipientAddress"`
	DistributionRef  string            `json:"distributionRef,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Validate normalizes and checks the envelope.
func (e *Event) Validate() error {
	e.Type = EventType(strings.ToLower(string(e.Type)))
	switch e.Type {
	case EventSent, EventDelivered, EventOpened, EventClicked, EventBounced, EventComplained:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.RecipientAddress == "" && e.DistributionRef == "" {
		return fmt.Errorf("event carries neither recipientAddress nor distributionRef")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return nil
}

// statusFor maps an event type onto the distribution status machine.
// A complaint is handled as a bounce: the address is done receiving from
// us either way.
func statusFor(t EventType) campaign.DistStatus {
	switch t {
	case EventSent:
		return campaign.DistSent
	case EventDelivered:
		return campaign.DistDelivered
	case EventOpened:
		return campaign.DistOpened
	case EventClicked:
		return campaign.DistClicked
	default:
		return campaign.DistBounced
	}
}
