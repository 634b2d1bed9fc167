// Package campaign owns the campaign lifecycle and the per-recipient
// distribution records, including the forward-only status machine that
// event ingestion drives.
package campaign

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the campaign lifecycle state. Completed and cancelled are
// terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Campaign is one distribution run of a content payload to a recipient set.
type Campaign struct {
	ID              uuid.UUID
	Owner           string
	ContentRef      string
	Category        string
	Status          Status
	TotalRecipients int
	SentCount       int
	OpenedCount     int
	DailyBatchSize  int
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// DistStatus is the per-recipient delivery/engagement state.
type DistStatus string

const (
	DistPending   DistStatus = "pending"
	DistSent      DistStatus = "sent"
	DistDelivered DistStatus = "delivered"
	DistOpened    DistStatus = "opened"
	DistClicked   DistStatus = "clicked"
	DistBounced   DistStatus = "bounced"
	DistFailed    DistStatus = "failed"
)

// Engaged reports whether the status represents recipient engagement that
// should suppress follow-ups.
func (s DistStatus) Engaged() bool {
	return s == DistOpened || s == DistClicked
}

// allowedFrom lists the statuses a transition may start from. Status only
// moves forward along pending→sent→{delivered|bounced}→opened→clicked; any
// other attempt is a silent no-op at the store level.
var allowedFrom = map[DistStatus][]DistStatus{
	DistSent:      {DistPending},
	DistFailed:    {DistPending},
	DistDelivered: {DistSent},
	DistBounced:   {DistPending, DistSent},
	DistOpened:    {DistSent, DistDelivered},
	DistClicked:   {DistSent, DistDelivered, DistOpened},
}

// Distribution is the per-recipient record of a campaign's delivery
// lifecycle.
type Distribution struct {
	ID           uuid.UUID
	CampaignID   uuid.UUID
	RecipientID  uuid.UUID
	Status       DistStatus
	SentAt       *time.Time
	OpenedAt     *time.Time
	ClickedAt    *time.Time
	ErrorMessage string
	CreatedAt    time.Time
}

// ErrNotFound is returned when a campaign or distribution does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned for lifecycle operations that do not
// apply to the campaign's current status (pausing a completed campaign,
// resuming an active one).
var ErrInvalidTransition = errors.New("invalid campaign state transition")

// StartResult is the explicit outcome of Controller.Start. A declined start
// (zero eligible recipients) is a result value, not an error.
type StartResult struct {
	Declined        bool       `json:"declined"`
	Reason          string     `json:"reason,omitempty"`
	CampaignID      uuid.UUID  `json:"campaign_id,omitempty"`
	TotalRecipients int        `json:"total_recipients"`
}

// Snapshot is the progress view returned by Controller.Status.
type Snapshot struct {
	CampaignID      uuid.UUID `json:"campaign_id"`
	Status          Status    `json:"status"`
	TotalRecipients int       `json:"total_recipients"`
	SentCount       int       `json:"sent_count"`
	OpenedCount     int       `json:"opened_count"`
	ProgressPct     float64   `json:"progress_pct"`
	DaysRemaining   int       `json:"days_remaining"`
}
