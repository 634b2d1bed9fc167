package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/campaign"
	"github.com/ignite/campaign-dispatch/internal/ingest"
	"github.com/ignite/campaign-dispatch/internal/pkg/httputil"
	"github.com/ignite/campaign-dispatch/internal/timing"
)

// CampaignControl is the lifecycle surface the handlers drive. Satisfied
// by *campaign.Controller.
type CampaignControl interface {
	Start(ctx context.Context, owner, contentRef, category string, weeklyQuota int) (*campaign.StartResult, error)
	Pause(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID) error
	Stop(ctx context.Context, id uuid.UUID) error
	Status(ctx context.Context, id uuid.UUID) (*campaign.Snapshot, error)
}

// RecommendQuery answers timing queries. Satisfied by *timing.Recommender.
type RecommendQuery interface {
	Recommend(ctx context.Context, scope timing.Scope) (*timing.Recommendation, error)
	NextOccurrence(country string, dayOfWeek, hourOfDay int, now time.Time) time.Time
}

// EventSink accepts inbound events. Satisfied by *ingest.Queue.
type EventSink interface {
	Enqueue(ctx context.Context, ev *ingest.Event) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	control   CampaignControl
	recommend RecommendQuery
	events    EventSink
	owner     string
}

// NewHandlers creates the handler set.
func NewHandlers(control CampaignControl, recommend RecommendQuery, events EventSink, owner string) *Handlers {
	return &Handlers{control: control, recommend: recommend, events: events, owner: owner}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

type startRequest struct {
	ContentRef  string `json:"content_ref"`
	Category    string `json:"category"`
	WeeklyQuota int    `json:"weekly_quota"`
}

// StartCampaign creates and activates a campaign. A declined start (no
// eligible recipients) returns 200 with declined=true, not an error.
func (h *Handlers) StartCampaign(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	if req.ContentRef == "" || req.Category == "" {
		httputil.BadRequest(w, "content_ref and category are required")
		return
	}

	result, err := h.control.Start(r.Context(), h.owner, req.ContentRef, req.Category, req.WeeklyQuota)
	if err != nil {
		httputil.ServerError(w, err)
		return
	}
	if result.Declined {
		httputil.OK(w, result)
		return
	}
	httputil.Created(w, result)
}

func (h *Handlers) campaignID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid campaign id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) error) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, campaign.ErrNotFound):
			httputil.NotFound(w, "campaign not found")
		case errors.Is(err, campaign.ErrInvalidTransition):
			httputil.Conflict(w, err.Error())
		default:
			httputil.ServerError(w, err)
		}
		return
	}
	httputil.OK(w, map[string]string{"campaign_id": id.String(), "result": "ok"})
}

// PauseCampaign suspends batch selection.
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.control.Pause)
}

// ResumeCampaign reactivates a paused campaign.
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.control.Resume)
}

// StopCampaign cancels the campaign and its pending follow-ups.
func (h *Handlers) StopCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.control.Stop)
}

// CampaignStatus returns the progress snapshot.
func (h *Handlers) CampaignStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.campaignID(w, r)
	if !ok {
		return
	}
	snap, err := h.control.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.ServerError(w, err)
		return
	}
	httputil.OK(w, snap)
}

type recommendResponse struct {
	*timing.Recommendation
	NextOccurrence time.Time `json:"next_occurrence"`
}

// Recommend answers ?country=&category= with the current best send window
// and its next concrete occurrence.
func (h *Handlers) Recommend(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	category := r.URL.Query().Get("category")
	if country == "" || category == "" {
		httputil.BadRequest(w, "country and category are required")
		return
	}

	rec, err := h.recommend.Recommend(r.Context(), timing.Scope{
		Owner: h.owner, Country: country, Category: category,
	})
	if err != nil {
		httputil.ServerError(w, err)
		return
	}

	httputil.OK(w, recommendResponse{
		Recommendation: rec,
		NextOccurrence: h.recommend.NextOccurrence(country, rec.DayOfWeek, rec.HourOfDay, time.Now()),
	})
}

// IngestEvent accepts one webhook event and acknowledges before
// processing.
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev ingest.Event
	if err := httputil.Decode(r, &ev); err != nil {
		httputil.BadRequest(w, "invalid event body")
		return
	}
	if err := ev.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := h.events.Enqueue(r.Context(), &ev); err != nil {
		httputil.ServerError(w, err)
		return
	}
	httputil.Accepted(w, map[string]string{"result": "queued"})
}
