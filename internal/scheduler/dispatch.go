package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/campaign"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/content"
	"github.com/ignite/campaign-dispatch/internal/directory"
	"github.com/ignite/campaign-dispatch/internal/followup"
	"github.com/ignite/campaign-dispatch/internal/sender"
)

// ContentSource resolves content references. Satisfied by *content.Store.
type ContentSource interface {
	Get(ctx context.Context, ref string) (*content.Payload, error)
}

// CampaignGetter reads one campaign. Satisfied by *campaign.Store.
type CampaignGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error)
}

// RecipientGetter reads one recipient. Satisfied by *directory.Store.
type RecipientGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*directory.Recipient, error)
}

// Dispatcher renders and sends, for both initial sends and follow-up
// reminders. Every send runs under the configured bounded timeout so a
// slow provider degrades one unit of work, never the whole batch.
type Dispatcher struct {
	contents   ContentSource
	renderer   *content.Renderer
	sender     sender.Sender
	campaigns  CampaignGetter
	recipients RecipientGetter
	senderCfg  config.SenderConfig
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(contents ContentSource, renderer *content.Renderer, snd sender.Sender,
	campaigns CampaignGetter, recipients RecipientGetter, senderCfg config.SenderConfig) *Dispatcher {
	return &Dispatcher{
		contents:   contents,
		renderer:   renderer,
		sender:     snd,
		campaigns:  campaigns,
		recipients: recipients,
		senderCfg:  senderCfg,
	}
}

func (d *Dispatcher) send(ctx context.Context, r *directory.Recipient, subject, body string,
	campaignID, distributionID uuid.UUID) error {
	bindings := content.RecipientBindings(r.Address, r.Country, r.Category)
	renderedSubject, err := d.renderer.Render(subject, bindings)
	if err != nil {
		return fmt.Errorf("render subject: %w", err)
	}
	renderedBody, err := d.renderer.Render(body, bindings)
	if err != nil {
		return fmt.Errorf("render body: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.senderCfg.Timeout())
	defer cancel()

	res, err := d.sender.Send(sendCtx, &sender.Message{
		To:             r.Address,
		FromName:       d.senderCfg.FromName,
		FromAddress:    d.senderCfg.FromEmail,
		Subject:        renderedSubject,
		HTMLBody:       renderedBody,
		CampaignID:     campaignID.String(),
		DistributionID: distributionID.String(),
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("send rejected: %w", res.Error)
	}
	return nil
}

// SendInitial delivers the campaign's primary payload to one recipient.
func (d *Dispatcher) SendInitial(ctx context.Context, c *campaign.Campaign, r *directory.Recipient,
	distributionID uuid.UUID) error {
	payload, err := d.contents.Get(ctx, c.ContentRef)
	if err != nil {
		return err
	}
	return d.send(ctx, r, payload.Subject, payload.Body, c.ID, distributionID)
}

// DispatchFollowUp delivers one reminder. Implements followup.Dispatcher.
// Content without dedicated follow-up fields reuses the primary payload
// with a "Re:" subject.
func (d *Dispatcher) DispatchFollowUp(ctx context.Context, task *followup.Task) error {
	c, err := d.campaigns.Get(ctx, task.CampaignID)
	if err != nil {
		return err
	}
	r, err := d.recipients.Get(ctx, task.RecipientID)
	if err != nil {
		return err
	}
	payload, err := d.contents.Get(ctx, c.ContentRef)
	if err != nil {
		return err
	}

	subject, body := payload.FollowUpSubject, payload.FollowUpBody
	if subject == "" {
		subject = "Re: " + payload.Subject
	}
	if body == "" {
		body = payload.Body
	}
	return d.send(ctx, r, subject, body, c.ID, task.DistributionID)
}
