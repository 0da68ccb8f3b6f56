// Package dispatch sends all recipients of a campaign through one
// authenticated SMTP session and aggregates per-recipient outcomes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailkite/mailkite/internal/mailer"
	"github.com/mailkite/mailkite/internal/metrics"
	"github.com/mailkite/mailkite/internal/models"
	"github.com/mailkite/mailkite/internal/render"
	"github.com/mailkite/mailkite/internal/repository"
	"github.com/mailkite/mailkite/internal/secrets"
)

var (
	// ErrNotFound means the referenced campaign does not exist.
	ErrNotFound = errors.New("campaign not found")
	// ErrNoSenderConfig means no credential is configured for the
	// campaign's sender address.
	ErrNoSenderConfig = errors.New("no sender email configured")
	// ErrAlreadyRunning means a dispatch for this campaign is in
	// progress.
	ErrAlreadyRunning = errors.New("campaign dispatch already in progress")
)

// RecipientResult is one recipient's outcome, available for
// diagnostics; the summary counters are derived from these.
type RecipientResult struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Summary is the aggregate outcome of one dispatch.
type Summary struct {
	Total   int               `json:"total"`
	Sent    int               `json:"sent"`
	Failed  int               `json:"failed"`
	Results []RecipientResult `json:"results,omitempty"`
}

func (s *Summary) String() string {
	return fmt.Sprintf("Emailing process completed. %d sent, %d failed", s.Sent, s.Failed)
}

// Dispatcher executes campaign sends.
type Dispatcher struct {
	campaigns *repository.CampaignRepository
	configs   *repository.EmailConfigRepository
	box       *secrets.Box
	dialer    mailer.Dialer
	metrics   *metrics.Metrics
	logger    *slog.Logger

	concurrency int
}

// New creates a Dispatcher. A concurrency of zero or less means
// unbounded fan-out.
func New(
	campaigns *repository.CampaignRepository,
	configs *repository.EmailConfigRepository,
	box *secrets.Box,
	dialer mailer.Dialer,
	m *metrics.Metrics,
	logger *slog.Logger,
	concurrency int,
) *Dispatcher {
	return &Dispatcher{
		campaigns:   campaigns,
		configs:     configs,
		box:         box,
		dialer:      dialer,
		metrics:     m,
		logger:      logger.With("component", "dispatch"),
		concurrency: concurrency,
	}
}

// Dispatch sends the campaign to every recipient and returns the
// aggregate summary. Precondition failures (missing campaign, missing
// or undecryptable credential, unreachable relay) abort before any
// send is attempted. Once the fan-out starts it always runs to
// completion of all attempts: a failure for one recipient never
// prevents or cancels the others.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID string) (*Summary, error) {
	started := time.Now()

	campaign, err := d.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, ErrNotFound
	}
	if campaign.Status == models.CampaignStatusProcessing {
		return nil, ErrAlreadyRunning
	}

	claimed, err := d.campaigns.TryMarkProcessing(campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark campaign processing: %w", err)
	}
	if !claimed {
		return nil, ErrAlreadyRunning
	}

	session, err := d.openSession(ctx, campaign)
	if err != nil {
		// Precondition failure: release the claim so the campaign
		// stays dispatchable.
		if rerr := d.campaigns.UpdateStatus(campaign.ID, campaign.Status); rerr != nil {
			d.logger.Error("failed to restore campaign status", "campaign_id", campaign.ID, "error", rerr)
		}
		return nil, err
	}
	defer session.Close()

	d.logger.Info("dispatch started",
		"campaign_id", campaign.ID,
		"sender", campaign.SenderEmail,
		"recipients", len(campaign.Recipients),
	)

	// Once the fan-out starts it runs every attempt to completion:
	// caller cancellation must not fail the remaining recipients.
	results := d.fanOut(context.WithoutCancel(ctx), campaign, session)
	summary := d.aggregate(campaign, results)

	status := models.CampaignStatusCompleted
	if summary.Failed > 0 {
		status = models.CampaignStatusFailed
	}
	if err := d.campaigns.UpdateStats(campaign.ID, status, models.CampaignStats{
		Total:  summary.Total,
		Sent:   summary.Sent,
		Failed: summary.Failed,
	}); err != nil {
		d.logger.Error("failed to persist campaign stats", "campaign_id", campaign.ID, "error", err)
		// The campaign must still leave "processing" or it can never
		// be dispatched again.
		if serr := d.campaigns.UpdateStatus(campaign.ID, status); serr != nil {
			d.logger.Error("failed to persist campaign status", "campaign_id", campaign.ID, "error", serr)
		}
	}

	if d.metrics != nil {
		d.metrics.DispatchesTotal.WithLabelValues(status).Inc()
		d.metrics.DispatchDurationSeconds.Observe(time.Since(started).Seconds())
	}

	d.logger.Info("dispatch finished",
		"campaign_id", campaign.ID,
		"status", status,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"duration", time.Since(started),
	)

	return summary, nil
}

// openSession resolves and decrypts the sender credential and opens
// one transport session, reused for all recipients. Credential
// decryption fails closed: a tag mismatch means tampering or a wrong
// key, not a transient fault, so the whole dispatch aborts.
func (d *Dispatcher) openSession(ctx context.Context, campaign *models.Campaign) (mailer.Session, error) {
	cfg, err := d.configs.Get(campaign.SenderID, campaign.SenderEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to load sender config: %w", err)
	}
	if cfg == nil {
		return nil, ErrNoSenderConfig
	}

	password, err := d.box.Open(cfg.SealedPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt sender credential: %w", err)
	}

	session, err := d.dialer.Dial(ctx, campaign.SenderEmail, password)
	if err != nil {
		return nil, fmt.Errorf("failed to open transport session: %w", err)
	}
	return session, nil
}

// fanOut sends to every recipient concurrently and waits for all
// attempts to settle. Each goroutine writes only its own slot of the
// results slice; no counters are shared across attempts.
func (d *Dispatcher) fanOut(ctx context.Context, campaign *models.Campaign, session mailer.Session) []RecipientResult {
	results := make([]RecipientResult, len(campaign.Recipients))

	var sem chan struct{}
	if d.concurrency > 0 {
		sem = make(chan struct{}, d.concurrency)
	}

	var wg sync.WaitGroup
	for i := range campaign.Recipients {
		wg.Add(1)
		if sem != nil {
			sem <- struct{}{}
		}

		go func(i int, rec models.Recipient) {
			defer func() {
				if sem != nil {
					<-sem
				}
				wg.Done()
			}()

			results[i] = d.sendOne(ctx, campaign, rec, session)
		}(i, campaign.Recipients[i])
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) sendOne(ctx context.Context, campaign *models.Campaign, rec models.Recipient, session mailer.Session) RecipientResult {
	vars := render.Bindings(rec)
	subject := render.Render(campaign.Subject, vars)
	body := render.Render(campaign.Body, vars)

	msg := &mailer.Message{
		From:     campaign.SenderEmail,
		FromName: campaign.FromName,
		To:       rec.Email,
		Subject:  subject,
		HTML:     body,
		Text:     mailer.PlainText(body),
	}

	if err := session.Send(ctx, msg); err != nil {
		d.logger.Debug("send failed", "campaign_id", campaign.ID, "email", rec.Email, "error", err)
		if d.metrics != nil {
			d.metrics.EmailsFailedTotal.Inc()
		}
		return RecipientResult{Email: rec.Email, Status: models.RecipientStatusFailed, Error: err.Error()}
	}

	if d.metrics != nil {
		d.metrics.EmailsSentTotal.Inc()
	}
	return RecipientResult{Email: rec.Email, Status: models.RecipientStatusSent}
}

// aggregate reduces the settled results into the summary and persists
// per-recipient status. Aggregation happens in one place after the
// join; concurrent completions never touch these counters.
func (d *Dispatcher) aggregate(campaign *models.Campaign, results []RecipientResult) *Summary {
	summary := &Summary{
		Total:   len(results),
		Results: results,
	}

	for i, res := range results {
		switch res.Status {
		case models.RecipientStatusSent:
			summary.Sent++
		case models.RecipientStatusFailed:
			summary.Failed++
		}

		rec := campaign.Recipients[i]
		if err := d.campaigns.UpdateRecipientResult(rec.ID, res.Status, res.Error); err != nil {
			d.logger.Error("failed to persist recipient result", "recipient_id", rec.ID, "error", err)
		}
	}

	return summary
}
