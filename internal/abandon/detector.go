// Package abandon finds wizard sessions that stalled mid-flow and nudges
// their owners back with a signed resume link.
package abandon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"brandkit/internal/dispatch"
	"brandkit/internal/domain"
	"brandkit/internal/queue"
)

// SessionStore is the slice of the relational store the detector reads.
type SessionStore interface {
	// FindStalled returns sessions with lastActivity before the cutoff
	// that are not at the terminal step and not already marked
	// abandoned. The triple condition is the dedup guard.
	FindStalled(ctx context.Context, cutoff time.Time) ([]domain.WizardSession, error)

	// MarkAbandoned flips the session's marker so the same session is
	// never processed twice.
	MarkAbandoned(ctx context.Context, brandID string) error
}

// Dispatcher is the job entry point the detector emits side effects on.
type Dispatcher interface {
	Dispatch(ctx context.Context, queueName string, payload json.RawMessage, opts dispatch.Options) (dispatch.Receipt, error)
}

// Config tunes the detector.
type Config struct {
	// InactivityThreshold is how long a session may sit idle before it
	// counts as abandoned.
	InactivityThreshold time.Duration
	// TokenSecret keys the resume-token HMAC.
	TokenSecret string
	// TokenTTL bounds how long a resume link stays valid.
	TokenTTL time.Duration
	// ResumeBaseURL is where the resume endpoint lives; the token is
	// appended as a query parameter.
	ResumeBaseURL string
}

// Detector scans for stalled sessions and dispatches the notification
// side effects. It runs as a recurring maintenance job, which gives the
// scan the same retry and observability guarantees as any other job.
type Detector struct {
	sessions   SessionStore
	dispatcher Dispatcher
	cfg        Config
	log        zerolog.Logger
}

// NewDetector creates a detector.
func NewDetector(sessions SessionStore, d Dispatcher, cfg Config, log zerolog.Logger) *Detector {
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = 24 * time.Hour
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	return &Detector{sessions: sessions, dispatcher: d, cfg: cfg, log: log}
}

// Scan runs one detection pass and returns how many sessions it
// processed. Notification dispatch failures are logged and degrade
// gracefully; only a failure to flip the marker leaves the session for
// the next scan. A bad session never fails the whole pass.
func (d *Detector) Scan(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-d.cfg.InactivityThreshold)
	stalled, err := d.sessions.FindStalled(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stalled sessions: %w", err)
	}

	processed := 0
	for _, session := range stalled {
		if err := d.process(ctx, session); err != nil {
			d.log.Error().Err(err).
				Str("brand_id", session.BrandID).
				Msg("abandon: session skipped, will retry next scan")
			continue
		}
		processed++
	}
	if processed > 0 {
		d.log.Info().Int("sessions", processed).Msg("abandon: scan complete")
	}
	return processed, nil
}

func (d *Detector) process(ctx context.Context, session domain.WizardSession) error {
	pct := progressPercent(session.CurrentStep)

	token, err := SignResumeToken(d.cfg.TokenSecret, ResumeClaims{
		BrandID: session.BrandID,
		UserID:  session.UserID,
		Step:    session.CurrentStep,
		Exp:     time.Now().Add(d.cfg.TokenTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("sign resume token: %w", err)
	}
	resumeURL := d.cfg.ResumeBaseURL + "?token=" + token

	// Both notifications are fire-and-forget side effects; a failed
	// dispatch is logged, not fatal to the scan. Deterministic job ids
	// mean a rerun of this session can never double-notify.
	crmPayload, err := json.Marshal(queue.CRMSyncPayload{
		UserID:    session.UserID,
		BrandID:   session.BrandID,
		EventType: "wizard_abandoned",
		Data: map[string]any{
			"last_step":  session.CurrentStep,
			"progress":   pct,
			"resume_url": resumeURL,
		},
	})
	if err != nil {
		return fmt.Errorf("encode crm payload: %w", err)
	}
	if _, err := d.dispatcher.Dispatch(ctx, queue.CRMSync, crmPayload, dispatch.Options{
		JobID: "abandon-crm-" + session.BrandID,
	}); err != nil {
		d.log.Warn().Err(err).Str("brand_id", session.BrandID).
			Msg("abandon: crm dispatch failed")
	}

	emailPayload, err := json.Marshal(queue.EmailSendPayload{
		UserID:   session.UserID,
		BrandID:  session.BrandID,
		To:       session.Email,
		Template: "wizard-resume",
		Locale:   session.Locale,
		Data: map[string]any{
			"progress":   pct,
			"resume_url": resumeURL,
		},
	})
	if err != nil {
		return fmt.Errorf("encode email payload: %w", err)
	}
	if _, err := d.dispatcher.Dispatch(ctx, queue.EmailSend, emailPayload, dispatch.Options{
		JobID: "abandon-email-" + session.BrandID,
	}); err != nil {
		d.log.Warn().Err(err).Str("brand_id", session.BrandID).
			Msg("abandon: email dispatch failed")
	}

	if err := d.sessions.MarkAbandoned(ctx, session.BrandID); err != nil {
		return fmt.Errorf("mark session abandoned: %w", err)
	}

	d.log.Info().
		Str("brand_id", session.BrandID).
		Str("last_step", session.CurrentStep).
		Int("progress", pct).
		Msg("abandon: session flagged and owner notified")
	return nil
}

// progressPercent turns the wizard step index into a human-readable
// completion percentage for the notification copy.
func progressPercent(step string) int {
	idx := domain.StepIndex(step)
	if idx < 0 {
		return 0
	}
	return idx * 100 / len(domain.WizardSteps)
}
