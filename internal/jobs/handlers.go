// Package jobs wires the queue catalog to its handlers. Every handler is
// idempotent under at-least-once delivery: provider calls carry the job
// id as their idempotency key and side-effect dispatches use
// deterministic job ids, so a retry never double-charges, double-sends,
// or double-creates anything.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"brandkit/internal/abandon"
	"brandkit/internal/broker"
	"brandkit/internal/dispatch"
	"brandkit/internal/domain"
	"brandkit/internal/progress"
	"brandkit/internal/providers/crm"
	"brandkit/internal/providers/email"
	"brandkit/internal/providers/image"
	"brandkit/internal/providers/upload"
	"brandkit/internal/providers/video"
	"brandkit/internal/queue"
)

// Handlers carries the collaborators the job handlers execute against.
type Handlers struct {
	Bridge     *progress.Bridge
	Dispatcher *dispatch.Dispatcher
	Broker     broker.Broker
	Queues     *queue.Registry
	Detector   *abandon.Detector

	Images  image.Generator
	Videos  video.Generator
	CRM     crm.Notifier
	Mail    email.Mailer
	Uploads upload.Store

	Log zerolog.Logger
}

// RegisterAll binds every catalog queue to its handler.
func (h *Handlers) RegisterAll(r *Registry) error {
	regs := []error{
		Register(r, queue.BrandWizard, h.brandWizard),
		Register(r, queue.LogoGeneration, h.logoGeneration),
		Register(r, queue.MockupGeneration, h.mockupGeneration),
		Register(r, queue.BundleComposition, h.bundleComposition),
		Register(r, queue.VideoGeneration, h.videoGeneration),
		Register(r, queue.CRMSync, h.crmSync),
		Register(r, queue.EmailSend, h.emailSend),
		Register(r, queue.ImageUpload, h.imageUpload),
		Register(r, queue.Cleanup, h.cleanup),
	}
	for _, err := range regs {
		if err != nil {
			return err
		}
	}
	return nil
}

// report publishes an intermediate progress event for a running job.
func (h *Handlers) report(job *domain.Job, pct int, message string) {
	h.Bridge.Publish(context.Background(), progress.Event{
		JobID:    job.ID,
		BrandID:  job.BrandID,
		Status:   progress.StatusRunning,
		Progress: pct,
		Message:  message,
	})
}

// brandWizard advances one wizard step: it fans the step's generation
// work out as its own job. The fan-out id is derived from brand and
// step, so replaying a wizard job cannot duplicate generation work. The
// dispatch here is not credit-gated; the gate ran when the wizard job
// itself was accepted.
func (h *Handlers) brandWizard(ctx context.Context, job *domain.Job, p *queue.BrandWizardPayload) (json.RawMessage, error) {
	h.report(job, 20, "Preparing your brand dossier")

	var stepQueue string
	var stepPayload any
	switch p.Step {
	case "logo-style", "logo-review":
		stepQueue = queue.LogoGeneration
		stepPayload = queue.LogoGenerationPayload{
			BrandID:  p.BrandID,
			UserID:   p.UserID,
			Prompt:   dossierPrompt(p.Dossier),
			Quantity: 4,
		}
	case "bundle":
		stepQueue = queue.BundleComposition
		stepPayload = queue.BundleCompositionPayload{
			BrandID:  p.BrandID,
			UserID:   p.UserID,
			AssetIDs: []string{"logo-" + p.BrandID},
		}
	default:
		// Steps without generation work complete immediately.
		return json.Marshal(map[string]any{"step": p.Step, "dispatched": false})
	}

	raw, err := json.Marshal(stepPayload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", stepQueue, err)
	}
	receipt, err := h.Dispatcher.Dispatch(ctx, stepQueue, raw, dispatch.Options{
		JobID: p.BrandID + "-" + p.Step,
	})
	if err != nil {
		return nil, fmt.Errorf("fan out %s: %w", stepQueue, err)
	}

	h.report(job, 80, "Kicking off generation")
	return json.Marshal(map[string]any{
		"step":       p.Step,
		"dispatched": true,
		"job_id":     receipt.JobID,
		"queue":      receipt.Queue,
	})
}

func dossierPrompt(dossier json.RawMessage) string {
	var d struct {
		BusinessName string `json:"business_name"`
		Tagline      string `json:"tagline"`
		Industry     string `json:"industry"`
	}
	_ = json.Unmarshal(dossier, &d)
	if d.BusinessName == "" {
		return "a modern small-business logo"
	}
	prompt := "a logo for " + d.BusinessName
	if d.Industry != "" {
		prompt += ", a " + d.Industry + " business"
	}
	if d.Tagline != "" {
		prompt += ", tagline: " + d.Tagline
	}
	return prompt
}

func (h *Handlers) logoGeneration(ctx context.Context, job *domain.Job, p *queue.LogoGenerationPayload) (json.RawMessage, error) {
	h.report(job, 25, "Generating logo candidates")
	assets, err := h.Images.Generate(ctx, image.GenerateRequest{
		Prompt:      p.Prompt,
		StyleID:     p.StyleID,
		Quantity:    p.Quantity,
		AspectRatio: p.AspectRatio,
		RequestID:   job.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("logo generation: %w", err)
	}
	h.report(job, 90, "Finalizing candidates")
	return json.Marshal(map[string]any{"assets": assets})
}

func (h *Handlers) mockupGeneration(ctx context.Context, job *domain.Job, p *queue.MockupGenerationPayload) (json.RawMessage, error) {
	type mockup struct {
		ProductID string        `json:"product_id"`
		Assets    []image.Asset `json:"assets"`
	}
	mockups := make([]mockup, 0, len(p.ProductIDs))
	for i, productID := range p.ProductIDs {
		pct := 10 + 80*i/len(p.ProductIDs)
		h.report(job, pct, "Rendering mockup for "+productID)
		assets, err := h.Images.Generate(ctx, image.GenerateRequest{
			Prompt:    "product mockup of " + productID + " featuring logo asset " + p.LogoAssetID,
			Quantity:  1,
			RequestID: job.ID + ":" + productID,
		})
		if err != nil {
			return nil, fmt.Errorf("mockup for %s: %w", productID, err)
		}
		mockups = append(mockups, mockup{ProductID: productID, Assets: assets})
	}
	return json.Marshal(map[string]any{"mockups": mockups})
}

func (h *Handlers) bundleComposition(_ context.Context, job *domain.Job, p *queue.BundleCompositionPayload) (json.RawMessage, error) {
	h.report(job, 50, "Composing your launch bundle")
	return json.Marshal(map[string]any{
		"bundle_id": "bundle-" + job.ID,
		"asset_ids": p.AssetIDs,
	})
}

func (h *Handlers) videoGeneration(ctx context.Context, job *domain.Job, p *queue.VideoGenerationPayload) (json.RawMessage, error) {
	h.report(job, 15, "Rendering your promo video")
	asset, err := h.Videos.Generate(ctx, video.GenerateRequest{
		Prompt:      p.Prompt,
		DurationSec: p.DurationSec,
		RequestID:   job.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("video generation: %w", err)
	}
	return json.Marshal(map[string]any{"asset": asset})
}

func (h *Handlers) crmSync(ctx context.Context, _ *domain.Job, p *queue.CRMSyncPayload) (json.RawMessage, error) {
	err := h.CRM.Notify(ctx, crm.Notification{
		EventType: p.EventType,
		UserID:    p.UserID,
		Data:      p.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("crm notify: %w", err)
	}
	return nil, nil
}

func (h *Handlers) emailSend(ctx context.Context, _ *domain.Job, p *queue.EmailSendPayload) (json.RawMessage, error) {
	err := h.Mail.Send(ctx, email.Message{
		To:       p.To,
		Template: p.Template,
		Locale:   email.ResolveLocale(p.Locale),
		Data:     p.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("send %s to %s: %w", p.Template, p.To, err)
	}
	return nil, nil
}

func (h *Handlers) imageUpload(ctx context.Context, _ *domain.Job, p *queue.ImageUploadPayload) (json.RawMessage, error) {
	storedURL, err := h.Uploads.Upload(ctx, p.SourceURL, p.TargetKey)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", p.TargetKey, err)
	}
	return json.Marshal(map[string]any{"url": storedURL})
}

// cleanup runs the self-scheduled housekeeping tasks.
func (h *Handlers) cleanup(ctx context.Context, _ *domain.Job, p *queue.MaintenancePayload) (json.RawMessage, error) {
	switch p.Task {
	case queue.TaskPruneJobs:
		total := 0
		for _, name := range h.Queues.Names() {
			policy, err := h.Queues.Lookup(name)
			if err != nil {
				return nil, err
			}
			pruned, err := h.Broker.Prune(ctx, name, policy.Retention)
			if err != nil {
				return nil, fmt.Errorf("prune %s: %w", name, err)
			}
			total += pruned
		}
		if total > 0 {
			h.Log.Info().Int("pruned", total).Msg("cleanup: terminal jobs pruned")
		}
		return json.Marshal(map[string]any{"pruned": total})
	case queue.TaskAbandonScan:
		processed, err := h.Detector.Scan(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"sessions": processed})
	default:
		return nil, fmt.Errorf("unsupported maintenance task %q", p.Task)
	}
}
