package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"brandkit/internal/domain"
)

// Payload is the decoded, queue-specific job payload. Each queue owns
// exactly one payload type; the mapping lives in DecodePayload so a
// payload can never end up on the wrong queue.
type Payload interface {
	// Identity returns the user and brand a job acts for. Either may be
	// empty for queues that are not user-scoped (cleanup).
	Identity() (userID, brandID string)
	validate(v *domain.ValidationError)
}

// DecodePayload decodes and validates a raw payload for the given queue.
// Unknown fields are rejected so producer/handler payload drift surfaces
// at dispatch time instead of inside a handler. The returned error is a
// *domain.ValidationError listing every failing field.
func DecodePayload(queueName string, raw []byte) (Payload, error) {
	var p Payload
	switch queueName {
	case BrandWizard:
		p = &BrandWizardPayload{}
	case LogoGeneration:
		p = &LogoGenerationPayload{}
	case MockupGeneration:
		p = &MockupGenerationPayload{}
	case BundleComposition:
		p = &BundleCompositionPayload{}
	case VideoGeneration:
		p = &VideoGenerationPayload{}
	case CRMSync:
		p = &CRMSyncPayload{}
	case EmailSend:
		p = &EmailSendPayload{}
	case ImageUpload:
		p = &ImageUploadPayload{}
	case Cleanup:
		p = &MaintenancePayload{}
	default:
		return nil, fmt.Errorf("queue %q: %w", queueName, domain.ErrUnknownQueue)
	}

	verr := &domain.ValidationError{Queue: queueName}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, verr.Add("(payload)", "malformed JSON: "+err.Error())
	}
	if err := json.Unmarshal(raw, p); err != nil {
		var terr *json.UnmarshalTypeError
		if errors.As(err, &terr) && terr.Field != "" {
			return nil, verr.Add(terr.Field, "cannot decode "+terr.Value+" into "+terr.Type.String())
		}
		return nil, verr.Add("(payload)", "malformed JSON: "+err.Error())
	}
	for _, name := range unknownFields(object, p) {
		verr.Add(name, "unknown field")
	}
	if p.validate(verr); !verr.Empty() {
		return nil, verr
	}
	return p, nil
}

// NormalizePayload re-encodes a decoded payload into its canonical JSON form.
func NormalizePayload(p Payload) (json.RawMessage, error) {
	return json.Marshal(p)
}

// unknownFields diffs the raw object's keys against the payload type's
// json tags, so every unrecognized field is reported rather than only
// the first one a strict decoder happens to hit.
func unknownFields(object map[string]json.RawMessage, p Payload) []string {
	t := reflect.TypeOf(p).Elem()
	known := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" {
			name = t.Field(i).Name
		}
		if name != "-" {
			known[name] = true
		}
	}
	var extra []string
	for key := range object {
		if !known[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return extra
}

// BrandWizardPayload drives one wizard orchestration step for a brand.
type BrandWizardPayload struct {
	BrandID string          `json:"brand_id"`
	UserID  string          `json:"user_id"`
	Step    string          `json:"step"`
	Dossier json.RawMessage `json:"dossier,omitempty"`
}

func (p *BrandWizardPayload) Identity() (string, string) { return p.UserID, p.BrandID }

func (p *BrandWizardPayload) validate(v *domain.ValidationError) {
	requireID(v, "brand_id", p.BrandID)
	requireID(v, "user_id", p.UserID)
	if p.Step == "" {
		v.Add("step", "required")
	} else if domain.StepIndex(p.Step) < 0 {
		v.Add("step", fmt.Sprintf("unknown wizard step %q", p.Step))
	}
}

// LogoGenerationPayload requests AI logo candidates for a brand.
type LogoGenerationPayload struct {
	BrandID     string `json:"brand_id"`
	UserID      string `json:"user_id"`
	Prompt      string `json:"prompt"`
	StyleID     string `json:"style_id,omitempty"`
	Quantity    int    `json:"quantity"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

func (p *LogoGenerationPayload) Identity() (string, string) { return p.UserID, p.BrandID }

func (p *LogoGenerationPayload) validate(v *domain.ValidationError) {
	requireID(v, "brand_id", p.BrandID)
	requireID(v, "user_id", p.UserID)
	if strings.TrimSpace(p.Prompt) == "" {
		v.Add("prompt", "required")
	}
	if p.Quantity < 1 || p.Quantity > 8 {
		v.Add("quantity", "must be between 1 and 8")
	}
}

// MockupGenerationPayload places a generated logo onto product mockups.
type MockupGenerationPayload struct {
	BrandID     string   `json:"brand_id"`
	UserID      string   `json:"user_id"`
	LogoAssetID string   `json:"logo_asset_id"`
	ProductIDs  []string `json:"product_ids"`
}

func (p *MockupGenerationPayload) Identity() (string, string) { return p.UserID, p.BrandID }

func (p *MockupGenerationPayload) validate(v *domain.ValidationError) {
	requireID(v, "brand_id", p.BrandID)
	requireID(v, "user_id", p.UserID)
	requireID(v, "logo_asset_id", p.LogoAssetID)
	if len(p.ProductIDs) == 0 {
		v.Add("product_ids", "at least one product required")
	}
}

// BundleCompositionPayload composes finished assets into a launch bundle.
type BundleCompositionPayload struct {
	BrandID  string   `json:"brand_id"`
	UserID   string   `json:"user_id"`
	AssetIDs []string `json:"asset_ids"`
}

func (p *BundleCompositionPayload) Identity() (string, string) { return p.UserID, p.BrandID }

func (p *BundleCompositionPayload) validate(v *domain.ValidationError) {
	requireID(v, "brand_id", p.BrandID)
	requireID(v, "user_id", p.UserID)
	if len(p.AssetIDs) == 0 {
		v.Add("asset_ids", "at least one asset required")
	}
}

// VideoGenerationPayload requests a short promo video for a brand.
type VideoGenerationPayload struct {
	BrandID     string `json:"brand_id"`
	UserID      string `json:"user_id"`
	Prompt      string `json:"prompt"`
	DurationSec int    `json:"duration_sec"`
}

func (p *VideoGenerationPayload) Identity() (string, string) { return p.UserID, p.BrandID }

func (p *VideoGenerationPayload) validate(v *domain.ValidationError) {
	requireID(v, "brand_id", p.BrandID)
	requireID(v, "user_id", p.UserID)
	if strings.TrimSpace(p.Prompt) == "" {
		v.Add("prompt", "required")
	}
	if p.DurationSec < 5 || p.DurationSec > 60 {
		v.Add("duration_sec", "must be between 5 and 60")
	}
}

// CRMSyncPayload forwards a domain event to the CRM collaborator.
type CRMSyncPayload struct {
	UserID    string         `json:"user_id"`
	BrandID   string         `json:"brand_id,omitempty"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
}

func (p *CRMSyncPayload) Identity() (string, string) { return p.UserID, p.BrandID }

func (p *CRMSyncPayload) validate(v *domain.ValidationError) {
	requireID(v, "user_id", p.UserID)
	if p.EventType == "" {
		v.Add("event_type", "required")
	}
}

// EmailSendPayload asks the email collaborator to render and send a template.
type EmailSendPayload struct {
	UserID   string         `json:"user_id,omitempty"`
	BrandID  string         `json:"brand_id,omitempty"`
	To       string         `json:"to"`
	Template string         `json:"template"`
	Locale   string         `json:"locale,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

func (p *EmailSendPayload) Identity() (string, string) { return p.UserID, p.BrandID }

func (p *EmailSendPayload) validate(v *domain.ValidationError) {
	if p.To == "" {
		v.Add("to", "required")
	} else if !strings.Contains(p.To, "@") {
		v.Add("to", "not an email address")
	}
	if p.Template == "" {
		v.Add("template", "required")
	}
}

// ImageUploadPayload moves a generated asset into durable storage.
type ImageUploadPayload struct {
	BrandID   string `json:"brand_id"`
	UserID    string `json:"user_id"`
	SourceURL string `json:"source_url"`
	TargetKey string `json:"target_key"`
}

func (p *ImageUploadPayload) Identity() (string, string) { return p.UserID, p.BrandID }

func (p *ImageUploadPayload) validate(v *domain.ValidationError) {
	requireID(v, "brand_id", p.BrandID)
	requireID(v, "user_id", p.UserID)
	if p.SourceURL == "" {
		v.Add("source_url", "required")
	}
	if p.TargetKey == "" {
		v.Add("target_key", "required")
	}
}

// Maintenance tasks runnable on the cleanup queue.
const (
	TaskPruneJobs   = "prune-jobs"
	TaskAbandonScan = "abandon-scan"
)

// MaintenancePayload selects which housekeeping task to run.
type MaintenancePayload struct {
	Task string `json:"task"`
}

func (p *MaintenancePayload) Identity() (string, string) { return "", "" }

func (p *MaintenancePayload) validate(v *domain.ValidationError) {
	switch p.Task {
	case TaskPruneJobs, TaskAbandonScan:
	case "":
		v.Add("task", "required")
	default:
		v.Add("task", fmt.Sprintf("unknown maintenance task %q", p.Task))
	}
}

func requireID(v *domain.ValidationError, field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "required")
	}
}
