package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

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
	"brandkit/internal/worker"
)

type emptySessionStore struct{}

func (emptySessionStore) FindStalled(context.Context, time.Time) ([]domain.WizardSession, error) {
	return nil, nil
}
func (emptySessionStore) MarkAbandoned(context.Context, string) error { return nil }

type harness struct {
	handlers *Handlers
	registry *Registry
	broker   *broker.Memory
	bridge   *progress.Bridge
	mail     *email.Recorder
	crm      *crm.Recorder
	uploads  *upload.Memory
}

func newHarness(t *testing.T, sessions abandon.SessionStore) *harness {
	t.Helper()
	queues, err := queue.NewRegistry(queue.DefaultCatalog()...)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	m := broker.NewMemory()
	t.Cleanup(func() { m.Close() })

	bridge := progress.NewBridge(zerolog.Nop())
	dispatcher := dispatch.New(queues, m, zerolog.Nop())
	detector := abandon.NewDetector(sessions, dispatcher, abandon.Config{
		TokenSecret:   "harness-secret",
		ResumeBaseURL: "https://app.example.com/wizard/resume",
	}, zerolog.Nop())

	h := &harness{
		broker:  m,
		bridge:  bridge,
		mail:    &email.Recorder{},
		crm:     &crm.Recorder{},
		uploads: &upload.Memory{},
	}
	h.handlers = &Handlers{
		Bridge:     bridge,
		Dispatcher: dispatcher,
		Broker:     m,
		Queues:     queues,
		Detector:   detector,
		Images:     &image.Static{},
		Videos:     &video.Static{},
		CRM:        h.crm,
		Mail:       h.mail,
		Uploads:    h.uploads,
		Log:        zerolog.Nop(),
	}
	h.registry = NewRegistry()
	if err := h.handlers.RegisterAll(h.registry); err != nil {
		t.Fatalf("RegisterAll returned error: %v", err)
	}
	return h
}

func (h *harness) run(t *testing.T, queueName string, job *domain.Job) json.RawMessage {
	t.Helper()
	handler, ok := h.registry.Handler(queueName)
	if !ok {
		t.Fatalf("no handler for queue %q", queueName)
	}
	out, err := handler(context.Background(), job)
	if err != nil {
		t.Fatalf("handler for %q returned error: %v", queueName, err)
	}
	return out
}

func TestRegisterAllCoversCatalog(t *testing.T) {
	h := newHarness(t, emptySessionStore{})
	for _, name := range h.handlers.Queues.Names() {
		if _, ok := h.registry.Handler(name); !ok {
			t.Fatalf("catalog queue %q has no handler", name)
		}
	}
}

func TestLogoGenerationProducesAssets(t *testing.T) {
	h := newHarness(t, emptySessionStore{})
	out := h.run(t, queue.LogoGeneration, &domain.Job{
		ID:      "logo-1",
		Queue:   queue.LogoGeneration,
		BrandID: "b1",
		Payload: json.RawMessage(`{"brand_id":"b1","user_id":"u1","prompt":"a bakery logo","quantity":3}`),
	})
	var result struct {
		Assets []image.Asset `json:"assets"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("result undecodable: %v", err)
	}
	if len(result.Assets) != 3 {
		t.Fatalf("asset count mismatch: got %d want 3", len(result.Assets))
	}
}

func TestBrandWizardFansOutGeneration(t *testing.T) {
	h := newHarness(t, emptySessionStore{})
	ctx := context.Background()
	job := &domain.Job{
		ID:      "wiz-1",
		Queue:   queue.BrandWizard,
		BrandID: "b1",
		Payload: json.RawMessage(`{"brand_id":"b1","user_id":"u1","step":"logo-style","dossier":{"business_name":"Kopi Pagi","industry":"coffee"}}`),
	}

	out := h.run(t, queue.BrandWizard, job)
	var result struct {
		Dispatched bool   `json:"dispatched"`
		JobID      string `json:"job_id"`
		Queue      string `json:"queue"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("result undecodable: %v", err)
	}
	if !result.Dispatched || result.Queue != queue.LogoGeneration {
		t.Fatalf("fan-out mismatch: %+v", result)
	}
	if result.JobID != "b1-logo-style" {
		t.Fatalf("fan-out job id mismatch: got %q", result.JobID)
	}

	fanned, err := h.broker.Job(ctx, "b1-logo-style")
	if err != nil {
		t.Fatalf("fanned-out job missing: %v", err)
	}
	var logo queue.LogoGenerationPayload
	if err := json.Unmarshal(fanned.Payload, &logo); err != nil {
		t.Fatalf("fanned-out payload undecodable: %v", err)
	}
	if logo.Prompt == "" || logo.Quantity != 4 {
		t.Fatalf("fanned-out payload mismatch: %+v", logo)
	}

	// Replaying the wizard job must not duplicate the generation work.
	h.run(t, queue.BrandWizard, job)
	if n, _ := h.broker.Count(ctx, queue.LogoGeneration); n != 1 {
		t.Fatalf("replay duplicated fan-out: %d jobs", n)
	}
}

func TestBrandWizardStepWithoutGeneration(t *testing.T) {
	h := newHarness(t, emptySessionStore{})
	out := h.run(t, queue.BrandWizard, &domain.Job{
		ID:      "wiz-2",
		Queue:   queue.BrandWizard,
		Payload: json.RawMessage(`{"brand_id":"b1","user_id":"u1","step":"business-profile"}`),
	})
	var result struct {
		Dispatched bool `json:"dispatched"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("result undecodable: %v", err)
	}
	if result.Dispatched {
		t.Fatal("profile step dispatched generation work")
	}
	if n, _ := h.broker.Count(context.Background(), queue.LogoGeneration); n != 0 {
		t.Fatalf("unexpected fan-out jobs: %d", n)
	}
}

func TestMockupGenerationPerProduct(t *testing.T) {
	h := newHarness(t, emptySessionStore{})
	out := h.run(t, queue.MockupGeneration, &domain.Job{
		ID:      "mock-1",
		Queue:   queue.MockupGeneration,
		Payload: json.RawMessage(`{"brand_id":"b1","user_id":"u1","logo_asset_id":"logo-9","product_ids":["mug","tshirt"]}`),
	})
	var result struct {
		Mockups []struct {
			ProductID string        `json:"product_id"`
			Assets    []image.Asset `json:"assets"`
		} `json:"mockups"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("result undecodable: %v", err)
	}
	if len(result.Mockups) != 2 {
		t.Fatalf("mockup count mismatch: got %d want 2", len(result.Mockups))
	}
	for _, m := range result.Mockups {
		if len(m.Assets) != 1 {
			t.Fatalf("product %s asset count mismatch: %d", m.ProductID, len(m.Assets))
		}
	}
}

func TestEmailSendResolvesLocale(t *testing.T) {
	h := newHarness(t, emptySessionStore{})
	h.run(t, queue.EmailSend, &domain.Job{
		ID:      "mail-1",
		Queue:   queue.EmailSend,
		Payload: json.RawMessage(`{"to":"owner@example.com","template":"wizard-resume","locale":"id-ID"}`),
	})
	sent := h.mail.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent count mismatch: got %d want 1", len(sent))
	}
	if sent[0].Locale != "id" {
		t.Fatalf("locale not resolved: got %q want id", sent[0].Locale)
	}
}

func TestCRMSyncForwardsEvent(t *testing.T) {
	h := newHarness(t, emptySessionStore{})
	h.run(t, queue.CRMSync, &domain.Job{
		ID:      "crm-1",
		Queue:   queue.CRMSync,
		Payload: json.RawMessage(`{"user_id":"u1","event_type":"wizard_abandoned","data":{"last_step":"mockups"}}`),
	})
	sent := h.crm.Sent()
	if len(sent) != 1 || sent[0].EventType != "wizard_abandoned" || sent[0].UserID != "u1" {
		t.Fatalf("crm notification mismatch: %+v", sent)
	}
}

func TestCleanupPrunesTerminalJobs(t *testing.T) {
	h := newHarness(t, emptySessionStore{})
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		if _, err := h.broker.Enqueue(ctx, &domain.Job{ID: id, Queue: queue.EmailSend, Priority: 1}); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
		job, err := h.broker.Dequeue(ctx, queue.EmailSend)
		if err != nil {
			t.Fatalf("Dequeue returned error: %v", err)
		}
		if err := h.broker.Complete(ctx, job); err != nil {
			t.Fatalf("Complete returned error: %v", err)
		}
	}

	out := h.run(t, queue.Cleanup, &domain.Job{
		ID:      "cleanup-1",
		Queue:   queue.Cleanup,
		Payload: json.RawMessage(`{"task":"prune-jobs"}`),
	})
	var result struct {
		Pruned int `json:"pruned"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("result undecodable: %v", err)
	}
	// The default retention keeps recent completions, so this pass
	// sweeps every queue without removing the fresh jobs.
	if result.Pruned != 0 {
		t.Fatalf("pruned mismatch: got %d want 0", result.Pruned)
	}
	if n, _ := h.broker.Count(ctx, queue.EmailSend, domain.JobCompleted); n != 3 {
		t.Fatalf("completed jobs lost: %d", n)
	}
}

func TestCleanupRunsAbandonScan(t *testing.T) {
	store := &stalledOnce{session: domain.WizardSession{
		BrandID: "b1", UserID: "u1", Email: "owner@example.com",
		CurrentStep: "mockups", LastActivity: time.Now().Add(-48 * time.Hour),
	}}
	h := newHarness(t, store)

	out := h.run(t, queue.Cleanup, &domain.Job{
		ID:      "cleanup-2",
		Queue:   queue.Cleanup,
		Payload: json.RawMessage(`{"task":"abandon-scan"}`),
	})
	var result struct {
		Sessions int `json:"sessions"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("result undecodable: %v", err)
	}
	if result.Sessions != 1 {
		t.Fatalf("scan sessions mismatch: got %d want 1", result.Sessions)
	}
	if _, err := h.broker.Job(context.Background(), "abandon-email-b1"); err != nil {
		t.Fatalf("abandonment email job missing: %v", err)
	}
}

type stalledOnce struct {
	session domain.WizardSession
	marked  bool
}

func (s *stalledOnce) FindStalled(context.Context, time.Time) ([]domain.WizardSession, error) {
	if s.marked {
		return nil, nil
	}
	return []domain.WizardSession{s.session}, nil
}

func (s *stalledOnce) MarkAbandoned(context.Context, string) error {
	s.marked = true
	return nil
}

// End to end: dispatch a logo job through the validator, run it on a real
// pool, and watch the lifecycle land in both progress rooms.
func TestLogoJobLifecycle(t *testing.T) {
	h := newHarness(t, emptySessionStore{})
	ctx := context.Background()

	brandSub, cancelBrand := h.bridge.Subscribe(progress.BrandRoom("b1"))
	defer cancelBrand()

	receipt, err := h.handlers.Dispatcher.Dispatch(ctx, queue.LogoGeneration,
		json.RawMessage(`{"brand_id":"b1","user_id":"u1","prompt":"a bakery logo","quantity":2}`),
		dispatch.Options{})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	jobSub, cancelJob := h.bridge.Subscribe(progress.JobRoom(receipt.JobID))
	defer cancelJob()

	queued, err := h.broker.Job(ctx, receipt.JobID)
	if err != nil {
		t.Fatalf("Job returned error: %v", err)
	}
	if queued.State != domain.JobWaiting {
		t.Fatalf("state before worker: got %q want waiting", queued.State)
	}

	policy, err := h.handlers.Queues.Lookup(queue.LogoGeneration)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	handler, _ := h.registry.Handler(queue.LogoGeneration)
	pool := worker.NewPool(policy, h.broker, handler, h.bridge, zerolog.Nop())
	pool.Start()
	defer pool.Stop(ctx)

	for _, sub := range []*progress.Subscriber{brandSub, jobSub} {
		var last progress.Event
		deadline := time.After(5 * time.Second)
		for last.Status != progress.StatusComplete {
			select {
			case evt := <-sub.C():
				last = evt
			case <-deadline:
				t.Fatalf("no complete event, last status %q", last.Status)
			}
		}
		if last.Progress != 100 {
			t.Fatalf("complete event progress: got %d want 100", last.Progress)
		}
	}

	done, err := h.broker.Job(ctx, receipt.JobID)
	if err != nil {
		t.Fatalf("Job returned error: %v", err)
	}
	if done.State != domain.JobCompleted || done.AttemptsMade != 1 {
		t.Fatalf("terminal job mismatch: %+v", done)
	}
}
