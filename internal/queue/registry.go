package queue

import (
	"fmt"
	"sort"
	"time"

	"brandkit/internal/domain"
)

// Queue names. Every dispatchable job targets one of these.
const (
	BrandWizard       = "brand-wizard"
	LogoGeneration    = "logo-generation"
	MockupGeneration  = "mockup-generation"
	BundleComposition = "bundle-composition"
	VideoGeneration   = "video-generation"
	CRMSync           = "crm-sync"
	EmailSend         = "email-send"
	ImageUpload       = "image-upload"
	Cleanup           = "cleanup"
)

// BackoffKind selects the retry delay strategy.
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffFixed       BackoffKind = "fixed"
)

// RetryPolicy bounds how often and how eagerly a failed job is retried.
type RetryPolicy struct {
	// Attempts is the total execution budget, including the first run.
	Attempts     int
	BackoffDelay time.Duration
	BackoffKind  BackoffKind
}

// RetentionPolicy bounds how long terminal jobs stay in the broker.
// Whichever of count or age trips first wins.
type RetentionPolicy struct {
	CompletedCount int
	CompletedAge   time.Duration
	FailedCount    int
	FailedAge      time.Duration
}

// Policy is the immutable per-queue configuration. Policies are fixed at
// startup; changing one requires a process restart.
type Policy struct {
	Name        string
	Concurrency int
	Timeout     time.Duration
	// Priority orders queues' jobs inside the broker; lower is more urgent.
	Priority int
	// RatePerSec caps sustained claims per second. Zero disables the cap.
	RatePerSec float64
	Retry      RetryPolicy
	Retention  RetentionPolicy
}

// Registry is the static catalog of queue policies. It is constructed once
// and injected into the dispatcher and worker pools; it is never mutated
// after NewRegistry returns.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry builds a registry from the given policies.
func NewRegistry(policies ...Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if p.Name == "" {
			return nil, fmt.Errorf("queue policy with empty name")
		}
		if _, dup := r.policies[p.Name]; dup {
			return nil, fmt.Errorf("duplicate queue policy %q", p.Name)
		}
		if p.Concurrency <= 0 {
			return nil, fmt.Errorf("queue %q: concurrency must be positive", p.Name)
		}
		if p.Retry.Attempts <= 0 {
			return nil, fmt.Errorf("queue %q: retry attempts must be positive", p.Name)
		}
		r.policies[p.Name] = p
	}
	return r, nil
}

// Lookup returns the policy for a queue name.
func (r *Registry) Lookup(name string) (Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("queue %q: %w", name, domain.ErrUnknownQueue)
	}
	return p, nil
}

// Names returns all registered queue names, sorted for deterministic wiring.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultCatalog returns the production queue catalog.
func DefaultCatalog() []Policy {
	genRetention := RetentionPolicy{
		CompletedCount: 200, CompletedAge: time.Hour,
		FailedCount: 500, FailedAge: 7 * 24 * time.Hour,
	}
	return []Policy{
		{
			Name: BrandWizard, Concurrency: 2, Timeout: 5 * time.Minute, Priority: 1,
			Retry:     RetryPolicy{Attempts: 2, BackoffDelay: 5 * time.Second, BackoffKind: BackoffExponential},
			Retention: genRetention,
		},
		{
			Name: LogoGeneration, Concurrency: 4, Timeout: 2 * time.Minute, Priority: 1,
			Retry:     RetryPolicy{Attempts: 3, BackoffDelay: 3 * time.Second, BackoffKind: BackoffExponential},
			Retention: genRetention,
		},
		{
			Name: MockupGeneration, Concurrency: 4, Timeout: 2 * time.Minute, Priority: 1,
			Retry:     RetryPolicy{Attempts: 3, BackoffDelay: 3 * time.Second, BackoffKind: BackoffExponential},
			Retention: genRetention,
		},
		{
			Name: BundleComposition, Concurrency: 2, Timeout: 2 * time.Minute, Priority: 2,
			Retry:     RetryPolicy{Attempts: 3, BackoffDelay: 3 * time.Second, BackoffKind: BackoffExponential},
			Retention: genRetention,
		},
		{
			Name: VideoGeneration, Concurrency: 1, Timeout: 5 * time.Minute, Priority: 2,
			Retry:     RetryPolicy{Attempts: 2, BackoffDelay: 10 * time.Second, BackoffKind: BackoffExponential},
			Retention: genRetention,
		},
		{
			Name: CRMSync, Concurrency: 5, Timeout: 30 * time.Second, Priority: 5,
			Retry:     RetryPolicy{Attempts: 5, BackoffDelay: 2 * time.Second, BackoffKind: BackoffExponential},
			Retention: RetentionPolicy{CompletedCount: 100, CompletedAge: time.Hour, FailedCount: 500, FailedAge: 72 * time.Hour},
		},
		{
			Name: EmailSend, Concurrency: 10, Timeout: 15 * time.Second, Priority: 3,
			Retry:     RetryPolicy{Attempts: 5, BackoffDelay: 2 * time.Second, BackoffKind: BackoffExponential},
			Retention: RetentionPolicy{CompletedCount: 100, CompletedAge: time.Hour, FailedCount: 500, FailedAge: 72 * time.Hour},
		},
		{
			Name: ImageUpload, Concurrency: 5, Timeout: time.Minute, Priority: 2,
			Retry:     RetryPolicy{Attempts: 3, BackoffDelay: 2 * time.Second, BackoffKind: BackoffExponential},
			Retention: genRetention,
		},
		{
			Name: Cleanup, Concurrency: 1, Timeout: 2 * time.Minute, Priority: 10,
			Retry:     RetryPolicy{Attempts: 1, BackoffDelay: time.Minute, BackoffKind: BackoffFixed},
			Retention: RetentionPolicy{CompletedCount: 10, CompletedAge: time.Hour, FailedCount: 50, FailedAge: 24 * time.Hour},
		},
	}
}
