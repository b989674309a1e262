package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"brandkit/internal/broker"
	"brandkit/internal/credit"
	"brandkit/internal/dispatch"
	"brandkit/internal/progress"
	"brandkit/internal/queue"
)

// SessionWriter records wizard activity. Touching a session resets the
// inactivity clock and clears a previous abandonment marker.
type SessionWriter interface {
	Touch(ctx context.Context, brandID, userID, step string) error
}

// App carries the collaborators shared by all HTTP handlers.
type App struct {
	Dispatcher *dispatch.Dispatcher
	Broker     broker.Broker
	Gate       credit.Gate
	Bridge     *progress.Bridge
	Queues     *queue.Registry
	Sessions   SessionWriter
	Logger     zerolog.Logger

	// GenerationCost is the credit price of one generation job.
	GenerationCost int
	// ResumeSecret keys resume-token verification.
	ResumeSecret string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}
