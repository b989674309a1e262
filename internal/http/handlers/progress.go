package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"brandkit/internal/progress"
)

// BrandEvents streams every progress event for a brand over SSE. All
// wizard tabs for the brand join the same room.
func (a *App) BrandEvents(w http.ResponseWriter, r *http.Request) {
	brandID := chi.URLParam(r, "brand_id")
	a.streamRoom(w, r, progress.BrandRoom(brandID))
}

// JobEvents streams progress for a single job over SSE.
func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	a.streamRoom(w, r, progress.JobRoom(jobID))
}

func (a *App) streamRoom(w http.ResponseWriter, r *http.Request, room string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	sub, cancel := a.Bridge.Subscribe(room)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-sub.C():
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
