// Package video defines the promo-video generation collaborator.
package video

import (
	"context"
	"fmt"
)

// GenerateRequest asks a provider for one short video.
type GenerateRequest struct {
	Prompt      string
	DurationSec int
	RequestID   string
}

// Asset is the finished video.
type Asset struct {
	URL         string `json:"url"`
	Format      string `json:"format"`
	DurationSec int    `json:"duration_sec"`
}

// Generator produces a video asset.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Asset, error)
}

// Static is a deterministic in-process Generator for tests and dev mode.
type Static struct {
	BaseURL string
}

func (s *Static) Generate(_ context.Context, req GenerateRequest) (Asset, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://assets.invalid"
	}
	return Asset{
		URL:         fmt.Sprintf("%s/%s/promo.mp4", base, req.RequestID),
		Format:      "video/mp4",
		DurationSec: req.DurationSec,
	}, nil
}
