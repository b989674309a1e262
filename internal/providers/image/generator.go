// Package image defines the image-generation collaborator the worker
// invokes. Real provider clients live outside this repository; the
// orchestration core only depends on this contract.
package image

import (
	"context"
	"fmt"
)

// GenerateRequest asks a provider for one batch of images.
type GenerateRequest struct {
	Prompt      string
	StyleID     string
	Quantity    int
	AspectRatio string
	// RequestID correlates provider calls with the job; providers that
	// support idempotency keys receive it as such.
	RequestID string
}

// Asset is one generated image.
type Asset struct {
	URL    string `json:"url"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Generator produces image assets.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]Asset, error)
}

// Static is a deterministic in-process Generator for tests and dev mode.
type Static struct {
	BaseURL string
}

func (s *Static) Generate(_ context.Context, req GenerateRequest) ([]Asset, error) {
	if req.Quantity < 1 {
		return nil, fmt.Errorf("quantity must be positive, got %d", req.Quantity)
	}
	base := s.BaseURL
	if base == "" {
		base = "https://assets.invalid"
	}
	assets := make([]Asset, req.Quantity)
	for i := range assets {
		assets[i] = Asset{
			URL:    fmt.Sprintf("%s/%s/candidate-%02d.png", base, req.RequestID, i+1),
			Format: "image/png",
			Width:  1024,
			Height: 1024,
		}
	}
	return assets, nil
}
