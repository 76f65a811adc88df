package providers

import (
	"context"
	"time"
)

// GenerationResponse is a normalized downstream response.
type GenerationResponse struct {
	StatusCode        int
	Body              []byte
	ContentType       string
	DownstreamLatency time.Duration
}

// Provider is implemented by downstream generation services.
type Provider interface {
	// GenerateText sends a text generation request for the given prompt
	GenerateText(ctx context.Context, prompt string) (*GenerationResponse, error)

	// GenerateImage sends an image generation request for the given prompt
	GenerateImage(ctx context.Context, prompt string, width, height int) (*GenerationResponse, error)

	// ImageURL returns the stable URL for a generated image
	ImageURL(prompt string, width, height int) string

	// Close performs cleanup when the provider is no longer needed
	Close() error
}
