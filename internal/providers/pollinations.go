package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	pollinationsTextBaseURL  = "https://text.pollinations.ai"
	pollinationsImageBaseURL = "https://image.pollinations.ai"
	pollinationsTimeout      = 60 * time.Second
)

// PollinationsProvider implements the Provider interface for Pollinations.ai
type PollinationsProvider struct {
	textBaseURL  string
	imageBaseURL string
	client       *http.Client
}

var _ Provider = (*PollinationsProvider)(nil)

// NewPollinationsProvider creates a new Pollinations provider instance.
// Empty base URLs and a zero timeout fall back to the public service defaults.
func NewPollinationsProvider(textBaseURL, imageBaseURL string, timeout time.Duration) *PollinationsProvider {
	if textBaseURL == "" {
		textBaseURL = pollinationsTextBaseURL
	}
	if imageBaseURL == "" {
		imageBaseURL = pollinationsImageBaseURL
	}
	if timeout <= 0 {
		timeout = pollinationsTimeout
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &PollinationsProvider{
		textBaseURL:  textBaseURL,
		imageBaseURL: imageBaseURL,
		client:       client,
	}
}

// GenerateText sends the prompt to the text service and returns the raw response
func (p *PollinationsProvider) GenerateText(ctx context.Context, prompt string) (*GenerationResponse, error) {
	reqURL := fmt.Sprintf("%s/prompt/%s", p.textBaseURL, url.PathEscape(prompt))
	return p.do(ctx, reqURL)
}

// GenerateImage requests an image for the prompt at the given dimensions
func (p *PollinationsProvider) GenerateImage(ctx context.Context, prompt string, width, height int) (*GenerationResponse, error) {
	return p.do(ctx, p.ImageURL(prompt, width, height))
}

// ImageURL returns the stable URL for a generated image
func (p *PollinationsProvider) ImageURL(prompt string, width, height int) string {
	return fmt.Sprintf("%s/prompt/%s?width=%d&height=%d",
		p.imageBaseURL, url.PathEscape(prompt), width, height)
}

func (p *PollinationsProvider) do(ctx context.Context, reqURL string) (*GenerationResponse, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &GenerationResponse{
		StatusCode:        resp.StatusCode,
		Body:              body,
		ContentType:       resp.Header.Get("Content-Type"),
		DownstreamLatency: time.Since(start),
	}, nil
}

// Close cleans up resources
func (p *PollinationsProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
