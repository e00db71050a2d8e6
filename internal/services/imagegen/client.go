// Package imagegen calls the image generation service that produces featured
// illustrations from a text prompt. Generations are asynchronous: the create
// call returns a generation id that is polled until an image URL appears.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"linotype/internal/services"
)

const (
	defaultHTTPTimeout  = 30 * time.Second
	defaultPollInterval = 3 * time.Second
	defaultPollTimeout  = 120 * time.Second
	maxImageBytes       = 32 << 20
)

// Client wraps the image generation API.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
	pollTimeout  time.Duration
	httpClient   *http.Client
}

// Option customizes the image generation client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithModel selects the generation model.
func WithModel(model string) Option {
	return func(c *Client) {
		model = strings.TrimSpace(model)
		if model != "" {
			c.model = model
		}
	}
}

// WithPolling overrides the poll cadence and deadline.
func WithPolling(interval, timeout time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if timeout > 0 {
			c.pollTimeout = timeout
		}
	}
}

// NewClient constructs an image generation client.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	client := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:       strings.TrimSpace(apiKey),
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Request describes one generation.
type Request struct {
	Prompt string
	Width  int
	Height int
}

// Image is a finished generation ready for download.
type Image struct {
	URL    string
	Width  int
	Height int
}

type createRequest struct {
	Prompt    string `json:"prompt"`
	ModelID   string `json:"modelId,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	NumImages int    `json:"num_images"`
}

type createResponse struct {
	Job struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
	GeneratedImages []generatedImage `json:"generated_images"`
}

type generatedImage struct {
	URL string `json:"url"`
}

type pollResponse struct {
	Generation struct {
		Status          string           `json:"status"`
		GeneratedImages []generatedImage `json:"generated_images"`
	} `json:"generations_by_pk"`
}

// Generate creates a generation and waits for its image URL. The returned
// image keeps the requested dimensions; the provider renders at exactly the
// size asked for.
func (c *Client) Generate(ctx context.Context, req Request) (Image, error) {
	var empty Image
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return empty, services.Wrap(services.ErrValidation, "illustrate", "generate", "prompt required", nil)
	}
	if c.baseURL == "" || c.apiKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, "illustrate", "generate", "image service not configured", nil)
	}

	created, err := c.create(ctx, prompt, req.Width, req.Height)
	if err != nil {
		return empty, err
	}
	if len(created.GeneratedImages) > 0 && created.GeneratedImages[0].URL != "" {
		return Image{URL: created.GeneratedImages[0].URL, Width: req.Width, Height: req.Height}, nil
	}
	if created.Job.GenerationID == "" {
		return empty, services.Wrap(services.ErrTransient, "illustrate", "generate", "no generation id in response", nil)
	}

	imageURL, err := c.poll(ctx, created.Job.GenerationID)
	if err != nil {
		return empty, err
	}
	return Image{URL: imageURL, Width: req.Width, Height: req.Height}, nil
}

func (c *Client) create(ctx context.Context, prompt string, width, height int) (createResponse, error) {
	var empty createResponse
	endpoint, err := url.JoinPath(c.baseURL, "/generations")
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, "illustrate", "build url", "", err)
	}
	encoded, err := json.Marshal(createRequest{
		Prompt:    prompt,
		ModelID:   c.model,
		Width:     width,
		Height:    height,
		NumImages: 1,
	})
	if err != nil {
		return empty, services.Wrap(services.ErrPermanent, "illustrate", "encode request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, services.Wrap(services.ErrPermanent, "illustrate", "request", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "illustrate", "create generation", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "illustrate", "read body", "", err)
	}
	if err := classifyStatus(resp.StatusCode, body, "create generation"); err != nil {
		return empty, err
	}

	var parsed createResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return empty, services.Wrap(services.ErrTransient, "illustrate", "decode response", "", err)
	}
	return parsed, nil
}

func (c *Client) poll(ctx context.Context, generationID string) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "/generations", generationID)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "illustrate", "build url", "", err)
	}

	deadline := time.Now().Add(c.pollTimeout)
	for {
		if time.Now().After(deadline) {
			return "", services.Wrap(services.ErrTimeout, "illustrate", "poll generation",
				fmt.Sprintf("no image after %s", c.pollTimeout), nil)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", services.Wrap(services.ErrPermanent, "illustrate", "request", "", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", services.Wrap(services.ErrTransient, "illustrate", "poll generation", "", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", services.Wrap(services.ErrTransient, "illustrate", "read body", "", err)
		}
		if err := classifyStatus(resp.StatusCode, body, "poll generation"); err != nil {
			return "", err
		}

		var parsed pollResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", services.Wrap(services.ErrTransient, "illustrate", "decode response", "", err)
		}
		if strings.EqualFold(parsed.Generation.Status, "FAILED") {
			return "", services.Wrap(services.ErrPermanent, "illustrate", "poll generation", "generation failed", nil)
		}
		if len(parsed.Generation.GeneratedImages) > 0 && parsed.Generation.GeneratedImages[0].URL != "" {
			return parsed.Generation.GeneratedImages[0].URL, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// Download fetches the generated image bytes.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "illustrate", "download", "", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "illustrate", "download", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		marker := services.ErrTransient
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
			marker = services.ErrPermanent
		}
		return nil, services.Wrap(marker, "illustrate", "download", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "illustrate", "download", "", err)
	}
	if len(data) > maxImageBytes {
		return nil, services.Wrap(services.ErrPermanent, "illustrate", "download", "image exceeds size limit", nil)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrTransient, "illustrate", "download", "empty image body", nil)
	}
	return data, nil
}

func classifyStatus(status int, body []byte, operation string) error {
	switch {
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "illustrate", operation,
			fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body))), nil)
	case status >= http.StatusBadRequest:
		return services.Wrap(services.ErrPermanent, "illustrate", operation,
			fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body))), nil)
	}
	return nil
}
