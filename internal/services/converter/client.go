// Package converter calls the document conversion service that turns a
// submitted source document into publishable markup.
package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"linotype/internal/services"
)

const defaultHTTPTimeout = 120 * time.Second

// Client wraps the conversion service API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the converter client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets the bearer token sent with conversion requests.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs a conversion service client.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Result is the converted document ready for publication.
type Result struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	CleanHTML   string `json:"clean_html"`
	Excerpt     string `json:"excerpt"`
	ImagePrompt string `json:"image_prompt"`
}

type convertRequest struct {
	SourceURL      string `json:"source_url"`
	PublishingHost string `json:"publishing_host"`
}

// Convert submits a source document for conversion. Server errors and
// transport failures are tagged transient; malformed responses and client
// errors are permanent because resubmitting the same document cannot help.
func (c *Client) Convert(ctx context.Context, sourceURL, publishingHost string) (Result, error) {
	var empty Result
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return empty, services.Wrap(services.ErrValidation, "convert", "request", "source url required", nil)
	}
	if c.baseURL == "" {
		return empty, services.Wrap(services.ErrConfiguration, "convert", "request", "converter base url not configured", nil)
	}

	endpoint, err := url.JoinPath(c.baseURL, "/convert")
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, "convert", "build url", "", err)
	}
	encoded, err := json.Marshal(convertRequest{SourceURL: sourceURL, PublishingHost: publishingHost})
	if err != nil {
		return empty, services.Wrap(services.ErrPermanent, "convert", "encode request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, services.Wrap(services.ErrPermanent, "convert", "request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return empty, services.Wrap(services.ErrTimeout, "convert", "request", fmt.Sprintf("after %s", time.Since(started).Round(time.Millisecond)), err)
		}
		return empty, services.Wrap(services.ErrTransient, "convert", "request", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "convert", "read body", "", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return empty, services.Wrap(services.ErrTransient, "convert", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return empty, services.Wrap(services.ErrPermanent, "convert", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return empty, services.Wrap(services.ErrPermanent, "convert", "decode response", "", err)
	}
	if err := normalizeResult(&result); err != nil {
		return empty, err
	}
	return result, nil
}

// normalizeResult enforces the response contract and derives a title from the
// slug when the converter leaves it empty.
func normalizeResult(result *Result) error {
	result.Title = strings.TrimSpace(result.Title)
	result.Slug = strings.TrimSpace(result.Slug)
	result.CleanHTML = strings.TrimSpace(result.CleanHTML)
	result.Excerpt = strings.TrimSpace(result.Excerpt)
	result.ImagePrompt = strings.TrimSpace(result.ImagePrompt)

	if result.CleanHTML == "" {
		return services.Wrap(services.ErrPermanent, "convert", "decode response", "clean_html missing", nil)
	}
	if result.Title == "" && result.Slug == "" {
		return services.Wrap(services.ErrPermanent, "convert", "decode response", "title and slug missing", nil)
	}
	if result.Title == "" {
		result.Title = TitleFromSlug(result.Slug)
	}
	return nil
}

var titleCaser = cases.Title(language.English)

// TitleFromSlug turns a URL slug into a presentable post title.
func TitleFromSlug(slug string) string {
	cleaned := strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return titleCaser.String(cleaned)
}
