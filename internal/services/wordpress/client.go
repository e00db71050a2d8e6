// Package wordpress talks to the WordPress REST API of a publication target.
// Authentication uses an application password over HTTP basic auth.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"linotype/internal/services"
)

const defaultHTTPTimeout = 60 * time.Second

// Client wraps one target site's REST API.
type Client struct {
	baseURL     string
	username    string
	appPassword string
	httpClient  *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client for one target site. baseURL is the site
// root, for example https://blog.example.com.
func NewClient(baseURL, username, appPassword string, opts ...Option) *Client {
	client := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		username:    strings.TrimSpace(username),
		appPassword: strings.TrimSpace(appPassword),
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Media is an uploaded media library item.
type Media struct {
	ID  int64  `json:"id"`
	URL string `json:"source_url"`
}

// Post identifies a created or updated post.
type Post struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

// PostInput carries the fields sent when creating or updating a post.
type PostInput struct {
	Title         string
	Slug          string
	ContentHTML   string
	Excerpt       string
	Status        string
	FeaturedMedia int64
	Categories    []int64
	Tags          []int64
}

// UploadMedia pushes image bytes into the media library. A 413 response
// surfaces as services.ErrPayloadTooLarge so the caller can retry with a
// smaller rendition.
func (c *Client) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (Media, error) {
	var empty Media
	if len(data) == 0 {
		return empty, services.Wrap(services.ErrValidation, "publish", "upload media", "empty payload", nil)
	}
	endpoint, err := url.JoinPath(c.baseURL, "/wp-json/wp/v2/media")
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, "publish", "build url", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return empty, services.Wrap(services.ErrPermanent, "publish", "request", "", err)
	}
	req.SetBasicAuth(c.username, c.appPassword)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "publish", "upload media", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "publish", "read body", "", err)
	}
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return empty, services.Wrap(services.ErrPayloadTooLarge, "publish", "upload media",
			fmt.Sprintf("%d bytes rejected", len(data)), nil)
	}
	if err := classifyStatus(resp.StatusCode, body, "upload media"); err != nil {
		return empty, err
	}

	var media Media
	if err := json.Unmarshal(body, &media); err != nil {
		return empty, services.Wrap(services.ErrTransient, "publish", "decode response", "", err)
	}
	if media.ID == 0 {
		return empty, services.Wrap(services.ErrTransient, "publish", "upload media", "no media id in response", nil)
	}
	return media, nil
}

// CreatePost creates a new post.
func (c *Client) CreatePost(ctx context.Context, input PostInput) (Post, error) {
	return c.writePost(ctx, 0, input)
}

// UpdatePost rewrites an existing post in place.
func (c *Client) UpdatePost(ctx context.Context, postID int64, input PostInput) (Post, error) {
	if postID <= 0 {
		return Post{}, services.Wrap(services.ErrValidation, "publish", "update post", "post id required", nil)
	}
	return c.writePost(ctx, postID, input)
}

// FindPostBySlug looks up an existing post by its slug, including drafts.
// A nil post with nil error means no match.
func (c *Client) FindPostBySlug(ctx context.Context, slug string) (*Post, error) {
	endpoint, err := url.JoinPath(c.baseURL, "/wp-json/wp/v2/posts")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "build url", "", err)
	}
	query := url.Values{}
	query.Set("slug", slug)
	query.Set("status", "publish,draft,future,pending")
	query.Set("per_page", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "publish", "request", "", err)
	}
	req.SetBasicAuth(c.username, c.appPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "publish", "find post", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "publish", "read body", "", err)
	}
	if err := classifyStatus(resp.StatusCode, body, "find post"); err != nil {
		return nil, err
	}

	var posts []Post
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, services.Wrap(services.ErrTransient, "publish", "decode response", "", err)
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}

func (c *Client) writePost(ctx context.Context, postID int64, input PostInput) (Post, error) {
	var empty Post
	path := "/wp-json/wp/v2/posts"
	operation := "create post"
	if postID > 0 {
		path += "/" + strconv.FormatInt(postID, 10)
		operation = "update post"
	}
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, "publish", "build url", "", err)
	}

	payload := map[string]any{
		"title":   input.Title,
		"slug":    input.Slug,
		"content": input.ContentHTML,
		"status":  input.Status,
	}
	if input.Excerpt != "" {
		payload["excerpt"] = input.Excerpt
	}
	if input.FeaturedMedia > 0 {
		payload["featured_media"] = input.FeaturedMedia
	}
	if len(input.Categories) > 0 {
		payload["categories"] = input.Categories
	}
	if len(input.Tags) > 0 {
		payload["tags"] = input.Tags
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return empty, services.Wrap(services.ErrPermanent, "publish", "encode request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, services.Wrap(services.ErrPermanent, "publish", "request", "", err)
	}
	req.SetBasicAuth(c.username, c.appPassword)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "publish", operation, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "publish", "read body", "", err)
	}
	if err := classifyStatus(resp.StatusCode, body, operation); err != nil {
		return empty, err
	}

	var post Post
	if err := json.Unmarshal(body, &post); err != nil {
		return empty, services.Wrap(services.ErrTransient, "publish", "decode response", "", err)
	}
	if post.ID == 0 {
		return empty, services.Wrap(services.ErrTransient, "publish", operation, "no post id in response", nil)
	}
	return post, nil
}

func classifyStatus(status int, body []byte, operation string) error {
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "publish", operation,
			fmt.Sprintf("http %d: check application password", status), nil)
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "publish", operation,
			fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body))), nil)
	default:
		return services.Wrap(services.ErrPermanent, "publish", operation,
			fmt.Sprintf("http %d: %s", status, strings.TrimSpace(string(body))), nil)
	}
}
