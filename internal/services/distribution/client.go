package distribution

import (
	"context"
	"errors"
	"strings"
	"time"

	"reelcast/internal/services"
)

const providerName = "distribution"

// Config captures the runtime settings required to talk to the distribution provider.
type Config struct {
	BaseURL string
	APIKey  string
}

// Request is one post submission. PostTypes maps a platform to its placement
// ("reel", "story", "short", ...).
type Request struct {
	VideoURL     string
	Caption      string
	Title        string
	Platforms    []string
	PostTypes    map[string]string
	ScheduleTime *time.Time
}

// Result is the provider's answer to a post submission.
type Result struct {
	Success bool
	PostID  string
	Errors  []string
}

// Client publishes finished videos to social platforms.
type Client struct {
	http *services.HTTPClient
}

// NewClient constructs a distribution client.
func NewClient(cfg Config, opts ...services.HTTPOption) *Client {
	return &Client{
		http: services.NewHTTPClient(services.HTTPConfig{
			Provider: providerName,
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
		}, opts...),
	}
}

type postPayload struct {
	VideoURL     string            `json:"videoUrl"`
	Caption      string            `json:"caption"`
	Title        string            `json:"title,omitempty"`
	Platforms    []string          `json:"platforms"`
	PostTypes    map[string]string `json:"postTypes,omitempty"`
	ScheduleTime string            `json:"scheduleTime,omitempty"`
}

type postResponse struct {
	Success bool     `json:"success"`
	PostID  string   `json:"postId"`
	ID      string   `json:"id"`
	Errors  []string `json:"errors"`
	Error   string   `json:"error"`
}

// Post submits a video for publication. A response with success=false or no
// post id is returned as a permanent error alongside the decoded Result.
func (c *Client) Post(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.VideoURL) == "" {
		return Result{}, services.Wrap(services.ErrValidation, providerName, "post", "video url required", nil)
	}
	if len(req.Platforms) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, providerName, "post", "at least one platform required", nil)
	}
	payload := postPayload{
		VideoURL:  strings.TrimSpace(req.VideoURL),
		Caption:   req.Caption,
		Title:     req.Title,
		Platforms: req.Platforms,
		PostTypes: req.PostTypes,
	}
	if req.ScheduleTime != nil && !req.ScheduleTime.IsZero() {
		payload.ScheduleTime = req.ScheduleTime.UTC().Format(time.RFC3339)
	}

	var resp postResponse
	if err := c.http.PostJSON(ctx, "post", "/api/v1/posts", payload, &resp); err != nil {
		return Result{Errors: []string{err.Error()}}, err
	}
	result := Result{Success: resp.Success, PostID: strings.TrimSpace(resp.PostID), Errors: resp.Errors}
	if result.PostID == "" {
		result.PostID = strings.TrimSpace(resp.ID)
	}
	if resp.Error != "" {
		result.Errors = append(result.Errors, resp.Error)
	}
	if !result.Success || result.PostID == "" {
		msg := strings.Join(result.Errors, "; ")
		if msg == "" {
			msg = "post not accepted"
		}
		result.Success = false
		return result, services.NewPermanentError(providerName, "post", errors.New(msg))
	}
	return result, nil
}
