package render

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"reelcast/internal/services"
)

const providerName = "render"

// Config captures the runtime settings required to talk to the render provider.
type Config struct {
	BaseURL  string
	APIKey   string
	AvatarID string
	VoiceID  string
	Width    int
	Height   int
	// CallbackURL is the webhook the provider notifies on completion.
	CallbackURL string
}

// Request is one render submission.
type Request struct {
	Script string
	Title  string
	// AvatarID and VoiceID override the configured presenter when set.
	AvatarID string
	VoiceID  string
}

// Client submits scripts to the synthetic-presenter rendering service.
type Client struct {
	cfg  Config
	http *services.HTTPClient
}

// NewClient constructs a render client.
func NewClient(cfg Config, opts ...services.HTTPOption) *Client {
	return &Client{
		cfg: cfg,
		http: services.NewHTTPClient(services.HTTPConfig{
			Provider:   providerName,
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			AuthHeader: "X-Api-Key",
		}, opts...),
	}
}

type dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type submitPayload struct {
	Script      string    `json:"script"`
	Title       string    `json:"title,omitempty"`
	AvatarID    string    `json:"avatar_id"`
	VoiceID     string    `json:"voice_id"`
	Dimension   dimension `json:"dimension"`
	CallbackURL string    `json:"callback_url,omitempty"`
}

type submitResponse struct {
	VideoID string `json:"video_id"`
	ID      string `json:"id"`
	Data    struct {
		VideoID string `json:"video_id"`
	} `json:"data"`
}

func (r submitResponse) correlationID() string {
	for _, candidate := range []string{r.Data.VideoID, r.VideoID, r.ID} {
		if v := strings.TrimSpace(candidate); v != "" {
			return v
		}
	}
	return ""
}

// Submit posts a script for rendering and returns the provider's correlation id.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	script := strings.TrimSpace(req.Script)
	if script == "" {
		return "", services.Wrap(services.ErrValidation, providerName, "submit", "script required", nil)
	}
	payload := submitPayload{
		Script:      script,
		Title:       strings.TrimSpace(req.Title),
		AvatarID:    firstNonEmpty(req.AvatarID, c.cfg.AvatarID),
		VoiceID:     firstNonEmpty(req.VoiceID, c.cfg.VoiceID),
		Dimension:   dimension{Width: c.cfg.Width, Height: c.cfg.Height},
		CallbackURL: c.cfg.CallbackURL,
	}
	var resp submitResponse
	if err := c.http.PostJSON(ctx, "submit", "/v2/videos", payload, &resp); err != nil {
		return "", err
	}
	id := resp.correlationID()
	if id == "" {
		return "", services.NewPermanentError(providerName, "submit", errors.New("response carried no video id"))
	}
	return id, nil
}

type statusResponse struct {
	Data struct {
		Status   string `json:"status"`
		VideoURL string `json:"video_url"`
		Error    any    `json:"error"`
	} `json:"data"`
}

// PollStatus fetches the current state of a render job.
func (c *Client) PollStatus(ctx context.Context, correlationID string) (services.JobStatus, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return services.JobStatus{}, services.Wrap(services.ErrValidation, providerName, "poll", "correlation id required", nil)
	}
	var resp statusResponse
	query := url.Values{"video_id": []string{correlationID}}
	if err := c.http.GetJSON(ctx, "poll", "/v1/video_status.get", query, &resp); err != nil {
		return services.JobStatus{}, err
	}
	state, ok := services.ParseJobState(resp.Data.Status)
	if !ok {
		state = services.JobPending
	}
	status := services.JobStatus{State: state, ResultURL: strings.TrimSpace(resp.Data.VideoURL)}
	if state == services.JobFailed {
		status.Error = describeError(resp.Data.Error)
	}
	if state == services.JobCompleted && status.ResultURL == "" {
		// completed without a URL cannot be relayed; report as still pending
		status.State = services.JobPending
	}
	return status, nil
}

func describeError(raw any) string {
	switch v := raw.(type) {
	case nil:
		return "render failed"
	case string:
		if strings.TrimSpace(v) == "" {
			return "render failed"
		}
		return v
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
		if detail, ok := v["detail"].(string); ok && detail != "" {
			return detail
		}
	}
	return "render failed"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
