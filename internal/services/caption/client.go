package caption

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"reelcast/internal/services"
)

const providerName = "caption"

// Config captures the runtime settings required to talk to the caption provider.
type Config struct {
	BaseURL     string
	APIKey      string
	Template    string
	Language    string
	CallbackURL string
}

// Request is one caption submission.
type Request struct {
	VideoURL string
	Title    string
	// Template and Language override the configured defaults when set.
	Template string
	Language string
}

// Client submits rendered videos to the captioning/effects service.
type Client struct {
	cfg  Config
	http *services.HTTPClient
}

// NewClient constructs a caption client.
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

type submitPayload struct {
	VideoURL     string `json:"videoUrl"`
	Title        string `json:"title"`
	Language     string `json:"language"`
	TemplateName string `json:"templateName"`
	WebhookURL   string `json:"webhookUrl,omitempty"`
}

// projectResponse covers both the submit and status payloads.
type projectResponse struct {
	ID            string `json:"id"`
	ProjectID     string `json:"projectId"`
	Status        string `json:"status"`
	DownloadURL   string `json:"downloadUrl"`
	DirectURL     string `json:"directUrl"`
	FailureReason string `json:"failureReason"`
}

func (r projectResponse) correlationID() string {
	if id := strings.TrimSpace(r.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(r.ID)
}

func (r projectResponse) resultURL() string {
	if u := strings.TrimSpace(r.DownloadURL); u != "" {
		return u
	}
	return strings.TrimSpace(r.DirectURL)
}

// Submit posts a video for captioning and returns the project id.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	videoURL := strings.TrimSpace(req.VideoURL)
	if videoURL == "" {
		return "", services.Wrap(services.ErrValidation, providerName, "submit", "video url required", nil)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled"
	}
	payload := submitPayload{
		VideoURL:     videoURL,
		Title:        title,
		Language:     firstNonEmpty(req.Language, c.cfg.Language, "en"),
		TemplateName: firstNonEmpty(req.Template, c.cfg.Template),
		WebhookURL:   c.cfg.CallbackURL,
	}
	var resp projectResponse
	if err := c.http.PostJSON(ctx, "submit", "/v1/projects", payload, &resp); err != nil {
		return "", err
	}
	id := resp.correlationID()
	if id == "" {
		return "", services.NewPermanentError(providerName, "submit", errors.New("response carried no project id"))
	}
	return id, nil
}

// PollStatus fetches the current state of a caption project.
func (c *Client) PollStatus(ctx context.Context, correlationID string) (services.JobStatus, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return services.JobStatus{}, services.Wrap(services.ErrValidation, providerName, "poll", "correlation id required", nil)
	}
	var resp projectResponse
	if err := c.http.GetJSON(ctx, "poll", "/v1/projects/"+url.PathEscape(correlationID), nil, &resp); err != nil {
		return services.JobStatus{}, err
	}
	state, ok := services.ParseJobState(resp.Status)
	if !ok {
		state = services.JobPending
	}
	status := services.JobStatus{State: state, ResultURL: resp.resultURL()}
	switch {
	case state == services.JobFailed:
		status.Error = firstNonEmpty(resp.FailureReason, "caption project failed")
	case state == services.JobCompleted && status.ResultURL == "":
		status.State = services.JobPending
	}
	return status, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
