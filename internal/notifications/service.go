package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"plotline/internal/config"
)

const userAgent = "Plotline-Go/0.1.0"

// JobOutcome summarizes a finished job for notification purposes.
type JobOutcome struct {
	JobID          string
	ProjectID      string
	Status         string // succeeded, failed or canceled
	PartialSuccess bool
	ErrorMessage   string
	Images         int
	Duration       time.Duration
}

// Service defines the notification surface used by the workflow manager.
type Service interface {
	NotifyJobFinished(ctx context.Context, outcome JobOutcome) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.Notifications.OnSuccess,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
}

func (n *ntfyService) NotifyJobFinished(ctx context.Context, outcome JobOutcome) error {
	if outcome.Status == "succeeded" && !n.onSuccess {
		return nil
	}
	return n.send(ctx, formatOutcome(outcome))
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Plotline - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"plotline", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func formatOutcome(o JobOutcome) payload {
	project := strings.TrimSpace(o.ProjectID)
	duration := o.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	switch o.Status {
	case "succeeded":
		title := "Plotline - Illustrations Ready"
		message := fmt.Sprintf("✅ %s: %d images in %s", project, o.Images, duration)
		tags := []string{"plotline", "job", "succeeded"}
		if o.PartialSuccess {
			title = "Plotline - Illustrations Ready (partial)"
			message = fmt.Sprintf("⚠️ %s: %d images in %s; some scenes failed", project, o.Images, duration)
			tags = append(tags, "partial")
		}
		return payload{title: title, message: message, tags: tags}
	case "canceled":
		return payload{
			title:   "Plotline - Job Canceled",
			message: fmt.Sprintf("Job %s for %s was canceled", o.JobID, project),
			tags:    []string{"plotline", "job", "canceled"},
		}
	default:
		reason := strings.TrimSpace(o.ErrorMessage)
		if reason == "" {
			reason = "unknown"
		}
		return payload{
			title:    "Plotline - Job Failed",
			message:  fmt.Sprintf("❌ Job %s for %s failed: %s", o.JobID, project, reason),
			tags:     []string{"plotline", "job", "failed"},
			priority: "high",
		}
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobFinished(context.Context, JobOutcome) error { return nil }
func (noopService) TestNotification(context.Context) error              { return nil }
