package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"plotline/internal/config"
	"plotline/internal/notifications"
)

type captured struct {
	title, body, tags, priority string
}

func newNtfyServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), got...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobFinished(context.Background(), notifications.JobOutcome{Status: "failed"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsOutcomes(t *testing.T) {
	tests := []struct {
		name           string
		outcome        notifications.JobOutcome
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "succeeded",
			outcome:       notifications.JobOutcome{JobID: "j1", ProjectID: "moby", Status: "succeeded", Images: 12, Duration: 90 * time.Second},
			expectTitle:   "Plotline - Illustrations Ready",
			expectMessage: "✅ moby: 12 images in 1m30s",
			expectTags:    "plotline,job,succeeded",
		},
		{
			name:          "partial",
			outcome:       notifications.JobOutcome{JobID: "j1", ProjectID: "moby", Status: "succeeded", PartialSuccess: true, Images: 3, Duration: time.Second},
			expectTitle:   "Plotline - Illustrations Ready (partial)",
			expectMessage: "some scenes failed",
			expectTags:    "plotline,job,succeeded,partial",
		},
		{
			name:           "failed",
			outcome:        notifications.JobOutcome{JobID: "j2", ProjectID: "moby", Status: "failed", ErrorMessage: "stage images: 3/3 units failed"},
			expectTitle:    "Plotline - Job Failed",
			expectMessage:  "❌ Job j2 for moby failed: stage images: 3/3 units failed",
			expectTags:     "plotline,job,failed",
			expectPriority: "high",
		},
		{
			name:          "canceled",
			outcome:       notifications.JobOutcome{JobID: "j3", ProjectID: "moby", Status: "canceled"},
			expectTitle:   "Plotline - Job Canceled",
			expectMessage: "Job j3 for moby was canceled",
			expectTags:    "plotline,job,canceled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, received := newNtfyServer(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = srv.URL
			svc := notifications.NewService(&cfg)

			if err := svc.NotifyJobFinished(context.Background(), tt.outcome); err != nil {
				t.Fatalf("NotifyJobFinished: %v", err)
			}
			got := received()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			msg := got[0]
			if msg.title != tt.expectTitle {
				t.Errorf("title = %q, want %q", msg.title, tt.expectTitle)
			}
			if !strings.Contains(msg.body, tt.expectMessage) {
				t.Errorf("body = %q, want it to contain %q", msg.body, tt.expectMessage)
			}
			if msg.tags != tt.expectTags {
				t.Errorf("tags = %q, want %q", msg.tags, tt.expectTags)
			}
			if msg.priority != tt.expectPriority {
				t.Errorf("priority = %q, want %q", msg.priority, tt.expectPriority)
			}
		})
	}
}

func TestNtfyServiceSkipsSuccessWhenDisabled(t *testing.T) {
	srv, received := newNtfyServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.OnSuccess = false
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	if err := svc.NotifyJobFinished(ctx, notifications.JobOutcome{Status: "succeeded"}); err != nil {
		t.Fatalf("NotifyJobFinished: %v", err)
	}
	if err := svc.NotifyJobFinished(ctx, notifications.JobOutcome{Status: "failed"}); err != nil {
		t.Fatalf("NotifyJobFinished: %v", err)
	}
	if got := received(); len(got) != 1 || got[0].title != "Plotline - Job Failed" {
		t.Fatalf("expected only the failure notification, got %+v", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
