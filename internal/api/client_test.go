package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"plotline/internal/api"
	"plotline/internal/jobs"
	"plotline/internal/workflow"
)

func TestClientStartJob(t *testing.T) {
	var gotBody api.StartJobRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/projects/my%20book/jobs" && r.URL.Path != "/v1/projects/my book/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.JobResponse{Job: api.Job{ID: "job-1", ProjectID: "my book", Status: "queued"}})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL+"/", api.WithToken("secret"))
	job, err := client.StartJob(context.Background(), "my book", api.StartJobRequest{
		ManuscriptText: "text",
		StylePreset:    "ink",
		Options:        api.StartJobOptions{ImagesPerScene: 2},
	})
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	if job.ID != "job-1" || job.Status != "queued" {
		t.Fatalf("unexpected job %+v", job)
	}
	if gotBody.StylePreset != "ink" || gotBody.Options.ImagesPerScene != 2 {
		t.Fatalf("unexpected request body %+v", gotBody)
	}
}

func TestClientErrorsUnwrapToSentinels(t *testing.T) {
	tests := []struct {
		code   string
		status int
		want   error
	}{
		{api.CodeNotFound, http.StatusNotFound, jobs.ErrNotFound},
		{api.CodeProjectBusy, http.StatusConflict, workflow.ErrProjectBusy},
		{api.CodeInvalidRequest, http.StatusBadRequest, workflow.ErrInvalidRequest},
		{api.CodeJobActive, http.StatusConflict, jobs.ErrJobActive},
		{api.CodeNotRunning, http.StatusServiceUnavailable, workflow.ErrNotRunning},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "nope", Code: tc.code})
			}))
			defer srv.Close()

			_, err := api.NewClient(srv.URL).GetJob(context.Background(), "job-1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tc.status || apiErr.Message != "nope" {
				t.Fatalf("unexpected api error %#v", err)
			}
		})
	}
}

func TestClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := api.NewClient(srv.URL).CancelJob(context.Background(), "job-1")
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "gateway down" || apiErr.Code != "" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestClientUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := api.NewClient(url).Status(context.Background())
	if !errors.Is(err, api.ErrDaemonUnavailable) {
		t.Fatalf("expected ErrDaemonUnavailable, got %v", err)
	}
}

func TestClientItemsStageQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("stage"); got != "images" {
			t.Errorf("expected stage query, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(api.ItemListResponse{Items: []api.Item{{ID: "i1", Stage: "images"}}})
	}))
	defer srv.Close()

	items, err := api.NewClient(srv.URL).Items(context.Background(), "job-1", " images ")
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "i1" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestClientWatchReadsEventsUntilTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs/job-1/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, status := range []string{"queued", "running", "succeeded", "running"} {
			payload, _ := json.Marshal(api.Job{ID: "job-1", Status: status, Progress: i * 50})
			fmt.Fprintf(w, ": keepalive\n\nevent: job\ndata: %s\n\n", payload)
		}
	}))
	defer srv.Close()

	var seen []string
	job, err := api.NewClient(srv.URL).Watch(context.Background(), "job-1", func(j api.Job) {
		seen = append(seen, j.Status)
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if job.Status != "succeeded" || job.Progress != 100 {
		t.Fatalf("unexpected terminal job %+v", job)
	}
	if len(seen) != 3 {
		t.Fatalf("expected to stop at the terminal snapshot, saw %v", seen)
	}
}
