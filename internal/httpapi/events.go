package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"plotline/internal/api"
	"plotline/internal/jobs"
)

// keepAliveInterval spaces SSE comment lines on idle streams.
var keepAliveInterval = 15 * time.Second

// handleEvents streams job snapshots as Server-Sent Events. The stream ends
// after the terminal snapshot.
func (s Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")
	sub, err := s.Jobs.Subscribe(ctx, jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	last := sub.Current
	if err := writeEvent(w, rc, last); err != nil || last.Status.Terminal() {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case job, ok := <-sub.Updates:
			if !ok {
				// Closed without a terminal snapshot reaching us; send the stored one.
				if final, err := s.Jobs.Get(ctx, jobID); err == nil && final.Version > last.Version {
					_ = writeJSONEvent(w, rc, final)
				}
				return
			}
			if job.Version < last.Version {
				continue
			}
			last = job
			if err := writeEvent(w, rc, job); err != nil || job.Status.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, job *jobs.Job) error {
	return writeJSONEvent(w, rc, api.FromJob(job))
}

func writeJSONEvent(w http.ResponseWriter, rc *http.ResponseController, job api.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: job\ndata: %s\n\n", job.Version, payload); err != nil {
		return err
	}
	return rc.Flush()
}
