package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"plotline/internal/api"
	"plotline/internal/blob"
	"plotline/internal/logging"
)

// StatusProvider reports daemon level status.
type StatusProvider interface {
	Status(ctx context.Context) api.DaemonStatus
}

// Server holds the collaborators behind the HTTP routes.
type Server struct {
	Jobs   *api.JobService
	Blobs  blob.LocalFS
	Daemon StatusProvider // optional; falls back to the workflow summary
	Token  string
	Logger *slog.Logger
}

// Router builds the HTTP handler.
func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log()))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(bearerAuth(s.Token))
		r.Get("/status", s.handleStatus)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/jobs", s.handleStartJob)
			r.Get("/jobs", s.handleListJobs)
			r.Get("/characters", s.handleCharacters)
			r.Get("/chapters", s.handleChapters)
			r.Get("/scenes", s.handleScenes)
			r.Get("/images", s.handleImages)
			r.Get("/images/{imageID}/content", s.handleImageContent)
		})

		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Delete("/", s.handleDeleteJob)
			r.Post("/cancel", s.handleCancelJob)
			r.Post("/retry", s.handleRetryJob)
			r.Get("/items", s.handleItems)
			r.Get("/events", s.handleEvents)
		})
	})
	return r
}

func (s Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.Daemon != nil {
		writeJSON(w, http.StatusOK, s.Daemon.Status(r.Context()))
		return
	}
	summary := s.Jobs.Status(r.Context())
	writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:  summary.Running,
		PID:      os.Getpid(),
		Workflow: summary,
	})
}

// maxStartBody bounds the manuscript upload.
const maxStartBody = 32 << 20

func (s Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req api.StartJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStartBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	job, err := s.Jobs.Start(r.Context(), chi.URLParam(r, "projectID"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.JobResponse{Job: job})
}

func (s Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.Jobs.ListByProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: list})
}

func (s Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.JobResponse{Job: job})
}

func (s Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.Jobs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.Jobs.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.CancelResponse{Acknowledged: true})
}

func (s Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Jobs.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.JobResponse{Job: job})
}

func (s Server) handleItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.Jobs.Items(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("stage"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ItemListResponse{Items: items})
}

func (s Server) handleCharacters(w http.ResponseWriter, r *http.Request) {
	list, err := s.Jobs.Characters(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.CharacterListResponse{Characters: list})
}

func (s Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	list, err := s.Jobs.Chapters(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ChapterListResponse{Chapters: list})
}

func (s Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	list, err := s.Jobs.Scenes(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SceneListResponse{Scenes: list})
}

func (s Server) handleImages(w http.ResponseWriter, r *http.Request) {
	list, err := s.Jobs.Images(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ImageListResponse{Images: list})
}

func (s Server) handleImageContent(w http.ResponseWriter, r *http.Request) {
	list, err := s.Jobs.Images(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	imageID := chi.URLParam(r, "imageID")
	for _, img := range list {
		if img.ID != imageID {
			continue
		}
		f, err := s.Blobs.Open(img.BlobKey)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				writeError(w, http.StatusNotFound, api.CodeNotFound, fmt.Errorf("image %s has no stored content", imageID))
				return
			}
			s.fail(w, r, err)
			return
		}
		defer f.Close()
		if img.MimeType != "" {
			w.Header().Set("Content-Type", img.MimeType)
		}
		info, err := f.Stat()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
		return
	}
	writeError(w, http.StatusNotFound, api.CodeNotFound, fmt.Errorf("image %s not found", imageID))
}

// fail maps err to a status code and writes the error body. Unexpected
// errors are logged with the request id.
func (s Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := api.Classify(err)
	if status >= http.StatusInternalServerError {
		s.log().Error("request failed",
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String(logging.FieldCorrelationID, middleware.GetReqID(r.Context())),
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	writeError(w, status, code, err)
}

func (s Server) log() *slog.Logger {
	if s.Logger != nil {
		return logging.NewComponentLogger(s.Logger, "api-server")
	}
	return logging.NewNop()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Code: code})
}
