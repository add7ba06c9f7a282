package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"recording-transcription-service/internal/app"
	"recording-transcription-service/internal/observability"
	"recording-transcription-service/internal/observability/metrics"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, h *Handler) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(metrics.DefaultMetrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, r *http.Request) {
		if err := application.Ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/audio", h.UploadAudio)

		r.Route("/recordings", func(r chi.Router) {
			r.Post("/", h.CreateRecording)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRecording)
				r.Delete("/", h.DeleteRecording)
				r.Delete("/audio", h.DeleteAudio)
				r.Post("/process", h.ProcessRecording)
				r.Post("/retry", h.RetryRecording)
				r.Get("/transcripts", h.ListTranscripts)
			})
		})

		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Post("/chunks", h.AddChunk)
			r.Get("/chunks", h.ListChunks)
			r.Post("/finalize", h.FinalizeSession)
		})

		r.Get("/users/{userId}/sessions", h.ListParentSessions)
		r.Get("/transcripts/{id}", h.GetTranscript)
	})

	return r
}
