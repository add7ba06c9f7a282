// Package http exposes the recording session manager over a chi router.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"recording-transcription-service/internal/errs"
	"recording-transcription-service/internal/models"
	"recording-transcription-service/internal/service/recording"
	"recording-transcription-service/internal/storage"
)

// DefaultMaxUploadBytes caps a single uploaded artifact.
const DefaultMaxUploadBytes = 512 << 20

// RecordingService is the session manager as used by the API.
type RecordingService interface {
	CreateRecording(ctx context.Context, req recording.CreateRequest) (*models.Recording, error)
	AddChunk(ctx context.Context, parentSessionID string, req recording.ChunkRequest) (*models.Recording, error)
	Get(ctx context.Context, id string) (*models.Recording, error)
	Process(ctx context.Context, id string) (*models.Recording, error)
	Submit(ctx context.Context, id string) (*models.Recording, error)
	Retry(ctx context.Context, id string) (*models.Recording, error)
	SubmitRetry(ctx context.Context, id string) (*models.Recording, error)
	FinalizeSession(ctx context.Context, sessionID string) (*models.Recording, error)
	DeleteRecording(ctx context.Context, id string) error
	DeleteAudio(ctx context.Context, id string) (*models.Recording, error)
	ListParentSessions(ctx context.Context, userID string) ([]*models.Recording, error)
	ListChunks(ctx context.Context, parentSessionID string) ([]*models.Recording, error)
	GetTranscript(ctx context.Context, id string) (*models.Transcript, error)
	ListTranscripts(ctx context.Context, recordingID string) ([]*models.Transcript, error)
}

// AudioUploader stores uploaded artifacts.
type AudioUploader interface {
	Put(ctx context.Context, path, contentType string, r io.Reader) (int64, error)
}

// Handler serves the recording API.
type Handler struct {
	svc            RecordingService
	uploads        AudioUploader
	maxUploadBytes int64
}

// NewHandler creates the API handler.
func NewHandler(svc RecordingService, uploads AudioUploader) *Handler {
	return &Handler{svc: svc, uploads: uploads, maxUploadBytes: DefaultMaxUploadBytes}
}

// UploadAudio accepts a multipart "file" part plus a "channel" field and
// returns the stored artifact descriptor for use in create/chunk requests.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, err)
			return
		}
		writeError(w, errs.Newf(errs.KindValidation, "http.upload", "missing file part: %v", err))
		return
	}
	defer file.Close()

	ch := models.Channel(r.FormValue("channel"))
	if ch == "" {
		ch = models.ChannelInput
	}
	if !ch.Valid() {
		writeError(w, errs.Newf(errs.KindValidation, "http.upload", "unknown channel %q", ch))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	segmentIndex, _ := strconv.Atoi(r.FormValue("segmentIndex"))
	key := uuid.NewString() + "/" + string(ch) + strings.ToLower(path.Ext(header.Filename))

	n, err := h.uploads.Put(r.Context(), key, contentType, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.AudioFile{
		Path:         key,
		OriginalName: header.Filename,
		Size:         n,
		MimeType:     contentType,
		Channel:      ch,
		SegmentIndex: segmentIndex,
		UploadedAt:   time.Now().UTC(),
	})
}

func (h *Handler) CreateRecording(w http.ResponseWriter, r *http.Request) {
	var req recording.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.svc.CreateRecording(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) GetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) DeleteRecording(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRecording(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteAudio(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.DeleteAudio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ProcessRecording runs the pipeline inline, or on the worker pool with ?async=true.
func (h *Handler) ProcessRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if isAsync(r) {
		rec, err := h.svc.Submit(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, rec)
		return
	}
	rec, err := h.svc.Process(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RetryRecording reopens a failed recording, inline or with ?async=true.
func (h *Handler) RetryRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if isAsync(r) {
		rec, err := h.svc.SubmitRetry(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, rec)
		return
	}
	rec, err := h.svc.Retry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	ts, err := h.svc.ListTranscripts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (h *Handler) AddChunk(w http.ResponseWriter, r *http.Request) {
	var req recording.ChunkRequest
	if !decode(w, r, &req) {
		return
	}
	chunk, err := h.svc.AddChunk(r.Context(), chi.URLParam(r, "sessionId"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chunk)
}

func (h *Handler) ListChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.svc.ListChunks(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (h *Handler) FinalizeSession(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.FinalizeSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListParentSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListParentSessions(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTranscript(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func isAsync(r *http.Request) bool {
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return async
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, errs.Newf(errs.KindValidation, "http.decode", "invalid request body: %v", err))
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	resp := errorResponse{Error: err.Error()}
	if kind := errs.KindOf(err); kind != errs.KindUnknown {
		resp.Kind = kind.String()
	}
	writeJSON(w, code, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindFileNotFound:
		return http.StatusUnprocessableEntity
	case errs.KindRetryPrecondition:
		return http.StatusConflict
	case errs.KindRateLimit:
		return http.StatusTooManyRequests
	case errs.KindAuth, errs.KindEngine, errs.KindTransient, errs.KindReconciliation:
		return http.StatusBadGateway
	}

	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict),
		errors.Is(err, recording.ErrSessionExists),
		errors.Is(err, recording.ErrSessionIncomplete),
		errors.Is(err, recording.ErrSessionClosed),
		errors.Is(err, recording.ErrNoChunks),
		errors.Is(err, recording.ErrParentSession),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadyProcessing),
		errors.Is(err, models.ErrNotFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
