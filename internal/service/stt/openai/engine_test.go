package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"recording-transcription-service/internal/errs"
	"recording-transcription-service/internal/service/stt"
)

func newTestEngine(t *testing.T, handler http.HandlerFunc) *Engine {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e, err := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without api key")
	}
}

func TestDefaultConfig(t *testing.T) {
	if DefaultConfig().Model != "whisper-1" {
		t.Errorf("expected whisper-1, got %s", DefaultConfig().Model)
	}
}

func TestTranscribe_Segments(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("expected verbose_json, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"task":"transcribe","language":"english","duration":4.2,"text":"Hello there. How are you?",
			"segments":[{"id":0,"start":0,"end":1.5,"text":" Hello there."},{"id":1,"start":1.6,"end":4.2,"text":" How are you?"}],
			"words":[{"word":"Hello","start":0,"end":0.5}]}`)
	})

	res, err := e.Transcribe(context.Background(), strings.NewReader("audio"), stt.Options{Filename: "mic.webm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != stt.KindSegments {
		t.Errorf("expected segments kind, got %s", res.Kind)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	if res.Segments[1].Start != 1.6 || res.Segments[1].End != 4.2 {
		t.Errorf("unexpected segment timing: %+v", res.Segments[1])
	}
	if res.Duration != 4.2 || res.Language != "english" {
		t.Errorf("unexpected duration/language: %v %s", res.Duration, res.Language)
	}
}

func TestTranscribe_WordsOnly(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"hi you","words":[{"word":"hi","start":0,"end":0.3},{"word":"you","start":0.4,"end":0.7}]}`)
	})

	res, err := e.Transcribe(context.Background(), strings.NewReader("audio"), stt.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != stt.KindWords || len(res.Words) != 2 {
		t.Errorf("expected 2 words, got kind %s %+v", res.Kind, res.Words)
	}
}

func TestTranscribe_TextOnly(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"just text"}`)
	})

	res, err := e.Transcribe(context.Background(), strings.NewReader("audio"), stt.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != stt.KindText || res.Text != "just text" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestTranscribe_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   errs.Kind
	}{
		{http.StatusUnauthorized, errs.KindAuth},
		{http.StatusForbidden, errs.KindAuth},
		{http.StatusTooManyRequests, errs.KindRateLimit},
		{http.StatusInternalServerError, errs.KindTransient},
		{http.StatusBadGateway, errs.KindTransient},
		{http.StatusBadRequest, errs.KindEngine},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope","type":"invalid_request_error"}}`)
			})

			_, err := e.Transcribe(context.Background(), strings.NewReader("audio"), stt.Options{})
			if !errs.Is(err, tt.kind) {
				t.Errorf("status %d: expected %s, got %v (%s)", tt.status, tt.kind, err, errs.KindOf(err))
			}
		})
	}
}

func TestClassify_NetworkErrors(t *testing.T) {
	if !errs.Is(classify(context.DeadlineExceeded), errs.KindTransient) {
		t.Error("deadline exceeded should be transient")
	}
	if !errs.Is(classify(errors.New("bad multipart")), errs.KindEngine) {
		t.Error("unknown errors should be engine errors")
	}
}

func TestTranscribe_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e, _ := New(Config{APIKey: "k", BaseURL: url})
	_, err := e.Transcribe(context.Background(), strings.NewReader("audio"), stt.Options{})
	if !errs.Is(err, errs.KindTransient) {
		t.Errorf("expected transient for closed server, got %v", err)
	}
}
