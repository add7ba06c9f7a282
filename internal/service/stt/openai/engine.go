// Package openai provides a Whisper speech engine backed by the OpenAI API.
package openai

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	goopenai "github.com/sashabaranov/go-openai"

	"recording-transcription-service/internal/errs"
	"recording-transcription-service/internal/service/stt"
)

const providerName = "openai"

// Config holds OpenAI engine configuration.
type Config struct {
	APIKey   string
	BaseURL  string // empty uses the public API
	Model    string
	Language string // default language hint, overridden per call
}

// DefaultConfig returns the default Whisper configuration.
func DefaultConfig() Config {
	return Config{
		Model: goopenai.Whisper1,
	}
}

// Engine implements stt.Engine with the OpenAI transcription endpoint.
type Engine struct {
	client *goopenai.Client
	cfg    Config
}

// New creates a new OpenAI engine.
func New(cfg Config) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &Engine{
		client: goopenai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

// Name returns the provider name.
func (e *Engine) Name() string {
	return providerName
}

// Transcribe requests verbose JSON with both word and segment timestamps.
func (e *Engine) Transcribe(ctx context.Context, audio io.Reader, opts stt.Options) (*stt.RawResult, error) {
	lang := opts.Language
	if lang == "" {
		lang = e.cfg.Language
	}
	filename := opts.Filename
	if filename == "" {
		// the endpoint infers the container format from the extension
		filename = "audio.webm"
	}

	resp, err := e.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    e.cfg.Model,
		FilePath: filename,
		Reader:   audio,
		Language: lang,
		Format:   goopenai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []goopenai.TranscriptionTimestampGranularity{
			goopenai.TranscriptionTimestampGranularityWord,
			goopenai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	res := &stt.RawResult{
		Kind:     stt.KindText,
		Text:     resp.Text,
		Duration: resp.Duration,
		Language: resp.Language,
	}

	switch {
	case len(resp.Segments) > 0:
		res.Kind = stt.KindSegments
		res.Segments = make([]stt.RawSegment, 0, len(resp.Segments))
		for _, s := range resp.Segments {
			res.Segments = append(res.Segments, stt.RawSegment{Start: s.Start, End: s.End, Text: s.Text})
		}
	case len(resp.Words) > 0:
		res.Kind = stt.KindWords
		res.Words = make([]stt.Word, 0, len(resp.Words))
		for _, w := range resp.Words {
			res.Words = append(res.Words, stt.Word{Word: w.Word, Start: w.Start, End: w.End})
		}
	}

	return res, nil
}

// classify maps an OpenAI client error onto the pipeline taxonomy.
func classify(err error) error {
	const op = "openai.transcribe"

	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	if status != 0 {
		return errs.New(kindForStatus(status), op, err)
	}
	if isNetworkError(err) {
		return errs.New(errs.KindTransient, op, err)
	}
	return errs.New(errs.KindEngine, op, err)
}

func kindForStatus(status int) errs.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.KindAuth
	case status == http.StatusTooManyRequests:
		return errs.KindRateLimit
	case status == http.StatusRequestTimeout || status >= 500:
		return errs.KindTransient
	default:
		return errs.KindEngine
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

var _ stt.Engine = (*Engine)(nil)
