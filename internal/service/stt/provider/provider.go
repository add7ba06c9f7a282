// Package provider builds the configured speech engine.
package provider

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"recording-transcription-service/internal/config"
	"recording-transcription-service/internal/service/stt"
	"recording-transcription-service/internal/service/stt/google"
	"recording-transcription-service/internal/service/stt/mock"
	"recording-transcription-service/internal/service/stt/openai"
)

// Supported provider names.
const (
	Mock   = "mock"
	OpenAI = "openai"
	Google = "google"
)

// New returns the engine selected by cfg.Provider.
func New(ctx context.Context, cfg config.STTConfig) (stt.Engine, error) {
	switch cfg.Provider {
	case "", Mock:
		kind, err := parseResultKind(cfg.MockResultKind)
		if err != nil {
			return nil, err
		}
		log.Info().Str("resultKind", kind.String()).Msg("Using mock STT engine")
		return mock.New(mock.WithKind(kind)), nil

	case OpenAI:
		e, err := openai.New(openai.Config{
			APIKey:   cfg.OpenAIAPIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.OpenAIModel,
			Language: cfg.Language,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("model", cfg.OpenAIModel).Msg("Using OpenAI STT engine")
		return e, nil

	case Google:
		gcfg := google.DefaultConfig()
		if cfg.GoogleLanguageCode != "" {
			gcfg.LanguageCode = cfg.GoogleLanguageCode
		}
		if cfg.GoogleSampleRateHz > 0 {
			gcfg.SampleRateHz = int32(cfg.GoogleSampleRateHz)
		}
		if cfg.GoogleAudioEncoding != "" {
			gcfg.AudioEncoding = cfg.GoogleAudioEncoding
		}
		gcfg.CredentialsFile = cfg.GoogleCredentialsFile

		e, err := google.New(ctx, gcfg)
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("languageCode", gcfg.LanguageCode).
			Str("encoding", gcfg.AudioEncoding).
			Msg("Using Google STT engine")
		return e, nil

	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

func parseResultKind(s string) (stt.ResultKind, error) {
	switch s {
	case "", "segments":
		return stt.KindSegments, nil
	case "words":
		return stt.KindWords, nil
	case "text":
		return stt.KindText, nil
	default:
		return 0, fmt.Errorf("unknown mock result kind %q", s)
	}
}
