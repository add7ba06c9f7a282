// Package google provides a Google Cloud Speech-to-Text engine.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"recording-transcription-service/internal/errs"
	"recording-transcription-service/internal/service/stt"
)

const providerName = "google"

// Config holds Google STT configuration.
type Config struct {
	LanguageCode    string // e.g., "en-US"
	SampleRateHz    int32  // 0 lets the service read it from the header
	AudioEncoding   string // e.g., "LINEAR16", "WEBM_OPUS"
	CredentialsFile string // empty uses application default credentials
	Punctuation     bool
}

// DefaultConfig returns default configuration for browser-captured audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  48000,
		AudioEncoding: "WEBM_OPUS",
		Punctuation:   true,
	}
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Engine implements stt.Engine using synchronous Recognize with word offsets.
type Engine struct {
	recognize recognizeFunc
	closer    io.Closer
	cfg       Config
}

// New creates a new Google STT engine.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	return &Engine{
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return c.Recognize(ctx, req)
		},
		closer: c,
		cfg:    cfg,
	}, nil
}

// Name returns the provider name.
func (e *Engine) Name() string {
	return providerName
}

// Close releases the underlying gRPC connection.
func (e *Engine) Close() error {
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}

// Transcribe sends the whole artifact to Recognize and returns word timings
// when the service provides them.
func (e *Engine) Transcribe(ctx context.Context, audio io.Reader, opts stt.Options) (*stt.RawResult, error) {
	content, err := io.ReadAll(audio)
	if err != nil {
		return nil, errs.New(errs.KindTransient, "google.read", err)
	}

	lang := e.cfg.LanguageCode
	if opts.Language != "" {
		lang = opts.Language
	}

	resp, err := e.recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(e.cfg.AudioEncoding),
			SampleRateHertz:            e.cfg.SampleRateHz,
			LanguageCode:               lang,
			EnableWordTimeOffsets:      true,
			EnableAutomaticPunctuation: e.cfg.Punctuation,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	return toRawResult(resp, lang), nil
}

func toRawResult(resp *speechpb.RecognizeResponse, lang string) *stt.RawResult {
	res := &stt.RawResult{Kind: stt.KindText, Language: lang}

	var texts []string
	for _, r := range resp.GetResults() {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			texts = append(texts, t)
		}
		for _, w := range alt.Words {
			res.Words = append(res.Words, stt.Word{
				Word:  w.Word,
				Start: w.GetStartTime().AsDuration().Seconds(),
				End:   w.GetEndTime().AsDuration().Seconds(),
			})
		}
		if r.LanguageCode != "" {
			res.Language = r.LanguageCode
		}
	}
	res.Text = strings.Join(texts, " ")

	if len(res.Words) > 0 {
		res.Kind = stt.KindWords
		res.Duration = res.Words[len(res.Words)-1].End
	}
	return res
}

// classify maps a gRPC status onto the pipeline taxonomy.
func classify(err error) error {
	const op = "google.recognize"

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.New(errs.KindTransient, op, err)
	}

	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return errs.New(errs.KindAuth, op, err)
	case codes.ResourceExhausted:
		return errs.New(errs.KindRateLimit, op, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return errs.New(errs.KindTransient, op, err)
	default:
		return errs.New(errs.KindEngine, op, err)
	}
}

// parseAudioEncoding converts a string encoding name to the protobuf enum.
// Falls back to LINEAR16 for unknown names.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case "MP3":
		return speechpb.RecognitionConfig_MP3
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

var _ stt.Engine = (*Engine)(nil)
