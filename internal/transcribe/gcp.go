package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Defaults for GCP transcription. Long-running recognition on a typical
// voice memo takes seconds to a few minutes.
const (
	DefaultLanguageCode = "en-US"
	DefaultTimeout      = 10 * time.Minute
	DefaultMaxRetries   = 4

	// segmentWindowSec groups word time offsets into caption spans.
	segmentWindowSec = 10.0
)

// Opts holds configuration options for the GCP transcriber.
type Opts struct {
	LanguageCode string
	Timeout      time.Duration
	MaxRetries   int
}

// Option defines a configuration option for the GCP transcriber.
type Option func(*Opts)

// WithLanguageCode overrides the default recognition language.
func WithLanguageCode(code string) Option {
	return func(o *Opts) { o.LanguageCode = code }
}

// WithTimeout overrides the default per-memo timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// GCPTranscriber transcribes audio stored in GCS via the Cloud Speech API.
type GCPTranscriber struct {
	client       *speech.Client
	languageCode string
	timeout      time.Duration
	maxRetries   int
}

var _ Transcriber = (*GCPTranscriber)(nil)

// NewGCPTranscriber creates a transcriber backed by Cloud Speech. Credentials
// come from the ambient GOOGLE_APPLICATION_CREDENTIALS environment.
func NewGCPTranscriber(ctx context.Context, opts ...Option) (*GCPTranscriber, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultLanguageCode
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	slog.Debug("transcribe.NewGCPTranscriber: client initialized", "language", cfg.LanguageCode, "timeout", cfg.Timeout)
	return &GCPTranscriber{
		client:       client,
		languageCode: cfg.LanguageCode,
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
	}, nil
}

// Close closes the underlying speech client.
func (t *GCPTranscriber) Close() error {
	return t.client.Close()
}

// TranscribeURI transcribes a gs:// audio object with word time offsets and
// automatic punctuation.
func (t *GCPTranscriber) TranscribeURI(ctx context.Context, uri string) (*Result, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return nil, fmt.Errorf("audio URI must be gs://..., got %q", uri)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               t.languageCode,
			Encoding:                   inferEncoding(uri),
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: uri},
		},
	}

	var resp *speechpb.LongRunningRecognizeResponse
	var err error
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			slog.Warn("GCPTranscriber.TranscribeURI: retrying", "uri", uri, "attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		resp, err = t.recognize(ctx, req)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("speech recognition failed: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("speech recognition failed after %d attempts: %w", t.maxRetries, err)
	}

	result := parseResponse(resp)
	slog.Debug("GCPTranscriber.TranscribeURI: transcription complete", "uri", uri, "chars", len(result.Text), "segments", len(result.Segments))
	return result, nil
}

func (t *GCPTranscriber) recognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	op, err := t.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

// isRetryable reports whether a speech API error is transient.
func isRetryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	}
	return false
}

// inferEncoding guesses the audio encoding from the URI's file extension.
// Unknown extensions are left unspecified, which lets the API sniff headered
// formats like WAV and FLAC itself.
func inferEncoding(uri string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(uri)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

type timedWord struct {
	word  string
	start float64
	end   float64
}

func parseResponse(resp *speechpb.LongRunningRecognizeResponse) *Result {
	out := &Result{}
	if resp == nil || len(resp.Results) == 0 {
		return out
	}

	var full strings.Builder
	var words []timedWord
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(text)
		for _, w := range alt.Words {
			if w == nil {
				continue
			}
			words = append(words, timedWord{
				word:  w.Word,
				start: durToSec(w.StartTime),
				end:   durToSec(w.EndTime),
			})
		}
	}

	out.Text = full.String()
	if len(words) > 0 {
		out.Segments = groupByTime(words, segmentWindowSec)
	} else if out.Text != "" {
		out.Segments = []Segment{{Text: out.Text}}
	}
	return out
}

// groupByTime buckets word offsets into caption segments no longer than
// windowSec each.
func groupByTime(words []timedWord, windowSec float64) []Segment {
	if len(words) == 0 {
		return nil
	}

	var segs []Segment
	var buf strings.Builder
	start := words[0].start
	end := words[0].end

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			segs = append(segs, Segment{Text: text, StartSec: start, EndSec: end})
		}
		buf.Reset()
	}

	for _, w := range words {
		if w.end-start > windowSec && buf.Len() > 0 {
			flush()
			start = w.start
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(w.word)
		end = w.end
	}
	flush()
	return segs
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
