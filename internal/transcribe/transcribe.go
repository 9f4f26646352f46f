// Package transcribe converts memo audio into transcripts.
package transcribe

import "context"

// Segment is one timed caption span of a transcript.
type Segment struct {
	Text     string  `json:"text"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// Result holds the full transcript plus timed segments suitable for
// rendering subtitles.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
}

// Transcriber turns an audio URI into a transcript. Implementations are safe
// for concurrent use.
type Transcriber interface {
	// TranscribeURI transcribes the audio object referenced by uri.
	TranscribeURI(ctx context.Context, uri string) (*Result, error)
	Close() error
}
