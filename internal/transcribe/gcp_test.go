package transcribe

import (
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/protobuf/types/known/durationpb"
)

func TestInferEncoding(t *testing.T) {
	cases := map[string]speechpb.RecognitionConfig_AudioEncoding{
		"gs://bucket/memo.wav":  speechpb.RecognitionConfig_LINEAR16,
		"gs://bucket/memo.flac": speechpb.RecognitionConfig_FLAC,
		"gs://bucket/memo.mp3":  speechpb.RecognitionConfig_MP3,
		"gs://bucket/memo.ogg":  speechpb.RecognitionConfig_OGG_OPUS,
		"gs://bucket/memo.OPUS": speechpb.RecognitionConfig_OGG_OPUS,
		"gs://bucket/memo.m4a":  speechpb.RecognitionConfig_ENCODING_UNSPECIFIED,
	}
	for uri, want := range cases {
		if got := inferEncoding(uri); got != want {
			t.Errorf("inferEncoding(%q) = %v, want %v", uri, got, want)
		}
	}
}

func secs(s float64) *durationpb.Duration {
	return durationpb.New(time.Duration(s * float64(time.Second)))
}

func TestGroupByTime(t *testing.T) {
	words := []timedWord{
		{word: "hello", start: 0, end: 1},
		{word: "world", start: 1, end: 2},
		{word: "again", start: 11, end: 12},
		{word: "later", start: 12, end: 13},
	}
	segs := groupByTime(words, 10.0)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].Text != "hello world" || segs[0].StartSec != 0 || segs[0].EndSec != 2 {
		t.Errorf("unexpected first segment: %+v", segs[0])
	}
	if segs[1].Text != "again later" || segs[1].StartSec != 11 || segs[1].EndSec != 13 {
		t.Errorf("unexpected second segment: %+v", segs[1])
	}
}

func TestParseResponse(t *testing.T) {
	resp := &speechpb.LongRunningRecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			{
				Alternatives: []*speechpb.SpeechRecognitionAlternative{
					{
						Transcript: "Tell Maria about the gala.",
						Words: []*speechpb.WordInfo{
							{Word: "Tell", StartTime: secs(0), EndTime: secs(0.5)},
							{Word: "Maria", StartTime: secs(0.5), EndTime: secs(1)},
						},
					},
				},
			},
			{
				Alternatives: []*speechpb.SpeechRecognitionAlternative{
					{Transcript: "Budget looks fine."},
				},
			},
		},
	}
	got := parseResponse(resp)
	if got.Text != "Tell Maria about the gala. Budget looks fine." {
		t.Errorf("unexpected transcript: %q", got.Text)
	}
	if len(got.Segments) == 0 {
		t.Fatal("expected segments")
	}
	if got.Segments[0].Text != "Tell Maria" {
		t.Errorf("unexpected first segment: %+v", got.Segments[0])
	}
}

func TestParseResponse_Empty(t *testing.T) {
	got := parseResponse(nil)
	if got.Text != "" || len(got.Segments) != 0 {
		t.Errorf("expected empty result, got %+v", got)
	}
}
