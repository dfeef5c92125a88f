package transcribe

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/clipforge/clipforge/internal/logger"
	"github.com/clipforge/clipforge/internal/types"
)

type fakeEncoder struct {
	audioSize int64
	duration  float64

	chunkStarts    []float64
	chunkDurations []float64
}

func (f *fakeEncoder) ExtractAudio(_ context.Context, _, outMP3 string) error {
	file, err := os.Create(outMP3)
	if err != nil {
		return err
	}
	defer file.Close()
	return file.Truncate(f.audioSize)
}

func (f *fakeEncoder) ExtractAudioChunk(_ context.Context, _ string, start, duration float64, outMP3 string) error {
	f.chunkStarts = append(f.chunkStarts, start)
	f.chunkDurations = append(f.chunkDurations, duration)
	return os.WriteFile(outMP3, []byte("chunk"), 0o644)
}

func (f *fakeEncoder) ProbeDuration(context.Context, string) (float64, error) {
	return f.duration, nil
}

func (f *fakeEncoder) CutClip(context.Context, string, float64, float64, string) error {
	return nil
}
func (f *fakeEncoder) Thumbnail(context.Context, string, float64, string) error { return nil }
func (f *fakeEncoder) DetectSilence(context.Context, string, float64, float64) ([]types.SilenceRegion, error) {
	return nil, nil
}
func (f *fakeEncoder) MeasureLoudness(context.Context, string) (types.AudioMetrics, error) {
	return types.NeutralAudioMetrics(), nil
}

type fakeSpeech struct {
	calls   int
	paths   []string
	failOn  map[int]bool
	results func(call int) types.Transcript
}

func (f *fakeSpeech) TranscribeFile(_ context.Context, audioPath, _ string) (types.Transcript, error) {
	call := f.calls
	f.calls++
	f.paths = append(f.paths, audioPath)
	if f.failOn[call] {
		return types.Transcript{}, fmt.Errorf("service unavailable")
	}
	return f.results(call), nil
}

func chunkTranscript(call int) types.Transcript {
	text := fmt.Sprintf("chunk %d", call)
	return types.Transcript{
		FullText: text,
		Language: "en",
		Segments: []types.Segment{{
			Text:  text,
			Start: 1.0,
			End:   5.0,
			Words: []types.Word{{Word: "chunk", Start: 1.0, End: 2.0}},
		}},
		Words: []types.Word{{Word: "chunk", Start: 1.0, End: 2.0}},
	}
}

func TestTranscribe_SmallAudioGoesDirect(t *testing.T) {
	enc := &fakeEncoder{audioSize: 1 << 20}
	speech := &fakeSpeech{results: chunkTranscript}
	svc := New(enc, speech, logger.Discard())

	got, err := svc.Transcribe(context.Background(), "video.mp4", t.TempDir(), "en")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if speech.calls != 1 {
		t.Fatalf("speech calls = %d, want 1", speech.calls)
	}
	if len(enc.chunkStarts) != 0 {
		t.Fatal("no chunks expected for small audio")
	}
	if got.FullText != "chunk 0" {
		t.Fatalf("full text = %q", got.FullText)
	}
}

func TestTranscribe_LargeAudioChunksAndShiftsTimestamps(t *testing.T) {
	enc := &fakeEncoder{audioSize: 30 << 20, duration: 1500}
	speech := &fakeSpeech{results: chunkTranscript}
	svc := New(enc, speech, logger.Discard())

	got, err := svc.Transcribe(context.Background(), "video.mp4", t.TempDir(), "en")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	wantStarts := []float64{0, 600, 1200}
	if len(enc.chunkStarts) != len(wantStarts) {
		t.Fatalf("chunk count = %d, want %d", len(enc.chunkStarts), len(wantStarts))
	}
	for i, want := range wantStarts {
		if enc.chunkStarts[i] != want {
			t.Errorf("chunk %d start = %v, want %v", i, enc.chunkStarts[i], want)
		}
	}
	if enc.chunkDurations[2] != 300 {
		t.Errorf("final chunk duration = %v, want 300", enc.chunkDurations[2])
	}

	if got.FullText != "chunk 0 chunk 1 chunk 2" {
		t.Fatalf("full text = %q", got.FullText)
	}
	if got.Duration != 1500 {
		t.Fatalf("duration = %v, want 1500", got.Duration)
	}
	if len(got.Segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(got.Segments))
	}
	if got.Segments[1].Start != 601.0 || got.Segments[1].End != 605.0 {
		t.Fatalf("segment 1 = [%v, %v], want [601, 605]", got.Segments[1].Start, got.Segments[1].End)
	}
	if got.Segments[2].Words[0].Start != 1201.0 {
		t.Fatalf("segment 2 word start = %v, want 1201", got.Segments[2].Words[0].Start)
	}
	if got.Words[1].Start != 601.0 {
		t.Fatalf("word 1 start = %v, want 601", got.Words[1].Start)
	}
}

func TestTranscribe_FailedChunkIsSkipped(t *testing.T) {
	enc := &fakeEncoder{audioSize: 30 << 20, duration: 1500}
	speech := &fakeSpeech{results: chunkTranscript, failOn: map[int]bool{1: true}}
	svc := New(enc, speech, logger.Discard())

	got, err := svc.Transcribe(context.Background(), "video.mp4", t.TempDir(), "en")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got.FullText != "chunk 0 chunk 2" {
		t.Fatalf("full text = %q", got.FullText)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(got.Segments))
	}
	if got.Segments[1].Start != 1201.0 {
		t.Fatalf("surviving chunk start = %v, want 1201", got.Segments[1].Start)
	}
}

func TestTranscribe_AllChunksFailedErrors(t *testing.T) {
	enc := &fakeEncoder{audioSize: 30 << 20, duration: 900}
	speech := &fakeSpeech{
		results: chunkTranscript,
		failOn:  map[int]bool{0: true, 1: true},
	}
	svc := New(enc, speech, logger.Discard())

	if _, err := svc.Transcribe(context.Background(), "video.mp4", t.TempDir(), "en"); err == nil {
		t.Fatal("expected error when every chunk fails")
	}
}
