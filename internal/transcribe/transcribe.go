// Package transcribe layers size-aware chunking on top of the speech API,
// which rejects audio files above its upload ceiling.
package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/types"
)

const (
	// maxUploadBytes mirrors the speech service's hard request limit.
	maxUploadBytes = 25 << 20
	chunkSeconds   = 600.0
)

type Service struct {
	encoder ports.MediaEncoder
	speech  ports.SpeechAPI
	log     *logrus.Entry
}

func New(encoder ports.MediaEncoder, speech ports.SpeechAPI, log *logrus.Entry) *Service {
	return &Service{encoder: encoder, speech: speech, log: log}
}

// Transcribe extracts the audio track into workDir and transcribes it. Audio
// above the upload ceiling is split into fixed-length chunks whose timestamps
// are shifted back onto the source timeline before reassembly.
func (s *Service) Transcribe(ctx context.Context, videoPath, workDir, language string) (types.Transcript, error) {
	audioPath := filepath.Join(workDir, "audio.mp3")
	if err := s.encoder.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return types.Transcript{}, fmt.Errorf("extract audio: %w", err)
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("stat audio: %w", err)
	}
	if info.Size() <= maxUploadBytes {
		t, err := s.speech.TranscribeFile(ctx, audioPath, language)
		if err != nil {
			return types.Transcript{}, fmt.Errorf("transcribe audio: %w", err)
		}
		return t, nil
	}

	s.log.WithFields(logrus.Fields{
		"size_mb": info.Size() >> 20,
	}).Info("audio exceeds upload limit, transcribing in chunks")
	return s.transcribeChunked(ctx, audioPath, workDir, language)
}

func (s *Service) transcribeChunked(ctx context.Context, audioPath, workDir, language string) (types.Transcript, error) {
	duration, err := s.encoder.ProbeDuration(ctx, audioPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("probe audio duration: %w", err)
	}

	var (
		out       types.Transcript
		texts     []string
		succeeded int
	)
	for i, offset := 0, 0.0; offset < duration; i, offset = i+1, offset+chunkSeconds {
		chunkPath := filepath.Join(workDir, fmt.Sprintf("audio_chunk_%03d.mp3", i))
		chunkDur := chunkSeconds
		if offset+chunkDur > duration {
			chunkDur = duration - offset
		}

		if err := s.encoder.ExtractAudioChunk(ctx, audioPath, offset, chunkDur, chunkPath); err != nil {
			return types.Transcript{}, fmt.Errorf("extract audio chunk %d: %w", i, err)
		}

		chunk, err := s.speech.TranscribeFile(ctx, chunkPath, language)
		os.Remove(chunkPath)
		if err != nil {
			// A single bad chunk is not worth failing the whole job; the
			// transcript just has a hole in it.
			s.log.WithField("chunk", i).WithError(err).Warn("chunk transcription failed, skipping")
			continue
		}
		succeeded++

		if out.Language == "" {
			out.Language = chunk.Language
		}
		texts = append(texts, strings.TrimSpace(chunk.FullText))
		out.Segments = append(out.Segments, shiftSegments(chunk.Segments, offset)...)
		out.Words = append(out.Words, shiftWords(chunk.Words, offset)...)
	}

	if succeeded == 0 {
		return types.Transcript{}, fmt.Errorf("transcribe audio: all chunks failed")
	}
	out.FullText = strings.Join(texts, " ")
	out.Duration = duration
	return out, nil
}

func shiftSegments(segments []types.Segment, offset float64) []types.Segment {
	out := make([]types.Segment, len(segments))
	for i, seg := range segments {
		seg.Start += offset
		seg.End += offset
		seg.Words = shiftWords(seg.Words, offset)
		out[i] = seg
	}
	return out
}

func shiftWords(words []types.Word, offset float64) []types.Word {
	if len(words) == 0 {
		return nil
	}
	out := make([]types.Word, len(words))
	for i, w := range words {
		w.Start += offset
		w.End += offset
		out[i] = w
	}
	return out
}
