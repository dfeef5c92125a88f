package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge/internal/types"
)

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

// TranscribeFile sends one audio file to the transcription endpoint and
// returns the verbose result with segment and word timestamps. The file must
// already fit the service's size ceiling; chunking lives a layer up.
func (c *Client) TranscribeFile(ctx context.Context, audioPath, language string) (types.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	model := c.TranscribeModel
	if model == "" {
		model = defaultTranscribeModel
	}
	_ = w.WriteField("model", model)
	_ = w.WriteField("response_format", "verbose_json")
	_ = w.WriteField("timestamp_granularities[]", "word")
	_ = w.WriteField("timestamp_granularities[]", "segment")
	if language != "" {
		_ = w.WriteField("language", language)
	}

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return types.Transcript{}, fmt.Errorf("copy audio into request: %w", err)
	}
	if err := w.Close(); err != nil {
		return types.Transcript{}, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("call transcription: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.Transcript{}, fmt.Errorf("transcription returned status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return types.Transcript{}, fmt.Errorf("decode transcription response: %w", err)
	}
	return buildTranscript(tr, language), nil
}

func buildTranscript(tr transcriptionResponse, fallbackLanguage string) types.Transcript {
	words := make([]types.Word, 0, len(tr.Words))
	for _, w := range tr.Words {
		words = append(words, types.Word{
			Word:  strings.TrimSpace(w.Word),
			Start: w.Start,
			End:   w.End,
		})
	}

	segments := make([]types.Segment, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		seg := types.Segment{
			Text:  strings.TrimSpace(s.Text),
			Start: s.Start,
			End:   s.End,
		}
		for _, w := range words {
			if w.Start >= s.Start && w.End <= s.End {
				seg.Words = append(seg.Words, w)
			}
		}
		segments = append(segments, seg)
	}

	language := tr.Language
	if language == "" {
		language = fallbackLanguage
	}
	if language == "" {
		language = "en"
	}

	return types.Transcript{
		FullText: strings.TrimSpace(tr.Text),
		Language: language,
		Duration: tr.Duration,
		Segments: segments,
		Words:    words,
	}
}
