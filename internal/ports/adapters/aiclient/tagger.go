package aiclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/clipforge/clipforge/internal/types"
)

const tagSystemPrompt = `You are an expert video content analyst specializing in marketing and advertising videos.
Classify the clip transcript into one of: hook, product_benefit, proof, testimonial, objection_handling, cta, b_roll, intro, outro, transition.

Position matters: clips in the first 15% of the video lean hook/intro, clips in the last 15% lean cta/outro.

Respond with JSON only:
{"primary_tag": "...", "confidence": 0.0-1.0, "all_tags": [{"tag": "...", "confidence": 0.0-1.0}], "reasoning": "..."}
Include up to 3 tags in all_tags, sorted by confidence.`

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// TagClip classifies one clip. Clips with no usable speech skip the API and
// become b_roll outright; malformed responses degrade to b_roll at low
// confidence instead of erroring the clip.
func (c *Client) TagClip(ctx context.Context, clip types.ClipContext) (types.TagResult, error) {
	if len(strings.TrimSpace(clip.Transcript)) < 10 {
		return types.TagResult{
			ClipID:            clip.ClipID,
			PrimaryTag:        types.TagBRoll,
			PrimaryConfidence: 0.9,
			AllTags:           []types.TagScore{{Tag: types.TagBRoll, Confidence: 0.9}},
			Reasoning:         "clip has no or minimal speech content",
		}, nil
	}

	model := c.TagModel
	if model == "" {
		model = defaultTagModel
	}
	payload := map[string]any{
		"model":       model,
		"temperature": 0.2,
		"messages": []map[string]any{
			{"role": "system", "content": tagSystemPrompt},
			{"role": "user", "content": buildTagPrompt(clip)},
		},
	}

	var resp chatResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", payload, &resp); err != nil {
		return types.TagResult{}, err
	}
	if len(resp.Choices) == 0 {
		return fallbackTagResult(clip.ClipID, "empty model response"), nil
	}
	return parseTagResponse(resp.Choices[0].Message.Content, clip.ClipID), nil
}

func buildTagPrompt(clip types.ClipContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Clip ID: %s\n", clip.ClipID)
	fmt.Fprintf(&b, "Duration: %.1f seconds\n", clip.Duration)
	fmt.Fprintf(&b, "Position in video: %.0f%%\n", clip.PositionInVideo*100)
	if clip.IsFirstClip {
		b.WriteString("Note: this is the FIRST clip in the video\n")
	}
	if clip.IsLastClip {
		b.WriteString("Note: this is the LAST clip in the video\n")
	}
	fmt.Fprintf(&b, "\nTranscript:\n%q\n", clip.Transcript)
	if clip.PreviousTranscript != "" {
		fmt.Fprintf(&b, "\nPrevious clip transcript:\n%q\n", truncate(clip.PreviousTranscript, 200))
	}
	if clip.NextTranscript != "" {
		fmt.Fprintf(&b, "\nNext clip transcript:\n%q\n", truncate(clip.NextTranscript, 200))
	}
	return b.String()
}

// parseTagResponse tolerates markdown fences and partially valid payloads;
// anything unusable becomes the b_roll fallback.
func parseTagResponse(content, clipID string) types.TagResult {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) > 2 {
			text = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	if !gjson.Valid(text) {
		return fallbackTagResult(clipID, "model returned invalid JSON")
	}

	rawPrimary := gjson.Get(text, "primary_tag").String()
	primary, known := types.ParseTag(rawPrimary)
	if rawPrimary == "" || !known {
		return fallbackTagResult(clipID, fmt.Sprintf("unknown primary tag %q", rawPrimary))
	}

	confidence := gjson.Get(text, "confidence").Float()
	if confidence <= 0 || confidence > 1 {
		confidence = 0.8
	}

	var all []types.TagScore
	gjson.Get(text, "all_tags").ForEach(func(_, item gjson.Result) bool {
		tag, ok := types.ParseTag(item.Get("tag").String())
		if !ok {
			return true
		}
		score := item.Get("confidence").Float()
		if score < 0 || score > 1 {
			score = 0.5
		}
		all = append(all, types.TagScore{Tag: tag, Confidence: score})
		return true
	})

	hasPrimary := false
	for _, t := range all {
		if t.Tag == primary {
			hasPrimary = true
			break
		}
	}
	if !hasPrimary {
		all = append([]types.TagScore{{Tag: primary, Confidence: confidence}}, all...)
	}

	return types.TagResult{
		ClipID:            clipID,
		PrimaryTag:        primary,
		PrimaryConfidence: confidence,
		AllTags:           all,
		Reasoning:         gjson.Get(text, "reasoning").String(),
	}
}

func fallbackTagResult(clipID, reason string) types.TagResult {
	return types.TagResult{
		ClipID:            clipID,
		PrimaryTag:        types.TagBRoll,
		PrimaryConfidence: 0.3,
		AllTags:           []types.TagScore{{Tag: types.TagBRoll, Confidence: 0.3}},
		Reasoning:         reason,
	}
}
