package types

import "time"

// Status values a job moves through, in order. Transitions are sequential and
// one-directional; any stage error jumps straight to StatusFailed.
type Status string

const (
	StatusPending         Status = "pending"
	StatusDownloading     Status = "downloading"
	StatusTranscribing    Status = "transcribing"
	StatusDetectingScenes Status = "detecting_scenes"
	StatusSplitting       Status = "splitting"
	StatusTagging         Status = "tagging"
	StatusUploading       Status = "uploading"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Tag is the closed content-category vocabulary for clips.
type Tag string

const (
	TagHook              Tag = "hook"
	TagProductBenefit    Tag = "product_benefit"
	TagProof             Tag = "proof"
	TagTestimonial       Tag = "testimonial"
	TagObjectionHandling Tag = "objection_handling"
	TagCTA               Tag = "cta"
	TagBRoll             Tag = "b_roll"
	TagIntro             Tag = "intro"
	TagOutro             Tag = "outro"
	TagTransition        Tag = "transition"
)

// ParseTag maps a raw string onto the closed vocabulary. Unknown values fall
// back to b_roll rather than erroring, so a misbehaving model response can
// never poison a clip.
func ParseTag(s string) (Tag, bool) {
	switch Tag(s) {
	case TagHook, TagProductBenefit, TagProof, TagTestimonial,
		TagObjectionHandling, TagCTA, TagBRoll, TagIntro, TagOutro, TagTransition:
		return Tag(s), true
	}
	return TagBRoll, false
}

type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words,omitempty"`
}

type Transcript struct {
	FullText string    `json:"full_text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
	Words    []Word    `json:"words"`
}

// SceneBoundary is one visual cut detected in the source video. Immutable
// input to the segmenter.
type SceneBoundary struct {
	Start      float64 `json:"start_time"`
	End        float64 `json:"end_time"`
	StartFrame int     `json:"start_frame"`
	EndFrame   int     `json:"end_frame"`
	Duration   float64 `json:"duration"`
}

// ClipDefinition is a planned cut. IDs are stable across runs:
// <source_id>_clip_<4-digit ordinal>.
type ClipDefinition struct {
	ClipID       string  `json:"clip_id"`
	Start        float64 `json:"start_time"`
	End          float64 `json:"end_time"`
	Transcript   string  `json:"transcript"`
	SceneIndices []int   `json:"scene_indices,omitempty"`
}

// ClipResult is a definition realised on disk. Local files live only for the
// duration of the job temp directory.
type ClipResult struct {
	ClipID        string  `json:"clip_id"`
	Start         float64 `json:"start_time"`
	End           float64 `json:"end_time"`
	Duration      float64 `json:"duration"`
	VideoPath     string  `json:"video_path"`
	ThumbnailPath string  `json:"thumbnail_path"`
	SubtitlePath  string  `json:"subtitle_path,omitempty"`
	Transcript    string  `json:"transcript"`
	SceneIndices  []int   `json:"scene_indices,omitempty"`
}

type TagScore struct {
	Tag        Tag     `json:"tag"`
	Confidence float64 `json:"confidence"`
}

type TagResult struct {
	ClipID            string     `json:"clip_id"`
	PrimaryTag        Tag        `json:"primary_tag"`
	PrimaryConfidence float64    `json:"primary_confidence"`
	AllTags           []TagScore `json:"all_tags"`
	Reasoning         string     `json:"reasoning"`
}

// ClipContext is the positional context handed to the tagger alongside the
// transcript.
type ClipContext struct {
	ClipID             string
	Transcript         string
	Duration           float64
	PositionInVideo    float64 // 0.0 .. 1.0
	IsFirstClip        bool
	IsLastClip         bool
	PreviousTranscript string
	NextTranscript     string
}

type ClipEmbedding struct {
	ClipID    string    `json:"clip_id"`
	Vector    []float64 `json:"vector"`
	ModelName string    `json:"model_name"`
}

// SimilarityPair is undirected; ids are stored in caller order.
type SimilarityPair struct {
	ClipID1    string  `json:"clip_id_1"`
	ClipID2    string  `json:"clip_id_2"`
	Similarity float64 `json:"similarity"`
	StartTime1 float64 `json:"start_time_1"`
	StartTime2 float64 `json:"start_time_2"`
}

type GroupType string

const (
	GroupDuplicate     GroupType = "duplicate"
	GroupMultipleTakes GroupType = "multiple_takes"
	GroupSameTopic     GroupType = "same_topic"
)

// ClipGroup is one connected component of the similarity graph for a single
// group type. Never mutated after creation.
type ClipGroup struct {
	GroupID              string             `json:"group_id"`
	Type                 GroupType          `json:"group_type"`
	ClipIDs              []string           `json:"clip_ids"`
	RepresentativeClipID string             `json:"representative_clip_id"`
	SimilarityScores     map[string]float64 `json:"similarity_scores"`
}

type SilenceRegion struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

type FillerWord struct {
	Word     string  `json:"word"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	IsPhrase bool    `json:"is_phrase"`
}

type HesitationKind string

const (
	HesitationPause      HesitationKind = "pause"
	HesitationRepetition HesitationKind = "repetition"
	HesitationFalseStart HesitationKind = "false_start"
)

type Hesitation struct {
	Start    float64        `json:"start"`
	End      float64        `json:"end"`
	Duration float64        `json:"duration"`
	Kind     HesitationKind `json:"type"`
}

// ErrorAnalysis is the per-clip speech-error report. All timestamps are
// clip-relative.
type ErrorAnalysis struct {
	ClipID             string          `json:"clip_id"`
	SilenceRegions     []SilenceRegion `json:"silence_regions"`
	FillerWords        []FillerWord    `json:"filler_words"`
	Hesitations        []Hesitation    `json:"hesitations"`
	SuggestedTrimStart float64         `json:"suggested_trim_start"`
	SuggestedTrimEnd   float64         `json:"suggested_trim_end"`
}

func (e ErrorAnalysis) TotalFillerWords() int { return len(e.FillerWords) }
func (e ErrorAnalysis) TotalHesitations() int { return len(e.Hesitations) }

func (e ErrorAnalysis) TotalSilenceTime() float64 {
	var total float64
	for _, s := range e.SilenceRegions {
		total += s.Duration
	}
	return total
}

type SpeakingMetrics struct {
	WordsPerMinute         float64 `json:"words_per_minute"`
	FillerWordRate         float64 `json:"filler_word_rate"`
	HesitationRate         float64 `json:"hesitation_rate"`
	SentenceCompletionRate float64 `json:"sentence_completion_rate"`
}

type AudioMetrics struct {
	LoudnessLUFS     float64 `json:"loudness_lufs"`
	LoudnessRange    float64 `json:"loudness_range"`
	TruePeakDB       float64 `json:"true_peak_db"`
	NoiseFloorDB     float64 `json:"noise_floor_db"`
	ClippingDetected bool    `json:"clipping_detected"`
}

// NeutralAudioMetrics is the substitute used when loudness measurement fails;
// the clip keeps a rating instead of failing.
func NeutralAudioMetrics() AudioMetrics {
	return AudioMetrics{
		LoudnessLUFS:  -16.0,
		LoudnessRange: 5.0,
		TruePeakDB:    -1.0,
		NoiseFloorDB:  -60.0,
	}
}

type QualityRating struct {
	ClipID          string          `json:"clip_id"`
	SpeakingScore   float64         `json:"speaking_quality_score"`
	AudioScore      float64         `json:"audio_quality_score"`
	OverallScore    float64         `json:"overall_quality_score"`
	WordsPerMinute  float64         `json:"words_per_minute"`
	FillerWordCount int             `json:"filler_word_count"`
	HesitationCount int             `json:"hesitation_count"`
	TrimStart       float64         `json:"trimmed_start_seconds"`
	TrimEnd         float64         `json:"trimmed_end_seconds"`
	SpeakingMetrics SpeakingMetrics `json:"speaking_metrics"`
	AudioMetrics    AudioMetrics    `json:"audio_metrics"`
}

// ProcessedClip is the externally visible record for one finished clip.
type ProcessedClip struct {
	ClipID        string         `json:"clip_id"`
	SourceID      string         `json:"source_id"`
	Start         float64        `json:"start_time"`
	End           float64        `json:"end_time"`
	Duration      float64        `json:"duration"`
	Transcript    string         `json:"transcript"`
	VideoKey      string         `json:"video_key"`
	VideoURL      string         `json:"video_url"`
	ThumbnailKey  string         `json:"thumbnail_key"`
	ThumbnailURL  string         `json:"thumbnail_url"`
	PrimaryTag    Tag            `json:"primary_tag"`
	Tags          []TagScore     `json:"tags"`
	Quality       *QualityRating `json:"quality_rating,omitempty"`
	ErrorAnalysis *ErrorAnalysis `json:"error_analysis,omitempty"`
	Embedding     []float64      `json:"embedding,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Job is ephemeral orchestration state; it lives in the in-process registry
// only.
type Job struct {
	JobID       string     `json:"job_id"`
	SourceID    string     `json:"source_id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// PipelineResult is the aggregate returned by a successful run.
type PipelineResult struct {
	JobID          string          `json:"job_id"`
	SourceID       string          `json:"source_id"`
	Status         Status          `json:"status"`
	TotalDuration  float64         `json:"total_duration"`
	Clips          []ProcessedClip `json:"clips"`
	Groups         []ClipGroup     `json:"clip_groups"`
	ProcessingTime float64         `json:"processing_time_seconds"`
}
