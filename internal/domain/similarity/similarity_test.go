package similarity

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/logger"
	"github.com/clipforge/clipforge/internal/retry"
	"github.com/clipforge/clipforge/internal/types"
)

type fakeEmbedder struct {
	batchLimit int
	calls      [][]string
	failCalls  map[int]bool
	vectors    map[string][]float64
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float64, error) {
	call := len(f.calls)
	f.calls = append(f.calls, texts)
	if f.failCalls[call] {
		return nil, fmt.Errorf("rate limited")
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = []float64{1, 0, 0}
		}
	}
	return out, nil
}

func (f *fakeEmbedder) BatchLimit() int {
	if f.batchLimit > 0 {
		return f.batchLimit
	}
	return 100
}

func (f *fakeEmbedder) ModelName() string { return "text-embedding-3-small" }

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func testGrouper(embedder *fakeEmbedder) *Grouper {
	g := New(embedder, logger.Discard())
	g.RetryPolicy = fastRetry()
	seq := 0
	g.NewGroupID = func() string {
		seq++
		return fmt.Sprintf("group-%d", seq)
	}
	return g
}

func TestCosine(t *testing.T) {
	t.Parallel()

	if got := Cosine([]float64{1, 2, 3}, []float64{1, 2, 3}); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical vectors = %v, want 1.0", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{0, 1}); got != 0.0 {
		t.Errorf("orthogonal vectors = %v, want 0.0", got)
	}
	if got := Cosine([]float64{0, 0}, []float64{1, 1}); got != 0.0 {
		t.Errorf("zero vector = %v, want 0.0", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	g := testGrouper(&fakeEmbedder{})
	tests := []struct {
		name string
		pair types.SimilarityPair
		want types.GroupType
	}{
		{
			name: "duplicate wins at top threshold",
			pair: types.SimilarityPair{ClipID1: "vidA_clip_0000", ClipID2: "vidA_clip_0003", Similarity: 0.97},
			want: types.GroupDuplicate,
		},
		{
			name: "multiple takes needs same source and proximity",
			pair: types.SimilarityPair{ClipID1: "vidA_clip_0000", ClipID2: "vidA_clip_0002", Similarity: 0.88, StartTime1: 10, StartTime2: 40},
			want: types.GroupMultipleTakes,
		},
		{
			name: "same source but far apart degrades to same topic",
			pair: types.SimilarityPair{ClipID1: "vidA_clip_0000", ClipID2: "vidA_clip_0009", Similarity: 0.88, StartTime1: 0, StartTime2: 300},
			want: types.GroupSameTopic,
		},
		{
			name: "cross source near in time is still same topic",
			pair: types.SimilarityPair{ClipID1: "vidA_clip_0000", ClipID2: "vidB_clip_0000", Similarity: 0.80, StartTime1: 0, StartTime2: 5},
			want: types.GroupSameTopic,
		},
		{
			name: "below floor yields nothing",
			pair: types.SimilarityPair{ClipID1: "vidA_clip_0000", ClipID2: "vidA_clip_0001", Similarity: 0.70},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Classify(tt.pair); got != tt.want {
				t.Fatalf("classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildGroups_TriangleIsOneDuplicateGroup(t *testing.T) {
	t.Parallel()

	pairs := []types.SimilarityPair{
		{ClipID1: "vid_clip_0000", ClipID2: "vid_clip_0001", Similarity: 0.97},
		{ClipID1: "vid_clip_0001", ClipID2: "vid_clip_0002", Similarity: 0.97},
		{ClipID1: "vid_clip_0000", ClipID2: "vid_clip_0002", Similarity: 0.97},
	}

	permutations := [][]types.SimilarityPair{
		{pairs[0], pairs[1], pairs[2]},
		{pairs[2], pairs[0], pairs[1]},
		{pairs[1], pairs[2], pairs[0]},
	}

	for i, perm := range permutations {
		g := testGrouper(&fakeEmbedder{})
		groups := g.BuildGroups(perm)

		if len(groups) != 1 {
			t.Fatalf("permutation %d: groups = %d, want 1", i, len(groups))
		}
		grp := groups[0]
		if grp.Type != types.GroupDuplicate {
			t.Errorf("permutation %d: type = %s", i, grp.Type)
		}
		if len(grp.ClipIDs) != 3 {
			t.Errorf("permutation %d: members = %v", i, grp.ClipIDs)
		}
		if grp.RepresentativeClipID != "vid_clip_0000" {
			t.Errorf("permutation %d: representative = %s, want vid_clip_0000", i, grp.RepresentativeClipID)
		}
		if grp.SimilarityScores["vid_clip_0001"] != 0.97 || grp.SimilarityScores["vid_clip_0002"] != 0.97 {
			t.Errorf("permutation %d: scores = %v", i, grp.SimilarityScores)
		}
	}
}

func TestBuildGroups_TransitiveMemberScoresZero(t *testing.T) {
	t.Parallel()

	g := testGrouper(&fakeEmbedder{})
	groups := g.BuildGroups([]types.SimilarityPair{
		{ClipID1: "vid_clip_0000", ClipID2: "vid_clip_0001", Similarity: 0.96},
		{ClipID1: "vid_clip_0001", ClipID2: "vid_clip_0002", Similarity: 0.96},
	})

	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	grp := groups[0]
	if grp.RepresentativeClipID != "vid_clip_0000" {
		t.Fatalf("representative = %s", grp.RepresentativeClipID)
	}
	if grp.SimilarityScores["vid_clip_0001"] != 0.96 {
		t.Errorf("direct edge score = %v, want 0.96", grp.SimilarityScores["vid_clip_0001"])
	}
	if grp.SimilarityScores["vid_clip_0002"] != 0.0 {
		t.Errorf("transitive member score = %v, want 0.0", grp.SimilarityScores["vid_clip_0002"])
	}
}

func TestBuildGroups_SingletonDiscardedAndTypesSeparate(t *testing.T) {
	t.Parallel()

	g := testGrouper(&fakeEmbedder{})
	groups := g.BuildGroups([]types.SimilarityPair{
		{ClipID1: "vidA_clip_0000", ClipID2: "vidA_clip_0001", Similarity: 0.97},
		{ClipID1: "vidA_clip_0002", ClipID2: "vidB_clip_0000", Similarity: 0.78},
	})

	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].Type != types.GroupDuplicate || groups[1].Type != types.GroupSameTopic {
		t.Fatalf("types = %s, %s", groups[0].Type, groups[1].Type)
	}
}

func TestEmbedClips_BatchesAndSkipsEmptyTranscripts(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{batchLimit: 2}
	g := testGrouper(embedder)

	clips := []types.ClipResult{
		{ClipID: "vid_clip_0000", Transcript: "alpha"},
		{ClipID: "vid_clip_0001", Transcript: "  "},
		{ClipID: "vid_clip_0002", Transcript: "bravo"},
		{ClipID: "vid_clip_0003", Transcript: "charlie"},
	}
	got, err := g.EmbedClips(context.Background(), clips)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("embeddings = %d, want 3 (blank transcript skipped)", len(got))
	}
	if len(embedder.calls) != 2 {
		t.Fatalf("batches = %d, want 2", len(embedder.calls))
	}
	if len(embedder.calls[0]) != 2 || len(embedder.calls[1]) != 1 {
		t.Fatalf("batch sizes = %d, %d", len(embedder.calls[0]), len(embedder.calls[1]))
	}
	if got[0].ClipID != "vid_clip_0000" || got[0].ModelName != "text-embedding-3-small" {
		t.Fatalf("first embedding = %+v", got[0])
	}
}

func TestEmbedClips_RetriesTransientFailure(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{failCalls: map[int]bool{0: true}}
	g := testGrouper(embedder)

	got, err := g.EmbedClips(context.Background(), []types.ClipResult{
		{ClipID: "vid_clip_0000", Transcript: "alpha"},
	})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("embeddings = %d, want 1", len(got))
	}
	if len(embedder.calls) != 2 {
		t.Fatalf("calls = %d, want 2 (one failure, one retry)", len(embedder.calls))
	}
}

func TestFindGroups_EndToEnd(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"buy our product today": {1, 0, 0},
		"buy our product now":   {0.999, 0.04, 0},
		"the weather is nice":   {0, 1, 0},
	}}
	g := testGrouper(embedder)

	clips := []types.ClipResult{
		{ClipID: "vid_clip_0000", Start: 0, Transcript: "buy our product today"},
		{ClipID: "vid_clip_0001", Start: 30, Transcript: "buy our product now"},
		{ClipID: "vid_clip_0002", Start: 60, Transcript: "the weather is nice"},
	}

	groups, embeddings, err := g.FindGroups(context.Background(), clips)
	if err != nil {
		t.Fatalf("find groups: %v", err)
	}
	if len(embeddings) != 3 {
		t.Fatalf("embeddings = %d, want 3", len(embeddings))
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	if groups[0].Type != types.GroupDuplicate {
		t.Fatalf("type = %s, want duplicate", groups[0].Type)
	}
	if len(groups[0].ClipIDs) != 2 {
		t.Fatalf("members = %v", groups[0].ClipIDs)
	}
}
