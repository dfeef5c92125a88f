// Package similarity groups near-identical clips by embedding their
// transcripts and running connected components over the similarity graph.
package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clipforge/clipforge/internal/ports"
	"github.com/clipforge/clipforge/internal/retry"
	"github.com/clipforge/clipforge/internal/types"
)

const (
	duplicateThreshold     = 0.95
	multipleTakesThreshold = 0.85
	sameTopicThreshold     = 0.75

	// Clips starting within this window of each other can be retakes.
	multipleTakesTimeWindow = 120.0
)

type Grouper struct {
	embedder ports.Embedder
	log      *logrus.Entry

	DuplicateThreshold float64
	TakesThreshold     float64
	TopicThreshold     float64
	RetryPolicy        retry.Policy
	NewGroupID         func() string
}

func New(embedder ports.Embedder, log *logrus.Entry) *Grouper {
	return &Grouper{
		embedder:           embedder,
		log:                log,
		DuplicateThreshold: duplicateThreshold,
		TakesThreshold:     multipleTakesThreshold,
		TopicThreshold:     sameTopicThreshold,
		RetryPolicy:        retry.Default(),
		NewGroupID:         uuid.NewString,
	}
}

// EmbedClips embeds every clip with a non-empty transcript. Batches are sized
// to the service limit and issued sequentially, each with bounded retries.
func (g *Grouper) EmbedClips(ctx context.Context, clips []types.ClipResult) ([]types.ClipEmbedding, error) {
	var (
		texts []string
		ids   []string
	)
	for _, c := range clips {
		if strings.TrimSpace(c.Transcript) == "" {
			continue
		}
		texts = append(texts, c.Transcript)
		ids = append(ids, c.ClipID)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	batchLimit := g.embedder.BatchLimit()
	if batchLimit <= 0 {
		batchLimit = 100
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += batchLimit {
		end := start + batchLimit
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		var got [][]float64
		err := retry.Do(ctx, g.RetryPolicy, func() error {
			var embedErr error
			got, embedErr = g.embedder.EmbedTexts(ctx, batch)
			return embedErr
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch starting at %d: %w", start, err)
		}
		vectors = append(vectors, got...)
	}

	out := make([]types.ClipEmbedding, len(ids))
	for i, id := range ids {
		out[i] = types.ClipEmbedding{
			ClipID:    id,
			Vector:    vectors[i],
			ModelName: g.embedder.ModelName(),
		}
	}
	return out, nil
}

// FindPairs computes cosine similarity for every unordered pair and keeps
// those at or above the topic floor.
func (g *Grouper) FindPairs(embeddings []types.ClipEmbedding, clips []types.ClipResult) []types.SimilarityPair {
	starts := make(map[string]float64, len(clips))
	for _, c := range clips {
		starts[c.ClipID] = c.Start
	}

	var pairs []types.SimilarityPair
	for i := 0; i < len(embeddings); i++ {
		for j := i + 1; j < len(embeddings); j++ {
			sim := Cosine(embeddings[i].Vector, embeddings[j].Vector)
			if sim < g.TopicThreshold {
				continue
			}
			pairs = append(pairs, types.SimilarityPair{
				ClipID1:    embeddings[i].ClipID,
				ClipID2:    embeddings[j].ClipID,
				Similarity: sim,
				StartTime1: starts[embeddings[i].ClipID],
				StartTime2: starts[embeddings[j].ClipID],
			})
		}
	}
	return pairs
}

// Cosine returns the cosine similarity of two vectors, 0.0 when either has
// zero magnitude.
func Cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Classify buckets one pair, checking the strictest threshold first. The
// zero GroupType means the pair qualifies for nothing.
func (g *Grouper) Classify(pair types.SimilarityPair) types.GroupType {
	if pair.Similarity >= g.DuplicateThreshold {
		return types.GroupDuplicate
	}
	if pair.Similarity >= g.TakesThreshold {
		timeDiff := math.Abs(pair.StartTime1 - pair.StartTime2)
		if sameSource(pair.ClipID1, pair.ClipID2) && timeDiff <= multipleTakesTimeWindow {
			return types.GroupMultipleTakes
		}
	}
	if pair.Similarity >= g.TopicThreshold {
		return types.GroupSameTopic
	}
	return ""
}

// sameSource compares the source prefix of two clip ids.
func sameSource(id1, id2 string) bool {
	return sourceOf(id1) == sourceOf(id2)
}

func sourceOf(clipID string) string {
	if i := strings.LastIndex(clipID, "_clip_"); i >= 0 {
		return clipID[:i]
	}
	return clipID
}

// BuildGroups unions qualifying pairs into connected components, one graph
// per group type. Components of a single clip are discarded. The
// representative is the lexicographically smallest member, which makes the
// output independent of pair order.
func (g *Grouper) BuildGroups(pairs []types.SimilarityPair) []types.ClipGroup {
	typed := map[types.GroupType][]types.SimilarityPair{}
	for _, pair := range pairs {
		if t := g.Classify(pair); t != "" {
			typed[t] = append(typed[t], pair)
		}
	}

	var groups []types.ClipGroup
	for _, groupType := range []types.GroupType{types.GroupDuplicate, types.GroupMultipleTakes, types.GroupSameTopic} {
		typedPairs, ok := typed[groupType]
		if !ok {
			continue
		}

		adjacency := map[string][]string{}
		similarities := map[string]float64{}
		for _, pair := range typedPairs {
			adjacency[pair.ClipID1] = append(adjacency[pair.ClipID1], pair.ClipID2)
			adjacency[pair.ClipID2] = append(adjacency[pair.ClipID2], pair.ClipID1)
			similarities[edgeKey(pair.ClipID1, pair.ClipID2)] = pair.Similarity
		}

		nodes := make([]string, 0, len(adjacency))
		for id := range adjacency {
			nodes = append(nodes, id)
		}
		sort.Strings(nodes)

		visited := map[string]bool{}
		for _, start := range nodes {
			if visited[start] {
				continue
			}
			component := iterativeDFS(start, adjacency, visited)
			if len(component) < 2 {
				continue
			}
			sort.Strings(component)
			representative := component[0]

			scores := map[string]float64{}
			for _, id := range component {
				if id == representative {
					continue
				}
				// 0.0 when the member is only transitively connected.
				scores[id] = similarities[edgeKey(representative, id)]
			}

			groups = append(groups, types.ClipGroup{
				GroupID:              g.NewGroupID(),
				Type:                 groupType,
				ClipIDs:              component,
				RepresentativeClipID: representative,
				SimilarityScores:     scores,
			})
		}
	}
	return groups
}

// FindGroups is the full pass: embed, pair, classify, union.
func (g *Grouper) FindGroups(ctx context.Context, clips []types.ClipResult) ([]types.ClipGroup, []types.ClipEmbedding, error) {
	embeddings, err := g.EmbedClips(ctx, clips)
	if err != nil {
		return nil, nil, err
	}
	if len(embeddings) < 2 {
		return nil, embeddings, nil
	}
	pairs := g.FindPairs(embeddings, clips)
	groups := g.BuildGroups(pairs)
	g.log.WithFields(logrus.Fields{
		"pairs":  len(pairs),
		"groups": len(groups),
	}).Info("similarity grouping complete")
	return groups, embeddings, nil
}

func edgeKey(id1, id2 string) string {
	if id1 > id2 {
		id1, id2 = id2, id1
	}
	return id1 + "\x00" + id2
}

func iterativeDFS(start string, adjacency map[string][]string, visited map[string]bool) []string {
	var component []string
	stack := []string{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[node] {
			continue
		}
		visited[node] = true
		component = append(component, node)
		stack = append(stack, adjacency[node]...)
	}
	return component
}
