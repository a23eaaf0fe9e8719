package services

import (
	"context"
	"fmt"
	"math"

	"research-board-platform/internal/ai"
	"research-board-platform/internal/vector"
	"research-board-platform/models"
)

// RetrievalService turns a query into a ranked, diversity-aware chunk
// selection over one board.
type RetrievalService struct {
	embedder      ai.Embedder
	index         vector.Index
	lambda        float64
	prefetchFloor int
}

// NewRetrievalService wires the retrieval engine. lambda balances
// relevance against diversity; out-of-range values fall back to 0.7.
func NewRetrievalService(embedder ai.Embedder, index vector.Index, lambda float64, prefetchFloor int) *RetrievalService {
	if lambda <= 0 || lambda > 1 {
		lambda = 0.7
	}
	if prefetchFloor <= 0 {
		prefetchFloor = 30
	}
	return &RetrievalService{
		embedder:      embedder,
		index:         index,
		lambda:        lambda,
		prefetchFloor: prefetchFloor,
	}
}

// Retrieve embeds the query once, over-fetches nearest candidates from
// the index (scoped to allowedItemIDs when given) and re-ranks them with
// maximal marginal relevance. Results keep selection order. Embedding
// and index errors propagate unchanged.
func (rs *RetrievalService) Retrieve(ctx context.Context, boardID, query string, topK int, allowedItemIDs []string) ([]models.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 8
	}

	queryVec, err := rs.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	preK := topK * 3
	if preK < rs.prefetchFloor {
		preK = rs.prefetchFloor
	}

	candidates, err := rs.index.Search(ctx, vector.Query{
		BoardID: boardID,
		ItemIDs: allowedItemIDs,
		Vector:  queryVec,
		TopK:    preK,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	candVecs, err := rs.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(candVecs) != len(candidates) {
		return nil, fmt.Errorf("candidate embedding count mismatch: %d vs %d", len(candVecs), len(candidates))
	}

	querySims := make([]float64, len(candidates))
	for i := range candVecs {
		querySims[i] = vector.CosineSimilarity(queryVec, candVecs[i])
	}

	order := mmrSelect(querySims, candVecs, rs.lambda, topK)

	results := make([]models.RetrievedChunk, 0, len(order))
	for _, idx := range order {
		c := candidates[idx]
		results = append(results, models.RetrievedChunk{
			ChunkID:   c.ChunkID,
			ItemID:    c.ItemID,
			Text:      c.Text,
			Order:     c.Order,
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
			Score:     querySims[idx],
		})
	}
	return results, nil
}

// mmrSelect greedily picks k candidate indices maximizing
// lambda*sim(query,c) - (1-lambda)*max over selected of sim(c,s).
// The max over an empty selected set is 0, so the first pick is the
// candidate most similar to the query.
func mmrSelect(querySims []float64, candVecs [][]float32, lambda float64, k int) []int {
	n := len(candVecs)
	if k > n {
		k = n
	}

	selected := make([]int, 0, k)
	used := make([]bool, n)

	for len(selected) < k {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			maxSelectedSim := 0.0
			if len(selected) > 0 {
				maxSelectedSim = math.Inf(-1)
				for _, s := range selected {
					if sim := vector.CosineSimilarity(candVecs[i], candVecs[s]); sim > maxSelectedSim {
						maxSelectedSim = sim
					}
				}
			}
			score := lambda*querySims[i] - (1-lambda)*maxSelectedSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		used[bestIdx] = true
		selected = append(selected, bestIdx)
	}
	return selected
}
