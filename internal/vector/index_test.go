package vector

import (
	"context"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical vectors: expected 1.0, got %v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: expected 0, got %v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1.0) > 1e-9 {
		t.Errorf("opposite vectors: expected -1.0, got %v", got)
	}
	if got := CosineSimilarity([]float32{2, 0}, []float32{7, 0}); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("scaling must not change similarity, got %v", got)
	}
	if got := CosineSimilarity(nil, []float32{1}); got != 0 {
		t.Errorf("empty input: expected 0, got %v", got)
	}
	if got := CosineSimilarity([]float32{1, 2}, []float32{1}); got != 0 {
		t.Errorf("length mismatch: expected 0, got %v", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero vector: expected 0, got %v", got)
	}
}

func TestTopResults(t *testing.T) {
	results := []Result{
		{Document: Document{ChunkID: "low"}, Score: 0.1},
		{Document: Document{ChunkID: "high"}, Score: 0.9},
		{Document: Document{ChunkID: "mid"}, Score: 0.5},
	}
	got := topResults(results, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ChunkID != "high" || got[1].ChunkID != "mid" {
		t.Errorf("expected high,mid ordering, got %s,%s", got[0].ChunkID, got[1].ChunkID)
	}
	if got := topResults(nil, 3); len(got) != 0 {
		t.Errorf("expected empty output for empty input, got %d", len(got))
	}
}

func TestChromemIndexRoundTrip(t *testing.T) {
	idx, err := NewChromemIndex("")
	if err != nil {
		t.Fatalf("NewChromemIndex returned error: %v", err)
	}
	ctx := context.Background()

	start, end := 0.0, 2.0
	docs := []Document{
		{ChunkID: "a-0", ItemID: "item-a", BoardID: "board-1", Text: "alpha", Order: 0,
			StartTime: &start, EndTime: &end, Vector: []float32{1, 0, 0}},
		{ChunkID: "a-1", ItemID: "item-a", BoardID: "board-1", Text: "beta", Order: 1,
			Vector: []float32{0, 1, 0}},
		{ChunkID: "b-0", ItemID: "item-b", BoardID: "board-1", Text: "gamma", Order: 0,
			Vector: []float32{0.9, 0.1, 0}},
	}
	if err := idx.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	res, err := idx.Search(ctx, Query{BoardID: "board-1", Vector: []float32{1, 0, 0}, TopK: 2})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].ChunkID != "a-0" {
		t.Errorf("expected nearest chunk a-0 first, got %s", res[0].ChunkID)
	}
	if res[0].StartTime == nil || *res[0].StartTime != 0 || res[0].EndTime == nil || *res[0].EndTime != 2 {
		t.Errorf("expected timings to survive the round trip, got %+v", res[0])
	}

	scoped, err := idx.Search(ctx, Query{
		BoardID: "board-1",
		ItemIDs: []string{"item-a"},
		Vector:  []float32{1, 0, 0},
		TopK:    5,
	})
	if err != nil {
		t.Fatalf("scoped Search returned error: %v", err)
	}
	for _, r := range scoped {
		if r.ItemID != "item-a" {
			t.Errorf("allow-list leak: got chunk of item %s", r.ItemID)
		}
	}
	if len(scoped) != 2 {
		t.Errorf("expected 2 scoped results, got %d", len(scoped))
	}

	if err := idx.DeleteItem(ctx, "board-1", "item-a"); err != nil {
		t.Fatalf("DeleteItem returned error: %v", err)
	}
	after, err := idx.Search(ctx, Query{BoardID: "board-1", Vector: []float32{1, 0, 0}, TopK: 5})
	if err != nil {
		t.Fatalf("Search after delete returned error: %v", err)
	}
	if len(after) != 1 || after[0].ChunkID != "b-0" {
		t.Errorf("expected only b-0 to remain, got %+v", after)
	}
}
