package services

import (
	"context"
	"errors"
	"testing"

	"research-board-platform/internal/vector"
)

type fakeEmbedder struct {
	queryVec   []float32
	byText     map[string][]float32
	queryErr   error
	batchErr   error
	batchCalls int
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryVec, nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.byText[t]
	}
	return out, nil
}

func (f *fakeEmbedder) Close() error { return nil }

type fakeIndex struct {
	results   []vector.Result
	err       error
	lastQuery vector.Query
}

func (f *fakeIndex) Upsert(ctx context.Context, docs []vector.Document) error { return nil }

func (f *fakeIndex) DeleteItem(ctx context.Context, boardID, itemID string) error { return nil }

func (f *fakeIndex) DeleteBoard(ctx context.Context, boardID string) error { return nil }

func (f *fakeIndex) Search(ctx context.Context, q vector.Query) ([]vector.Result, error) {
	f.lastQuery = q
	return f.results, f.err
}

func TestRetrieveScopesIndexQuery(t *testing.T) {
	embedder := &fakeEmbedder{queryVec: []float32{1, 0, 0}, byText: map[string][]float32{}}
	index := &fakeIndex{}
	svc := NewRetrievalService(embedder, index, 0.7, 30)

	_, err := svc.Retrieve(context.Background(), "board-1", "question", 5, []string{"item-a", "item-b"})
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if index.lastQuery.BoardID != "board-1" {
		t.Errorf("expected board-1 scope, got %q", index.lastQuery.BoardID)
	}
	if len(index.lastQuery.ItemIDs) != 2 {
		t.Errorf("expected allow-list forwarded to the index, got %v", index.lastQuery.ItemIDs)
	}
	// topK*3 is below the floor of 30
	if index.lastQuery.TopK != 30 {
		t.Errorf("expected over-fetch of 30 candidates, got %d", index.lastQuery.TopK)
	}

	_, _ = svc.Retrieve(context.Background(), "board-1", "question", 20, nil)
	if index.lastQuery.TopK != 60 {
		t.Errorf("expected over-fetch of 60 candidates for topK=20, got %d", index.lastQuery.TopK)
	}
}

func TestRetrieveMMRDemotesNearDuplicates(t *testing.T) {
	// "first" and "dup" are identical; "diverse" is orthogonal to them
	// but still relevant. MMR must pick the diverse chunk second.
	embedder := &fakeEmbedder{
		queryVec: []float32{1, 0, 0},
		byText: map[string][]float32{
			"first":   {0.8, 0.6, 0},
			"dup":     {0.8, 0.6, 0},
			"diverse": {0.6, -0.8, 0},
		},
	}
	index := &fakeIndex{results: []vector.Result{
		{Document: vector.Document{ChunkID: "c0", ItemID: "i", Text: "first"}, Score: 0.9},
		{Document: vector.Document{ChunkID: "c1", ItemID: "i", Text: "dup"}, Score: 0.89},
		{Document: vector.Document{ChunkID: "c2", ItemID: "i", Text: "diverse"}, Score: 0.6},
	}}
	svc := NewRetrievalService(embedder, index, 0.7, 30)

	got, err := svc.Retrieve(context.Background(), "board-1", "question", 2, nil)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ChunkID != "c0" {
		t.Errorf("expected most relevant chunk first, got %s", got[0].ChunkID)
	}
	if got[1].ChunkID != "c2" {
		t.Errorf("expected the diverse chunk to beat the duplicate, got %s", got[1].ChunkID)
	}
}

func TestRetrieveReturnsSelectionOrder(t *testing.T) {
	embedder := &fakeEmbedder{
		queryVec: []float32{1, 0},
		byText: map[string][]float32{
			"a": {1, 0},
			"b": {0.9, 0.436},
			"c": {0, 1},
		},
	}
	index := &fakeIndex{results: []vector.Result{
		{Document: vector.Document{ChunkID: "c", Text: "c"}},
		{Document: vector.Document{ChunkID: "a", Text: "a"}},
		{Document: vector.Document{ChunkID: "b", Text: "b"}},
	}}
	svc := NewRetrievalService(embedder, index, 0.7, 30)

	got, err := svc.Retrieve(context.Background(), "board-1", "q", 3, nil)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	// Selection starts with the best query match regardless of index order.
	if got[0].ChunkID != "a" {
		t.Errorf("expected chunk a first, got %s", got[0].ChunkID)
	}
	if got[0].Score <= got[1].Score && got[0].Score <= got[2].Score {
		t.Errorf("expected the first pick to carry the top similarity, got %v", got)
	}
}

func TestRetrieveEmptyIndexReturnsNothing(t *testing.T) {
	embedder := &fakeEmbedder{queryVec: []float32{1, 0}}
	index := &fakeIndex{}
	svc := NewRetrievalService(embedder, index, 0.7, 30)

	got, err := svc.Retrieve(context.Background(), "board-1", "q", 5, nil)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
	if embedder.batchCalls != 0 {
		t.Errorf("expected no candidate re-embedding on empty index, got %d calls", embedder.batchCalls)
	}
}

func TestRetrievePropagatesErrors(t *testing.T) {
	embedErr := errors.New("embedding down")
	svc := NewRetrievalService(&fakeEmbedder{queryErr: embedErr}, &fakeIndex{}, 0.7, 30)
	if _, err := svc.Retrieve(context.Background(), "b", "q", 5, nil); !errors.Is(err, embedErr) {
		t.Errorf("expected embedding error to propagate, got %v", err)
	}

	indexErr := errors.New("index down")
	svc = NewRetrievalService(&fakeEmbedder{queryVec: []float32{1}}, &fakeIndex{err: indexErr}, 0.7, 30)
	if _, err := svc.Retrieve(context.Background(), "b", "q", 5, nil); !errors.Is(err, indexErr) {
		t.Errorf("expected index error to propagate, got %v", err)
	}
}
