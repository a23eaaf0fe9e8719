package vector

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.mongodb.org/mongo-driver/mongo"

	"research-board-platform/internal/config"
)

// Document is one embedded chunk as stored in an index. IDs are hex
// strings so backends that cannot hold ObjectIDs stay interchangeable.
type Document struct {
	ChunkID   string
	ItemID    string
	BoardID   string
	Text      string
	Order     int
	StartTime *float64
	EndTime   *float64
	Vector    []float32
}

// Result is a scored match from a similarity search.
type Result struct {
	Document
	Score float64
}

// Query scopes a similarity search to one board and, optionally, to an
// item allow-list.
type Query struct {
	BoardID string
	ItemIDs []string // empty means the whole board
	Vector  []float32
	TopK    int
}

// Index stores chunk vectors and answers scoped similarity searches.
type Index interface {
	Upsert(ctx context.Context, docs []Document) error
	DeleteItem(ctx context.Context, boardID, itemID string) error
	DeleteBoard(ctx context.Context, boardID string) error
	Search(ctx context.Context, q Query) ([]Result, error)
}

// New selects the configured index backend.
func New(cfg *config.Config, db *mongo.Database) (Index, error) {
	switch cfg.VectorBackend {
	case "mongo", "":
		return NewMongoIndex(db.Collection("chunks"), cfg), nil
	case "chromem":
		return NewChromemIndex(cfg.ChromemPath)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", cfg.VectorBackend)
	}
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// 0 when either is empty, zero or of different length.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// topResults sorts by score descending and truncates to k.
func topResults(results []Result, k int) []Result {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
