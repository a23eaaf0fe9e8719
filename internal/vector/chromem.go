package vector

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
)

const chromemCollection = "chunks"

// ChromemIndex is the embedded, file-backed index. It needs no
// external search service, which keeps single-binary deployments
// working.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemIndex opens (or creates) the persistent index at path. An
// empty path yields an in-memory index.
func NewChromemIndex(path string) (*ChromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector collection: %w", err)
	}
	return &ChromemIndex{db: db, collection: collection}, nil
}

// Upsert adds or replaces documents by chunk id.
func (c *ChromemIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	out := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		metadata := map[string]string{
			"board_id": d.BoardID,
			"item_id":  d.ItemID,
			"order":    strconv.Itoa(d.Order),
		}
		if d.StartTime != nil {
			metadata["start_time"] = strconv.FormatFloat(*d.StartTime, 'f', -1, 64)
		}
		if d.EndTime != nil {
			metadata["end_time"] = strconv.FormatFloat(*d.EndTime, 'f', -1, 64)
		}
		out = append(out, chromem.Document{
			ID:        d.ChunkID,
			Content:   d.Text,
			Metadata:  metadata,
			Embedding: d.Vector,
		})
	}
	if err := c.collection.AddDocuments(ctx, out, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// DeleteItem removes an item's documents.
func (c *ChromemIndex) DeleteItem(ctx context.Context, boardID, itemID string) error {
	return c.collection.Delete(ctx, map[string]string{
		"board_id": boardID,
		"item_id":  itemID,
	}, nil)
}

// DeleteBoard removes a board's documents.
func (c *ChromemIndex) DeleteBoard(ctx context.Context, boardID string) error {
	return c.collection.Delete(ctx, map[string]string{"board_id": boardID}, nil)
}

// Search queries board-wide, or once per allow-listed item since the
// metadata filter only does exact matches. Merged results are re-ranked
// and cut to TopK.
func (c *ChromemIndex) Search(ctx context.Context, q Query) ([]Result, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	total := c.collection.Count()
	if total == 0 {
		return nil, nil
	}

	n := q.TopK
	if n <= 0 || n > total {
		n = total
	}

	if len(q.ItemIDs) == 0 {
		found, err := c.collection.QueryWithOptions(ctx, chromem.QueryOptions{
			QueryEmbedding: q.Vector,
			NResults:       n,
			Where:          map[string]string{"board_id": q.BoardID},
		})
		if err != nil {
			return nil, fmt.Errorf("vector query failed: %w", err)
		}
		return toResults(found), nil
	}

	var merged []Result
	for _, itemID := range q.ItemIDs {
		found, err := c.collection.QueryWithOptions(ctx, chromem.QueryOptions{
			QueryEmbedding: q.Vector,
			NResults:       n,
			Where: map[string]string{
				"board_id": q.BoardID,
				"item_id":  itemID,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("vector query failed for item %s: %w", itemID, err)
		}
		merged = append(merged, toResults(found)...)
	}
	return topResults(merged, q.TopK), nil
}

func toResults(found []chromem.Result) []Result {
	results := make([]Result, 0, len(found))
	for _, f := range found {
		doc := Document{
			ChunkID: f.ID,
			ItemID:  f.Metadata["item_id"],
			BoardID: f.Metadata["board_id"],
			Text:    f.Content,
			Vector:  f.Embedding,
		}
		if v, err := strconv.Atoi(f.Metadata["order"]); err == nil {
			doc.Order = v
		}
		if s, ok := f.Metadata["start_time"]; ok {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				doc.StartTime = &v
			}
		}
		if s, ok := f.Metadata["end_time"]; ok {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				doc.EndTime = &v
			}
		}
		results = append(results, Result{Document: doc, Score: float64(f.Similarity)})
	}
	return results
}
