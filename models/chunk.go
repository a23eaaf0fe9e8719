package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Segment is a timed span of transcript text. Times are seconds from the
// start of the recording.
type Segment struct {
	Start float64 `bson:"start" json:"start"`
	End   float64 `bson:"end" json:"end"`
	Text  string  `bson:"text" json:"text"`
}

// ContentChunk is a stored slice of an item's text. Order is dense and
// starts at 0 within an item. StartTime and EndTime are set together or
// not at all.
type ContentChunk struct {
	ChunkID   string             `bson:"chunk_id" json:"chunk_id"` // "<item_id>-<order>"
	ItemID    primitive.ObjectID `bson:"item_id" json:"item_id"`
	BoardID   primitive.ObjectID `bson:"board_id" json:"board_id"`
	Text      string             `bson:"text" json:"text"`
	Order     int                `bson:"order" json:"order"`
	CharCount int                `bson:"char_count,omitempty" json:"char_count,omitempty"`
	StartTime *float64           `bson:"start_time,omitempty" json:"start_time,omitempty"` // seconds
	EndTime   *float64           `bson:"end_time,omitempty" json:"end_time,omitempty"`
	Vector    []float32          `bson:"vector,omitempty" json:"-"` // optional: Atlas Vector Search
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Timed reports whether the chunk carries a transcript span.
func (c *ContentChunk) Timed() bool {
	return c.StartTime != nil && c.EndTime != nil
}

// RetrievedChunk is a chunk returned by the retrieval engine with its
// query similarity attached. Slices of these keep selection order.
type RetrievedChunk struct {
	ChunkID   string   `json:"chunk_id"`
	ItemID    string   `json:"item_id"`
	Text      string   `json:"text"`
	Order     int      `json:"order"`
	StartTime *float64 `json:"start_time,omitempty"`
	EndTime   *float64 `json:"end_time,omitempty"`
	Score     float64  `json:"score"`
}
