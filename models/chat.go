package models

import "time"

// ChatRequest asks a question over a board. ItemIDs, when present,
// restricts retrieval to those items.
type ChatRequest struct {
	BoardID string   `json:"board_id" binding:"required"`
	Query   string   `json:"query" binding:"required,min=1,max=2000"`
	TopK    int      `json:"top_k,omitempty"`
	ItemIDs []string `json:"item_ids,omitempty"`
}

// ItemRef identifies a source item that contributed context to an answer.
type ItemRef struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Kind  SourceKind `json:"kind"`
}

// ContextPiece is one unit of assembled chat context: a retrieved
// chunk, an aggregated group block or a group description line.
// Timestamps are present only for transcript chunks.
type ContextPiece struct {
	Text      string   `json:"text"`
	ItemID    string   `json:"item_id,omitempty"`
	StartTime *float64 `json:"start_s,omitempty"`
	EndTime   *float64 `json:"end_s,omitempty"`
	Score     float64  `json:"score,omitempty"`
}

// ChatResponse carries the answer plus the contexts it was grounded on.
type ChatResponse struct {
	Answer     string         `json:"answer"`
	Contexts   []ContextPiece `json:"contexts"`
	Items      []ItemRef      `json:"items"`
	TokensUsed int            `json:"tokens_used"`
	Timestamp  time.Time      `json:"timestamp"`
}
