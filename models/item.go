package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceKind tells the ingestion pipeline how to acquire an item's content.
type SourceKind string

const (
	SourceVideo    SourceKind = "video"    // hosted video, transcript cascade
	SourceWebpage  SourceKind = "webpage"  // crawled page
	SourceDocument SourceKind = "document" // uploaded pdf/docx/md/txt
	SourceMedia    SourceKind = "media"    // uploaded audio/video, transcribed directly
)

// Item is a single source on a board.
type Item struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BoardID       primitive.ObjectID `bson:"board_id" json:"board_id"`
	Kind          SourceKind         `bson:"kind" json:"kind"`
	Origin        string             `bson:"origin" json:"origin"` // source URL or stored file path
	Title         string             `bson:"title" json:"title"`
	Status        string             `bson:"status" json:"status"` // pending, processing, ready, failed
	FailureReason string             `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	ChunkCount    int                `bson:"chunk_count" json:"chunk_count"`
	AcquiredVia   string             `bson:"acquired_via,omitempty" json:"acquired_via,omitempty"` // tier or extractor that produced the text
	FileHash      string             `bson:"file_hash,omitempty" json:"file_hash,omitempty"`       // md5, upload deduplication
	FileSize      int64              `bson:"file_size,omitempty" json:"file_size,omitempty"`
	MimeType      string             `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
	Meta          map[string]string  `bson:"meta,omitempty" json:"meta,omitempty"` // source metadata, e.g. page author/published
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
	ProcessedAt   *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// Item status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// ItemCreateRequest registers a URL-backed item (video or webpage).
// Document and media items go through the multipart upload route instead.
type ItemCreateRequest struct {
	Kind   SourceKind `json:"kind" binding:"required,oneof=video webpage"`
	Origin string     `json:"origin" binding:"required,url"`
	Title  string     `json:"title,omitempty"`
}

// IngestResponse is returned after an item is registered and queued.
type IngestResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message"`
}
