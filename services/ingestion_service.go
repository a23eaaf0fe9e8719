package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"research-board-platform/internal/ai"
	"research-board-platform/internal/config"
	"research-board-platform/internal/crawler"
	"research-board-platform/internal/logger"
	"research-board-platform/internal/telemetry"
	"research-board-platform/internal/transcript"
	"research-board-platform/internal/vector"
	"research-board-platform/models"
)

// IngestionService runs the acquire -> chunk -> embed -> index pipeline
// for a single item. Re-running it on the same item replaces the item's
// chunks, and a failure at any stage leaves the previous chunks intact.
type IngestionService struct {
	config    *config.Config
	items     *mongo.Collection
	chunksCol *mongo.Collection
	chunker   *ChunkingService
	embedder  ai.Embedder
	index     vector.Index
	videos    *transcript.Cascade
	stt       transcript.SpeechToText
	documents *DocumentService
	metrics   *telemetry.Metrics
}

func NewIngestionService(
	cfg *config.Config,
	db *mongo.Database,
	chunker *ChunkingService,
	embedder ai.Embedder,
	index vector.Index,
	videos *transcript.Cascade,
	stt transcript.SpeechToText,
	documents *DocumentService,
	metrics *telemetry.Metrics,
) *IngestionService {
	return &IngestionService{
		config:    cfg,
		items:     db.Collection("items"),
		chunksCol: db.Collection("chunks"),
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		videos:    videos,
		stt:       stt,
		documents: documents,
		metrics:   metrics,
	}
}

// acquiredContent is what a source yields before chunking. Timed sources
// fill segments; untimed ones fill text.
type acquiredContent struct {
	segments []models.Segment
	text     string
	via      string
	title    string
	meta     map[string]string
}

// IngestItem processes one item end to end and records the outcome on
// the item record.
func (is *IngestionService) IngestItem(ctx context.Context, itemID primitive.ObjectID) error {
	tracer := otel.Tracer("ingestion")
	ctx, span := tracer.Start(ctx, "ingest.item")
	defer span.End()
	span.SetAttributes(attribute.String("item.id", itemID.Hex()))

	var item models.Item
	if err := is.items.FindOne(ctx, bson.M{"_id": itemID}).Decode(&item); err != nil {
		return fmt.Errorf("failed to load item %s: %w", itemID.Hex(), err)
	}
	span.SetAttributes(attribute.String("item.kind", string(item.Kind)))

	start := time.Now()
	outcome := models.StatusFailed
	indexed := 0
	defer func() {
		if is.metrics != nil {
			is.metrics.RecordIngest(string(item.Kind), outcome, time.Since(start).Seconds(), int64(indexed))
		}
	}()

	is.setStatus(ctx, itemID, models.StatusProcessing, "")
	logger.Info("Ingestion started", "item_id", itemID.Hex(), "kind", item.Kind, "origin", item.Origin)

	acquired, err := is.acquire(ctx, &item)
	if err != nil {
		is.setStatus(ctx, itemID, models.StatusFailed, err.Error())
		return fmt.Errorf("acquisition failed for item %s: %w", itemID.Hex(), err)
	}

	chunks := is.buildChunks(&item, acquired)
	if len(chunks) == 0 {
		err := fmt.Errorf("acquired content produced no chunks")
		is.setStatus(ctx, itemID, models.StatusFailed, err.Error())
		return err
	}

	// Embed before touching stored chunks so an embedding failure leaves
	// the previous ingest's chunks queryable.
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := is.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		is.setStatus(ctx, itemID, models.StatusFailed, fmt.Sprintf("embedding failed: %v", err))
		return fmt.Errorf("embedding failed for item %s: %w", itemID.Hex(), err)
	}
	if len(vectors) != len(chunks) {
		err := fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
		is.setStatus(ctx, itemID, models.StatusFailed, err.Error())
		return err
	}

	if err := is.replaceChunks(ctx, &item, chunks, vectors); err != nil {
		is.setStatus(ctx, itemID, models.StatusFailed, fmt.Sprintf("persistence failed: %v", err))
		return fmt.Errorf("failed to persist chunks for item %s: %w", itemID.Hex(), err)
	}

	is.finalize(ctx, &item, acquired, len(chunks))
	outcome = models.StatusReady
	indexed = len(chunks)
	logger.Info("Ingestion finished", "item_id", itemID.Hex(), "via", acquired.via, "chunks", len(chunks))
	span.SetAttributes(attribute.Int("item.chunks", len(chunks)), attribute.String("item.via", acquired.via))
	return nil
}

// acquire dispatches to the source-specific acquisition path.
func (is *IngestionService) acquire(ctx context.Context, item *models.Item) (*acquiredContent, error) {
	switch item.Kind {
	case models.SourceVideo:
		res, err := is.videos.Acquire(ctx, item.Origin)
		if err != nil {
			return nil, err
		}
		return &acquiredContent{segments: res.Segments, text: res.Text, via: res.Tier}, nil

	case models.SourceWebpage:
		page, err := crawler.FetchPage(crawler.PageConfig{
			URL:       item.Origin,
			UserAgent: is.config.CrawlerUserAgent,
			RenderJS:  is.config.RenderJSPages,
		})
		if err != nil {
			return nil, err
		}
		return &acquiredContent{
			text:  page.Text,
			via:   "crawler",
			title: page.Title,
			meta:  page.Meta.ToMap(),
		}, nil

	case models.SourceDocument:
		result, err := is.documents.ExtractText(ctx, item.Origin)
		if err != nil {
			return nil, err
		}
		meta := make(map[string]string)
		if result.Language != "" && result.Language != "unknown" {
			meta["language"] = result.Language
		}
		if result.Pages > 1 {
			meta["pages"] = strconv.Itoa(result.Pages)
		}
		return &acquiredContent{text: result.Text, via: result.Method, meta: meta}, nil

	case models.SourceMedia:
		return is.transcribeMedia(ctx, item)

	default:
		return nil, fmt.Errorf("unknown source kind %q", item.Kind)
	}
}

var videoContainers = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mkv":  true,
	".mov":  true,
}

func lowerExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// transcribeMedia transcribes an uploaded audio or video file, pulling
// the audio track out of video containers first.
func (is *IngestionService) transcribeMedia(ctx context.Context, item *models.Item) (*acquiredContent, error) {
	audioPath := item.Origin

	if videoContainers[lowerExt(item.Origin)] {
		workDir, err := os.MkdirTemp(is.config.IngestTempDir, "media-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(workDir)

		extracted := filepath.Join(workDir, "audio.m4a")
		if err := transcript.ExtractAudio(ctx, is.config.FFmpegPath, item.Origin, extracted); err != nil {
			return nil, fmt.Errorf("audio extraction failed: %w", err)
		}
		audioPath = extracted
	}

	tx, err := transcript.TranscribeWithRetry(ctx, is.stt, audioPath, is.config.STTPrimaryModel, is.config.STTFallbackModel)
	if err != nil {
		return nil, err
	}
	return &acquiredContent{segments: tx.Segments, text: tx.Text, via: "transcription"}, nil
}

// buildChunks merges timed segments or windows untimed text.
func (is *IngestionService) buildChunks(item *models.Item, acquired *acquiredContent) []models.ContentChunk {
	if len(acquired.segments) > 0 {
		merged := MergeSegments(acquired.segments,
			is.config.MergeMaxChars, is.config.MergeMaxGapSec, is.config.MergeMaxSpanSec)
		return is.chunker.ChunksFromSegments(item, merged)
	}
	return is.chunker.ChunksFromText(item, is.chunker.ChunkText(acquired.text))
}

// replaceChunks swaps the item's stored chunks and index entries for the
// new set. Runs only after embedding succeeded.
func (is *IngestionService) replaceChunks(ctx context.Context, item *models.Item, chunks []models.ContentChunk, vectors [][]float32) error {
	boardHex := item.BoardID.Hex()
	itemHex := item.ID.Hex()

	if _, err := is.chunksCol.DeleteMany(ctx, bson.M{"item_id": item.ID}); err != nil {
		return fmt.Errorf("failed to delete previous chunks: %w", err)
	}
	if err := is.index.DeleteItem(ctx, boardHex, itemHex); err != nil {
		return fmt.Errorf("failed to delete previous index entries: %w", err)
	}

	docs := make([]interface{}, len(chunks))
	for i := range chunks {
		docs[i] = chunks[i]
	}
	if _, err := is.chunksCol.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	indexDocs := make([]vector.Document, len(chunks))
	for i, ch := range chunks {
		indexDocs[i] = vector.Document{
			ChunkID:   ch.ChunkID,
			ItemID:    itemHex,
			BoardID:   boardHex,
			Text:      ch.Text,
			Order:     ch.Order,
			StartTime: ch.StartTime,
			EndTime:   ch.EndTime,
			Vector:    vectors[i],
		}
	}
	return is.index.Upsert(ctx, indexDocs)
}

// finalize marks the item ready and records what acquisition discovered.
func (is *IngestionService) finalize(ctx context.Context, item *models.Item, acquired *acquiredContent, chunkCount int) {
	now := time.Now()
	set := bson.M{
		"status":       models.StatusReady,
		"chunk_count":  chunkCount,
		"acquired_via": acquired.via,
		"updated_at":   now,
		"processed_at": now,
	}
	if item.Title == "" && acquired.title != "" {
		set["title"] = acquired.title
	}
	if len(acquired.meta) > 0 {
		set["meta"] = acquired.meta
	}

	if _, err := is.items.UpdateOne(ctx, bson.M{"_id": item.ID}, bson.M{
		"$set":   set,
		"$unset": bson.M{"failure_reason": ""},
	}); err != nil {
		logger.Error("Failed to finalize item", "item_id", item.ID.Hex(), "error", err)
	}
}

// setStatus records a status transition, stamping processed_at on
// terminal states.
func (is *IngestionService) setStatus(ctx context.Context, itemID primitive.ObjectID, status, failureReason string) {
	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if failureReason != "" {
		set["failure_reason"] = failureReason
	}
	if status == models.StatusReady || status == models.StatusFailed {
		set["processed_at"] = time.Now()
	}

	if _, err := is.items.UpdateOne(ctx, bson.M{"_id": itemID}, bson.M{"$set": set}); err != nil {
		logger.Error("Failed to update item status", "item_id", itemID.Hex(), "status", status, "error", err)
	}
}

// DeleteItemData removes an item's chunks from storage and the vector
// index. Used when an item is removed from its board.
func (is *IngestionService) DeleteItemData(ctx context.Context, boardID, itemID primitive.ObjectID) error {
	if _, err := is.chunksCol.DeleteMany(ctx, bson.M{"item_id": itemID}); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := is.index.DeleteItem(ctx, boardID.Hex(), itemID.Hex()); err != nil {
		return fmt.Errorf("failed to delete index entries: %w", err)
	}
	return nil
}

// DeleteBoardData removes every chunk and index entry of a board.
func (is *IngestionService) DeleteBoardData(ctx context.Context, boardID primitive.ObjectID) error {
	if _, err := is.chunksCol.DeleteMany(ctx, bson.M{"board_id": boardID}); err != nil {
		return fmt.Errorf("failed to delete board chunks: %w", err)
	}
	if err := is.index.DeleteBoard(ctx, boardID.Hex()); err != nil {
		return fmt.Errorf("failed to delete board index entries: %w", err)
	}
	return nil
}
