package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"research-board-platform/internal/logger"
	"research-board-platform/internal/transcript"
	"research-board-platform/models"
	"research-board-platform/services"
)

const (
	TaskIngestItem    = "item:ingest"
	TaskReingestBoard = "board:reingest"
)

type IngestItemPayload struct {
	BoardID string `json:"board_id"`
	ItemID  string `json:"item_id"`
}

type ReingestBoardPayload struct {
	BoardID    string `json:"board_id"`
	OnlyFailed bool   `json:"only_failed"`
}

// NewIngestItemTask builds the task that runs the full pipeline for one
// item. Long timeout: video transcription of an hour-long recording can
// legitimately take many minutes.
func NewIngestItemTask(boardID, itemID string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestItemPayload{
		BoardID: boardID,
		ItemID:  itemID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestItem,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// NewReingestBoardTask builds the fan-out task that re-enqueues a
// board's items for processing.
func NewReingestBoardTask(boardID string, onlyFailed bool) (*asynq.Task, error) {
	payload, err := json.Marshal(ReingestBoardPayload{
		BoardID:    boardID,
		OnlyFailed: onlyFailed,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskReingestBoard,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("low"),
	), nil
}

// TaskProcessor holds the worker-side handlers.
type TaskProcessor struct {
	ingestion *services.IngestionService
	items     *mongo.Collection
	client    *asynq.Client
}

func NewTaskProcessor(ingestion *services.IngestionService, db *mongo.Database, client *asynq.Client) *TaskProcessor {
	return &TaskProcessor{
		ingestion: ingestion,
		items:     db.Collection("items"),
		client:    client,
	}
}

// HandleIngestItem runs the ingestion pipeline for the item named in
// the payload. Malformed payloads are dropped rather than retried.
func (p *TaskProcessor) HandleIngestItem(ctx context.Context, t *asynq.Task) error {
	var payload IngestItemPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	itemID, err := primitive.ObjectIDFromHex(payload.ItemID)
	if err != nil {
		return fmt.Errorf("invalid item id %q: %w", payload.ItemID, asynq.SkipRetry)
	}

	logger.Info("Ingest task started", "item_id", payload.ItemID, "board_id", payload.BoardID)
	if err := p.ingestion.IngestItem(ctx, itemID); err != nil {
		logger.Error("Ingest task failed", "item_id", payload.ItemID, "error", err)

		// An exhausted acquisition cascade already tried every tier with
		// its own retries; re-running the task would repeat all of them.
		var total *transcript.TotalFailure
		if errors.As(err, &total) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// HandleReingestBoard enqueues an ingest task for each matching item of
// the board. Items currently mid-pipeline are left alone.
func (p *TaskProcessor) HandleReingestBoard(ctx context.Context, t *asynq.Task) error {
	var payload ReingestBoardPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	boardID, err := primitive.ObjectIDFromHex(payload.BoardID)
	if err != nil {
		return fmt.Errorf("invalid board id %q: %w", payload.BoardID, asynq.SkipRetry)
	}

	filter := bson.M{"board_id": boardID}
	if payload.OnlyFailed {
		filter["status"] = models.StatusFailed
	} else {
		filter["status"] = bson.M{"$ne": models.StatusProcessing}
	}

	cursor, err := p.items.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list board items: %w", err)
	}
	defer cursor.Close(ctx)

	var queued int
	for cursor.Next(ctx) {
		var item models.Item
		if err := cursor.Decode(&item); err != nil {
			continue
		}
		task, err := NewIngestItemTask(payload.BoardID, item.ID.Hex())
		if err != nil {
			logger.Error("Failed to build ingest task", "item_id", item.ID.Hex(), "error", err)
			continue
		}
		if _, err := p.client.EnqueueContext(ctx, task); err != nil {
			logger.Error("Failed to enqueue ingest task", "item_id", item.ID.Hex(), "error", err)
			continue
		}
		queued++
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("cursor error while listing board items: %w", err)
	}

	logger.Info("Board reingest fanned out", "board_id", payload.BoardID, "queued", queued, "only_failed", payload.OnlyFailed)
	return nil
}
