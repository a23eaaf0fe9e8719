package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"research-board-platform/internal/config"
	"research-board-platform/internal/logger"
	"research-board-platform/internal/vector"
	"research-board-platform/models"
)

// MaintenanceService runs periodic housekeeping jobs on the worker:
// sweeping stale temp files, reconciling the vector index against the
// chunks collection, and releasing items stuck in processing.
type MaintenanceService struct {
	config    *config.Config
	scheduler *gocron.Scheduler
	items     *mongo.Collection
	chunks    *mongo.Collection
	index     vector.Index
	storage   *StorageService
}

func NewMaintenanceService(cfg *config.Config, db *mongo.Database, index vector.Index, storage *StorageService) *MaintenanceService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &MaintenanceService{
		config:    cfg,
		scheduler: s,
		items:     db.Collection("items"),
		chunks:    db.Collection("chunks"),
		index:     index,
		storage:   storage,
	}
}

// Start registers the housekeeping jobs and runs the scheduler in the background
func (ms *MaintenanceService) Start() error {
	sweepEvery := time.Duration(ms.config.TempSweepMinutes) * time.Minute

	if _, err := ms.scheduler.Every(sweepEvery).Tag("temp-sweep").Do(ms.sweepTempFiles); err != nil {
		return err
	}
	if _, err := ms.scheduler.Every(10 * time.Minute).Tag("stuck-items").Do(ms.releaseStuckItems); err != nil {
		return err
	}
	if _, err := ms.scheduler.Every(6 * time.Hour).Tag("index-reconcile").Do(ms.reconcileOrphanedChunks); err != nil {
		return err
	}

	ms.scheduler.StartAsync()
	logger.Info("Maintenance scheduler started", "sweep_interval", sweepEvery.String())
	return nil
}

func (ms *MaintenanceService) Stop() {
	ms.scheduler.Stop()
}

// sweepTempFiles removes extraction scratch dirs and upload temp files
// older than the sweep interval. Live ingestions touch their files well
// within one interval, so anything older is leftover from a crash.
func (ms *MaintenanceService) sweepTempFiles() {
	cutoff := time.Now().Add(-time.Duration(ms.config.TempSweepMinutes) * time.Minute)
	removed := 0

	removed += sweepDir(ms.config.IngestTempDir, "media-", cutoff)
	removed += sweepDir(ms.storage.TempDir(), "", cutoff)

	if removed > 0 {
		logger.Info("Temp sweep removed stale entries", "count", removed)
	}
}

func sweepDir(dir, prefix string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if prefix != "" && !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			logger.Error("Failed to remove stale temp entry", "path", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed
}

// releaseStuckItems fails items that have sat in processing past the
// task timeout, so reingest can pick them up again.
func (ms *MaintenanceService) releaseStuckItems() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-time.Hour)
	now := time.Now()

	result, err := ms.items.UpdateMany(ctx,
		bson.M{"status": models.StatusProcessing, "updated_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{
			"status":         models.StatusFailed,
			"failure_reason": "ingestion timed out",
			"updated_at":     now,
			"processed_at":   now,
		}},
	)
	if err != nil {
		logger.Error("Stuck item scan failed", "error", err)
		return
	}
	if result.ModifiedCount > 0 {
		logger.Info("Released stuck items", "count", result.ModifiedCount)
	}
}

// reconcileOrphanedChunks drops chunks whose parent item no longer
// exists. A crash between an item delete and its cascade can leave
// chunk rows and index entries behind.
func (ms *MaintenanceService) reconcileOrphanedChunks() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": bson.M{"item_id": "$item_id", "board_id": "$board_id"}}}},
	}
	cursor, err := ms.chunks.Aggregate(ctx, pipeline)
	if err != nil {
		logger.Error("Chunk reconcile scan failed", "error", err)
		return
	}
	defer cursor.Close(ctx)

	orphans := 0
	for cursor.Next(ctx) {
		var row struct {
			Key struct {
				ItemID  primitive.ObjectID `bson:"item_id"`
				BoardID primitive.ObjectID `bson:"board_id"`
			} `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			continue
		}

		count, err := ms.items.CountDocuments(ctx, bson.M{"_id": row.Key.ItemID})
		if err != nil || count > 0 {
			continue
		}

		if _, err := ms.chunks.DeleteMany(ctx, bson.M{"item_id": row.Key.ItemID}); err != nil {
			logger.Error("Failed to delete orphaned chunks", "item_id", row.Key.ItemID.Hex(), "error", err)
			continue
		}
		if err := ms.index.DeleteItem(ctx, row.Key.BoardID.Hex(), row.Key.ItemID.Hex()); err != nil {
			logger.Error("Failed to delete orphaned index entries", "item_id", row.Key.ItemID.Hex(), "error", err)
		}
		orphans++
	}

	if orphans > 0 {
		logger.Info("Reconciled orphaned chunks", "items", orphans)
	}
}
