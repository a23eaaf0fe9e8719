package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"research-board-platform/internal/config"
	"research-board-platform/internal/logger"
	"research-board-platform/internal/queue"
	"research-board-platform/models"
	"research-board-platform/services"
)

func SetupItemRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database, storage *services.StorageService, ingestion *services.IngestionService, queueClient *asynq.Client) {
	boardsCollection := db.Collection("boards")
	itemsCollection := db.Collection("items")
	groupsCollection := db.Collection("groups")
	chunksCollection := db.Collection("chunks")

	api := router.Group("/api")

	// Register a URL-backed item (video or webpage) and queue it.
	api.POST("/boards/:boardID/items", func(c *gin.Context) {
		boardID, ok := objectIDParam(c, "boardID")
		if !ok {
			return
		}

		var req models.ItemCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid item data",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if !boardExists(ctx, c, boardsCollection, boardID) {
			return
		}

		now := time.Now()
		item := models.Item{
			ID:        primitive.NewObjectID(),
			BoardID:   boardID,
			Kind:      req.Kind,
			Origin:    req.Origin,
			Title:     req.Title,
			Status:    models.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if _, err := itemsCollection.InsertOne(ctx, item); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to create item",
			})
			return
		}

		taskID, err := enqueueIngest(queueClient, boardID.Hex(), item.ID.Hex())
		if err != nil {
			itemsCollection.DeleteOne(ctx, bson.M{"_id": item.ID})
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "queue_error",
				"message":    "Failed to enqueue ingestion task",
			})
			return
		}

		bumpItemCount(ctx, boardsCollection, boardID, 1)

		c.JSON(http.StatusAccepted, models.IngestResponse{
			ID:      item.ID.Hex(),
			Status:  models.StatusPending,
			TaskID:  taskID,
			Message: "Item accepted for processing",
		})
	})

	// Upload a document or media file as a new item.
	api.POST("/boards/:boardID/items/upload", func(c *gin.Context) {
		boardID, ok := objectIDParam(c, "boardID")
		if !ok {
			return
		}

		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "file_too_large",
				"message":    "File size exceeds maximum limit",
			})
			return
		}

		kind := models.SourceKind(c.PostForm("kind"))
		if kind != models.SourceDocument && kind != models.SourceMedia {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_kind",
				"message":    "Upload kind must be 'document' or 'media'",
			})
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "no_file",
				"message":    "No file provided",
			})
			return
		}
		defer file.Close()

		if err := storage.ValidateUpload(header, kind); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_file",
				"message":    err.Error(),
			})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if !boardExists(ctx, c, boardsCollection, boardID) {
			return
		}

		stored, err := storage.Store(file, header, boardID.Hex())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "file_save_error",
				"message":    "Failed to store uploaded file",
			})
			return
		}

		// Same bytes already on this board: point at the existing item.
		var existing models.Item
		err = itemsCollection.FindOne(ctx, bson.M{
			"board_id":  boardID,
			"file_hash": stored.Hash,
		}).Decode(&existing)
		if err == nil {
			storage.Cleanup(stored.Path)
			c.JSON(http.StatusConflict, gin.H{
				"error_code": "duplicate_file",
				"message":    "This file was already uploaded to the board",
				"details":    gin.H{"existing_item_id": existing.ID.Hex()},
			})
			return
		}

		title := c.PostForm("title")
		if title == "" {
			title = header.Filename
		}

		now := time.Now()
		item := models.Item{
			ID:        primitive.NewObjectID(),
			BoardID:   boardID,
			Kind:      kind,
			Origin:    stored.Path,
			Title:     title,
			Status:    models.StatusPending,
			FileHash:  stored.Hash,
			FileSize:  stored.Size,
			MimeType:  stored.MimeType,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if _, err := itemsCollection.InsertOne(ctx, item); err != nil {
			storage.Cleanup(stored.Path)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to create item record",
			})
			return
		}

		taskID, err := enqueueIngest(queueClient, boardID.Hex(), item.ID.Hex())
		if err != nil {
			storage.Cleanup(stored.Path)
			itemsCollection.DeleteOne(ctx, bson.M{"_id": item.ID})
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "queue_error",
				"message":    "Failed to enqueue ingestion task",
			})
			return
		}

		bumpItemCount(ctx, boardsCollection, boardID, 1)

		c.JSON(http.StatusAccepted, models.IngestResponse{
			ID:      item.ID.Hex(),
			Status:  models.StatusPending,
			TaskID:  taskID,
			Message: "File accepted for processing",
		})
	})

	api.GET("/boards/:boardID/items", func(c *gin.Context) {
		boardID, ok := objectIDParam(c, "boardID")
		if !ok {
			return
		}
		page, limit := parsePagination(c, 20, 100)

		filter := bson.M{"board_id": boardID}
		if status := c.Query("status"); status != "" {
			filter["status"] = status
		}
		if kind := c.Query("kind"); kind != "" {
			filter["kind"] = kind
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		skip := (page - 1) * limit
		cursor, err := itemsCollection.Find(ctx, filter,
			options.Find().
				SetSort(bson.M{"created_at": -1}).
				SetSkip(int64(skip)).
				SetLimit(int64(limit)))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to retrieve items",
			})
			return
		}
		defer cursor.Close(ctx)

		items := make([]models.Item, 0)
		if err := cursor.All(ctx, &items); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to decode items",
			})
			return
		}

		total, err := itemsCollection.CountDocuments(ctx, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to count items",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"items": items,
			"pagination": gin.H{
				"page":        page,
				"limit":       limit,
				"total":       total,
				"total_pages": (total + int64(limit) - 1) / int64(limit),
			},
		})
	})

	api.GET("/items/:itemID", func(c *gin.Context) {
		itemID, ok := objectIDParam(c, "itemID")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var item models.Item
		if err := itemsCollection.FindOne(ctx, bson.M{"_id": itemID}).Decode(&item); err != nil {
			if err == mongo.ErrNoDocuments {
				c.JSON(http.StatusNotFound, gin.H{
					"error_code": "item_not_found",
					"message":    "Item not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to retrieve item",
			})
			return
		}

		c.JSON(http.StatusOK, item)
	})

	// Stored chunks of one item, in reading order. Vectors stay server-side.
	api.GET("/items/:itemID/chunks", func(c *gin.Context) {
		itemID, ok := objectIDParam(c, "itemID")
		if !ok {
			return
		}
		page, limit := parsePagination(c, 50, 200)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		skip := (page - 1) * limit
		cursor, err := chunksCollection.Find(ctx, bson.M{"item_id": itemID},
			options.Find().
				SetSort(bson.M{"order": 1}).
				SetSkip(int64(skip)).
				SetLimit(int64(limit)).
				SetProjection(bson.M{"vector": 0}))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to retrieve chunks",
			})
			return
		}
		defer cursor.Close(ctx)

		chunks := make([]models.ContentChunk, 0)
		if err := cursor.All(ctx, &chunks); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to decode chunks",
			})
			return
		}

		total, err := chunksCollection.CountDocuments(ctx, bson.M{"item_id": itemID})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to count chunks",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"chunks": chunks,
			"pagination": gin.H{
				"page":        page,
				"limit":       limit,
				"total":       total,
				"total_pages": (total + int64(limit) - 1) / int64(limit),
			},
		})
	})

	// Re-run the pipeline for one item.
	api.POST("/items/:itemID/reingest", func(c *gin.Context) {
		itemID, ok := objectIDParam(c, "itemID")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var item models.Item
		if err := itemsCollection.FindOne(ctx, bson.M{"_id": itemID}).Decode(&item); err != nil {
			if err == mongo.ErrNoDocuments {
				c.JSON(http.StatusNotFound, gin.H{
					"error_code": "item_not_found",
					"message":    "Item not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to retrieve item",
			})
			return
		}

		if item.Status == models.StatusProcessing {
			c.JSON(http.StatusConflict, gin.H{
				"error_code": "item_processing",
				"message":    "Item is already being processed",
			})
			return
		}

		if _, err := itemsCollection.UpdateOne(ctx, bson.M{"_id": itemID}, bson.M{
			"$set":   bson.M{"status": models.StatusPending, "updated_at": time.Now()},
			"$unset": bson.M{"failure_reason": ""},
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to update item status",
			})
			return
		}

		taskID, err := enqueueIngest(queueClient, item.BoardID.Hex(), itemID.Hex())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "queue_error",
				"message":    "Failed to enqueue ingestion task",
			})
			return
		}

		c.JSON(http.StatusAccepted, models.IngestResponse{
			ID:      itemID.Hex(),
			Status:  models.StatusPending,
			TaskID:  taskID,
			Message: "Item queued for reprocessing",
		})
	})

	api.DELETE("/items/:itemID", func(c *gin.Context) {
		itemID, ok := objectIDParam(c, "itemID")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var item models.Item
		if err := itemsCollection.FindOne(ctx, bson.M{"_id": itemID}).Decode(&item); err != nil {
			if err == mongo.ErrNoDocuments {
				c.JSON(http.StatusNotFound, gin.H{
					"error_code": "item_not_found",
					"message":    "Item not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to retrieve item",
			})
			return
		}

		if _, err := itemsCollection.DeleteOne(ctx, bson.M{"_id": itemID}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to delete item",
			})
			return
		}

		if err := ingestion.DeleteItemData(ctx, item.BoardID, itemID); err != nil {
			logger.Error("Failed to delete item chunk data", "item_id", itemID.Hex(), "error", err)
		}
		if item.Kind == models.SourceDocument || item.Kind == models.SourceMedia {
			storage.Cleanup(item.Origin)
		}
		if _, err := groupsCollection.UpdateMany(ctx,
			bson.M{"board_id": item.BoardID},
			bson.M{"$pull": bson.M{"item_ids": itemID}}); err != nil {
			logger.Error("Failed to remove item from groups", "item_id", itemID.Hex(), "error", err)
		}
		bumpItemCount(ctx, boardsCollection, item.BoardID, -1)

		c.JSON(http.StatusOK, gin.H{"message": "Item and all associated data deleted"})
	})
}

// boardExists checks the parent board, writing the error response when
// it is missing.
func boardExists(ctx context.Context, c *gin.Context, boards *mongo.Collection, boardID primitive.ObjectID) bool {
	err := boards.FindOne(ctx, bson.M{"_id": boardID}).Err()
	if err == nil {
		return true
	}
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{
			"error_code": "board_not_found",
			"message":    "Board not found",
		})
	} else {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "database_error",
			"message":    "Failed to retrieve board",
		})
	}
	return false
}

func enqueueIngest(queueClient *asynq.Client, boardID, itemID string) (string, error) {
	task, err := queue.NewIngestItemTask(boardID, itemID)
	if err != nil {
		return "", err
	}
	info, err := queueClient.Enqueue(task)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func bumpItemCount(ctx context.Context, boards *mongo.Collection, boardID primitive.ObjectID, delta int) {
	if _, err := boards.UpdateOne(ctx, bson.M{"_id": boardID},
		bson.M{"$inc": bson.M{"item_count": delta}}); err != nil {
		logger.Error("Failed to update board item count", "board_id", boardID.Hex(), "error", err)
	}
}
