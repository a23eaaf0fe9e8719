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

	"research-board-platform/internal/logger"
	"research-board-platform/internal/queue"
	"research-board-platform/models"
	"research-board-platform/services"
)

func SetupBoardRoutes(router *gin.Engine, db *mongo.Database, ingestion *services.IngestionService, storage *services.StorageService, queueClient *asynq.Client) {
	boardsCollection := db.Collection("boards")
	itemsCollection := db.Collection("items")
	groupsCollection := db.Collection("groups")

	boards := router.Group("/api/boards")

	boards.POST("", func(c *gin.Context) {
		var req models.BoardCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid board data",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		now := time.Now()
		board := models.Board{
			Name:        req.Name,
			Description: req.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := boardsCollection.InsertOne(ctx, board)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to create board",
			})
			return
		}
		board.ID = result.InsertedID.(primitive.ObjectID)

		c.JSON(http.StatusCreated, board)
	})

	boards.GET("", func(c *gin.Context) {
		page, limit := parsePagination(c, 20, 100)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		skip := (page - 1) * limit
		cursor, err := boardsCollection.Find(ctx, bson.M{},
			options.Find().
				SetSort(bson.M{"created_at": -1}).
				SetSkip(int64(skip)).
				SetLimit(int64(limit)))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to retrieve boards",
			})
			return
		}
		defer cursor.Close(ctx)

		var boardDocs []models.Board
		if err := cursor.All(ctx, &boardDocs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to decode boards",
			})
			return
		}

		summaries := make([]models.BoardSummary, 0, len(boardDocs))
		for _, b := range boardDocs {
			groupCount, _ := groupsCollection.CountDocuments(ctx, bson.M{"board_id": b.ID})
			summaries = append(summaries, models.BoardSummary{
				ID:          b.ID.Hex(),
				Name:        b.Name,
				Description: b.Description,
				ItemCount:   b.ItemCount,
				GroupCount:  int(groupCount),
				CreatedAt:   b.CreatedAt,
			})
		}

		total, err := boardsCollection.CountDocuments(ctx, bson.M{})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to count boards",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"boards": summaries,
			"pagination": gin.H{
				"page":        page,
				"limit":       limit,
				"total":       total,
				"total_pages": (total + int64(limit) - 1) / int64(limit),
			},
		})
	})

	boards.GET("/:boardID", func(c *gin.Context) {
		boardID, ok := objectIDParam(c, "boardID")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var board models.Board
		if err := boardsCollection.FindOne(ctx, bson.M{"_id": boardID}).Decode(&board); err != nil {
			if err == mongo.ErrNoDocuments {
				c.JSON(http.StatusNotFound, gin.H{
					"error_code": "board_not_found",
					"message":    "Board not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to retrieve board",
			})
			return
		}

		groupCount, _ := groupsCollection.CountDocuments(ctx, bson.M{"board_id": boardID})

		// Item counts per status for the board header.
		statusCounts := gin.H{}
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: bson.D{{Key: "board_id", Value: boardID}}}},
			{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: "$status"},
				{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			}}},
		}
		if cursor, err := itemsCollection.Aggregate(ctx, pipeline); err == nil {
			defer cursor.Close(ctx)
			for cursor.Next(ctx) {
				var row struct {
					Status string `bson:"_id"`
					Count  int    `bson:"count"`
				}
				if err := cursor.Decode(&row); err == nil {
					statusCounts[row.Status] = row.Count
				}
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"board":         board,
			"group_count":   groupCount,
			"status_counts": statusCounts,
		})
	})

	boards.PUT("/:boardID", func(c *gin.Context) {
		boardID, ok := objectIDParam(c, "boardID")
		if !ok {
			return
		}

		var req models.BoardUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid update data",
			})
			return
		}

		set := bson.M{"updated_at": time.Now()}
		if req.Name != nil {
			if *req.Name == "" {
				c.JSON(http.StatusBadRequest, gin.H{
					"error_code": "invalid_input",
					"message":    "Board name must not be empty",
				})
				return
			}
			set["name"] = *req.Name
		}
		if req.Description != nil {
			set["description"] = *req.Description
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := boardsCollection.UpdateOne(ctx, bson.M{"_id": boardID}, bson.M{"$set": set})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to update board",
			})
			return
		}
		if result.MatchedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{
				"error_code": "board_not_found",
				"message":    "Board not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Board updated"})
	})

	boards.DELETE("/:boardID", func(c *gin.Context) {
		boardID, ok := objectIDParam(c, "boardID")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		result, err := boardsCollection.DeleteOne(ctx, bson.M{"_id": boardID})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to delete board",
			})
			return
		}
		if result.DeletedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{
				"error_code": "board_not_found",
				"message":    "Board not found",
			})
			return
		}

		if err := ingestion.DeleteBoardData(ctx, boardID); err != nil {
			logger.Error("Failed to delete board chunk data", "board_id", boardID.Hex(), "error", err)
		}
		if _, err := itemsCollection.DeleteMany(ctx, bson.M{"board_id": boardID}); err != nil {
			logger.Error("Failed to delete board items", "board_id", boardID.Hex(), "error", err)
		}
		if _, err := groupsCollection.DeleteMany(ctx, bson.M{"board_id": boardID}); err != nil {
			logger.Error("Failed to delete board groups", "board_id", boardID.Hex(), "error", err)
		}
		if err := storage.RemoveBoardFiles(boardID.Hex()); err != nil {
			logger.Error("Failed to delete board files", "board_id", boardID.Hex(), "error", err)
		}

		c.JSON(http.StatusOK, gin.H{"message": "Board and all associated data deleted"})
	})

	boards.POST("/:boardID/reingest", func(c *gin.Context) {
		boardID, ok := objectIDParam(c, "boardID")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := boardsCollection.FindOne(ctx, bson.M{"_id": boardID}).Err(); err != nil {
			if err == mongo.ErrNoDocuments {
				c.JSON(http.StatusNotFound, gin.H{
					"error_code": "board_not_found",
					"message":    "Board not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to retrieve board",
			})
			return
		}

		onlyFailed := c.Query("all") != "true"
		task, err := queue.NewReingestBoardTask(boardID.Hex(), onlyFailed)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "queue_error",
				"message":    "Failed to create reingest task",
			})
			return
		}

		info, err := queueClient.Enqueue(task)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "queue_error",
				"message":    "Failed to enqueue reingest task",
			})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message":     "Board reingest queued",
			"task_id":     info.ID,
			"only_failed": onlyFailed,
		})
	})
}
