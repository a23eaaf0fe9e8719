package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"research-board-platform/internal/config"
	"research-board-platform/internal/logger"
	"research-board-platform/internal/telemetry"
	"research-board-platform/models"
	"research-board-platform/services"
)

func SetupChatRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database, contexts *services.ContextService, answers *services.AnswerService, metrics *telemetry.Metrics) {
	boardsCollection := db.Collection("boards")
	itemsCollection := db.Collection("items")

	router.POST("/api/chat", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid chat request",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		boardID, err := primitive.ObjectIDFromHex(req.BoardID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_id",
				"message":    "Invalid board_id format",
			})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
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

		topK := req.TopK
		if topK <= 0 {
			topK = cfg.ChatTopK
		}

		assembled, err := contexts.AssembleContext(ctx, req.BoardID, req.Query, topK, req.ItemIDs)
		if err != nil {
			logger.Error("Context assembly failed", "board_id", req.BoardID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "retrieval_error",
				"message":    "Failed to assemble chat context",
			})
			return
		}

		if len(assembled.Contexts) == 0 {
			c.JSON(http.StatusNotFound, gin.H{
				"error_code": "no_content",
				"message":    "No indexed content found for this query",
			})
			return
		}

		answer, err := answers.Answer(ctx, req.Query, assembled.Contexts)
		if err != nil {
			logger.Error("Answer generation failed", "board_id", req.BoardID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "ai_generation_error",
				"message":    "Failed to generate answer",
			})
			return
		}

		if metrics != nil && answer.TokensUsed > 0 {
			model := cfg.GeminiModel
			if cfg.AIProvider == "openai" {
				model = cfg.OpenAIChatModel
			}
			metrics.RecordTokensUsed(int64(answer.TokensUsed), model)
		}

		// The single-item shortcut feeds every chunk to the model but
		// echoes only the first few back to the caller.
		echoed := assembled.Contexts
		if assembled.Shortcut && len(echoed) > 10 {
			echoed = echoed[:10]
		}

		c.JSON(http.StatusOK, models.ChatResponse{
			Answer:     answer.Text,
			Contexts:   echoed,
			Items:      loadItemRefs(ctx, itemsCollection, assembled.ItemIDs),
			TokensUsed: answer.TokensUsed,
			Timestamp:  time.Now(),
		})
	})
}

// loadItemRefs resolves contributing item ids to display references,
// keeping assembly order. Unresolvable ids are skipped.
func loadItemRefs(ctx context.Context, items *mongo.Collection, ids []string) []models.ItemRef {
	refs := make([]models.ItemRef, 0, len(ids))
	if len(ids) == 0 {
		return refs
	}

	objIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, raw := range ids {
		if id, err := primitive.ObjectIDFromHex(raw); err == nil {
			objIDs = append(objIDs, id)
		}
	}

	cursor, err := items.Find(ctx, bson.M{"_id": bson.M{"$in": objIDs}})
	if err != nil {
		logger.Error("Failed to load item refs", "error", err)
		return refs
	}
	defer cursor.Close(ctx)

	byID := make(map[string]models.Item)
	for cursor.Next(ctx) {
		var item models.Item
		if err := cursor.Decode(&item); err == nil {
			byID[item.ID.Hex()] = item
		}
	}

	for _, raw := range ids {
		if item, ok := byID[raw]; ok {
			refs = append(refs, models.ItemRef{
				ID:    item.ID.Hex(),
				Title: item.Title,
				Kind:  item.Kind,
			})
		}
	}
	return refs
}
