package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"research-board-platform/models"
)

func SetupGroupRoutes(router *gin.Engine, db *mongo.Database) {
	boardsCollection := db.Collection("boards")
	itemsCollection := db.Collection("items")
	groupsCollection := db.Collection("groups")

	api := router.Group("/api")

	api.POST("/boards/:boardID/groups", func(c *gin.Context) {
		boardID, ok := objectIDParam(c, "boardID")
		if !ok {
			return
		}

		var req models.GroupCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid group data",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if !boardExists(ctx, c, boardsCollection, boardID) {
			return
		}

		memberIDs, ok := parseMemberIDs(c, req.ItemIDs)
		if !ok {
			return
		}
		if !membersOnBoard(ctx, c, itemsCollection, boardID, memberIDs) {
			return
		}

		// Group names scope chat queries, so duplicates on a board would
		// be ambiguous.
		err := groupsCollection.FindOne(ctx, bson.M{"board_id": boardID, "name": req.Name}).Err()
		if err == nil {
			c.JSON(http.StatusConflict, gin.H{
				"error_code": "duplicate_group",
				"message":    "A group with this name already exists on the board",
			})
			return
		}

		now := time.Now()
		group := models.Group{
			ID:        primitive.NewObjectID(),
			BoardID:   boardID,
			Name:      req.Name,
			ItemIDs:   memberIDs,
			Template:  req.Template,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if _, err := groupsCollection.InsertOne(ctx, group); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to create group",
			})
			return
		}

		c.JSON(http.StatusCreated, group)
	})

	api.GET("/boards/:boardID/groups", func(c *gin.Context) {
		boardID, ok := objectIDParam(c, "boardID")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cursor, err := groupsCollection.Find(ctx, bson.M{"board_id": boardID},
			options.Find().SetSort(bson.M{"created_at": 1}))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to retrieve groups",
			})
			return
		}
		defer cursor.Close(ctx)

		groups := make([]models.Group, 0)
		if err := cursor.All(ctx, &groups); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to decode groups",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"groups": groups,
			"total":  len(groups),
		})
	})

	api.PUT("/groups/:groupID", func(c *gin.Context) {
		groupID, ok := objectIDParam(c, "groupID")
		if !ok {
			return
		}

		var req models.GroupUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid update data",
			})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var group models.Group
		if err := groupsCollection.FindOne(ctx, bson.M{"_id": groupID}).Decode(&group); err != nil {
			if err == mongo.ErrNoDocuments {
				c.JSON(http.StatusNotFound, gin.H{
					"error_code": "group_not_found",
					"message":    "Group not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to retrieve group",
			})
			return
		}

		set := bson.M{"updated_at": time.Now()}
		if req.Name != nil {
			if *req.Name == "" {
				c.JSON(http.StatusBadRequest, gin.H{
					"error_code": "invalid_input",
					"message":    "Group name must not be empty",
				})
				return
			}
			set["name"] = *req.Name
		}
		if req.Template != nil {
			set["template"] = *req.Template
		}
		if req.ItemIDs != nil {
			if len(*req.ItemIDs) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{
					"error_code": "invalid_input",
					"message":    "A group must keep at least one item",
				})
				return
			}
			memberIDs, ok := parseMemberIDs(c, *req.ItemIDs)
			if !ok {
				return
			}
			if !membersOnBoard(ctx, c, itemsCollection, group.BoardID, memberIDs) {
				return
			}
			set["item_ids"] = memberIDs
		}

		if _, err := groupsCollection.UpdateOne(ctx, bson.M{"_id": groupID}, bson.M{"$set": set}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to update group",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Group updated"})
	})

	api.DELETE("/groups/:groupID", func(c *gin.Context) {
		groupID, ok := objectIDParam(c, "groupID")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := groupsCollection.DeleteOne(ctx, bson.M{"_id": groupID})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "database_error",
				"message":    "Failed to delete group",
			})
			return
		}
		if result.DeletedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{
				"error_code": "group_not_found",
				"message":    "Group not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
	})
}

// parseMemberIDs converts request item ids, writing the error response
// on the first malformed one.
func parseMemberIDs(c *gin.Context, ids []string) ([]primitive.ObjectID, bool) {
	memberIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, raw := range ids {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_item_id",
				"message":    "Invalid item id: " + raw,
			})
			return nil, false
		}
		memberIDs = append(memberIDs, id)
	}
	return memberIDs, true
}

// membersOnBoard verifies every member item lives on the board.
func membersOnBoard(ctx context.Context, c *gin.Context, items *mongo.Collection, boardID primitive.ObjectID, memberIDs []primitive.ObjectID) bool {
	count, err := items.CountDocuments(ctx, bson.M{
		"_id":      bson.M{"$in": memberIDs},
		"board_id": boardID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "database_error",
			"message":    "Failed to verify group items",
		})
		return false
	}
	if int(count) != len(memberIDs) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "items_not_on_board",
			"message":    "All group items must belong to the board",
		})
		return false
	}
	return true
}
