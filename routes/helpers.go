package routes

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// objectIDParam parses a path parameter as an ObjectID, writing the
// error response itself when the value is malformed.
func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_id",
			"message":    fmt.Sprintf("Invalid %s format", name),
		})
		return primitive.NilObjectID, false
	}
	return id, true
}

// parsePagination reads page/limit query parameters with sane bounds.
func parsePagination(c *gin.Context, defaultLimit, maxLimit int) (page, limit int) {
	page = 1
	limit = defaultLimit
	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit))); err == nil && l > 0 && l <= maxLimit {
		limit = l
	}
	return page, limit
}
