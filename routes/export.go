package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"research-board-platform/internal/logger"
	"research-board-platform/services"
)

func SetupExportRoutes(router *gin.Engine, exporter *services.ExportService) {
	router.GET("/api/boards/:boardID/export", func(c *gin.Context) {
		boardID, ok := objectIDParam(c, "boardID")
		if !ok {
			return
		}

		format := c.DefaultQuery("format", "excel")
		if format != "excel" && format != "json" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_format",
				"message":    "Export format must be 'excel' or 'json'",
			})
			return
		}

		limit := 0
		if l, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil && l > 0 {
			limit = l
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		data, err := exporter.BuildBoardExport(ctx, boardID, limit)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				c.JSON(http.StatusNotFound, gin.H{
					"error_code": "board_not_found",
					"message":    "Board not found",
				})
				return
			}
			logger.Error("Board export failed", "board_id", boardID.Hex(), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "export_error",
				"message":    "Failed to build board export",
			})
			return
		}

		if err := exporter.StreamExport(c, data, format); err != nil {
			logger.Error("Board export streaming failed", "board_id", boardID.Hex(), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "export_error",
				"message":    "Failed to stream board export",
			})
		}
	})
}
