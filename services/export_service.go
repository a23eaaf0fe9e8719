package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"research-board-platform/models"
)

// BoardExportData is the structured dump of a board: its items and
// their processed chunks.
type BoardExportData struct {
	ExportInfo BoardExportInfo `json:"export_info"`
	Items      []ItemExport    `json:"items"`
	Chunks     []ChunkExport   `json:"chunks"`
}

type BoardExportInfo struct {
	BoardID     string    `json:"board_id"`
	BoardName   string    `json:"board_name"`
	Description string    `json:"description,omitempty"`
	ExportDate  time.Time `json:"export_date"`
	ItemCount   int       `json:"item_count"`
	ChunkCount  int       `json:"chunk_count"`
}

type ItemExport struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Origin      string    `json:"origin"`
	Status      string    `json:"status"`
	AcquiredVia string    `json:"acquired_via,omitempty"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type ChunkExport struct {
	ChunkID   string `json:"chunk_id"`
	ItemID    string `json:"item_id"`
	Order     int    `json:"order"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	CharCount int    `json:"char_count"`
	Text      string `json:"text"`
}

// ExportService dumps a board's processed content for offline review.
type ExportService struct {
	boards *mongo.Collection
	items  *mongo.Collection
	chunks *mongo.Collection
}

func NewExportService(db *mongo.Database) *ExportService {
	return &ExportService{
		boards: db.Collection("boards"),
		items:  db.Collection("items"),
		chunks: db.Collection("chunks"),
	}
}

// BuildBoardExport collects the board's items and chunks. A positive
// limit caps the number of exported chunks.
func (es *ExportService) BuildBoardExport(ctx context.Context, boardID primitive.ObjectID, limit int) (*BoardExportData, error) {
	var board models.Board
	if err := es.boards.FindOne(ctx, bson.M{"_id": boardID}).Decode(&board); err != nil {
		return nil, fmt.Errorf("failed to load board: %w", err)
	}

	itemCursor, err := es.items.Find(ctx, bson.M{"board_id": boardID},
		options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch items: %w", err)
	}
	defer itemCursor.Close(ctx)

	var items []models.Item
	if err := itemCursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}

	chunkOpts := options.Find().
		SetSort(bson.D{{Key: "item_id", Value: 1}, {Key: "order", Value: 1}}).
		SetProjection(bson.M{"vector": 0})
	if limit > 0 {
		chunkOpts.SetLimit(int64(limit))
	}
	chunkCursor, err := es.chunks.Find(ctx, bson.M{"board_id": boardID}, chunkOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer chunkCursor.Close(ctx)

	var chunks []models.ContentChunk
	if err := chunkCursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode chunks: %w", err)
	}

	itemExports := make([]ItemExport, len(items))
	for i, item := range items {
		itemExports[i] = ItemExport{
			ID:          item.ID.Hex(),
			Kind:        string(item.Kind),
			Title:       item.Title,
			Origin:      item.Origin,
			Status:      item.Status,
			AcquiredVia: item.AcquiredVia,
			ChunkCount:  item.ChunkCount,
			CreatedAt:   item.CreatedAt,
		}
	}

	chunkExports := make([]ChunkExport, len(chunks))
	for i, ch := range chunks {
		chunkExports[i] = ChunkExport{
			ChunkID:   ch.ChunkID,
			ItemID:    ch.ItemID.Hex(),
			Order:     ch.Order,
			StartTime: formatSeconds(ch.StartTime),
			EndTime:   formatSeconds(ch.EndTime),
			CharCount: ch.CharCount,
			Text:      ch.Text,
		}
	}

	return &BoardExportData{
		ExportInfo: BoardExportInfo{
			BoardID:     boardID.Hex(),
			BoardName:   board.Name,
			Description: board.Description,
			ExportDate:  time.Now(),
			ItemCount:   len(itemExports),
			ChunkCount:  len(chunkExports),
		},
		Items:  itemExports,
		Chunks: chunkExports,
	}, nil
}

// StreamExport writes the export to the HTTP response as a download.
func (es *ExportService) StreamExport(c *gin.Context, data *BoardExportData, format string) error {
	baseName := fmt.Sprintf("board_%s_export", data.ExportInfo.BoardID)

	switch format {
	case "json":
		jsonData, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", baseName))
		c.Header("Content-Length", strconv.Itoa(len(jsonData)))
		c.Data(http.StatusOK, "application/json", jsonData)
		return nil

	case "excel":
		buf, err := es.buildWorkbook(data)
		if err != nil {
			return err
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", baseName))
		c.Header("Content-Length", strconv.Itoa(buf.Len()))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
		return nil

	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// buildWorkbook renders the export as an xlsx with Items, Chunks and
// Summary sheets.
func (es *ExportService) buildWorkbook(data *BoardExportData) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Printf("Error closing Excel file: %v\n", err)
		}
	}()

	itemsSheet := "Items"
	index, err := f.NewSheet(itemsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create items sheet: %w", err)
	}
	f.SetActiveSheet(index)

	itemHeaders := []string{
		"ID", "Kind", "Title", "Origin", "Status", "Acquired Via", "Chunk Count", "Created At",
	}
	for i, header := range itemHeaders {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(itemsSheet, cell, header)
	}
	for rowIdx, item := range data.Items {
		row := rowIdx + 2
		f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), item.ID)
		f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), item.Kind)
		f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), item.Title)
		f.SetCellValue(itemsSheet, fmt.Sprintf("D%d", row), item.Origin)
		f.SetCellValue(itemsSheet, fmt.Sprintf("E%d", row), item.Status)
		f.SetCellValue(itemsSheet, fmt.Sprintf("F%d", row), item.AcquiredVia)
		f.SetCellValue(itemsSheet, fmt.Sprintf("G%d", row), item.ChunkCount)
		f.SetCellValue(itemsSheet, fmt.Sprintf("H%d", row), item.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	for i := range itemHeaders {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		f.SetColWidth(itemsSheet, col, col, 20)
	}

	chunksSheet := "Chunks"
	if _, err := f.NewSheet(chunksSheet); err != nil {
		return nil, fmt.Errorf("failed to create chunks sheet: %w", err)
	}

	chunkHeaders := []string{
		"Chunk ID", "Item ID", "Order", "Start (s)", "End (s)", "Chars", "Text",
	}
	for i, header := range chunkHeaders {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(chunksSheet, cell, header)
	}
	for rowIdx, ch := range data.Chunks {
		row := rowIdx + 2
		f.SetCellValue(chunksSheet, fmt.Sprintf("A%d", row), ch.ChunkID)
		f.SetCellValue(chunksSheet, fmt.Sprintf("B%d", row), ch.ItemID)
		f.SetCellValue(chunksSheet, fmt.Sprintf("C%d", row), ch.Order)
		f.SetCellValue(chunksSheet, fmt.Sprintf("D%d", row), ch.StartTime)
		f.SetCellValue(chunksSheet, fmt.Sprintf("E%d", row), ch.EndTime)
		f.SetCellValue(chunksSheet, fmt.Sprintf("F%d", row), ch.CharCount)
		f.SetCellValue(chunksSheet, fmt.Sprintf("G%d", row), ch.Text)
	}
	f.SetColWidth(chunksSheet, "G:G", "G:G", 80)

	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}

	statusCounts := make(map[string]int)
	kindCounts := make(map[string]int)
	for _, item := range data.Items {
		statusCounts[item.Status]++
		kindCounts[item.Kind]++
	}

	summaryData := [][]interface{}{
		{"Board Export", ""},
		{"Board", data.ExportInfo.BoardName},
		{"Board ID", data.ExportInfo.BoardID},
		{"Description", data.ExportInfo.Description},
		{"Export Date", data.ExportInfo.ExportDate.Format("2006-01-02 15:04:05")},
		{"Items", data.ExportInfo.ItemCount},
		{"Chunks", data.ExportInfo.ChunkCount},
		{"", ""},
		{"Items by Status", ""},
		{models.StatusReady, statusCounts[models.StatusReady]},
		{models.StatusPending, statusCounts[models.StatusPending]},
		{models.StatusProcessing, statusCounts[models.StatusProcessing]},
		{models.StatusFailed, statusCounts[models.StatusFailed]},
		{"", ""},
		{"Items by Kind", ""},
		{string(models.SourceVideo), kindCounts[string(models.SourceVideo)]},
		{string(models.SourceWebpage), kindCounts[string(models.SourceWebpage)]},
		{string(models.SourceDocument), kindCounts[string(models.SourceDocument)]},
		{string(models.SourceMedia), kindCounts[string(models.SourceMedia)]},
	}
	for i, row := range summaryData {
		for j, cell := range row {
			cellRef := fmt.Sprintf("%c%d", 'A'+j, i+1)
			f.SetCellValue(summarySheet, cellRef, cell)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return &buf, nil
}

func formatSeconds(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
