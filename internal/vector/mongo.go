package vector

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"research-board-platform/internal/config"
)

// MongoIndex keeps vectors on the chunk documents themselves. With
// Atlas vector search enabled it runs a $vectorSearch stage; otherwise
// it scans the scoped chunks and scores them in process, which is
// plenty for board-sized corpora.
type MongoIndex struct {
	collection    *mongo.Collection
	searchEnabled bool
	indexName     string
}

// NewMongoIndex builds the Mongo-backed index over the chunks
// collection.
func NewMongoIndex(collection *mongo.Collection, cfg *config.Config) *MongoIndex {
	indexName := cfg.VectorIndexName
	if indexName == "" {
		indexName = "chunks_vector"
	}
	return &MongoIndex{
		collection:    collection,
		searchEnabled: cfg.VectorSearchEnabled,
		indexName:     indexName,
	}
}

// chunkDoc is the stored chunk shape this index reads and writes.
type chunkDoc struct {
	ChunkID   string             `bson:"chunk_id"`
	ItemID    primitive.ObjectID `bson:"item_id"`
	BoardID   primitive.ObjectID `bson:"board_id"`
	Text      string             `bson:"text"`
	Order     int                `bson:"order"`
	StartTime *float64           `bson:"start_time,omitempty"`
	EndTime   *float64           `bson:"end_time,omitempty"`
	Vector    []float32          `bson:"vector,omitempty"`
	Score     float64            `bson:"score,omitempty"`
}

// Upsert writes vectors onto the stored chunk documents, keyed by
// chunk id.
func (m *MongoIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]mongo.WriteModel, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"chunk_id": d.ChunkID}).
			SetUpdate(bson.M{"$set": bson.M{"vector": d.Vector}}).
			SetUpsert(false))
	}
	_, err := m.collection.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("vector bulk write failed: %w", err)
	}
	return nil
}

// DeleteItem removes an item's chunk documents, vectors included.
func (m *MongoIndex) DeleteItem(ctx context.Context, boardID, itemID string) error {
	boardOID, itemOID, err := parseIDs(boardID, itemID)
	if err != nil {
		return err
	}
	_, err = m.collection.DeleteMany(ctx, bson.M{"board_id": boardOID, "item_id": itemOID})
	return err
}

// DeleteBoard removes every chunk document of a board.
func (m *MongoIndex) DeleteBoard(ctx context.Context, boardID string) error {
	boardOID, err := primitive.ObjectIDFromHex(boardID)
	if err != nil {
		return fmt.Errorf("invalid board id: %w", err)
	}
	_, err = m.collection.DeleteMany(ctx, bson.M{"board_id": boardOID})
	return err
}

// Search runs the scoped similarity search.
func (m *MongoIndex) Search(ctx context.Context, q Query) ([]Result, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if m.searchEnabled {
		return m.atlasSearch(ctx, q)
	}
	return m.scanSearch(ctx, q)
}

func (m *MongoIndex) atlasSearch(ctx context.Context, q Query) ([]Result, error) {
	boardOID, err := primitive.ObjectIDFromHex(q.BoardID)
	if err != nil {
		return nil, fmt.Errorf("invalid board id: %w", err)
	}

	filter := bson.M{"board_id": boardOID}
	if len(q.ItemIDs) > 0 {
		itemOIDs, err := toObjectIDs(q.ItemIDs)
		if err != nil {
			return nil, err
		}
		filter["item_id"] = bson.M{"$in": itemOIDs}
	}

	numCandidates := q.TopK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         m.indexName,
			"path":          "vector",
			"queryVector":   q.Vector,
			"numCandidates": numCandidates,
			"limit":         q.TopK,
			"filter":        filter,
		}}},
		{{Key: "$project", Value: bson.M{
			"chunk_id":   1,
			"item_id":    1,
			"board_id":   1,
			"text":       1,
			"order":      1,
			"start_time": 1,
			"end_time":   1,
			"vector":     1,
			"score":      bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []Result
	for cursor.Next(ctx) {
		var doc chunkDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		r := toResult(doc)
		r.Score = doc.Score
		results = append(results, r)
	}
	return results, cursor.Err()
}

func (m *MongoIndex) scanSearch(ctx context.Context, q Query) ([]Result, error) {
	boardOID, err := primitive.ObjectIDFromHex(q.BoardID)
	if err != nil {
		return nil, fmt.Errorf("invalid board id: %w", err)
	}

	filter := bson.M{
		"board_id": boardOID,
		"vector":   bson.M{"$exists": true, "$ne": nil},
	}
	if len(q.ItemIDs) > 0 {
		itemOIDs, err := toObjectIDs(q.ItemIDs)
		if err != nil {
			return nil, err
		}
		filter["item_id"] = bson.M{"$in": itemOIDs}
	}

	cursor, err := m.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("chunk scan failed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []Result
	for cursor.Next(ctx) {
		var doc chunkDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		r := toResult(doc)
		r.Score = CosineSimilarity(q.Vector, doc.Vector)
		results = append(results, r)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return topResults(results, q.TopK), nil
}

func toResult(doc chunkDoc) Result {
	return Result{Document: Document{
		ChunkID:   doc.ChunkID,
		ItemID:    doc.ItemID.Hex(),
		BoardID:   doc.BoardID.Hex(),
		Text:      doc.Text,
		Order:     doc.Order,
		StartTime: doc.StartTime,
		EndTime:   doc.EndTime,
		Vector:    doc.Vector,
	}}
}

func parseIDs(boardID, itemID string) (primitive.ObjectID, primitive.ObjectID, error) {
	boardOID, err := primitive.ObjectIDFromHex(boardID)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, fmt.Errorf("invalid board id: %w", err)
	}
	itemOID, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, fmt.Errorf("invalid item id: %w", err)
	}
	return boardOID, itemOID, nil
}

func toObjectIDs(ids []string) ([]primitive.ObjectID, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid item id %q: %w", id, err)
		}
		oids = append(oids, oid)
	}
	return oids, nil
}
