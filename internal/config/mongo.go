package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson" // Use bson for index keys
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Boards collection indexes
	boardsCollection := db.Collection("boards")
	boardIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "name", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}
	_, err := boardsCollection.Indexes().CreateMany(context.Background(), boardIndexes)
	if err != nil {
		return err
	}

	// Items collection indexes
	itemsCollection := db.Collection("items")
	itemIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "board_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "board_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "file_hash", Value: 1}},
		},
	}
	_, err = itemsCollection.Indexes().CreateMany(context.Background(), itemIndexes)
	if err != nil {
		return err
	}

	// Groups collection indexes
	groupsCollection := db.Collection("groups")
	groupIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "board_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "board_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err = groupsCollection.Indexes().CreateMany(context.Background(), groupIndexes)
	if err != nil {
		return err
	}

	// Chunks collection indexes for retrieval filters and ordinal reads
	chunksCollection := db.Collection("chunks")
	chunkIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chunk_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "board_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "order", Value: 1}},
		},
	}
	_, err = chunksCollection.Indexes().CreateMany(context.Background(), chunkIndexes)
	if err != nil {
		return err
	}

	return nil
}
