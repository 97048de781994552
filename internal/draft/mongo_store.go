package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_till/internal/clock"
	"github.com/fjod/go_till/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoStore struct {
	collection *mongo.Collection
	clock      clock.Clock
}

func NewMongoStore(database *mongo.Database, clk clock.Clock) Store {
	return &mongoStore{
		collection: database.Collection("drafts"),
		clock:      clk,
	}
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func (m *mongoStore) Save(ctx context.Context, d Draft) (Draft, error) {
	now := m.clock.Now()

	if d.Reference != "" {
		var existing Draft
		err := m.collection.FindOne(ctx, bson.M{"reference": d.Reference}).Decode(&existing)
		if err == nil {
			d.ID = existing.ID
			d.CreatedAt = existing.CreatedAt
			d.UpdatedAt = now
			update := bson.M{"$set": bson.M{
				"title":        d.Title,
				"customer_ref": d.CustomerRef,
				"snapshot":     d.Snapshot,
				"total":        d.Total,
				"updated_at":   now,
			}}
			if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": existing.ID}, update); err != nil {
				return Draft{}, fmt.Errorf("failed to update draft: %w", err)
			}
			return d, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return Draft{}, fmt.Errorf("failed to look up draft by reference: %w", err)
		}
	}

	d.ID = uuid.New().String()
	d.CreatedAt = now
	d.UpdatedAt = now
	if _, err := m.collection.InsertOne(ctx, d); err != nil {
		return Draft{}, fmt.Errorf("failed to insert draft: %w", err)
	}
	return d, nil
}

func (m *mongoStore) List(ctx context.Context) ([]Summary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer cursor.Close(ctx)

	var summaries []Summary
	for cursor.Next(ctx) {
		var d Draft
		if err := cursor.Decode(&d); err != nil {
			return nil, fmt.Errorf("failed to decode draft: %w", err)
		}
		summaries = append(summaries, summarize(d))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return summaries, nil
}

func (m *mongoStore) Load(ctx context.Context, id string) (Draft, error) {
	var d Draft
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Draft{}, domain.ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("failed to load draft: %w", err)
	}
	return d, nil
}

func (m *mongoStore) Discard(ctx context.Context, id string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to discard draft: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CreateIndexes sets up the reference lookup index used by upsert-by-reference.
func CreateIndexes(ctx context.Context, database *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"reference": bson.M{"$gt": ""}}),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	_, err := database.Collection("drafts").Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func summarize(d Draft) Summary {
	return Summary{
		ID:          d.ID,
		Reference:   d.Reference,
		Title:       d.Title,
		CustomerRef: d.CustomerRef,
		Total:       d.Total,
		CreatedAt:   d.CreatedAt,
	}
}
