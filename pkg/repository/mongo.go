package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/modashop/pkg/config"
	"github.com/example/modashop/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores each collection in a MongoDB collection of the same
// name, keyed by _id.
type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.MongoDBConfig
}

func NewMongoRepository(cfg *config.MongoDBConfig) (*MongoRepository, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes used by the order reports.
func (m *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.database.Collection(models.OrdersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}

func (m *MongoRepository) GetDocument(ctx context.Context, collection, id string) (Snapshot, error) {
	var doc Document
	err := m.database.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	return toSnapshot(doc), nil
}

func (m *MongoRepository) SetDocument(ctx context.Context, collection, id string, fields Document, merge bool) error {
	coll := m.database.Collection(collection)

	if !merge {
		plain, stamped := splitTimestamps(fields)
		now := time.Now().UTC()
		for _, k := range stamped {
			plain[k] = now
		}
		_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, plain, options.Replace().SetUpsert(true))
		return err
	}

	_, err := coll.UpdateOne(ctx, bson.M{"_id": id}, updateSpec(fields), options.Update().SetUpsert(true))
	return err
}

func (m *MongoRepository) UpdateDocument(ctx context.Context, collection, id string, fields Document) error {
	res, err := m.database.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, updateSpec(fields))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepository) QueryDocuments(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	filter, err := filterSpec(q.Filters)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := m.database.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []Document
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]Snapshot, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toSnapshot(doc))
	}
	return out, nil
}

func (m *MongoRepository) CountDocuments(ctx context.Context, collection string, filters ...Filter) (int64, error) {
	filter, err := filterSpec(filters)
	if err != nil {
		return 0, err
	}
	return m.database.Collection(collection).CountDocuments(ctx, filter)
}

func toSnapshot(doc Document) Snapshot {
	id := fmt.Sprint(doc["_id"])
	delete(doc, "_id")
	return Snapshot{ID: id, Data: doc}
}

// updateSpec maps ServerTimestamp fields onto $currentDate so the database
// clock is used.
func updateSpec(fields Document) bson.M {
	plain, stamped := splitTimestamps(fields)
	update := bson.M{}
	if len(plain) > 0 {
		update["$set"] = plain
	}
	if len(stamped) > 0 {
		current := bson.M{}
		for _, k := range stamped {
			current[k] = true
		}
		update["$currentDate"] = current
	}
	return update
}

var mongoOps = map[Op]string{
	OpEq:  "$eq",
	OpGt:  "$gt",
	OpGte: "$gte",
	OpLt:  "$lt",
	OpLte: "$lte",
}

func filterSpec(filters []Filter) (bson.D, error) {
	filter := bson.D{}
	for _, f := range filters {
		op, ok := mongoOps[f.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
		filter = append(filter, bson.E{Key: f.Field, Value: bson.M{op: f.Value}})
	}
	return filter, nil
}
