package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/uid"
)

// MongoStore is a DocumentStore backed by MongoDB. Each collection path maps
// to one Mongo collection ("users/u1/cards" becomes "users.u1.cards") and the
// document id is stored as _id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

var _ DocumentStore = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log := logger.Named(logger.L(), "MongoStore")
	s := &MongoStore{client: client, db: client.Database(database), log: log}

	// Flat collections are always read by owner and date.
	for _, name := range []string{ValuationCollection, ActionLogCollection} {
		idx := mongo.IndexModel{Keys: bson.D{{Key: model.FieldUserID, Value: 1}, {Key: model.FieldDate, Value: -1}}}
		if _, err := s.db.Collection(name).Indexes().CreateOne(ctx, idx); err != nil {
			log.Warn("failed to create index", zap.String("collection", name), zap.Error(err))
		}
	}

	log.Info("connected", zap.String("database", database))
	return s, nil
}

func (s *MongoStore) collection(path string) *mongo.Collection {
	return s.db.Collection(strings.ReplaceAll(path, "/", "."))
}

// Create inserts doc under a generated id.
func (s *MongoStore) Create(ctx context.Context, collection string, doc model.Document) (string, error) {
	id := uid.New()
	body := toBSON(doc)
	body["_id"] = id
	if _, err := s.collection(collection).InsertOne(ctx, body); err != nil {
		return "", storeError("insert "+collection, err)
	}
	return id, nil
}

// Put writes doc under id, replacing any existing document.
func (s *MongoStore) Put(ctx context.Context, collection, id string, doc model.Document) error {
	stored := model.Document{}
	mergeDocument(stored, doc)
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, toBSON(stored), opts); err != nil {
		return storeError("put "+collection, err)
	}
	return nil
}

// Read returns the document, or nil when absent.
func (s *MongoStore) Read(ctx context.Context, collection, id string) (model.Document, error) {
	var raw bson.M
	err := s.collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("read "+collection, err)
	}
	delete(raw, "_id")
	return fromBSON(raw), nil
}

// Update merges partial using $set, $addToSet and $pullAll.
func (s *MongoStore) Update(ctx context.Context, collection, id string, partial model.Document) error {
	set := bson.M{}
	addToSet := bson.M{}
	pullAll := bson.M{}
	for k, v := range partial {
		switch op := v.(type) {
		case ArrayUnion:
			addToSet[k] = bson.M{"$each": []string(op)}
		case ArrayRemove:
			pullAll[k] = []string(op)
		default:
			set[k] = toBSONValue(v)
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	if len(pullAll) > 0 {
		update["$pullAll"] = pullAll
	}
	if len(update) == 0 {
		return nil
	}

	res, err := s.collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return storeError("update "+collection, err)
	}
	if res.MatchedCount == 0 {
		return notFound(collection, id)
	}
	return nil
}

// Delete removes the document.
func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return storeError("delete "+collection, err)
	}
	return nil
}

// Query pushes filters, order and limit down to MongoDB.
func (s *MongoStore) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	filter := bson.M{}
	for _, f := range q.Filters {
		cond, err := mongoCondition(f)
		if err != nil {
			return nil, err
		}
		if existing, ok := filter[f.Field].(bson.M); ok {
			if c, ok := cond.(bson.M); ok {
				for k, v := range c {
					existing[k] = v
				}
				continue
			}
		}
		filter[f.Field] = cond
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError("query "+collection, err)
	}
	defer cursor.Close(ctx)

	var records []Record
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, storeError("decode "+collection, err)
		}
		id, _ := raw["_id"].(string)
		delete(raw, "_id")
		records = append(records, Record{ID: id, Data: fromBSON(raw)})
	}
	if err := cursor.Err(); err != nil {
		return nil, storeError("query "+collection, err)
	}
	return records, nil
}

func mongoCondition(f Filter) (any, error) {
	v := toBSONValue(f.Value)
	switch f.Op {
	case OpEqual, OpArrayContains:
		return v, nil
	case OpNotEqual:
		return bson.M{"$ne": v}, nil
	case OpLess:
		return bson.M{"$lt": v}, nil
	case OpLessEqual:
		return bson.M{"$lte": v}, nil
	case OpGreater:
		return bson.M{"$gt": v}, nil
	case OpGreaterEqual:
		return bson.M{"$gte": v}, nil
	default:
		return nil, fmt.Errorf("unsupported filter operator %q", f.Op)
	}
}

// Stats returns per-collection document counts.
func (s *MongoStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"backend": "mongodb",
		"status":  "connected",
	}

	names, err := s.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		stats["status"] = "error"
		return stats, storeError("list collections", err)
	}

	var total int64
	for _, name := range names {
		count, err := s.db.Collection(name).EstimatedDocumentCount(ctx)
		if err != nil {
			continue
		}
		total += count
	}
	stats["collections"] = len(names)
	stats["total_documents"] = total

	result := s.db.RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}})
	var dbStats bson.M
	if err := result.Decode(&dbStats); err == nil {
		switch size := dbStats["dataSize"].(type) {
		case int64:
			stats["db_size_bytes"] = size
		case int32:
			stats["db_size_bytes"] = int64(size)
		case float64:
			stats["db_size_bytes"] = int64(size)
		}
	}

	return stats, nil
}

// Close closes the MongoDB connection.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toBSON(doc model.Document) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = toBSONValue(v)
	}
	return out
}

func toBSONValue(v any) any {
	switch t := v.(type) {
	case decimal.Decimal:
		d, err := primitive.ParseDecimal128(t.String())
		if err != nil {
			f, _ := t.Float64()
			return f
		}
		return d
	case model.Document:
		return toBSON(t)
	case map[string]any:
		return toBSON(model.Document(t))
	case []any:
		out := make(bson.A, len(t))
		for i, item := range t {
			out[i] = toBSONValue(item)
		}
		return out
	case ArrayUnion:
		return []string(t)
	case ArrayRemove:
		return []string{}
	default:
		return v
	}
}

func fromBSON(raw bson.M) model.Document {
	out := make(model.Document, len(raw))
	for k, v := range raw {
		out[k] = fromBSONValue(v)
	}
	return out
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time()
	case primitive.Decimal128:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case int32:
		return int64(t)
	case bson.M:
		return fromBSON(t)
	case bson.D:
		return fromBSON(t.Map())
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromBSONValue(item)
		}
		return out
	default:
		return v
	}
}
