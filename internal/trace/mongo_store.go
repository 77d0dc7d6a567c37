package trace

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is an optional durable Store backend, selected when
// TRACE_STORE=mongo. Grounded on features/runlog/mongo's thin delegating
// wrapper, adapted to upsert-by-trace_id whole-document writes (matching
// this gateway's evolving-document TraceRecord rather than the teacher's
// append-only event log) using go.mongodb.org/mongo-driver/v2 directly.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps an existing collection. Callers are responsible for
// connecting the *mongo.Client and selecting the database.
func NewMongoStore(coll *mongo.Collection) (*MongoStore, error) {
	if coll == nil {
		return nil, fmt.Errorf("trace: mongo collection is required")
	}
	return &MongoStore{coll: coll}, nil
}

type mongoDoc struct {
	TraceID string `bson:"trace_id"`
	Record  Record `bson:"record"`
}

// Put upserts the record keyed by trace_id.
func (m *MongoStore) Put(r Record) error {
	ctx := context.Background()
	filter := bson.M{"trace_id": r.Metadata.TraceID}
	update := bson.M{"$set": mongoDoc{TraceID: r.Metadata.TraceID, Record: r}}
	opts := options.UpdateOne().SetUpsert(true)
	_, err := m.coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("trace: mongo upsert: %w", err)
	}
	return nil
}

// Get retrieves a trace by ID.
func (m *MongoStore) Get(ctx context.Context, traceID string) (Record, error) {
	var doc mongoDoc
	err := m.coll.FindOne(ctx, bson.M{"trace_id": traceID}).Decode(&doc)
	if err != nil {
		return Record{}, fmt.Errorf("trace: mongo find: %w", err)
	}
	return doc.Record, nil
}

// List returns traces matching filter, newest first.
func (m *MongoStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["record.metadata.status"] = string(filter.Status)
	}
	if filter.HasErrors != nil {
		if *filter.HasErrors {
			q["record.metadata.stats.errors"] = bson.M{"$gt": 0}
		} else {
			q["record.metadata.stats.errors"] = 0
		}
	}
	if filter.Search != "" {
		q["$or"] = []bson.M{
			{"trace_id": bson.M{"$regex": filter.Search}},
			{"record.events.summary": bson.M{"$regex": filter.Search}},
		}
	}
	opts := options.Find().SetSort(bson.M{"record.metadata.start_time": -1})
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts = opts.SetSkip(int64(filter.Offset))
	}
	cur, err := m.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("trace: mongo find: %w", err)
	}
	defer cur.Close(ctx)
	var out []Record
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Record)
	}
	return out, cur.Err()
}
