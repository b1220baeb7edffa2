package etl

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/BartekS5/requestsync/pkg/utils"
)

// MongoSource reads documents of one collection by ordering timestamp.
type MongoSource struct {
	coll           *mongo.Collection
	timestampField string
	idField        string
	log            *zap.SugaredLogger
}

func NewMongoSource(coll *mongo.Collection, timestampField, idField string, log *zap.SugaredLogger) *MongoSource {
	return &MongoSource{
		coll:           coll,
		timestampField: timestampField,
		idField:        idField,
		log:            log,
	}
}

// Fetch returns the documents with from <= timestamp <= to, sorted by
// timestamp and then id so that repeated fetches of a window agree on order.
func (m *MongoSource) Fetch(ctx context.Context, from, to time.Time) ([]Document, error) {
	filter := rangeFilter(m.timestampField, from, to)
	findOpts := options.Find().SetSort(bson.D{
		{Key: m.timestampField, Value: 1},
		{Key: m.idField, Value: 1},
	})

	cur, err := m.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", m.coll.Name(), err)
	}
	defer cur.Close(ctx)

	var docs []Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding document %d of window: %w", len(docs), err)
		}
		doc, err := documentFromBSON(raw, m.idField, m.timestampField)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", m.coll.Name(), err)
	}

	m.log.Debugw("window fetched",
		"collection", m.coll.Name(),
		"from", from,
		"to", to,
		"documents", len(docs),
	)
	return docs, nil
}

func rangeFilter(field string, from, to time.Time) bson.M {
	return bson.M{field: bson.M{"$gte": from, "$lte": to}}
}

// documentFromBSON normalizes a decoded document. The id and timestamp must be
// present; the range query guarantees the timestamp, so a missing or odd one
// means the collection holds data the cursor cannot order.
func documentFromBSON(raw bson.M, idField, timestampField string) (Document, error) {
	id := utils.NormalizeID(raw[idField])
	if id == "" {
		return Document{}, fmt.Errorf("document without %s", idField)
	}
	ts, err := utils.ConvertDateTime(raw[timestampField], "")
	if err != nil {
		return Document{}, fmt.Errorf("document %s: field %s: %w", id, timestampField, err)
	}

	fields := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		fields[k] = utils.NormalizeValue(v)
	}
	return Document{ID: id, Timestamp: ts.UTC(), Fields: fields}, nil
}
