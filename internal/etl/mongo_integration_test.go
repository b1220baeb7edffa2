//go:build integration

package etl

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/BartekS5/requestsync/pkg/database"
)

// Requires a reachable MongoDB, e.g.
// MONGO_TEST_URI=mongodb://localhost:27017 go test -tags integration ./internal/etl/...
func TestMongoSource_FetchWindow(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := database.ConnectMongo(ctx, uri)
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	coll := client.Database("requestsync_test").Collection(fmt.Sprintf("requests_%d", time.Now().UnixNano()))
	defer coll.Drop(context.Background())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = coll.InsertMany(ctx, []interface{}{
		bson.M{"_id": "b", "requestDate": base.Add(time.Minute)},
		bson.M{"_id": "a", "requestDate": base.Add(time.Minute)},
		bson.M{"_id": "c", "requestDate": base},
		bson.M{"_id": "edge", "requestDate": base.Add(5 * time.Minute)},
		bson.M{"_id": "out", "requestDate": base.Add(5*time.Minute + time.Millisecond)},
	})
	require.NoError(t, err)

	src := NewMongoSource(coll, "requestDate", "_id", zap.NewNop().Sugar())
	docs, err := src.Fetch(ctx, base, base.Add(5*time.Minute))
	require.NoError(t, err)

	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"c", "a", "b", "edge"}, ids)
}
