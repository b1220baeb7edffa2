package utils

import (
	"math"
	"testing"
	"time"

	"github.com/BartekS5/requestsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalizeID(t *testing.T) {
	oid, err := primitive.ObjectIDFromHex("65a1b2c3d4e5f60718293a4b")
	require.NoError(t, err)

	assert.Equal(t, "65a1b2c3d4e5f60718293a4b", NormalizeID(oid))
	assert.Equal(t, "65a1b2c3d4e5f60718293a4b", NormalizeID(&oid))
	assert.Equal(t, "x1", NormalizeID("x1"))
	assert.Equal(t, "42", NormalizeID(int32(42)))
	assert.Equal(t, "", NormalizeID(nil))
}

func TestNormalizeValue_Nested(t *testing.T) {
	oid := primitive.NewObjectID()
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	got := NormalizeValue(primitive.M{
		"owner": oid,
		"sent":  primitive.NewDateTimeFromTime(ts),
		"tags":  primitive.A{"a", primitive.Null{}},
		"route": primitive.D{{Key: "id", Value: oid}},
	})

	m, ok := got.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, oid.Hex(), m["owner"])
	assert.True(t, ts.Equal(m["sent"].(time.Time)))
	assert.Equal(t, []interface{}{"a", nil}, m["tags"])
	assert.Equal(t, map[string]interface{}{"id": oid.Hex()}, m["route"])
}

func TestConvertField(t *testing.T) {
	v, err := ConvertField("12", models.FieldSpec{Name: "status", Type: models.TypeInt})
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	v, err = ConvertField(int32(1), models.FieldSpec{Name: "isCopied", Type: models.TypeBool})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = ConvertField("2024-01-01", models.FieldSpec{Name: "sentTime", Type: models.TypeDateTime})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), v)

	v, err = ConvertField(nil, models.FieldSpec{Name: "credit", Type: models.TypeFloat})
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = ConvertField("abc", models.FieldSpec{Name: "status", Type: models.TypeInt})
	assert.Error(t, err)

	_, err = ConvertField(1.5, models.FieldSpec{Name: "status", Type: models.TypeInt})
	assert.Error(t, err)
}

func TestConvertToInt_FloatRange(t *testing.T) {
	v, err := ConvertToInt(float64(1 << 53))
	require.NoError(t, err)
	assert.Equal(t, int64(1<<53), v)

	v, err = ConvertToInt(float64(math.MinInt64))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), v)

	for _, f := range []float64{math.Inf(1), math.Inf(-1), math.NaN(), 1e19, -1e19, float64(math.MaxInt64)} {
		_, err := ConvertToInt(f)
		assert.Error(t, err, "value %v", f)
	}
}
