package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/requestsync/pkg/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NormalizeID renders a source identifier as plain text. ObjectIDs become
// their hex form; a nil identifier becomes the empty string.
func NormalizeID(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	case *primitive.ObjectID:
		if id == nil {
			return ""
		}
		return id.Hex()
	default:
		return fmt.Sprintf("%v", NormalizeValue(v))
	}
}

// NormalizeValue strips driver-specific BSON wrappers so values can be handed
// to any sink: ObjectIDs become hex strings, BSON dates become UTC times,
// decimals become their string form, and nested documents and arrays are
// converted recursively.
func NormalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case primitive.Decimal128:
		return val.String()
	case primitive.Binary:
		return val.Data
	case primitive.Regex:
		return val.String()
	case primitive.Null, primitive.Undefined:
		return nil
	case primitive.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	case primitive.M:
		return normalizeMap(val)
	case map[string]interface{}:
		return normalizeMap(val)
	case primitive.D:
		out := make(map[string]interface{}, len(val))
		for _, e := range val {
			out[e.Key] = NormalizeValue(e.Value)
		}
		return out
	default:
		return v
	}
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, item := range m {
		out[k] = NormalizeValue(item)
	}
	return out
}

// ConvertField coerces an already normalized value to the type declared by
// the field spec. A nil value stays nil.
func ConvertField(val interface{}, cfg models.FieldSpec) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch cfg.Type {
	case models.TypeDateTime:
		return ConvertDateTime(val, cfg.Format)
	case models.TypeInt:
		return ConvertToInt(val)
	case models.TypeFloat:
		return ConvertToFloat(val)
	case models.TypeBool:
		return ConvertToBool(val)
	case models.TypeString:
		if t, ok := val.(time.Time); ok {
			return t.Format(time.RFC3339Nano), nil
		}
		return fmt.Sprintf("%v", val), nil
	default:
		return val, nil
	}
}

// ConvertDateTime parses strings with the given layout (or a set of common
// layouts when empty) and accepts times, BSON dates and unix milliseconds.
func ConvertDateTime(val interface{}, format string) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case primitive.DateTime:
		return v.Time().UTC(), nil
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case string:
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		if format != "" {
			formats = []string{format}
		}
		for _, f := range formats {
			if t, err := time.Parse(f, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v), format)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to datetime", val)
	}
}

func ConvertToInt(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("cannot convert non-integral %v to int", v)
		}
		if math.IsInf(v, 0) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is out of int64 range", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

func ConvertToFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", val)
	}
}

func ConvertToBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case int32:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		return false, fmt.Errorf("cannot convert %T to bool", val)
	}
}
