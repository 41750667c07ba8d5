package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CoerceInt converts loosely typed values (as decoded from JSON, command
// output or D-Bus variants) into an int. It never panics: any value it
// cannot interpret yields def. Fractions are truncated toward zero.
func CoerceInt(v any, def int) int {
	switch x := v.(type) {
	case nil:
		return def
	case int:
		return x
	case int8:
		return int(x)
	case int16:
		return int(x)
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint8:
		return int(x)
	case uint16:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		if x > math.MaxInt64 {
			return def
		}
		return int(x)
	case float32:
		return floatToInt(float64(x), def)
	case float64:
		return floatToInt(x, def)
	case json.Number:
		return CoerceInt(string(x), def)
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f, def)
		}
		return def
	case []byte:
		return CoerceInt(string(x), def)
	default:
		return def
	}
}

// CoerceFloat is CoerceInt for float64 values. NaN and infinities yield def.
func CoerceFloat(v any, def float64) float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return def
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		return CoerceFloat(string(x), def)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return def
		}
		f = p
	case []byte:
		return CoerceFloat(string(x), def)
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func floatToInt(f float64, def int) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return def
	}
	return int(f)
}

// IntPtr coerces v and returns nil when it cannot be interpreted.
func IntPtr(v any) *int {
	const sentinel = math.MinInt
	i := CoerceInt(v, sentinel)
	if i == sentinel {
		return nil
	}
	return &i
}

// FloatPtr coerces v and returns nil when it cannot be interpreted.
func FloatPtr(v any) *float64 {
	f := CoerceFloat(v, math.NaN())
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ClampInt limits v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
