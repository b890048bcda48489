package targets

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount coerces the numeric shapes that cross this domain's boundaries
// (JSON numbers, driver decimals rendered as strings, nils from nullable
// columns) into a finite float64. Anything unparseable, NaN or infinite
// becomes 0. It never panics; sign handling is left to the callers'
// validators.
func ParseAmount(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return finiteOrZero(v)
	case float32:
		return finiteOrZero(float64(v))
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0
		}
		return finiteOrZero(parsed)
	default:
		return 0
	}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// round2 normalizes monetary arithmetic to cents so repeated increments do
// not accumulate float drift in stored counters.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
