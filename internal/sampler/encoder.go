package sampler

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// CategoricalEncoder assigns integer codes to the distinct values of one
// non-numeric column. Codes follow the sorted order of the distinct values,
// so the same value set always yields the same codes. An encoder is built
// per column per sampling call and never shared.
type CategoricalEncoder struct {
	codes map[string]int
}

func FitCategorical(values []string) CategoricalEncoder {
	distinct := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		distinct = append(distinct, value)
	}
	sort.Strings(distinct)

	codes := make(map[string]int, len(distinct))
	for i, value := range distinct {
		codes[value] = i
	}
	return CategoricalEncoder{codes: codes}
}

// Code returns the code for value, or -1 when the value was not fitted.
func (e CategoricalEncoder) Code(value string) int {
	code, ok := e.codes[value]
	if !ok {
		return -1
	}
	return code
}

func (e CategoricalEncoder) Classes() int {
	return len(e.codes)
}

func (e CategoricalEncoder) Transform(values []string) []float64 {
	out := make([]float64, len(values))
	for i, value := range values {
		out[i] = float64(e.Code(value))
	}
	return out
}

// numericValue reports the float form of values that take part in distance
// computation directly.
func numericValue(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case bool:
		if typed {
			return 1, true
		}
		return 0, true
	case json.Number:
		parsed, err := strconv.ParseFloat(typed.String(), 64)
		if err != nil || math.IsInf(parsed, 0) {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
