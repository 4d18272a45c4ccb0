package practicum

import (
	"encoding/json"
	"fmt"
	"math"

	logx "homeworkbot/pkg/logx"
)

// Record is a single homework entry as returned by the API. Only
// homework_name and status are interpreted; other keys are kept as-is.
type Record map[string]any

// Snapshot is a validated API response.
type Snapshot struct {
	// Homeworks is ordered most recent first.
	Homeworks   []Record
	CurrentDate int64
}

// ValidateResponse checks the decoded response shape and extracts the
// homework list and the server's current_date. Every violation is logged
// and returned as *SchemaError. An empty homeworks array is valid.
func ValidateResponse(raw any, log logx.Logger) (Snapshot, error) {
	fail := func(field, reason string) (Snapshot, error) {
		err := &SchemaError{Field: field, Reason: reason}
		log.Error("api response rejected", logx.String("field", field), logx.String("reason", reason))
		return Snapshot{}, err
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return fail("", fmt.Sprintf("expected object, got %s", jsonKind(raw)))
	}
	hwRaw, ok := obj["homeworks"]
	if !ok {
		return fail("homeworks", "missing")
	}
	cdRaw, ok := obj["current_date"]
	if !ok {
		return fail("current_date", "missing")
	}
	list, ok := hwRaw.([]any)
	if !ok {
		return fail("homeworks", fmt.Sprintf("expected array, got %s", jsonKind(hwRaw)))
	}
	currentDate, ok := asInt64(cdRaw)
	if !ok {
		return fail("current_date", fmt.Sprintf("expected integer, got %s", jsonKind(cdRaw)))
	}

	out := make([]Record, 0, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return fail(fmt.Sprintf("homeworks[%d]", i), fmt.Sprintf("expected object, got %s", jsonKind(item)))
		}
		out = append(out, Record(rec))
	}
	return Snapshot{Homeworks: out, CurrentDate: currentDate}, nil
}

// asInt64 accepts json.Number (decoder with UseNumber) as well as float64
// and native ints, so callers may pass values decoded either way.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
