package conversation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ParticipantID identifies an avatar or user taking part in a thread.
type ParticipantID string

// Identified is implemented by values that carry their own participant id.
type Identified interface {
	ParticipantID() string
}

// NormalizeParticipant resolves v to a ParticipantID. Accepted inputs are
// strings, integers, integral floats (JSON numbers), uuid.UUID, Identified,
// and decoded JSON objects with an "id" or "_id" field. ok is false when v
// does not resolve to a non-empty id.
func NormalizeParticipant(v any) (ParticipantID, bool) {
	var raw string
	switch t := v.(type) {
	case nil:
		return "", false
	case ParticipantID:
		raw = string(t)
	case string:
		raw = t
	case int:
		raw = strconv.FormatInt(int64(t), 10)
	case int32:
		raw = strconv.FormatInt(int64(t), 10)
	case int64:
		raw = strconv.FormatInt(t, 10)
	case uint:
		raw = strconv.FormatUint(uint64(t), 10)
	case uint32:
		raw = strconv.FormatUint(uint64(t), 10)
	case uint64:
		raw = strconv.FormatUint(t, 10)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return "", false
		}
		raw = strconv.FormatFloat(t, 'f', -1, 64)
	case uuid.UUID:
		if t == uuid.Nil {
			return "", false
		}
		raw = t.String()
	case Identified:
		raw = t.ParticipantID()
	case map[string]any:
		for _, key := range []string{"id", "_id"} {
			if inner, ok := t[key]; ok {
				if _, nested := inner.(map[string]any); nested {
					continue
				}
				return NormalizeParticipant(inner)
			}
		}
		return "", false
	case fmt.Stringer:
		raw = t.String()
	default:
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	return ParticipantID(raw), true
}

// normalizeAll resolves every participant, dropping unresolvable ones and
// duplicates while keeping first-seen order.
func normalizeAll(vs []any) []ParticipantID {
	out := make([]ParticipantID, 0, len(vs))
	seen := make(map[ParticipantID]struct{}, len(vs))
	for _, v := range vs {
		id, ok := NormalizeParticipant(v)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
