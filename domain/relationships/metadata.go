package relationships

import "time"

// Metadata is the free-form provenance bag stored with an edge. The engine
// never interprets it; the keys below are the conventions readers rely on.
//
//	role              assigned_to: "assignee", "reviewer", ...
//	createdFrom       "mention" for edges written by CreateFromMention
//	contextType       mention context, e.g. "note"
//	contextData       mention payload
//	timestamp         RFC 3339 time the mention was recorded
//	autoDetected      true for edges written by discovery
//	totalValue        supplies: summed cost of the matched lines
//	interactionCount  supplies: number of matched lines
//	detectionDate     supplies: RFC 3339 time of detection
type Metadata map[string]any

const (
	MetaRole             = "role"
	MetaCreatedFrom      = "createdFrom"
	MetaContextType      = "contextType"
	MetaContextData      = "contextData"
	MetaTimestamp        = "timestamp"
	MetaAutoDetected     = "autoDetected"
	MetaTotalValue       = "totalValue"
	MetaInteractionCount = "interactionCount"
	MetaDetectionDate    = "detectionDate"
)

// Clone returns a shallow copy of the top-level keys.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	c := make(Metadata, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (m Metadata) Text(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok && s != ""
}

// Role returns the role of an assignment edge. A present empty role is kept.
func (m Metadata) Role() (string, bool) {
	s, ok := m[MetaRole].(string)
	return s, ok
}

func (m Metadata) AutoDetected() bool {
	b, _ := m[MetaAutoDetected].(bool)
	return b
}

func (m Metadata) CreatedFrom() string {
	s, _ := m.Text(MetaCreatedFrom)
	return s
}

// Number reads a numeric value regardless of whether it came from Go code
// (int, float64) or from a JSON round trip (float64).
func (m Metadata) Number(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Time parses an RFC 3339 value.
func (m Metadata) Time(key string) (time.Time, bool) {
	s, ok := m.Text(key)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}
