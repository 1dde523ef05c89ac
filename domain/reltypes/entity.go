package reltypes

import (
	"time"

	"github.com/uptrace/bun"
)

// RelationshipType describes an edge type. Seeded by migrations; read-only at runtime.
type RelationshipType struct {
	bun.BaseModel `bun:"table:biz.relationship_types,alias:rt"`

	Name            string    `bun:"name,pk" json:"name"`
	DisplayName     string    `bun:"display_name,notnull" json:"displayName"`
	IsBidirectional bool      `bun:"is_bidirectional,notnull" json:"isBidirectional"`
	ReverseTypeName *string   `bun:"reverse_type_name" json:"reverseTypeName,omitempty"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// MirrorType returns the type the engine writes for the reverse edge, and
// false when the type is unidirectional.
func (t *RelationshipType) MirrorType() (string, bool) {
	if t == nil || !t.IsBidirectional || t.ReverseTypeName == nil || *t.ReverseTypeName == "" {
		return "", false
	}
	return *t.ReverseTypeName, true
}

type ListResponse struct {
	Data []RelationshipType `json:"data"`
}
