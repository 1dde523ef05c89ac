package relationships

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

// EntityKind tags which owning domain an endpoint id belongs to. The set is
// open; these are the kinds the application links today.
type EntityKind string

const (
	KindTask    EntityKind = "Task"
	KindProject EntityKind = "Project"
	KindUser    EntityKind = "User"
	KindContact EntityKind = "Contact"
	KindProduct EntityKind = "Product"
	KindComment EntityKind = "Comment"
)

// Relationship type names the application code writes directly.
const (
	TypeAssignedTo     = "assigned_to"
	TypeResponsibleFor = "responsible_for"
	TypeBelongsTo      = "belongs_to"
	TypeIncludes       = "includes"
	TypeSupplies       = "supplies"
	TypeMentionedIn    = "mentioned_in"
)

const (
	MinStrength     = 1
	MaxStrength     = 5
	DefaultStrength = 1
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 1
)

// EntityRef identifies one endpoint of an edge.
type EntityRef struct {
	Kind EntityKind `json:"type" validate:"required"`
	ID   string     `json:"id" validate:"required"`
}

func Ref(kind EntityKind, id string) EntityRef {
	return EntityRef{Kind: kind, ID: id}
}

// EdgeKey is the tuple at most one live edge per tenant may hold.
type EdgeKey struct {
	Source EntityRef
	Target EntityRef
	Type   string
}

// Reverse returns the key of the mirror edge written under mirrorType.
func (k EdgeKey) Reverse(mirrorType string) EdgeKey {
	return EdgeKey{Source: k.Target, Target: k.Source, Type: mirrorType}
}

// Edge is one directed, typed relationship between two entities.
type Edge struct {
	bun.BaseModel `bun:"table:biz.entity_relationships,alias:er"`

	ID                uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	TenantID          string         `bun:"tenant_id,notnull" json:"-"`
	RelationshipType  string         `bun:"relationship_type,notnull" json:"relationshipType"`
	SourceType        EntityKind     `bun:"source_type,notnull" json:"sourceType"`
	SourceID          string         `bun:"source_id,notnull" json:"sourceId"`
	TargetType        EntityKind     `bun:"target_type,notnull" json:"targetType"`
	TargetID          string         `bun:"target_id,notnull" json:"targetId"`
	Strength          int            `bun:"strength,notnull" json:"strength"`
	Priority          int            `bun:"priority,notnull" json:"priority"`
	IsActive          bool           `bun:"is_active,notnull" json:"isActive"`
	IsDeleted         bool           `bun:"is_deleted,notnull" json:"-"`
	DeletedAt         *time.Time     `bun:"deleted_at" json:"-"`
	Metadata          Metadata       `bun:"metadata,type:jsonb,notnull" json:"metadata"`
	Tags              pq.StringArray `bun:"tags,type:text[],notnull" json:"tags"`
	LastInteractionAt *time.Time     `bun:"last_interaction_at" json:"lastInteractionAt,omitempty"`
	InteractionCount  int            `bun:"interaction_count,notnull" json:"interactionCount"`
	CreatedAt         time.Time      `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt         time.Time      `bun:"updated_at,notnull" json:"updatedAt"`
}

func (e *Edge) Key() EdgeKey {
	return EdgeKey{
		Source: EntityRef{Kind: e.SourceType, ID: e.SourceID},
		Target: EntityRef{Kind: e.TargetType, ID: e.TargetID},
		Type:   e.RelationshipType,
	}
}

// Clone returns a deep copy; metadata and tags are not shared.
func (e *Edge) Clone() *Edge {
	c := *e
	c.Metadata = e.Metadata.Clone()
	if e.Tags != nil {
		c.Tags = append(pq.StringArray{}, e.Tags...)
	}
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		c.DeletedAt = &t
	}
	if e.LastInteractionAt != nil {
		t := *e.LastInteractionAt
		c.LastInteractionAt = &t
	}
	return &c
}

// Draft is the input to Create.
type Draft struct {
	RelationshipType string     `json:"relationshipType" validate:"required,max=64"`
	SourceType       EntityKind `json:"sourceType" validate:"required,max=64"`
	SourceID         string     `json:"sourceId" validate:"required"`
	TargetType       EntityKind `json:"targetType" validate:"required,max=64"`
	TargetID         string     `json:"targetId" validate:"required"`
	Strength         *int       `json:"strength,omitempty" validate:"omitempty,min=1,max=5"`
	Priority         *int       `json:"priority,omitempty" validate:"omitempty,min=1,max=10"`
	IsActive         *bool      `json:"isActive,omitempty"`
	Metadata         Metadata   `json:"metadata,omitempty"`
	Tags             []string   `json:"tags,omitempty" validate:"omitempty,dive,required"`
}

func (d Draft) Key() EdgeKey {
	return EdgeKey{
		Source: EntityRef{Kind: d.SourceType, ID: d.SourceID},
		Target: EntityRef{Kind: d.TargetType, ID: d.TargetID},
		Type:   d.RelationshipType,
	}
}

// Patch is the input to Update. Nil fields are left unchanged; a non-nil
// Metadata or Tags replaces the stored value.
type Patch struct {
	Strength *int     `json:"strength,omitempty" validate:"omitempty,min=1,max=5"`
	Priority *int     `json:"priority,omitempty" validate:"omitempty,min=1,max=10"`
	IsActive *bool    `json:"isActive,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
	Tags     []string `json:"tags,omitempty" validate:"omitempty,dive,required"`
}

// Filter narrows edge listings. Empty fields do not constrain. Deleted edges
// and other tenants are always excluded.
type Filter struct {
	SourceType        EntityKind
	SourceIDs         []string
	TargetType        EntityKind
	TargetIDs         []string
	RelationshipTypes []string
	MinStrength       *int
	MaxStrength       *int
	Tags              []string // match any
	IsActive          *bool
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageRequest selects a 1-based page.
type PageRequest struct {
	Page  int
	Limit int
}

func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Page is one page of FindMany results.
type Page struct {
	Data       []Edge `json:"data"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"totalPages"`
}

// EdgeMatch selects live edges for bulk soft-deletion. Empty fields match anything.
type EdgeMatch struct {
	SourceType       EntityKind
	SourceID         string
	TargetType       EntityKind
	TargetID         string
	RelationshipType string
}

// IsZero reports whether m constrains nothing. Stores ignore zero matches
// rather than tombstoning every edge of the tenant.
func (m EdgeMatch) IsZero() bool {
	return m == EdgeMatch{}
}

func nonEmpty(matches []EdgeMatch) []EdgeMatch {
	out := make([]EdgeMatch, 0, len(matches))
	for _, m := range matches {
		if !m.IsZero() {
			out = append(out, m)
		}
	}
	return out
}

// Matches reports whether e is selected by m. Deletion state is not considered.
func (m EdgeMatch) Matches(e *Edge) bool {
	return (m.SourceType == "" || m.SourceType == e.SourceType) &&
		(m.SourceID == "" || m.SourceID == e.SourceID) &&
		(m.TargetType == "" || m.TargetType == e.TargetType) &&
		(m.TargetID == "" || m.TargetID == e.TargetID) &&
		(m.RelationshipType == "" || m.RelationshipType == e.RelationshipType)
}

// Mention describes one entity referencing another, e.g. a comment naming a task.
type Mention struct {
	SourceType  EntityKind     `json:"sourceType" validate:"required"`
	SourceID    string         `json:"sourceId" validate:"required"`
	TargetType  EntityKind     `json:"targetType" validate:"required"`
	TargetID    string         `json:"targetId" validate:"required"`
	ContextType string         `json:"contextType,omitempty"`
	ContextData map[string]any `json:"contextData,omitempty"`
}

// LinkReplacement swaps the single-valued link of Entity to TargetKind.
// A nil NewTargetID only retires the existing link.
type LinkReplacement struct {
	Entity      EntityRef
	ForwardType string
	ReverseType string
	TargetKind  EntityKind
	NewTargetID *string
	Metadata    Metadata
}

// Suggestion is one ranked target from Suggest.
type Suggestion struct {
	TargetType  EntityKind `bun:"target_type" json:"targetType"`
	TargetID    string     `bun:"target_id" json:"targetId"`
	Count       int        `bun:"count" json:"count"`
	AvgStrength float64    `bun:"avg_strength" json:"avgStrength"`
}

const SuggestionLimit = 10
