package reltypes

import "context"

// StaticSource serves a fixed set of types. Used where the database is not
// available, e.g. unit tests of packages built on the registry.
type StaticSource []RelationshipType

func (s StaticSource) ListAll(context.Context) ([]RelationshipType, error) {
	out := make([]RelationshipType, len(s))
	copy(out, s)
	return out, nil
}

func pair(name, display, reverse, reverseDisplay string) []RelationshipType {
	return []RelationshipType{
		{Name: name, DisplayName: display, IsBidirectional: true, ReverseTypeName: &reverse},
		{Name: reverse, DisplayName: reverseDisplay, IsBidirectional: true, ReverseTypeName: &name},
	}
}

// Seeded returns the same types the initial migration installs.
func Seeded() StaticSource {
	var types []RelationshipType
	types = append(types, pair("assigned_to", "Assigned to", "responsible_for", "Responsible for")...)
	types = append(types, pair("belongs_to", "Belongs to", "includes", "Includes")...)
	types = append(types, pair("supplies", "Supplies", "supplied_by", "Supplied by")...)
	types = append(types, pair("depends_on", "Depends on", "blocks", "Blocks")...)
	related := "related_to"
	types = append(types,
		RelationshipType{Name: related, DisplayName: "Related to", IsBidirectional: true, ReverseTypeName: &related},
		RelationshipType{Name: "mentioned_in", DisplayName: "Mentioned in"},
	)
	return types
}
