package tasks

import (
	"context"

	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/pkg/tenant"
)

var enrichmentTypes = []string{relationships.TypeAssignedTo, relationships.TypeBelongsTo}

// distinct appends v to ids unless seen already.
func distinct(ids []string, seen map[string]struct{}, v string) []string {
	if _, ok := seen[v]; ok {
		return ids
	}
	seen[v] = struct{}{}
	return append(ids, v)
}

// enrich attaches assignees and projects to tasks with one edge query and at
// most one lookup per target kind, whatever len(tasks) is. Edges whose
// target no longer resolves are dropped.
func (s *Service) enrich(ctx context.Context, t tenant.ID, tasks []Task) ([]EnrichedTask, error) {
	out := make([]EnrichedTask, len(tasks))
	if len(tasks) == 0 {
		return out, nil
	}

	ids := make([]string, len(tasks))
	for i := range tasks {
		ids[i] = tasks[i].ID
	}
	active := true
	edges, err := s.rel.ListMatching(ctx, t, relationships.Filter{
		SourceType:        relationships.KindTask,
		SourceIDs:         ids,
		RelationshipTypes: enrichmentTypes,
		IsActive:          &active,
	})
	if err != nil {
		return nil, err
	}

	var userIDs, projectIDs []string
	seenUsers, seenProjects := map[string]struct{}{}, map[string]struct{}{}
	bySource := make(map[string][]*relationships.Edge, len(tasks))
	for i := range edges {
		e := &edges[i]
		switch {
		case e.RelationshipType == relationships.TypeAssignedTo && e.TargetType == relationships.KindUser:
			userIDs = distinct(userIDs, seenUsers, e.TargetID)
		case e.RelationshipType == relationships.TypeBelongsTo && e.TargetType == relationships.KindProject:
			projectIDs = distinct(projectIDs, seenProjects, e.TargetID)
		default:
			continue
		}
		bySource[e.SourceID] = append(bySource[e.SourceID], e)
	}

	users := map[string]User{}
	if len(userIDs) > 0 {
		found, err := s.store.UsersByIDs(ctx, t, userIDs)
		if err != nil {
			return nil, err
		}
		for _, u := range found {
			users[u.ID] = u
		}
	}
	projects := map[string]Project{}
	if len(projectIDs) > 0 {
		found, err := s.store.ProjectsByIDs(ctx, t, projectIDs)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			projects[p.ID] = p
		}
	}

	for i := range tasks {
		et := EnrichedTask{
			Task:            tasks[i],
			Assignees:       []Assignee{},
			AssigneeIDs:     []string{},
			ProjectIDs:      []string{},
			RelatedProjects: []RelatedProject{},
		}
		for _, e := range bySource[tasks[i].ID] {
			if e.RelationshipType == relationships.TypeAssignedTo {
				u, ok := users[e.TargetID]
				if !ok {
					continue
				}
				role, ok := e.Metadata.Role()
				if !ok {
					role = DefaultAssigneeRole
				}
				meta := e.Metadata
				if meta == nil {
					meta = relationships.Metadata{}
				}
				et.Assignees = append(et.Assignees, Assignee{User: u, Role: role, Metadata: meta, RelationshipID: e.ID})
				et.AssigneeIDs = append(et.AssigneeIDs, u.ID)
				continue
			}
			p, ok := projects[e.TargetID]
			if !ok {
				continue
			}
			et.RelatedProjects = append(et.RelatedProjects, RelatedProject{Project: p, RelationshipID: e.ID})
			et.ProjectIDs = append(et.ProjectIDs, p.ID)
		}
		et.AssigneesCount = len(et.Assignees)
		out[i] = et
	}
	return out, nil
}
