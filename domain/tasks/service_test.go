package tasks_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/domain/reltypes"
	"github.com/bizsuite/server/domain/tasks"
	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/tenant"
)

const acme tenant.ID = "acme"

var epoch = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*tasks.Service, *memTasks) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	store := newMemTasks()
	registry := reltypes.NewRegistry(reltypes.Seeded(), time.Hour, log)
	rel := relationships.NewService(store.edges, registry, log)
	return tasks.NewService(store, rel, log), store
}

func strp(s string) *string { return &s }

func edge(typ string, taskID string, kind relationships.EntityKind, target string, priority int, meta relationships.Metadata) relationships.Edge {
	return relationships.Edge{
		TenantID:         string(acme),
		RelationshipType: typ,
		SourceType:       relationships.KindTask,
		SourceID:         taskID,
		TargetType:       kind,
		TargetID:         target,
		Strength:         1,
		Priority:         priority,
		IsActive:         true,
		Metadata:         meta,
	}
}

// seedTasks creates n tasks, each assigned to two users and in one project.
func seedTasks(store *memTasks, n int) {
	for i := 0; i < 5; i++ {
		store.addUser(acme, fmt.Sprintf("U%d", i), fmt.Sprintf("user %d", i))
		store.addProject(acme, fmt.Sprintf("P%d", i), fmt.Sprintf("project %d", i))
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("T%04d", i)
		store.addTask(acme, id, epoch.Add(time.Duration(i)*time.Minute))
		store.edges.Seed(
			edge(relationships.TypeAssignedTo, id, relationships.KindUser, fmt.Sprintf("U%d", i%5), 1, relationships.Metadata{"role": "reviewer"}),
			edge(relationships.TypeAssignedTo, id, relationships.KindUser, fmt.Sprintf("U%d", (i+1)%5), 1, nil),
			edge(relationships.TypeBelongsTo, id, relationships.KindProject, fmt.Sprintf("P%d", i%5), 1, nil),
		)
	}
}

func TestList_EnrichmentIsBoundedRegardlessOfSize(t *testing.T) {
	for _, n := range []int{1, 10, 1000} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			svc, store := newService(t)
			seedTasks(store, n)
			store.resetCalls()

			res, err := svc.List(context.Background(), acme, tasks.ListParams{Limit: tasks.MaxListLimit})
			require.NoError(t, err)

			assert.Equal(t, n, res.Total)
			assert.Len(t, res.Data, min(n, tasks.MaxListLimit))
			assert.Equal(t, 4, store.roundTrips(), "tasks page, edges, users, projects")
			assert.Equal(t, 1, store.edges.CallsTo("ListAll"))

			for _, task := range res.Data {
				assert.Equal(t, 2, task.AssigneesCount)
				assert.Len(t, task.AssigneeIDs, 2)
				assert.Len(t, task.ProjectIDs, 1)
				assert.Len(t, task.RelatedProjects, 1)
			}
		})
	}
}

func TestList_OrderAndPaging(t *testing.T) {
	svc, store := newService(t)
	seedTasks(store, 7)

	res, err := svc.List(context.Background(), acme, tasks.ListParams{Limit: 3, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Total)

	var ids []string
	for _, task := range res.Data {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"T0004", "T0003", "T0002"}, ids)
}

func TestList_DefaultsAndCapsLimit(t *testing.T) {
	svc, store := newService(t)
	seedTasks(store, 260)

	res, err := svc.List(context.Background(), acme, tasks.ListParams{})
	require.NoError(t, err)
	assert.Len(t, res.Data, tasks.DefaultListLimit)

	res, err = svc.List(context.Background(), acme, tasks.ListParams{Limit: 10_000})
	require.NoError(t, err)
	assert.Len(t, res.Data, tasks.MaxListLimit)
}

func TestGet_AttachesAssigneesInEdgeOrder(t *testing.T) {
	svc, store := newService(t)
	store.addUser(acme, "U1", "Ada")
	store.addUser(acme, "U2", "Grace")
	store.addProject(acme, "P1", "Apollo")
	store.addProject(acme, "P2", "Gemini")
	store.deleteProject("P2")
	store.addTask(acme, "T1", epoch)
	store.edges.Seed(
		edge(relationships.TypeAssignedTo, "T1", relationships.KindUser, "U1", 1, nil),
		edge(relationships.TypeAssignedTo, "T1", relationships.KindUser, "U2", 8, relationships.Metadata{"role": "lead"}),
		edge(relationships.TypeAssignedTo, "T1", relationships.KindUser, "U-gone", 9, nil),
		edge(relationships.TypeBelongsTo, "T1", relationships.KindProject, "P1", 1, nil),
		edge(relationships.TypeBelongsTo, "T1", relationships.KindProject, "P2", 1, nil),
		edge("blocked_by", "T1", relationships.KindTask, "T9", 10, nil),
	)

	got, err := svc.Get(context.Background(), acme, "T1")
	require.NoError(t, err)

	require.Len(t, got.Assignees, 2, "unresolved users are dropped")
	assert.Equal(t, "Grace", got.Assignees[0].User.Name)
	assert.Equal(t, "lead", got.Assignees[0].Role)
	assert.Equal(t, "Ada", got.Assignees[1].User.Name)
	assert.Equal(t, tasks.DefaultAssigneeRole, got.Assignees[1].Role)
	assert.NotNil(t, got.Assignees[1].Metadata)
	assert.Equal(t, []string{"U2", "U1"}, got.AssigneeIDs)
	assert.Equal(t, 2, got.AssigneesCount)
	assert.Equal(t, []string{"P1"}, got.ProjectIDs, "deleted projects are dropped")
}

func TestGet_KeepsExplicitEmptyRole(t *testing.T) {
	svc, store := newService(t)
	store.addUser(acme, "U1", "Ada")
	store.addUser(acme, "U2", "Grace")
	store.addTask(acme, "T1", epoch)
	store.edges.Seed(
		edge(relationships.TypeAssignedTo, "T1", relationships.KindUser, "U1", 5, relationships.Metadata{"role": ""}),
		edge(relationships.TypeAssignedTo, "T1", relationships.KindUser, "U2", 1, relationships.Metadata{"role": 7}),
	)

	got, err := svc.Get(context.Background(), acme, "T1")
	require.NoError(t, err)

	require.Len(t, got.Assignees, 2)
	assert.Equal(t, "", got.Assignees[0].Role)
	assert.Equal(t, tasks.DefaultAssigneeRole, got.Assignees[1].Role, "non-string roles fall back")
}

func TestGet_TaskWithoutEdgesHasEmptyLists(t *testing.T) {
	svc, store := newService(t)
	store.addTask(acme, "T1", epoch)

	got, err := svc.Get(context.Background(), acme, "T1")
	require.NoError(t, err)
	assert.NotNil(t, got.Assignees)
	assert.NotNil(t, got.AssigneeIDs)
	assert.NotNil(t, got.ProjectIDs)
	assert.NotNil(t, got.RelatedProjects)
	assert.Zero(t, got.AssigneesCount)

	_, err = svc.Get(context.Background(), acme, "T404")
	assert.True(t, apperror.IsNotFound(err))
}

func liveTargets(store *memTasks, match relationships.EdgeMatch) []string {
	var out []string
	for _, e := range store.edges.Live(acme, match) {
		out = append(out, e.TargetID)
	}
	return out
}

func belongsTo(store *memTasks, taskID string) []string {
	return liveTargets(store, relationships.EdgeMatch{SourceID: taskID, RelationshipType: relationships.TypeBelongsTo})
}

func includes(store *memTasks, projectID string) []string {
	return liveTargets(store, relationships.EdgeMatch{SourceID: projectID, RelationshipType: relationships.TypeIncludes})
}

func TestCreate_LinksAssigneesAndProject(t *testing.T) {
	svc, store := newService(t)
	store.addUser(acme, "U1", "Ada")
	store.addProject(acme, "P1", "Apollo")

	got, err := svc.Create(context.Background(), acme, tasks.CreateRequest{
		Title:     "Write release notes",
		ProjectID: strp("P1"),
		Assignees: []tasks.AssigneeInput{{UserID: "U1", Role: "writer"}},
	})
	require.NoError(t, err)

	assert.Equal(t, tasks.StatusTodo, got.Status)
	require.NotNil(t, got.ProjectID)
	assert.Equal(t, "P1", *got.ProjectID)
	assert.Equal(t, []string{"P1"}, got.ProjectIDs)
	require.Len(t, got.Assignees, 1)
	assert.Equal(t, "writer", got.Assignees[0].Role)

	assert.Equal(t, []string{got.ID}, includes(store, "P1"))
	assert.Len(t, store.edges.Live(acme, relationships.EdgeMatch{RelationshipType: relationships.TypeResponsibleFor}), 1)
}

func TestCreate_RejectsMissingProjectBeforeWriting(t *testing.T) {
	svc, store := newService(t)

	_, err := svc.Create(context.Background(), acme, tasks.CreateRequest{Title: "orphan", ProjectID: strp("P404")})
	assert.True(t, apperror.IsDependencyNotFound(err), "got %v", err)
	assert.Empty(t, store.tasks)
	assert.Zero(t, store.edges.Calls())
}

func TestCreate_Validation(t *testing.T) {
	svc, store := newService(t)

	_, err := svc.Create(context.Background(), acme, tasks.CreateRequest{})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Create(context.Background(), acme, tasks.CreateRequest{
		Title:     "x",
		Assignees: []tasks.AssigneeInput{{UserID: ""}},
	})
	assert.True(t, apperror.IsValidation(err))
	assert.Zero(t, store.roundTrips())
}

func TestCreate_EdgeFailureRollsBackTask(t *testing.T) {
	svc, store := newService(t)
	store.addUser(acme, "U1", "Ada")
	store.edges.FailNext("Insert", errors.New("connection reset"))

	_, err := svc.Create(context.Background(), acme, tasks.CreateRequest{
		Title:     "doomed",
		Assignees: []tasks.AssigneeInput{{UserID: "U1"}},
	})
	require.Error(t, err)
	assert.Empty(t, store.tasks)
	assert.Empty(t, store.edges.All())
}

func TestChangeProject_MovesBothDirections(t *testing.T) {
	svc, store := newService(t)
	store.addProject(acme, "P1", "Apollo")
	store.addProject(acme, "P2", "Gemini")
	store.addTask(acme, "T1", epoch)
	ctx := context.Background()

	_, err := svc.ChangeProject(ctx, acme, "T1", strp("P1"))
	require.NoError(t, err)
	got, err := svc.ChangeProject(ctx, acme, "T1", strp("P2"))
	require.NoError(t, err)

	assert.Equal(t, "P2", *got.ProjectID)
	assert.Equal(t, []string{"P2"}, got.ProjectIDs)
	assert.Equal(t, []string{"P2"}, belongsTo(store, "T1"))
	assert.Empty(t, includes(store, "P1"))
	assert.Equal(t, []string{"T1"}, includes(store, "P2"))

	// Moving back reuses the tombstoned rows.
	_, err = svc.ChangeProject(ctx, acme, "T1", strp("P1"))
	require.NoError(t, err)
	assert.Len(t, store.edges.All(), 4)
	assert.Equal(t, []string{"P1"}, belongsTo(store, "T1"))
}

func TestChangeProject_Detach(t *testing.T) {
	svc, store := newService(t)
	store.addProject(acme, "P1", "Apollo")
	store.addTask(acme, "T1", epoch)
	ctx := context.Background()

	_, err := svc.ChangeProject(ctx, acme, "T1", strp("P1"))
	require.NoError(t, err)
	got, err := svc.ChangeProject(ctx, acme, "T1", nil)
	require.NoError(t, err)

	assert.Nil(t, got.ProjectID)
	assert.Empty(t, got.ProjectIDs)
	assert.Empty(t, belongsTo(store, "T1"))
	assert.Empty(t, includes(store, "P1"))
}

func TestChangeProject_CrashLeavesTaskAndEdgesConsistent(t *testing.T) {
	svc, store := newService(t)
	store.addProject(acme, "P1", "Apollo")
	store.addProject(acme, "P2", "Gemini")
	store.addTask(acme, "T1", epoch)
	ctx := context.Background()

	_, err := svc.ChangeProject(ctx, acme, "T1", strp("P1"))
	require.NoError(t, err)
	before := store.edges.All()

	// The reverse edge insert fails after the task row and forward edge changed.
	store.edges.FailNext("Insert", nil)
	store.edges.FailNext("Insert", errors.New("connection reset"))
	_, err = svc.ChangeProject(ctx, acme, "T1", strp("P2"))
	require.Error(t, err)

	assert.Equal(t, "P1", *store.task("T1").ProjectID)
	assert.Equal(t, before, store.edges.All())
	assert.Equal(t, []string{"P1"}, belongsTo(store, "T1"))
	assert.Equal(t, []string{"T1"}, includes(store, "P1"))
}

func TestChangeProject_Preflight(t *testing.T) {
	svc, store := newService(t)
	store.addProject(acme, "P1", "Apollo")
	store.addProject(acme, "P9", "Retired")
	store.deleteProject("P9")
	store.addTask(acme, "T1", epoch)
	ctx := context.Background()

	for _, p := range []string{"P404", "P9"} {
		_, err := svc.ChangeProject(ctx, acme, "T1", strp(p))
		assert.True(t, apperror.IsDependencyNotFound(err), "%s: %v", p, err)
	}
	assert.Zero(t, store.edges.Calls())
	assert.Nil(t, store.task("T1").ProjectID)

	_, err := svc.ChangeProject(ctx, acme, "T404", strp("P1"))
	assert.True(t, apperror.IsNotFound(err))
}

func TestAssignees_RoundTrip(t *testing.T) {
	svc, store := newService(t)
	store.addUser(acme, "U1", "Ada")
	store.addTask(acme, "T1", epoch)
	ctx := context.Background()

	_, err := svc.AddAssignee(ctx, acme, "T1", "U1", "reviewer")
	require.NoError(t, err)
	_, err = svc.AddAssignee(ctx, acme, "T1", "U1", "lead")
	require.NoError(t, err)

	got, err := svc.Get(ctx, acme, "T1")
	require.NoError(t, err)
	require.Len(t, got.Assignees, 1, "re-adding is idempotent")
	assert.Equal(t, "lead", got.Assignees[0].Role)

	rels, err := svc.GetEntityRelationships(ctx, acme, relationships.KindUser, "U1")
	require.NoError(t, err)
	assert.Len(t, rels, 2)

	require.NoError(t, svc.RemoveAssignee(ctx, acme, "T1", "U1"))
	got, err = svc.Get(ctx, acme, "T1")
	require.NoError(t, err)
	assert.Empty(t, got.Assignees)
	assert.Empty(t, store.edges.Live(acme, relationships.EdgeMatch{RelationshipType: relationships.TypeResponsibleFor}))

	err = svc.RemoveAssignee(ctx, acme, "T1", "U1")
	assert.True(t, apperror.IsNotFound(err))
}

func TestAddAssignee_Preflight(t *testing.T) {
	svc, store := newService(t)
	store.addUser(acme, "U1", "Ada")
	store.addTask(acme, "T1", epoch)
	ctx := context.Background()

	_, err := svc.AddAssignee(ctx, acme, "T1", "U404", "")
	assert.True(t, apperror.IsDependencyNotFound(err))

	_, err = svc.AddAssignee(ctx, acme, "T404", "U1", "")
	assert.True(t, apperror.IsNotFound(err))

	_, err = svc.AddAssignee(ctx, acme, "T1", "", "")
	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, store.edges.All())
}

func TestTenantIsolation(t *testing.T) {
	svc, store := newService(t)
	seedTasks(store, 3)

	res, err := svc.List(context.Background(), "globex", tasks.ListParams{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.NotNil(t, res.Data)

	_, err = svc.List(context.Background(), "", tasks.ListParams{})
	assert.True(t, apperror.IsValidation(err))
}
