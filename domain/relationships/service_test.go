package relationships_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/domain/relationships/reltest"
	"github.com/bizsuite/server/domain/reltypes"
	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/tenant"
)

const acme tenant.ID = "acme"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	svc   *relationships.Service
	store *reltest.MemStore
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := reltest.NewMemStore()
	registry := reltypes.NewRegistry(reltypes.Seeded(), time.Hour, slog.New(slog.DiscardHandler))
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := relationships.NewService(store, registry, slog.New(slog.DiscardHandler)).WithClock(c.now)
	return &fixture{svc: svc, store: store, clock: c}
}

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func assign(task, user string) relationships.Draft {
	return relationships.Draft{
		RelationshipType: relationships.TypeAssignedTo,
		SourceType:       relationships.KindTask,
		SourceID:         task,
		TargetType:       relationships.KindUser,
		TargetID:         user,
	}
}

func liveOfType(f *fixture, typ string) []relationships.Edge {
	return f.store.Live(acme, relationships.EdgeMatch{RelationshipType: typ})
}

func TestCreate_InsertsWithDefaults(t *testing.T) {
	f := newFixture(t)

	e, err := f.svc.Create(context.Background(), acme, assign("T1", "U1"))
	require.NoError(t, err)

	assert.Equal(t, relationships.DefaultStrength, e.Strength)
	assert.Equal(t, relationships.DefaultPriority, e.Priority)
	assert.True(t, e.IsActive)
	assert.Equal(t, 1, e.InteractionCount)
	require.NotNil(t, e.LastInteractionAt)
	assert.Equal(t, f.clock.t, *e.LastInteractionAt)
	assert.NotNil(t, e.Metadata)
	assert.NotNil(t, e.Tags)
	assert.Equal(t, "acme", e.TenantID)
	assert.Equal(t, assign("T1", "U1").Key(), e.Key())
}

func TestCreate_IsIdempotentPerKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, acme, assign("T1", "U1"))
	require.NoError(t, err)

	f.clock.advance(time.Minute)
	d := assign("T1", "U1")
	d.Strength = intp(4)
	d.Tags = []string{"urgent"}
	second, err := f.svc.Create(ctx, acme, d)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 4, second.Strength)
	assert.Equal(t, []string{"urgent"}, []string(second.Tags))
	assert.Equal(t, relationships.DefaultPriority, second.Priority, "fields absent from the draft are preserved")
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, f.clock.t, second.UpdatedAt)

	assert.Len(t, liveOfType(f, relationships.TypeAssignedTo), 1)
	assert.Len(t, liveOfType(f, relationships.TypeResponsibleFor), 1)
}

func TestCreate_MirrorsBidirectionalTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := assign("T1", "U1")
	d.Strength = intp(5)
	d.Priority = intp(7)
	d.Metadata = relationships.Metadata{"role": "reviewer"}
	d.Tags = []string{"q3"}
	primary, err := f.svc.Create(ctx, acme, d)
	require.NoError(t, err)

	edges, err := f.svc.GetForEntity(ctx, acme, relationships.Ref(relationships.KindUser, "U1"))
	require.NoError(t, err)
	require.Len(t, edges, 2)

	var mirror *relationships.Edge
	for i := range edges {
		if edges[i].RelationshipType == relationships.TypeResponsibleFor {
			mirror = &edges[i]
		}
	}
	require.NotNil(t, mirror)
	assert.NotEqual(t, primary.ID, mirror.ID)
	assert.Equal(t, relationships.KindUser, mirror.SourceType)
	assert.Equal(t, "U1", mirror.SourceID)
	assert.Equal(t, relationships.KindTask, mirror.TargetType)
	assert.Equal(t, "T1", mirror.TargetID)
	assert.Equal(t, 5, mirror.Strength)
	assert.Equal(t, 7, mirror.Priority)
	assert.Equal(t, primary.Metadata, mirror.Metadata)
	assert.Equal(t, primary.Tags, mirror.Tags)
}

func TestCreate_DedupRefreshesMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, acme, assign("T1", "U1"))
	require.NoError(t, err)

	d := assign("T1", "U1")
	d.Strength = intp(3)
	d.Metadata = relationships.Metadata{"role": "owner"}
	_, err = f.svc.Create(ctx, acme, d)
	require.NoError(t, err)

	mirrors := liveOfType(f, relationships.TypeResponsibleFor)
	require.Len(t, mirrors, 1)
	assert.Equal(t, 3, mirrors[0].Strength)
	role, _ := mirrors[0].Metadata.Role()
	assert.Equal(t, "owner", role)
}

func TestCreate_UnidirectionalAndUnknownTypesAreNotMirrored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, typ := range []string{relationships.TypeMentionedIn, "inspired_by"} {
		_, err := f.svc.Create(ctx, acme, relationships.Draft{
			RelationshipType: typ,
			SourceType:       relationships.KindTask, SourceID: "T1",
			TargetType: relationships.KindComment, TargetID: "C1",
		})
		require.NoError(t, err)
	}

	assert.Len(t, f.store.All(), 2)
}

func TestCreate_SelfMirrorOfSymmetricLoopIsSkipped(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), acme, relationships.Draft{
		RelationshipType: "related_to",
		SourceType:       relationships.KindTask, SourceID: "T1",
		TargetType: relationships.KindTask, TargetID: "T1",
	})
	require.NoError(t, err)
	assert.Len(t, f.store.All(), 1)
}

func TestCreate_SymmetricTypeMirrorsWithSameName(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), acme, relationships.Draft{
		RelationshipType: "related_to",
		SourceType:       relationships.KindTask, SourceID: "T1",
		TargetType: relationships.KindTask, TargetID: "T2",
	})
	require.NoError(t, err)

	live := liveOfType(f, "related_to")
	require.Len(t, live, 2)
	assert.ElementsMatch(t, []string{"T1", "T2"}, []string{live[0].SourceID, live[1].SourceID})
}

func TestCreate_ValidationHappensBeforeStorage(t *testing.T) {
	tests := []struct {
		name  string
		draft relationships.Draft
	}{
		{"strength too high", func() relationships.Draft { d := assign("T1", "U1"); d.Strength = intp(6); return d }()},
		{"strength too low", func() relationships.Draft { d := assign("T1", "U1"); d.Strength = intp(0); return d }()},
		{"priority too high", func() relationships.Draft { d := assign("T1", "U1"); d.Priority = intp(11); return d }()},
		{"priority too low", func() relationships.Draft { d := assign("T1", "U1"); d.Priority = intp(0); return d }()},
		{"missing type", func() relationships.Draft { d := assign("T1", "U1"); d.RelationshipType = ""; return d }()},
		{"missing target", func() relationships.Draft { d := assign("T1", ""); return d }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(context.Background(), acme, tt.draft)
			assert.True(t, apperror.IsValidation(err), "got %v", err)
			assert.Zero(t, f.store.Calls())
		})
	}
}

func TestCreate_RequiresTenant(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "", assign("T1", "U1"))
	assert.True(t, apperror.IsValidation(err))
	assert.Zero(t, f.store.Calls())
}

func TestCreate_StorageConflictSurfacesAndRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext("Insert", apperror.NewConflict("lost the race"))

	_, err := f.svc.Create(context.Background(), acme, assign("T1", "U1"))
	assert.True(t, apperror.IsConflict(err))
	assert.Empty(t, f.store.All())
}

func TestCreate_MirrorFailureRollsBackPrimary(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext("Insert", nil)
	f.store.FailNext("Insert", errors.New("disk full"))

	_, err := f.svc.Create(context.Background(), acme, assign("T1", "U1"))
	require.EqualError(t, err, "disk full")
	assert.Empty(t, f.store.All())
}

func TestCreate_TenantsAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, acme, assign("T1", "U1"))
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, "globex", assign("T1", "U1"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = f.svc.FindOne(ctx, "globex", a.ID.String())
	assert.True(t, apperror.IsNotFound(err))
}

func seedRanked(f *fixture) {
	base := f.clock.t
	at := func(m int) *time.Time { t := base.Add(time.Duration(m) * time.Minute); return &t }
	f.store.Seed(
		relationships.Edge{TenantID: "acme", RelationshipType: "supplies", SourceType: "Contact", SourceID: "C1", TargetType: "Product", TargetID: "P1", Strength: 2, Priority: 1, IsActive: true, Tags: []string{"auto-detected"}, LastInteractionAt: at(1)},
		relationships.Edge{TenantID: "acme", RelationshipType: "supplies", SourceType: "Contact", SourceID: "C1", TargetType: "Product", TargetID: "P2", Strength: 5, Priority: 1, IsActive: true, LastInteractionAt: at(2)},
		relationships.Edge{TenantID: "acme", RelationshipType: "supplies", SourceType: "Contact", SourceID: "C1", TargetType: "Product", TargetID: "P3", Strength: 2, Priority: 9, IsActive: true, LastInteractionAt: at(0)},
		relationships.Edge{TenantID: "acme", RelationshipType: "supplies", SourceType: "Contact", SourceID: "C1", TargetType: "Product", TargetID: "P4", Strength: 2, Priority: 1, IsActive: true, LastInteractionAt: at(5)},
		relationships.Edge{TenantID: "acme", RelationshipType: "supplies", SourceType: "Contact", SourceID: "C1", TargetType: "Product", TargetID: "P5", Strength: 3, Priority: 1, IsActive: false, LastInteractionAt: at(3)},
		relationships.Edge{TenantID: "acme", RelationshipType: "supplies", SourceType: "Contact", SourceID: "C1", TargetType: "Product", TargetID: "P6", Strength: 5, Priority: 10, IsDeleted: true, IsActive: true},
		relationships.Edge{TenantID: "globex", RelationshipType: "supplies", SourceType: "Contact", SourceID: "C1", TargetType: "Product", TargetID: "P7", Strength: 5, Priority: 10, IsActive: true},
	)
}

func targets(edges []relationships.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.TargetID
	}
	return out
}

func assertRanked(t *testing.T, edges []relationships.Edge) {
	t.Helper()
	for i := 1; i < len(edges); i++ {
		a, b := edges[i-1], edges[i]
		if a.Priority != b.Priority {
			assert.Greater(t, a.Priority, b.Priority)
			continue
		}
		if a.Strength != b.Strength {
			assert.Greater(t, a.Strength, b.Strength)
			continue
		}
		if a.LastInteractionAt != nil && b.LastInteractionAt != nil {
			assert.False(t, a.LastInteractionAt.Before(*b.LastInteractionAt))
		}
	}
}

func TestFindMany_OrderingAndScope(t *testing.T) {
	f := newFixture(t)
	seedRanked(f)

	page, err := f.svc.FindMany(context.Background(), acme, relationships.Filter{SourceType: "Contact"}, relationships.PageRequest{})
	require.NoError(t, err)

	assert.Equal(t, []string{"P3", "P2", "P5", "P4", "P1"}, targets(page.Data))
	assertRanked(t, page.Data)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, relationships.DefaultPageLimit, page.Limit)
	assert.Equal(t, 1, page.TotalPages)
}

func TestFindMany_Filters(t *testing.T) {
	f := newFixture(t)
	seedRanked(f)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter relationships.Filter
		want   []string
	}{
		{"active only", relationships.Filter{IsActive: boolp(true)}, []string{"P3", "P2", "P4", "P1"}},
		{"strength range", relationships.Filter{MinStrength: intp(3), MaxStrength: intp(5)}, []string{"P2", "P5"}},
		{"tags match any", relationships.Filter{Tags: []string{"auto-detected", "nope"}}, []string{"P1"}},
		{"target ids", relationships.Filter{TargetType: "Product", TargetIDs: []string{"P1", "P4"}}, []string{"P4", "P1"}},
		{"type", relationships.Filter{RelationshipTypes: []string{"assigned_to"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.svc.FindMany(ctx, acme, tt.filter, relationships.PageRequest{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, targets(page.Data))
		})
	}
}

func TestFindMany_Pagination(t *testing.T) {
	f := newFixture(t)
	seedRanked(f)
	ctx := context.Background()

	page, err := f.svc.FindMany(ctx, acme, relationships.Filter{}, relationships.PageRequest{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"P5", "P4"}, targets(page.Data))
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)

	page, err = f.svc.FindMany(ctx, acme, relationships.Filter{}, relationships.PageRequest{Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, relationships.MaxPageLimit, page.Limit)
}

func TestFindOne_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, acme, relationships.Draft{
		RelationshipType: relationships.TypeMentionedIn,
		SourceType:       "Task", SourceID: "T1", TargetType: "Comment", TargetID: "C1",
	})
	require.NoError(t, err)

	got, err := f.svc.FindOne(ctx, acme, e.ID.String())
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	require.NoError(t, f.svc.SoftDelete(ctx, acme, e.ID.String()))

	for _, id := range []string{e.ID.String(), "not-a-uuid", "7f1b3f3e-0000-4000-8000-000000000000"} {
		_, err := f.svc.FindOne(ctx, acme, id)
		assert.True(t, apperror.IsNotFound(err), id)
	}
}

func TestUpdate_MergesPatchWithoutTouchingMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, acme, assign("T1", "U1"))
	require.NoError(t, err)

	f.clock.advance(time.Hour)
	updated, err := f.svc.Update(ctx, acme, e.ID.String(), relationships.Patch{
		Priority: intp(8),
		IsActive: boolp(false),
		Metadata: relationships.Metadata{"role": "observer"},
	})
	require.NoError(t, err)

	assert.Equal(t, 8, updated.Priority)
	assert.False(t, updated.IsActive)
	assert.Equal(t, e.Strength, updated.Strength)
	assert.Equal(t, f.clock.t, updated.UpdatedAt)

	mirror := liveOfType(f, relationships.TypeResponsibleFor)
	require.Len(t, mirror, 1)
	assert.Equal(t, relationships.DefaultPriority, mirror[0].Priority)
}

// interleavedStore runs between once, right after the first Get returns,
// standing in for a writer that lands between a read and its write.
type interleavedStore struct {
	*reltest.MemStore
	between func()
}

func (s *interleavedStore) Get(ctx context.Context, t tenant.ID, id uuid.UUID) (*relationships.Edge, error) {
	e, err := s.MemStore.Get(ctx, t, id)
	if run := s.between; run != nil {
		s.between = nil
		run()
	}
	return e, err
}

func (f *fixture) serviceOver(store relationships.Store) *relationships.Service {
	registry := reltypes.NewRegistry(reltypes.Seeded(), time.Hour, slog.New(slog.DiscardHandler))
	return relationships.NewService(store, registry, slog.New(slog.DiscardHandler)).WithClock(f.clock.now)
}

func storedEdge(t *testing.T, f *fixture, id uuid.UUID) relationships.Edge {
	t.Helper()
	for _, e := range f.store.All() {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("edge %s not stored", id)
	return relationships.Edge{}
}

func TestUpdate_DoesNotReviveEdgeDeletedMidway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, acme, assign("T1", "U1"))
	require.NoError(t, err)

	store := &interleavedStore{MemStore: f.store}
	store.between = func() {
		require.NoError(t, f.svc.IncrementInteraction(ctx, acme,
			relationships.Ref(relationships.KindTask, "T1"), relationships.Ref(relationships.KindUser, "U1"),
			relationships.TypeAssignedTo))
		require.NoError(t, f.svc.SoftDelete(ctx, acme, e.ID.String()))
	}

	_, err = f.serviceOver(store).Update(ctx, acme, e.ID.String(), relationships.Patch{Priority: intp(5)})
	assert.True(t, apperror.IsNotFound(err), "got %v", err)

	assert.Empty(t, liveOfType(f, relationships.TypeAssignedTo))
	stored := storedEdge(t, f, e.ID)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, 2, stored.InteractionCount)
	assert.Equal(t, relationships.DefaultPriority, stored.Priority)
}

func TestUpdate_KeepsConcurrentInteraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, acme, assign("T1", "U1"))
	require.NoError(t, err)

	store := &interleavedStore{MemStore: f.store}
	store.between = func() {
		require.NoError(t, f.svc.IncrementInteraction(ctx, acme,
			relationships.Ref(relationships.KindTask, "T1"), relationships.Ref(relationships.KindUser, "U1"),
			relationships.TypeAssignedTo))
	}

	_, err = f.serviceOver(store).Update(ctx, acme, e.ID.String(), relationships.Patch{Priority: intp(5)})
	require.NoError(t, err)

	stored := storedEdge(t, f, e.ID)
	assert.Equal(t, 5, stored.Priority)
	assert.Equal(t, 2, stored.InteractionCount)
}

func TestSoftDelete_SecondCallIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, acme, assign("T1", "U1"))
	require.NoError(t, err)
	require.NoError(t, f.svc.SoftDelete(ctx, acme, e.ID.String()))

	err = f.svc.SoftDelete(ctx, acme, e.ID.String())
	assert.True(t, apperror.IsNotFound(err), "got %v", err)
}

func TestUpdate_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(context.Background(), acme, "7f1b3f3e-0000-4000-8000-000000000000", relationships.Patch{Strength: intp(9)})
	assert.True(t, apperror.IsValidation(err))
	assert.Zero(t, f.store.Calls())
}

func TestSoftDelete_DoesNotCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.svc.Create(ctx, acme, assign("T1", "U1"))
	require.NoError(t, err)
	require.NoError(t, f.svc.SoftDelete(ctx, acme, e.ID.String()))

	assert.Empty(t, liveOfType(f, relationships.TypeAssignedTo))
	assert.Len(t, liveOfType(f, relationships.TypeResponsibleFor), 1)

	all := f.store.All()
	require.Len(t, all, 2, "tombstones stay physically present")

	err = f.svc.SoftDelete(ctx, acme, e.ID.String())
	assert.True(t, apperror.IsNotFound(err))
}

func TestSoftDelete_AllowsRecreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, acme, relationships.Draft{
		RelationshipType: relationships.TypeMentionedIn,
		SourceType:       "Task", SourceID: "T1", TargetType: "Comment", TargetID: "C1",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.SoftDelete(ctx, acme, first.ID.String()))

	second, err := f.svc.Create(ctx, acme, relationships.Draft{
		RelationshipType: relationships.TypeMentionedIn,
		SourceType:       "Task", SourceID: "T1", TargetType: "Comment", TargetID: "C1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, f.store.All(), 2)
}

func TestGetForEntity_BothDirectionsActiveOnly(t *testing.T) {
	f := newFixture(t)
	seedRanked(f)
	f.store.Seed(relationships.Edge{
		TenantID: "acme", RelationshipType: "supplied_by", SourceType: "Product", SourceID: "P9",
		TargetType: "Contact", TargetID: "C1", Strength: 1, Priority: 1, IsActive: true,
	})

	edges, err := f.svc.GetForEntity(context.Background(), acme, relationships.Ref("Contact", "C1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"P3", "P2", "P4", "P1", "C1"}, targets(edges))
	assertRanked(t, edges)
}

func TestIncrementInteraction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, acme, assign("T1", "U1"))
	require.NoError(t, err)

	f.clock.advance(time.Hour)
	task, user := relationships.Ref("Task", "T1"), relationships.Ref("User", "U1")
	require.NoError(t, f.svc.IncrementInteraction(ctx, acme, task, user, relationships.TypeAssignedTo))

	e := liveOfType(f, relationships.TypeAssignedTo)[0]
	assert.Equal(t, 2, e.InteractionCount)
	assert.Equal(t, f.clock.t, *e.LastInteractionAt)

	// Missing edge is a no-op, not an error.
	require.NoError(t, f.svc.IncrementInteraction(ctx, acme, user, task, relationships.TypeAssignedTo))
	assert.Len(t, f.store.All(), 2)
}

func TestCreateFromMention(t *testing.T) {
	f := newFixture(t)

	e, err := f.svc.CreateFromMention(context.Background(), acme, relationships.Mention{
		SourceType:  "Comment",
		SourceID:    "C1",
		TargetType:  "Task",
		TargetID:    "T1",
		ContextType: "note",
		ContextData: map[string]any{"excerpt": "see T1"},
	})
	require.NoError(t, err)

	assert.Equal(t, relationships.KindTask, e.SourceType)
	assert.Equal(t, "T1", e.SourceID)
	assert.Equal(t, relationships.KindComment, e.TargetType)
	assert.Equal(t, "C1", e.TargetID)
	assert.Equal(t, relationships.TypeMentionedIn, e.RelationshipType)
	assert.Equal(t, []string{"mention", "note"}, []string(e.Tags))
	assert.Equal(t, 1, e.Strength)
	assert.Equal(t, "mention", e.Metadata.CreatedFrom())
	assert.Equal(t, "note", e.Metadata[relationships.MetaContextType])
	ts, ok := e.Metadata.Time(relationships.MetaTimestamp)
	assert.True(t, ok)
	assert.Equal(t, f.clock.t, ts)

	assert.Len(t, f.store.All(), 1, "mentioned_in is unidirectional")
}

func TestCreateFromMention_WithoutContext(t *testing.T) {
	f := newFixture(t)

	e, err := f.svc.CreateFromMention(context.Background(), acme, relationships.Mention{
		SourceType: "Comment", SourceID: "C1", TargetType: "Task", TargetID: "T1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mention"}, []string(e.Tags))
	assert.NotContains(t, e.Metadata, relationships.MetaContextType)
}

func TestSuggest(t *testing.T) {
	f := newFixture(t)
	edge := func(src, tgt string, strength int, active bool) relationships.Edge {
		return relationships.Edge{
			TenantID: "acme", RelationshipType: "assigned_to",
			SourceType: "Task", SourceID: src, TargetType: "User", TargetID: tgt,
			Strength: strength, Priority: 1, IsActive: active,
		}
	}
	f.store.Seed(
		edge("T2", "U1", 1, true), edge("T3", "U1", 1, true),
		edge("T2", "U2", 5, true), edge("T4", "U2", 4, true),
		edge("T5", "U3", 5, true),
		edge("T1", "U4", 5, true), edge("T1", "U4", 5, true), edge("T6", "U4", 2, true),
		edge("T7", "U5", 5, false), edge("T8", "U5", 5, false),
	)

	got, err := f.svc.Suggest(context.Background(), acme, relationships.Ref("Task", "T1"), "User")
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, "U2", got[0].TargetID)
	assert.Equal(t, 2, got[0].Count)
	assert.InDelta(t, 4.5, got[0].AvgStrength, 0.001)
	assert.Equal(t, "U1", got[1].TargetID)
	assert.Equal(t, "U3", got[2].TargetID)
	assert.Equal(t, "U4", got[3].TargetID, "edges of the entity itself are excluded")
	assert.Equal(t, 1, got[3].Count)
}

func TestSuggest_CapsAtTen(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 15; i++ {
		f.store.Seed(relationships.Edge{
			TenantID: "acme", RelationshipType: "belongs_to", SourceType: "Task", SourceID: "T" + string(rune('a'+i)),
			TargetType: "Project", TargetID: "P" + string(rune('a'+i)), Strength: 1, Priority: 1, IsActive: true,
		})
	}

	got, err := f.svc.Suggest(context.Background(), acme, relationships.Ref("Task", "T0"), "Project")
	require.NoError(t, err)
	assert.Len(t, got, relationships.SuggestionLimit)
}

func projectLink(task string, project *string) relationships.LinkReplacement {
	return relationships.LinkReplacement{
		Entity:      relationships.Ref(relationships.KindTask, task),
		ForwardType: relationships.TypeBelongsTo,
		ReverseType: relationships.TypeIncludes,
		TargetKind:  relationships.KindProject,
		NewTargetID: project,
	}
}

func strp(s string) *string { return &s }

func belongsTo(f *fixture, task string) []string {
	var out []string
	for _, e := range f.store.Live(acme, relationships.EdgeMatch{SourceType: "Task", SourceID: task, RelationshipType: relationships.TypeBelongsTo}) {
		out = append(out, e.TargetID)
	}
	return out
}

func includes(f *fixture, project string) []string {
	var out []string
	for _, e := range f.store.Live(acme, relationships.EdgeMatch{SourceType: "Project", SourceID: project, RelationshipType: relationships.TypeIncludes}) {
		out = append(out, e.TargetID)
	}
	return out
}

func TestReplaceLink_MovesBetweenTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ReplaceLink(ctx, acme, projectLink("T1", strp("P1"))))
	assert.Equal(t, []string{"P1"}, belongsTo(f, "T1"))
	assert.Equal(t, []string{"T1"}, includes(f, "P1"))

	require.NoError(t, f.svc.ReplaceLink(ctx, acme, projectLink("T1", strp("P2"))))
	assert.Equal(t, []string{"P2"}, belongsTo(f, "T1"))
	assert.Empty(t, includes(f, "P1"))
	assert.Equal(t, []string{"T1"}, includes(f, "P2"))

	edges, err := f.svc.GetForEntity(ctx, acme, relationships.Ref("Task", "T1"))
	require.NoError(t, err)
	var live []string
	for _, e := range edges {
		if e.RelationshipType == relationships.TypeBelongsTo {
			live = append(live, e.TargetID)
		}
	}
	assert.Equal(t, []string{"P2"}, live)
}

func TestReplaceLink_ReactivatesTombstones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ReplaceLink(ctx, acme, projectLink("T1", strp("P1"))))
	require.NoError(t, f.svc.ReplaceLink(ctx, acme, projectLink("T1", strp("P2"))))
	f.clock.advance(time.Minute)
	require.NoError(t, f.svc.ReplaceLink(ctx, acme, projectLink("T1", strp("P1"))))

	assert.Equal(t, []string{"P1"}, belongsTo(f, "T1"))
	assert.Len(t, f.store.All(), 4, "returning to P1 reuses its rows")

	e := f.store.Live(acme, relationships.EdgeMatch{SourceID: "T1", TargetID: "P1"})[0]
	assert.True(t, e.IsActive)
	assert.Nil(t, e.DeletedAt)
	assert.Equal(t, f.clock.t, *e.LastInteractionAt)
}

func TestReplaceLink_RetiresStrayDuplicates(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(
		relationships.Edge{TenantID: "acme", RelationshipType: "belongs_to", SourceType: "Task", SourceID: "T1", TargetType: "Project", TargetID: "P1", Strength: 1, Priority: 1, IsActive: true},
		relationships.Edge{TenantID: "acme", RelationshipType: "belongs_to", SourceType: "Task", SourceID: "T1", TargetType: "Project", TargetID: "P9", Strength: 1, Priority: 1, IsActive: true},
		relationships.Edge{TenantID: "acme", RelationshipType: "includes", SourceType: "Project", SourceID: "P9", TargetType: "Task", TargetID: "T1", Strength: 1, Priority: 1, IsActive: true},
	)

	require.NoError(t, f.svc.ReplaceLink(context.Background(), acme, projectLink("T1", strp("P2"))))
	assert.Equal(t, []string{"P2"}, belongsTo(f, "T1"))
	assert.Empty(t, includes(f, "P9"))
}

func TestReplaceLink_NilTargetOnlyRetires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ReplaceLink(ctx, acme, projectLink("T1", strp("P1"))))
	require.NoError(t, f.svc.ReplaceLink(ctx, acme, projectLink("T1", nil)))

	assert.Empty(t, belongsTo(f, "T1"))
	assert.Empty(t, includes(f, "P1"))
}

func TestReplaceLink_FailureLeavesEdgesUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ReplaceLink(ctx, acme, projectLink("T1", strp("P1"))))
	before := f.store.All()

	// Crash after the old pair is retired and the new forward edge written.
	f.store.FailNext("Insert", nil)
	f.store.FailNext("Insert", errors.New("connection reset"))
	err := f.svc.ReplaceLink(ctx, acme, projectLink("T1", strp("P2")))
	require.Error(t, err)

	assert.Equal(t, before, f.store.All())
	assert.Equal(t, []string{"P1"}, belongsTo(f, "T1"))
	assert.Equal(t, []string{"T1"}, includes(f, "P1"))
	assert.Empty(t, includes(f, "P2"))
}

func TestUnlink_RetiresEdgeAndMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, acme, assign("T1", "U1"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, acme, assign("T1", "U2"))
	require.NoError(t, err)

	n, err := f.svc.Unlink(ctx, acme, relationships.EdgeKey{
		Source: relationships.Ref("Task", "T1"),
		Target: relationships.Ref("User", "U1"),
		Type:   relationships.TypeAssignedTo,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	live := liveOfType(f, relationships.TypeAssignedTo)
	require.Len(t, live, 1)
	assert.Equal(t, "U2", live[0].TargetID)
	assert.Len(t, liveOfType(f, relationships.TypeResponsibleFor), 1)
}
