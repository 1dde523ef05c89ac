// Package reltest provides an in-memory relationships.Store for tests. It
// enforces live-key uniqueness, rolls back failed transactions, counts calls
// per method and can inject failures.
package reltest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/tenant"
)

// MemStore implements relationships.Store over a slice of edges.
type MemStore struct {
	mu    sync.Mutex
	edges []*relationships.Edge
	calls map[string]int
	fail  map[string][]error

	txMu sync.Mutex
}

var _ relationships.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		calls: map[string]int{},
		fail:  map[string][]error{},
	}
}

// Calls returns the total number of storage calls, excluding RunInTx.
func (m *MemStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// CallsTo returns how often method was called.
func (m *MemStore) CallsTo(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MemStore) ResetCalls() {
	m.mu.Lock()
	m.calls = map[string]int{}
	m.mu.Unlock()
}

// FailNext makes the next call to method return err. Calls queue up.
func (m *MemStore) FailNext(method string, err error) {
	m.mu.Lock()
	m.fail[method] = append(m.fail[method], err)
	m.mu.Unlock()
}

// All returns copies of every stored edge, tombstones included.
func (m *MemStore) All() []relationships.Edge {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]relationships.Edge, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, *e.Clone())
	}
	return out
}

// Live returns copies of live edges of tenant t matching match.
func (m *MemStore) Live(t tenant.ID, match relationships.EdgeMatch) []relationships.Edge {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []relationships.Edge
	for _, e := range m.edges {
		if e.TenantID == string(t) && !e.IsDeleted && match.Matches(e) {
			out = append(out, *e.Clone())
		}
	}
	return out
}

// Seed stores e as-is, bypassing uniqueness checks and call counting.
func (m *MemStore) Seed(edges ...relationships.Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range edges {
		e := edges[i].Clone()
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		m.edges = append(m.edges, e)
	}
}

// enter records the call and pops an injected failure. Caller holds mu.
func (m *MemStore) enter(method string) error {
	m.calls[method]++
	if q := m.fail[method]; len(q) > 0 {
		m.fail[method] = q[1:]
		return q[0]
	}
	return nil
}

func (m *MemStore) liveConflict(e *relationships.Edge) bool {
	if e.IsDeleted {
		return false
	}
	key := e.Key()
	for _, o := range m.edges {
		if o.ID != e.ID && o.TenantID == e.TenantID && !o.IsDeleted && o.Key() == key {
			return true
		}
	}
	return false
}

func conflict() error {
	return apperror.NewConflict("a live relationship with these endpoints and type already exists")
}

func (m *MemStore) Insert(ctx context.Context, e *relationships.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Insert"); err != nil {
		return err
	}
	if m.liveConflict(e) {
		return conflict()
	}
	m.edges = append(m.edges, e.Clone())
	return nil
}

func (m *MemStore) Update(ctx context.Context, e *relationships.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Update"); err != nil {
		return err
	}
	o := m.find(e.TenantID, e.ID, true)
	if o == nil {
		return apperror.NewNotFound("relationship", e.ID.String())
	}
	if m.liveConflict(e) {
		return conflict()
	}
	c := e.Clone()
	o.Strength = c.Strength
	o.Priority = c.Priority
	o.IsActive = c.IsActive
	o.Metadata = c.Metadata
	o.Tags = c.Tags
	o.UpdatedAt = c.UpdatedAt
	return nil
}

func (m *MemStore) SoftDelete(ctx context.Context, t tenant.ID, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SoftDelete"); err != nil {
		return err
	}
	o := m.find(string(t), id, true)
	if o == nil {
		return apperror.NewNotFound("relationship", id.String())
	}
	ts := at
	o.IsDeleted = true
	o.DeletedAt = &ts
	o.UpdatedAt = at
	return nil
}

func (m *MemStore) Revive(ctx context.Context, e *relationships.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Revive"); err != nil {
		return err
	}
	o := m.find(e.TenantID, e.ID, false)
	if o == nil {
		return apperror.NewNotFound("relationship", e.ID.String())
	}
	e.IsActive = true
	e.IsDeleted = false
	e.DeletedAt = nil
	if m.liveConflict(e) {
		return conflict()
	}
	c := e.Clone()
	o.IsActive = true
	o.IsDeleted = false
	o.DeletedAt = nil
	o.Metadata = c.Metadata
	o.LastInteractionAt = c.LastInteractionAt
	o.UpdatedAt = c.UpdatedAt
	return nil
}

// find returns the stored edge, optionally live only. Caller holds mu.
func (m *MemStore) find(tenantID string, id uuid.UUID, liveOnly bool) *relationships.Edge {
	for _, o := range m.edges {
		if o.ID == id && o.TenantID == tenantID && (!liveOnly || !o.IsDeleted) {
			return o
		}
	}
	return nil
}

func (m *MemStore) Get(ctx context.Context, t tenant.ID, id uuid.UUID) (*relationships.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Get"); err != nil {
		return nil, err
	}
	for _, e := range m.edges {
		if e.ID == id && e.TenantID == string(t) && !e.IsDeleted {
			return e.Clone(), nil
		}
	}
	return nil, apperror.NewNotFound("relationship", id.String())
}

func (m *MemStore) FindLive(ctx context.Context, t tenant.ID, key relationships.EdgeKey) (*relationships.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindLive"); err != nil {
		return nil, err
	}
	for _, e := range m.edges {
		if e.TenantID == string(t) && !e.IsDeleted && e.Key() == key {
			return e.Clone(), nil
		}
	}
	return nil, nil
}

func (m *MemStore) FindLatest(ctx context.Context, t tenant.ID, key relationships.EdgeKey) (*relationships.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindLatest"); err != nil {
		return nil, err
	}
	var best *relationships.Edge
	for _, e := range m.edges {
		if e.TenantID != string(t) || e.Key() != key {
			continue
		}
		switch {
		case best == nil,
			best.IsDeleted && !e.IsDeleted,
			best.IsDeleted == e.IsDeleted && e.UpdatedAt.After(best.UpdatedAt):
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Clone(), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func matchesFilter(e *relationships.Edge, f relationships.Filter) bool {
	if f.SourceType != "" && e.SourceType != f.SourceType {
		return false
	}
	if len(f.SourceIDs) > 0 && !contains(f.SourceIDs, e.SourceID) {
		return false
	}
	if f.TargetType != "" && e.TargetType != f.TargetType {
		return false
	}
	if len(f.TargetIDs) > 0 && !contains(f.TargetIDs, e.TargetID) {
		return false
	}
	if len(f.RelationshipTypes) > 0 && !contains(f.RelationshipTypes, e.RelationshipType) {
		return false
	}
	if f.MinStrength != nil && e.Strength < *f.MinStrength {
		return false
	}
	if f.MaxStrength != nil && e.Strength > *f.MaxStrength {
		return false
	}
	if f.IsActive != nil && e.IsActive != *f.IsActive {
		return false
	}
	if len(f.Tags) > 0 {
		hit := false
		for _, tag := range e.Tags {
			if contains(f.Tags, tag) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func lastInteraction(e *relationships.Edge) time.Time {
	if e.LastInteractionAt == nil {
		return time.Time{}
	}
	return *e.LastInteractionAt
}

// sortRanked orders edges the way the SQL store does.
func sortRanked(edges []relationships.Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := &edges[i], &edges[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		la, lb := lastInteraction(a), lastInteraction(b)
		if !la.Equal(lb) {
			return la.After(lb)
		}
		return a.ID.String() < b.ID.String()
	})
}

func (m *MemStore) selectLive(t tenant.ID, keep func(*relationships.Edge) bool) []relationships.Edge {
	out := []relationships.Edge{}
	for _, e := range m.edges {
		if e.TenantID == string(t) && !e.IsDeleted && keep(e) {
			out = append(out, *e.Clone())
		}
	}
	sortRanked(out)
	return out
}

func (m *MemStore) List(ctx context.Context, t tenant.ID, f relationships.Filter, page relationships.PageRequest) ([]relationships.Edge, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("List"); err != nil {
		return nil, 0, err
	}
	all := m.selectLive(t, func(e *relationships.Edge) bool { return matchesFilter(e, f) })
	start := min(page.Offset(), len(all))
	end := min(start+page.Limit, len(all))
	return all[start:end], len(all), nil
}

func (m *MemStore) ListAll(ctx context.Context, t tenant.ID, f relationships.Filter) ([]relationships.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListAll"); err != nil {
		return nil, err
	}
	return m.selectLive(t, func(e *relationships.Edge) bool { return matchesFilter(e, f) }), nil
}

func (m *MemStore) ListForEntity(ctx context.Context, t tenant.ID, ref relationships.EntityRef) ([]relationships.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListForEntity"); err != nil {
		return nil, err
	}
	return m.selectLive(t, func(e *relationships.Edge) bool {
		if !e.IsActive {
			return false
		}
		return (e.SourceType == ref.Kind && e.SourceID == ref.ID) ||
			(e.TargetType == ref.Kind && e.TargetID == ref.ID)
	}), nil
}

func (m *MemStore) SoftDeleteMatching(ctx context.Context, t tenant.ID, matches []relationships.EdgeMatch, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SoftDeleteMatching"); err != nil {
		return 0, err
	}
	n := 0
	for _, e := range m.edges {
		if e.TenantID != string(t) || e.IsDeleted {
			continue
		}
		for _, match := range matches {
			if !match.IsZero() && match.Matches(e) {
				ts := at
				e.IsDeleted = true
				e.DeletedAt = &ts
				e.UpdatedAt = at
				n++
				break
			}
		}
	}
	return n, nil
}

func (m *MemStore) IncrementInteraction(ctx context.Context, t tenant.ID, key relationships.EdgeKey, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("IncrementInteraction"); err != nil {
		return false, err
	}
	for _, e := range m.edges {
		if e.TenantID == string(t) && !e.IsDeleted && e.Key() == key {
			ts := at
			e.InteractionCount++
			e.LastInteractionAt = &ts
			e.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) SuggestTargets(ctx context.Context, t tenant.ID, entity relationships.EntityRef, targetKind relationships.EntityKind, limit int) ([]relationships.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SuggestTargets"); err != nil {
		return nil, err
	}

	type agg struct {
		count int
		sum   int
	}
	groups := map[string]*agg{}
	for _, e := range m.edges {
		if e.TenantID != string(t) || e.IsDeleted || !e.IsActive {
			continue
		}
		if e.SourceType != entity.Kind || e.SourceID == entity.ID || e.TargetType != targetKind {
			continue
		}
		g := groups[e.TargetID]
		if g == nil {
			g = &agg{}
			groups[e.TargetID] = g
		}
		g.count++
		g.sum += e.Strength
	}

	out := make([]relationships.Suggestion, 0, len(groups))
	for id, g := range groups {
		out = append(out, relationships.Suggestion{
			TargetType:  targetKind,
			TargetID:    id,
			Count:       g.count,
			AvgStrength: float64(g.sum) / float64(g.count),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].AvgStrength != out[j].AvgStrength {
			return out[i].AvgStrength > out[j].AvgStrength
		}
		return strings.Compare(out[i].TargetID, out[j].TargetID) < 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RunInTx snapshots the store and restores it if fn fails. Transactions are
// serialized; RunInTx on the store handed to fn nests like a savepoint.
func (m *MemStore) RunInTx(ctx context.Context, fn func(tx relationships.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.savepoint(fn)
}

func (m *MemStore) savepoint(fn func(tx relationships.Store) error) error {
	m.mu.Lock()
	snapshot := make([]*relationships.Edge, len(m.edges))
	for i, e := range m.edges {
		snapshot[i] = e.Clone()
	}
	m.mu.Unlock()

	if err := fn(txStore{m}); err != nil {
		m.mu.Lock()
		m.edges = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

type txStore struct {
	*MemStore
}

func (s txStore) RunInTx(ctx context.Context, fn func(tx relationships.Store) error) error {
	return s.savepoint(fn)
}
