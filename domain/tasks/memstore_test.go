package tasks_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/domain/relationships/reltest"
	"github.com/bizsuite/server/domain/tasks"
	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/tenant"
)

// memTasks is an in-memory tasks.Store whose transactions roll back task
// rows together with the wrapped reltest.MemStore.
type memTasks struct {
	mu       sync.Mutex
	tasks    map[string]tasks.Task
	users    map[string]tasks.User
	projects map[string]tasks.Project
	calls    map[string]int

	edges *reltest.MemStore
}

func newMemTasks() *memTasks {
	return &memTasks{
		tasks:    map[string]tasks.Task{},
		users:    map[string]tasks.User{},
		projects: map[string]tasks.Project{},
		calls:    map[string]int{},
		edges:    reltest.NewMemStore(),
	}
}

func (m *memTasks) count(method string) {
	m.calls[method]++
}

// roundTrips sums task store and edge store calls.
func (m *memTasks) roundTrips() int {
	m.mu.Lock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	m.mu.Unlock()
	return n + m.edges.Calls()
}

func (m *memTasks) resetCalls() {
	m.mu.Lock()
	m.calls = map[string]int{}
	m.mu.Unlock()
	m.edges.ResetCalls()
}

func (m *memTasks) addUser(t tenant.ID, id, name string) {
	m.users[id] = tasks.User{ID: id, TenantID: string(t), Name: name}
}

func (m *memTasks) addProject(t tenant.ID, id, name string) {
	m.projects[id] = tasks.Project{ID: id, TenantID: string(t), Name: name, Status: "active"}
}

func (m *memTasks) deleteProject(id string) {
	p := m.projects[id]
	now := time.Now()
	p.DeletedAt = &now
	m.projects[id] = p
}

func (m *memTasks) addTask(t tenant.ID, id string, createdAt time.Time) {
	m.tasks[id] = tasks.Task{ID: id, TenantID: string(t), Title: "task " + id, Status: tasks.StatusTodo, CreatedAt: createdAt, UpdatedAt: createdAt}
}

func (m *memTasks) task(id string) tasks.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id]
}

func (m *memTasks) List(ctx context.Context, t tenant.ID, params tasks.ListParams) ([]tasks.Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("List")

	all := []tasks.Task{}
	for _, task := range m.tasks {
		if task.TenantID != string(t) {
			continue
		}
		if params.Status != "" && task.Status != params.Status {
			continue
		}
		if params.ProjectID != "" && (task.ProjectID == nil || *task.ProjectID != params.ProjectID) {
			continue
		}
		all = append(all, task)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	start := min(params.Offset, len(all))
	end := min(start+params.Limit, len(all))
	return all[start:end], len(all), nil
}

func (m *memTasks) Get(ctx context.Context, t tenant.ID, id string) (*tasks.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("Get")
	task, ok := m.tasks[id]
	if !ok || task.TenantID != string(t) {
		return nil, apperror.NewNotFound("task", id)
	}
	return &task, nil
}

func (m *memTasks) Insert(ctx context.Context, task *tasks.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("Insert")
	m.tasks[task.ID] = *task
	return nil
}

func (m *memTasks) SetProject(ctx context.Context, t tenant.ID, id string, projectID *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("SetProject")
	task, ok := m.tasks[id]
	if !ok || task.TenantID != string(t) {
		return apperror.NewNotFound("task", id)
	}
	if projectID != nil {
		p := *projectID
		projectID = &p
	}
	task.ProjectID = projectID
	task.UpdatedAt = at
	m.tasks[id] = task
	return nil
}

func (m *memTasks) UsersByIDs(ctx context.Context, t tenant.ID, ids []string) ([]tasks.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("UsersByIDs")
	out := []tasks.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok && u.TenantID == string(t) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memTasks) ProjectsByIDs(ctx context.Context, t tenant.ID, ids []string) ([]tasks.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("ProjectsByIDs")
	out := []tasks.Project{}
	for _, id := range ids {
		if p, ok := m.projects[id]; ok && p.TenantID == string(t) && p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memTasks) Edges() relationships.Store {
	return m.edges
}

func (m *memTasks) RunInTx(ctx context.Context, fn func(tx tasks.Store) error) error {
	return m.runInTx(ctx, m.edges, fn)
}

func (m *memTasks) runInTx(ctx context.Context, edges relationships.Store, fn func(tx tasks.Store) error) error {
	m.mu.Lock()
	snapshot := make(map[string]tasks.Task, len(m.tasks))
	for k, v := range m.tasks {
		snapshot[k] = v
	}
	m.mu.Unlock()

	err := edges.RunInTx(ctx, func(etx relationships.Store) error {
		return fn(memTasksTx{memTasks: m, edges: etx})
	})
	if err != nil {
		m.mu.Lock()
		m.tasks = snapshot
		m.mu.Unlock()
	}
	return err
}

type memTasksTx struct {
	*memTasks
	edges relationships.Store
}

func (tx memTasksTx) Edges() relationships.Store {
	return tx.edges
}

func (tx memTasksTx) RunInTx(ctx context.Context, fn func(tx tasks.Store) error) error {
	return tx.runInTx(ctx, tx.edges, fn)
}
