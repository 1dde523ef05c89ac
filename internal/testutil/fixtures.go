package testutil

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// FixtureTenant is the tenant fixtures are written under unless stated.
const FixtureTenant = "tenant-fixture"

func newID() string { return uuid.NewString() }

// CreateUser inserts a user and returns its id.
func CreateUser(ctx context.Context, db bun.IDB, tenantID, name string) (string, error) {
	id := newID()
	_, err := db.NewRaw(
		"INSERT INTO biz.users (id, tenant_id, name, email) VALUES (?, ?, ?, ?)",
		id, tenantID, name, name+"@example.test",
	).Exec(ctx)
	return id, err
}

// CreateProject inserts an active project and returns its id.
func CreateProject(ctx context.Context, db bun.IDB, tenantID, name string) (string, error) {
	id := newID()
	_, err := db.NewRaw(
		"INSERT INTO biz.projects (id, tenant_id, name) VALUES (?, ?, ?)",
		id, tenantID, name,
	).Exec(ctx)
	return id, err
}

// DeleteProject soft-deletes a project.
func DeleteProject(ctx context.Context, db bun.IDB, id string) error {
	_, err := db.NewRaw("UPDATE biz.projects SET deleted_at = now() WHERE id = ?", id).Exec(ctx)
	return err
}

// CreateTask inserts a task. createdAt orders task listings.
func CreateTask(ctx context.Context, db bun.IDB, tenantID, title string, createdAt time.Time) (string, error) {
	id := newID()
	_, err := db.NewRaw(
		"INSERT INTO biz.tasks (id, tenant_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		id, tenantID, title, createdAt, createdAt,
	).Exec(ctx)
	return id, err
}

func CreateContact(ctx context.Context, db bun.IDB, tenantID, name, company string) (string, error) {
	id := newID()
	_, err := db.NewRaw(
		"INSERT INTO biz.contacts (id, tenant_id, name, company) VALUES (?, ?, ?, NULLIF(?, ''))",
		id, tenantID, name, company,
	).Exec(ctx)
	return id, err
}

func CreateProduct(ctx context.Context, db bun.IDB, tenantID, name string) (string, error) {
	id := newID()
	_, err := db.NewRaw(
		"INSERT INTO biz.products (id, tenant_id, name) VALUES (?, ?, ?)",
		id, tenantID, name,
	).Exec(ctx)
	return id, err
}

// CreateCostLine inserts a cost line against productID.
func CreateCostLine(ctx context.Context, db bun.IDB, tenantID, productID, description string, amount float64) (string, error) {
	id := newID()
	_, err := db.NewRaw(
		"INSERT INTO biz.cost_lines (id, tenant_id, product_id, description, amount) VALUES (?, ?, ?, ?, ?)",
		id, tenantID, productID, description, amount,
	).Exec(ctx)
	return id, err
}
