package tasks

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bizsuite/server/domain/relationships"
)

// Task represents a task in the biz.tasks table
type Task struct {
	bun.BaseModel `bun:"table:biz.tasks,alias:t"`

	ID          string     `bun:"id,pk" json:"id"`
	TenantID    string     `bun:"tenant_id,notnull" json:"-"`
	Title       string     `bun:"title,notnull" json:"title"`
	Description *string    `bun:"description" json:"description,omitempty"`
	Status      string     `bun:"status,notnull" json:"status"`
	ProjectID   *string    `bun:"project_id" json:"projectId"`
	DueDate     *time.Time `bun:"due_date" json:"dueDate,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
	DeletedAt   *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// User is the slice of biz.users task listings render.
type User struct {
	bun.BaseModel `bun:"table:biz.users,alias:u"`

	ID       string  `bun:"id,pk" json:"id"`
	TenantID string  `bun:"tenant_id,notnull" json:"-"`
	Name     string  `bun:"name,notnull" json:"name"`
	Email    *string `bun:"email" json:"email,omitempty"`
}

// Project is the slice of biz.projects task listings render.
type Project struct {
	bun.BaseModel `bun:"table:biz.projects,alias:p"`

	ID        string     `bun:"id,pk" json:"id"`
	TenantID  string     `bun:"tenant_id,notnull" json:"-"`
	Name      string     `bun:"name,notnull" json:"name"`
	Status    string     `bun:"status,notnull" json:"status"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

const (
	StatusTodo = "todo"

	DefaultAssigneeRole = "assignee"

	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Assignee is one resolved assigned_to edge of a task.
type Assignee struct {
	User           User                   `json:"user"`
	Role           string                 `json:"role"`
	Metadata       relationships.Metadata `json:"metadata"`
	RelationshipID uuid.UUID              `json:"relationshipId"`
}

// RelatedProject is one resolved belongs_to edge of a task.
type RelatedProject struct {
	Project        Project   `json:"project"`
	RelationshipID uuid.UUID `json:"relationshipId"`
}

// EnrichedTask is a task plus the fields derived from its edges. The slices
// are never nil.
type EnrichedTask struct {
	Task
	Assignees       []Assignee       `json:"assignees"`
	AssigneeIDs     []string         `json:"assigneeIds"`
	AssigneesCount  int              `json:"assigneesCount"`
	ProjectIDs      []string         `json:"projectIds"`
	RelatedProjects []RelatedProject `json:"relatedProjects"`
}

// ListParams contains parameters for listing tasks
type ListParams struct {
	Status    string
	ProjectID string
	Limit     int
	Offset    int
}

func (p ListParams) normalize() ListParams {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ListResponse wraps the list of tasks for the API response
type ListResponse struct {
	Data  []EnrichedTask `json:"data"`
	Total int            `json:"total"`
}

type AssigneeInput struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role,omitempty" validate:"omitempty,max=64"`
}

// CreateRequest is the request body for creating a task
type CreateRequest struct {
	Title       string          `json:"title" validate:"required,max=500"`
	Description *string         `json:"description,omitempty"`
	Status      string          `json:"status,omitempty" validate:"omitempty,max=32"`
	ProjectID   *string         `json:"projectId,omitempty"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
	Assignees   []AssigneeInput `json:"assignees,omitempty" validate:"omitempty,dive"`
}

// ChangeProjectRequest moves a task. A null projectId detaches it.
type ChangeProjectRequest struct {
	ProjectID *string `json:"projectId"`
}
