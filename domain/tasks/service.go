package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizsuite/server/domain/relationships"
	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/logger"
	"github.com/bizsuite/server/pkg/tenant"
	"github.com/bizsuite/server/pkg/tracing"
	"github.com/bizsuite/server/pkg/validation"
)

// Service handles business logic for tasks. Assignment and project
// membership live only in relationship edges; the project_id column mirrors
// the belongs_to edge and is written in the same transaction.
type Service struct {
	store Store
	rel   *relationships.Service
	log   *slog.Logger
	now   func() time.Time
}

// NewService creates a new tasks service
func NewService(store Store, rel *relationships.Service, log *slog.Logger) *Service {
	return &Service{
		store: store,
		rel:   rel,
		log:   log.With(logger.Scope("tasks.svc")),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().Truncate(time.Microsecond)
}

// inTx runs fn with a task store and relationship engine bound to one
// transaction.
func (s *Service) inTx(ctx context.Context, fn func(st Store, rel *relationships.Service) error) error {
	return s.store.RunInTx(ctx, func(tx Store) error {
		return fn(tx, s.rel.WithStore(tx.Edges()))
	})
}

func projectLink(taskID string, projectID *string) relationships.LinkReplacement {
	return relationships.LinkReplacement{
		Entity:      relationships.Ref(relationships.KindTask, taskID),
		ForwardType: relationships.TypeBelongsTo,
		ReverseType: relationships.TypeIncludes,
		TargetKind:  relationships.KindProject,
		NewTargetID: projectID,
	}
}

func blankToNil(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return id
}

// requireProject fails with DependencyNotFound unless projectID names a live project.
func (s *Service) requireProject(ctx context.Context, t tenant.ID, projectID *string) error {
	if projectID == nil {
		return nil
	}
	found, err := s.store.ProjectsByIDs(ctx, t, []string{*projectID})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return apperror.NewDependencyNotFound("project", *projectID)
	}
	return nil
}

func (s *Service) requireUser(ctx context.Context, t tenant.ID, userID string) error {
	found, err := s.store.UsersByIDs(ctx, t, []string{userID})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return apperror.NewDependencyNotFound("user", userID)
	}
	return nil
}

// List returns one page of tasks with assignees and projects attached.
func (s *Service) List(ctx context.Context, t tenant.ID, params ListParams) (*ListResponse, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	params = params.normalize()

	tasks, total, err := s.store.List(ctx, t, params)
	if err != nil {
		return nil, err
	}
	enriched, err := s.enrich(ctx, t, tasks)
	if err != nil {
		return nil, err
	}
	return &ListResponse{Data: enriched, Total: total}, nil
}

// Get returns one enriched task.
func (s *Service) Get(ctx context.Context, t tenant.ID, id string) (*EnrichedTask, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	task, err := s.store.Get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	enriched, err := s.enrich(ctx, t, []Task{*task})
	if err != nil {
		return nil, err
	}
	return &enriched[0], nil
}

// Create inserts the task and links its assignees and project in one
// transaction. The project must exist before anything is written.
func (s *Service) Create(ctx context.Context, t tenant.ID, req CreateRequest) (*EnrichedTask, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	projectID := blankToNil(req.ProjectID)
	if err := s.requireProject(ctx, t, projectID); err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "tasks.create", tracing.Tenant(t.String()))
	defer span.End()

	now := s.timestamp()
	task := &Task{
		ID:          uuid.NewString(),
		TenantID:    t.String(),
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		ProjectID:   projectID,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Status == "" {
		task.Status = StatusTodo
	}

	err := s.inTx(ctx, func(st Store, rel *relationships.Service) error {
		if err := st.Insert(ctx, task); err != nil {
			return err
		}
		for _, a := range req.Assignees {
			if _, err := rel.Create(ctx, t, assignmentDraft(task.ID, a.UserID, a.Role)); err != nil {
				return err
			}
		}
		if projectID != nil {
			return rel.ReplaceLink(ctx, t, projectLink(task.ID, projectID))
		}
		return nil
	})
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	s.log.Info("task created", slog.String("id", task.ID), slog.String("tenant", t.String()))
	return s.Get(ctx, t, task.ID)
}

func assignmentDraft(taskID, userID, role string) relationships.Draft {
	if role == "" {
		role = DefaultAssigneeRole
	}
	return relationships.Draft{
		RelationshipType: relationships.TypeAssignedTo,
		SourceType:       relationships.KindTask,
		SourceID:         taskID,
		TargetType:       relationships.KindUser,
		TargetID:         userID,
		Metadata:         relationships.Metadata{relationships.MetaRole: role},
	}
}

// ChangeProject moves the task to projectID, or detaches it when nil. The
// task row and both edge directions change together or not at all.
func (s *Service) ChangeProject(ctx context.Context, t tenant.ID, taskID string, projectID *string) (*EnrichedTask, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	projectID = blankToNil(projectID)

	if _, err := s.store.Get(ctx, t, taskID); err != nil {
		return nil, err
	}
	if err := s.requireProject(ctx, t, projectID); err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "tasks.change_project",
		tracing.Tenant(t.String()),
		attribute.String("biz.task.id", taskID),
	)
	defer span.End()

	err := s.inTx(ctx, func(st Store, rel *relationships.Service) error {
		if err := st.SetProject(ctx, t, taskID, projectID, s.timestamp()); err != nil {
			return err
		}
		return rel.ReplaceLink(ctx, t, projectLink(taskID, projectID))
	})
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	return s.Get(ctx, t, taskID)
}

// AddAssignee assigns userID to the task. Repeating it updates the role.
func (s *Service) AddAssignee(ctx context.Context, t tenant.ID, taskID, userID, role string) (*relationships.Edge, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, apperror.NewValidation("userId is required")
	}
	if _, err := s.store.Get(ctx, t, taskID); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, t, userID); err != nil {
		return nil, err
	}
	return s.rel.Create(ctx, t, assignmentDraft(taskID, userID, role))
}

// RemoveAssignee retires the assignment and its responsible_for mirror.
func (s *Service) RemoveAssignee(ctx context.Context, t tenant.ID, taskID, userID string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, t, taskID); err != nil {
		return err
	}
	n, err := s.rel.Unlink(ctx, t, relationships.EdgeKey{
		Source: relationships.Ref(relationships.KindTask, taskID),
		Target: relationships.Ref(relationships.KindUser, userID),
		Type:   relationships.TypeAssignedTo,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("assignment", taskID+"/"+userID)
	}
	return nil
}

// GetEntityRelationships returns every live, active edge touching the entity.
func (s *Service) GetEntityRelationships(ctx context.Context, t tenant.ID, kind relationships.EntityKind, id string) ([]relationships.Edge, error) {
	return s.rel.GetForEntity(ctx, t, relationships.Ref(kind, id))
}
