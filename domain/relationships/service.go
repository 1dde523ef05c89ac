package relationships

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizsuite/server/domain/reltypes"
	"github.com/bizsuite/server/pkg/apperror"
	"github.com/bizsuite/server/pkg/logger"
	"github.com/bizsuite/server/pkg/tenant"
	"github.com/bizsuite/server/pkg/tracing"
	"github.com/bizsuite/server/pkg/validation"
)

// TypeResolver looks up relationship type metadata. A nil type with a nil
// error means the name is not registered.
type TypeResolver interface {
	Lookup(ctx context.Context, name string) (*reltypes.RelationshipType, error)
}

// Service is the relationship engine. It holds no per-call state; all
// consistency is delegated to the Store.
type Service struct {
	store Store
	types TypeResolver
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store Store, types TypeResolver, log *slog.Logger) *Service {
	return &Service{
		store: store,
		types: types,
		log:   log.With(logger.Scope("relationships.svc")),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithStore returns a Service writing through st, usually the transaction
// store handed to a RunInTx callback.
func (s *Service) WithStore(st Store) *Service {
	c := *s
	c.store = st
	return &c
}

// WithClock returns a Service that stamps times from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	return &c
}

// RunInTx runs fn with a Service bound to a single transaction.
func (s *Service) RunInTx(ctx context.Context, fn func(tx *Service) error) error {
	return s.store.RunInTx(ctx, func(st Store) error {
		return fn(s.WithStore(st))
	})
}

func (s *Service) timestamp() time.Time {
	// Postgres keeps microseconds; truncating keeps in-memory and stored values equal.
	return s.now().Truncate(time.Microsecond)
}

func checkTenant(t tenant.ID) error {
	return t.Validate()
}

func parseID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperror.NewNotFound("relationship", id)
	}
	return u, nil
}

// raced reports an edge that was deleted between read and write inside
// Create as a conflict, matching a concurrent writer on the same key.
func raced(err error) error {
	if apperror.IsNotFound(err) {
		return apperror.NewConflict("relationship changed concurrently").WithInternal(err)
	}
	return err
}

func tagsOrEmpty(tags []string) pq.StringArray {
	if tags == nil {
		return pq.StringArray{}
	}
	return append(pq.StringArray{}, tags...)
}

func metadataOrEmpty(m Metadata) Metadata {
	if m == nil {
		return Metadata{}
	}
	return m.Clone()
}

// Create writes the edge described by d, or refreshes the live edge already
// holding its key, then writes or refreshes the mirror when the type is
// bidirectional. Both writes share one transaction.
func (s *Service) Create(ctx context.Context, t tenant.ID, d Draft) (*Edge, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	if err := validation.Struct(d); err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "relationships.create",
		tracing.Tenant(t.String()),
		attribute.String("biz.relationship.type", d.RelationshipType),
	)
	defer span.End()

	var out *Edge
	err := s.store.RunInTx(ctx, func(st Store) error {
		e, err := s.upsertPrimary(ctx, st, t, d)
		if err != nil {
			return err
		}
		if err := s.syncMirror(ctx, st, t, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		if apperror.IsConflict(err) {
			conflictsTotal.Inc()
		}
		tracing.Fail(span, err)
		return nil, err
	}
	return out, nil
}

func (s *Service) upsertPrimary(ctx context.Context, st Store, t tenant.ID, d Draft) (*Edge, error) {
	existing, err := st.FindLive(ctx, t, d.Key())
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	if existing != nil {
		if d.Strength != nil {
			existing.Strength = *d.Strength
		}
		if d.Priority != nil {
			existing.Priority = *d.Priority
		}
		if d.Metadata != nil {
			existing.Metadata = d.Metadata.Clone()
		}
		if d.Tags != nil {
			existing.Tags = tagsOrEmpty(d.Tags)
		}
		existing.UpdatedAt = now
		if err := st.Update(ctx, existing); err != nil {
			return nil, raced(err)
		}
		createdTotal.WithLabelValues("deduplicated").Inc()
		return existing, nil
	}

	e := &Edge{
		ID:                uuid.New(),
		TenantID:          t.String(),
		RelationshipType:  d.RelationshipType,
		SourceType:        d.SourceType,
		SourceID:          d.SourceID,
		TargetType:        d.TargetType,
		TargetID:          d.TargetID,
		Strength:          DefaultStrength,
		Priority:          DefaultPriority,
		IsActive:          true,
		Metadata:          metadataOrEmpty(d.Metadata),
		Tags:              tagsOrEmpty(d.Tags),
		LastInteractionAt: &now,
		InteractionCount:  1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if d.Strength != nil {
		e.Strength = *d.Strength
	}
	if d.Priority != nil {
		e.Priority = *d.Priority
	}
	if d.IsActive != nil {
		e.IsActive = *d.IsActive
	}
	if err := st.Insert(ctx, e); err != nil {
		return nil, err
	}
	createdTotal.WithLabelValues("inserted").Inc()
	return e, nil
}

// syncMirror makes the reverse edge of primary carry the same strength,
// priority, metadata and tags. It never mirrors the mirror.
func (s *Service) syncMirror(ctx context.Context, st Store, t tenant.ID, primary *Edge) error {
	rt, err := s.types.Lookup(ctx, primary.RelationshipType)
	if err != nil {
		return err
	}
	mirrorType, ok := rt.MirrorType()
	if !ok {
		return nil
	}
	key := primary.Key().Reverse(mirrorType)
	if key == primary.Key() {
		return nil
	}

	mirror, err := st.FindLive(ctx, t, key)
	if err != nil {
		return err
	}
	if mirror != nil {
		mirror.Strength = primary.Strength
		mirror.Priority = primary.Priority
		mirror.Metadata = primary.Metadata.Clone()
		mirror.Tags = tagsOrEmpty(primary.Tags)
		mirror.UpdatedAt = primary.UpdatedAt
		if err := st.Update(ctx, mirror); err != nil {
			return raced(err)
		}
		mirrorsTotal.WithLabelValues("refreshed").Inc()
		return nil
	}

	now := primary.UpdatedAt
	mirror = &Edge{
		ID:                uuid.New(),
		TenantID:          t.String(),
		RelationshipType:  mirrorType,
		SourceType:        primary.TargetType,
		SourceID:          primary.TargetID,
		TargetType:        primary.SourceType,
		TargetID:          primary.SourceID,
		Strength:          primary.Strength,
		Priority:          primary.Priority,
		IsActive:          primary.IsActive,
		Metadata:          primary.Metadata.Clone(),
		Tags:              tagsOrEmpty(primary.Tags),
		LastInteractionAt: &now,
		InteractionCount:  1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := st.Insert(ctx, mirror); err != nil {
		return err
	}
	mirrorsTotal.WithLabelValues("inserted").Inc()
	return nil
}

// FindMany returns one page of live edges ordered by priority, strength and
// last interaction, all descending.
func (s *Service) FindMany(ctx context.Context, t tenant.ID, f Filter, page PageRequest) (*Page, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	page = page.normalize()

	edges, total, err := s.store.List(ctx, t, f, page)
	if err != nil {
		return nil, err
	}
	return &Page{
		Data:       edges,
		Total:      total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(page.Limit))),
	}, nil
}

// ListMatching is FindMany without pagination, for batch readers that must
// see every matching edge in one round trip.
func (s *Service) ListMatching(ctx context.Context, t tenant.ID, f Filter) ([]Edge, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	return s.store.ListAll(ctx, t, f)
}

func (s *Service) FindOne(ctx context.Context, t tenant.ID, id string) (*Edge, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, t, uid)
}

// FindByKey returns the live edge for key, or nil.
func (s *Service) FindByKey(ctx context.Context, t tenant.ID, key EdgeKey) (*Edge, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	return s.store.FindLive(ctx, t, key)
}

// Update merges p onto the live edge. It neither deduplicates nor touches
// the mirror.
func (s *Service) Update(ctx context.Context, t tenant.ID, id string, p Patch) (*Edge, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	e, err := s.store.Get(ctx, t, uid)
	if err != nil {
		return nil, err
	}
	if p.Strength != nil {
		e.Strength = *p.Strength
	}
	if p.Priority != nil {
		e.Priority = *p.Priority
	}
	if p.IsActive != nil {
		e.IsActive = *p.IsActive
	}
	if p.Metadata != nil {
		e.Metadata = p.Metadata.Clone()
	}
	if p.Tags != nil {
		e.Tags = tagsOrEmpty(p.Tags)
	}
	e.UpdatedAt = s.timestamp()

	if err := s.store.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// SoftDelete tombstones one edge. The mirror is left alone.
func (s *Service) SoftDelete(ctx context.Context, t tenant.ID, id string) error {
	if err := checkTenant(t); err != nil {
		return err
	}
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	if err := s.store.SoftDelete(ctx, t, uid, s.timestamp()); err != nil {
		return err
	}
	softDeletedTotal.Inc()
	return nil
}

// GetForEntity returns every live, active edge touching ref in either direction.
func (s *Service) GetForEntity(ctx context.Context, t tenant.ID, ref EntityRef) ([]Edge, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	if err := validation.Struct(ref); err != nil {
		return nil, err
	}
	return s.store.ListForEntity(ctx, t, ref)
}

// IncrementInteraction records activity on the live edge source→target of
// relType. A missing edge is not an error.
func (s *Service) IncrementInteraction(ctx context.Context, t tenant.ID, source, target EntityRef, relType string) error {
	if err := checkTenant(t); err != nil {
		return err
	}
	key := EdgeKey{Source: source, Target: target, Type: relType}
	found, err := s.store.IncrementInteraction(ctx, t, key, s.timestamp())
	if err != nil {
		return err
	}
	if !found {
		s.log.Debug("no live relationship to record interaction on",
			slog.String("type", relType),
			slog.String("source", string(source.Kind)+"/"+source.ID),
			slog.String("target", string(target.Kind)+"/"+target.ID),
		)
	}
	return nil
}

// CreateFromMention records that m.Target was mentioned in m.Source. The
// stored edge points from the mentioned entity to the mentioning one.
func (s *Service) CreateFromMention(ctx context.Context, t tenant.ID, m Mention) (*Edge, error) {
	if err := validation.Struct(m); err != nil {
		return nil, err
	}

	meta := Metadata{
		MetaCreatedFrom: "mention",
		MetaTimestamp:   s.timestamp().Format(time.RFC3339Nano),
	}
	tags := []string{"mention"}
	if m.ContextType != "" {
		meta[MetaContextType] = m.ContextType
		tags = append(tags, m.ContextType)
	}
	if m.ContextData != nil {
		meta[MetaContextData] = m.ContextData
	}

	strength := DefaultStrength
	return s.Create(ctx, t, Draft{
		RelationshipType: TypeMentionedIn,
		SourceType:       m.TargetType,
		SourceID:         m.TargetID,
		TargetType:       m.SourceType,
		TargetID:         m.SourceID,
		Strength:         &strength,
		Metadata:         meta,
		Tags:             tags,
	})
}

// ReplaceLink retires every edge of r.ForwardType leaving r.Entity and every
// r.ReverseType edge pointing at it, then installs the forward and reverse
// edge to r.NewTargetID. Tombstones for the same key are reactivated instead
// of duplicated. All of it runs in one transaction; callers wanting their own
// writes in the same unit call it on a Service from RunInTx.
func (s *Service) ReplaceLink(ctx context.Context, t tenant.ID, r LinkReplacement) error {
	if err := checkTenant(t); err != nil {
		return err
	}
	if r.Entity.Kind == "" || r.Entity.ID == "" || r.ForwardType == "" || r.ReverseType == "" || r.TargetKind == "" {
		return apperror.NewValidation("link replacement requires entity, forward type, reverse type and target kind")
	}

	ctx, span := tracing.Start(ctx, "relationships.replace_link",
		tracing.Tenant(t.String()),
		attribute.String("biz.relationship.type", r.ForwardType),
		attribute.String("biz.entity.id", r.Entity.ID),
	)
	defer span.End()

	err := s.store.RunInTx(ctx, func(st Store) error {
		now := s.timestamp()
		retired, err := st.SoftDeleteMatching(ctx, t, []EdgeMatch{
			{SourceType: r.Entity.Kind, SourceID: r.Entity.ID, RelationshipType: r.ForwardType},
			{SourceType: r.TargetKind, TargetType: r.Entity.Kind, TargetID: r.Entity.ID, RelationshipType: r.ReverseType},
		}, now)
		if err != nil {
			return err
		}
		softDeletedTotal.Add(float64(retired))

		if r.NewTargetID == nil || *r.NewTargetID == "" {
			return nil
		}
		target := EntityRef{Kind: r.TargetKind, ID: *r.NewTargetID}
		forward := EdgeKey{Source: r.Entity, Target: target, Type: r.ForwardType}
		if err := s.reactivateOrInsert(ctx, st, t, forward, r.Metadata, now); err != nil {
			return err
		}
		return s.reactivateOrInsert(ctx, st, t, forward.Reverse(r.ReverseType), r.Metadata, now)
	})
	if err != nil {
		tracing.Fail(span, err)
		return err
	}
	relinksTotal.Inc()
	return nil
}

func (s *Service) reactivateOrInsert(ctx context.Context, st Store, t tenant.ID, key EdgeKey, meta Metadata, now time.Time) error {
	e, err := st.FindLatest(ctx, t, key)
	if err != nil {
		return err
	}
	if e != nil {
		e.IsActive = true
		e.IsDeleted = false
		e.DeletedAt = nil
		e.LastInteractionAt = &now
		e.UpdatedAt = now
		if meta != nil {
			e.Metadata = meta.Clone()
		}
		return st.Revive(ctx, e)
	}

	return st.Insert(ctx, &Edge{
		ID:                uuid.New(),
		TenantID:          t.String(),
		RelationshipType:  key.Type,
		SourceType:        key.Source.Kind,
		SourceID:          key.Source.ID,
		TargetType:        key.Target.Kind,
		TargetID:          key.Target.ID,
		Strength:          DefaultStrength,
		Priority:          DefaultPriority,
		IsActive:          true,
		Metadata:          metadataOrEmpty(meta),
		Tags:              pq.StringArray{},
		LastInteractionAt: &now,
		InteractionCount:  1,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

// Unlink tombstones the live edge for key and, for bidirectional types, its
// mirror, in one transaction. It returns how many edges were retired.
func (s *Service) Unlink(ctx context.Context, t tenant.ID, key EdgeKey) (int, error) {
	if err := checkTenant(t); err != nil {
		return 0, err
	}
	rt, err := s.types.Lookup(ctx, key.Type)
	if err != nil {
		return 0, err
	}

	matches := []EdgeMatch{matchKey(key)}
	if mirrorType, ok := rt.MirrorType(); ok {
		matches = append(matches, matchKey(key.Reverse(mirrorType)))
	}

	var n int
	err = s.store.RunInTx(ctx, func(st Store) error {
		n, err = st.SoftDeleteMatching(ctx, t, matches, s.timestamp())
		return err
	})
	if err != nil {
		return 0, err
	}
	softDeletedTotal.Add(float64(n))
	return n, nil
}

func matchKey(k EdgeKey) EdgeMatch {
	return EdgeMatch{
		SourceType:       k.Source.Kind,
		SourceID:         k.Source.ID,
		TargetType:       k.Target.Kind,
		TargetID:         k.Target.ID,
		RelationshipType: k.Type,
	}
}

// Suggest ranks targetKind entities by how often, then how strongly, other
// entities of entity's kind link to them. entity itself is excluded.
func (s *Service) Suggest(ctx context.Context, t tenant.ID, entity EntityRef, targetKind EntityKind) ([]Suggestion, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	if entity.Kind == "" || entity.ID == "" || targetKind == "" {
		return nil, apperror.NewValidation("entity type, entity id and target type are required")
	}
	return s.store.SuggestTargets(ctx, t, entity, targetKind, SuggestionLimit)
}
