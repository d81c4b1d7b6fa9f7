package visit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mcare/mcare/internal/domain/child"
	"github.com/mcare/mcare/internal/domain/mother"
	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/platform/outbox"
	"github.com/mcare/mcare/internal/validation"
	"github.com/mcare/mcare/pkg/pagination"
)

// EventSink enqueues a domain event in the caller's transaction.
type EventSink interface {
	Record(ctx context.Context, eventType string, payload any) error
}

type MotherLookup interface {
	GetByID(ctx context.Context, id int64) (*mother.Mother, error)
}

type ChildLookup interface {
	GetByID(ctx context.Context, id int64) (*child.Child, error)
}

// HealthWorkerLookup reports whether a health worker profile exists.
type HealthWorkerLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type Deps struct {
	Visits        Repository
	Mothers       MotherLookup
	Children      ChildLookup
	HealthWorkers HealthWorkerLookup
	Tx            db.TxManager
	Engine        *validation.Engine
	Events        EventSink
	StrictUpdates bool
}

type Service struct {
	visits        Repository
	mothers       MotherLookup
	children      ChildLookup
	healthWorkers HealthWorkerLookup
	tx            db.TxManager
	engine        *validation.Engine
	events        EventSink
	strict        bool
}

func NewService(d Deps) *Service {
	return &Service{
		visits:        d.Visits,
		mothers:       d.Mothers,
		children:      d.Children,
		healthWorkers: d.HealthWorkers,
		tx:            d.Tx,
		engine:        d.Engine,
		events:        d.Events,
		strict:        d.StrictUpdates,
	}
}

// Create records a visit. When only child_id is given the mother is taken
// from the child.
func (s *Service) Create(ctx context.Context, caller auth.Principal, p validation.Payload) (*Visit, error) {
	if err := auth.Require(caller, auth.CapVisitsWrite, nil); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	p = p.Only(createFields)
	if err := s.engine.Check(validation.KindVisit, p, validation.ModeCreate); err != nil {
		return nil, err
	}
	var v Visit
	if err := validation.Decode(p, &v); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	if v.Status == "" {
		v.Status = StatusScheduled
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if v.ChildID != nil {
			c, err := s.children.GetByID(ctx, *v.ChildID)
			if errors.Is(err, db.ErrNotFound) {
				return apperr.NotFound("child")
			}
			if err != nil {
				return fmt.Errorf("get child: %w", err)
			}
			if v.MotherID == 0 {
				v.MotherID = c.MotherID
			} else if v.MotherID != c.MotherID {
				return apperr.Field("child_id", "child does not belong to the given mother")
			}
		}
		if _, err := s.loadMother(ctx, v.MotherID); err != nil {
			return err
		}
		if err := s.checkHealthWorker(ctx, v.HealthWorkerID); err != nil {
			return err
		}
		if err := s.visits.Create(ctx, &v); err != nil {
			if errors.Is(err, db.ErrForeignKeyViolation) {
				return apperr.NotFound("mother, child or health worker")
			}
			return fmt.Errorf("create visit: %w", err)
		}
		if v.Status != StatusScheduled {
			return nil
		}
		return s.record(ctx, outbox.VisitScheduled, ScheduledEvent(&v))
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id int64) (*Visit, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(caller, auth.CapVisitsRead, auth.Owner(v.OwnerUserID)); err != nil {
		return nil, err
	}
	return v, nil
}

// ListByMother returns up to limit of the mother's most recent visits.
func (s *Service) ListByMother(ctx context.Context, caller auth.Principal, motherID int64, limit int) ([]*Visit, error) {
	m, err := s.loadMother(ctx, motherID)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(caller, auth.CapVisitsRead, auth.Owner(m.UserID)); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = DefaultMotherLimit
	}
	items, err := s.visits.ListByMother(ctx, motherID, limit)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return items, nil
}

func (s *Service) List(ctx context.Context, caller auth.Principal, f Filter, pg pagination.Params) ([]*Visit, int, error) {
	if err := auth.Require(caller, auth.CapVisitsList, nil); err != nil {
		return nil, 0, err
	}
	if f.Status != "" && !validation.IsOneOf(f.Status, validation.VisitStatuses) {
		return nil, 0, apperr.Field("status", "must be one of: "+strings.Join(validation.VisitStatuses, ", "))
	}
	if f.VisitType != "" && !validation.IsOneOf(f.VisitType, validation.VisitTypes) {
		return nil, 0, apperr.Field("visit_type", "must be one of: "+strings.Join(validation.VisitTypes, ", "))
	}
	items, total, err := s.visits.List(ctx, f, pg.PerPage, pg.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list visits: %w", err)
	}
	return items, total, nil
}

func (s *Service) Update(ctx context.Context, caller auth.Principal, id int64, p validation.Payload) (*Visit, error) {
	if err := auth.Require(caller, auth.CapVisitsWrite, nil); err != nil {
		return nil, err
	}
	var out *Visit
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		v, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		patch, err := s.engine.Patch(validation.KindVisit, p, updateFields, s.strict)
		if err != nil {
			return err
		}
		from := v.Status
		if err := validation.Decode(patch, v); err != nil {
			return apperr.BadRequest(err.Error())
		}
		if !canTransition(from, v.Status) {
			return transitionError(from, v.Status)
		}
		if patch.Has("health_worker_id") {
			if err := s.checkHealthWorker(ctx, v.HealthWorkerID); err != nil {
				return err
			}
		}
		if err := s.visits.Update(ctx, v); err != nil {
			return mapUpdateError(err)
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus moves a visit through scheduled -> completed or cancelled.
// Setting the current status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Principal, id int64, p validation.Payload) (*Visit, error) {
	if err := auth.Require(caller, auth.CapVisitsWrite, nil); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	p = p.Only([]string{"status"})
	if err := s.engine.Check(validation.KindVisitStatus, p, validation.ModeCreate); err != nil {
		return nil, err
	}
	to, _ := p["status"].(string)

	var out *Visit
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		v, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if v.Status == to {
			out = v
			return nil
		}
		if !canTransition(v.Status, to) {
			return transitionError(v.Status, to)
		}
		v.Status = to
		if err := s.visits.Update(ctx, v); err != nil {
			return mapUpdateError(err)
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, caller auth.Principal, id int64) error {
	if err := auth.Require(caller, auth.CapVisitsDelete, nil); err != nil {
		return err
	}
	err := s.visits.Delete(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("visit")
	}
	if err != nil {
		return fmt.Errorf("delete visit: %w", err)
	}
	return nil
}

// ScheduledEvent is the payload of a visit.scheduled event.
func ScheduledEvent(v *Visit) map[string]any {
	return map[string]any{
		"visit_id":   v.ID,
		"mother_id":  v.MotherID,
		"child_id":   v.ChildID,
		"visit_date": v.VisitDate.String(),
		"visit_type": v.VisitType,
	}
}

func (s *Service) load(ctx context.Context, id int64) (*Visit, error) {
	v, err := s.visits.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("visit")
	}
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

func (s *Service) loadMother(ctx context.Context, id int64) (*mother.Mother, error) {
	m, err := s.mothers.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("mother")
	}
	if err != nil {
		return nil, fmt.Errorf("get mother: %w", err)
	}
	return m, nil
}

func (s *Service) checkHealthWorker(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := s.healthWorkers.Exists(ctx, *id)
	if err != nil {
		return fmt.Errorf("check health worker: %w", err)
	}
	if !ok {
		return apperr.NotFound("health worker")
	}
	return nil
}

func (s *Service) record(ctx context.Context, eventType string, payload any) error {
	if s.events == nil {
		return nil
	}
	return s.events.Record(ctx, eventType, payload)
}

func transitionError(from, to string) error {
	return apperr.Field("status", fmt.Sprintf("cannot change status from %s to %s", from, to))
}

func mapUpdateError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound("visit")
	case errors.Is(err, db.ErrForeignKeyViolation):
		return apperr.NotFound("health worker")
	}
	return fmt.Errorf("update visit: %w", err)
}
