package vaccination

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mcare/mcare/internal/domain/child"
	"github.com/mcare/mcare/internal/domain/mother"
	"github.com/mcare/mcare/internal/domain/visit"
	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/validation"
	"github.com/mcare/mcare/pkg/civil"
	"github.com/mcare/mcare/pkg/pagination"
)

// EventSink enqueues a domain event in the caller's transaction.
type EventSink interface {
	Record(ctx context.Context, eventType string, payload any) error
}

// MotherLookup loads active mothers. mother.Repository satisfies it.
type MotherLookup interface {
	GetByID(ctx context.Context, id int64) (*mother.Mother, error)
}

type ChildLookup interface {
	GetByID(ctx context.Context, id int64) (*child.Child, error)
}

// VisitWriter inserts visits. visit.Repository satisfies it.
type VisitWriter interface {
	Create(ctx context.Context, v *visit.Visit) error
}

type HealthWorkerLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type Deps struct {
	Vaccinations  Repository
	Children      ChildLookup
	Mothers       MotherLookup
	Visits        VisitWriter
	HealthWorkers HealthWorkerLookup
	Tx            db.TxManager
	Engine        *validation.Engine
	Events        EventSink
	Logger        zerolog.Logger
	StrictUpdates bool
	// AlertsUseNextDueDate computes alerts from next_due_date instead of
	// date_given.
	AlertsUseNextDueDate bool
}

type Service struct {
	vaccinations  Repository
	children      ChildLookup
	mothers       MotherLookup
	visits        VisitWriter
	healthWorkers HealthWorkerLookup
	tx            db.TxManager
	engine        *validation.Engine
	events        EventSink
	logger        zerolog.Logger
	strict        bool
	useNextDue    bool
}

func NewService(d Deps) *Service {
	return &Service{
		vaccinations:  d.Vaccinations,
		children:      d.Children,
		mothers:       d.Mothers,
		visits:        d.Visits,
		healthWorkers: d.HealthWorkers,
		tx:            d.Tx,
		engine:        d.Engine,
		events:        d.Events,
		logger:        d.Logger,
		strict:        d.StrictUpdates,
		useNextDue:    d.AlertsUseNextDueDate,
	}
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id int64) (*Vaccination, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(caller, auth.CapVaccinationsRead, auth.Owner(v.OwnerUserID)); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) ListByChild(ctx context.Context, caller auth.Principal, childID int64) ([]*Vaccination, error) {
	c, err := s.children.GetByID(ctx, childID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("child")
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	if err := auth.Require(caller, auth.CapVaccinationsRead, auth.Owner(c.OwnerUserID)); err != nil {
		return nil, err
	}
	items, err := s.vaccinations.ListByChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("list vaccinations: %w", err)
	}
	return items, nil
}

func (s *Service) List(ctx context.Context, caller auth.Principal, pg pagination.Params) ([]*Vaccination, int, error) {
	if err := auth.Require(caller, auth.CapVaccinationsList, nil); err != nil {
		return nil, 0, err
	}
	items, total, err := s.vaccinations.List(ctx, pg.PerPage, pg.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list vaccinations: %w", err)
	}
	return items, total, nil
}

// Update edits a vaccination record. A follow-up visit that was already
// scheduled is left as it is.
func (s *Service) Update(ctx context.Context, caller auth.Principal, id int64, p validation.Payload) (*Vaccination, error) {
	var out *Vaccination
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		v, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := auth.Require(caller, auth.CapVaccinationsWrite, auth.Owner(v.OwnerUserID)); err != nil {
			return err
		}
		patch, err := s.engine.Patch(validation.KindVaccination, p, updateFields, s.strict)
		if err != nil {
			return err
		}
		if err := validation.Decode(patch, v); err != nil {
			return apperr.BadRequest(err.Error())
		}
		if v.NextDueDate != nil && !v.NextDueDate.After(v.DateGiven) {
			return apperr.Field("next_due_date", "next_due_date must be after date_given")
		}
		if patch.Has("health_worker_id") {
			if err := s.checkHealthWorker(ctx, v.HealthWorkerID); err != nil {
				return err
			}
		}
		if err := s.vaccinations.Update(ctx, v); err != nil {
			return mapWriteError(err, "update vaccination")
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
	if err := auth.Require(caller, auth.CapVaccinationsDelete, nil); err != nil {
		return err
	}
	err := s.vaccinations.Delete(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("vaccination")
	}
	if err != nil {
		return fmt.Errorf("delete vaccination: %w", err)
	}
	return nil
}

// Alerts splits vaccinations into upcoming (due within the next week,
// today included) and overdue (due before today, most recent first).
func (s *Service) Alerts(ctx context.Context, caller auth.Principal) (*Alerts, error) {
	if err := auth.Require(caller, auth.CapVaccinationsAlerts, nil); err != nil {
		return nil, err
	}
	today := s.engine.Today()
	upcoming, err := s.vaccinations.ListDueBetween(ctx, s.useNextDue, today, today.AddDays(AlertWindowDays))
	if err != nil {
		return nil, fmt.Errorf("list upcoming vaccinations: %w", err)
	}
	overdue, err := s.vaccinations.ListOverdue(ctx, s.useNextDue, today, MaxAlerts)
	if err != nil {
		return nil, fmt.Errorf("list overdue vaccinations: %w", err)
	}

	return &Alerts{
		Upcoming: s.toAlerts(upcoming, today),
		Overdue:  s.toAlerts(overdue, today),
	}, nil
}

func (s *Service) toAlerts(due []*Due, today civil.Date) []*Alert {
	out := make([]*Alert, 0, len(due))
	for _, d := range due {
		date := d.DateGiven
		if s.useNextDue {
			if d.NextDueDate == nil {
				continue
			}
			date = *d.NextDueDate
		}
		out = append(out, &Alert{Due: *d, AlertDate: date, DaysUntil: date.DaysSince(today)})
	}
	return out
}

func (s *Service) load(ctx context.Context, id int64) (*Vaccination, error) {
	v, err := s.vaccinations.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("vaccination")
	}
	if err != nil {
		return nil, fmt.Errorf("get vaccination: %w", err)
	}
	return v, nil
}

// checkMother fails with NotFound when the mother was deactivated.
func (s *Service) checkMother(ctx context.Context, id int64) error {
	_, err := s.mothers.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("mother")
	}
	if err != nil {
		return fmt.Errorf("get mother: %w", err)
	}
	return nil
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

func mapWriteError(err error, op string) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound("vaccination")
	case errors.Is(err, db.ErrForeignKeyViolation):
		return apperr.NotFound("child or health worker")
	}
	return fmt.Errorf("%s: %w", op, err)
}
