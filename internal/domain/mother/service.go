package mother

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/platform/outbox"
	"github.com/mcare/mcare/internal/validation"
	"github.com/mcare/mcare/pkg/pagination"
)

// SearchLimit caps the number of search results.
const SearchLimit = 50

// EventSink enqueues a domain event in the caller's transaction.
type EventSink interface {
	Record(ctx context.Context, eventType string, payload any) error
}

// ClinicLookup reports whether a clinic exists.
type ClinicLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// RoleLookup returns the role of a user account, or apperr NotFound.
type RoleLookup interface {
	RoleOf(ctx context.Context, userID int64) (string, error)
}

// Counter counts records that belong to a mother.
type Counter interface {
	CountByMother(ctx context.Context, motherID int64) (int, error)
}

type Deps struct {
	Mothers  Repository
	Clinics  ClinicLookup
	Users    RoleLookup
	Children Counter
	Visits   Counter
	Tx       db.TxManager
	Engine   *validation.Engine
	Events   EventSink
	// StrictUpdates rejects fields that may not be updated instead of
	// ignoring them.
	StrictUpdates bool
}

type Service struct {
	mothers  Repository
	clinics  ClinicLookup
	users    RoleLookup
	children Counter
	visits   Counter
	tx       db.TxManager
	engine   *validation.Engine
	events   EventSink
	strict   bool
}

func NewService(d Deps) *Service {
	return &Service{
		mothers:  d.Mothers,
		clinics:  d.Clinics,
		users:    d.Users,
		children: d.Children,
		visits:   d.Visits,
		tx:       d.Tx,
		engine:   d.Engine,
		events:   d.Events,
		strict:   d.StrictUpdates,
	}
}

// Create registers a mother profile. A mother creates her own; staff name the
// account with user_id.
func (s *Service) Create(ctx context.Context, caller auth.Principal, p validation.Payload) (*Mother, error) {
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	p = p.Only(createFields)
	if err := s.engine.Check(validation.KindMother, p, validation.ModeCreate); err != nil {
		return nil, err
	}
	var m Mother
	if err := validation.Decode(p, &m); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}

	if m.UserID == 0 {
		if caller.Role != auth.RoleMother {
			return nil, apperr.Field("user_id", "user_id is required")
		}
		m.UserID = caller.UserID
	}
	if err := auth.Require(caller, auth.CapMothersCreate, auth.Owner(m.UserID)); err != nil {
		return nil, err
	}

	if m.PregnancyStatus == "" {
		m.PregnancyStatus = StatusNotPregnant
	}
	m.PhoneNumber, _ = s.engine.NormalizePhone(m.PhoneNumber)
	m.IsActive = true

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		role, err := s.users.RoleOf(ctx, m.UserID)
		if err != nil {
			return err
		}
		if role != auth.RoleMother {
			return apperr.Field("user_id", "user must have the mother role")
		}
		exists, err := s.mothers.ExistsForUser(ctx, m.UserID)
		if err != nil {
			return fmt.Errorf("check mother profile: %w", err)
		}
		if exists {
			return apperr.Conflict("a mother profile already exists for this user")
		}
		if err := s.checkClinic(ctx, m.ClinicID); err != nil {
			return err
		}
		if err := s.mothers.Create(ctx, &m); err != nil {
			return mapWriteError(err, "create mother")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id int64) (*Mother, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(caller, auth.CapMothersRead, auth.Owner(m.UserID)); err != nil {
		return nil, err
	}
	return m, nil
}

// GetForUser returns the caller's own profile.
func (s *Service) GetForUser(ctx context.Context, caller auth.Principal) (*Mother, error) {
	if err := auth.Require(caller, auth.CapMothersRead, auth.Owner(caller.UserID)); err != nil {
		return nil, err
	}
	m, err := s.mothers.GetByUserID(ctx, caller.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("mother profile")
	}
	if err != nil {
		return nil, fmt.Errorf("get mother profile: %w", err)
	}
	return m, nil
}

func (s *Service) Update(ctx context.Context, caller auth.Principal, id int64, p validation.Payload) (*Mother, error) {
	var out *Mother
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := auth.Require(caller, auth.CapMothersUpdate, auth.Owner(m.UserID)); err != nil {
			return err
		}
		patch, err := s.engine.Patch(validation.KindMother, p, updateFields, s.strict)
		if err != nil {
			return err
		}
		if err := validation.Decode(patch, m); err != nil {
			return apperr.BadRequest(err.Error())
		}
		// Either count may come from storage, so the pair is checked again
		// after merging.
		if m.NumberOfLiveBirths > m.NumberOfPregnancies {
			return apperr.Field("number_of_live_births", "number_of_live_births cannot exceed number_of_pregnancies")
		}
		if patch.Has("phone_number") {
			m.PhoneNumber, _ = s.engine.NormalizePhone(m.PhoneNumber)
		}
		if patch.Has("clinic_id") {
			if err := s.checkClinic(ctx, m.ClinicID); err != nil {
				return err
			}
		}
		if err := s.mothers.Update(ctx, m); err != nil {
			return mapWriteError(err, "update mother")
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deactivate soft-deletes a mother. Her children and visits are kept.
func (s *Service) Deactivate(ctx context.Context, caller auth.Principal, id int64) error {
	if err := auth.Require(caller, auth.CapMothersDelete, nil); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := s.mothers.Deactivate(ctx, m.ID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return apperr.NotFound("mother")
			}
			return fmt.Errorf("deactivate mother: %w", err)
		}
		return s.record(ctx, outbox.MotherDeactivated, map[string]any{
			"mother_id": m.ID, "user_id": m.UserID, "deactivated_by": caller.UserID,
		})
	})
}

func (s *Service) List(ctx context.Context, caller auth.Principal, f Filter, pg pagination.Params) ([]*Mother, int, error) {
	if err := auth.Require(caller, auth.CapMothersList, nil); err != nil {
		return nil, 0, err
	}
	if f.PregnancyStatus != "" && !validation.IsOneOf(f.PregnancyStatus, validation.PregnancyStatuses) {
		return nil, 0, apperr.Field("status", "must be one of: "+strings.Join(validation.PregnancyStatuses, ", "))
	}
	items, total, err := s.mothers.List(ctx, f, pg.PerPage, pg.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list mothers: %w", err)
	}
	return items, total, nil
}

// Search matches term against names, phone number and account email.
func (s *Service) Search(ctx context.Context, caller auth.Principal, term string, clinicID *int64) ([]*Mother, error) {
	if err := auth.Require(caller, auth.CapMothersSearch, nil); err != nil {
		return nil, err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, apperr.Field("q", "search term is required")
	}
	items, err := s.mothers.Search(ctx, term, clinicID, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search mothers: %w", err)
	}
	return items, nil
}

// PregnancySummary reports the current pregnancy week together with visit
// and child counts. The week is only known for a pregnant mother with a
// recorded last menstrual period.
func (s *Service) PregnancySummary(ctx context.Context, caller auth.Principal, id int64) (*PregnancySummary, error) {
	m, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	visits, err := s.visits.CountByMother(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("count visits: %w", err)
	}
	children, err := s.children.CountByMother(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("count children: %w", err)
	}

	sum := &PregnancySummary{
		MotherID:             m.ID,
		FullName:             m.FullName(),
		PregnancyStatus:      m.PregnancyStatus,
		ExpectedDeliveryDate: m.ExpectedDeliveryDate,
		NumberOfPregnancies:  m.NumberOfPregnancies,
		NumberOfLiveBirths:   m.NumberOfLiveBirths,
		TotalVisits:          visits,
		ChildrenCount:        children,
		ClinicID:             m.ClinicID,
		BloodType:            m.BloodType,
		MedicalConditions:    m.MedicalConditions,
		Allergies:            m.Allergies,
	}
	if m.PregnancyStatus == StatusPregnant && m.LastMenstrualPeriod != nil {
		week := s.engine.Today().DaysSince(*m.LastMenstrualPeriod) / 7
		sum.PregnancyWeek = &week
	}
	return sum, nil
}

func (s *Service) load(ctx context.Context, id int64) (*Mother, error) {
	m, err := s.mothers.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("mother")
	}
	if err != nil {
		return nil, fmt.Errorf("get mother: %w", err)
	}
	return m, nil
}

func (s *Service) checkClinic(ctx context.Context, clinicID *int64) error {
	if clinicID == nil {
		return nil
	}
	ok, err := s.clinics.Exists(ctx, *clinicID)
	if err != nil {
		return fmt.Errorf("check clinic: %w", err)
	}
	if !ok {
		return apperr.NotFound("clinic")
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
	case errors.Is(err, db.ErrUniqueViolation):
		return apperr.Conflict("a mother profile already exists for this user")
	case errors.Is(err, db.ErrForeignKeyViolation):
		return apperr.NotFound("user or clinic")
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound("mother")
	}
	return fmt.Errorf("%s: %w", op, err)
}
