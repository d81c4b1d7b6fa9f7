package child

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcare/mcare/internal/domain/mother"
	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/validation"
	"github.com/mcare/mcare/pkg/pagination"
)

// MotherLookup loads active mothers. mother.Repository satisfies it.
type MotherLookup interface {
	GetByID(ctx context.Context, id int64) (*mother.Mother, error)
}

type Deps struct {
	Children       Repository
	MedicalRecords MedicalRecordRepository
	Mothers        MotherLookup
	Tx             db.TxManager
	Engine         *validation.Engine
	StrictUpdates  bool
}

type Service struct {
	children       Repository
	medicalRecords MedicalRecordRepository
	mothers        MotherLookup
	tx             db.TxManager
	engine         *validation.Engine
	strict         bool
}

func NewService(d Deps) *Service {
	return &Service{
		children:       d.Children,
		medicalRecords: d.MedicalRecords,
		mothers:        d.Mothers,
		tx:             d.Tx,
		engine:         d.Engine,
		strict:         d.StrictUpdates,
	}
}

func (s *Service) Create(ctx context.Context, caller auth.Principal, p validation.Payload) (*Child, error) {
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	p = p.Only(createFields)
	if err := s.engine.Check(validation.KindChild, p, validation.ModeCreate); err != nil {
		return nil, err
	}
	var c Child
	if err := validation.Decode(p, &c); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.loadMother(ctx, c.MotherID)
		if err != nil {
			return err
		}
		if err := auth.Require(caller, auth.CapChildrenCreate, auth.Owner(m.UserID)); err != nil {
			return err
		}
		if err := s.children.Create(ctx, &c); err != nil {
			if errors.Is(err, db.ErrForeignKeyViolation) {
				return apperr.NotFound("mother")
			}
			return fmt.Errorf("create child: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id int64) (*Child, error) {
	c, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(caller, auth.CapChildrenRead, auth.Owner(c.OwnerUserID)); err != nil {
		return nil, err
	}
	return c, nil
}

// Load returns a child without an authorization check, for packages that
// authorize against the child themselves.
func (s *Service) Load(ctx context.Context, id int64) (*Child, error) {
	c, err := s.children.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("child")
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	return c, nil
}

func (s *Service) ListByMother(ctx context.Context, caller auth.Principal, motherID int64) ([]*Child, error) {
	m, err := s.loadMother(ctx, motherID)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(caller, auth.CapChildrenRead, auth.Owner(m.UserID)); err != nil {
		return nil, err
	}
	items, err := s.children.ListByMother(ctx, motherID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return items, nil
}

func (s *Service) List(ctx context.Context, caller auth.Principal, motherID *int64, pg pagination.Params) ([]*Child, int, error) {
	if err := auth.Require(caller, auth.CapChildrenList, nil); err != nil {
		return nil, 0, err
	}
	items, total, err := s.children.List(ctx, motherID, pg.PerPage, pg.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list children: %w", err)
	}
	return items, total, nil
}

func (s *Service) Update(ctx context.Context, caller auth.Principal, id int64, p validation.Payload) (*Child, error) {
	var out *Child
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := auth.Require(caller, auth.CapChildrenUpdate, auth.Owner(c.OwnerUserID)); err != nil {
			return err
		}
		patch, err := s.engine.Patch(validation.KindChild, p, updateFields, s.strict)
		if err != nil {
			return err
		}
		if err := validation.Decode(patch, c); err != nil {
			return apperr.BadRequest(err.Error())
		}
		if err := s.children.Update(ctx, c); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return apperr.NotFound("child")
			}
			return fmt.Errorf("update child: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a child along with its medical records and vaccinations.
func (s *Service) Delete(ctx context.Context, caller auth.Principal, id int64) error {
	if err := auth.Require(caller, auth.CapChildrenDelete, nil); err != nil {
		return err
	}
	err := s.children.Delete(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("child")
	}
	if err != nil {
		return fmt.Errorf("delete child: %w", err)
	}
	return nil
}

// AddMedicalRecord appends a health check entry recorded by the calling
// staff member.
func (s *Service) AddMedicalRecord(ctx context.Context, caller auth.Principal, childID int64, p validation.Payload) (*MedicalRecord, error) {
	if err := auth.Require(caller, auth.CapMedicalRecordsWrite, nil); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	p = p.Only(medicalRecordFields)
	if err := s.engine.Check(validation.KindMedicalRecord, p, validation.ModeCreate); err != nil {
		return nil, err
	}
	var rec MedicalRecord
	if err := validation.Decode(p, &rec); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	rec.ChildID = childID
	rec.RecordedBy = auth.Owner(caller.UserID)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.Load(ctx, childID); err != nil {
			return err
		}
		if err := s.medicalRecords.Create(ctx, &rec); err != nil {
			if errors.Is(err, db.ErrForeignKeyViolation) {
				return apperr.NotFound("child")
			}
			return fmt.Errorf("create medical record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Service) ListMedicalRecords(ctx context.Context, caller auth.Principal, childID int64) ([]*MedicalRecord, error) {
	c, err := s.Load(ctx, childID)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(caller, auth.CapMedicalRecordsRead, auth.Owner(c.OwnerUserID)); err != nil {
		return nil, err
	}
	items, err := s.medicalRecords.ListByChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("list medical records: %w", err)
	}
	return items, nil
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
