package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/validation"
	"github.com/mcare/mcare/pkg/pagination"
)

type Service struct {
	clinics Repository
	tx      db.TxManager
	engine  *validation.Engine
}

func NewService(clinics Repository, tx db.TxManager, engine *validation.Engine) *Service {
	return &Service{clinics: clinics, tx: tx, engine: engine}
}

func (s *Service) Create(ctx context.Context, caller auth.Principal, p validation.Payload) (*Clinic, error) {
	if err := auth.Require(caller, auth.CapClinicsWrite, nil); err != nil {
		return nil, err
	}
	p = p.Only(createFields)
	if err := s.engine.Check(validation.KindClinic, p, validation.ModeCreate); err != nil {
		return nil, err
	}

	var c Clinic
	if err := validation.Decode(p, &c); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	if c.Phone != nil {
		n, _ := s.engine.NormalizePhone(*c.Phone)
		c.Phone = &n
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		taken, err := s.clinics.NameExists(ctx, c.Name)
		if err != nil {
			return fmt.Errorf("check clinic name: %w", err)
		}
		if taken {
			return apperr.Conflict("a clinic with this name already exists")
		}
		if err := s.clinics.Create(ctx, &c); err != nil {
			if errors.Is(err, db.ErrUniqueViolation) {
				return apperr.Conflict("a clinic with this name already exists")
			}
			return fmt.Errorf("create clinic: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id int64) (*Clinic, error) {
	// Clinics are directory data; every signed-in caller may read them.
	if err := auth.Require(caller, auth.CapClinicsRead, auth.Owner(caller.UserID)); err != nil {
		return nil, err
	}
	c, err := s.clinics.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("clinic")
	}
	if err != nil {
		return nil, fmt.Errorf("get clinic: %w", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, caller auth.Principal, pg pagination.Params) ([]*Clinic, int, error) {
	if err := auth.Require(caller, auth.CapClinicsRead, auth.Owner(caller.UserID)); err != nil {
		return nil, 0, err
	}
	items, total, err := s.clinics.List(ctx, pg.PerPage, pg.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list clinics: %w", err)
	}
	return items, total, nil
}
