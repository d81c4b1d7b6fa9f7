package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/internal/platform/auth"
	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/internal/platform/outbox"
	"github.com/mcare/mcare/internal/platform/telemetry"
	"github.com/mcare/mcare/internal/validation"
)

// EventSink enqueues a domain event in the caller's transaction.
type EventSink interface {
	Record(ctx context.Context, eventType string, payload any) error
}

// ClinicLookup reports whether a clinic exists.
type ClinicLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type Deps struct {
	Users         UserRepository
	HealthWorkers HealthWorkerRepository
	Clinics       ClinicLookup
	Tx            db.TxManager
	Engine        *validation.Engine
	Tokens        *auth.TokenService
	Revocations   auth.RevocationStore
	Events        EventSink
	Logger        zerolog.Logger
}

type Service struct {
	users         UserRepository
	healthWorkers HealthWorkerRepository
	clinics       ClinicLookup
	tx            db.TxManager
	engine        *validation.Engine
	tokens        *auth.TokenService
	revocations   auth.RevocationStore
	events        EventSink
	logger        zerolog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		users:         d.Users,
		healthWorkers: d.HealthWorkers,
		clinics:       d.Clinics,
		tx:            d.Tx,
		engine:        d.Engine,
		tokens:        d.Tokens,
		revocations:   d.Revocations,
		events:        d.Events,
		logger:        d.Logger,
	}
}

// Register creates a mother account. It is the only public way in.
func (s *Service) Register(ctx context.Context, p validation.Payload) (*User, error) {
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	p = p.Only(userFields)
	if role, ok := p["role"]; ok && role != nil && role != auth.RoleMother {
		return nil, apperr.Forbidden("public registration is limited to mothers")
	}
	p["role"] = auth.RoleMother
	delete(p, "clinic_id")
	return s.create(ctx, p)
}

// CreateUser lets an admin create an account of any role.
func (s *Service) CreateUser(ctx context.Context, caller auth.Principal, p validation.Payload) (*User, error) {
	if err := auth.Require(caller, auth.CapUsersCreate, nil); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	return s.create(ctx, p.Only(userFields))
}

// CreateAdmin bootstraps an admin account from the command line.
func (s *Service) CreateAdmin(ctx context.Context, p validation.Payload) (*User, error) {
	if p == nil {
		return nil, apperr.BadRequest("missing account details")
	}
	p = p.Only(userFields)
	p["role"] = auth.RoleAdmin
	delete(p, "clinic_id")
	return s.create(ctx, p)
}

func (s *Service) create(ctx context.Context, p validation.Payload) (*User, error) {
	if err := s.engine.Check(validation.KindUser, p, validation.ModeCreate); err != nil {
		return nil, err
	}
	var in NewUser
	if err := validation.Decode(p, &in); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	if in.ClinicID != nil && in.Role != auth.RoleHealthWorker {
		return nil, apperr.Validation(map[string]string{"clinic_id": "clinic_id applies only to health workers"})
	}

	u := &User{
		FullName: in.FullName,
		Email:    strings.ToLower(in.Email),
		Role:     in.Role,
		IsActive: true,
	}
	if in.Phone != nil {
		n, _ := s.engine.NormalizePhone(*in.Phone)
		u.Phone = &n
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		taken, err := s.users.EmailExists(ctx, u.Email)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			return apperr.Conflict("email already registered")
		}
		if u.Phone != nil {
			taken, err := s.users.PhoneExists(ctx, *u.Phone)
			if err != nil {
				return fmt.Errorf("check phone: %w", err)
			}
			if taken {
				return apperr.Conflict("phone number already registered")
			}
		}
		if in.ClinicID != nil {
			ok, err := s.clinics.Exists(ctx, *in.ClinicID)
			if err != nil {
				return fmt.Errorf("check clinic: %w", err)
			}
			if !ok {
				return apperr.NotFound("clinic")
			}
		}

		if err := s.users.Create(ctx, u); err != nil {
			if errors.Is(err, db.ErrUniqueViolation) {
				return apperr.Conflict("email or phone number already registered")
			}
			return fmt.Errorf("create user: %w", err)
		}
		if u.Role == auth.RoleHealthWorker {
			hw := &HealthWorker{UserID: u.ID, ClinicID: in.ClinicID}
			if err := s.healthWorkers.Create(ctx, hw); err != nil {
				return fmt.Errorf("create health worker profile: %w", err)
			}
		}
		return s.record(ctx, outbox.UserRegistered, map[string]any{"user_id": u.ID, "role": u.Role})
	})
	if err != nil {
		return nil, err
	}

	telemetry.Registrations.WithLabelValues(u.Role).Inc()
	s.logger.Info().Int64("user_id", u.ID).Str("role", u.Role).Msg("user registered")
	return u, nil
}

// Login verifies credentials given by email or phone and issues a token.
func (s *Service) Login(ctx context.Context, p validation.Payload) (*Session, error) {
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	p = p.Only(loginFields)
	if err := s.engine.Check(validation.KindLogin, p, validation.ModeCreate); err != nil {
		return nil, err
	}
	var in Credentials
	if err := validation.Decode(p, &in); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}

	u, err := s.lookup(ctx, in)
	if err != nil {
		return nil, err
	}
	if u == nil {
		telemetry.Logins.WithLabelValues(telemetry.LoginFailure).Inc()
		return nil, apperr.Unauthorized("invalid credentials")
	}
	ok, err := auth.CheckPassword(in.Password, u.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		telemetry.Logins.WithLabelValues(telemetry.LoginFailure).Inc()
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if !u.IsActive {
		telemetry.Logins.WithLabelValues(telemetry.LoginFailure).Inc()
		return nil, apperr.Unauthorized("account is deactivated")
	}

	tok, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	telemetry.Logins.WithLabelValues(telemetry.LoginSuccess).Inc()
	return &Session{IssuedToken: tok, User: u}, nil
}

// lookup returns nil without error when no account matches.
func (s *Service) lookup(ctx context.Context, in Credentials) (*User, error) {
	var (
		u   *User
		err error
	)
	if in.Email != "" {
		u, err = s.users.GetByEmail(ctx, strings.ToLower(in.Email))
	} else {
		phone, ok := s.engine.NormalizePhone(in.Phone)
		if !ok {
			return nil, nil
		}
		u, err = s.users.GetByPhone(ctx, phone)
	}
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	return u, nil
}

// Logout revokes the token the caller presented.
func (s *Service) Logout(ctx context.Context, caller auth.Principal) error {
	if caller.TokenID == "" {
		return apperr.Unauthorized("authentication required")
	}
	exp := time.Unix(caller.ExpiresAt, 0)
	if err := s.revocations.Revoke(ctx, caller.TokenID, exp); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Service) Me(ctx context.Context, caller auth.Principal) (*Profile, error) {
	if caller.UserID == 0 {
		return nil, apperr.Unauthorized("authentication required")
	}
	u, err := s.users.GetByID(ctx, caller.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	prof := &Profile{User: u}
	if u.Role == auth.RoleHealthWorker {
		hw, err := s.healthWorkers.GetByUserID(ctx, u.ID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("get health worker profile: %w", err)
		}
		prof.HealthWorker = hw
	}
	return prof, nil
}

// RoleOf returns the role of userID, or NotFound.
func (s *Service) RoleOf(ctx context.Context, userID int64) (string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return "", apperr.NotFound("user")
	}
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	return u.Role, nil
}

func (s *Service) record(ctx context.Context, eventType string, payload any) error {
	if s.events == nil {
		return nil
	}
	return s.events.Record(ctx, eventType, payload)
}
