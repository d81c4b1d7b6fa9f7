package identity

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcare/mcare/internal/platform/db"
)

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

const userCols = `id, full_name, email, phone, password_hash, role, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.PasswordHash,
		&u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (full_name, email, phone, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		u.FullName, u.Email, u.Phone, u.PasswordHash, u.Role, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return db.MapError(err)
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

func (r *userRepoPG) GetByPhone(ctx context.Context, phone string) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE phone = $1`, phone))
}

func (r *userRepoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email).Scan(&ok)
	return ok, err
}

func (r *userRepoPG) PhoneExists(ctx context.Context, phone string) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE phone = $1)`, phone).Scan(&ok)
	return ok, err
}

// =========== Health Worker Repository ===========

type healthWorkerRepoPG struct{ pool *pgxpool.Pool }

func NewHealthWorkerRepoPG(pool *pgxpool.Pool) HealthWorkerRepository {
	return &healthWorkerRepoPG{pool: pool}
}

func (r *healthWorkerRepoPG) Create(ctx context.Context, hw *HealthWorker) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO health_workers (user_id, clinic_id)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		hw.UserID, hw.ClinicID).Scan(&hw.ID, &hw.CreatedAt)
	return db.MapError(err)
}

func (r *healthWorkerRepoPG) GetByUserID(ctx context.Context, userID int64) (*HealthWorker, error) {
	var hw HealthWorker
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, user_id, clinic_id, created_at FROM health_workers WHERE user_id = $1`, userID,
	).Scan(&hw.ID, &hw.UserID, &hw.ClinicID, &hw.CreatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &hw, nil
}

func (r *healthWorkerRepoPG) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM health_workers WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}
