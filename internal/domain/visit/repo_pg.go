package visit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcare/mcare/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const visitCols = `v.id, v.mother_id, v.child_id, v.health_worker_id, v.visit_date, v.visit_type,
	v.status, v.weight, v.blood_pressure, v.notes, v.created_at, v.updated_at, m.user_id`

const visitFrom = ` FROM visits v JOIN mothers m ON m.id = v.mother_id`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.MotherID, &v.ChildID, &v.HealthWorkerID, &v.VisitDate, &v.VisitType,
		&v.Status, &v.Weight, &v.BloodPressure, &v.Notes, &v.CreatedAt, &v.UpdatedAt, &v.OwnerUserID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO visits (mother_id, child_id, health_worker_id, visit_date, visit_type,
				status, weight, blood_pressure, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, mother_id, created_at, updated_at
		)
		SELECT ins.id, ins.created_at, ins.updated_at, m.user_id
		FROM ins JOIN mothers m ON m.id = ins.mother_id`,
		v.MotherID, v.ChildID, v.HealthWorkerID, v.VisitDate, v.VisitType,
		v.Status, v.Weight, v.BloodPressure, v.Notes,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt, &v.OwnerUserID)
	return db.MapError(err)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Visit, error) {
	return scanVisit(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+visitCols+visitFrom+` WHERE v.id = $1`, id))
}

func (r *repoPG) ListByMother(ctx context.Context, motherID int64, limit int) ([]*Visit, error) {
	return r.query(ctx, `SELECT `+visitCols+visitFrom+`
		WHERE v.mother_id = $1 ORDER BY v.visit_date DESC, v.id DESC LIMIT $2`, motherID, limit)
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Visit, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND v.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.VisitType != "" {
		where += fmt.Sprintf(` AND v.visit_type = $%d`, idx)
		args = append(args, f.VisitType)
		idx++
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM visits v`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + visitCols + visitFrom + where +
		fmt.Sprintf(` ORDER BY v.visit_date DESC, v.id DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE visits SET health_worker_id = $2, visit_date = $3, visit_type = $4, status = $5,
			weight = $6, blood_pressure = $7, notes = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		v.ID, v.HealthWorkerID, v.VisitDate, v.VisitType, v.Status,
		v.Weight, v.BloodPressure, v.Notes,
	).Scan(&v.UpdatedAt)
	return db.MapError(err)
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM visits WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) CountByMother(ctx context.Context, motherID int64) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM visits WHERE mother_id = $1`, motherID).Scan(&n)
	return n, err
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Visit, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}
