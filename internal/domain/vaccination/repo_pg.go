package vaccination

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcare/mcare/internal/platform/db"
	"github.com/mcare/mcare/pkg/civil"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const vaccinationCols = `v.id, v.child_id, v.health_worker_id, v.vaccine_name, v.date_given,
	v.next_due_date, v.administered_by, v.batch_number, v.notes, v.follow_up_visit_id,
	v.created_at, v.updated_at, m.user_id`

const vaccinationFrom = ` FROM vaccinations v
	JOIN children c ON c.id = v.child_id
	JOIN mothers m ON m.id = c.mother_id`

func scanInto(v *Vaccination, extra ...any) []any {
	return append([]any{&v.ID, &v.ChildID, &v.HealthWorkerID, &v.VaccineName, &v.DateGiven,
		&v.NextDueDate, &v.AdministeredBy, &v.BatchNumber, &v.Notes, &v.FollowUpVisitID,
		&v.CreatedAt, &v.UpdatedAt, &v.OwnerUserID}, extra...)
}

func scanVaccination(row pgx.Row) (*Vaccination, error) {
	var v Vaccination
	if err := row.Scan(scanInto(&v)...); err != nil {
		return nil, db.MapError(err)
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, v *Vaccination) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO vaccinations (child_id, health_worker_id, vaccine_name, date_given,
				next_due_date, administered_by, batch_number, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, child_id, created_at, updated_at
		)
		SELECT ins.id, ins.created_at, ins.updated_at, m.user_id
		FROM ins
		JOIN children c ON c.id = ins.child_id
		JOIN mothers m ON m.id = c.mother_id`,
		v.ChildID, v.HealthWorkerID, v.VaccineName, v.DateGiven,
		v.NextDueDate, v.AdministeredBy, v.BatchNumber, v.Notes,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt, &v.OwnerUserID)
	return db.MapError(err)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Vaccination, error) {
	return scanVaccination(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+vaccinationCols+vaccinationFrom+` WHERE v.id = $1`, id))
}

func (r *repoPG) ListByChild(ctx context.Context, childID int64) ([]*Vaccination, error) {
	return r.query(ctx, `SELECT `+vaccinationCols+vaccinationFrom+`
		WHERE v.child_id = $1 ORDER BY v.date_given DESC, v.id DESC`, childID)
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Vaccination, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM vaccinations`).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, `SELECT `+vaccinationCols+vaccinationFrom+`
		ORDER BY v.date_given DESC, v.id DESC LIMIT $1 OFFSET $2`, limit, offset)
	return items, total, err
}

func (r *repoPG) Update(ctx context.Context, v *Vaccination) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE vaccinations SET health_worker_id = $2, vaccine_name = $3, date_given = $4,
			next_due_date = $5, administered_by = $6, batch_number = $7, notes = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		v.ID, v.HealthWorkerID, v.VaccineName, v.DateGiven,
		v.NextDueDate, v.AdministeredBy, v.BatchNumber, v.Notes,
	).Scan(&v.UpdatedAt)
	return db.MapError(err)
}

func (r *repoPG) SetFollowUpVisit(ctx context.Context, id, visitID int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE vaccinations SET follow_up_visit_id = $2 WHERE id = $1`, id, visitID)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM vaccinations WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func alertColumn(useNextDue bool) string {
	if useNextDue {
		return "v.next_due_date"
	}
	return "v.date_given"
}

const dueCols = vaccinationCols + `, c.first_name || ' ' || c.last_name, c.mother_id`

func (r *repoPG) ListDueBetween(ctx context.Context, useNextDue bool, from, to civil.Date) ([]*Due, error) {
	col := alertColumn(useNextDue)
	return r.queryDue(ctx, `SELECT `+dueCols+vaccinationFrom+`
		WHERE `+col+` BETWEEN $1 AND $2
		ORDER BY `+col+`, v.id`, from, to)
}

func (r *repoPG) ListOverdue(ctx context.Context, useNextDue bool, before civil.Date, limit int) ([]*Due, error) {
	col := alertColumn(useNextDue)
	return r.queryDue(ctx, `SELECT `+dueCols+vaccinationFrom+`
		WHERE `+col+` < $1
		ORDER BY `+col+` DESC, v.id DESC
		LIMIT $2`, before, limit)
}

func (r *repoPG) queryDue(ctx context.Context, sql string, args ...any) ([]*Due, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Due
	for rows.Next() {
		d := Due{Vaccination: &Vaccination{}}
		if err := rows.Scan(scanInto(d.Vaccination, &d.ChildName, &d.MotherID)...); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

func (r *repoPG) query(ctx context.Context, sql string, args ...any) ([]*Vaccination, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Vaccination
	for rows.Next() {
		v, err := scanVaccination(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}
