package child

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcare/mcare/internal/platform/db"
)

// -- Child --

type childRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &childRepoPG{pool: pool}
}

const childCols = `c.id, c.mother_id, c.first_name, c.last_name, c.gender, c.date_of_birth,
	c.birth_weight, c.birth_height, c.birth_type, c.apgar_score, c.blood_type,
	c.created_at, c.updated_at, m.user_id`

const childFrom = ` FROM children c JOIN mothers m ON m.id = c.mother_id`

func scanChild(row pgx.Row) (*Child, error) {
	var c Child
	err := row.Scan(&c.ID, &c.MotherID, &c.FirstName, &c.LastName, &c.Gender, &c.DateOfBirth,
		&c.BirthWeight, &c.BirthHeight, &c.BirthType, &c.ApgarScore, &c.BloodType,
		&c.CreatedAt, &c.UpdatedAt, &c.OwnerUserID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &c, nil
}

func (r *childRepoPG) Create(ctx context.Context, c *Child) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO children (mother_id, first_name, last_name, gender, date_of_birth,
				birth_weight, birth_height, birth_type, apgar_score, blood_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, mother_id, created_at, updated_at
		)
		SELECT ins.id, ins.created_at, ins.updated_at, m.user_id
		FROM ins JOIN mothers m ON m.id = ins.mother_id`,
		c.MotherID, c.FirstName, c.LastName, c.Gender, c.DateOfBirth,
		c.BirthWeight, c.BirthHeight, c.BirthType, c.ApgarScore, c.BloodType,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.OwnerUserID)
	return db.MapError(err)
}

func (r *childRepoPG) GetByID(ctx context.Context, id int64) (*Child, error) {
	return scanChild(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+childCols+childFrom+` WHERE c.id = $1`, id))
}

func (r *childRepoPG) ListByMother(ctx context.Context, motherID int64) ([]*Child, error) {
	return r.query(ctx, `SELECT `+childCols+childFrom+` WHERE c.mother_id = $1 ORDER BY c.date_of_birth DESC, c.id DESC`, motherID)
}

func (r *childRepoPG) List(ctx context.Context, motherID *int64, limit, offset int) ([]*Child, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if motherID != nil {
		where += fmt.Sprintf(` AND c.mother_id = $%d`, idx)
		args = append(args, *motherID)
		idx++
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM children c`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + childCols + childFrom + where +
		fmt.Sprintf(` ORDER BY c.created_at DESC, c.id DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *childRepoPG) Update(ctx context.Context, c *Child) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE children SET first_name = $2, last_name = $3, gender = $4, date_of_birth = $5,
			birth_weight = $6, birth_height = $7, birth_type = $8, apgar_score = $9,
			blood_type = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.FirstName, c.LastName, c.Gender, c.DateOfBirth,
		c.BirthWeight, c.BirthHeight, c.BirthType, c.ApgarScore, c.BloodType,
	).Scan(&c.UpdatedAt)
	return db.MapError(err)
}

func (r *childRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM children WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *childRepoPG) CountByMother(ctx context.Context, motherID int64) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM children WHERE mother_id = $1`, motherID).Scan(&n)
	return n, err
}

func (r *childRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Child, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// -- MedicalRecord --

type medicalRecordRepoPG struct{ pool *pgxpool.Pool }

func NewMedicalRecordRepoPG(pool *pgxpool.Pool) MedicalRecordRepository {
	return &medicalRecordRepoPG{pool: pool}
}

const medicalRecordCols = `id, child_id, recorded_by, recorded_at, height, weight, temperature,
	heart_rate, blood_pressure, vaccinations, medications, allergies, conditions, notes`

func (r *medicalRecordRepoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medical_records (child_id, recorded_by, height, weight, temperature,
			heart_rate, blood_pressure, vaccinations, medications, allergies, conditions, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, recorded_at`,
		rec.ChildID, rec.RecordedBy, rec.Height, rec.Weight, rec.Temperature,
		rec.HeartRate, rec.BloodPressure, nonNil(rec.Vaccinations), nonNil(rec.Medications),
		nonNil(rec.Allergies), nonNil(rec.Conditions), rec.Notes,
	).Scan(&rec.ID, &rec.RecordedAt)
	return db.MapError(err)
}

func (r *medicalRecordRepoPG) ListByChild(ctx context.Context, childID int64) ([]*MedicalRecord, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+medicalRecordCols+` FROM medical_records WHERE child_id = $1 ORDER BY recorded_at DESC, id DESC`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*MedicalRecord
	for rows.Next() {
		var rec MedicalRecord
		if err := rows.Scan(&rec.ID, &rec.ChildID, &rec.RecordedBy, &rec.RecordedAt, &rec.Height,
			&rec.Weight, &rec.Temperature, &rec.HeartRate, &rec.BloodPressure, &rec.Vaccinations,
			&rec.Medications, &rec.Allergies, &rec.Conditions, &rec.Notes); err != nil {
			return nil, err
		}
		items = append(items, &rec)
	}
	return items, rows.Err()
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
