package mother

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcare/mcare/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const motherCols = `m.id, m.user_id, m.first_name, m.last_name, m.date_of_birth, m.phone_number,
	m.address, m.emergency_contact, m.blood_type, m.pregnancy_status, m.expected_delivery_date,
	m.last_menstrual_period, m.number_of_pregnancies, m.number_of_live_births,
	m.medical_conditions, m.allergies, m.clinic_id, m.is_active, m.created_at, m.updated_at`

func scanMother(row pgx.Row) (*Mother, error) {
	var m Mother
	err := row.Scan(&m.ID, &m.UserID, &m.FirstName, &m.LastName, &m.DateOfBirth, &m.PhoneNumber,
		&m.Address, &m.EmergencyContact, &m.BloodType, &m.PregnancyStatus, &m.ExpectedDeliveryDate,
		&m.LastMenstrualPeriod, &m.NumberOfPregnancies, &m.NumberOfLiveBirths,
		&m.MedicalConditions, &m.Allergies, &m.ClinicID, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &m, nil
}

func (r *repoPG) Create(ctx context.Context, m *Mother) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO mothers (user_id, first_name, last_name, date_of_birth, phone_number,
			address, emergency_contact, blood_type, pregnancy_status, expected_delivery_date,
			last_menstrual_period, number_of_pregnancies, number_of_live_births,
			medical_conditions, allergies, clinic_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at`,
		m.UserID, m.FirstName, m.LastName, m.DateOfBirth, m.PhoneNumber,
		m.Address, m.EmergencyContact, m.BloodType, m.PregnancyStatus, m.ExpectedDeliveryDate,
		m.LastMenstrualPeriod, m.NumberOfPregnancies, m.NumberOfLiveBirths,
		m.MedicalConditions, m.Allergies, m.ClinicID, m.IsActive,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	return db.MapError(err)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Mother, error) {
	return scanMother(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+motherCols+` FROM mothers m WHERE m.id = $1 AND m.is_active`, id))
}

func (r *repoPG) GetByUserID(ctx context.Context, userID int64) (*Mother, error) {
	return scanMother(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+motherCols+` FROM mothers m WHERE m.user_id = $1 AND m.is_active`, userID))
}

func (r *repoPG) ExistsForUser(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM mothers WHERE user_id = $1)`, userID).Scan(&ok)
	return ok, err
}

func (r *repoPG) Update(ctx context.Context, m *Mother) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE mothers SET first_name = $2, last_name = $3, date_of_birth = $4, phone_number = $5,
			address = $6, emergency_contact = $7, blood_type = $8, pregnancy_status = $9,
			expected_delivery_date = $10, last_menstrual_period = $11, number_of_pregnancies = $12,
			number_of_live_births = $13, medical_conditions = $14, allergies = $15, clinic_id = $16,
			updated_at = NOW()
		WHERE id = $1 AND is_active
		RETURNING updated_at`,
		m.ID, m.FirstName, m.LastName, m.DateOfBirth, m.PhoneNumber,
		m.Address, m.EmergencyContact, m.BloodType, m.PregnancyStatus,
		m.ExpectedDeliveryDate, m.LastMenstrualPeriod, m.NumberOfPregnancies,
		m.NumberOfLiveBirths, m.MedicalConditions, m.Allergies, m.ClinicID,
	).Scan(&m.UpdatedAt)
	return db.MapError(err)
}

func (r *repoPG) Deactivate(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE mothers SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Mother, int, error) {
	where := ` WHERE m.is_active`
	var args []interface{}
	idx := 1

	if f.ClinicID != nil {
		where += fmt.Sprintf(` AND m.clinic_id = $%d`, idx)
		args = append(args, *f.ClinicID)
		idx++
	}
	if f.PregnancyStatus != "" {
		where += fmt.Sprintf(` AND m.pregnancy_status = $%d`, idx)
		args = append(args, f.PregnancyStatus)
		idx++
	}

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM mothers m`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + motherCols + ` FROM mothers m` + where +
		fmt.Sprintf(` ORDER BY m.created_at DESC, m.id DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *repoPG) Search(ctx context.Context, term string, clinicID *int64, limit int) ([]*Mother, error) {
	query := `SELECT ` + motherCols + `
		FROM mothers m
		JOIN users u ON u.id = m.user_id
		WHERE m.is_active
		  AND (m.first_name ILIKE $1 OR m.last_name ILIKE $1
		       OR m.phone_number ILIKE $1 OR u.email ILIKE $1)`
	args := []interface{}{likePattern(term)}
	if clinicID != nil {
		query += ` AND m.clinic_id = $2`
		args = append(args, *clinicID)
	}
	query += fmt.Sprintf(` ORDER BY m.last_name, m.first_name LIMIT $%d`, len(args)+1)
	args = append(args, limit)
	return r.query(ctx, query, args...)
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Mother, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Mother
	for rows.Next() {
		m, err := scanMother(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches term anywhere, with LIKE wildcards in term taken
// literally.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
