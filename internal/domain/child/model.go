package child

import (
	"time"

	"github.com/mcare/mcare/pkg/civil"
)

type Child struct {
	ID          int64      `db:"id" json:"id"`
	MotherID    int64      `db:"mother_id" json:"mother_id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	Gender      string     `db:"gender" json:"gender"`
	DateOfBirth civil.Date `db:"date_of_birth" json:"date_of_birth"`
	// BirthWeight is in kilograms and BirthHeight in centimetres.
	BirthWeight float64   `db:"birth_weight" json:"birth_weight"`
	BirthHeight float64   `db:"birth_height" json:"birth_height"`
	BirthType   string    `db:"birth_type" json:"birth_type"`
	ApgarScore  int       `db:"apgar_score" json:"apgar_score"`
	BloodType   *string   `db:"blood_type" json:"blood_type,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// OwnerUserID is the mother's user account, loaded for authorization.
	OwnerUserID int64 `db:"owner_user_id" json:"-"`
}

func (c *Child) FullName() string {
	return c.FirstName + " " + c.LastName
}

// MedicalRecord is one append-only health check entry for a child.
type MedicalRecord struct {
	ID            int64     `db:"id" json:"id"`
	ChildID       int64     `db:"child_id" json:"child_id"`
	RecordedBy    *int64    `db:"recorded_by" json:"recorded_by,omitempty"`
	RecordedAt    time.Time `db:"recorded_at" json:"recorded_at"`
	Height        *float64  `db:"height" json:"height,omitempty"`
	Weight        *float64  `db:"weight" json:"weight,omitempty"`
	Temperature   *float64  `db:"temperature" json:"temperature,omitempty"`
	HeartRate     *int      `db:"heart_rate" json:"heart_rate,omitempty"`
	BloodPressure *string   `db:"blood_pressure" json:"blood_pressure,omitempty"`
	Vaccinations  []string  `db:"vaccinations" json:"vaccinations"`
	Medications   []string  `db:"medications" json:"medications"`
	Allergies     []string  `db:"allergies" json:"allergies"`
	Conditions    []string  `db:"conditions" json:"conditions"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
}

var createFields = []string{
	"mother_id", "first_name", "last_name", "gender", "date_of_birth",
	"birth_weight", "birth_height", "birth_type", "apgar_score", "blood_type",
}

// A child cannot be moved to another mother.
var updateFields = createFields[1:]

var medicalRecordFields = []string{
	"height", "weight", "temperature", "heart_rate", "blood_pressure",
	"vaccinations", "medications", "allergies", "conditions", "notes",
}
