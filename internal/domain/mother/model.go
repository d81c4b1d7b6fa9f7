package mother

import (
	"time"

	"github.com/mcare/mcare/pkg/civil"
)

// Pregnancy statuses.
const (
	StatusPregnant    = "pregnant"
	StatusPostpartum  = "postpartum"
	StatusNotPregnant = "not_pregnant"
)

// Mother is the maternal health profile attached to a mother's user account.
type Mother struct {
	ID                   int64       `db:"id" json:"id"`
	UserID               int64       `db:"user_id" json:"user_id"`
	FirstName            string      `db:"first_name" json:"first_name"`
	LastName             string      `db:"last_name" json:"last_name"`
	DateOfBirth          civil.Date  `db:"date_of_birth" json:"date_of_birth"`
	PhoneNumber          string      `db:"phone_number" json:"phone_number"`
	Address              *string     `db:"address" json:"address,omitempty"`
	EmergencyContact     *string     `db:"emergency_contact" json:"emergency_contact,omitempty"`
	BloodType            string      `db:"blood_type" json:"blood_type"`
	PregnancyStatus      string      `db:"pregnancy_status" json:"pregnancy_status"`
	ExpectedDeliveryDate *civil.Date `db:"expected_delivery_date" json:"expected_delivery_date,omitempty"`
	LastMenstrualPeriod  *civil.Date `db:"last_menstrual_period" json:"last_menstrual_period,omitempty"`
	NumberOfPregnancies  int         `db:"number_of_pregnancies" json:"number_of_pregnancies"`
	NumberOfLiveBirths   int         `db:"number_of_live_births" json:"number_of_live_births"`
	MedicalConditions    *string     `db:"medical_conditions" json:"medical_conditions,omitempty"`
	Allergies            *string     `db:"allergies" json:"allergies,omitempty"`
	ClinicID             *int64      `db:"clinic_id" json:"clinic_id,omitempty"`
	IsActive             bool        `db:"is_active" json:"is_active"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
}

func (m *Mother) FullName() string {
	return m.FirstName + " " + m.LastName
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	ClinicID        *int64
	PregnancyStatus string
}

// PregnancySummary is the derived overview shown on a mother's dashboard.
type PregnancySummary struct {
	MotherID             int64       `json:"mother_id"`
	FullName             string      `json:"full_name"`
	PregnancyStatus      string      `json:"pregnancy_status"`
	PregnancyWeek        *int        `json:"pregnancy_week"`
	ExpectedDeliveryDate *civil.Date `json:"expected_delivery_date"`
	NumberOfPregnancies  int         `json:"number_of_pregnancies"`
	NumberOfLiveBirths   int         `json:"number_of_live_births"`
	TotalVisits          int         `json:"total_visits"`
	ChildrenCount        int         `json:"children_count"`
	ClinicID             *int64      `json:"clinic_id"`
	BloodType            string      `json:"blood_type"`
	MedicalConditions    *string     `json:"medical_conditions"`
	Allergies            *string     `json:"allergies"`
}

var createFields = []string{
	"user_id", "first_name", "last_name", "date_of_birth", "phone_number",
	"address", "emergency_contact", "blood_type", "pregnancy_status",
	"expected_delivery_date", "last_menstrual_period", "number_of_pregnancies",
	"number_of_live_births", "medical_conditions", "allergies", "clinic_id",
}

// updateFields is createFields without the owning account.
var updateFields = createFields[1:]
