package visit

import (
	"time"

	"github.com/mcare/mcare/pkg/civil"
)

const (
	TypeAntenatal = "antenatal"
	TypePostnatal = "postnatal"
	TypeGeneral   = "general"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// DefaultMotherLimit is how many visits a mother's history shows by default.
const DefaultMotherLimit = 10

type Visit struct {
	ID             int64      `db:"id" json:"id"`
	MotherID       int64      `db:"mother_id" json:"mother_id"`
	ChildID        *int64     `db:"child_id" json:"child_id,omitempty"`
	HealthWorkerID *int64     `db:"health_worker_id" json:"health_worker_id,omitempty"`
	VisitDate      civil.Date `db:"visit_date" json:"visit_date"`
	VisitType      string     `db:"visit_type" json:"visit_type"`
	Status         string     `db:"status" json:"status"`
	Weight         *float64   `db:"weight" json:"weight,omitempty"`
	BloodPressure  *string    `db:"blood_pressure" json:"blood_pressure,omitempty"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`

	OwnerUserID int64 `db:"owner_user_id" json:"-"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Status    string
	VisitType string
}

var createFields = []string{
	"mother_id", "child_id", "health_worker_id", "visit_date", "visit_type",
	"status", "weight", "blood_pressure", "notes",
}

// The mother and child of a visit are fixed once it exists.
var updateFields = []string{
	"health_worker_id", "visit_date", "visit_type", "status", "weight", "blood_pressure", "notes",
}

// NewFollowUp builds the scheduled postnatal visit that follows a
// vaccination with a next due date.
func NewFollowUp(motherID, childID int64, due civil.Date, notes string) *Visit {
	return &Visit{
		MotherID:  motherID,
		ChildID:   &childID,
		VisitDate: due,
		VisitType: TypePostnatal,
		Status:    StatusScheduled,
		Notes:     &notes,
	}
}

// FollowUpNotes describes a follow-up vaccination appointment.
func FollowUpNotes(childName, vaccine string, vaccineNotes *string) string {
	s := "Next vaccination appointment for " + childName + ": " + vaccine
	if vaccineNotes != nil && *vaccineNotes != "" {
		s += " | Vaccine notes: " + *vaccineNotes
	}
	return s
}

// canTransition reports whether a visit may move from one status to
// another. Completed and cancelled visits are final.
func canTransition(from, to string) bool {
	if from == to {
		return true
	}
	return from == StatusScheduled && (to == StatusCompleted || to == StatusCancelled)
}
