package vaccination

import (
	"time"

	"github.com/mcare/mcare/internal/domain/visit"
	"github.com/mcare/mcare/pkg/civil"
)

// AlertWindowDays is how far ahead an upcoming alert looks.
const AlertWindowDays = 7

// MaxAlerts caps the overdue records returned by one alerts query. The
// upcoming window is never truncated.
const MaxAlerts = 1000

type Vaccination struct {
	ID              int64       `db:"id" json:"id"`
	ChildID         int64       `db:"child_id" json:"child_id"`
	HealthWorkerID  *int64      `db:"health_worker_id" json:"health_worker_id,omitempty"`
	VaccineName     string      `db:"vaccine_name" json:"vaccine_name"`
	DateGiven       civil.Date  `db:"date_given" json:"date_given"`
	NextDueDate     *civil.Date `db:"next_due_date" json:"next_due_date,omitempty"`
	AdministeredBy  *string     `db:"administered_by" json:"administered_by,omitempty"`
	BatchNumber     *string     `db:"batch_number" json:"batch_number,omitempty"`
	Notes           *string     `db:"notes" json:"notes,omitempty"`
	FollowUpVisitID *int64      `db:"follow_up_visit_id" json:"follow_up_visit_id,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`

	OwnerUserID int64 `db:"owner_user_id" json:"-"`
}

// RecordResult is what recording a vaccination produced.
type RecordResult struct {
	VaccinationID int64        `json:"vaccination_id"`
	VisitID       *int64       `json:"visit_id"`
	Vaccination   *Vaccination `json:"vaccination"`
	FollowUpVisit *visit.Visit `json:"follow_up_visit,omitempty"`
}

// Due is a vaccination joined with its child, as listed by alerts.
type Due struct {
	*Vaccination
	ChildName string `json:"child_name"`
	MotherID  int64  `json:"mother_id"`
}

type Alert struct {
	Due
	// AlertDate is the date the alert is computed from.
	AlertDate civil.Date `json:"alert_date"`
	// DaysUntil is negative for overdue records.
	DaysUntil int `json:"days_until"`
}

type Alerts struct {
	Upcoming []*Alert `json:"upcoming"`
	Overdue  []*Alert `json:"overdue"`
}

var createFields = []string{
	"child_id", "health_worker_id", "vaccine_name", "date_given", "next_due_date",
	"administered_by", "batch_number", "notes",
}

var updateFields = createFields[1:]
