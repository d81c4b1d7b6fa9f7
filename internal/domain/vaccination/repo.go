package vaccination

import (
	"context"

	"github.com/mcare/mcare/pkg/civil"
)

type Repository interface {
	Create(ctx context.Context, v *Vaccination) error
	GetByID(ctx context.Context, id int64) (*Vaccination, error)
	ListByChild(ctx context.Context, childID int64) ([]*Vaccination, error)
	List(ctx context.Context, limit, offset int) ([]*Vaccination, int, error)
	Update(ctx context.Context, v *Vaccination) error
	SetFollowUpVisit(ctx context.Context, id, visitID int64) error
	Delete(ctx context.Context, id int64) error
	// ListDueBetween returns records whose alert date falls in [from, to],
	// soonest first. The alert date is next_due_date when useNextDue is set
	// and date_given otherwise.
	ListDueBetween(ctx context.Context, useNextDue bool, from, to civil.Date) ([]*Due, error)
	// ListOverdue returns up to limit records whose alert date is before
	// before, most recent first.
	ListOverdue(ctx context.Context, useNextDue bool, before civil.Date, limit int) ([]*Due, error)
}
