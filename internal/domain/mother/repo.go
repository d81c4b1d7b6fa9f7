package mother

import "context"

// Repository persists mothers. Lookups by id and user return only active
// profiles.
type Repository interface {
	Create(ctx context.Context, m *Mother) error
	GetByID(ctx context.Context, id int64) (*Mother, error)
	GetByUserID(ctx context.Context, userID int64) (*Mother, error)
	// ExistsForUser also counts deactivated profiles.
	ExistsForUser(ctx context.Context, userID int64) (bool, error)
	Update(ctx context.Context, m *Mother) error
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Mother, int, error)
	Search(ctx context.Context, term string, clinicID *int64, limit int) ([]*Mother, error)
}

