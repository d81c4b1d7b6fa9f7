package visit

import "context"

type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id int64) (*Visit, error)
	// ListByMother returns the most recent visits first.
	ListByMother(ctx context.Context, motherID int64, limit int) ([]*Visit, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Visit, int, error)
	Update(ctx context.Context, v *Visit) error
	Delete(ctx context.Context, id int64) error
	CountByMother(ctx context.Context, motherID int64) (int, error)
}
