package clinic

import "context"

type Repository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id int64) (*Clinic, error)
	Exists(ctx context.Context, id int64) (bool, error)
	NameExists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*Clinic, int, error)
}
