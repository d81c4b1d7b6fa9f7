package child

import "context"

type Repository interface {
	Create(ctx context.Context, c *Child) error
	GetByID(ctx context.Context, id int64) (*Child, error)
	ListByMother(ctx context.Context, motherID int64) ([]*Child, error)
	List(ctx context.Context, motherID *int64, limit, offset int) ([]*Child, int, error)
	Update(ctx context.Context, c *Child) error
	Delete(ctx context.Context, id int64) error
	CountByMother(ctx context.Context, motherID int64) (int, error)
}

// MedicalRecordRepository has no update or delete; records go away with
// their child.
type MedicalRecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	ListByChild(ctx context.Context, childID int64) ([]*MedicalRecord, error)
}
