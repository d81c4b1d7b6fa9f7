package identity

import "context"

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
}

type HealthWorkerRepository interface {
	Create(ctx context.Context, hw *HealthWorker) error
	GetByUserID(ctx context.Context, userID int64) (*HealthWorker, error)
	Exists(ctx context.Context, id int64) (bool, error)
}
