package identity

import (
	"time"

	"github.com/mcare/mcare/internal/platform/auth"
)

// User is an account that can sign in.
type User struct {
	ID           int64     `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        string    `db:"email" json:"email"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// HealthWorker is the staff profile created alongside a health_worker user.
type HealthWorker struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ClinicID  *int64    `db:"clinic_id" json:"clinic_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewUser is a decoded registration payload.
type NewUser struct {
	FullName string  `json:"full_name"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone"`
	Password string  `json:"password"`
	Role     string  `json:"role"`
	ClinicID *int64  `json:"clinic_id"`
}

type Credentials struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Session is returned by a successful login.
type Session struct {
	*auth.IssuedToken
	User *User `json:"user"`
}

// Profile is the signed-in user's own view.
type Profile struct {
	User         *User         `json:"user"`
	HealthWorker *HealthWorker `json:"health_worker,omitempty"`
}

var (
	userFields  = []string{"full_name", "email", "phone", "password", "role", "clinic_id"}
	loginFields = []string{"email", "phone", "password"}
)
