package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account record.
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	FullName          string     `bun:"full_name,notnull" json:"full_name"`
	Email             string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash      string     `bun:"password_hash,notnull" json:"-"`
	Phone             *string    `bun:"phone" json:"phone"`
	Age               *int       `bun:"age" json:"age"`
	ProfilePhoto      *string    `bun:"profile_photo" json:"profile_photo"`
	EmailVerified     bool       `bun:"email_verified,notnull" json:"email_verified"`
	VerificationToken *string    `bun:"verification_token" json:"-"`
	ResetToken        *string    `bun:"reset_token" json:"-"`
	TokenExpiresAt    *time.Time `bun:"token_expires_at" json:"-"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// Identity projects the account onto what the gate attaches to requests.
func (u *User) Identity() Identity {
	return Identity{
		ID:       u.ID.String(),
		Email:    u.Email,
		FullName: u.FullName,
	}
}

// UserResponse is the public projection of an account.
type UserResponse struct {
	ID            string     `json:"id"`
	FullName      string     `json:"full_name"`
	Email         string     `json:"email"`
	Phone         *string    `json:"phone"`
	Age           *int       `json:"age"`
	ProfilePhoto  *string    `json:"profile_photo"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// PhotoURLResolver turns a stored photo key into an absolute URL.
type PhotoURLResolver func(key string) string

// Public builds the client projection. Secrets never leave through it.
func (u *User) Public(resolve PhotoURLResolver) UserResponse {
	out := UserResponse{
		ID:            u.ID.String(),
		FullName:      u.FullName,
		Email:         u.Email,
		Phone:         u.Phone,
		Age:           u.Age,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	if u.ProfilePhoto != nil && *u.ProfilePhoto != "" {
		photo := *u.ProfilePhoto
		if resolve != nil {
			photo = resolve(photo)
		}
		out.ProfilePhoto = &photo
	}
	return out
}

func stringPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
