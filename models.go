package sessiongate

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/uptrace/bun"
)

// Credentials carry a login or registration attempt. They are transient:
// never persisted, never logged.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(
			&c.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&c.Password,
			validation.Required,
		),
	)
}

// UserSummary is the identity snapshot the provider returns at login,
// registration, or token validation time.
type UserSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Profile is the profile record row keyed by user id.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf" json:"-"`
	ID            string     `bun:"id,pk" json:"id"`
	Email         string     `bun:"email,notnull" json:"email"`
	Name          string     `bun:"name" json:"name,omitempty"`
	AvatarURL     string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	Bio           string     `bun:"bio" json:"bio,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}
