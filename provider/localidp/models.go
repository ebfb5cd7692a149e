package localidp

import (
	"time"

	"github.com/uptrace/bun"
)

// User is an account row. PasswordHash is a bcrypt digest; the plaintext
// password never touches the database or the logs.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr" json:"-"`
	ID            string     `bun:"id,pk" json:"id"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	Name          string     `bun:"name" json:"name,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Confirmed     bool       `bun:"confirmed,notnull,default:false" json:"confirmed"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// RevokedToken is a denylist row keyed by the token's jti claim. Rows become
// dead weight once the token would have expired anyway; ExpiresAt lets a
// sweep job clear them.
type RevokedToken struct {
	bun.BaseModel `bun:"table:revoked_tokens,alias:rvt" json:"-"`
	JTI           string    `bun:"jti,pk" json:"jti"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt     time.Time `bun:"revoked_at,notnull" json:"revoked_at"`
}
