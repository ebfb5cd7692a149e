// Package localidp is a self-contained identity provider backed by a bun
// database: bcrypt credential storage, HS256 session tokens, and a revocation
// denylist. It exists so the gateway can run without an external provider.
package localidp

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/fieldware/sessiongate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour * 24

// Provider implements sessiongate.IdentityProvider against a local database.
type Provider struct {
	db     *bun.DB
	tokens *tokenService
	logger sessiongate.Logger

	// requireConfirmation makes Register return no token, modelling providers
	// that hold the session until the address is confirmed.
	requireConfirmation bool
	bcryptCost          int
}

type Option func(*Provider)

func WithLogger(logger sessiongate.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.tokens.ttl = ttl
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(p *Provider) {
		if issuer != "" {
			p.tokens.issuer = issuer
		}
	}
}

// WithRequireConfirmation defers session issuance until the account is
// confirmed: Register succeeds but returns an empty token.
func WithRequireConfirmation() Option {
	return func(p *Provider) {
		p.requireConfirmation = true
	}
}

func WithBcryptCost(cost int) Option {
	return func(p *Provider) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			p.bcryptCost = cost
		}
	}
}

func New(db *bun.DB, signingKey []byte, opts ...Option) *Provider {
	if len(signingKey) == 0 {
		panic("localidp: signing key is required")
	}

	p := &Provider{
		db:         db,
		tokens:     newTokenService(signingKey, "localidp", defaultTokenTTL),
		logger:     sessiongate.DefaultLogger(),
		bcryptCost: 14,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// Migrate creates the users and revoked_tokens tables if they do not exist.
func (p *Provider) Migrate(ctx context.Context) error {
	if _, err := p.db.NewCreateTable().Model((*User)(nil)).IfNotExists().Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create users table")
	}

	if _, err := p.db.NewCreateTable().Model((*RevokedToken)(nil)).IfNotExists().Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create revoked_tokens table")
	}

	return nil
}

func (p *Provider) Login(ctx context.Context, email, password string) (string, sessiongate.UserSummary, error) {
	user := new(User)

	err := p.db.NewSelect().
		Model(user).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			// Same error as a bad password so the response does not reveal
			// which addresses have accounts.
			return "", sessiongate.UserSummary{}, sessiongate.ErrInvalidCredentials
		}
		return "", sessiongate.UserSummary{}, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to look up user").
			WithTextCode(sessiongate.TextCodeStorageError)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", sessiongate.UserSummary{}, sessiongate.ErrInvalidCredentials
	}

	token, err := p.tokens.Generate(user)
	if err != nil {
		return "", sessiongate.UserSummary{}, err
	}

	return token, summarize(user), nil
}

func (p *Provider) Register(ctx context.Context, email, password string) (string, sessiongate.UserSummary, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return "", sessiongate.UserSummary{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password").
			WithCode(goerrors.CodeInternal)
	}

	user := &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Confirmed:    !p.requireConfirmation,
	}

	if _, err := p.db.NewInsert().Model(user).Exec(ctx); err != nil {
		exists, lookupErr := p.emailTaken(ctx, email)
		if lookupErr == nil && exists {
			return "", sessiongate.UserSummary{}, goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
				WithTextCode(sessiongate.TextCodeProviderError).
				WithCode(goerrors.CodeConflict)
		}
		return "", sessiongate.UserSummary{}, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create user").
			WithTextCode(sessiongate.TextCodeStorageError)
	}

	p.logger.Info("user created user_id=%s", user.ID)

	if p.requireConfirmation {
		return "", summarize(user), nil
	}

	token, err := p.tokens.Generate(user)
	if err != nil {
		return "", sessiongate.UserSummary{}, err
	}

	return token, summarize(user), nil
}

func (p *Provider) Validate(ctx context.Context, token string) (sessiongate.UserSummary, error) {
	claims, err := p.tokens.Parse(token)
	if err != nil {
		return sessiongate.UserSummary{}, err
	}

	revoked, err := p.isRevoked(ctx, claims.ID)
	if err != nil {
		return sessiongate.UserSummary{}, err
	}
	if revoked {
		return sessiongate.UserSummary{}, sessiongate.ErrInvalidToken
	}

	return sessiongate.UserSummary{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}, nil
}

// Logout revokes the token by recording its jti until the token would have
// expired anyway. Revoking an already-revoked token is a no-op.
func (p *Provider) Logout(ctx context.Context, token string) error {
	claims, err := p.tokens.Parse(token)
	if err != nil {
		// An unparseable token grants nothing; treat revocation as done.
		return nil
	}

	expiresAt := time.Now().Add(p.tokens.ttl)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	row := &RevokedToken{
		JTI:       claims.ID,
		ExpiresAt: expiresAt,
		RevokedAt: time.Now(),
	}

	if _, err := p.db.NewInsert().Model(row).Exec(ctx); err != nil {
		revoked, lookupErr := p.isRevoked(ctx, claims.ID)
		if lookupErr == nil && revoked {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to revoke token").
			WithTextCode(sessiongate.TextCodeStorageError)
	}

	return nil
}

// PurgeExpired clears denylist rows for tokens that have expired on their
// own. Intended for a periodic sweep.
func (p *Provider) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := p.db.NewDelete().
		Model((*RevokedToken)(nil)).
		Where("?TableAlias.expires_at < ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to purge revoked tokens")
	}

	n, _ := res.RowsAffected()
	return n, nil
}

func (p *Provider) isRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := p.db.NewSelect().
		Model((*RevokedToken)(nil)).
		Where("?TableAlias.jti = ?", jti).
		Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to check token revocation").
			WithTextCode(sessiongate.TextCodeStorageError)
	}
	return exists, nil
}

func (p *Provider) emailTaken(ctx context.Context, email string) (bool, error) {
	return p.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.email = ?", email).
		Exists(ctx)
}

func summarize(user *User) sessiongate.UserSummary {
	return sessiongate.UserSummary{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	}
}
