package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/utilities"
)

// PrincipalStore is the subset of the user repository identity needs.
// Lookups return an error wrapping sql.ErrNoRows for unknown principals.
type PrincipalStore interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
}

// Resolver authenticates credentials and turns bearer tokens back into principals.
type Resolver struct {
	store  PrincipalStore
	hasher PasswordHasher
	tokens *TokenService
	logger *zap.SugaredLogger
	// dummyHash is verified against when the principal is unknown so both
	// failure paths pay for one hash comparison.
	dummyHash string
}

func NewResolver(store PrincipalStore, hasher PasswordHasher, tokens *TokenService, logger *zap.SugaredLogger) (*Resolver, error) {
	dummy, err := hasher.Hash(utilities.NewKSUID())
	if err != nil {
		return nil, err
	}
	return &Resolver{store: store, hasher: hasher, tokens: tokens, logger: logger, dummyHash: dummy}, nil
}

// Authenticate checks handle (email, or username when it has no '@') and
// secret and issues a token.
func (r *Resolver) Authenticate(ctx context.Context, handle, secret string) (Token, *entity.User, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" || secret == "" {
		r.hasher.Verify(secret, r.dummyHash)
		return Token{}, nil, apperr.Unauthenticated("invalid credentials")
	}

	u, err := r.lookup(ctx, handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.hasher.Verify(secret, r.dummyHash)
			return Token{}, nil, apperr.Unauthenticated("invalid credentials")
		}
		return Token{}, nil, apperr.FromStorage(err, "auth: load principal")
	}

	if !r.hasher.Verify(secret, u.PasswordHash) {
		r.logger.Debugw("password mismatch", "user_id", u.ID)
		return Token{}, nil, apperr.Unauthenticated("invalid credentials")
	}
	if !u.Active {
		return Token{}, nil, apperr.AccountInactive()
	}

	tok, err := r.tokens.Issue(u)
	if err != nil {
		return Token{}, nil, apperr.Internal(err)
	}
	return tok, u, nil
}

// lookup tries the email index first for handles containing '@' and falls
// back to usernames, which older accounts may have registered with an '@'.
func (r *Resolver) lookup(ctx context.Context, handle string) (*entity.User, error) {
	if !strings.Contains(handle, "@") {
		return r.store.GetByUsername(ctx, handle)
	}
	u, err := r.store.GetByEmail(ctx, strings.ToLower(handle))
	if errors.Is(err, sql.ErrNoRows) {
		return r.store.GetByUsername(ctx, handle)
	}
	return u, err
}

// ResolveIdentity validates raw and reloads the principal it names. The
// stored record, not the token, decides role and whether the account is active.
func (r *Resolver) ResolveIdentity(ctx context.Context, raw string) (*entity.User, error) {
	claims, err := r.tokens.Validate(raw)
	if err != nil {
		r.logger.Debugw("token rejected", "err", err)
		return nil, apperr.Unauthenticated("could not validate credentials")
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, apperr.Unauthenticated("could not validate credentials")
	}

	u, err := r.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Unauthenticated("could not validate credentials")
		}
		return nil, apperr.FromStorage(err, "auth: reload principal")
	}
	if !u.Active {
		return nil, apperr.AccountInactive()
	}
	return u, nil
}
