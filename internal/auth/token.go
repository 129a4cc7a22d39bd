package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/utilities"
)

// ErrInvalidToken is the single outcome of every decode failure: bad
// signature, wrong algorithm, expired, malformed or missing subject.
var ErrInvalidToken = errors.New("invalid token")

var signingMethods = map[string]jwt.SigningMethod{
	jwt.SigningMethodHS256.Alg(): jwt.SigningMethodHS256,
	jwt.SigningMethodHS384.Alg(): jwt.SigningMethodHS384,
	jwt.SigningMethodHS512.Alg(): jwt.SigningMethodHS512,
}

// Claims carries identity, contact handle and role. Nothing else is trusted
// from it: role and active flag are reloaded from the store per request.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	if c.Subject == "" {
		return 0, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

// Token is an issued bearer token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenService issues and validates HMAC-signed session tokens.
type TokenService struct {
	cfg    TokenConfig
	method jwt.SigningMethod
	clock  clockwork.Clock
}

// NewTokenService validates cfg and keeps its own copy of the secret.
func NewTokenService(cfg TokenConfig, clock clockwork.Clock) (*TokenService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg.Secret = append([]byte(nil), cfg.Secret...)
	return &TokenService{cfg: cfg, method: signingMethods[cfg.Algorithm], clock: clock}, nil
}

// TTL is the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.cfg.TTL }

// Issue signs a token for u expiring at now + TTL.
func (s *TokenService) Issue(u *entity.User) (Token, error) {
	now := s.clock.Now()
	exp := now.Add(s.cfg.TTL)
	claims := &Claims{
		Email: u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        utilities.NewKSUID(),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Validate decodes raw. Any failure is reported as ErrInvalidToken; the
// wrapped text is for logs only.
func (s *TokenService) Validate(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.cfg.Algorithm}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
