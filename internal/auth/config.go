package auth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
)

const (
	DefaultAlgorithm = "HS256"
	DefaultTTL       = 30 * time.Minute
)

// TokenConfig is read once at startup and never mutated afterwards.
type TokenConfig struct {
	Secret    []byte
	Algorithm string
	TTL       time.Duration
	Issuer    string
}

// TokenConfigFromEnv reads SECRET_KEY, ALGORITHM, ACCESS_TOKEN_EXPIRE_MINUTES and TOKEN_ISSUER.
func TokenConfigFromEnv() TokenConfig {
	alg := os.Getenv("ALGORITHM")
	if alg == "" {
		alg = DefaultAlgorithm
	}
	ttl := DefaultTTL
	if v, err := strconv.Atoi(os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES")); err == nil && v > 0 {
		ttl = time.Duration(v) * time.Minute
	}
	return TokenConfig{
		Secret:    []byte(os.Getenv("SECRET_KEY")),
		Algorithm: alg,
		TTL:       ttl,
		Issuer:    os.Getenv("TOKEN_ISSUER"),
	}
}

// Validate reports every problem at once.
func (c TokenConfig) Validate() error {
	var err error
	if len(c.Secret) == 0 {
		err = multierr.Append(err, errors.New("SECRET_KEY is required"))
	}
	if _, ok := signingMethods[c.Algorithm]; !ok {
		err = multierr.Append(err, fmt.Errorf("unsupported ALGORITHM %q", c.Algorithm))
	}
	if c.TTL <= 0 {
		err = multierr.Append(err, errors.New("token TTL must be positive"))
	}
	return err
}
