// Package auth verifies the storefront's HS256 access tokens. Token issuance
// lives with the account service; Issue exists for tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/toko-payments/internal/common"
)

const defaultAccessTTL = 15 * time.Minute

var errInvalidToken = common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, nil)

// Config describes how access tokens are signed and validated.
type Config struct {
	Secret         string
	Issuer         string
	Audience       string
	AccessTokenTTL time.Duration
	ClockSkew      time.Duration
}

// Tokens signs and parses access tokens.
type Tokens struct {
	secret    []byte
	accessTTL time.Duration
	clockSkew time.Duration
	issuer    string
	audience  string
	validator TokenValidator
	now       func() time.Time
}

// NewTokens constructs Tokens with defaults matching the storefront issuer.
func NewTokens(cfg Config) (*Tokens, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "toko-payments"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "toko-frontend"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}
	return &Tokens{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		clockSkew: clockSkew,
		issuer:    issuer,
		audience:  audience,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// WithNow overrides the clock.
func (t *Tokens) WithNow(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Issue signs an access token for userID.
func (t *Tokens) Issue(userID string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	now := t.now()
	expiresAt := now.Add(t.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(t.issuer).
		Audience([]string{t.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-t.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// ParseAccessToken validates token and returns its subject.
func (t *Tokens) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", errInvalidToken.WithCause(err)
	}
	if algorithm != t.validator.Algorithm {
		return "", errInvalidToken.WithCause(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, t.secret), jwt.WithValidate(false))
	if err != nil {
		return "", errInvalidToken.WithCause(err)
	}
	if err := t.validator.Validate(parsed, algorithm, t.now()); err != nil {
		return "", errInvalidToken.WithCause(err)
	}
	return parsed.Subject(), nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	switch alg {
	case "":
		return "", errors.New("auth: token missing algorithm")
	case jwa.NoSignature:
		return "", errors.New("auth: token uses none algorithm")
	}
	return alg, nil
}
