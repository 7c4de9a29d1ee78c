// Package auth provides JWT issuance/verification, password hashing, and
// the authentication/authorization middleware for the API.
//
// TWO TOKEN CLASSES:
// The service mints two independent token kinds from the same claim shape
// ({subject, issuedAt, expiresAt}):
//
//   - Access tokens  — short-lived (default 7 days), sent on every request
//     in the Authorization header. Signed with the access secret.
//   - Refresh tokens — long-lived (default 30 days), used only to mint a
//     fresh access token. Signed with a DIFFERENT secret.
//
// Because the secrets differ, a refresh token can never pass access-token
// verification (or vice versa) — the signature won't match. The constructor
// enforces that the two secrets are not equal, otherwise the classes would
// collapse into one and the lifetime distinction would be forgery-fodder.
//
// Tokens are stateless: nothing is persisted server-side, verification is a
// pure signature+expiry check. Rotating a secret invalidates every
// outstanding token of that class at once.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure kinds. Callers (the middleware, the refresh handler)
// distinguish exactly these two cases and nothing finer — the client is
// told "expired" or "invalid", never why a token is invalid.
var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

const issuer = "cognitivepath"

// TokenConfig holds the secrets and lifetimes for both token classes.
// Lifetimes come from env vars as duration strings ("7d", "30d", "15m") —
// see ParseLifetime.
type TokenConfig struct {
	AccessSecret    string
	RefreshSecret   string
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
}

// TokenService signs and verifies both token classes. It is pure state-free
// computation over the secrets and the clock — safe for concurrent use
// without synchronization.
type TokenService struct {
	accessSecret    []byte
	refreshSecret   []byte
	accessLifetime  time.Duration
	refreshLifetime time.Duration
}

// NewTokenService validates the config and builds a TokenService.
//
// Each secret should be at least 32 bytes of random data in production
// (e.g. openssl rand -hex 32); we enforce a 16-byte floor. Equal secrets
// are rejected outright — see the package comment.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.AccessSecret) < 16 {
		return nil, errors.New("auth: JWT access secret must be at least 16 characters")
	}
	if len(cfg.RefreshSecret) < 16 {
		return nil, errors.New("auth: JWT refresh secret must be at least 16 characters")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessLifetime <= 0 {
		cfg.AccessLifetime = 7 * 24 * time.Hour
	}
	if cfg.RefreshLifetime <= 0 {
		cfg.RefreshLifetime = 30 * 24 * time.Hour
	}
	return &TokenService{
		accessSecret:    []byte(cfg.AccessSecret),
		refreshSecret:   []byte(cfg.RefreshSecret),
		accessLifetime:  cfg.AccessLifetime,
		refreshLifetime: cfg.RefreshLifetime,
	}, nil
}

// claims is the JWT payload for both token classes. The user's internal ID
// rides in the standard "sub" (Subject) claim.
type claims struct {
	jwt.RegisteredClaims
}

// IssueAccessToken signs a new access token for the given user ID and
// returns it along with its expiry time (the handler echoes the expiry to
// the client so it can refresh proactively).
func (s *TokenService) IssueAccessToken(userID string) (string, time.Time, error) {
	token, exp, err := s.issue(userID, s.accessSecret, s.accessLifetime)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing access token: %w", err)
	}
	return token, exp, nil
}

// IssueRefreshToken signs a new refresh token for the given user ID.
func (s *TokenService) IssueRefreshToken(userID string) (string, error) {
	token, _, err := s.issue(userID, s.refreshSecret, s.refreshLifetime)
	if err != nil {
		return "", fmt.Errorf("auth: signing refresh token: %w", err)
	}
	return token, nil
}

func (s *TokenService) issue(userID string, secret []byte, lifetime time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(lifetime)

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccessToken checks an access token's signature and expiry and
// returns the user ID it encodes. Fails with ErrTokenExpired when the token
// is past its expiry and ErrTokenInvalid for everything else (bad signature,
// wrong class, garbage input, missing subject).
func (s *TokenService) VerifyAccessToken(tokenStr string) (string, error) {
	return s.verify(tokenStr, s.accessSecret)
}

// VerifyRefreshToken is the identical contract against the refresh secret.
func (s *TokenService) VerifyRefreshToken(tokenStr string) (string, error) {
	return s.verify(tokenStr, s.refreshSecret)
}

func (s *TokenService) verify(tokenStr string, secret []byte) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			// Reject anything not signed with HMAC — prevents algorithm
			// confusion attacks (e.g. alg=none).
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", ErrTokenInvalid
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrTokenInvalid)
	}

	return c.Subject, nil
}

// ParseLifetime parses a token lifetime string.
//
// Token lifetimes are conventionally written in days ("7d", "30d"), but
// time.ParseDuration stops at hours. We peel off a trailing "d" ourselves
// and fall back to ParseDuration for everything else, so "15m" and "12h"
// keep working too.
func ParseLifetime(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("auth: empty lifetime")
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("auth: invalid lifetime %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("auth: invalid lifetime %q", s)
	}
	return d, nil
}
