// Package auth provides authentication utilities for JWT token management.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type constants for the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	AccessTokenExpiry  = 15 * time.Minute
	RefreshTokenExpiry = 7 * 24 * time.Hour

	// DefaultLeeway absorbs clock drift between the shipboard server and
	// shore-side clients when validating exp/iat.
	DefaultLeeway = 30 * time.Second
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrEmptyActorID  = errors.New("actorID cannot be empty")
	ErrEmptyTenantID = errors.New("tenantID cannot be empty")
)

// Claims carries the verified identity for a request. The tenant id and roles
// embedded here are the sole source of request scoping; nothing in a request
// body can widen them.
type Claims struct {
	jwt.RegisteredClaims
	TenantID  string   `json:"tenant_id,omitempty"`
	ActorName string   `json:"actor_name,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Type      string   `json:"typ"`
}

// JWTService signs and validates HS256 tokens. Signing always uses the
// current secret; validation additionally accepts the previous secret so
// secrets can be rotated without invalidating live sessions.
type JWTService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
}

// NewJWTService returns a service with a single secret and default leeway.
func NewJWTService(secret string) *JWTService {
	return NewJWTServiceWithRotationAndLeeway(secret, "", DefaultLeeway)
}

// NewJWTServiceWithLeeway returns a single-secret service with custom leeway.
func NewJWTServiceWithLeeway(secret string, leeway time.Duration) *JWTService {
	return NewJWTServiceWithRotationAndLeeway(secret, "", leeway)
}

// NewJWTServiceWithRotation returns a dual-secret service. An empty
// previousSecret means no rotation is in progress.
func NewJWTServiceWithRotation(currentSecret, previousSecret string) *JWTService {
	return NewJWTServiceWithRotationAndLeeway(currentSecret, previousSecret, DefaultLeeway)
}

// NewJWTServiceWithRotationAndLeeway returns a dual-secret service with
// custom leeway.
func NewJWTServiceWithRotationAndLeeway(currentSecret, previousSecret string, leeway time.Duration) *JWTService {
	svc := &JWTService{
		currentSecret: []byte(currentSecret),
		leeway:        leeway,
	}
	if previousSecret != "" {
		svc.previousSecret = []byte(previousSecret)
	}
	return svc
}

// GenerateAccessToken mints a short-lived token carrying the actor's tenant,
// display name, and role set.
func (s *JWTService) GenerateAccessToken(actorID, tenantID, actorName string, roles []string) (string, error) {
	if actorID == "" {
		return "", ErrEmptyActorID
	}
	if tenantID == "" {
		return "", ErrEmptyTenantID
	}

	now := time.Now()
	return s.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenExpiry)),
		},
		TenantID:  tenantID,
		ActorName: actorName,
		Roles:     roles,
		Type:      TokenTypeAccess,
	})
}

// GenerateRefreshToken mints a long-lived token holding only the actor and
// tenant ids. Roles are re-resolved from the crew directory on refresh, so a
// role change takes effect at the next token exchange.
func (s *JWTService) GenerateRefreshToken(actorID, tenantID string) (string, error) {
	if actorID == "" {
		return "", ErrEmptyActorID
	}
	if tenantID == "" {
		return "", ErrEmptyTenantID
	}

	now := time.Now()
	return s.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RefreshTokenExpiry)),
		},
		TenantID: tenantID,
		Type:     TokenTypeRefresh,
	})
}

func (s *JWTService) sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.currentSecret)
}

// ValidateToken parses and validates a token against the current secret,
// falling back to the previous secret when rotation is in progress.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	secrets := [][]byte{s.currentSecret}
	if s.previousSecret != nil {
		secrets = append(secrets, s.previousSecret)
	}

	var lastErr error
	for _, secret := range secrets {
		claims, err := s.parseWith(tokenString, secret)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}

	if errors.Is(lastErr, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}

func (s *JWTService) parseWith(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithLeeway(s.leeway))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
