package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
	ErrTokenRevoked   = errors.New("token revoked")
)

type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
}

// TokenPair is returned at login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type TokenConfig struct {
	SigningKey []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenManager issues and verifies HS256 access and refresh tokens.
type TokenManager struct {
	cfg     TokenConfig
	revoked *TokenRevocationStore
	now     func() time.Time
}

func NewTokenManager(cfg TokenConfig, revoked *TokenRevocationStore) *TokenManager {
	return &TokenManager{cfg: cfg, revoked: revoked, now: time.Now}
}

// IssuePair signs a fresh access and refresh token for id.
func (m *TokenManager) IssuePair(id Identity) (*TokenPair, error) {
	access, err := m.sign(id, TokenTypeAccess, m.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(id, TokenTypeRefresh, m.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// IssueAccess signs a single access token for id.
func (m *TokenManager) IssueAccess(id Identity) (string, error) {
	return m.sign(id, TokenTypeAccess, m.cfg.AccessTTL)
}

func (m *TokenManager) sign(id Identity, tokenType string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID.String(),
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:     id.Email,
		TokenType: tokenType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (m *TokenManager) parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccess validates an access token and returns the identity it carries.
func (m *TokenManager) VerifyAccess(tokenStr string) (Identity, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return Identity{}, err
	}
	if claims.TokenType != TokenTypeAccess {
		return Identity{}, ErrWrongTokenType
	}
	return identityFromClaims(claims)
}

// VerifyRefresh validates a refresh token that has not been revoked.
func (m *TokenManager) VerifyRefresh(tokenStr string) (*Claims, Identity, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return nil, Identity{}, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, Identity{}, ErrWrongTokenType
	}
	if m.revoked != nil && m.revoked.IsRevoked(claims.ID) {
		return nil, Identity{}, ErrTokenRevoked
	}
	id, err := identityFromClaims(claims)
	if err != nil {
		return nil, Identity{}, err
	}
	return claims, id, nil
}

// Revoke blocks further use of the token described by claims until it expires.
func (m *TokenManager) Revoke(claims *Claims) {
	if m.revoked == nil || claims == nil || claims.ID == "" {
		return
	}
	expiresAt := m.now().Add(m.cfg.RefreshTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	m.revoked.RevokeForUser(claims.ID, claims.Subject, expiresAt)
}

func identityFromClaims(claims *Claims) (Identity, error) {
	uid, err := uuid.Parse(claims.Subject)
	if err != nil || uid == uuid.Nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: uid, Email: claims.Email}, nil
}
