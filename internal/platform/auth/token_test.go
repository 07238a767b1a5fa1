package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func createTestToken(t *testing.T, claims Claims, key []byte, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func TestTokenManager_IssueAndVerify(t *testing.T) {
	tm := newTestTokenManager()
	id := Identity{UserID: uuid.New(), Email: "alice@example.com"}

	pair, err := tm.IssuePair(id)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("expected both tokens")
	}

	got, err := tm.VerifyAccess(pair.Access)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if got != id {
		t.Errorf("expected %+v, got %+v", id, got)
	}

	claims, rid, err := tm.VerifyRefresh(pair.Refresh)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if rid != id {
		t.Errorf("expected %+v from refresh, got %+v", id, rid)
	}
	if claims.ID == "" {
		t.Error("expected refresh token to carry a jti")
	}
}

func TestTokenManager_WrongType(t *testing.T) {
	tm := newTestTokenManager()
	pair, _ := tm.IssuePair(Identity{UserID: uuid.New()})

	if _, err := tm.VerifyAccess(pair.Refresh); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("expected ErrWrongTokenType for refresh as access, got %v", err)
	}
	if _, _, err := tm.VerifyRefresh(pair.Access); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("expected ErrWrongTokenType for access as refresh, got %v", err)
	}
}

func TestTokenManager_Expired(t *testing.T) {
	tm := newTestTokenManager()
	issuedAt := time.Now().Add(-time.Hour)
	tm.now = func() time.Time { return issuedAt }
	pair, _ := tm.IssuePair(Identity{UserID: uuid.New()})
	tm.now = time.Now

	if _, err := tm.VerifyAccess(pair.Access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected expired access token to be invalid, got %v", err)
	}
}

func TestTokenManager_BadSignature(t *testing.T) {
	tm := newTestTokenManager()
	other := NewTokenManager(TokenConfig{
		SigningKey: []byte("a-different-signing-key-entirely!"),
		Issuer:     "clinic-api",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, nil)
	pair, _ := other.IssuePair(Identity{UserID: uuid.New()})

	if _, err := tm.VerifyAccess(pair.Access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected foreign token to be invalid, got %v", err)
	}
}

func TestTokenManager_WrongIssuer(t *testing.T) {
	tm := newTestTokenManager()
	now := time.Now()
	tok := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		TokenType: TokenTypeAccess,
	}, testSigningKey, jwt.SigningMethodHS256)

	if _, err := tm.VerifyAccess(tok); err == nil {
		t.Error("expected token from another issuer to be rejected")
	}
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	tm := newTestTokenManager()
	tok := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    "clinic-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		TokenType: TokenTypeAccess,
	}, testSigningKey, jwt.SigningMethodHS512)

	if _, err := tm.VerifyAccess(tok); err == nil {
		t.Error("expected HS512 token to be rejected")
	}
}

func TestTokenManager_MissingExpiry(t *testing.T) {
	tm := newTestTokenManager()
	tok := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString(), Issuer: "clinic-api"},
		TokenType:        TokenTypeAccess,
	}, testSigningKey, jwt.SigningMethodHS256)

	if _, err := tm.VerifyAccess(tok); err == nil {
		t.Error("expected token without exp to be rejected")
	}
}

func TestTokenManager_NonUUIDSubject(t *testing.T) {
	tm := newTestTokenManager()
	tok := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			Issuer:    "clinic-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		TokenType: TokenTypeAccess,
	}, testSigningKey, jwt.SigningMethodHS256)

	if _, err := tm.VerifyAccess(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenManager_Revoke(t *testing.T) {
	store := NewTokenRevocationStore()
	defer store.Close()
	tm := NewTokenManager(TokenConfig{
		SigningKey: testSigningKey,
		Issuer:     "clinic-api",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, store)

	pair, _ := tm.IssuePair(Identity{UserID: uuid.New()})
	claims, _, err := tm.VerifyRefresh(pair.Refresh)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}

	tm.Revoke(claims)

	if _, _, err := tm.VerifyRefresh(pair.Refresh); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("expected ErrTokenRevoked after revoke, got %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 revoked entry, got %d", store.Count())
	}
}
