package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

const errInvalidCredentials = "invalid credentials"

// Operation and outcome labels reported to the metrics recorder.
const (
	opRegister = "register"
	opLogin    = "login"
	opRefresh  = "refresh"
	opLogout   = "logout"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeInvalid = "invalid"
)

// Validator checks request structs against their validate tags.
type Validator interface {
	Validate(i interface{}) error
}

// AuthRecorder counts authentication attempts by operation and outcome.
type AuthRecorder interface {
	RecordAuth(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuth(string, string) {}

type Service struct {
	users     UserRepository
	hasher    *auth.PasswordHasher
	tokens    *auth.TokenManager
	validator Validator
	metrics   AuthRecorder
	logger    zerolog.Logger
}

func NewService(users UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenManager,
	validator Validator, metrics AuthRecorder, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		validator: validator,
		metrics:   metrics,
		logger:    logger.With().Str("component", "account").Logger(),
	}
}

// Register creates an account. The email is normalised to lower case and must
// not already be registered.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)

	if err := s.validator.Validate(req); err != nil {
		s.metrics.RecordAuth(opRegister, outcomeInvalid)
		return nil, err
	}
	if req.Password != req.Password2 {
		s.metrics.RecordAuth(opRegister, outcomeInvalid)
		return nil, apperr.ValidationField("password", "password fields didn't match")
	}
	if reason := auth.CheckPasswordStrength(req.Password, req.Email, req.Name); reason != "" {
		s.metrics.RecordAuth(opRegister, outcomeInvalid)
		return nil, apperr.ValidationField("password", reason)
	}

	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("check email: %w", err))
	}
	if exists {
		s.metrics.RecordAuth(opRegister, outcomeFailure)
		return nil, apperr.Conflict("a user with this email already exists")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	u := &User{Email: req.Email, Name: req.Name, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		if db.IsUniqueViolation(err, usersEmailKey) {
			s.metrics.RecordAuth(opRegister, outcomeFailure)
			return nil, apperr.Conflict("a user with this email already exists")
		}
		return nil, apperr.Internal(fmt.Errorf("create user: %w", err))
	}

	s.metrics.RecordAuth(opRegister, outcomeSuccess)
	s.logger.Info().Str("user_id", u.ID.String()).Msg("user registered")
	return u, nil
}

// Login verifies credentials and issues an access and refresh token. Unknown
// emails and wrong passwords produce the same error and comparable timing.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*auth.TokenPair, *User, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Validate(req); err != nil {
		s.metrics.RecordAuth(opLogin, outcomeInvalid)
		return nil, nil, err
	}

	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !db.IsNotFound(err) {
			return nil, nil, apperr.Internal(fmt.Errorf("lookup user: %w", err))
		}
		s.hasher.VerifyDummy(req.Password)
		s.metrics.RecordAuth(opLogin, outcomeFailure)
		s.logger.Warn().Msg("login failed: unknown email")
		return nil, nil, apperr.Authentication(errInvalidCredentials)
	}

	ok, err := s.hasher.Verify(u.PasswordHash, req.Password)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if !ok {
		s.metrics.RecordAuth(opLogin, outcomeFailure)
		s.logger.Warn().Str("user_id", u.ID.String()).Msg("login failed: bad password")
		return nil, nil, apperr.Authentication(errInvalidCredentials)
	}

	pair, err := s.tokens.IssuePair(identityOf(u))
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	s.metrics.RecordAuth(opLogin, outcomeSuccess)
	s.logger.Info().Str("user_id", u.ID.String()).Msg("login succeeded")
	return pair, u, nil
}

// Refresh exchanges a valid, unrevoked refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	_, id, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.metrics.RecordAuth(opRefresh, outcomeFailure)
		return "", apperr.Authentication("token is invalid or expired")
	}

	u, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		if db.IsNotFound(err) {
			s.metrics.RecordAuth(opRefresh, outcomeFailure)
			return "", apperr.Authentication("user not found")
		}
		return "", apperr.Internal(fmt.Errorf("lookup user: %w", err))
	}

	access, err := s.tokens.IssueAccess(identityOf(u))
	if err != nil {
		return "", apperr.Internal(err)
	}
	s.metrics.RecordAuth(opRefresh, outcomeSuccess)
	return access, nil
}

// Logout revokes the caller's refresh token.
func (s *Service) Logout(ctx context.Context, caller auth.Identity, refreshToken string) error {
	if caller.IsZero() {
		return apperr.Authentication("authentication credentials were not provided")
	}
	claims, id, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.metrics.RecordAuth(opLogout, outcomeFailure)
		return apperr.ValidationField("refresh", "token is invalid or expired")
	}
	if id.UserID != caller.UserID {
		s.metrics.RecordAuth(opLogout, outcomeFailure)
		return apperr.Forbidden("refresh token belongs to another user")
	}

	s.tokens.Revoke(claims)
	s.metrics.RecordAuth(opLogout, outcomeSuccess)
	s.logger.Info().Str("user_id", caller.UserID.String()).Msg("refresh token revoked")
	return nil
}

func identityOf(u *User) auth.Identity {
	return auth.Identity{UserID: u.ID, Email: u.Email}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
