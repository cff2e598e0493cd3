package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/home-manager/internal/apperror"
	"github.com/sakif/home-manager/internal/auth"
	"github.com/sakif/home-manager/internal/metrics"
	"github.com/sakif/home-manager/internal/model"
	"github.com/sakif/home-manager/internal/repository"
)

// AuthService handles registration, sign-in and sign-out. It sits between
// the HTTP handlers and the user store:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt), Denylist
//
// Every successful sign-in returns a JWT whose "email" claim is the Owner
// the category and item services scope records to.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	denylist  auth.Denylist
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewAuthService creates an AuthService. denylist may be nil, in which case
// Logout only clears the client cookie and tokens stay valid until expiry.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	denylist auth.Denylist,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		denylist:  denylist,
		metrics:   m,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User   *model.User
	Token  string
	Claims *auth.Claims
}

// NormalizeEmail trims and lower-cases an email so it can serve as an Owner.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a password account. Returns apperror.ErrConflict if the
// email is already registered.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := auth.CheckStrength(password); err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Provider:     model.ProviderPassword,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		s.metrics.AuthAttempts.WithLabelValues("register", "failure").Inc()
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Conflict("user", email)
		}
		return nil, fmt.Errorf("service/auth: creating user %s: %w", email, err)
	}

	s.metrics.AuthAttempts.WithLabelValues("register", "success").Inc()
	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

// Login checks email and password and issues a token. Unknown emails,
// wrong passwords and Google-only accounts all fail with the same
// apperror.ErrUnauthorized so callers can't probe which emails exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	invalid := apperror.Unauthorized("invalid email or password")

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.recordLogin(ctx, "password", "failure", email)
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if user.PasswordHash == "" {
		s.recordLogin(ctx, "password", "failure", email)
		return nil, invalid
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.recordLogin(ctx, "password", "failure", email)
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	s.recordLogin(ctx, "password", "success", email)
	return s.issue(user)
}

// LoginOrRegisterGoogle upserts the Google profile by email and issues a
// token. An existing password account with the same email is reused, so
// both sign-in methods reach the same records.
func (s *AuthService) LoginOrRegisterGoogle(ctx context.Context, gu *auth.GoogleUser) (*AuthResult, error) {
	if gu == nil {
		return nil, fmt.Errorf("service/auth: Google user must not be nil")
	}
	email := NormalizeEmail(gu.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	user := &model.User{
		Email:     email,
		Name:      gu.Name,
		Provider:  model.ProviderGoogle,
		AvatarURL: gu.Picture,
	}
	if err := s.users.UpsertUserByEmail(ctx, user); err != nil {
		s.metrics.AuthAttempts.WithLabelValues("google", "failure").Inc()
		return nil, fmt.Errorf("service/auth: upserting user %s: %w", email, err)
	}

	s.recordLogin(ctx, "google", "success", email)
	return s.issue(user)
}

// Logout revokes the token until it would have expired. Without a denylist
// this is a no-op. An invalid or expired token is already unusable, so it
// is not an error.
func (s *AuthService) Logout(ctx context.Context, tokenStr string) error {
	if s.denylist == nil || tokenStr == "" {
		return nil
	}
	claims, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return nil
	}
	if err := s.denylist.Revoke(ctx, claims.ID, claims.Expiry()); err != nil {
		return apperror.StorageUnavailable("revoking session", err)
	}

	s.logger.Info("user logged out",
		slog.String("userID", claims.Subject),
		slog.String("jti", claims.ID),
	)
	return nil
}

// GetUserByID returns the user for the given internal ID. Used by /api/me.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("no user in session")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}

// ValidateToken validates a JWT string and returns its claims.
func (s *AuthService) ValidateToken(tokenStr string) (*auth.Claims, error) {
	claims, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return nil, apperror.Unauthorized(err.Error())
	}
	return claims, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, claims, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token, Claims: claims}, nil
}

func (s *AuthService) recordLogin(ctx context.Context, method, result, email string) {
	s.metrics.AuthAttempts.WithLabelValues(method, result).Inc()
	level := slog.LevelInfo
	if result != "success" {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "login attempt",
		slog.String("method", method),
		slog.String("result", result),
		slog.String("email", email),
	)
}

func validateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "email is not a valid address")
	}
	return nil
}
