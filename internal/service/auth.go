// Package service holds the business rules of the API.
//
//	Handler (HTTP) → Service (rules, validation) → Repository (DB)
//	                         ↘ nutrition.Source (catalog), auth (tokens)
//
// Services never see HTTP types. They return apperror values that the
// handler layer maps to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/insho/insho-api/internal/apperror"
	"github.com/insho/insho-api/internal/auth"
	"github.com/insho/insho-api/internal/model"
	"github.com/insho/insho-api/internal/repository"
)

const (
	minPasswordLen = 8
	maxEmailLen    = 320
)

// invalidCredentials is the single message for unknown email and wrong
// password, so responses do not reveal which accounts exist.
const invalidCredentials = "invalid email or password"

// AuthService registers accounts, checks credentials and issues tokens.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can answer
// and set the cookie in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is a password sign-up. Name is optional.
type RegisterInput struct {
	Email    string
	Password string
	Name     *string
}

// Register creates an active, not yet onboarded password account.
// The email is stored lower-cased; a taken email is apperror.ErrConflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         trimmedOrNil(in.Name),
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Login checks email and password and issues an access token.
//
// ERRORS:
//   - unknown email or wrong password → apperror.ErrUnauthorized
//   - deactivated account             → apperror.ErrForbidden
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: loading user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login rejected", slog.String("userID", user.ID))
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}
	if !user.IsActive {
		return nil, apperror.Forbidden("inactive user")
	}

	return s.issue(user)
}

// LoginOrRegisterGitHub upserts the account linked to a GitHub profile and
// issues the same kind of token a password login gets.
//
// GitHub users who hide every email get the noreply address GitHub itself
// uses for commits, so the email column stays unique and non-empty.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	email := normalizeEmail(ghUser.Email)
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", ghUser.ID, strings.ToLower(ghUser.Login))
	}
	name := ghUser.Name
	if name == "" {
		name = ghUser.Login
	}
	ghID := ghUser.ID

	user := &model.User{
		Email:    email,
		Name:     trimmedOrNil(&name),
		GitHubID: &ghID,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}
	if !user.IsActive {
		return nil, apperror.Forbidden("inactive user")
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)
	return s.issue(user)
}

// GetUserByID returns the account behind a validated token.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// TokenTTL is the lifetime of issued tokens, used for the cookie Max-Age.
func (s *AuthService) TokenTTL() int {
	return int(s.tokens.TTL().Seconds())
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > maxEmailLen {
		return apperror.ValidationFailed("email", "email is too long")
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.ContainsAny(email, " \t\r\n") {
		return apperror.ValidationFailed("email", "email is not a valid address")
	}
	return nil
}

// trimmedOrNil returns nil for nil or blank strings.
func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
