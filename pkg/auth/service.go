package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/gazette/pkg/identity"
	"github.com/platinummonkey/gazette/pkg/observability"
	"github.com/platinummonkey/gazette/pkg/rbac"
)

var (
	// ErrInvalidCredentials is returned for unknown emails and wrong passwords
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signing up with a registered email
	ErrEmailTaken = errors.New("email already registered")
)

// SignupRequest carries the fields for a new account
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Avatar   string `json:"avatar,omitempty" validate:"omitempty,url"`
}

// Service signs users up and verifies their credentials
type Service struct {
	users  identity.UserStore
	logger *observability.Logger
	// dummyHash keeps unknown-email logins as slow as wrong passwords
	dummyHash []byte
}

// NewService creates a new authentication service
func NewService(users identity.UserStore, logger *observability.Logger) *Service {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("gazette-dummy-password"), bcrypt.DefaultCost)
	return &Service{
		users:     users,
		logger:    logger,
		dummyHash: dummy,
	}
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates a user with the base stored role
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*identity.User, error) {
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &identity.User{
		Email:        NormalizeEmail(req.Email),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Avatar:       req.Avatar,
		StoredRole:   rbac.StoredRoleUser,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, identity.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("user signed up")
	return user, nil
}

// Authenticate returns the user owning email when password matches
func (s *Service) Authenticate(ctx context.Context, email, password string) (*identity.User, error) {
	user, err := s.users.FindUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, identity.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
