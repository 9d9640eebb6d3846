package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/app/repositories"
	"github.com/shashiranjanraj/bunkar/pkg/auth"
	"github.com/shashiranjanraj/bunkar/pkg/validate"
)

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Tokens is returned on sign-in.
type Tokens struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

type AuthService struct {
	users *repositories.UserRepository
}

func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{users: repositories.NewUserRepository(db)}
}

// Register creates a customer account. New accounts are always USER; staff
// roles are granted by seeding or directly in the database.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Tokens, error) {
	if err := invalid(validate.Struct(in)); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	user := &models.User{Name: in.Name, Email: in.Email, PasswordHash: &hash, Role: auth.RoleUser}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return s.issue(user)
}

// Login checks the password of an email account. Accounts without a
// password hash belong to an external identity provider and cannot sign in
// here.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Tokens, error) {
	if err := invalid(validate.Struct(in)); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == nil || !auth.CheckPassword(*user.PasswordHash, in.Password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Me returns the stored account behind a principal.
func (s *AuthService) Me(ctx context.Context, p *auth.Principal) (*models.User, error) {
	if p == nil {
		return nil, ErrAuthenticationRequired
	}
	user, err := s.users.FindByID(ctx, p.UserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrSessionExpired
	}
	return user, err
}

func (s *AuthService) issue(user *models.User) (*Tokens, error) {
	access, err := auth.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("auth: sign token: %w", err)
	}
	refresh, err := auth.GenerateRefreshToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh, User: user}, nil
}
