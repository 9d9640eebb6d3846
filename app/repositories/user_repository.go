package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/pkg/orm"
)

// UserRepository handles database operations for User.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail looks up a user by email, case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := orm.On(r.db).WithContext(ctx).Model(&models.User{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user)
	return userResult(&user, err)
}

// FindByID looks up a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := orm.On(r.db).WithContext(ctx).Model(&models.User{}).Where("id = ?", id).First(&user)
	return userResult(&user, err)
}

// Create persists a new user record.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	return r.db.WithContext(ctx).Create(user).Error
}

// StaffEmails returns the addresses of every admin and salesperson.
func (r *UserRepository) StaffEmails(ctx context.Context) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("role IN ?", []string{"ADMIN", "SALESPERSON"}).
		Pluck("email", &out).Error
	return out, err
}

func userResult(u *models.User, err error) (*models.User, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: find user: %w", err)
	}
	return u, nil
}

// ContactRepository stores contact-form messages.
type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) Create(ctx context.Context, m *models.ContactMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// List returns messages newest first.
func (r *ContactRepository) List(ctx context.Context) ([]models.ContactMessage, error) {
	var out []models.ContactMessage
	err := orm.On(r.db).WithContext(ctx).Model(&models.ContactMessage{}).Order("created_at DESC").Get(&out)
	return out, err
}
