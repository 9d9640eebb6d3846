package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/app/notifications"
	"github.com/shashiranjanraj/bunkar/app/repositories"
	"github.com/shashiranjanraj/bunkar/pkg/auth"
	"github.com/shashiranjanraj/bunkar/pkg/event"
	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/mail"
	"github.com/shashiranjanraj/bunkar/pkg/notification"
	"github.com/shashiranjanraj/bunkar/pkg/rbac"
	"github.com/shashiranjanraj/bunkar/pkg/recaptcha"
	"github.com/shashiranjanraj/bunkar/pkg/validate"
)

// EventContactReceived fires after a contact message is stored.
const EventContactReceived = "contact.received"

type ContactInput struct {
	Name           string `json:"name" validate:"required,max=255"`
	Email          string `json:"email" validate:"required,email"`
	Message        string `json:"message" validate:"required,max=5000"`
	RecaptchaToken string `json:"recaptcha_token" validate:"required"`
}

type ContactService struct {
	messages *repositories.ContactRepository
	verifier recaptcha.Verifier
	minScore float64
	inbox    string
}

func NewContactService(db *gorm.DB, verifier recaptcha.Verifier, minScore float64, inbox string) *ContactService {
	return &ContactService{
		messages: repositories.NewContactRepository(db),
		verifier: verifier,
		minScore: minScore,
		inbox:    inbox,
	}
}

// Submit scores the message with the bot detector, stores it and tells the
// store inbox. The inbox mail is sent off the request path.
func (s *ContactService) Submit(ctx context.Context, in ContactInput, remoteIP string) (*models.ContactMessage, error) {
	if err := invalid(validate.Struct(in)); err != nil {
		return nil, err
	}

	res, err := s.verifier.Verify(ctx, in.RecaptchaToken, remoteIP)
	if err != nil {
		logger.WithCtx(ctx).Warn("recaptcha verification failed", "error", err)
		return nil, ErrSpamCheck
	}
	if !res.Human(s.minScore) {
		logger.WithCtx(ctx).Info("contact message rejected", "score", res.Score, "codes", res.ErrorCodes)
		return nil, ErrSpamDetected
	}

	msg := &models.ContactMessage{Name: in.Name, Email: in.Email, Message: in.Message, Score: res.Score}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("contact: save: %w", err)
	}

	event.Fire(ctx, EventContactReceived, *msg)
	return msg, nil
}

// List returns every message, newest first. Admin only.
func (s *ContactService) List(ctx context.Context, p *auth.Principal) ([]models.ContactMessage, error) {
	if p == nil {
		return nil, ErrAuthenticationRequired
	}
	if !rbac.Can(p, rbac.ContactList, nil) {
		return nil, ErrAuthorizationDenied
	}
	return s.messages.List(ctx)
}

// NotifyInbox is the contact.received listener.
func (s *ContactService) NotifyInbox(ctx context.Context, payload any) {
	msg, ok := payload.(models.ContactMessage)
	if !ok || s.inbox == "" {
		return
	}
	err := notification.Send(ctx, s.inbox, &notifications.ContactReceived{Message: msg})
	if err != nil && !errors.Is(err, mail.ErrNotConfigured) {
		logger.WithCtx(ctx).Error("contact notification failed", "message_id", msg.ID, "error", err)
	}
}
