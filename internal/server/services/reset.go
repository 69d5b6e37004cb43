package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/cryptox"
	"github.com/dmitrijs2005/bantx/internal/logging"
	"github.com/dmitrijs2005/bantx/internal/server/mailer"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/users"
)

const DefaultResetTTL = time.Hour

// PasswordResetService runs the two-step reset: RequestReset mails a one-time
// link, ResetPassword consumes it. Only the token digest is stored.
type PasswordResetService struct {
	store       *CredentialStore
	mail        mailer.Dispatcher
	frontendURL string
	ttl         time.Duration
	log         logging.Logger
	now         func() time.Time
}

func NewPasswordResetService(repo users.Repository, mail mailer.Dispatcher, frontendURL string, ttl time.Duration, l logging.Logger) *PasswordResetService {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	return &PasswordResetService{
		store:       NewCredentialStore(repo),
		mail:        mail,
		frontendURL: frontendURL,
		ttl:         ttl,
		log:         l,
		now:         time.Now,
	}
}

// RequestReset issues a reset credential for email when such a user exists.
// The result is the same whether or not the address is known, and a mail
// failure is only logged.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	u, err := s.store.FindByEmail(ctx, email, users.WithSecrets())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Info(ctx, "password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, digest, err := cryptox.NewResetToken()
	if err != nil {
		return internal(err)
	}
	expires := s.now().UTC().Add(s.ttl)
	u.Credentials.ResetTokenHash = digest
	u.Credentials.ResetExpiresAt = &expires

	if err := s.store.Save(ctx, u); err != nil {
		return err
	}

	subject, body, err := mailer.ResetPasswordEmail(s.frontendURL, token, humanDuration(s.ttl))
	if err != nil {
		s.log.Error(ctx, "render reset email failed", "user_id", u.ID, "error", err)
		return nil
	}
	if err := s.mail.Send(ctx, u.Email, subject, body); err != nil {
		s.log.Error(ctx, "send reset email failed", "user_id", u.ID, "error", err)
		return nil
	}

	s.log.Info(ctx, "password reset issued", "user_id", u.ID, "expires_at", expires)
	return nil
}

// ResetPassword sets newPassword for the holder of token if the token is
// known and unexpired. A token works once.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return common.ErrInvalidOrExpiredReset
	}
	id, err := s.store.ConsumeReset(ctx, cryptox.HashResetToken(token), s.now().UTC(), newPassword)
	if err != nil {
		return err
	}
	s.log.Info(ctx, "password reset completed", "user_id", id)
	return nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hora"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d horas", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d minutos", int(d/time.Minute))
	}
}
