package identity

import (
	"context"

	"github.com/rs/zerolog"
)

// Mailer delivers confirmation links to users.
type Mailer interface {
	SendConfirmation(ctx context.Context, email, link string) error
}

// LogMailer writes confirmation links to the request logger instead of sending mail.
type LogMailer struct{}

// SendConfirmation logs the link at info level.
func (LogMailer) SendConfirmation(ctx context.Context, email, link string) error {
	zerolog.Ctx(ctx).Info().
		Str("email", email).
		Str("link", link).
		Msg("Email confirmation link")
	return nil
}
