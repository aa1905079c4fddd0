package mail

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender is the development MailSender: it writes the code to the log
// instead of sending mail. Real deployments plug an SMTP-backed sender in;
// the debug-otp endpoint covers local flows either way.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendOTP(_ context.Context, email, code string) error {
	s.log.Info().
		Str("email", email).
		Str("code", code).
		Msg("otp mail (dev delivery)")
	return nil
}
