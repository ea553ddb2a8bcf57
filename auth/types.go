package auth

import (
	"context"

	"github.com/safebite/safebite-api/logging"
)

// Logger is the logging surface used by this package.
type Logger = logging.Logger

// Identity is the minimal projection of an authenticated account.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Mailer delivers account emails. Implementations live in the mailer package.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, fullName, token string) error
	SendVerification(ctx context.Context, to, fullName, token string) error
}

func defLogger() Logger {
	return logging.Nop()
}
