package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetResponse is internal only. Clients get the same
// answer whether or not the email matched an account.
type InitializePasswordResetResponse struct {
	User      *User
	EmailSent bool
}

type InitializePasswordResetHandler struct {
	repo    RepositoryManager
	machine AccountStateMachine
	mailer  Mailer
	logger  Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, machine AccountStateMachine) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:    repo,
		machine: machine,
		logger:  defLogger(),
	}
}

func (h *InitializePasswordResetHandler) WithMailer(mailer Mailer) *InitializePasswordResetHandler {
	h.mailer = mailer
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "password reset initialization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var token string

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByEmailTx(ctx, tx, strings.TrimSpace(event.Email))
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return nil
			}
			return err
		}

		token, err = h.machine.Begin(ctx, tx, user, FlowReset)
		if err != nil {
			return err
		}
		resp.User = user
		return nil
	})
	if err != nil {
		return commandError(err, "failed to initialize password reset")
	}

	if resp.User != nil && h.mailer != nil {
		if err := h.mailer.SendPasswordReset(ctx, resp.User.Email, resp.User.FullName, token); err != nil {
			h.logger.Error("failed to send password reset email to %s: %v", resp.User.Email, err)
		} else {
			resp.EmailSent = true
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
