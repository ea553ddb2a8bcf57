package auth

import (
	"context"

	"github.com/uptrace/bun"
)

type VerifyPasswordResetMessage struct {
	Token      string `json:"token"`
	OnResponse func(user *User)
}

func (p VerifyPasswordResetMessage) Type() string { return "user.password_reset.verify" }

type VerifyPasswordResetHandler struct {
	repo    RepositoryManager
	machine AccountStateMachine
}

func NewVerifyPasswordResetHandler(repo RepositoryManager, machine AccountStateMachine) *VerifyPasswordResetHandler {
	return &VerifyPasswordResetHandler{repo: repo, machine: machine}
}

func (h *VerifyPasswordResetHandler) Execute(ctx context.Context, event VerifyPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "password reset verification")
	default:
		return h.execute(ctx, event)
	}
}

// execute does not consume the token.
func (h *VerifyPasswordResetHandler) execute(ctx context.Context, event VerifyPasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var user *User
	err := runInFlowTx(ctx, h.repo, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.machine.Inspect(ctx, tx, FlowReset, event.Token)
		return err
	})
	if err != nil {
		return commandError(err, "failed to verify password reset token")
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
