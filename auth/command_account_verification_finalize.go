package auth

import (
	"context"

	"github.com/uptrace/bun"
)

type VerifyEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *VerifyEmailResponse)
}

func (m VerifyEmailMessage) Type() string { return "user.verification.finalize" }

type VerifyEmailResponse struct {
	User            *User
	AlreadyVerified bool
}

type VerifyEmailHandler struct {
	repo    RepositoryManager
	machine AccountStateMachine
}

func NewVerifyEmailHandler(repo RepositoryManager, machine AccountStateMachine) *VerifyEmailHandler {
	return &VerifyEmailHandler{repo: repo, machine: machine}
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "email verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	resp := &VerifyEmailResponse{}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err := runInFlowTx(ctx, h.repo, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.machine.Consume(ctx, tx, FlowVerification, event.Token, func(u *User) (map[string]any, error) {
			if u.EmailVerified {
				resp.AlreadyVerified = true
				return nil, nil
			}
			return map[string]any{"email_verified": true}, nil
		})
		if err != nil {
			return err
		}
		user.EmailVerified = true
		resp.User = user
		return nil
	})
	if err != nil {
		return commandError(err, "failed to verify email")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
