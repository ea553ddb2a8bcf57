package auth

import (
	"context"

	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

type FinalizePasswordResetHandler struct {
	repo    RepositoryManager
	machine AccountStateMachine
	logger  Logger
}

func NewFinalizePasswordResetHandler(repo RepositoryManager, machine AccountStateMachine) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:    repo,
		machine: machine,
		logger:  defLogger(),
	}
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "password reset finalization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var user *User
	err := runInFlowTx(ctx, h.repo, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.machine.Consume(ctx, tx, FlowReset, event.Token, func(*User) (map[string]any, error) {
			hash, err := HashPassword(event.Password)
			if err != nil {
				return nil, err
			}
			return map[string]any{"password_hash": hash}, nil
		})
		return err
	})
	if err != nil {
		return commandError(err, "failed to finalize password reset")
	}

	h.logger.Info("password reset completed for account %s", user.ID)

	return nil
}
