package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type AccountVerificationRequestMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *AccountVerificationRequestResponse)
}

func (m AccountVerificationRequestMessage) Type() string { return "user.verification.request" }

type AccountVerificationRequestResponse struct {
	User            *User
	AlreadyVerified bool
	EmailSent       bool
}

type AccountVerificationRequestHandler struct {
	repo    RepositoryManager
	machine AccountStateMachine
	mailer  Mailer
	logger  Logger
}

func NewAccountVerificationRequestHandler(repo RepositoryManager, machine AccountStateMachine) *AccountVerificationRequestHandler {
	return &AccountVerificationRequestHandler{
		repo:    repo,
		machine: machine,
		logger:  defLogger(),
	}
}

func (h *AccountVerificationRequestHandler) WithMailer(mailer Mailer) *AccountVerificationRequestHandler {
	h.mailer = mailer
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *AccountVerificationRequestHandler) WithLogger(logger Logger) *AccountVerificationRequestHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AccountVerificationRequestHandler) Execute(ctx context.Context, event AccountVerificationRequestMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "account verification request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationRequestHandler) execute(ctx context.Context, event AccountVerificationRequestMessage) error {
	resp := &AccountVerificationRequestResponse{}

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

		token, err = h.machine.Begin(ctx, tx, user, FlowVerification)
		if errors.Is(err, ErrAlreadyVerified) {
			resp.AlreadyVerified = true
			return nil
		}
		if err != nil {
			return err
		}
		resp.User = user
		return nil
	})
	if err != nil {
		return commandError(err, "failed to request account verification")
	}

	if resp.User != nil && h.mailer != nil {
		if err := h.mailer.SendVerification(ctx, resp.User.Email, resp.User.FullName, token); err != nil {
			h.logger.Error("failed to send verification email to %s: %v", resp.User.Email, err)
		} else {
			resp.EmailSent = true
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
