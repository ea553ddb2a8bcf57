package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
)

type LoginMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	OnResponse func(resp *AuthResponse)
}

func (e LoginMessage) Type() string { return "user.login" }

type LoginHandler struct {
	repo   RepositoryManager
	tokens *TokenService
	logger Logger
}

func NewLoginHandler(repo RepositoryManager, tokens *TokenService) *LoginHandler {
	return &LoginHandler{
		repo:   repo,
		tokens: tokens,
		logger: defLogger(),
	}
}

// WithLogger overrides the logger used by the handler.
func (h *LoginHandler) WithLogger(logger Logger) *LoginHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "login")
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, strings.TrimSpace(event.Email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			burnPasswordComparison(event.Password)
			return ErrInvalidCredentials
		}
		return commandError(err, "failed to retrieve user for login")
	}

	if !PasswordMatches(event.Password, user.PasswordHash) {
		h.logger.Debug("failed login attempt for account %s", user.ID)
		return ErrInvalidCredentials
	}

	tokens, err := h.tokens.IssuePair(user.Identity())
	if err != nil {
		return commandError(err, "failed to issue session tokens")
	}

	if event.OnResponse != nil {
		event.OnResponse(&AuthResponse{User: user, Tokens: tokens})
	}

	return nil
}
