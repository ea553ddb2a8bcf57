package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type RefreshTokenMessage struct {
	RefreshToken string `json:"refreshToken"`
	OnResponse   func(tokens TokenPair)
}

func (e RefreshTokenMessage) Type() string { return "user.refresh_token" }

type RefreshTokenHandler struct {
	repo   RepositoryManager
	tokens *TokenService
}

func NewRefreshTokenHandler(repo RepositoryManager, tokens *TokenService) *RefreshTokenHandler {
	return &RefreshTokenHandler{repo: repo, tokens: tokens}
}

func (h *RefreshTokenHandler) Execute(ctx context.Context, event RefreshTokenMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "token refresh")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RefreshTokenHandler) execute(ctx context.Context, event RefreshTokenMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	claims, err := h.tokens.ValidateRefresh(event.RefreshToken)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return ErrUserNotFound
	}

	user, err := h.repo.Users().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound
		}
		return commandError(err, "failed to retrieve user for refresh")
	}

	tokens, err := h.tokens.IssuePair(user.Identity())
	if err != nil {
		return commandError(err, "failed to issue session tokens")
	}

	if event.OnResponse != nil {
		event.OnResponse(tokens)
	}

	return nil
}
