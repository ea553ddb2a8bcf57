package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Phone      string `json:"phone"`
	Age        *int   `json:"age"`
	UseHashid  bool
	OnResponse func(resp *AuthResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserHandler struct {
	repo    RepositoryManager
	machine AccountStateMachine
	tokens  *TokenService
	mailer  Mailer
	logger  Logger
}

func NewRegisterUserHandler(repo RepositoryManager, machine AccountStateMachine, tokens *TokenService) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:    repo,
		machine: machine,
		tokens:  tokens,
		logger:  defLogger(),
	}
}

// WithMailer sets the mailer used for the verification email.
func (h *RegisterUserHandler) WithMailer(mailer Mailer) *RegisterUserHandler {
	h.mailer = mailer
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "user registration")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	hash, err := HashPassword(event.Password)
	if err != nil {
		return commandError(err, "failed to hash password")
	}

	user := &User{
		FullName:     strings.TrimSpace(event.FullName),
		Email:        strings.TrimSpace(event.Email),
		PasswordHash: hash,
		Age:          event.Age,
	}
	if phone := strings.TrimSpace(event.Phone); phone != "" {
		user.Phone = stringPtr(phone)
	}
	if event.UseHashid {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		}
	}

	var verificationToken string

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().GetByEmailTx(ctx, tx, user.Email); err == nil {
			return ErrEmailTaken
		} else if !repository.IsRecordNotFound(err) {
			return err
		}

		if _, err := h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		verificationToken, err = h.machine.Begin(ctx, tx, user, FlowVerification)
		return err
	})
	if err != nil {
		return commandError(err, "user registration transaction failed")
	}

	tokens, err := h.tokens.IssuePair(user.Identity())
	if err != nil {
		return commandError(err, "failed to issue session tokens")
	}

	h.sendVerification(ctx, user, verificationToken)

	if event.OnResponse != nil {
		event.OnResponse(&AuthResponse{User: user, Tokens: tokens})
	}

	return nil
}

// sendVerification runs in the background; failures are only logged.
func (h *RegisterUserHandler) sendVerification(ctx context.Context, user *User, token string) {
	if h.mailer == nil || token == "" {
		return
	}

	mailCtx, cancel := detachedContext(ctx)
	go func() {
		defer cancel()
		if err := h.mailer.SendVerification(mailCtx, user.Email, user.FullName, token); err != nil {
			h.logger.Error("failed to send verification email to %s: %v", user.Email, err)
		}
	}()
}
