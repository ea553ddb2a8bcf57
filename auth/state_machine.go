package auth

import (
	"context"
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// TokenFlow names one of the two single use token flows on an account.
type TokenFlow string

const (
	FlowVerification TokenFlow = "verification"
	FlowReset        TokenFlow = "reset"
)

// Column is the users column holding the flow token.
func (f TokenFlow) Column() string {
	switch f {
	case FlowVerification:
		return "verification_token"
	case FlowReset:
		return "reset_token"
	default:
		panic(fmt.Sprintf("auth: unknown token flow %q", string(f)))
	}
}

// TTLHours is how long a freshly minted flow token stays valid.
func (f TokenFlow) TTLHours() int {
	if f == FlowReset {
		return ResetTokenTTLHours
	}
	return VerificationTokenTTLHours
}

// FlowState is the lifecycle position of a token flow.
type FlowState string

const (
	FlowStateNone      FlowState = "none"
	FlowStatePending   FlowState = "pending"
	FlowStateConsumed  FlowState = "consumed"
	FlowStateAbandoned FlowState = "abandoned"
)

var errInvalidFlowTransition = goerrors.New("invalid token flow transition", goerrors.CategoryInternal).
	WithTextCode("INVALID_FLOW_TRANSITION").
	WithCode(goerrors.CodeInternal)

// ConsumeEffect returns the columns to write alongside clearing the token.
type ConsumeEffect func(user *User) (map[string]any, error)

// AccountStateMachine drives the verification and reset flows.
type AccountStateMachine interface {
	Begin(ctx context.Context, tx bun.IDB, user *User, flow TokenFlow) (string, error)
	Inspect(ctx context.Context, tx bun.IDB, flow TokenFlow, token string) (*User, error)
	Consume(ctx context.Context, tx bun.IDB, flow TokenFlow, token string, effect ConsumeEffect) (*User, error)
	State(user *User, flow TokenFlow) FlowState
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineTokens injects the token generator (and with it the clock).
func WithStateMachineTokens(tokens *TokenGenerator) StateMachineOption {
	return func(sm *accountStateMachine) {
		if tokens != nil {
			sm.tokens = tokens
		}
	}
}

// WithStateMachineLogger overrides the logger used for transitions.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

type accountStateMachine struct {
	users       Users
	tokens      *TokenGenerator
	logger      Logger
	transitions map[FlowState]map[FlowState]struct{}
}

// NewAccountStateMachine returns the default implementation backed by users.
func NewAccountStateMachine(users Users, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		users:  users,
		tokens: NewTokenGenerator(),
		logger: defLogger(),
		transitions: map[FlowState]map[FlowState]struct{}{
			FlowStateNone: {
				FlowStatePending: {},
			},
			FlowStatePending: {
				FlowStatePending:   {},
				FlowStateConsumed:  {},
				FlowStateAbandoned: {},
			},
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// State reads the flow state off the stored fields. Consumed and abandoned
// flows leave no trace, so they read as none.
func (sm *accountStateMachine) State(user *User, flow TokenFlow) FlowState {
	if user == nil {
		return FlowStateNone
	}
	if t := flowToken(user, flow); t != nil && *t != "" {
		return FlowStatePending
	}
	return FlowStateNone
}

// Begin mints a new token for flow, replacing any pending one.
func (sm *accountStateMachine) Begin(ctx context.Context, tx bun.IDB, user *User, flow TokenFlow) (string, error) {
	if user == nil {
		return "", withCause(errInvalidFlowTransition, errors.New("user is nil"))
	}

	if flow == FlowVerification && user.EmailVerified {
		return "", ErrAlreadyVerified
	}

	if err := sm.transition(user, flow, FlowStatePending); err != nil {
		return "", err
	}

	token, err := sm.tokens.Generate()
	if err != nil {
		return "", err
	}
	expiresAt := sm.tokens.Expiry(flow.TTLHours())

	if err := sm.users.SetFlowTokenTx(ctx, tx, user.ID, flow, token, expiresAt); err != nil {
		return "", err
	}

	setFlowToken(user, flow, stringPtr(token))
	user.TokenExpiresAt = timePtr(expiresAt)

	return token, nil
}

// Inspect resolves token to its account. An expired token is abandoned on the
// spot and ErrFlowTokenExpired returned.
func (sm *accountStateMachine) Inspect(ctx context.Context, tx bun.IDB, flow TokenFlow, token string) (*User, error) {
	user, err := sm.lookup(ctx, tx, flow, token)
	if err != nil {
		return nil, err
	}
	if err := sm.expire(ctx, tx, user, flow); err != nil {
		return nil, err
	}
	return user, nil
}

// Consume validates token, applies effect and clears the token in a single
// conditional update. Losing a race to another consumer yields ErrInvalidToken.
// A verification token held by an already verified account is consumed
// regardless of its expiry.
func (sm *accountStateMachine) Consume(ctx context.Context, tx bun.IDB, flow TokenFlow, token string, effect ConsumeEffect) (*User, error) {
	user, err := sm.lookup(ctx, tx, flow, token)
	if err != nil {
		return nil, err
	}

	if flow != FlowVerification || !user.EmailVerified {
		if err := sm.expire(ctx, tx, user, flow); err != nil {
			return nil, err
		}
	}

	if err := sm.transition(user, flow, FlowStateConsumed); err != nil {
		return nil, err
	}

	var set map[string]any
	if effect != nil {
		if set, err = effect(user); err != nil {
			return nil, err
		}
	}

	ok, err := sm.users.ConsumeFlowTokenTx(ctx, tx, user.ID, flow, token, set)
	if err != nil {
		return nil, err
	}
	if !ok {
		sm.logger.Info("account %s lost %s token race", user.ID, flow)
		return nil, ErrInvalidToken
	}

	setFlowToken(user, flow, nil)
	user.TokenExpiresAt = nil

	return user, nil
}

func (sm *accountStateMachine) lookup(ctx context.Context, tx bun.IDB, flow TokenFlow, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	user, err := sm.users.GetByFlowTokenTx(ctx, tx, flow, token)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// expire abandons the flow when its token is past expiry.
func (sm *accountStateMachine) expire(ctx context.Context, tx bun.IDB, user *User, flow TokenFlow) error {
	if !sm.tokens.IsExpired(user.TokenExpiresAt) {
		return nil
	}
	if err := sm.transition(user, flow, FlowStateAbandoned); err != nil {
		return err
	}
	if err := sm.users.ClearFlowTokenTx(ctx, tx, user.ID, flow); err != nil {
		return err
	}
	setFlowToken(user, flow, nil)
	user.TokenExpiresAt = nil
	return ErrFlowTokenExpired
}

func (sm *accountStateMachine) transition(user *User, flow TokenFlow, to FlowState) error {
	from := sm.State(user, flow)
	if allowed, ok := sm.transitions[from]; ok {
		if _, exists := allowed[to]; exists {
			sm.logger.Debug("account %s %s flow: %s -> %s", user.ID, flow, from, to)
			return nil
		}
	}
	return withCause(errInvalidFlowTransition, fmt.Errorf("%s flow: %s -> %s", flow, from, to))
}

func flowToken(user *User, flow TokenFlow) *string {
	if flow == FlowReset {
		return user.ResetToken
	}
	return user.VerificationToken
}

func setFlowToken(user *User, flow TokenFlow, token *string) {
	if flow == FlowReset {
		user.ResetToken = token
		return
	}
	user.VerificationToken = token
}
