package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const commandTimeout = time.Second * 10

// mailTimeout bounds detached email deliveries.
const mailTimeout = time.Second * 30

// AuthResponse is produced by register and login.
type AuthResponse struct {
	User   *User
	Tokens TokenPair
}

func cancelledError(ctx context.Context, op string) error {
	return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during "+op).
		WithCode(goerrors.CodeInternal)
}

// commandError keeps categorized errors intact and wraps everything else.
func commandError(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := RichError(err); ok {
		return err
	}
	return Internal(err, message)
}

// runInFlowTx commits even when fn reports an expired flow token, so the
// cleared token is persisted, and hands that error back afterwards.
func runInFlowTx(ctx context.Context, repo repository.TransactionManager, fn func(ctx context.Context, tx bun.Tx) error) error {
	var deferred error
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := fn(ctx, tx); err != nil {
			if errors.Is(err, ErrFlowTokenExpired) {
				deferred = err
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return deferred
}

// detachedContext outlives the request so background deliveries finish.
func detachedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
}
