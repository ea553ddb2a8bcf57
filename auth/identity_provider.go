package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// IdentityProvider resolves token subjects to live accounts.
type IdentityProvider struct {
	users Users
}

func NewIdentityProvider(users Users) *IdentityProvider {
	return &IdentityProvider{users: users}
}

// FindIdentity returns ErrUserNotFound for unknown or unparsable ids.
func (p *IdentityProvider) FindIdentity(ctx context.Context, subject string) (Identity, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return Identity{}, ErrUserNotFound
	}

	user, err := p.users.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, err
	}

	return user.Identity(), nil
}
