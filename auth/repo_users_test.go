package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/safebite/safebite-api/auth"
)

func TestUsers_Create(t *testing.T) {
	ctx := context.Background()
	clock := newFixedClock()
	repo := auth.NewRepositoryManager(newTestDB(t), auth.WithUsersClock(clock.Now))

	user := createUser(t, repo, "maria@example.com", "secret123")

	assert.NotEqual(t, uuid.Nil, user.ID)
	require.NotNil(t, user.CreatedAt)
	assert.WithinDuration(t, clock.Now(), *user.CreatedAt, 0)
	assert.False(t, user.EmailVerified)

	t.Run("emails are unique", func(t *testing.T) {
		_, err := repo.Users().Create(ctx, &auth.User{
			FullName:     "Other",
			Email:        "maria@example.com",
			PasswordHash: "x",
		})
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})

	t.Run("flow token lookup", func(t *testing.T) {
		err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := repo.Users().SetFlowTokenTx(ctx, tx, user.ID, auth.FlowReset, "abc", clock.Now().Add(time.Hour)); err != nil {
				return err
			}
			found, err := repo.Users().GetByFlowTokenTx(ctx, tx, auth.FlowReset, "abc")
			require.NoError(t, err)
			assert.Equal(t, user.ID, found.ID)

			_, err = repo.Users().GetByFlowTokenTx(ctx, tx, auth.FlowVerification, "abc")
			assert.True(t, repository.IsRecordNotFound(err))

			_, err = repo.Users().GetByFlowTokenTx(ctx, tx, auth.FlowReset, "")
			assert.True(t, repository.IsRecordNotFound(err))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("lookups", func(t *testing.T) {
		byEmail, err := repo.Users().GetByEmail(ctx, "maria@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)

		byID, err := repo.Users().GetByID(ctx, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, "Maria Silva", byID.FullName)

		_, err = repo.Users().GetByEmail(ctx, "nobody@example.com")
		assert.True(t, repository.IsRecordNotFound(err))

		_, err = repo.Users().GetByID(ctx, uuid.NewString())
		assert.True(t, repository.IsRecordNotFound(err))
	})
}

func TestUsers_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	clock := newFixedClock()
	repo := auth.NewRepositoryManager(newTestDB(t), auth.WithUsersClock(clock.Now))
	user := createUser(t, repo, "maria@example.com", "secret123")

	clock.Advance(time.Minute)
	phone := "+5511987654321"
	user.Phone = &phone
	user.FullName = "ignored"

	_, err := repo.Users().UpdateProfile(ctx, user, "phone")
	require.NoError(t, err)

	stored, err := repo.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored.Phone)
	assert.Equal(t, phone, *stored.Phone)
	assert.Equal(t, "Maria Silva", stored.FullName)
	assert.WithinDuration(t, clock.Now(), *stored.UpdatedAt, time.Second)

	t.Run("missing rows are reported", func(t *testing.T) {
		_, err := repo.Users().UpdateProfile(ctx, &auth.User{ID: uuid.New()}, "phone")
		assert.True(t, repository.IsRecordNotFound(err))
	})
}

func TestRepositoryManager_RunInTx(t *testing.T) {
	ctx := context.Background()
	repo := auth.NewRepositoryManager(newTestDB(t))
	assert.NoError(t, repo.Validate())

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			_, err := repo.Users().CreateTx(ctx, tx, &auth.User{
				FullName:     "Rolled Back",
				Email:        "rollback@example.com",
				PasswordHash: "x",
			})
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = repo.Users().GetByEmail(ctx, "rollback@example.com")
		assert.True(t, repository.IsRecordNotFound(err))
	})

	t.Run("refuses cancelled contexts", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		called := false
		err := repo.RunInTx(cctx, nil, func(context.Context, bun.Tx) error {
			called = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, called)
	})
}

func TestIdentityProvider_FindIdentity(t *testing.T) {
	ctx := context.Background()
	repo := auth.NewRepositoryManager(newTestDB(t))
	user := createUser(t, repo, "maria@example.com", "secret123")
	provider := auth.NewIdentityProvider(repo.Users())

	identity, err := provider.FindIdentity(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{ID: user.ID.String(), Email: "maria@example.com", FullName: "Maria Silva"}, identity)

	_, err = provider.FindIdentity(ctx, uuid.NewString())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = provider.FindIdentity(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUser_Public(t *testing.T) {
	photo := "profile-1.jpg"
	token := "secret-token"
	user := &auth.User{
		ID:                uuid.New(),
		FullName:          "Maria Silva",
		Email:             "maria@example.com",
		PasswordHash:      "hash",
		ProfilePhoto:      &photo,
		VerificationToken: &token,
	}

	public := user.Public(func(key string) string { return "http://cdn/" + key })
	require.NotNil(t, public.ProfilePhoto)
	assert.Equal(t, "http://cdn/profile-1.jpg", *public.ProfilePhoto)
	assert.Equal(t, user.ID.String(), public.ID)

	assert.Equal(t, "profile-1.jpg", *user.ProfilePhoto)
}
