package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/safebite/safebite-api/auth"
)

const testSigningKey = "test-signing-key"

// newTestDB returns an isolated, migrated in-memory database.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), sqldb, "sqlite"))
	return db
}

// fixedClock is a settable clock shared by generators and services.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTokenService(t *testing.T, opts ...auth.TokenServiceOption) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(auth.TokenServiceConfig{
		SigningKey: []byte(testSigningKey),
		Issuer:     "safebite-test",
	}, opts...)
	require.NoError(t, err)
	return ts
}

// createUser stores an account with the given password.
func createUser(t *testing.T, repo auth.RepositoryManager, email, password string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	user, err := repo.Users().Create(context.Background(), &auth.User{
		FullName:     "Maria Silva",
		Email:        email,
		PasswordHash: hash,
	})
	require.NoError(t, err)
	return user
}

// MockMailer records deliveries.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, to, fullName, token string) error {
	args := m.Called(ctx, to, fullName, token)
	return args.Error(0)
}

func (m *MockMailer) SendVerification(ctx context.Context, to, fullName, token string) error {
	args := m.Called(ctx, to, fullName, token)
	return args.Error(0)
}

// tokenSent returns the token passed to the last call of method.
func (m *MockMailer) tokenSent(method string) string {
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == method {
			return m.Calls[i].Arguments.String(3)
		}
	}
	return ""
}
