package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const pgUniqueViolation = "23505"

type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByFlowTokenTx(ctx context.Context, tx bun.IDB, flow TokenFlow, token string) (*User, error)

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)
	UpdateProfile(ctx context.Context, record *User, columns ...string) (*User, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, record *User, columns ...string) (*User, error)

	SetFlowTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, flow TokenFlow, token string, expiresAt time.Time) error
	ClearFlowTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, flow TokenFlow) error
	ConsumeFlowTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, flow TokenFlow, token string, set map[string]any) (bool, error)
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithUsersClock sets the clock stamped into created_at and updated_at.
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *users) {
		if now != nil {
			u.now = now
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}
	return repoUsers
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.Repository.GetByIdentifierTx(ctx, tx, strings.TrimSpace(email))
}

func (a *users) GetByFlowTokenTx(ctx context.Context, tx bun.IDB, flow TokenFlow, token string) (*User, error) {
	if token == "" {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"flow": string(flow)})
	}
	return a.Repository.GetTx(ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.? = ?", bun.Ident(flow.Column()), token)
	})
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := a.now().UTC()
	record.CreatedAt = timePtr(now)
	record.UpdatedAt = timePtr(now)

	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, withCause(ErrEmailTaken, err)
		}
		return nil, Internal(err, "failed to insert user")
	}
	return created, nil
}

func (a *users) UpdateProfile(ctx context.Context, record *User, columns ...string) (*User, error) {
	return a.UpdateProfileTx(ctx, a.db, record, columns...)
}

// UpdateProfileTx writes the given columns of record. updated_at is always
// written.
func (a *users) UpdateProfileTx(ctx context.Context, tx bun.IDB, record *User, columns ...string) (*User, error) {
	if _, err := a.Repository.GetByIDTx(ctx, tx, record.ID.String()); err != nil {
		return nil, err
	}

	record.UpdatedAt = timePtr(a.now().UTC())
	columns = append(columns, "updated_at")

	return a.Repository.UpdateTx(ctx, tx, record,
		repository.UpdateByID(record.ID.String()),
		updateColumns(columns...),
	)
}

func updateColumns(columns ...string) repository.UpdateCriteria {
	return func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Column(columns...)
	}
}

func (a *users) SetFlowTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, flow TokenFlow, token string, expiresAt time.Time) error {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("? = ?", bun.Ident(flow.Column()), token).
		Set("token_expires_at = ?", expiresAt.UTC()).
		Set("updated_at = ?", a.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return Internal(err, "failed to store token")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}
	return nil
}

func (a *users) ClearFlowTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, flow TokenFlow) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("? = NULL", bun.Ident(flow.Column())).
		Set("token_expires_at = NULL").
		Set("updated_at = ?", a.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return Internal(err, "failed to clear token")
	}
	return nil
}

// ConsumeFlowTokenTx clears the flow token and applies set in one conditional
// update. It reports false when the token no longer matches, which means a
// concurrent request consumed it first.
func (a *users) ConsumeFlowTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, flow TokenFlow, token string, set map[string]any) (bool, error) {
	q := tx.NewUpdate().
		Model((*User)(nil)).
		Set("? = NULL", bun.Ident(flow.Column())).
		Set("token_expires_at = NULL").
		Set("updated_at = ?", a.now().UTC())

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q = q.Set("? = ?", bun.Ident(k), set[k])
	}

	res, err := q.
		Where("id = ?", id).
		Where("? = ?", bun.Ident(flow.Column()), token).
		Exec(ctx)
	if err != nil {
		return false, Internal(err, "failed to consume token")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, Internal(err, "failed to read affected rows")
	}
	return n == 1, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
