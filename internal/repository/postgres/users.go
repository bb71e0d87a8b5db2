package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/identity-verification/internal/core/domain"
	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/repository"
)

const (
	usersTable = "iam.users"

	uniqueViolation = "23505"
)

var userColumns = []string{
	"id",
	"organization_id",
	"phone",
	"email",
	"full_name",
	"password_hash",
	"role",
	"status",
	"is_active",
	"phone_verified",
	"email_verified",
	"login_attempts",
	"locked_until",
	"last_login",
	"created_at",
	"updated_at",
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder}
}

// Create inserts a new user row. A duplicate phone or email within the organization yields ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	var emailValue any
	if strings.TrimSpace(user.Email) != "" {
		emailValue = user.Email
	}

	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.OrganizationID,
			user.Phone,
			emailValue,
			user.FullName,
			user.PasswordHash,
			string(user.Role),
			string(user.Status),
			user.IsActive,
			user.PhoneVerified,
			user.EmailVerified,
			user.LoginAttempts,
			user.LockedUntil,
			user.LastLogin,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return storeError("insert user", err)
	}

	return nil
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanOne(ctx, "select user", stmt, args)
}

// FindByIdentifier looks a user up by phone or email, optionally scoped to one organization.
func (r *UserRepository) FindByIdentifier(ctx context.Context, kind domain.IdentifierKind, identifier string, orgID *int64) (*domain.User, error) {
	column := "phone"
	if kind == domain.IdentifierEmail {
		column = "email"
		identifier = strings.ToLower(identifier)
	}

	where := squirrel.And{squirrel.Eq{column: identifier}}
	if orgID != nil {
		where = append(where, squirrel.Eq{"organization_id": *orgID})
	}

	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(where).
		OrderBy("created_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by identifier sql: %w", err)
	}

	return r.scanOne(ctx, "select user by identifier", stmt, args)
}

// Update applies the non-nil fields of patch.
func (r *UserRepository) Update(ctx context.Context, id string, patch domain.UserPatch) error {
	query := r.builder.Update(usersTable)
	changed := false

	if patch.FullName != nil {
		query = query.Set("full_name", *patch.FullName)
		changed = true
	}
	if patch.Email != nil {
		var emailValue any
		if *patch.Email != "" {
			emailValue = strings.ToLower(*patch.Email)
		}
		query = query.Set("email", emailValue)
		changed = true
	}
	if patch.Role != nil {
		query = query.Set("role", string(*patch.Role))
		changed = true
	}
	if patch.Status != nil {
		query = query.Set("status", string(*patch.Status))
		changed = true
	}
	if patch.IsActive != nil {
		query = query.Set("is_active", *patch.IsActive)
		changed = true
	}
	if patch.PhoneVerified != nil {
		query = query.Set("phone_verified", *patch.PhoneVerified)
		changed = true
	}
	if patch.EmailVerified != nil {
		query = query.Set("email_verified", *patch.EmailVerified)
		changed = true
	}

	if !changed {
		return nil
	}

	stmt, args, err := query.
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	return r.execOne(ctx, "update user", stmt, args)
}

// UpdatePassword stores a new hash and clears any lockout.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("password_hash", passwordHash).
		Set("login_attempts", 0).
		Set("locked_until", nil).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	return r.execOne(ctx, "update password", stmt, args)
}

// IncrementLoginAttempts bumps login_attempts in a single statement. Both SET
// expressions read the pre-update row, so concurrent failures serialize on the row lock.
func (r *UserRepository) IncrementLoginAttempts(ctx context.Context, id string, threshold int, lockUntil time.Time) (*domain.User, error) {
	stmt, args, err := r.builder.Update(usersTable).
		Set("login_attempts", squirrel.Expr("login_attempts + 1")).
		Set("locked_until", squirrel.Expr("CASE WHEN login_attempts + 1 >= ? THEN ? ELSE locked_until END", threshold, lockUntil)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build increment login attempts sql: %w", err)
	}

	return r.scanOne(ctx, "increment login attempts", stmt, args)
}

// ResetLoginAttempts clears the counter and lock and records the login time.
func (r *UserRepository) ResetLoginAttempts(ctx context.Context, id string, loginAt time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("login_attempts", 0).
		Set("locked_until", nil).
		Set("last_login", loginAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset login attempts sql: %w", err)
	}

	return r.execOne(ctx, "reset login attempts", stmt, args)
}

func (r *UserRepository) execOne(ctx context.Context, op, stmt string, args []any) error {
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return storeError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) scanOne(ctx context.Context, op, stmt string, args []any) (*domain.User, error) {
	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		user   domain.User
		email  *string
		role   string
		status string
	)

	if err := row.Scan(
		&user.ID,
		&user.OrganizationID,
		&user.Phone,
		&email,
		&user.FullName,
		&user.PasswordHash,
		&role,
		&status,
		&user.IsActive,
		&user.PhoneVerified,
		&user.EmailVerified,
		&user.LoginAttempts,
		&user.LockedUntil,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, storeError(op, err)
	}

	if email != nil {
		user.Email = *email
	}
	user.Role = domain.UserRole(role)
	user.Status = domain.UserStatus(status)

	return &user, nil
}

// storeError separates constraint violations and server-side failures from
// transport failures, which surface as ErrUnavailable.
func storeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", repository.ErrUnavailable, op, err)
}

var _ port.UserRepository = (*UserRepository)(nil)
