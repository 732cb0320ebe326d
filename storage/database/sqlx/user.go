package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

const (
	userColumns = "id, email, name, password_hash, role, created_at"

	pqUniqueViolation = "23505"
	pqUndefinedTable  = "42P01"
	pqUndefinedColumn = "42703"
)

type userRow struct {
	ID           int         `db:"id"`
	Email        string      `db:"email"`
	Name         null.String `db:"name"`
	PasswordHash []byte      `db:"password_hash"`
	Role         string      `db:"role"`
	CreatedAt    time.Time   `db:"created_at"`
}

type userRepository struct {
	db sqlx.ExtContext
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db sqlx.ExtContext) user.Repository {
	return &userRepository{db: db}
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Email:        usr.Email,
		Name:         usr.Name,
		PasswordHash: usr.PasswordHash,
		Role:         usr.Role,
		CreatedAt:    usr.CreatedAt.UTC(),
	}
}

func (repo userRepository) fromRow(r userRow) user.User {
	return user.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

// trapErr maps "no rows" to user.ErrNotFound and unique violations to user.ErrEmailExists.
// A missing table or column means the schema is behind the code: the app cannot recover from it.
func (repo userRepository) trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		switch pqErr.Code {
		case pqUniqueViolation:
			return user.ErrEmailExists
		case pqUndefinedTable, pqUndefinedColumn:
			return core.NewShutdownError(fmt.Sprintf("%s: database schema out of date: %s", msg, pqErr.Message))
		}
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	r := repo.toRow(usr)
	q := `INSERT INTO users (email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := repo.db.QueryRowxContext(ctx, q, r.Email, r.Name, r.PasswordHash, r.Role, r.CreatedAt).
		Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return user.User{}, repo.trapErr(err, "inserting user")
	}
	return repo.fromRow(r), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Email != "" {
		args = append(args, filter.Email)
		conds = append(conds, fmt.Sprintf("lower(email) = lower($%d)", len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conds = append(conds, fmt.Sprintf("lower(role) = lower($%d)", len(args)))
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + orderBy(ordering)

	var rows []userRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, repo.trapErr(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, repo.fromRow(r))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		q   string
		arg interface{}
	)
	switch {
	case filter.ID != 0:
		q, arg = "SELECT "+userColumns+" FROM users WHERE id = $1", filter.ID
	case filter.Email != "":
		q, arg = "SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1) ORDER BY id ASC LIMIT 1", filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var r userRow
	if err := sqlx.GetContext(ctx, repo.db, &r, q, arg); err != nil {
		return user.User{}, repo.trapErr(err, "getting user")
	}
	return repo.fromRow(r), nil
}

func (repo userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	q := "SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))"
	if err := sqlx.GetContext(ctx, repo.db, &exists, q, email); err != nil {
		return false, repo.trapErr(err, "checking email")
	}
	return exists, nil
}

func (repo userRepository) UpdatePassword(ctx context.Context, id int, hash []byte) error {
	res, err := repo.db.ExecContext(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", hash, id)
	if err != nil {
		return repo.trapErr(err, "updating password")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating password")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

// orderBy builds the ORDER BY clause. Unknown columns are ignored and id always breaks ties.
func orderBy(ordering []core.DBOrdering) string {
	allowed := make(map[string]bool, len(user.Orderable))
	for _, col := range user.Orderable {
		allowed[col] = true
	}

	clauses := make([]string, 0, len(ordering)+1)
	var hasID bool
	for _, ord := range ordering {
		if !allowed[ord.Field] {
			continue
		}
		if ord.Field == "id" {
			hasID = true
		}
		clauses = append(clauses, ord.String())
	}
	if !hasID {
		clauses = append(clauses, "id ASC")
	}
	return strings.Join(clauses, ", ")
}
