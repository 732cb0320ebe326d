package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

// query returns copies of the stored users, by ascending ID.
func (repo *userRepository) query(filter user.QueryFilter) []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		if filter.Match(*u) {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pkCount++
	usr.ID = repo.db.pkCount
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
	}
	usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := repo.query(filter)
	if len(ordering) > 0 {
		sort.SliceStable(users, func(i, j int) bool { return less(users[i], users[j], ordering) })
	}
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch {
	case filter.ID != 0:
		if usr, ok := repo.db.table[filter.ID]; ok {
			return *usr, nil
		}
	case filter.Email != "":
		if users := repo.query(user.QueryFilter{Email: filter.Email}); len(users) > 0 {
			return users[0], nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) EmailExists(_ context.Context, email string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.query(user.QueryFilter{Email: email})) > 0, nil
}

func (repo *userRepository) UpdatePassword(_ context.Context, id int, hash []byte) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.table[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.PasswordHash = append([]byte(nil), hash...)
	return nil
}

// less compares a and b column by column. ID breaks ties.
func less(a, b user.User, ordering []core.DBOrdering) bool {
	for _, ord := range ordering {
		var cmp int
		switch ord.Field {
		case "id":
			cmp = compareInts(a.ID, b.ID)
		case "email":
			cmp = strings.Compare(a.Email, b.Email)
		case "name":
			cmp = compareNullStrings(a.Name, b.Name)
		case "role":
			cmp = strings.Compare(a.Role, b.Role)
		case "created_at":
			cmp = compareInts(int(a.CreatedAt.UnixNano()), int(b.CreatedAt.UnixNano()))
		}
		if cmp == 0 {
			continue
		}
		if ord.Ascending {
			return cmp < 0
		}
		return cmp > 0
	}
	return a.ID < b.ID
}

// compareNullStrings sorts NULL above every value, as Postgres does:
// NULLs come last in ascending order and first in descending order.
func compareNullStrings(a, b null.String) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return 1
	case !b.Valid:
		return -1
	}
	return strings.Compare(a.String, b.String)
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
