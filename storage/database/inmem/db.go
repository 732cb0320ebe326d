// Package inmemdb is a memory backed storage, used by tests.
package inmemdb

import (
	"sync"

	"github.com/trezcool/academia/core/user"
)

type (
	DB struct {
		user *userTable
	}

	userTable struct {
		sync.RWMutex
		pkCount int
		table   map[int]*user.User
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[int]*user.User)},
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.user.Lock()
	defer db.user.Unlock()
	db.user.pkCount = 0
	db.user.table = make(map[int]*user.User)
}
