package logsvc

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rollbar/rollbar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "TEST : ", 0), &core.Config{Env: "TEST", Build: "test"})
	logger.Enable(false)

	usr := user.User{ID: 1, Email: "ada@test.cd", Name: null.StringFrom("Ada")}
	logger.Error("creating user", errors.New("boom"), usr)
	logger.Info("started")
	logger.Flush(time.Second)

	out := buf.String()
	assert.Contains(t, out, "TEST : ERROR: creating user")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "INFO: started")
	assert.NotContains(t, out, "ada@test.cd")
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := RollbarLogger{std: log.New(&bytes.Buffer{}, "", 0)}
	err := errors.New("boom")
	extra := map[string]interface{}{"path": "/users"}

	args := logger.prepare("msg", []interface{}{err, user.User{ID: 3, Email: "ada@test.cd"}, extra, user.User{ID: 4}})
	require.Len(t, args, 4)
	assert.Equal(t, []interface{}{"msg", err, extra}, args[:3])

	ctx, ok := args[3].(context.Context)
	require.True(t, ok)
	person, ok := rollbar.PersonFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, rollbar.Person{Id: "3", Email: "ada@test.cd"}, *person)

	t.Run("anonymous", func(t *testing.T) {
		args := logger.prepare("msg", []interface{}{err})
		require.Len(t, args, 3)
		person, ok := rollbar.PersonFromContext(args[2].(context.Context))
		require.True(t, ok)
		assert.Empty(t, person.Id)
	})

	t.Run("concurrent reports keep their own person", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				args := logger.prepare("msg", []interface{}{user.User{ID: id}})
				person, _ := rollbar.PersonFromContext(args[1].(context.Context))
				assert.Equal(t, strconv.Itoa(id), person.Id)
			}(i)
		}
		wg.Wait()
	})
}
