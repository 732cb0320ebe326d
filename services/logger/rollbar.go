package logsvc

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

// RollbarLogger writes to a std *log.Logger and reports to Rollbar when enabled.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

// New returns a RollbarLogger writing to stdout with the given prefix (eg. "API : ").
// Rollbar reporting is only enabled outside debug mode.
func New(conf *core.Config, prefix string, flags int) *RollbarLogger {
	logger := NewRollbarLogger(log.New(os.Stdout, prefix, flags), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	host, _ := os.Hostname()
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Flush waits for the pending Rollbar reports to be sent.
func (l RollbarLogger) Flush(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		rollbar.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		l.std.Println("rollbar flush timed out")
	}
}

// expected fmt: msg | error, map[string]interface{}, user.User
//
// The logged in User travels with the item in a context, so concurrent reports never share a person.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	person := new(rollbar.Person) // no Id: reported without a person
	newArgs := make([]interface{}, 0, len(args)+2)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		if usr, ok := arg.(user.User); ok {
			if person.Id == "" && usr.ID != 0 { // only set one User
				person = &rollbar.Person{Id: strconv.Itoa(usr.ID), Username: usr.Name.String, Email: usr.Email}
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	return append(newArgs, rollbar.NewPersonContext(context.Background(), person))
}

func (l RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("%s: %s", level, msg)
	for _, arg := range args {
		if _, ok := arg.(user.User); ok {
			continue
		}
		l.std.Println(fmt.Sprintf("%+v", arg))
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print("DEBUG", msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print("INFO", msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print("WARN", msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print("ERROR", msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print("FATAL", msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
