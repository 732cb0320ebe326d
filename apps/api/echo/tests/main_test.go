package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/services/email"
	"github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/tests"
)

var (
	db      *inmemdb.DB
	conf    *core.Config
	logger  *testutil.Logger
	app     *Server
	usrRepo user.Repository

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errInternal     = httpErr{Error: "Internal Server Error"}
)

func TestMain(m *testing.M) {
	db = inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	conf = testutil.Config()
	logger = new(testutil.Logger)

	app = newServer(serverOpts{repo: usrRepo})

	os.Exit(m.Run())
}

type serverOpts struct {
	repo     user.Repository
	opts     user.Options
	pinger   core.DBPinger
	registry prometheus.Registerer
	logger   core.Logger
}

func newServer(o serverOpts) *Server {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator, conf.Users.PasswordPolicy)

	if o.logger == nil {
		o.logger = logger
	}
	mailSvc := emailsvc.NewConsoleServiceMock(conf, o.logger)

	srv, err := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     o.logger,
		UserSvc:    user.NewService(o.repo, mailSvc, o.opts),
		Validate:   validate,
		Translator: translator,
		DB:         o.pinger,
		Registerer: o.registry,
	})
	if err != nil {
		panic(err)
	}
	return srv
}

type httpErr struct {
	Error   string            `json:"error"`
	Message []string          `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func runTest(t *testing.T, srv http.Handler, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	srv.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr, conf), conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	if objs == nil {
		objs = []interface{}{}
	}
	return marchallObj(t, objs)
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	assert.Equal(t, wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

// failingRepo fails every call, as an unreachable database would.
type failingRepo struct{ err error }

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

func (r failingRepo) fail() error {
	if r.err != nil {
		return r.err
	}
	return errConnRefused
}

func (r failingRepo) CreateUser(context.Context, user.User) (user.User, error) {
	return user.User{}, r.fail()
}

func (r failingRepo) QueryUsers(context.Context, user.QueryFilter, ...core.DBOrdering) ([]user.User, error) {
	return nil, r.fail()
}

func (r failingRepo) GetUser(context.Context, user.GetFilter) (user.User, error) {
	return user.User{}, r.fail()
}

func (r failingRepo) EmailExists(context.Context, string) (bool, error) { return false, r.fail() }

func (r failingRepo) UpdatePassword(context.Context, int, []byte) error { return r.fail() }

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }
