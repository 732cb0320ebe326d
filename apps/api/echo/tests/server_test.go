package tests

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/academia/storage/database/inmem"
)

func TestServer_home(t *testing.T) {
	rec := runTest(t, app, httpTest{path: "/"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Academia API!", rec.Body.String())
}

func TestServer_notFound(t *testing.T) {
	tt := httpTest{path: "/lol", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "Not Found"})}
	checkCodeAndData(t, tt, runTest(t, app, tt))
}

func TestServer_health(t *testing.T) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())

	tests := []struct {
		httpTest
		pinger pinger
	}{
		{httpTest: httpTest{name: "ok", path: "/health", wantData: []byte(`{"status": "ok"}`)}},
		{
			httpTest: httpTest{
				name: "database down", path: "/health",
				wantCode: http.StatusServiceUnavailable, wantData: marchallObj(t, httpErr{Error: "database unavailable"}),
			},
			pinger: pinger{err: errors.New("connection refused")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(serverOpts{repo: repo, pinger: tt.pinger})
			checkCodeAndData(t, tt.httpTest, runTest(t, srv, tt.httpTest))
		})
	}
}

func TestServer_cors(t *testing.T) {
	tests := []struct {
		name      string
		origin    string
		wantAllow string
	}{
		{name: "frontend origin", origin: "http://localhost:5173", wantAllow: "http://localhost:5173"},
		{name: "foreign origin", origin: "http://evil.test", wantAllow: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodOptions, "/users")
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			app.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestServer_requestID(t *testing.T) {
	rec := runTest(t, app, httpTest{path: "/"})
	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)
}
