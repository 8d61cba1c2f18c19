package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/camfleet/internal/health"
	"github.com/smazurov/camfleet/internal/streams"
)

type fakeSessions struct {
	statuses map[string]streams.SessionStatus
	results  map[string]streams.Result
	calls    []string
}

func (f *fakeSessions) command(verb, id string) streams.Result {
	f.calls = append(f.calls, verb+":"+id)
	if r, ok := f.results[verb+":"+id]; ok {
		return r
	}
	return streams.Result{SessionID: id, OK: true, State: streams.StateStarting}
}

func (f *fakeSessions) StartCamera(id string) streams.Result { return f.command("start", id) }
func (f *fakeSessions) Stop(id string) streams.Result { return f.command("stop", id) }
func (f *fakeSessions) Restart(id string) streams.Result { return f.command("restart", id) }

func (f *fakeSessions) ActiveSessions() []streams.SessionStatus {
	out := make([]streams.SessionStatus, 0, len(f.statuses))
	for _, st := range f.statuses {
		out = append(out, st)
	}
	return out
}

func (f *fakeSessions) Status(id string) (streams.SessionStatus, bool) {
	st, ok := f.statuses[id]
	return st, ok
}

func (f *fakeSessions) Counts() (int, int) { return 1, 0 }

type fakeHealth struct {
	overall string
	checks  int
}

func (f *fakeHealth) RunCheck(context.Context) health.Report {
	f.checks++
	return health.Report{Overall: f.overall}
}

func (f *fakeHealth) Status() health.Report {
	return health.Report{Overall: f.overall, Snapshots: []health.Snapshot{{Key: "camera:cam1", Status: health.StatusHealthy}}}
}

func (f *fakeHealth) Overall() string { return f.overall }

func newTestServer(t *testing.T, mutate func(*Options)) (*Server, *fakeSessions, *fakeHealth) {
	t.Helper()
	sessions := &fakeSessions{
		statuses: map[string]streams.SessionStatus{
			"cam1": {SessionID: "cam1", State: streams.StateActive},
		},
		results: map[string]streams.Result{},
	}
	hm := &fakeHealth{overall: health.OverallHealthy}
	opts := Options{Sessions: sessions, Health: hm}
	if mutate != nil {
		mutate(&opts)
	}
	return NewServer(opts), sessions, hm
}

func do(s *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestListAndGetSessions(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list struct {
		Sessions []streams.SessionStatus `json:"sessions"`
		Count    int                     `json:"count"`
		Active   int                     `json:"active"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, 1, list.Active)
	assert.Equal(t, "cam1", list.Sessions[0].SessionID)

	rec = do(s, http.MethodGet, "/api/sessions/cam1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/api/sessions/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionCommands(t *testing.T) {
	s, sessions, _ := newTestServer(t, nil)
	sessions.results["stop:idle"] = streams.Result{SessionID: "idle", OK: true, State: streams.StateInactive, Noop: true}

	rec := do(s, http.MethodPost, "/api/sessions/cam2/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(s, http.MethodPost, "/api/sessions/idle/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		OK    bool   `json:"ok"`
		Noop  bool   `json:"noop"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.True(t, body.Noop)
	assert.Equal(t, "inactive", body.State)

	rec = do(s, http.MethodPost, "/api/sessions/cam1/restart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"start:cam2", "stop:idle", "restart:cam1"}, sessions.calls)
}

func TestSessionCommandErrors(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{streams.ErrCodeConfigInvalid, http.StatusBadRequest},
		{streams.ErrCodeCameraNotFound, http.StatusNotFound},
		{streams.ErrCodeAlreadyActive, http.StatusConflict},
		{streams.ErrCodeSpawnFailure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			s, sessions, _ := newTestServer(t, nil)
			sessions.results["start:cam1"] = streams.Result{
				SessionID: "cam1",
				State:     streams.StateError,
				Err:       streams.NewStreamError(tt.code, "boom", nil),
			}

			rec := do(s, http.MethodPost, "/api/sessions/cam1/start", nil)

			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}

func TestHealthz(t *testing.T) {
	s, _, hm := newTestServer(t, func(o *Options) {
		o.AuthUsername = "ops"
		o.AuthPassword = "secret"
	})

	rec := do(s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	hm.overall = health.OverallWarning
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz", nil).Code)

	hm.overall = health.OverallCritical
	rec = do(s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"critical"`)
}

func TestHealthReportAndCheck(t *testing.T) {
	s, _, hm := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "camera:cam1")

	rec = do(s, http.MethodPost, "/api/health/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, hm.checks)
}

func TestBasicAuth(t *testing.T) {
	s, _, _ := newTestServer(t, func(o *Options) {
		o.AuthUsername = "ops"
		o.AuthPassword = "secret"
	})
	creds := func(user, pass string) http.Header {
		token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		return http.Header{"Authorization": {"Basic " + token}}
	}

	rec := do(s, http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, authRealm, rec.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/sessions", creds("ops", "wrong")).Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/sessions",
		http.Header{"Authorization": {"Bearer abc"}}).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/sessions", creds("ops", "secret")).Code)

	query := base64.StdEncoding.EncodeToString([]byte("ops:secret"))
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/sessions?auth="+query, nil).Code)

	// Operations without a security requirement stay open.
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/version", nil).Code)
}

func TestCORS(t *testing.T) {
	s, _, _ := newTestServer(t, func(o *Options) { o.AllowOrigin = "https://ops.example" })

	rec := do(s, http.MethodOptions, "/api/sessions", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(s, http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetLogLevel(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/logging/streams", strings.NewReader(`{"level":"debug"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPut, "/api/logging/streams", strings.NewReader(`{"level":"loud"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHLSServing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cam1.m3u8"), []byte("#EXTM3U\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cam1_00001.ts"), []byte("ts"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.toml"), []byte("x=1"), 0o644))

	s, _, _ := newTestServer(t, func(o *Options) { o.HLSDir = dir })

	rec := do(s, http.MethodGet, "/hls/cam1.m3u8", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "#EXTM3U\n", rec.Body.String())

	rec = do(s, http.MethodGet, "/hls/cam1_00001.ts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp2t", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/hls/state.toml", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/hls/missing.m3u8", nil).Code)
}

func TestOptionalHandlers(t *testing.T) {
	called := false
	s, _, _ := newTestServer(t, func(o *Options) {
		o.PrometheusHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})
	})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/metrics", nil).Code)
	assert.True(t, called)
	assert.NotEqual(t, http.StatusOK, do(s, http.MethodGet, "/ws", nil).Code)
}
