package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/factory-agent/internal/factory"
	"github.com/p-blackswan/factory-agent/internal/lifecycle"
	"github.com/p-blackswan/factory-agent/internal/metrics"
)

type fakeSession struct {
	snap     lifecycle.Snapshot
	finished chan struct{}
}

func newFakeSession(done bool) *fakeSession {
	s := &fakeSession{
		snap:     lifecycle.Snapshot{State: lifecycle.StateCloning},
		finished: make(chan struct{}),
	}
	if done {
		s.snap.State = lifecycle.StateProjectsFailedPartially
		s.snap.Finished = true
		close(s.finished)
	}
	return s
}

func (f *fakeSession) Snapshot() lifecycle.Snapshot { return f.snap }
func (f *fakeSession) Finished() <-chan struct{}    { return f.finished }

type fakeDefs struct{ def *factory.Definition }

func (f fakeDefs) Current() *factory.Definition { return f.def }

func get(t *testing.T, srv *Server, path string) (*http.Response, []byte) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestServer_Healthz(t *testing.T) {
	srv := New(Config{SessionID: "s-1"}, newFakeSession(false), nil, nil, zerolog.Nop())

	resp, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "s-1", resp.Header.Get("X-Session-ID"))
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServer_ReadyzFollowsSession(t *testing.T) {
	resp, body := get(t, New(Config{}, newFakeSession(false), nil, nil, zerolog.Nop()), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "not_ready")
	assert.NotEmpty(t, resp.Header.Get("X-Session-ID"))

	resp, body = get(t, New(Config{}, newFakeSession(true), nil, nil, zerolog.Nop()), "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "projects_failed_partially")
}

func TestServer_Metrics(t *testing.T) {
	m := metrics.New()
	m.RecordFetch(metrics.ResultOK)
	srv := New(Config{}, newFakeSession(true), nil, m, zerolog.Nop())

	resp, body := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "factory_fetches_total")
}

func TestServer_MetricsWithoutCollector(t *testing.T) {
	resp, body := get(t, New(Config{}, newFakeSession(true), nil, nil, zerolog.Nop()), "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "No metrics collector")
}

func TestServer_Status(t *testing.T) {
	s := newFakeSession(true)
	s.snap.ProjectsRoot = "/ws"
	s.snap.Projects = []lifecycle.ProjectOutcome{
		{Path: "/a", Location: "https://git.example.com/a.git", Destination: "/ws/a", Settled: true, Err: errors.New("repository not found")},
		{Path: "/b", Location: "https://git.example.com/b.git", Destination: "/ws/b", Branch: "dev", Settled: true, Cloned: true, CheckoutErr: errors.New("no such branch")},
	}
	s.snap.Phases = map[factory.Phase]lifecycle.PhaseStatus{
		factory.PhaseProjectsLoaded: {Fired: true, Done: true, Actions: 1},
	}
	srv := New(Config{}, s, nil, nil, zerolog.Nop())

	resp, body := get(t, srv, "/api/v1/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view statusView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, lifecycle.StateProjectsFailedPartially, view.State)
	assert.True(t, view.Finished)
	assert.Equal(t, "/ws", view.ProjectsRoot)
	require.Len(t, view.Projects, 2)
	assert.Equal(t, "repository not found", view.Projects[0].Error)
	assert.Equal(t, "no such branch", view.Projects[1].CheckoutError)
	assert.True(t, view.Phases[factory.PhaseProjectsLoaded].Done)
}

func TestServer_Factory(t *testing.T) {
	def := &factory.Definition{ID: "f1", Workspace: &factory.Workspace{Name: "demo"}}
	srv := New(Config{}, newFakeSession(true), fakeDefs{def: def}, nil, zerolog.Nop())

	resp, body := get(t, srv, "/api/v1/factory")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got factory.Definition
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "f1", got.ID)
	assert.Equal(t, "demo", got.Workspace.Name)
}

func TestServer_FactoryMissing(t *testing.T) {
	for name, defs := range map[string]DefinitionSource{
		"no source":  nil,
		"not loaded": fakeDefs{},
	} {
		t.Run(name, func(t *testing.T) {
			resp, body := get(t, New(Config{}, newFakeSession(true), defs, nil, zerolog.Nop()), "/api/v1/factory")
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)

			var p Problem
			require.NoError(t, json.Unmarshal(body, &p))
			assert.Equal(t, "Not Found", p.Title)
			assert.Equal(t, "/api/v1/factory", p.Instance)
		})
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	resp, _ := get(t, New(Config{}, newFakeSession(true), nil, nil, zerolog.Nop()), "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
