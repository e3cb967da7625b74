package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/pipeline"
	"github.com/sells-group/company-intel/internal/session"
	"github.com/sells-group/company-intel/internal/stream"
)

// fakeRunner emits a canned event sequence instead of running a real
// pipeline.
type fakeRunner struct {
	fail bool
}

func (f *fakeRunner) Run(_ context.Context, sessionID string, emit stream.Emitter) (*pipeline.Result, error) {
	guard := stream.NewGuard(emit)
	guard.Start(2, "starting")
	stream.Progress(guard, 1, 2, "working")
	if f.fail {
		err := eris.New("boom")
		stream.Error(guard, err, false, nil)
		return nil, err
	}
	stream.Complete(guard, map[string]any{"session_id": sessionID})
	return &pipeline.Result{SessionID: sessionID}, nil
}

func newTestServer(t *testing.T, runner Runner) (*httptest.Server, session.Store) {
	t.Helper()

	store, err := session.NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(New(store, runner).Router())
	t.Cleanup(srv.Close)
	return srv, store
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CreateSession(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	resp, err := http.Post(srv.URL+"/sessions", "application/json",
		strings.NewReader(`{"name":"acme run","domain":"acme.com"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sess model.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "acme.com", sess.Domain)
	assert.Equal(t, model.SessionPending, sess.Status)
}

func TestServer_CreateSession_MissingDomain(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	resp, err := http.Post(srv.URL+"/sessions", "application/json",
		strings.NewReader(`{"name":"no domain"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_GetSession(t *testing.T) {
	srv, store := newTestServer(t, &fakeRunner{})

	created, err := store.Create(context.Background(), "run", "acme.com")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/sessions/" + created.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	missing, err := http.Get(srv.URL + "/sessions/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServer_RunSession_StreamsNDJSON(t *testing.T) {
	srv, store := newTestServer(t, &fakeRunner{})

	created, err := store.Create(context.Background(), "run", "acme.com")
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/sessions/"+created.ID+"/run", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []stream.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev stream.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev), scanner.Text())
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, events)
	assert.Equal(t, stream.EventProgress, events[0].Type)
	assert.Equal(t, stream.EventComplete, events[len(events)-1].Type)
}

func TestServer_RunSession_ErrorTerminal(t *testing.T) {
	srv, store := newTestServer(t, &fakeRunner{fail: true})

	created, err := store.Create(context.Background(), "run", "acme.com")
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/sessions/"+created.ID+"/run", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var last stream.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &last))
	}
	assert.Equal(t, stream.EventError, last.Type)
	assert.Contains(t, last.Message, "boom")
}

func TestServer_RunSession_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	resp, err := http.Post(srv.URL+"/sessions/nope/run", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
