package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eargollo/archiver/internal/api"
	internaldb "github.com/eargollo/archiver/internal/db"
	"github.com/eargollo/archiver/internal/digest"
	"github.com/eargollo/archiver/internal/ingest"
	"github.com/eargollo/archiver/internal/scheduler"
	"github.com/eargollo/archiver/internal/store"
)

type testEnv struct {
	srv   *httptest.Server
	store *store.Store
	mgr   *ingest.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, func(st *store.Store) ingest.ProfileStore { return st })
}

// newTestEnvWith lets a test put a wrapper between the manager and the store.
func newTestEnvWith(t *testing.T, wrap func(*store.Store) ingest.ProfileStore) *testEnv {
	t.Helper()
	db, err := internaldb.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, internaldb.RunMigrations(db))
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	mgr := ingest.NewManager(wrap(st), ingest.PolicySkip)
	srv := httptest.NewServer(api.Router(st, mgr, scheduler.New(), api.Options{Walkers: 2, Version: "test"}))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: st, mgr: mgr}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type pollBody struct {
	Batch    *ingest.Batch `json:"batch"`
	Progress struct {
		State     string `json:"state"`
		Completed int    `json:"completed"`
		Total     int    `json:"total"`
	} `json:"progress"`
	Result *struct {
		Inserted int              `json:"inserted"`
		Status   string           `json:"status"`
		Failures []ingest.Failure `json:"failures"`
	} `json:"result"`
}

func TestProfilesLifecycle(t *testing.T) {
	e := newTestEnv(t)

	var created store.Profile
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/profiles", map[string]string{"name": "Books"}, &created))
	assert.Equal(t, "Books", created.Name)

	var list handlersList[store.Profile]
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/profiles", nil, &list))
	assert.Equal(t, 1, list.Total)

	var got store.Profile
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, fmt.Sprintf("/api/profiles/%d", created.ID), nil, &got))
	assert.Equal(t, created.ID, got.ID)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/profiles/999", nil, nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/profiles/abc", nil, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, e.do(t, http.MethodPost, "/api/profiles", map[string]string{"name": ""}, nil))
}

type handlersList[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// TestIngestAndPoll starts a batch over HTTP and polls until completion, the
// way a UI panel would.
func TestIngestAndPoll(t *testing.T) {
	e := newTestEnv(t)

	var p store.Profile
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/profiles", map[string]string{"name": "Books"}, &p))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book1.txt"), []byte("abc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book2.txt"), []byte("xyz"), 0o644))
	missing := filepath.Join(dir, "gone.txt")

	path := fmt.Sprintf("/api/profiles/%d/ingest", p.ID)
	var batch ingest.Batch
	require.Equal(t, http.StatusAccepted, e.do(t, http.MethodPost, path,
		map[string]interface{}{"paths": []string{dir, missing}, "expand": true}, &batch))
	assert.Equal(t, 3, batch.Total)

	var poll pollBody
	require.Eventually(t, func() bool {
		poll = pollBody{}
		e.do(t, http.MethodGet, "/api/ingest", nil, &poll)
		return poll.Progress.State == "completed"
	}, 10*time.Second, 5*time.Millisecond)
	require.NotNil(t, poll.Result, "result is published with the final progress")
	assert.Equal(t, 3, poll.Progress.Completed)
	assert.Equal(t, 3, poll.Progress.Total)
	assert.Equal(t, 2, poll.Result.Inserted)
	assert.Equal(t, "completed", poll.Result.Status)
	require.Len(t, poll.Result.Failures, 1)
	assert.Equal(t, missing, poll.Result.Failures[0].Path)

	var files handlersList[store.FileRecord]
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, fmt.Sprintf("/api/profiles/%d/files", p.ID), nil, &files))
	require.Equal(t, 2, files.Total)
	assert.Equal(t, digest.Bytes([]byte("abc")), files.Items[0].Digest)
	assert.Equal(t, digest.Bytes([]byte("xyz")), files.Items[1].Digest)
}

func TestIngestRejections(t *testing.T) {
	e := newTestEnv(t)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/profiles/77/ingest",
		map[string]interface{}{"paths": []string{"/x"}}, nil))

	var p store.Profile
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/profiles", map[string]string{"name": "Empty"}, &p))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, fmt.Sprintf("/api/profiles/%d/ingest", p.ID),
		map[string]interface{}{"paths": []string{}}, nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, fmt.Sprintf("/api/profiles/%d/ingest", p.ID),
		map[string]interface{}{"bogus": true}, nil))
}

// gatedStore holds every InsertFile until gate is closed.
type gatedStore struct {
	*store.Store
	gate chan struct{}
}

func (g *gatedStore) InsertFile(ctx context.Context, profileID int64, fileName, digest string) (store.FileRecord, error) {
	<-g.gate
	return g.Store.InsertFile(ctx, profileID, fileName, digest)
}

func TestIngestConflictWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	e := newTestEnvWith(t, func(st *store.Store) ingest.ProfileStore {
		return &gatedStore{Store: st, gate: gate}
	})

	var p store.Profile
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/profiles", map[string]string{"name": "Books"}, &p))
	file := filepath.Join(t.TempDir(), "book1.txt")
	require.NoError(t, os.WriteFile(file, []byte("abc"), 0o644))

	path := fmt.Sprintf("/api/profiles/%d/ingest", p.ID)
	body := map[string]interface{}{"paths": []string{file}}
	require.Equal(t, http.StatusAccepted, e.do(t, http.MethodPost, path, body, nil))

	var conflict struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodPost, path, body, &conflict))
	assert.Equal(t, "INGEST_ALREADY_RUNNING", conflict.Error.Code)

	var poll pollBody
	e.do(t, http.MethodGet, "/api/ingest", nil, &poll)
	require.NotNil(t, poll.Batch)
	assert.Equal(t, "api", poll.Batch.TriggeredBy)

	close(gate)
	require.Eventually(t, func() bool {
		poll = pollBody{}
		e.do(t, http.MethodGet, "/api/ingest", nil, &poll)
		return poll.Progress.State == "completed"
	}, 10*time.Second, 5*time.Millisecond)

	// Once the first batch has completed a new one is accepted.
	require.Equal(t, http.StatusAccepted, e.do(t, http.MethodPost, path, body, nil))
	require.Eventually(t, func() bool {
		poll = pollBody{}
		e.do(t, http.MethodGet, "/api/ingest", nil, &poll)
		return poll.Progress.State == "completed"
	}, 10*time.Second, 5*time.Millisecond)
	require.NotNil(t, poll.Result)
	assert.Equal(t, 1, poll.Result.Inserted)
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t)

	var body struct {
		Version string `json:"version"`
		Ingest  struct {
			Progress struct {
				State string `json:"state"`
			} `json:"progress"`
		} `json:"ingest"`
		Jobs []scheduler.JobInfo `json:"jobs"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/status", nil, &body))
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, "idle", body.Ingest.Progress.State)
	assert.NotNil(t, body.Jobs)
}
