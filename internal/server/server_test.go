package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipsync/internal/account"
	"clipsync/internal/clip"
	"clipsync/internal/runner"
	"clipsync/internal/storage"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewJSONStore(filepath.Join(dir, "accounts"))
	require.NoError(t, err)
	lib := clip.NewLibrary(filepath.Join(dir, "output"), nil)
	require.NoError(t, os.MkdirAll(lib.Dir, 0755))

	acct := account.New("acct")
	acct.Channels = []string{"@a", "@b"}
	acct.Schedule = []string{"12:00"}
	acct.History = []account.HistoryEntry{{ContentID: "zzzzzzzzzzz", Timestamp: time.Date(2024, 5, 9, 12, 0, 0, 0, time.Local)}}
	acct.Session = &account.Session{Cookies: []account.Cookie{{Name: "sessionid", Value: "secret"}}}
	require.NoError(t, store.Create(context.Background(), acct))

	ref := clip.Ref{AccountID: "acct", Part: 0, ContentID: "aaaaaaaaaaa"}
	require.NoError(t, os.WriteFile(lib.Path(ref), []byte("clip"), 0644))

	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.Local)
	r := &runner.Runner{
		Env:     runner.Env{Now: func() time.Time { return now }, Horizon: 48 * time.Hour},
		Store:   store,
		Library: lib,
	}
	srv := httptest.NewServer(NewRouter(NewHandler(store, lib, r, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, envelope) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	status, env := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", env.Message)
}

func TestListAccounts(t *testing.T) {
	srv := newTestServer(t)
	status, env := get(t, srv.URL+"/accounts")
	require.Equal(t, http.StatusOK, status)

	var got []accountSummary
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "acct", got[0].ID)
	assert.Equal(t, 2, got[0].Channels)
	assert.Equal(t, 1, got[0].Posted)
	assert.Equal(t, 1, got[0].RenderedClips)
	require.NotNil(t, got[0].LastPosted)
}

func TestGetAccountHidesSession(t *testing.T) {
	srv := newTestServer(t)
	status, env := get(t, srv.URL+"/accounts/acct")
	require.Equal(t, http.StatusOK, status)

	assert.NotContains(t, string(env.Data), "secret")
	var got accountView
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "acct", got.ID)
	assert.True(t, got.HasSession)
	assert.Equal(t, []string{"12:00"}, got.Schedule)
}

func TestGetAccountNotFound(t *testing.T) {
	srv := newTestServer(t)
	status, env := get(t, srv.URL+"/accounts/nobody")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestGetSlots(t *testing.T) {
	srv := newTestServer(t)
	status, env := get(t, srv.URL+"/accounts/acct/slots")
	require.Equal(t, http.StatusOK, status)

	var got struct {
		Slots        []slotView `json:"slots"`
		NeedsContent int        `json:"needs_content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got.Slots, 2)
	require.NotNil(t, got.Slots[0].Clip)
	assert.Equal(t, "aaaaaaaaaaa", got.Slots[0].Clip.ContentID)
	assert.Equal(t, 1, got.Slots[0].Clip.Label)
	assert.Nil(t, got.Slots[1].Clip)
	assert.Equal(t, 1, got.NeedsContent)
}

func TestGetClips(t *testing.T) {
	srv := newTestServer(t)
	status, env := get(t, srv.URL+"/accounts/acct/clips")
	require.Equal(t, http.StatusOK, status)

	var got []clipView
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, []clipView{{ContentID: "aaaaaaaaaaa", Part: 0, Label: 1, File: "acct,0,aaaaaaaaaaa.mp4"}}, got)

	status, _ = get(t, srv.URL+"/accounts/nobody/clips")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-Id"))
}
