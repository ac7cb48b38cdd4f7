package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/chatvault/internal/api"
	"github.com/kiranshivaraju/chatvault/internal/cache"
	"github.com/kiranshivaraju/chatvault/internal/queue"
	"github.com/kiranshivaraju/chatvault/internal/store"
	"github.com/kiranshivaraju/chatvault/pkg/models"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type testStore struct {
	pingErr error
	chat    *models.Chat
}

func (s *testStore) Ping(_ context.Context) error                        { return s.pingErr }
func (s *testStore) CreateChat(_ context.Context, _ *models.Chat) error { return nil }
func (s *testStore) GetChat(_ context.Context, id uuid.UUID) (*models.Chat, error) {
	if s.chat == nil || s.chat.ID != id {
		return nil, store.ErrNotFound
	}
	return s.chat, nil
}
func (s *testStore) UpdateChatName(_ context.Context, _ uuid.UUID, _ string) error { return nil }
func (s *testStore) UpdateChatStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.ChatUpdateOption) error {
	return nil
}
func (s *testStore) FinalizeChatSummary(_ context.Context, _ uuid.UUID, _ store.ChatSummary) error {
	return nil
}
func (s *testStore) CreateMessage(_ context.Context, _ *models.Message) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (s *testStore) ListMessages(_ context.Context, _ uuid.UUID, _ store.Page) ([]*models.Message, error) {
	return nil, nil
}
func (s *testStore) DeleteChatMessages(_ context.Context, _ uuid.UUID) (int64, error) { return 0, nil }
func (s *testStore) CreateMediaFile(_ context.Context, _ *models.MediaFile) error   { return nil }
func (s *testStore) ListMediaFiles(_ context.Context, _ uuid.UUID) ([]*models.MediaFile, error) {
	return nil, nil
}

var _ store.Store = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr  error
	progress map[uuid.UUID]cache.Progress
}

func (c *testCache) Ping(_ context.Context) error { return c.pingErr }
func (c *testCache) SetProgress(_ context.Context, id uuid.UUID, p cache.Progress, _ time.Duration) error {
	c.progress[id] = p
	return nil
}
func (c *testCache) GetProgress(_ context.Context, id uuid.UUID) (cache.Progress, bool, error) {
	p, ok := c.progress[id]
	return p, ok, nil
}
func (c *testCache) ClearProgress(_ context.Context, id uuid.UUID) error {
	delete(c.progress, id)
	return nil
}

var _ cache.Cache = (*testCache)(nil)

// ─── mock queue ──────────────────────────────────────────────────────────────

type testQueue struct{}

func (testQueue) Stats(_ context.Context) (queue.Stats, error) { return queue.Stats{Waiting: 1}, nil }
func (testQueue) DeadLetters(_ context.Context, _ int64) ([]queue.Envelope, error) {
	return nil, nil
}

// ─── wiring tests ────────────────────────────────────────────────────────────

func serve(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestDependencies_AllRoutesWired(t *testing.T) {
	chat := &models.Chat{ID: uuid.New(), Status: models.ChatStatusProcessing}
	c := &testCache{progress: map[uuid.UUID]cache.Progress{chat.ID: {Percent: 40, Stage: "parsing"}}}
	router := api.NewRouter(dependencies(&testStore{chat: chat}, c, testQueue{}))

	for _, path := range []string{
		"/api/v1/health",
		"/api/v1/chats/" + chat.ID.String(),
		"/api/v1/chats/" + chat.ID.String() + "/progress",
		"/api/v1/chats/" + chat.ID.String() + "/messages",
		"/api/v1/queue",
	} {
		t.Run(path, func(t *testing.T) {
			code, _ := serve(t, router, path)
			assert.Equal(t, http.StatusOK, code)
		})
	}
}

func TestDependencies_ProgressFromCache(t *testing.T) {
	chat := &models.Chat{ID: uuid.New(), Status: models.ChatStatusProcessing}
	c := &testCache{progress: map[uuid.UUID]cache.Progress{chat.ID: {Percent: 40, Stage: "parsing"}}}
	router := api.NewRouter(dependencies(&testStore{chat: chat}, c, testQueue{}))

	_, body := serve(t, router, "/api/v1/chats/"+chat.ID.String()+"/progress")

	data := body["data"].(map[string]any)
	assert.Equal(t, float64(40), data["progress"])
	assert.Equal(t, "parsing", data["stage"])
}

func TestDependencies_HealthDegraded(t *testing.T) {
	router := api.NewRouter(dependencies(
		&testStore{pingErr: errors.New("db down")},
		&testCache{progress: map[uuid.UUID]cache.Progress{}},
		testQueue{},
	))

	code, body := serve(t, router, "/api/v1/health")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "DEGRADED", body["error"].(map[string]any)["code"])
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"DATABASE_URL", "REDIS_URL"} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("LOG_FILE", "")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
