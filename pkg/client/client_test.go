package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskboard-server/internal/config"
	"taskboard-server/internal/logger"
	"taskboard-server/internal/repository"
	"taskboard-server/internal/server"
	"taskboard-server/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		JWT: config.JWTConfig{
			AccessSecret:      "access-secret",
			AccessExpiration:  time.Hour,
			RefreshSecret:     "refresh-secret",
			RefreshExpiration: 24 * time.Hour,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: "*",
			AllowedMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
			AllowedHeaders: "Content-Type,Authorization",
		},
	}

	log := logger.Discard()
	store := repository.NewMemoryStore()
	router := server.NewRouter(server.Deps{
		Config: cfg,
		Auth:   service.NewAuthService(store.Users, service.NewTokenService(cfg.JWT), log),
		Users:  service.NewUserService(store.Users),
		Tasks:  service.NewTaskService(store.Tasks, nil, log),
		Log:    log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func signedIn(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	c := New(srv.URL, NewSession())
	_, err := c.Register(context.Background(), "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	_, err = c.Login(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)
	return c
}

func TestClient_LoginFillsSession(t *testing.T) {
	srv := newTestAPI(t)
	ctx := context.Background()

	session := NewSession()
	c := New(srv.URL, session)

	user, err := c.Register(ctx, "alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, session.Authenticated())

	user, err = c.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, session.Authenticated())
	assert.NotEmpty(t, session.RefreshToken())

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
}

func TestClient_ErrorsCarryStatus(t *testing.T) {
	srv := newTestAPI(t)
	ctx := context.Background()
	c := New(srv.URL, nil)

	_, err := c.Me(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = c.Register(ctx, "bob", "bob@example.com", "pw1234")
	require.NoError(t, err)
	_, err = c.Register(ctx, "bob", "bob@example.com", "pw1234")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	_, err = c.Login(ctx, "bob@example.com", "wrong")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClient_RefreshRotatesSession(t *testing.T) {
	srv := newTestAPI(t)
	c := signedIn(t, srv)

	oldRefresh := c.Session().RefreshToken()
	require.NoError(t, c.Refresh(context.Background()))
	assert.NotEqual(t, oldRefresh, c.Session().RefreshToken())

	_, err := c.Me(context.Background())
	assert.NoError(t, err)
}

func TestClient_LogoutClearsSession(t *testing.T) {
	srv := newTestAPI(t)
	c := signedIn(t, srv)

	require.NoError(t, c.Logout(context.Background()))
	assert.False(t, c.Session().Authenticated())
	assert.Nil(t, c.Session().User())

	_, err := c.Me(context.Background())
	assert.Error(t, err)
}

func TestClient_TaskLifecycle(t *testing.T) {
	srv := newTestAPI(t)
	c := signedIn(t, srv)
	ctx := context.Background()

	created, err := c.CreateTask(ctx, TaskInput{Title: "Write report", DueDate: "2030-01-15"})
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, created.Status)
	assert.Equal(t, "medium", created.Priority)
	assert.Equal(t, "alice", created.Assignee.Username)

	status := StatusInProgress
	updated, err := c.UpdateTask(ctx, created.ID, TaskPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, updated.Status)
	assert.Equal(t, "Write report", updated.Title)

	tasks, err := c.ListTasks(ctx, TaskFilter{Status: StatusInProgress})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, created.ID, tasks[0].ID)

	tasks, err = c.ListTasks(ctx, TaskFilter{Status: StatusDone})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	require.NoError(t, c.DeleteTask(ctx, created.ID))

	err = c.DeleteTask(ctx, created.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestTaskPatch_Apply(t *testing.T) {
	title := "New"
	task := Task{ID: "1", Title: "Old", Status: StatusTodo, Priority: "low"}

	got := TaskPatch{Title: &title}.Apply(task)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, StatusTodo, got.Status)
	assert.Equal(t, "Old", task.Title)
}

func TestSession_UserIsCopied(t *testing.T) {
	s := NewSession()
	u := &User{ID: "1", Username: "alice"}
	s.Set(u, "a", "r")

	u.Username = "mallory"
	assert.Equal(t, "alice", s.User().Username)

	s.User().Username = "eve"
	assert.Equal(t, "alice", s.User().Username)
}
