package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"yoyaku/internal/config"
	"yoyaku/internal/database"
	"yoyaku/internal/export"
	"yoyaku/internal/models"
	"yoyaku/internal/repository"
	"yoyaku/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testItems = []models.Item{
	{Slug: "s1_video_camera", Name: "Camera", SortOrder: 1},
	{Slug: "s2_speaker", Name: "Speaker", SortOrder: 2},
}

type testEnv struct {
	db  *database.DB
	svc Services
	cfg config.APIConfig
	ts  *httptest.Server
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newServices(t *testing.T, items []models.Item) (*database.DB, Services) {
	t.Helper()
	logger := testLogger()
	db, err := database.NewDB(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	guard := repository.NewMemoryGuard()
	return db, Services{
		Users: service.NewUserService(db, guard, nil, service.UserServiceOptions{
			LoginAttempts: 3,
			LoginWindow:   time.Minute,
			BcryptCost:    bcrypt.MinCost,
		}, logger),
		Reservations: service.NewReservationService(db, guard, nil, nil, time.Second, logger),
		Items:        service.NewItemService(items, logger),
		Messages:     service.NewMessageService(db, logger),
		Notices:      service.NewNoticeService(db, nil, nil, nil, "", logger),
		Exporter:     export.NewExporter(logger),
	}
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()
	db, svc := newServices(t, testItems)
	sessions := NewSessionManager(config.SessionConfig{Secret: "test-secret", Name: "yoyaku_session", MaxAge: 3600, HTTPOnly: true}, svc.Users)
	srv := NewHTTPServer(cfg, svc, sessions, db.PingContext, testLogger())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{db: db, svc: svc, cfg: cfg, ts: ts}
}

func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

type apiResponse struct {
	status int
	body   map[string]any
	raw    []byte
	header http.Header
}

func (e *testEnv) do(t *testing.T, c *http.Client, method, path string, payload any) apiResponse {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := apiResponse{status: resp.StatusCode, raw: raw, header: resp.Header}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

// signUp registers and logs in a user, returning a client holding its session.
func (e *testEnv) signUp(t *testing.T, name string) *http.Client {
	t.Helper()
	c := e.client(t)
	resp := e.do(t, c, http.MethodPost, "/api/v1/users", map[string]string{
		"name": name, "email": name + "@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusCreated, resp.status, string(resp.raw))

	resp = e.do(t, c, http.MethodPost, "/api/v1/login", map[string]string{
		"email": name + "@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusOK, resp.status, string(resp.raw))
	return c
}
