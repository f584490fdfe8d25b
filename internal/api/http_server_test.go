package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"yoyaku/internal/config"
	"yoyaku/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTP_Health(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	c := env.client(t)

	assert.Equal(t, http.StatusOK, env.do(t, c, http.MethodGet, "/healthz", nil).status)
	assert.Equal(t, http.StatusOK, env.do(t, c, http.MethodGet, "/readyz", nil).status)

	require.NoError(t, env.db.Close())
	resp := env.do(t, c, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.status)
	assert.Equal(t, codeUnavailable, resp.body["code"])
}

func TestHTTP_RequestID(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	c := env.client(t)

	resp := env.do(t, c, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, resp.header.Get(requestIDHeader))
}

func TestHTTP_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	c := env.client(t)

	resp := env.do(t, c, http.MethodPost, "/api/v1/users", map[string]string{"name": "taro", "email": "taro@example.com", "password": "pw"})
	require.Equal(t, http.StatusCreated, resp.status)
	user := resp.body["user"].(map[string]any)
	assert.Equal(t, "taro", user["name"])
	assert.NotContains(t, user, "PasswordHash")

	resp = env.do(t, c, http.MethodPost, "/api/v1/users", map[string]string{"name": "taro", "email": "other@example.com", "password": "pw"})
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, codeNameTaken, resp.body["code"])

	resp = env.do(t, c, http.MethodPost, "/api/v1/users", map[string]string{"name": "", "email": "x@example.com", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, codeValidation, resp.body["code"])

	resp = env.do(t, c, http.MethodPost, "/api/v1/login", map[string]string{"email": "taro@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, codeInvalidCredentials, resp.body["code"])

	resp = env.do(t, c, http.MethodPost, "/api/v1/login", map[string]string{"email": "taro@example.com", "password": "pw"})
	assert.Equal(t, http.StatusOK, resp.status)

	resp = env.do(t, c, http.MethodGet, "/api/v1/me/reservations", nil)
	assert.Equal(t, http.StatusOK, resp.status)

	resp = env.do(t, c, http.MethodPost, "/api/v1/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.status)

	resp = env.do(t, c, http.MethodGet, "/api/v1/me/reservations", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
}

func TestHTTP_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	c := env.client(t)

	resp := env.do(t, c, http.MethodPost, "/api/v1/users", map[string]string{"nickname": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, codeInvalidJSON, resp.body["code"])
}

func TestHTTP_Reserve(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	taro := env.signUp(t, "taro")
	hanako := env.signUp(t, "hanako")
	path := "/api/v1/items/s1_video_camera/reservations"

	resp := env.do(t, taro, http.MethodPost, path, map[string]string{"start_date": "2024-01-10", "end_date": "2024-01-12"})
	require.Equal(t, http.StatusCreated, resp.status, string(resp.raw))
	reservation := resp.body["reservation"].(map[string]any)
	assert.Equal(t, "Camera", reservation["item_name"])
	assert.Equal(t, "reserved", reservation["status"])

	tests := []struct {
		name     string
		client   *http.Client
		path     string
		start    string
		end      string
		wantCode int
		wantErr  string
	}{
		{"overlapping range", hanako, path, "2024-01-12", "2024-01-14", http.StatusConflict, codeConflict},
		{"single day inside", hanako, path, "2024-01-11", "2024-01-11", http.StatusConflict, codeConflict},
		{"adjacent range", hanako, path, "2024-01-13", "2024-01-15", http.StatusCreated, ""},
		{"slash date", hanako, path, "2024/01/20", "2024-01-21", http.StatusBadRequest, codeValidation},
		{"end before start", hanako, path, "2024-02-05", "2024-02-01", http.StatusBadRequest, codeValidation},
		{"unknown item", hanako, "/api/v1/items/s99_piano/reservations", "2024-03-01", "2024-03-02", http.StatusNotFound, codeItemNotFound},
		{"anonymous", env.client(t), path, "2024-04-01", "2024-04-02", http.StatusUnauthorized, codeUnauthenticated},
		{"other item same days", hanako, "/api/v1/items/s2_speaker/reservations", "2024-01-10", "2024-01-12", http.StatusCreated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.client, http.MethodPost, tt.path, map[string]string{"start_date": tt.start, "end_date": tt.end})
			assert.Equal(t, tt.wantCode, resp.status, string(resp.raw))
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, resp.body["code"])
			}
		})
	}

	resp = env.do(t, hanako, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["reservations"], 2)
	assert.Equal(t, []any{
		map[string]any{"start_date": "2024-01-10", "end_date": "2024-01-15"},
	}, resp.body["occupied"])

	resp = env.do(t, hanako, http.MethodGet, "/api/v1/me/reservations", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["reservations"], 2)
}

func TestHTTP_Items(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	resp := env.do(t, env.client(t), http.MethodGet, "/api/v1/items", nil)
	require.Equal(t, http.StatusOK, resp.status)
	items := resp.body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "s1_video_camera", items[0].(map[string]any)["slug"])
}

func TestHTTP_Messages(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	taro := env.signUp(t, "taro")

	resp := env.do(t, env.client(t), http.MethodPost, "/api/v1/messages", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = env.do(t, taro, http.MethodPost, "/api/v1/messages", map[string]string{"content": ""})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	for i := 1; i <= 2; i++ {
		resp = env.do(t, taro, http.MethodPost, "/api/v1/messages", map[string]string{"content": fmt.Sprintf("post %d", i)})
		require.Equal(t, http.StatusCreated, resp.status)
	}

	resp = env.do(t, env.client(t), http.MethodGet, "/api/v1/messages", nil)
	require.Equal(t, http.StatusOK, resp.status)
	messages := resp.body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "post 2", messages[0].(map[string]any)["content"])
}

func TestHTTP_AdminNotices(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	taro := env.signUp(t, "taro")

	resp := env.do(t, taro, http.MethodPost, "/api/v1/admin/notices", map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusForbidden, resp.status)

	admin := env.client(t)
	resp = env.do(t, admin, http.MethodPost, "/api/v1/users", map[string]string{"name": "admin", "email": "admin@example.com", "password": "adminpw"})
	require.Equal(t, http.StatusCreated, resp.status)
	resp = env.do(t, admin, http.MethodPost, "/api/v1/admin/login", map[string]string{"password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	resp = env.do(t, admin, http.MethodPost, "/api/v1/admin/login", map[string]string{"password": "adminpw"})
	require.Equal(t, http.StatusOK, resp.status)

	// no mailer configured: the notice is stored and nothing is attempted
	resp = env.do(t, admin, http.MethodPost, "/api/v1/admin/notices", map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, resp.status, string(resp.raw))
	assert.Equal(t, "mail_disabled", resp.body["outcome"])
	result := resp.body["result"].(map[string]any)
	assert.EqualValues(t, 2, result["recipients"])
	assert.Equal(t, false, result["delivered"])

	resp = env.do(t, admin, http.MethodGet, "/api/v1/admin/notices", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.body["notices"], 1)
}

func TestHTTP_Unregister(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	taro := env.signUp(t, "taro")
	path := "/api/v1/items/s1_video_camera/reservations"

	resp := env.do(t, taro, http.MethodPost, path, map[string]string{"start_date": "2024-01-10", "end_date": "2024-01-12"})
	require.Equal(t, http.StatusCreated, resp.status)

	resp = env.do(t, taro, http.MethodDelete, "/api/v1/users/me", nil)
	assert.Equal(t, http.StatusNoContent, resp.status)

	resp = env.do(t, taro, http.MethodGet, "/api/v1/me/reservations", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = env.do(t, taro, http.MethodGet, path, nil)
	assert.Empty(t, resp.body["reservations"])
}

func TestHTTP_Export(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	taro := env.signUp(t, "taro")
	resp := env.do(t, taro, http.MethodPost, "/api/v1/items/s1_video_camera/reservations", map[string]string{"start_date": "2024-01-10", "end_date": "2024-01-12"})
	require.Equal(t, http.StatusCreated, resp.status)

	resp = env.do(t, taro, http.MethodGet, "/api/v1/admin/reservations/export", nil)
	assert.Equal(t, http.StatusForbidden, resp.status)

	admin := env.signUp(t, "admin")
	resp = env.do(t, admin, http.MethodGet, "/api/v1/admin/reservations/export?start=2024-01-01&end=2024-01-31", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.header.Get("Content-Type"))
	assert.Equal(t, []byte("PK"), resp.raw[:2])
	assert.Equal(t, `attachment; filename="reservations_2024-01-01_to_2024-01-31.xlsx"`, resp.header.Get("Content-Disposition"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := admin.Get(env.ts.URL + "/api/v1/admin/reservations/export?start=2024-01-01&end=2024-01-31")
			if !assert.NoError(t, err) {
				return
			}
			defer res.Body.Close()
			raw, err := io.ReadAll(res.Body)
			assert.NoError(t, err)
			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, res.ContentLength, int64(len(raw)))
			assert.True(t, bytes.HasPrefix(raw, []byte("PK")))
		}()
	}
	wg.Wait()

	resp = env.do(t, admin, http.MethodGet, "/api/v1/admin/reservations/export?start=2024-01-01&end=2026-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, codeValidation, resp.body["code"])

	resp = env.do(t, admin, http.MethodGet, "/api/v1/admin/reservations/export?start=2024/01/01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.status)
	resp = env.do(t, admin, http.MethodGet, "/api/v1/admin/reservations/export?start=2024-02-01&end=2024-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.status)
}

func TestHTTP_RateLimit(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}})
	c := env.client(t)

	assert.Equal(t, http.StatusOK, env.do(t, c, http.MethodGet, "/healthz", nil).status)
	assert.Equal(t, http.StatusOK, env.do(t, c, http.MethodGet, "/healthz", nil).status)
	resp := env.do(t, c, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.status)
	assert.Equal(t, codeRateLimited, resp.body["code"])
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.NewValidationError("start_date", "required"), http.StatusBadRequest, codeValidation},
		{&domain.ConflictError{ItemName: "Camera"}, http.StatusConflict, codeConflict},
		{domain.ErrUnauthenticated, http.StatusUnauthorized, codeUnauthenticated},
		{domain.ErrForbidden, http.StatusForbidden, codeForbidden},
		{fmt.Errorf("wrap: %w", domain.ErrItemNotFound), http.StatusNotFound, codeItemNotFound},
		{domain.ErrTooManyAttempts, http.StatusTooManyRequests, codeTooManyAttempts},
		{&domain.PersistenceError{Op: "create", Err: errors.New("disk full")}, http.StatusInternalServerError, codeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			m := mapError(tt.err)
			assert.Equal(t, tt.wantStatus, m.status)
			assert.Equal(t, tt.wantCode, m.code)
		})
	}

	assert.Equal(t, "internal error", mapError(&domain.PersistenceError{Op: "x", Err: errors.New("secret detail")}).message)
}
