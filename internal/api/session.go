package api

import (
	"context"
	"errors"
	"net/http"

	"yoyaku/internal/config"
	"yoyaku/internal/domain"
	"yoyaku/internal/models"

	"github.com/gorilla/sessions"
)

const sessionUserKey = "user_id"

type userCtxKey struct{}

// userLookup resolves the id stored in the session cookie.
type userLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// SessionManager keeps the logged-in user id in a signed cookie.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	users userLookup
}

func NewSessionManager(cfg config.SessionConfig, users userLookup) *SessionManager {
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		Secure:   cfg.Secure,
		HttpOnly: cfg.HTTPOnly,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store, name: cfg.Name, users: users}
}

func (m *SessionManager) Login(w http.ResponseWriter, r *http.Request, user *models.User) error {
	session, _ := m.store.Get(r, m.name)
	session.Values[sessionUserKey] = user.ID
	return session.Save(r, w)
}

func (m *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := m.store.Get(r, m.name)
	delete(session.Values, sessionUserKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// CurrentUser returns domain.ErrUnauthenticated for missing, invalid or
// stale sessions.
func (m *SessionManager) CurrentUser(r *http.Request) (*models.User, error) {
	session, err := m.store.Get(r, m.name)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}
	id, ok := session.Values[sessionUserKey].(int64)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	user, err := m.users.GetUserByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

func userFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userCtxKey{}).(*models.User)
	return user
}
