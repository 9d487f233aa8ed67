package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desvo/klab-feed/internal/session"
)

type fakeSessions struct {
	sessions map[string]*session.Session
	touched  []string
}

func (f *fakeSessions) Get(ctx context.Context, sid string) (*session.Session, error) {
	return f.sessions[sid], nil
}

func (f *fakeSessions) Touch(ctx context.Context, sid string) error {
	f.touched = append(f.touched, sid)
	return nil
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur, ok := CurrentFrom(r.Context())
		require.True(t, ok)
		w.Write([]byte(cur.Session.Username))
	})
}

func TestRequirePageRedirectsAnonymous(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*session.Session{}}
	h := RequirePage(sessions)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestRequirePageRedirectsExpiredSession(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*session.Session{}}
	h := RequirePage(sessions)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "stale"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestRequirePageInjectsSessionAndTouches(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*session.Session{
		"sid-1": {Username: "alice"},
	}}
	h := RequirePage(sessions)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sid-1"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
	assert.Equal(t, []string{"sid-1"}, sessions.touched, "each request slides the idle window")
}

func TestRequireJSONAnswers401(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*session.Session{}}
	h := RequireJSON(sessions)(okHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/posts/x/like", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":false,"error":"not authenticated"}`, w.Body.String())
}
