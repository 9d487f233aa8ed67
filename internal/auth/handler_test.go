package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/desvo/klab-feed/internal/models"
	"github.com/desvo/klab-feed/internal/session"
	"github.com/desvo/klab-feed/internal/store"
	"github.com/desvo/klab-feed/internal/web"
)

// -------- test fakes --------

type fakeUserStore struct {
	users  map[string]*models.User
	getErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*models.User{}}
}

func (f *fakeUserStore) Create(ctx context.Context, u *models.User) error {
	if _, ok := f.users[u.Username]; ok {
		return store.ErrUsernameTaken
	}
	if u.Redirect == "" {
		u.Redirect = "/posts"
	}
	cp := *u
	f.users[u.Username] = &cp
	return nil
}

func (f *fakeUserStore) Get(ctx context.Context, username string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type fakeSessions struct {
	sessions  map[string]*session.Session
	flashes   map[string]string
	next      int
	deleteErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*session.Session{}, flashes: map[string]string{}}
}

func (f *fakeSessions) Create(ctx context.Context, sess *session.Session) (string, error) {
	f.next++
	sid := "sid-" + strconv.Itoa(f.next)
	cp := *sess
	f.sessions[sid] = &cp
	return sid, nil
}

func (f *fakeSessions) Get(ctx context.Context, sid string) (*session.Session, error) {
	return f.sessions[sid], nil
}

func (f *fakeSessions) Delete(ctx context.Context, sid string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.sessions, sid)
	return nil
}

func (f *fakeSessions) SetFlash(ctx context.Context, sid, field, msg string) error {
	f.flashes[sid+":"+field] = msg
	return nil
}

func (f *fakeSessions) TakeFlash(ctx context.Context, sid, field string) (string, error) {
	key := sid + ":" + field
	msg := f.flashes[key]
	delete(f.flashes, key)
	return msg, nil
}

// -------- helpers --------

func newTestHandler(t *testing.T, users *fakeUserStore, sessions *fakeSessions) *Handler {
	t.Helper()
	render, err := web.NewRenderer()
	require.NoError(t, err)
	return NewHandler(users, sessions, render, 10*time.Minute, zap.NewNop())
}

func postForm(handler http.HandlerFunc, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func registerForm(username, name, password string) url.Values {
	return url.Values{"username": {username}, "name": {name}, "password": {password}}
}

func loginForm(username, password string) url.Values {
	return url.Values{"username": {username}, "password": {password}}
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge >= 0 {
			return c
		}
	}
	return nil
}

func takenFlash(f *fakeSessions, w *httptest.ResponseRecorder, field string) string {
	c := sessionCookie(w)
	if c == nil {
		return ""
	}
	msg, _ := f.TakeFlash(context.Background(), c.Value, field)
	return msg
}

// -------- tests --------

func TestRegisterAndLogin(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessions()
	h := newTestHandler(t, users, sessions)

	w := postForm(h.Register, "/register", registerForm("alice", "Alice", "pw1"))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/posts", w.Header().Get("Location"))
	require.NotNil(t, sessionCookie(w), "registration should auto-login")

	created := users.users["alice"]
	require.NotNil(t, created)
	assert.Equal(t, "Alice", created.Name)
	assert.Empty(t, created.Friends)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.Password), []byte("pw1")))
	assert.NotEqual(t, "pw1", created.Password, "password must never be stored in clear text")

	w = postForm(h.Login, "/login", loginForm("alice", "pw1"))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/posts", w.Header().Get("Location"), "default landing target is the feed")
	require.NotNil(t, sessionCookie(w))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessions()
	h := newTestHandler(t, users, sessions)

	postForm(h.Register, "/register", registerForm("alice", "Alice", "pw1"))
	originalHash := users.users["alice"].Password

	w := postForm(h.Register, "/register", registerForm("alice", "Someone Else", "other-pw"))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/register", w.Header().Get("Location"))
	assert.Equal(t, msgUsernameTaken, takenFlash(sessions, w, session.FlashError))
	assert.Equal(t, originalHash, users.users["alice"].Password,
		"a rejected registration must not alter the existing account")
}

func TestRegisterMissingFields(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessions()
	h := newTestHandler(t, users, sessions)

	w := postForm(h.Register, "/register", registerForm("   ", "Alice", "pw1"))

	assert.Equal(t, "/register", w.Header().Get("Location"))
	assert.Equal(t, msgFieldsRequired, takenFlash(sessions, w, session.FlashError))
	assert.Empty(t, users.users)
}

func TestLoginErrorsAreIndistinguishable(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessions()
	h := newTestHandler(t, users, sessions)
	postForm(h.Register, "/register", registerForm("alice", "Alice", "pw1"))

	wrongPw := postForm(h.Login, "/login", loginForm("alice", "not-it"))
	unknown := postForm(h.Login, "/login", loginForm("nobody", "pw1"))

	for _, w := range []*httptest.ResponseRecorder{wrongPw, unknown} {
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/", w.Header().Get("Location"))
	}
	assert.Equal(t, msgInvalidCredentials, takenFlash(sessions, wrongPw, session.FlashLoginError))
	assert.Equal(t, msgInvalidCredentials, takenFlash(sessions, unknown, session.FlashLoginError))
}

func TestLoginBackendDown(t *testing.T) {
	users := newFakeUserStore()
	users.getErr = errors.New("connection refused")
	sessions := newFakeSessions()
	h := newTestHandler(t, users, sessions)

	w := postForm(h.Login, "/login", loginForm("alice", "pw1"))

	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, msgBackendDown, takenFlash(sessions, w, session.FlashLoginError))
}

func TestLoginHonorsRedirectField(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessions()
	h := newTestHandler(t, users, sessions)

	hash, err := bcrypt.GenerateFromPassword([]byte("123"), bcrypt.MinCost)
	require.NoError(t, err)
	users.users["desvo"] = &models.User{Username: "desvo", Password: string(hash), Redirect: "/"}

	w := postForm(h.Login, "/login", loginForm("desvo", "123"))

	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestIndexConsumesLoginErrorOnce(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessions()
	h := newTestHandler(t, users, sessions)

	failed := postForm(h.Login, "/login", loginForm("ghost", "x"))
	cookie := sessionCookie(failed)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.Index(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgInvalidCredentials)

	// Second render: the flash is gone.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	h.Index(w, req)

	assert.NotContains(t, w.Body.String(), msgInvalidCredentials)
}

func TestLogoutDestroysSession(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessions()
	h := newTestHandler(t, users, sessions)

	registered := postForm(h.Register, "/register", registerForm("alice", "Alice", "pw1"))
	cookie := sessionCookie(registered)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.Logout(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Empty(t, sessions.sessions)
}

func TestLogoutFailureIsAnErrorNotARedirect(t *testing.T) {
	users := newFakeUserStore()
	sessions := newFakeSessions()
	sessions.deleteErr = errors.New("redis down")
	h := newTestHandler(t, users, sessions)

	registered := postForm(h.Register, "/register", registerForm("alice", "Alice", "pw1"))
	cookie := sessionCookie(registered)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.Logout(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Error logging out")
}
