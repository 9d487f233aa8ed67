package friends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/desvo/klab-feed/internal/middleware"
	"github.com/desvo/klab-feed/internal/models"
	"github.com/desvo/klab-feed/internal/session"
	"github.com/desvo/klab-feed/internal/store"
	"github.com/desvo/klab-feed/internal/web"
)

// -------- test fakes --------

type fakeUserStore struct {
	users       map[string]*models.User
	lastExclude []string
}

func newFakeUserStore(usernames ...string) *fakeUserStore {
	f := &fakeUserStore{users: map[string]*models.User{}}
	for _, u := range usernames {
		f.users[u] = &models.User{Username: u, Name: strings.ToUpper(u[:1]) + u[1:], Friends: []string{}}
	}
	return f
}

func (f *fakeUserStore) Get(ctx context.Context, username string) (*models.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) GetMany(ctx context.Context, usernames []string) ([]models.User, error) {
	var out []models.User
	for _, name := range usernames {
		if u, ok := f.users[name]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUserStore) Search(ctx context.Context, query string, exclude []string) ([]models.User, error) {
	f.lastExclude = exclude
	var out []models.User
	for _, u := range f.users {
		if !strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			continue
		}
		skip := false
		for _, e := range exclude {
			if u.Username == e {
				skip = true
			}
		}
		if !skip {
			out = append(out, *u)
		}
	}
	return out, nil
}

// AddFriend mirrors the store's $addToSet: appending twice keeps one entry.
func (f *fakeUserStore) AddFriend(ctx context.Context, username, friend string) error {
	u, ok := f.users[username]
	if !ok {
		return store.ErrNotFound
	}
	for _, existing := range u.Friends {
		if existing == friend {
			return nil
		}
	}
	u.Friends = append(u.Friends, friend)
	return nil
}

type fakeSessions struct {
	sessions map[string]*session.Session
	flashes  map[string]string
}

func (f *fakeSessions) Get(ctx context.Context, sid string) (*session.Session, error) {
	return f.sessions[sid], nil
}
func (f *fakeSessions) Touch(ctx context.Context, sid string) error { return nil }
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

func newTestRouter(t *testing.T, users *fakeUserStore) (*chi.Mux, *fakeSessions) {
	t.Helper()
	render, err := web.NewRenderer()
	require.NoError(t, err)
	sessions := &fakeSessions{
		sessions: map[string]*session.Session{"sid-alice": {Username: "alice"}},
		flashes:  map[string]string{},
	}
	h := NewHandler(users, sessions, render, zap.NewNop())

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequirePage(sessions))
		r.Get("/friends/list", h.ListPage)
		r.Get("/friends/search", h.SearchPage)
		r.Post("/friends/add", h.Add)
	})
	return r, sessions
}

func doAs(r http.Handler, method, path string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sid-alice"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// -------- tests --------

func TestAddFriendIsIdempotent(t *testing.T) {
	users := newFakeUserStore("alice", "bob")
	r, _ := newTestRouter(t, users)

	first := doAs(r, http.MethodPost, "/friends/add", url.Values{"username": {"bob"}})
	second := doAs(r, http.MethodPost, "/friends/add", url.Values{"username": {"bob"}})

	assert.Equal(t, http.StatusSeeOther, first.Code)
	assert.Equal(t, http.StatusSeeOther, second.Code)
	assert.Equal(t, []string{"bob"}, users.users["alice"].Friends,
		"adding twice must leave exactly one entry")
}

func TestAddFriendIsOneDirectional(t *testing.T) {
	users := newFakeUserStore("alice", "bob")
	r, _ := newTestRouter(t, users)

	doAs(r, http.MethodPost, "/friends/add", url.Values{"username": {"bob"}})

	assert.Empty(t, users.users["bob"].Friends, "adding A->B must not create B->A")
}

func TestAddUnknownFriendFlashesError(t *testing.T) {
	users := newFakeUserStore("alice")
	r, sessions := newTestRouter(t, users)

	w := doAs(r, http.MethodPost, "/friends/add", url.Values{"username": {"ghost"}})

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/friends/list", w.Header().Get("Location"))
	assert.NotEmpty(t, sessions.flashes["sid-alice:"+session.FlashError])
	assert.Empty(t, users.users["alice"].Friends)
}

func TestAddSelfIsIgnored(t *testing.T) {
	users := newFakeUserStore("alice")
	r, _ := newTestRouter(t, users)

	doAs(r, http.MethodPost, "/friends/add", url.Values{"username": {"alice"}})

	assert.Empty(t, users.users["alice"].Friends)
}

func TestSearchExcludesSelfAndFriends(t *testing.T) {
	users := newFakeUserStore("alice", "alina", "bob")
	users.users["alice"].Friends = []string{"bob"}
	r, _ := newTestRouter(t, users)

	w := doAs(r, http.MethodGet, "/friends/search?q=al", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users.lastExclude)
	assert.Contains(t, w.Body.String(), "alina")
}

func TestListShowsFriends(t *testing.T) {
	users := newFakeUserStore("alice", "bob", "carol")
	users.users["alice"].Friends = []string{"bob", "carol"}
	r, _ := newTestRouter(t, users)

	w := doAs(r, http.MethodGet, "/friends/list", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "@bob")
	assert.Contains(t, w.Body.String(), "@carol")
}
