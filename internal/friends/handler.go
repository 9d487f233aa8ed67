package friends

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/desvo/klab-feed/internal/middleware"
	"github.com/desvo/klab-feed/internal/models"
	"github.com/desvo/klab-feed/internal/session"
	"github.com/desvo/klab-feed/internal/store"
	"github.com/desvo/klab-feed/internal/web"
)

// UserStore defines the interface for friend-graph persistence. The
// relation is one-directional as stored: adding A->B never creates B->A,
// and there is no removal operation.
type UserStore interface {
	Get(ctx context.Context, username string) (*models.User, error)
	GetMany(ctx context.Context, usernames []string) ([]models.User, error)
	Search(ctx context.Context, query string, exclude []string) ([]models.User, error)
	AddFriend(ctx context.Context, username, friend string) error
}

type Sessions interface {
	SetFlash(ctx context.Context, sid, field, msg string) error
	TakeFlash(ctx context.Context, sid, field string) (string, error)
}

type Handler struct {
	users    UserStore
	sessions Sessions
	render   *web.Renderer
	log      *zap.Logger
}

func NewHandler(users UserStore, sessions Sessions, render *web.Renderer, log *zap.Logger) *Handler {
	return &Handler{users: users, sessions: sessions, render: render, log: log}
}

type listData struct {
	Username string
	Friends  []models.User
	Success  string
	Error    string
}

// ListPage renders the caller's friends with display names and avatars.
func (h *Handler) ListPage(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())

	data := listData{Username: cur.Session.Username}
	data.Success, _ = h.sessions.TakeFlash(r.Context(), cur.SID, session.FlashSuccess)
	data.Error, _ = h.sessions.TakeFlash(r.Context(), cur.SID, session.FlashError)

	self, err := h.users.Get(r.Context(), cur.Session.Username)
	if err != nil {
		h.log.Error("friends list: self lookup failed", zap.Error(err))
		data.Error = "Could not load your friends. Please try again."
		h.render.HTML(w, http.StatusOK, "friends.tmpl", data)
		return
	}

	friends, err := h.users.GetMany(r.Context(), self.Friends)
	if err != nil {
		h.log.Error("friends list: resolve failed", zap.Error(err))
		data.Error = "Could not load your friends. Please try again."
	}
	data.Friends = friends
	h.render.HTML(w, http.StatusOK, "friends.tmpl", data)
}

type searchData struct {
	Username string
	Query    string
	Results  []models.User
}

// SearchPage matches usernames case-insensitively by substring, excluding
// the searcher and anyone already in their friend set.
func (h *Handler) SearchPage(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())

	query := strings.TrimSpace(r.FormValue("q"))
	data := searchData{Username: cur.Session.Username, Query: query}

	if query != "" {
		self, err := h.users.Get(r.Context(), cur.Session.Username)
		if err != nil {
			h.log.Error("friend search: self lookup failed", zap.Error(err))
			h.render.HTML(w, http.StatusOK, "search.tmpl", data)
			return
		}
		exclude := append([]string{self.Username}, self.Friends...)
		results, err := h.users.Search(r.Context(), query, exclude)
		if err != nil {
			h.log.Error("friend search failed", zap.Error(err))
		}
		data.Results = results
	}

	h.render.HTML(w, http.StatusOK, "search.tmpl", data)
}

// Add appends the target to the caller's friend set. The store-level
// $addToSet makes a repeat add a no-op.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())

	target := strings.TrimSpace(r.FormValue("username"))
	if target == "" || target == cur.Session.Username {
		http.Redirect(w, r, "/friends/search", http.StatusSeeOther)
		return
	}

	if _, err := h.users.Get(r.Context(), target); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error("add friend: target lookup failed", zap.Error(err))
		}
		h.sessions.SetFlash(r.Context(), cur.SID, session.FlashError, "Could not add that user.")
		http.Redirect(w, r, "/friends/list", http.StatusSeeOther)
		return
	}

	if err := h.users.AddFriend(r.Context(), cur.Session.Username, target); err != nil {
		h.log.Error("add friend failed", zap.Error(err))
		h.sessions.SetFlash(r.Context(), cur.SID, session.FlashError, "Could not add that user.")
	} else {
		h.sessions.SetFlash(r.Context(), cur.SID, session.FlashSuccess, target+" added to your friends.")
	}
	http.Redirect(w, r, "/friends/list", http.StatusSeeOther)
}
