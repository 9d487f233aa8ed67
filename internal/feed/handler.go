package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/desvo/klab-feed/internal/middleware"
	"github.com/desvo/klab-feed/internal/models"
	"github.com/desvo/klab-feed/internal/session"
	"github.com/desvo/klab-feed/internal/store"
	"github.com/desvo/klab-feed/internal/web"
)

// Categories offered by the composer. They are presentation data only
// and are never persisted with the post.
var Categories = []string{"General", "Announcements", "Tips & Tricks", "Feedback", "Releases"}

// Store defines the interface for feed persistence.
type Store interface {
	Insert(ctx context.Context, p *models.Post) error
	List(ctx context.Context) ([]models.Post, error)
	AddComment(ctx context.Context, uuid string, c models.Comment) error
	ToggleLike(ctx context.Context, uuid, username string) (likes int, liked bool, err error)
}

// AvatarResolver resolves current avatar paths for the authors appearing
// in a feed page (a read-time join; avatars are not stored on posts).
type AvatarResolver interface {
	AvatarPaths(ctx context.Context, usernames []string) (map[string]string, error)
}

// Sessions is the flash-message slice of the session store.
type Sessions interface {
	TakeFlash(ctx context.Context, sid, field string) (string, error)
}

type Handler struct {
	feed     Store
	users    AvatarResolver
	sessions Sessions
	render   *web.Renderer
	log      *zap.Logger
}

func NewHandler(feed Store, users AvatarResolver, sessions Sessions, render *web.Renderer, log *zap.Logger) *Handler {
	return &Handler{feed: feed, users: users, sessions: sessions, render: render, log: log}
}

type postsData struct {
	Username   string
	Posts      []models.Post
	Avatars    map[string]string
	Categories []string
	Success    string
	Error      string
}

// PostsPage renders the feed, newest first, with each author's current
// avatar resolved at read time. Privacy is not filtered here; every post
// comes back regardless of its privacy value.
func (h *Handler) PostsPage(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())

	data := postsData{
		Username:   cur.Session.Username,
		Categories: Categories,
		Avatars:    map[string]string{},
	}
	data.Success, _ = h.sessions.TakeFlash(r.Context(), cur.SID, session.FlashSuccess)
	data.Error, _ = h.sessions.TakeFlash(r.Context(), cur.SID, session.FlashError)

	posts, err := h.feed.List(r.Context())
	if err != nil {
		h.log.Error("feed list failed", zap.Error(err))
		data.Error = "Could not load the feed. Please try again."
		h.render.HTML(w, http.StatusOK, "posts.tmpl", data)
		return
	}
	data.Posts = posts

	if avatars, err := h.users.AvatarPaths(r.Context(), distinctAuthors(posts)); err == nil {
		data.Avatars = avatars
	} else {
		h.log.Warn("avatar join failed", zap.Error(err))
	}

	h.render.HTML(w, http.StatusOK, "posts.tmpl", data)
}

// CreatePost handles the feed composer. Whitespace-only content is
// dropped without an error; the redirect happens either way.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	h.create(r)
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

type writeData struct {
	Username   string
	Categories []string
}

// WritePage renders the dedicated composer.
func (h *Handler) WritePage(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())
	h.render.HTML(w, http.StatusOK, "write.tmpl", writeData{
		Username:   cur.Session.Username,
		Categories: Categories,
	})
}

// WriteSubmit is the alternate post entry point; same semantics as the
// feed composer.
func (h *Handler) WriteSubmit(w http.ResponseWriter, r *http.Request) {
	h.create(r)
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

func (h *Handler) create(r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())

	content := strings.TrimSpace(r.FormValue("content"))
	if content == "" {
		return
	}

	privacy := r.FormValue("privacy")
	if !models.ValidPrivacy(privacy) {
		privacy = models.PrivacyPublic
	}

	post := &models.Post{
		UUID:    uuid.NewString(),
		Content: content,
		Author:  cur.Session.Username,
		Privacy: privacy,
	}
	if err := h.feed.Insert(r.Context(), post); err != nil {
		h.log.Error("post insert failed", zap.Error(err))
	}
}

// AddComment appends a comment to a post. An unknown post id and empty
// content are both silent no-ops; the caller is redirected regardless.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())
	postID := chi.URLParam(r, "uuid")

	content := strings.TrimSpace(r.FormValue("content"))
	if content != "" {
		err := h.feed.AddComment(r.Context(), postID, models.Comment{
			Content:   content,
			Author:    cur.Session.Username,
			CreatedAt: time.Now(),
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			h.log.Error("add comment failed", zap.Error(err), zap.String("post", postID))
		}
	}
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

type likeResponse struct {
	Success    bool   `json:"success"`
	LikesCount int    `json:"likesCount"`
	Liked      bool   `json:"liked"`
	Error      string `json:"error,omitempty"`
}

// ToggleLike flips the caller's like on a post and returns the new state
// as JSON. This is the one endpoint the client calls without a reload.
func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())
	postID := chi.URLParam(r, "uuid")

	likes, liked, err := h.feed.ToggleLike(r.Context(), postID, cur.Session.Username)
	if err != nil {
		status := http.StatusInternalServerError
		msg := "could not update like"
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
			msg = "post not found"
		} else {
			h.log.Error("toggle like failed", zap.Error(err), zap.String("post", postID))
		}
		writeJSON(w, status, likeResponse{Success: false, Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, likeResponse{Success: true, LikesCount: likes, Liked: liked})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func distinctAuthors(posts []models.Post) []string {
	seen := make(map[string]struct{}, len(posts))
	var authors []string
	for _, p := range posts {
		if _, ok := seen[p.Author]; !ok {
			seen[p.Author] = struct{}{}
			authors = append(authors, p.Author)
		}
	}
	return authors
}
