package profile

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/desvo/klab-feed/internal/middleware"
	"github.com/desvo/klab-feed/internal/models"
	"github.com/desvo/klab-feed/internal/session"
	"github.com/desvo/klab-feed/internal/store"
	"github.com/desvo/klab-feed/internal/web"
)

// MaxAvatarSize is the upload ceiling for avatar images.
const MaxAvatarSize = 2 << 20 // 2 MiB

// allowedAvatarTypes maps acceptable sniffed content types to their
// canonical form. Extensions are checked separately against the same set.
var allowedAvatarTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

var allowedAvatarExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// UserStore defines the interface for profile persistence.
type UserStore interface {
	Get(ctx context.Context, username string) (*models.User, error)
	SetAvatarPath(ctx context.Context, username string, path *string) error
}

// FeedStore lists the caller's own posts on the profile page.
type FeedStore interface {
	ListByAuthor(ctx context.Context, author string) ([]models.Post, error)
}

// AvatarStore holds the uploaded image bytes.
type AvatarStore interface {
	Put(ctx context.Context, username string, data []byte, contentType string) error
	Get(ctx context.Context, username string) ([]byte, string, error)
	Remove(ctx context.Context, username string) error
}

type Sessions interface {
	Save(ctx context.Context, sid string, sess *session.Session) error
	SetFlash(ctx context.Context, sid, field, msg string) error
	TakeFlash(ctx context.Context, sid, field string) (string, error)
}

type Handler struct {
	users    UserStore
	feed     FeedStore
	avatars  AvatarStore
	sessions Sessions
	render   *web.Renderer
	log      *zap.Logger
}

func NewHandler(users UserStore, feed FeedStore, avatars AvatarStore, sessions Sessions, render *web.Renderer, log *zap.Logger) *Handler {
	return &Handler{users: users, feed: feed, avatars: avatars, sessions: sessions, render: render, log: log}
}

type profileData struct {
	Username string
	User     *models.User
	Posts    []models.Post
}

// ProfilePage renders the caller's own profile and posts.
func (h *Handler) ProfilePage(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())

	user, err := h.users.Get(r.Context(), cur.Session.Username)
	if err != nil {
		h.log.Error("profile: user lookup failed", zap.Error(err))
		h.render.Error(w, http.StatusInternalServerError, "Could not load your profile.")
		return
	}

	posts, err := h.feed.ListByAuthor(r.Context(), cur.Session.Username)
	if err != nil {
		h.log.Warn("profile: posts lookup failed", zap.Error(err))
	}

	h.render.HTML(w, http.StatusOK, "profile.tmpl", profileData{
		Username: cur.Session.Username,
		User:     user,
		Posts:    posts,
	})
}

type avatarData struct {
	Username string
	Avatar   string
	Success  string
	Error    string
}

// AvatarPage renders the avatar upload form.
func (h *Handler) AvatarPage(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())

	data := avatarData{Username: cur.Session.Username, Avatar: cur.Session.AvatarPath}
	data.Success, _ = h.sessions.TakeFlash(r.Context(), cur.SID, session.FlashSuccess)
	data.Error, _ = h.sessions.TakeFlash(r.Context(), cur.SID, session.FlashError)

	h.render.HTML(w, http.StatusOK, "avatar.tmpl", data)
}

// UploadAvatar validates and stores a new avatar image, then refreshes
// both the user document and the session's cached path.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())
	username := cur.Session.Username

	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarSize+4096)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		h.uploadFailed(w, r, cur, "The image is too large (2 MiB max) or missing.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || int64(len(data)) > MaxAvatarSize {
		h.uploadFailed(w, r, cur, "The image is too large (2 MiB max).")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType := http.DetectContentType(data)
	if !allowedAvatarExts[ext] || !allowedAvatarTypes[contentType] {
		h.uploadFailed(w, r, cur, "Only JPEG, PNG and WebP images are allowed.")
		return
	}

	if err := h.avatars.Put(r.Context(), username, data, contentType); err != nil {
		h.log.Error("avatar upload failed", zap.Error(err))
		h.uploadFailed(w, r, cur, "Could not save the image. Please try again.")
		return
	}

	path := "/avatars/" + username
	if err := h.users.SetAvatarPath(r.Context(), username, &path); err != nil {
		h.log.Error("avatar path update failed", zap.Error(err))
		h.uploadFailed(w, r, cur, "Could not save the image. Please try again.")
		return
	}

	cur.Session.AvatarPath = path
	if err := h.sessions.Save(r.Context(), cur.SID, cur.Session); err != nil {
		h.log.Warn("session avatar refresh failed", zap.Error(err))
	}

	h.sessions.SetFlash(r.Context(), cur.SID, session.FlashSuccess, "Avatar updated.")
	http.Redirect(w, r, "/profile/avatar", http.StatusSeeOther)
}

// DeleteAvatar removes the stored image (best-effort) and clears the
// user's avatar path.
func (h *Handler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	cur, _ := middleware.CurrentFrom(r.Context())
	username := cur.Session.Username

	if err := h.avatars.Remove(r.Context(), username); err != nil {
		// Missing file is tolerated; the record is cleared regardless.
		h.log.Warn("avatar object removal failed", zap.Error(err))
	}

	if err := h.users.SetAvatarPath(r.Context(), username, nil); err != nil {
		h.log.Error("avatar path clear failed", zap.Error(err))
		h.sessions.SetFlash(r.Context(), cur.SID, session.FlashError, "Could not remove the avatar.")
		http.Redirect(w, r, "/profile/avatar", http.StatusSeeOther)
		return
	}

	cur.Session.AvatarPath = ""
	if err := h.sessions.Save(r.Context(), cur.SID, cur.Session); err != nil {
		h.log.Warn("session avatar refresh failed", zap.Error(err))
	}

	h.sessions.SetFlash(r.Context(), cur.SID, session.FlashSuccess, "Avatar removed.")
	http.Redirect(w, r, "/profile/avatar", http.StatusSeeOther)
}

// ServeAvatar streams a stored avatar to any requester; avatar images are
// public the moment their owner's posts are.
func (h *Handler) ServeAvatar(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	data, contentType, err := h.avatars.Get(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.log.Error("avatar fetch failed", zap.Error(err), zap.String("user", username))
		http.Error(w, "unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func (h *Handler) uploadFailed(w http.ResponseWriter, r *http.Request, cur *middleware.Current, msg string) {
	h.sessions.SetFlash(r.Context(), cur.SID, session.FlashError, msg)
	http.Redirect(w, r, "/profile/avatar", http.StatusSeeOther)
}
