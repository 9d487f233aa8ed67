package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/desvo/klab-feed/internal/models"
	"github.com/desvo/klab-feed/internal/session"
	"github.com/desvo/klab-feed/internal/store"
	"github.com/desvo/klab-feed/internal/web"
)

// User-facing flash texts. Unknown user and wrong password collapse to
// the same message so the login form cannot be used to enumerate accounts.
const (
	msgInvalidCredentials = "Incorrect username or password."
	msgBackendDown        = "The service is temporarily unavailable. Please try again."
	msgUsernameTaken      = "That username is already taken."
	msgFieldsRequired     = "All fields are required."
)

// UserStore defines the interface for account persistence.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, username string) (*models.User, error)
}

// Sessions defines the slice of the session store the auth handlers use.
type Sessions interface {
	Create(ctx context.Context, sess *session.Session) (string, error)
	Get(ctx context.Context, sid string) (*session.Session, error)
	Delete(ctx context.Context, sid string) error
	SetFlash(ctx context.Context, sid, field, msg string) error
	TakeFlash(ctx context.Context, sid, field string) (string, error)
}

// Handler holds the auth-related HTTP handlers.
type Handler struct {
	users    UserStore
	sessions Sessions
	render   *web.Renderer
	ttl      time.Duration
	log      *zap.Logger
}

func NewHandler(users UserStore, sessions Sessions, render *web.Renderer, ttl time.Duration, log *zap.Logger) *Handler {
	return &Handler{users: users, sessions: sessions, render: render, ttl: ttl, log: log}
}

type indexData struct {
	Username   string
	LoginError string
}

// Index renders the landing page, consuming a pending login-error flash.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := indexData{}
	if sid := session.SIDFromRequest(r); sid != "" {
		if sess, err := h.sessions.Get(r.Context(), sid); err == nil && sess != nil {
			data.Username = sess.Username
		}
		if msg, err := h.sessions.TakeFlash(r.Context(), sid, session.FlashLoginError); err == nil {
			data.LoginError = msg
		}
	}
	h.render.HTML(w, http.StatusOK, "index.tmpl", data)
}

// Login authenticates the form credentials and establishes a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	user, err := h.users.Get(r.Context(), username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Error("login: user lookup failed", zap.Error(err))
		h.flashAndRedirect(w, r, session.FlashLoginError, msgBackendDown, "/")
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		h.flashAndRedirect(w, r, session.FlashLoginError, msgInvalidCredentials, "/")
		return
	}

	sid, err := h.sessions.Create(r.Context(), &session.Session{
		Username:   user.Username,
		AvatarPath: user.Avatar(),
	})
	if err != nil {
		h.log.Error("login: session create failed", zap.Error(err))
		h.flashAndRedirect(w, r, session.FlashLoginError, msgBackendDown, "/")
		return
	}

	session.SetCookie(w, sid, h.ttl)
	target := user.Redirect
	if target == "" {
		target = "/posts"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

type registerData struct {
	Username string
	Error    string
}

// RegisterForm renders the registration page, consuming a pending error
// flash from a failed attempt.
func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	data := registerData{}
	if sid := session.SIDFromRequest(r); sid != "" {
		if msg, err := h.sessions.TakeFlash(r.Context(), sid, session.FlashError); err == nil {
			data.Error = msg
		}
	}
	h.render.HTML(w, http.StatusOK, "register.tmpl", data)
}

// Register creates the account and logs the new user straight in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	name := strings.TrimSpace(r.FormValue("name"))
	password := r.FormValue("password")

	if username == "" || name == "" || password == "" {
		h.flashAndRedirect(w, r, session.FlashError, msgFieldsRequired, "/register")
		return
	}

	// Pre-check for a friendlier error; the unique index on username is
	// what actually decides a registration race.
	if _, err := h.users.Get(r.Context(), username); err == nil {
		h.flashAndRedirect(w, r, session.FlashError, msgUsernameTaken, "/register")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.log.Error("register: user lookup failed", zap.Error(err))
		h.flashAndRedirect(w, r, session.FlashError, msgBackendDown, "/register")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		h.render.Error(w, http.StatusInternalServerError, "Could not create the account.")
		return
	}

	user := &models.User{
		Username: username,
		Password: string(hashed),
		Name:     name,
		Friends:  []string{},
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			h.flashAndRedirect(w, r, session.FlashError, msgUsernameTaken, "/register")
			return
		}
		h.log.Error("register: create failed", zap.Error(err))
		h.flashAndRedirect(w, r, session.FlashError, msgBackendDown, "/register")
		return
	}

	sid, err := h.sessions.Create(r.Context(), &session.Session{Username: user.Username})
	if err != nil {
		// Account exists but auto-login failed; send them to the form.
		h.log.Error("register: session create failed", zap.Error(err))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	session.SetCookie(w, sid, h.ttl)
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

// Logout destroys the session. A failed destroy is an error page, not a
// silent redirect.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sid := session.SIDFromRequest(r); sid != "" {
		if err := h.sessions.Delete(r.Context(), sid); err != nil {
			h.log.Error("logout: session delete failed", zap.Error(err))
			h.render.Error(w, http.StatusInternalServerError, "Error logging out")
			return
		}
	}
	session.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// flashAndRedirect stores a one-shot message for this browser and
// redirects. Anonymous browsers get a fresh session id cookie that only
// ever carries the flash.
func (h *Handler) flashAndRedirect(w http.ResponseWriter, r *http.Request, field, msg, target string) {
	sid := session.SIDFromRequest(r)
	if sid == "" {
		sid = uuid.NewString()
		session.SetCookie(w, sid, h.ttl)
	}
	if err := h.sessions.SetFlash(r.Context(), sid, field, msg); err != nil {
		h.log.Warn("flash write failed", zap.Error(err))
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
