package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CookieName is the client-held opaque session token.
const CookieName = "session_id"

// Flash field names. Each is written once and consumed by exactly one
// subsequent page render.
const (
	FlashLoginError = "login_error"
	FlashSuccess    = "success"
	FlashError      = "error"
)

// Session is the server-held per-browser state. AvatarPath is a cache of
// the user document's field, refreshed on login and on avatar changes.
type Session struct {
	Username   string `json:"username"`
	AvatarPath string `json:"avatar_path"`
}

// Store keeps sessions and flash messages in Redis with an idle-expiry
// TTL. Every authenticated request touches the TTL, so the window is
// measured from the last interaction.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func sessionKey(sid string) string { return "session:" + sid }
func flashKey(sid, field string) string {
	return "flash:" + sid + ":" + field
}

// Create stores a new session and returns its id.
func (s *Store) Create(ctx context.Context, sess *Session) (string, error) {
	sid := uuid.NewString()
	if err := s.write(ctx, sid, sess); err != nil {
		return "", err
	}
	return sid, nil
}

// Get returns the session for sid, or (nil, nil) when it does not exist
// or has expired.
func (s *Store) Get(ctx context.Context, sid string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(sid)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Save rewrites the session document, resetting the TTL.
func (s *Store) Save(ctx context.Context, sid string, sess *Session) error {
	return s.write(ctx, sid, sess)
}

// Touch extends the idle window without rewriting the document.
func (s *Store) Touch(ctx context.Context, sid string) error {
	return s.rdb.Expire(ctx, sessionKey(sid), s.ttl).Err()
}

// Delete destroys the session.
func (s *Store) Delete(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, sessionKey(sid)).Err()
}

func (s *Store) write(ctx context.Context, sid string, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(sid), raw, s.ttl).Err()
}

// SetFlash stores a one-shot message for the browser identified by sid.
// Flash keys are independent of the session document, so an anonymous
// browser (failed login) can carry one too.
func (s *Store) SetFlash(ctx context.Context, sid, field, msg string) error {
	return s.rdb.Set(ctx, flashKey(sid, field), msg, s.ttl).Err()
}

// TakeFlash reads and clears a flash message in one round trip (GETDEL),
// so two concurrent renders cannot both observe it. Returns "" when no
// message is pending.
func (s *Store) TakeFlash(ctx context.Context, sid, field string) (string, error) {
	msg, err := s.rdb.GetDel(ctx, flashKey(sid, field)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return msg, err
}

// SIDFromRequest extracts the session id cookie, or "" when absent.
func SIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetCookie attaches the session cookie to the response.
func SetCookie(w http.ResponseWriter, sid string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl / time.Second),
	})
}

// ClearCookie expires the session cookie on the client.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
