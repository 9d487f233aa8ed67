package middleware

import (
	"context"
	"net/http"

	"github.com/desvo/klab-feed/internal/session"
)

// Sessions is the slice of the session store the middleware needs.
type Sessions interface {
	Get(ctx context.Context, sid string) (*session.Session, error)
	Touch(ctx context.Context, sid string) error
}

type ctxKey int

const currentKey ctxKey = iota

// Current bundles the resolved session with its id so handlers can
// update flash messages and the cached avatar path.
type Current struct {
	SID     string
	Session *session.Session
}

// CurrentFrom returns the authenticated session injected by RequirePage
// or RequireJSON.
func CurrentFrom(ctx context.Context) (*Current, bool) {
	c, ok := ctx.Value(currentKey).(*Current)
	return c, ok
}

func resolve(r *http.Request, sessions Sessions) *Current {
	sid := session.SIDFromRequest(r)
	if sid == "" {
		return nil
	}
	sess, err := sessions.Get(r.Context(), sid)
	if err != nil || sess == nil {
		return nil
	}
	// Sliding idle expiry: every authenticated request restarts the window.
	_ = sessions.Touch(r.Context(), sid)
	return &Current{SID: sid, Session: sess}
}

// RequirePage guards server-rendered pages: anonymous requests are
// redirected to the landing page.
func RequirePage(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cur := resolve(r, sessions)
			if cur == nil {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), currentKey, cur)))
		})
	}
}

// RequireJSON guards the like endpoint: anonymous requests get a 401
// JSON body instead of a redirect.
func RequireJSON(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cur := resolve(r, sessions)
			if cur == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"success":false,"error":"not authenticated"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), currentKey, cur)))
		})
	}
}
