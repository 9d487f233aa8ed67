package docs

import (
	"context"
	"net/http"

	"github.com/desvo/klab-feed/internal/session"
	"github.com/desvo/klab-feed/internal/web"
)

// Sessions resolves the optional viewer identity; /docs is public.
type Sessions interface {
	Get(ctx context.Context, sid string) (*session.Session, error)
}

type Handler struct {
	englishDir string
	spanishDir string
	sessions   Sessions
	render     *web.Renderer
}

func NewHandler(englishDir, spanishDir string, sessions Sessions, render *web.Renderer) *Handler {
	return &Handler{englishDir: englishDir, spanishDir: spanishDir, sessions: sessions, render: render}
}

type docsData struct {
	Username    string
	EnglishDocs []Doc
	SpanishDocs []Doc
}

// Page renders both documentation locales. The directories are read on
// every request; docs change rarely and the sets are small.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	data := docsData{
		EnglishDocs: Load(h.englishDir),
		SpanishDocs: Load(h.spanishDir),
	}
	if sid := session.SIDFromRequest(r); sid != "" {
		if sess, err := h.sessions.Get(r.Context(), sid); err == nil && sess != nil {
			data.Username = sess.Username
		}
	}
	h.render.HTML(w, http.StatusOK, "docs.tmpl", data)
}
