package relay

import (
	"net/http"
	"path"
	"strings"

	"github.com/rs/zerolog/hlog"
)

const appTitle = "Songify"

func (s *Server) HandleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := map[string]any{
		"Title": appTitle,
		"Path":  r.URL.Path,
	}
	if err := s.tpl.ExecuteTemplate(w, "base", data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("render home")
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (s *Server) HandleStatic(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(r.URL.Path, "/static/")
	b, err := staticFS.ReadFile(path.Join("static", path.Clean("/"+p)))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	switch {
	case strings.HasSuffix(p, ".js"):
		w.Header().Set("Content-Type", "application/javascript")
	case strings.HasSuffix(p, ".css"):
		w.Header().Set("Content-Type", "text/css")
	}
	_, _ = w.Write(b)
}
