package relay

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"songify/internal/provider"
)

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	query := strings.TrimSpace(r.PostFormValue("query"))
	log.Info().Str("query", query).Msg("search request")

	if query == "" {
		writeRelayError(w, newError(InvalidRequest, "No search query provided", nil))
		return
	}

	items, err := s.provider.Search(r.Context(), query)
	if err != nil {
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) {
			log.Warn().Int("code", apiErr.Code).Str("query", query).Msg(apiErr.Message)
			writeRelayError(w, newError(UpstreamError, apiErr.Message, err))
			return
		}
		log.Error().Err(err).Str("query", query).Msg("search failed")
		writeRelayError(w, newError(RelayError, "", err))
		return
	}
	if items == nil {
		items = []provider.SearchResultItem{}
	}

	log.Info().Int("count", len(items)).Msg("search ok")
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
