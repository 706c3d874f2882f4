package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/poiesic/corpus/core"
)

// Handler exposes the gateway as an HTTP endpoint: POST with a JSON Request
// body, JSON Response on success. Validation failures map to 400, both
// backends down to 503.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := g.Search(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrEmptyQuery), errors.Is(err, core.ErrInvalidAudience):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, core.ErrSearchUnavailable):
				writeError(w, http.StatusServiceUnavailable, err.Error())
			default:
				g.logger.Error("search failed", "err", err)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			g.logger.Error("encoding response failed", "err", err)
		}
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
