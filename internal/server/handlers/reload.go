package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/parleyhq/parley/internal/errors"
)

// ReloadHandler re-applies configuration on demand. Guarded by a bearer
// token; without one the server never registers this route. The Reload
// callback must leave the previous state untouched on failure.
type ReloadHandler struct {
	Token  string
	Reload func() error
}

// ReloadResponse reports the outcome of a reload attempt.
type ReloadResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respondWithError(w, r, apperrors.NewUnauthorizedError("A valid bearer token is required"))
		return
	}

	if err := h.Reload(); err != nil {
		respondWithError(w, r, apperrors.WrapConfigInvalid(r.Context(), err, "Configuration reload rejected, previous configuration kept"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ReloadResponse{
		Status:    "reloaded",
		Timestamp: time.Now().UTC(),
	})
}

func (h *ReloadHandler) authorized(r *http.Request) bool {
	if h.Token == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	presented := strings.TrimSpace(auth[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.Token)) == 1
}
