package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/parleyhq/parley/internal/errors"

	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/core/engine"
	"github.com/parleyhq/parley/internal/server/middleware"
)

// maxMessageBytes bounds the request body; messages past the
// classifier's fingerprint prefix add no signal anyway.
const maxMessageBytes = 64 << 10

// MessageRequest is the inbound turn submission.
type MessageRequest struct {
	Route   string `json:"route"`
	Caller  string `json:"caller"`
	Message string `json:"message"`
}

// MessageResponse is the wire form of a pipeline result.
type MessageResponse struct {
	RequestID      string    `json:"request_id"`
	Allowed        bool      `json:"allowed"`
	Decision       string    `json:"decision,omitempty"`
	Target         string    `json:"target,omitempty"`
	Question       string    `json:"question,omitempty"`
	Alternatives   []string  `json:"alternatives,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	RetryAfter     int64     `json:"retry_after,omitempty"`
	RemainingQuota int       `json:"remaining_quota"`
	ResetAt        time.Time `json:"reset_at"`
}

// MessagesHandler binds the dispatch pipeline to POST /v1/messages.
type MessagesHandler struct {
	Engine *engine.Orchestrator
}

// ServeHTTP validates the submission, runs the pipeline and renders the
// decision. Quota rejections answer 429 with a Retry-After header.
func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err := decoder.Decode(&body); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("Request body must be valid JSON"))
		return
	}

	req := core.Request{
		Route:   strings.TrimSpace(body.Route),
		Caller:  strings.TrimSpace(body.Caller),
		Message: strings.TrimSpace(body.Message),
	}
	if req.Route == "" || req.Caller == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("route and caller are required"))
		return
	}
	if req.Message == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("message must not be empty"))
		return
	}

	requestID := middleware.GetRequestID(r.Context())
	result := h.Engine.Handle(r.Context(), requestID, req)

	resp := MessageResponse{
		RequestID:      result.RequestID,
		Allowed:        result.Allowed,
		Decision:       string(result.Decision),
		Target:         result.Target,
		Question:       result.Question,
		Alternatives:   result.Alternatives,
		Confidence:     result.Confidence,
		RemainingQuota: result.RemainingQuota,
		ResetAt:        result.ResetAt,
	}

	status := http.StatusOK
	if !result.Allowed {
		status = http.StatusTooManyRequests
		retryAfter := retryAfterSeconds(result.RetryAfter)
		resp.RetryAfter = retryAfter
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// retryAfterSeconds rounds up so a caller honoring the hint never
// lands inside the same window.
func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
