package handler

import (
	"log/slog"
	"net/http"

	"ripple/internal/handler/sse"
	"ripple/internal/httputil"
	historysvc "ripple/internal/service/history"
)

// HistoryHandler serves the history mutation endpoints: regenerate,
// delete-and-after, branch.
type HistoryHandler struct {
	history *historysvc.Service
	sseCfg  sse.Config
	logger  *slog.Logger
}

// NewHistoryHandler creates a history handler.
func NewHistoryHandler(history *historysvc.Service, sseCfg sse.Config, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, sseCfg: sseCfg, logger: logger}
}

// Regenerate replaces the target assistant message and everything after
// it with a fresh generation, streamed over SSE.
// POST /api/chats/{id}/messages/{messageID}/regenerate
func (h *HistoryHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	var req historysvc.RegenerateRequest
	// An empty body means regenerate with defaults.
	if r.ContentLength > 0 {
		if err := httputil.ParseJSON(w, r, &req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	req.UserID = httputil.GetUserID(r)

	sess, err := h.history.Regenerate(r.Context(), r.PathValue("id"), r.PathValue("messageID"), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	serveSession(w, r, sess, h.sseCfg, h.logger)
}

type deleteAfterRequest struct {
	AbortActive bool `json:"abort_active,omitempty"`
}

// DeleteAfter removes the target message and everything after it.
// POST /api/chats/{id}/messages/{messageID}/delete-after
func (h *HistoryHandler) DeleteAfter(w http.ResponseWriter, r *http.Request) {
	var req deleteAfterRequest
	if r.ContentLength > 0 {
		if err := httputil.ParseJSON(w, r, &req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.history.DeleteAfter(
		r.Context(),
		r.PathValue("id"),
		r.PathValue("messageID"),
		httputil.GetUserID(r),
		req.AbortActive,
	)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// Branch copies the chat's prefix into a new chat.
// POST /api/chats/{id}/branch
func (h *HistoryHandler) Branch(w http.ResponseWriter, r *http.Request) {
	var req historysvc.BranchRequest
	if r.ContentLength > 0 {
		if err := httputil.ParseJSON(w, r, &req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	req.UserID = httputil.GetUserID(r)

	branch, err := h.history.Branch(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, branch)
}
