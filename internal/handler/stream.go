package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"ripple/internal/handler/sse"
	"ripple/internal/httputil"
	chatsvc "ripple/internal/service/chat"
	"ripple/internal/service/session"
)

// StreamHandler serves the streaming endpoints: submit, resume, abort.
type StreamHandler struct {
	chats  *chatsvc.Service
	sseCfg sse.Config
	logger *slog.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(chats *chatsvc.Service, sseCfg sse.Config, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{chats: chats, sseCfg: sseCfg, logger: logger}
}

// SubmitMessage appends a user message and streams the assistant response
// over SSE.
// POST /api/chats/{id}/messages
func (h *StreamHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req chatsvc.SubmitMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)

	sess, err := h.chats.SubmitMessage(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	serveSession(w, r, sess, h.sseCfg, h.logger)
}

// Resume reattaches to the chat's active stream. Responds 204 when there
// is nothing to resume.
// GET /api/chats/{id}/stream
func (h *StreamHandler) Resume(w http.ResponseWriter, r *http.Request) {
	sess, err := h.chats.Resume(r.Context(), r.PathValue("id"), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}
	if sess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	serveSession(w, r, sess, h.sseCfg, h.logger)
}

// Abort cancels the chat's active stream and waits for its persistence.
// POST /api/chats/{id}/abort
func (h *StreamHandler) Abort(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	if err := h.chats.Abort(r.Context(), chatID, httputil.GetUserID(r)); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

// serveSession streams a session's frames to one SSE client: full replay
// first, then the live tail, with keep-alives until the session ends or
// the client goes away.
func serveSession(w http.ResponseWriter, r *http.Request, sess *session.Session, cfg sse.Config, logger *slog.Logger) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	clientID := uuid.NewString()
	frames := sess.Subscribe(clientID)
	defer sess.Unsubscribe(clientID)

	keepAlive := sse.NewTickerKeepAlive(cfg.KeepAliveInterval)
	kaDone := keepAlive.Start(writer, logger)
	defer keepAlive.Stop()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				// Terminal event delivered; the stream is over.
				return
			}
			if err := writer.WriteFrame(frame); err != nil {
				logger.Debug("client disconnected mid-stream",
					"stream_id", sess.ID(), "client_id", clientID)
				return
			}

		case <-kaDone:
			// Keep-alive write failed: the connection is gone.
			return

		case <-r.Context().Done():
			return
		}
	}
}
