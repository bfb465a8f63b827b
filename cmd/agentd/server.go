package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/spangraph/spangraph/pkg/spangraph"
	"github.com/spangraph/spangraph/pkg/spangraph/chat"
	"github.com/spangraph/spangraph/pkg/spangraph/model"
)

// chatRequest is the request body for both chat endpoints. A client may pin
// run_id to make the run resumable under a known identifier.
type chatRequest struct {
	RunID    string          `json:"run_id,omitempty"`
	Messages []model.Message `json:"messages"`
}

// chatResponse is the reply for POST /v1/chat and the payload of stream
// events.
type chatResponse struct {
	RunID    string          `json:"run_id,omitempty"`
	Messages []model.Message `json:"messages"`
}

type resumeRequest struct {
	RunID string `json:"run_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newMux routes the agent API. Outer middleware (the APM transaction layer or
// the auto-instrumentation hook) is applied by the caller, not here.
func newMux(handle chat.Handle, agent *chat.Agent, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", handleChat(handle, logger))
	mux.HandleFunc("POST /v1/chat/stream", handleChatStream(handle, logger))
	mux.HandleFunc("POST /v1/chat/resume", handleResume(agent, logger))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func handleChat(handle chat.Handle, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChatRequest(w, r)
		if !ok {
			return
		}

		runID := req.RunID
		if runID == "" {
			runID = uuid.New().String()
		}

		msgs, err := handle.Invoke(chat.WithRunID(r.Context(), runID), req.Messages)
		if err != nil {
			logger.Error("chat invoke failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "chat failed"})
			return
		}

		writeJSON(w, http.StatusOK, chatResponse{RunID: runID, Messages: msgs})
	}
}

// handleChatStream serves the run as server-sent events: one "delta" event
// per completed node, a closing "done" event, or an "error" event.
func handleChatStream(handle chat.Handle, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChatRequest(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
			return
		}

		runID := req.RunID
		if runID == "" {
			runID = uuid.New().String()
		}

		deltas, err := handle.Stream(chat.WithRunID(r.Context(), runID), req.Messages)
		if err != nil {
			logger.Error("chat stream failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "chat failed"})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		for d := range deltas {
			switch {
			case d.Err != nil:
				writeEvent(w, "error", errorResponse{Error: d.Err.Error()})
			case d.Final:
				writeEvent(w, "done", chatResponse{RunID: runID, Messages: d.Messages})
			default:
				writeEvent(w, "delta", chatResponse{RunID: runID, Messages: d.Messages})
			}
			flusher.Flush()
		}
	}
}

// handleResume continues a snapshotted run and returns its final
// conversation.
func handleResume(agent *chat.Agent, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resumeRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil || req.RunID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "run_id required"})
			return
		}

		msgs, err := agent.Resume(r.Context(), req.RunID)
		switch {
		case errors.Is(err, chat.ErrNoSnapshotStore):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "snapshots not configured"})
			return
		case errors.Is(err, spangraph.ErrNoSnapshots):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown run"})
			return
		case err != nil:
			logger.Error("chat resume failed",
				slog.String("run_id", req.RunID),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "resume failed"})
			return
		}

		writeJSON(w, http.StatusOK, chatResponse{RunID: req.RunID, Messages: msgs})
	}
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return chatRequest{}, false
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "messages must not be empty"})
		return chatRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Debug("response encode failed", slog.String("error", err.Error()))
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
