package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/LeventeLantos/automatic-calling/internal/model"
	"github.com/LeventeLantos/automatic-calling/internal/scheduler"
	"github.com/LeventeLantos/automatic-calling/internal/service"
	"github.com/LeventeLantos/automatic-calling/internal/session"
)

type Dispatcher interface {
	Trigger(ctx context.Context, params model.CallParams) (service.Result, error)
	HandleEvent(ctx context.Context, id, status string) (service.Result, error)
	HandleInput(ctx context.Context, id, digits string) (service.InputResult, error)
}

type SessionReader interface {
	Read(ctx context.Context, id string) (*model.Session, error)
}

type Handler struct {
	dialer   Dispatcher
	sessions SessionReader
	// sweeper is nil when the session store expires records on its own.
	sweeper *scheduler.Scheduler
}

func NewHandler(d Dispatcher, sessions SessionReader, sweeper *scheduler.Scheduler) *Handler {
	return &Handler{dialer: d, sessions: sessions, sweeper: sweeper}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Trigger creates a session and places the first call. Alert sources post
// here.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	params, err := parseTrigger(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.dialer.Trigger(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Event receives call status callbacks from the voice provider.
func (h *Handler) Event(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")

	var payload map[string]any
	body, _ := readBody(r)
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Warn("event payload is not a json object", "session_id", id, "error", err)
	}
	status, _ := payload["status"].(string)
	slog.Debug("call event", "session_id", id, "status", status, "payload", payload)

	res, err := h.dialer.HandleEvent(r.Context(), id, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Input receives the digits pressed by the callee. An acknowledgement is
// answered with a script that reads the alert text back.
func (h *Handler) Input(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")

	digits, err := parseDigits(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.dialer.HandleInput(r.Context(), id, digits)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.NCCO != nil {
		writeJSON(w, http.StatusOK, res.NCCO)
		return
	}
	writeJSON(w, http.StatusOK, res.Result)
}

type sessionView struct {
	*model.Session
	State model.State `json:"state"`
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")

	sess, err := h.sessions.Read(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, notFoundError("session not found: "+id))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{Session: sess, State: sess.State()})
}

func (h *Handler) SweeperStatus(w http.ResponseWriter, r *http.Request) {
	if !h.sweeperEnabled(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.sweeper.Status())
}

func (h *Handler) SweeperStart(w http.ResponseWriter, r *http.Request) {
	if !h.sweeperEnabled(w) {
		return
	}
	h.sweeper.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sweeper.IsRunning()})
}

func (h *Handler) SweeperStop(w http.ResponseWriter, r *http.Request) {
	if !h.sweeperEnabled(w) {
		return
	}
	h.sweeper.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sweeper.IsRunning()})
}

func (h *Handler) sweeperEnabled(w http.ResponseWriter) bool {
	if h.sweeper == nil {
		writeError(w, disabledError("sweeper is disabled for this session store"))
		return false
	}
	return true
}

type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	rich := toHTTPError(err)
	if rich.Code >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err, "category", rich.Category, "text_code", rich.TextCode)
	}

	detail := rich.Message
	if detail == "" {
		detail = err.Error()
	}
	writeJSON(w, rich.Code, errorBody{Detail: detail, Code: rich.TextCode})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}
