package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/LeventeLantos/royal-studio/internal/cache"
	"github.com/LeventeLantos/royal-studio/internal/chat"
	"github.com/LeventeLantos/royal-studio/internal/client"
	"github.com/LeventeLantos/royal-studio/internal/dispatch"
	"github.com/LeventeLantos/royal-studio/internal/generation"
	"github.com/LeventeLantos/royal-studio/internal/model"
	"github.com/LeventeLantos/royal-studio/internal/recipient"
	"github.com/LeventeLantos/royal-studio/internal/scheduler"
	"github.com/LeventeLantos/royal-studio/internal/service"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	studio     *service.Studio
	generator  *generation.Orchestrator
	chat       *chat.Conversation
	janitor    *scheduler.Scheduler
	sessionCtx context.Context
	log        *slog.Logger
}

type Deps struct {
	Studio    *service.Studio
	Generator *generation.Orchestrator
	Chat      *chat.Conversation
	Janitor   *scheduler.Scheduler
	// SessionContext outlives requests; generation sessions derive from it.
	SessionContext context.Context
	Logger         *slog.Logger
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		studio:     d.Studio,
		generator:  d.Generator,
		chat:       d.Chat,
		janitor:    d.Janitor,
		sessionCtx: d.SessionContext,
		log:        d.Logger,
	}
	if h.sessionCtx == nil {
		h.sessionCtx = context.Background()
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Chat

func (h *Handler) ChatSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	reply, err := h.chat.Send(r.Context(), req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, chat.ErrSendInFlight):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
	}
}

func (h *Handler) ChatTranscript(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": h.chat.Transcript()})
}

// Recipients

func (h *Handler) ListRecipients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.studio.Book().Snapshot()})
}

func (h *Handler) AddRecipient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := h.studio.Book().Add(req.Name, req.Phone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) ImportRecipients(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	added, rejected := h.studio.Book().Import(req.Text)
	if added == nil {
		added = []model.Recipient{}
	}
	if rejected == nil {
		rejected = []recipient.ImportError{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": added, "rejected": rejected})
}

func (h *Handler) UpdateRecipient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selected *bool `json:"selected"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Selected == nil {
		writeError(w, http.StatusBadRequest, errors.New("selected is required"))
		return
	}

	rec, err := h.studio.Book().SetSelected(r.PathValue("id"), *req.Selected)
	if errors.Is(err, recipient.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) DeleteRecipient(w http.ResponseWriter, r *http.Request) {
	err := h.studio.Book().Remove(r.PathValue("id"))
	if errors.Is(err, recipient.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SelectAllRecipients(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selected bool `json:"selected"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	h.studio.Book().SelectAll(req.Selected)
	writeJSON(w, http.StatusOK, map[string]any{"items": h.studio.Book().Snapshot()})
}

// SMS

func (h *Handler) BulkSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.studio.BulkSend(r.Context(), req.Message)
	if errors.Is(err, dispatch.ErrDispatchInFlight) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) SendSMS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.studio.SendSMS(r.Context(), req.To, req.Message)
	var se *client.StatusError
	switch {
	case errors.Is(err, recipient.ErrInvalidPhone), errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &se) && se.Message != "":
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": se.Message})
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "sent"})
	}
}

func (h *Handler) LastDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.studio.LastDelivery(r.Context(), r.PathValue("phone"))
	switch {
	case errors.Is(err, recipient.ErrInvalidPhone):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, cache.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrCacheDisabled):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, d)
	}
}

// Generations

func (h *Handler) StartGeneration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt  string `json:"prompt"`
		Retry   bool   `json:"retry"`
		Attempt int    `json:"attempt"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	_, err := h.generator.Start(h.sessionCtx, req.Prompt, generation.StartOptions{
		Attempt: req.Attempt,
		Retry:   req.Retry,
	})
	switch {
	case errors.Is(err, generation.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, generation.ErrEmptyPrompt), errors.Is(err, generation.ErrInvalidAttempt):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusAccepted, h.generator.Snapshot())
	}
}

func (h *Handler) CurrentGeneration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.generator.Snapshot())
}

func (h *Handler) CurrentImage(w http.ResponseWriter, r *http.Request) {
	img := h.generator.Snapshot().Image
	if img == nil {
		writeError(w, http.StatusNotFound, errors.New("no image on display"))
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func (h *Handler) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	cancelled := h.generator.Cancel()
	writeJSON(w, http.StatusOK, map[string]any{
		"cancelled": cancelled,
		"state":     h.generator.Snapshot(),
	})
}

func (h *Handler) GenerationHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.studio.History(r.Context(), limit, offset)
	if errors.Is(err, service.ErrHistoryDisabled) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Janitor scheduler

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.janitor.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.janitor.Start()
	writeJSON(w, http.StatusOK, h.janitor.Status())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.janitor.Stop()
	writeJSON(w, http.StatusOK, h.janitor.Status())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return false
	}
	return true
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
