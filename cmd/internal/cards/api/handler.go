// Package cardsapi serves card CRUD and the completion ranking over HTTP.
// Every route expects authapi.Gate to have authenticated the request.
package cardsapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authapi "todolist/cmd/internal/auth/api"
	"todolist/cmd/internal/cards"
	"todolist/cmd/internal/httpx"
)

type Handler struct {
	log     *slog.Logger
	svc     *cards.Service
	maxBody int64
	now     func() time.Time
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func WithMaxBody(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func NewHandler(log *slog.Logger, svc *cards.Service, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("cardsapi: nil service")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		log:     log,
		svc:     svc,
		maxBody: httpx.DefaultMaxBody,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

func (h *Handler) Mount(r chi.Router) {
	r.Get("/api/cards", h.handleList)
	r.Post("/api/cards", h.handleCreate)
	r.Put("/api/cards/{id}", h.handleUpdate)
	r.Delete("/api/cards/{id}", h.handleDelete)
	r.Get("/api/ranking", h.handleRanking)
}

type createResponse struct {
	Success bool       `json:"success"`
	ID      string     `json:"id"`
	Card    cards.Card `json:"card"`
}

type deleteResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	out, err := h.svc.List(r.Context(), id.UserID, r.URL.Query().Get("scope"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var in cards.CreateInput
	if err := httpx.DecodeJSONLenient(w, r, h.maxBody, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	c, err := h.svc.Create(r.Context(), h.now(), cards.Owner{ID: id.UserID, Handle: id.Username}, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createResponse{Success: true, ID: c.ID, Card: c})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var in cards.UpdateInput
	if err := httpx.DecodeJSONLenient(w, r, h.maxBody, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	c, err := h.svc.Update(r.Context(), h.now(), id.UserID, chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id.UserID, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, deleteResponse{OK: true})
}

func (h *Handler) handleRanking(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	out, err := h.svc.Ranking(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (authapi.Identity, bool) {
	id, ok := authapi.IdentityFromContext(r.Context())
	if !ok || id.UserID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "not_authenticated", "not logged in")
		return authapi.Identity{}, false
	}
	return id, true
}

// writeServiceError maps cards errors to responses. A card that exists but
// belongs to someone else is reported exactly like a missing one.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve cards.ValidationError
	switch {
	case errors.Is(err, cards.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "card not found")
	case errors.As(err, &ve):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", ve.Msg)
	case errors.Is(err, cards.ErrStoreUnavailable):
		httpx.WriteError(w, http.StatusInternalServerError, "store_unavailable", "card store unavailable")
	default:
		h.log.Error("cards.api.fail", "err", err, "path", r.URL.Path)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
