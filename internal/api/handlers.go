package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"secure.share/emergency/internal/auth"
	"secure.share/emergency/internal/emergency"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	svc    *emergency.Service
	logger *slog.Logger
}

func NewHandler(svc *emergency.Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

type CreateContactRequest struct {
	Email    string `json:"email"`
	WaitDays *int   `json:"waitDays,omitempty"`
}

type UpdateContactRequest struct {
	ID       string `json:"id"`
	WaitDays *int   `json:"waitDays,omitempty"`
}

type AccessRequest struct {
	GrantorID string `json:"grantorId"`
}

type RespondRequest struct {
	Action            string `json:"action"`
	EncryptedVaultKey string `json:"encryptedVaultKey,omitempty"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req CreateContactRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.svc.CreateContact(r.Context(), actor(r), emergency.CreateContactInput{
		Email:    req.Email,
		WaitDays: req.WaitDays,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListContacts(r.Context(), actor(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var req UpdateContactRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.svc.UpdateContact(r.Context(), actor(r), emergency.UpdateContactInput{
		ID:       req.ID,
		WaitDays: req.WaitDays,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	var req AccessRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.svc.RequestAccess(r.Context(), actor(r), req.GrantorID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.Overview(r.Context(), actor(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *Handler) GetAccess(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if !h.decode(w, r, &req) {
		return
	}

	view, err := h.svc.Respond(r.Context(), actor(r), emergency.RespondInput{
		ID:                chi.URLParam(r, "id"),
		Action:            emergency.Action(req.Action),
		EncryptedVaultKey: req.EncryptedVaultKey,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteAccess(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// handleServiceError maps protocol errors to status codes. Internal details
// are logged with the request id and never returned.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var e *emergency.Error
	if !errors.As(err, &e) || e.Kind == emergency.KindInternal {
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", requestIDFrom(r.Context()), "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch e.Kind {
	case emergency.KindInvalidInput, emergency.KindInvalidTransition:
		writeError(w, http.StatusBadRequest, e.Reason)
	case emergency.KindForbidden:
		writeError(w, http.StatusForbidden, e.Reason)
	case emergency.KindNotFound:
		writeError(w, http.StatusNotFound, e.Reason)
	case emergency.KindConflict:
		writeError(w, http.StatusConflict, e.Reason)
	}
}

func actor(r *http.Request) string {
	id, _ := auth.UserFrom(r.Context())
	return id
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
