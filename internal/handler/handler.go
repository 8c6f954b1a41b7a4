// Package handler exposes the HTTP surface. Handlers validate request
// shape, call into the services and map structured errors to statuses.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	goerrors "github.com/goliatone/go-errors"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/vchernov/bank-cards/internal/service"
)

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	auth  *service.AuthService
	cards *service.CardService
	admin *service.AdminService
	log   *logrus.Logger
}

// NewHandler initializes a new handler
func NewHandler(auth *service.AuthService, cards *service.CardService, admin *service.AdminService, log *logrus.Logger) *Handler {
	return &Handler{auth: auth, cards: cards, admin: admin, log: log}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps the error category to an HTTP status. The switch is
// exhaustive over the categories the services produce.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: "internal server error"}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryValidation:
			status = http.StatusBadRequest
		case goerrors.CategoryNotFound:
			status = http.StatusNotFound
		case goerrors.CategoryConflict:
			status = http.StatusConflict
		case goerrors.CategoryAuth:
			status = http.StatusUnauthorized
		case goerrors.CategoryAuthz:
			status = http.StatusForbidden
		default:
			status = http.StatusInternalServerError
		}
		if status != http.StatusInternalServerError {
			resp.Error = richErr.Message
			resp.Code = richErr.TextCode
		}
	}

	if status == http.StatusInternalServerError {
		h.log.Errorf("Request failed: %v", err)
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 0 {
		return 0
	}
	return page
}

func pathID(r *http.Request, name string) (int64, bool) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
