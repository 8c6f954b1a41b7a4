package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/vchernov/bank-cards/internal/middleware"
)

type depositRequest struct {
	CardID int64           `json:"card_id"`
	Amount decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	FromCardID int64           `json:"from_card_id"`
	ToCardID   int64           `json:"to_card_id"`
	Amount     decimal.Decimal `json:"amount"`
	Message    string          `json:"message"`
}

type blockRequest struct {
	CardID int64 `json:"card_id"`
}

// IssueCard creates a card for the caller and returns its plaintext
// material once
func (h *Handler) IssueCard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	material, err := h.cards.IssueCard(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, material)
}

// ListCards returns one page of the caller's cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	page, err := h.cards.ListCards(r.Context(), user.ID, pageParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// Deposit credits an amount to one of the caller's cards
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	var req depositRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.cards.Deposit(r.Context(), user.ID, req.CardID, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Transfer moves an amount between two of the caller's cards
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.cards.Transfer(r.Context(), user.ID, req.FromCardID, req.ToCardID, req.Amount, req.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetBalance returns the balance of one of the caller's cards
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	cardID, err := strconv.ParseInt(r.URL.Query().Get("cardId"), 10, 64)
	if err != nil || cardID <= 0 {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cardId query parameter is required"})
		return
	}
	result, err := h.cards.GetBalance(r.Context(), user.ID, cardID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// BlockCard files a block request for one of the caller's cards
func (h *Handler) BlockCard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	var req blockRequest
	if !h.decode(w, r, &req) {
		return
	}
	summary, err := h.cards.RequestBlock(r.Context(), user.ID, req.CardID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}
