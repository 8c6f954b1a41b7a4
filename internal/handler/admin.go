package handler

import "net/http"

// AllCards returns one page of every card in the system
func (h *Handler) AllCards(w http.ResponseWriter, r *http.Request) {
	page, err := h.admin.AllCards(r.Context(), pageParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// ApproveBlock approves a pending card block request
func (h *Handler) ApproveBlock(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(r, "cardId")
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid card id"})
		return
	}
	summary, err := h.admin.ApproveBlock(r.Context(), cardID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// AllUsers returns one page of every user in the system
func (h *Handler) AllUsers(w http.ResponseWriter, r *http.Request) {
	page, err := h.admin.AllUsers(r.Context(), pageParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// UserByID returns the administrator view of one user
func (h *Handler) UserByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userId")
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid user id"})
		return
	}
	user, err := h.admin.UserByID(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// BlockUser deactivates a user account
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userId")
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid user id"})
		return
	}
	user, err := h.admin.BlockUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// UnblockUser reactivates a user account
func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userId")
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid user id"})
		return
	}
	user, err := h.admin.UnblockUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// CreateCardForUser issues a card on behalf of a user
func (h *Handler) CreateCardForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userId")
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid user id"})
		return
	}
	material, err := h.admin.CreateCardForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, material)
}

// RotateCVV regenerates the CVV of a user's card
func (h *Handler) RotateCVV(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userId")
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid user id"})
		return
	}
	cardID, ok := pathID(r, "cardId")
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid card id"})
		return
	}
	rotation, err := h.admin.RotateCVV(r.Context(), userID, cardID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rotation)
}
