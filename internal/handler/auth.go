package handler

import "net/http"

type registrationRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authenticationRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// Authenticate handles user login
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticationRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// RefreshToken rotates a credential pair presented as a bearer header
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	resp, err := h.auth.Refresh(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Logout revokes the presented access token
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), r.Header.Get("Authorization")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
