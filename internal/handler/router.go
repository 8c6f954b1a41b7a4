package handler

import (
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/vchernov/bank-cards/internal/middleware"
	"github.com/vchernov/bank-cards/internal/models"
	"github.com/vchernov/bank-cards/internal/service"
)

// NewRouter wires all routes. Auth endpoints are public; card endpoints
// require an authenticated caller; admin endpoints additionally require
// the ADMIN role.
func NewRouter(h *Handler, auth *service.AuthService, log *logrus.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(log))

	// Public routes
	r.HandleFunc("/api/v1/auth/registration", h.Register).Methods("POST")
	r.HandleFunc("/api/v1/auth/authenticate", h.Authenticate).Methods("POST")
	r.HandleFunc("/api/v1/auth/refresh-token", h.RefreshToken).Methods("POST")

	// Authenticated routes
	authRouter := r.PathPrefix("/api/v1").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(auth, log))
	authRouter.HandleFunc("/auth/logout", h.Logout).Methods("POST")
	authRouter.HandleFunc("/card", h.IssueCard).Methods("POST")
	authRouter.HandleFunc("/card", h.ListCards).Methods("GET")
	authRouter.HandleFunc("/card/transfer", h.Transfer).Methods("POST")
	authRouter.HandleFunc("/card/deposit", h.Deposit).Methods("POST")
	authRouter.HandleFunc("/card/deposit", h.GetBalance).Methods("GET")
	authRouter.HandleFunc("/card/block-card", h.BlockCard).Methods("POST")

	// Admin routes
	adminRouter := authRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.RequireRole(models.RoleAdmin, log))
	adminRouter.HandleFunc("/all-cards", h.AllCards).Methods("GET")
	adminRouter.HandleFunc("/cards/{cardId}/approve-block", h.ApproveBlock).Methods("POST")
	adminRouter.HandleFunc("/users", h.AllUsers).Methods("GET")
	adminRouter.HandleFunc("/users/{userId}", h.UserByID).Methods("GET")
	adminRouter.HandleFunc("/users/{userId}/block", h.BlockUser).Methods("PATCH")
	adminRouter.HandleFunc("/users/{userId}/unblock", h.UnblockUser).Methods("PATCH")
	adminRouter.HandleFunc("/users/{userId}/cards", h.CreateCardForUser).Methods("POST")
	adminRouter.HandleFunc("/users/{userId}/cards/{cardId}/cvv", h.RotateCVV).Methods("PATCH")

	return r
}
