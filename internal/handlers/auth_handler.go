package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/services"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService services.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/register", h.Register).Methods("POST")
	router.HandleFunc("/login", h.Login).Methods("POST")
}

// Register creates a password account
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Usuário cadastrado com sucesso.",
		"user":    user.Profile(),
	})
}

// Login handles user login and returns a JWT token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if err := decodeJSON(r, &loginReq); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	// Authenticate the user
	user, err := h.authService.Authenticate(r.Context(), loginReq.Email, loginReq.Password)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	// Generate token
	tokenString, err := h.authService.GenerateToken(user)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.TokenResponse{
		User:        user.Profile(),
		AccessToken: tokenString,
		TokenType:   "bearer",
	})
}
