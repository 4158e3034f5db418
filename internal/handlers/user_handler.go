package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vikasavnish/savepad/internal/services"
)

// UserHandler handles user-related requests
type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

func (h *UserHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/usuarios", h.GetUsers).Methods("GET")
	router.HandleFunc("/usuarios", h.CreateUser).Methods("POST")
	router.HandleFunc("/usuarios/{ref}", h.GetUser).Methods("GET")
}

type quickRegisterRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required"`
}

// CreateUser registers a phone-only user. Known phones return the existing
// user with 200 instead of 201.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req quickRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	profile, created, err := h.userService.QuickRegister(r.Context(), req.Name, req.Phone)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, profile)
}

func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.GetUsers(r.Context())
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// GetUser looks a user up by id, email or phone
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Lookup(r.Context(), mux.Vars(r)["ref"])
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
