package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/services"
)

// PlanHandler serves checkout, status and cancellation of plans
type PlanHandler struct {
	planService     services.PlanService
	checkoutService services.CheckoutService
}

func NewPlanHandler(planService services.PlanService, checkoutService services.CheckoutService) *PlanHandler {
	return &PlanHandler{
		planService:     planService,
		checkoutService: checkoutService,
	}
}

func (h *PlanHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/checkout", h.Checkout).Methods("POST")
	router.HandleFunc("/cancel-plan", h.Cancel).Methods("POST")
	router.HandleFunc("/status/{user_id}", h.Status).Methods("GET")
	router.HandleFunc("/planos", h.ListActive).Methods("GET")
}

// Checkout creates a pending plan and the provider checkout for it
func (h *PlanHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	resp, err := h.checkoutService.Checkout(r.Context(), req)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *PlanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req models.CancelPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	plan, err := h.planService.Cancel(r.Context(), string(req.UserID))
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Plano cancelado com sucesso.",
		"plan":    plan,
	})
}

// Status reports the plan that covers the user, directly or through a family
func (h *PlanHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.planService.Status(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *PlanHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	plans, err := h.planService.ListActive(r.Context())
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, plans)
}
