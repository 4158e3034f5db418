package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/services"
)

type FamilyHandler struct {
	familyService services.FamilyService
}

func NewFamilyHandler(familyService services.FamilyService) *FamilyHandler {
	return &FamilyHandler{
		familyService: familyService,
	}
}

func (h *FamilyHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/family/add", h.AddMember).Methods("POST")
	router.HandleFunc("/family/remove", h.RemoveMember).Methods("DELETE")
	router.HandleFunc("/family/leave", h.Leave).Methods("DELETE")
	router.HandleFunc("/family/confirm-whatsapp", h.ConfirmContact).Methods("POST")
	router.HandleFunc("/family/{user_id}", h.GetFamily).Methods("GET")
}

// RegisterLegacyRoutes mounts the member listing used by the messaging bot.
func (h *FamilyHandler) RegisterLegacyRoutes(router *mux.Router) {
	router.HandleFunc("/api/family-members/{owner_id}", h.ListMembers).Methods("GET")
}

// AddMember invites a member to the owner's family
func (h *FamilyHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req models.AddMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	member, err := h.familyService.AddMember(r.Context(), req)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Membro adicionado com sucesso.",
		"member":  member,
	})
}

// RemoveMember revokes a membership owned by the caller
func (h *FamilyHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	var req models.RemoveMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	if err := h.familyService.RemoveMember(r.Context(), req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Membro removido com sucesso."})
}

// Leave removes the caller from the family they belong to
func (h *FamilyHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req models.LeaveRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	if err := h.familyService.Leave(r.Context(), string(req.MemberID)); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Você saiu da família."})
}

func (h *FamilyHandler) ConfirmContact(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmContactRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	res, err := h.familyService.ConfirmContact(r.Context(), string(req.UserID), req.Phone)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// GetFamily returns the owner and members of the family the user belongs to
func (h *FamilyHandler) GetFamily(w http.ResponseWriter, r *http.Request) {
	family, err := h.familyService.Resolve(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, family)
}

func (h *FamilyHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	family, err := h.familyService.Resolve(r.Context(), mux.Vars(r)["owner_id"])
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, family.Members)
}
