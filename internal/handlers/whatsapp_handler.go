package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/services"
	"github.com/vikasavnish/savepad/internal/utils"
)

// BotTokenHeader carries the shared secret on calls from the messaging bot.
const BotTokenHeader = "X-Bot-Token"

// WhatsappHandler links WhatsApp numbers to accounts through short codes
type WhatsappHandler struct {
	verificationService services.VerificationService
	botToken            string
}

func NewWhatsappHandler(verificationService services.VerificationService, botToken string) *WhatsappHandler {
	return &WhatsappHandler{
		verificationService: verificationService,
		botToken:            botToken,
	}
}

// RegisterRoutes mounts the user facing routes. router must require a JWT.
func (h *WhatsappHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/link-whatsapp", h.IssueCode).Methods("POST")
	router.HandleFunc("/check-whatsapp-link", h.LinkStatus).Methods("GET")
}

// RegisterBotRoutes mounts the routes called by the messaging bot.
func (h *WhatsappHandler) RegisterBotRoutes(router *mux.Router) {
	router.HandleFunc("/bot/verify-whatsapp", h.VerifyCode).Methods("POST")
}

// IssueCode creates a verification code for the authenticated user. A
// user_id in the body, when present, must name that same user.
func (h *WhatsappHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		ErrorResponse(w, r, domain.Unauthorized("whatsapp.issue", "Não autenticado."))
		return
	}

	if r.ContentLength != 0 {
		var req models.LinkRequest
		if err := decodeJSON(r, &req); err != nil {
			ErrorResponse(w, r, err)
			return
		}
		if req.UserID != "" && string(req.UserID) != strconv.FormatUint(uint64(userID), 10) {
			ErrorResponse(w, r, domain.Forbidden("whatsapp.issue", "Você só pode vincular a sua própria conta."))
			return
		}
	}

	res, err := h.verificationService.IssueCode(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// LinkStatus reports whether the user has a verified number. Defaults to the
// authenticated user when no user_id is given.
func (h *WhatsappHandler) LinkStatus(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("user_id")
	if ref == "" {
		userID, err := utils.GetUserIDFromContext(r.Context())
		if err != nil {
			ErrorResponse(w, r, domain.Unauthorized("whatsapp.status", "Não autenticado."))
			return
		}
		ref = strconv.FormatUint(uint64(userID), 10)
	}

	res, err := h.verificationService.LinkStatus(r.Context(), ref)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// VerifyCode is called by the bot when a user sends their code
func (h *WhatsappHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	if h.botToken != "" {
		got := r.Header.Get(BotTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.botToken)) != 1 {
			ErrorResponse(w, r, domain.Unauthorized("whatsapp.verify", "Token do bot inválido."))
			return
		}
	}

	var req models.VerifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	res, err := h.verificationService.VerifyCode(r.Context(), req.Code, req.Phone)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
