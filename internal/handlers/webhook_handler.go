package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/vikasavnish/savepad/internal/billing"
	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/services"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives payment provider notifications
type WebhookHandler struct {
	webhookService services.WebhookService
	secret         string
}

// NewWebhookHandler creates a webhook handler. An empty secret disables
// signature verification.
func NewWebhookHandler(webhookService services.WebhookService, secret string) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		secret:         secret,
	}
}

func (h *WebhookHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhook", h.Receive).Methods("POST")
}

// Receive acknowledges every handled or benign event with 200.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	const op = "webhook.receive"

	evt, err := parseWebhookEvent(r, io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		ErrorResponse(w, r, domain.WrapError(err, domain.EINVALID, op, "Payload de webhook inválido."))
		return
	}

	if h.secret != "" {
		err := billing.VerifySignature(h.secret, r.Header.Get("x-signature"), r.Header.Get("x-request-id"), evt.DataID)
		if err != nil {
			ErrorResponse(w, r, domain.WrapError(err, domain.EUNAUTHORIZED, op, "Assinatura inválida."))
			return
		}
	}

	log.Ctx(r.Context()).Debug().Str("type", evt.Type).Str("data_id", evt.DataID).Msg("webhook received")

	res, err := h.webhookService.Reconcile(r.Context(), evt)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// parseWebhookEvent merges the JSON body with the query string. The provider
// sends the topic and id in either place depending on the notification kind.
func parseWebhookEvent(r *http.Request, body io.Reader) (services.WebhookEvent, error) {
	q := r.URL.Query()
	evt := services.WebhookEvent{
		Type:   firstNonEmpty(q.Get("type"), q.Get("topic")),
		DataID: firstNonEmpty(q.Get("data.id"), q.Get("id")),
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return evt, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return evt, nil
	}

	var payload models.WebhookEvent
	if err := json.Unmarshal(raw, &payload); err != nil {
		return evt, err
	}
	if payload.Type != "" {
		evt.Type = payload.Type
	}
	if payload.Data.ID != "" {
		evt.DataID = string(payload.Data.ID)
	}
	return evt, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
