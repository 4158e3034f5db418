package models

import (
	"bytes"
	"encoding/json"
)

// Message represents a WebSocket message
type Message struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
}

// PlanStatusEvent is broadcast whenever a plan changes status.
type PlanStatusEvent struct {
	PlanID uint   `json:"plan_id"`
	UserID uint   `json:"user_id"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Label  string `json:"label"`
}

// FlexibleID accepts both JSON strings and numbers. The payment provider
// sends data.id either way, and clients send user references either way.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

// WebhookEvent is the notification body posted by the payment provider.
type WebhookEvent struct {
	ID     FlexibleID  `json:"id,omitempty"`
	Type   string      `json:"type"`
	Action string      `json:"action"`
	Data   WebhookData `json:"data"`
}

type WebhookData struct {
	ID FlexibleID `json:"id"`
}

// LinkRequest is the optional body of POST /api/link-whatsapp. UserID must
// match the authenticated user.
type LinkRequest struct {
	UserID FlexibleID `json:"user_id"`
}

// LinkCodeResponse is returned when a verification code is issued.
type LinkCodeResponse struct {
	Code      string `json:"code"`
	ExpiresIn int    `json:"expires_in"`
}

// LinkStatusResponse is returned by GET /api/check-whatsapp-link
type LinkStatusResponse struct {
	Linked bool   `json:"linked"`
	Phone  string `json:"phone,omitempty"`
	Status string `json:"status"`
}

// VerifyCodeRequest is the body of POST /bot/verify-whatsapp
type VerifyCodeRequest struct {
	Code  string `json:"code" validate:"required"`
	Phone string `json:"phone" validate:"required"`
}

// ConfirmResult reports the outcome of a contact confirmation.
type ConfirmResult struct {
	UserID uint   `json:"user_id"`
	Phone  string `json:"phone"`
	Linked bool   `json:"linked"`
}
