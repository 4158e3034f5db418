package notify

import (
	"context"
)

// Family actions understood by the bot.
const (
	ActionInvited = "invited_external"
	ActionRemoved = "removed"
)

// FamilyMessage asks the bot to message a family invitee or former member.
type FamilyMessage struct {
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	OwnerName string `json:"ownerName"`
	Action    string `json:"action"`
}

// PaymentMessage tells the bot a payment changed a plan.
type PaymentMessage struct {
	UserID uint    `json:"user_id"`
	Plano  string  `json:"plano"`
	Status string  `json:"status"`
	Valor  float64 `json:"valor"`
}

// Notifier delivers messages to the messaging bot.
type Notifier interface {
	NotifyFamily(ctx context.Context, msg FamilyMessage) error
	NotifyPayment(ctx context.Context, msg PaymentMessage) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) NotifyFamily(context.Context, FamilyMessage) error   { return nil }
func (Nop) NotifyPayment(context.Context, PaymentMessage) error { return nil }
