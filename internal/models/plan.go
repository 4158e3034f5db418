package models

import (
	"time"
)

// Plan statuses. Provider statuses outside this set are stored as-is.
const (
	PlanStatusPending   = "pending"
	PlanStatusApproved  = "approved"
	PlanStatusCancelled = "cancelled"
	PlanStatusExpired   = "expired"
)

// Plan modes
const (
	ModeIndividual = "individual"
	ModeFamiliar   = "familiar"
)

// Billing cadences accepted at checkout ("" is a one-off payment)
const (
	CadenceOnce    = ""
	CadenceMonthly = "mensal"
	CadenceYearly  = "anual"
)

// Plan is a subscription record owned by exactly one user.
type Plan struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `json:"userId" gorm:"column:user_id;not null;index"`
	Type          string     `json:"type"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status" gorm:"default:pending;index"`
	Amount        float64    `json:"amount"`
	Cadence       string     `json:"cadence"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty" gorm:"column:expires_at"`
	PreferenceID  string     `json:"preferenceId,omitempty" gorm:"column:preference_id;index"`
	PreapprovalID string     `json:"preapprovalId,omitempty" gorm:"column:preapproval_id;index"`
	CreatedAt     time.Time  `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt     time.Time  `json:"updatedAt" gorm:"column:updated_at"`
	User          *User      `json:"-" gorm:"foreignKey:UserID"`
}

// TableName specifies the table name for Plan model
func (Plan) TableName() string {
	return "plans"
}

// IsRecurring reports whether the plan is billed through a provider subscription.
func (p Plan) IsRecurring() bool {
	return p.Cadence != CadenceOnce
}

// IsSettled reports whether the plan is past the point a payment event can
// move it: approved, cancelled or expired.
func (p Plan) IsSettled() bool {
	switch p.Status {
	case PlanStatusApproved, PlanStatusCancelled, PlanStatusExpired:
		return true
	}
	return false
}

// StatusLabel maps a plan status to the label shown to users.
func StatusLabel(status string) string {
	switch status {
	case PlanStatusApproved:
		return "Ativo"
	case PlanStatusPending:
		return "Pendente"
	case PlanStatusCancelled:
		return "Cancelado"
	case PlanStatusExpired:
		return "Expirado"
	case "":
		return "Inativo"
	default:
		return status
	}
}

// CheckoutRequest is the body of POST /checkout
type CheckoutRequest struct {
	UserID      FlexibleID `json:"user_id" validate:"required"`
	Plano       string     `json:"plano" validate:"required"`
	Recorrencia string     `json:"recorrencia" validate:"omitempty,oneof=mensal anual"`
}

// CheckoutResponse is returned by POST /checkout
type CheckoutResponse struct {
	Success      bool   `json:"success"`
	CheckoutURL  string `json:"checkout_url"`
	PreferenceID string `json:"preference_id"`
	PlanID       uint   `json:"plan_id"`
	Message      string `json:"message"`
}

// CancelPlanRequest is the body of POST /cancel-plan
type CancelPlanRequest struct {
	UserID FlexibleID `json:"user_id" validate:"required"`
}

// StatusResponse is returned by GET /status/{user_id}
type StatusResponse struct {
	Status        string     `json:"status"`
	RawStatus     string     `json:"raw_status,omitempty"`
	Type          string     `json:"type"`
	Mode          string     `json:"mode"`
	OwnerID       uint       `json:"owner_id"`
	UserID        uint       `json:"user_id"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	DaysRemaining *int       `json:"days_remaining,omitempty"`
}
