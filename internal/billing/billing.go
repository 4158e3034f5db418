package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Provider is the slice of the payment provider API the service consumes.
type Provider interface {
	// CreatePreference creates a one-off checkout and returns its redirect URL.
	CreatePreference(ctx context.Context, params PreferenceParams) (*Checkout, error)

	// CreateSubscription creates a recurring subscription (preapproval).
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Checkout, error)

	// GetPayment fetches the authoritative detail of a payment.
	// Returns ErrPaymentNotFound when the provider does not know the id.
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)

	// GetSubscription fetches a recurring subscription.
	// Returns ErrSubscriptionNotFound when the provider does not know the id.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// CancelSubscription stops future charges of a recurring subscription.
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// PreferenceParams describes a one-off checkout.
type PreferenceParams struct {
	Title             string
	Amount            float64
	Currency          string
	ExternalReference string
	NotificationURL   string
	SuccessURL        string
	FailureURL        string
	PendingURL        string
	PayerEmail        string
}

// SubscriptionParams describes a recurring checkout.
type SubscriptionParams struct {
	Reason            string
	Amount            float64
	Currency          string
	Frequency         int
	FrequencyType     string // "months" or "days"
	ExternalReference string
	PayerEmail        string
	BackURL           string
}

// Checkout is a created provider checkout session.
type Checkout struct {
	ID  string
	URL string
}

// Payment is the provider view of a single payment.
type Payment struct {
	ID                string
	Status            string
	StatusDetail      string
	PayerEmail        string
	ExternalReference string
	Amount            float64
}

// Subscription is the provider view of a recurring subscription.
type Subscription struct {
	ID                string
	Status            string
	PayerEmail        string
	ExternalReference string
	Amount            float64
}

// Provider payment statuses that the reconciler interprets.
const (
	StatusApproved   = "approved"
	StatusAuthorized = "authorized"
	StatusCancelled  = "cancelled"
	StatusPending    = "pending"
)

// Reference is the external reference embedded in a checkout:
// "<userID>|<planType>|<planID>". Older checkouts omit the plan id.
type Reference struct {
	UserID   string
	PlanType string
	PlanID   uint
}

func (r Reference) String() string {
	if r.PlanID == 0 {
		return fmt.Sprintf("%s|%s", r.UserID, r.PlanType)
	}
	return fmt.Sprintf("%s|%s|%d", r.UserID, r.PlanType, r.PlanID)
}

// ParseReference decodes an external reference. ok is false when the value
// does not carry at least a user id.
func ParseReference(s string) (Reference, bool) {
	parts := strings.Split(strings.TrimSpace(s), "|")
	if len(parts) == 0 || parts[0] == "" {
		return Reference{}, false
	}

	ref := Reference{UserID: parts[0]}
	if len(parts) > 1 {
		ref.PlanType = parts[1]
	}
	if len(parts) > 2 {
		if id, err := strconv.ParseUint(parts[2], 10, 64); err == nil {
			ref.PlanID = uint(id)
		}
	}
	return ref, true
}

// Unconfigured is used when no access token is set. Every call fails with
// ErrNotConfigured so checkouts surface an upstream error instead of panicking.
type Unconfigured struct{}

func (Unconfigured) CreatePreference(context.Context, PreferenceParams) (*Checkout, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) CreateSubscription(context.Context, SubscriptionParams) (*Checkout, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) GetPayment(context.Context, string) (*Payment, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) GetSubscription(context.Context, string) (*Subscription, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) CancelSubscription(context.Context, string) error {
	return ErrNotConfigured
}
