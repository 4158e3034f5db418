package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/billing"
	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/notify"
	"github.com/vikasavnish/savepad/internal/telemetry"
)

// Provider event topics
const (
	EventPayment      = "payment"
	EventPreapproval  = "preapproval"
	EventSubscription = "subscription_preapproval"
)

// Reconcile outcomes. All of them are acknowledged to the provider.
const (
	OutcomeIgnored      = "ignored"
	OutcomeUnknownID    = "unknown_id"
	OutcomeNoUser       = "no_user"
	OutcomeNoPlan       = "no_plan"
	OutcomeUnchanged    = "unchanged"
	OutcomeTransitioned = "transitioned"
)

// WebhookEvent is the provider notification reduced to what reconciliation needs.
type WebhookEvent struct {
	Type   string
	DataID string
}

// WebhookResult describes what a reconciliation did.
type WebhookResult struct {
	Outcome string `json:"outcome"`
	PlanID  uint   `json:"plan_id,omitempty"`
	Status  string `json:"status,omitempty"`
}

// WebhookService reconciles payment provider events with local plans
type WebhookService interface {
	Reconcile(ctx context.Context, evt WebhookEvent) (WebhookResult, error)
}

type webhookService struct {
	db       *gorm.DB
	plans    PlanService
	provider billing.Provider
	notifier notify.Notifier
}

// NewWebhookService creates a new webhook reconciler
func NewWebhookService(db *gorm.DB, plans PlanService, provider billing.Provider, notifier notify.Notifier) WebhookService {
	if provider == nil {
		provider = billing.Unconfigured{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &webhookService{
		db:       db,
		plans:    plans,
		provider: provider,
		notifier: notifier,
	}
}

func (s *webhookService) Reconcile(ctx context.Context, evt WebhookEvent) (WebhookResult, error) {
	const op = "webhook.reconcile"

	if evt.DataID == "" {
		telemetry.Business.ObserveWebhook(evt.Type, "malformed")
		return WebhookResult{}, domain.Invalid(op, "Evento sem identificador de pagamento.")
	}

	var res WebhookResult
	var err error
	switch evt.Type {
	case EventPayment:
		res, err = s.reconcilePayment(ctx, evt.DataID)
	case EventPreapproval, EventSubscription:
		res, err = s.reconcileSubscription(ctx, evt.DataID)
	default:
		res = WebhookResult{Outcome: OutcomeIgnored}
	}

	if err != nil {
		telemetry.Business.ObserveWebhook(evt.Type, "failed")
		return WebhookResult{}, err
	}

	telemetry.Business.ObserveWebhook(evt.Type, res.Outcome)
	log.Ctx(ctx).Info().
		Str("type", evt.Type).
		Str("data_id", evt.DataID).
		Str("outcome", res.Outcome).
		Uint("plan_id", res.PlanID).
		Str("status", res.Status).
		Msg("webhook reconciled")
	return res, nil
}

func (s *webhookService) reconcilePayment(ctx context.Context, paymentID string) (WebhookResult, error) {
	const op = "webhook.payment"

	payment, err := s.provider.GetPayment(ctx, paymentID)
	if errors.Is(err, billing.ErrPaymentNotFound) {
		// sandbox and test pings reference payments that do not exist
		return WebhookResult{Outcome: OutcomeUnknownID}, nil
	}
	if err != nil {
		return WebhookResult{}, domain.Upstream(op, err)
	}

	db := s.db.WithContext(ctx)
	ref, hasRef := billing.ParseReference(payment.ExternalReference)

	var user *models.User
	if hasRef {
		if user, err = findUser(db, ref.UserID); err != nil {
			return WebhookResult{}, domain.Internal(op, err)
		}
	}
	if user == nil && payment.PayerEmail != "" {
		if user, err = findUserByEmail(db, payment.PayerEmail); err != nil {
			return WebhookResult{}, domain.Internal(op, err)
		}
	}
	if user == nil {
		log.Ctx(ctx).Warn().
			Str("payment_id", payment.ID).
			Str("external_reference", payment.ExternalReference).
			Msg("payment does not match any user")
		return WebhookResult{Outcome: OutcomeNoUser, Status: payment.Status}, nil
	}

	plan, changed, err := s.transitionForUser(ctx, user.ID, ref.PlanID, payment.Status)
	if domain.IsCode(err, domain.ENOTFOUND) {
		return WebhookResult{Outcome: OutcomeNoPlan, Status: payment.Status}, nil
	}
	if err != nil {
		return WebhookResult{}, err
	}

	amount := payment.Amount
	if amount == 0 {
		amount = plan.Amount
	}
	return s.finish(ctx, plan, changed, amount), nil
}

// transitionForUser matches the plan id carried in the external reference
// exactly and falls back to the user's most recent pending plan. A matched
// plan that is already settled is left as is.
func (s *webhookService) transitionForUser(ctx context.Context, userID, planID uint, status string) (models.Plan, bool, error) {
	if planID != 0 {
		var plan models.Plan
		err := s.db.WithContext(ctx).Select("id", "user_id").First(&plan, planID).Error
		if err == nil && plan.UserID == userID {
			return s.plans.SettlePayment(ctx, planID, status)
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Plan{}, false, domain.Internal("webhook.payment", err)
		}
	}
	return s.plans.Transition(ctx, userID, status)
}

// planFromReference returns the plan named by an external reference when the
// referenced user owns it.
func (s *webhookService) planFromReference(ctx context.Context, externalRef string) (*models.Plan, error) {
	const op = "webhook.subscription"

	ref, ok := billing.ParseReference(externalRef)
	if !ok || ref.PlanID == 0 {
		return nil, nil
	}

	db := s.db.WithContext(ctx)
	plan, err := firstPlan(db.Where("id = ?", ref.PlanID))
	if err != nil {
		return nil, domain.Internal(op, err)
	}
	if plan == nil {
		return nil, nil
	}

	user, err := findUser(db, ref.UserID)
	if err != nil {
		return nil, domain.Internal(op, err)
	}
	if user == nil || user.ID != plan.UserID {
		log.Ctx(ctx).Warn().
			Str("external_reference", externalRef).
			Uint("plan_id", plan.ID).
			Msg("subscription reference does not own the plan")
		return nil, nil
	}
	return plan, nil
}

func (s *webhookService) reconcileSubscription(ctx context.Context, subscriptionID string) (WebhookResult, error) {
	const op = "webhook.subscription"

	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if errors.Is(err, billing.ErrSubscriptionNotFound) {
		return WebhookResult{Outcome: OutcomeUnknownID}, nil
	}
	if err != nil {
		return WebhookResult{}, domain.Upstream(op, err)
	}

	plan, err := s.plans.FindByPreapproval(ctx, sub.ID)
	if err != nil {
		return WebhookResult{}, err
	}
	if plan == nil {
		if plan, err = s.planFromReference(ctx, sub.ExternalReference); err != nil {
			return WebhookResult{}, err
		}
	}
	if plan == nil {
		return WebhookResult{Outcome: OutcomeNoPlan, Status: sub.Status}, nil
	}

	updated, changed, err := s.plans.TransitionPlan(ctx, plan.ID, subscriptionStatus(sub.Status))
	if domain.IsCode(err, domain.ENOTFOUND) {
		return WebhookResult{Outcome: OutcomeNoPlan, Status: sub.Status}, nil
	}
	if err != nil {
		return WebhookResult{}, err
	}

	amount := sub.Amount
	if amount == 0 {
		amount = updated.Amount
	}
	return s.finish(ctx, updated, changed, amount), nil
}

// finish notifies the bot of a new approval. A failed notification never
// fails the webhook.
func (s *webhookService) finish(ctx context.Context, plan models.Plan, changed bool, amount float64) WebhookResult {
	res := WebhookResult{Outcome: OutcomeUnchanged, PlanID: plan.ID, Status: plan.Status}
	if !changed {
		return res
	}
	res.Outcome = OutcomeTransitioned

	if plan.Status == models.PlanStatusApproved {
		err := s.notifier.NotifyPayment(ctx, notify.PaymentMessage{
			UserID: plan.UserID,
			Plano:  plan.Type,
			Status: plan.Status,
			Valor:  amount,
		})
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Uint("plan_id", plan.ID).Msg("payment notification failed")
		}
	}
	return res
}

// subscriptionStatus maps preapproval statuses onto plan statuses.
func subscriptionStatus(status string) string {
	switch status {
	case billing.StatusAuthorized:
		return models.PlanStatusApproved
	case billing.StatusCancelled:
		return models.PlanStatusCancelled
	default:
		return status
	}
}
