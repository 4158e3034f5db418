package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/billing"
	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/telemetry"
)

const currencyBRL = "BRL"

// CheckoutService creates payment provider checkouts for new plans
type CheckoutService interface {
	Checkout(ctx context.Context, req models.CheckoutRequest) (models.CheckoutResponse, error)
}

type checkoutService struct {
	db       *gorm.DB
	plans    PlanService
	provider billing.Provider
	baseURL  string
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(db *gorm.DB, plans PlanService, provider billing.Provider, baseURL string) CheckoutService {
	if provider == nil {
		provider = billing.Unconfigured{}
	}
	return &checkoutService{
		db:       db,
		plans:    plans,
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func (s *checkoutService) Checkout(ctx context.Context, req models.CheckoutRequest) (models.CheckoutResponse, error) {
	const op = "checkout.create"

	planType := req.Plano
	if planType == "" {
		planType = models.ModeIndividual
	}
	if _, err := QuotePlan(planType, req.Recorrencia); err != nil {
		return models.CheckoutResponse{}, domain.Invalid(op, "Plano ou recorrência inválidos.")
	}

	user, err := findUser(s.db.WithContext(ctx), string(req.UserID))
	if err != nil {
		return models.CheckoutResponse{}, domain.Internal(op, err)
	}
	if user == nil {
		return models.CheckoutResponse{}, domain.NotFound(op, "Usuário não encontrado.")
	}

	recurring := req.Recorrencia != models.CadenceOnce
	if recurring && user.EmailValue() == "" {
		return models.CheckoutResponse{}, domain.Invalid(op, "É necessário um e-mail para assinaturas recorrentes.")
	}

	plan, quote, err := s.plans.Create(ctx, user.ID, planType, req.Recorrencia)
	if err != nil {
		return models.CheckoutResponse{}, err
	}

	ref := billing.Reference{
		UserID:   strconv.FormatUint(uint64(user.ID), 10),
		PlanType: plan.Type,
		PlanID:   plan.ID,
	}

	var checkout *billing.Checkout
	if recurring {
		checkout, err = s.provider.CreateSubscription(ctx, billing.SubscriptionParams{
			Reason:            quote.Title,
			Amount:            quote.Amount,
			Currency:          currencyBRL,
			Frequency:         quote.Frequency,
			FrequencyType:     quote.FrequencyType,
			ExternalReference: ref.String(),
			PayerEmail:        user.EmailValue(),
			BackURL:           s.baseURL + "/pagamento-sucesso",
		})
	} else {
		checkout, err = s.provider.CreatePreference(ctx, billing.PreferenceParams{
			Title:             quote.Title,
			Amount:            quote.Amount,
			Currency:          currencyBRL,
			ExternalReference: ref.String(),
			NotificationURL:   s.baseURL + "/webhook",
			SuccessURL:        s.baseURL + "/pagamento-sucesso",
			FailureURL:        s.baseURL + "/pagamento-erro",
			PendingURL:        s.baseURL + "/pagamento-pendente",
			PayerEmail:        user.EmailValue(),
		})
	}
	if err != nil {
		if _, _, cerr := s.plans.TransitionPlan(ctx, plan.ID, models.PlanStatusCancelled); cerr != nil {
			log.Ctx(ctx).Error().Err(cerr).Uint("plan_id", plan.ID).Msg("could not cancel plan after provider failure")
		}
		return models.CheckoutResponse{}, domain.Upstream(op, err)
	}

	preferenceID, preapprovalID := checkout.ID, ""
	if recurring {
		preferenceID, preapprovalID = "", checkout.ID
	}
	if err := s.plans.AttachCheckout(ctx, plan.ID, preferenceID, preapprovalID); err != nil {
		return models.CheckoutResponse{}, err
	}

	telemetry.Business.ObserveCheckout(plan.Type, plan.Cadence)
	log.Ctx(ctx).Info().
		Uint("user_id", user.ID).
		Uint("plan_id", plan.ID).
		Str("type", plan.Type).
		Str("cadence", plan.Cadence).
		Str("checkout_id", checkout.ID).
		Msg("checkout created")

	return models.CheckoutResponse{
		Success:      true,
		CheckoutURL:  checkout.URL,
		PreferenceID: checkout.ID,
		PlanID:       plan.ID,
		Message:      fmt.Sprintf("Plano %s criado e aguardando pagamento.", plan.Type),
	}, nil
}
