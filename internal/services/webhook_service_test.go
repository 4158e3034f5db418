package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/billing"
	"github.com/vikasavnish/savepad/internal/domain"
	"github.com/vikasavnish/savepad/internal/models"
)

type webhookFixture struct {
	db       *gorm.DB
	provider *fakeProvider
	notifier *recordingNotifier
	plans    PlanService
	checkout CheckoutService
	webhook  WebhookService
}

func newWebhookFixture(t *testing.T) (*webhookFixture, func() []models.Plan) {
	t.Helper()
	database := newTestDB(t)
	f := &webhookFixture{db: database, provider: newFakeProvider(), notifier: &recordingNotifier{}}
	f.plans = NewPlanService(database, f.provider, nil)
	f.checkout = NewCheckoutService(database, f.plans, f.provider, "https://api.savepad.test/")
	f.webhook = NewWebhookService(database, f.plans, f.provider, f.notifier)

	allPlans := func() []models.Plan {
		var plans []models.Plan
		require.NoError(t, database.Order("id").Find(&plans).Error)
		return plans
	}

	createUser(t, database, "Ana", "ana@example.com", "")
	return f, allPlans
}

func TestCheckoutOneOff(t *testing.T) {
	f, allPlans := newWebhookFixture(t)

	resp, err := f.checkout.Checkout(context.Background(), models.CheckoutRequest{UserID: "ana@example.com", Plano: models.ModeFamiliar})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.CheckoutURL, "https://mp.test/checkout/"))
	assert.NotZero(t, resp.PlanID)

	require.Len(t, f.provider.preferences, 1)
	pref := f.provider.preferences[0]
	assert.Equal(t, 30.0, pref.Amount)
	assert.Equal(t, "BRL", pref.Currency)
	assert.Equal(t, "https://api.savepad.test/webhook", pref.NotificationURL)
	assert.Equal(t, fmt.Sprintf("1|familiar|%d", resp.PlanID), pref.ExternalReference)

	plans := allPlans()
	require.Len(t, plans, 1)
	assert.Equal(t, models.PlanStatusPending, plans[0].Status)
	assert.Equal(t, resp.PreferenceID, plans[0].PreferenceID)
	assert.Empty(t, plans[0].PreapprovalID)
}

func TestCheckoutRecurring(t *testing.T) {
	f, allPlans := newWebhookFixture(t)

	resp, err := f.checkout.Checkout(context.Background(), models.CheckoutRequest{UserID: "1", Plano: models.ModeIndividual, Recorrencia: models.CadenceYearly})
	require.NoError(t, err)

	require.Len(t, f.provider.created, 1)
	sub := f.provider.created[0]
	assert.Equal(t, 150.0, sub.Amount)
	assert.Equal(t, 12, sub.Frequency)
	assert.Equal(t, "ana@example.com", sub.PayerEmail)

	plans := allPlans()
	require.Len(t, plans, 1)
	assert.Equal(t, resp.PreferenceID, plans[0].PreapprovalID)
	assert.Nil(t, plans[0].ExpiresAt)
}

func TestCheckoutErrors(t *testing.T) {
	f, allPlans := newWebhookFixture(t)
	ctx := context.Background()

	_, err := f.checkout.Checkout(ctx, models.CheckoutRequest{UserID: "1", Plano: "premium"})
	assert.True(t, domain.IsCode(err, domain.EINVALID))

	_, err = f.checkout.Checkout(ctx, models.CheckoutRequest{UserID: "404", Plano: models.ModeIndividual})
	assert.True(t, domain.IsCode(err, domain.ENOTFOUND))

	f.provider.err = errors.New("provider down")
	_, err = f.checkout.Checkout(ctx, models.CheckoutRequest{UserID: "1", Plano: models.ModeIndividual})
	assert.True(t, domain.IsCode(err, domain.EUPSTREAM))

	plans := allPlans()
	require.Len(t, plans, 1)
	assert.Equal(t, models.PlanStatusCancelled, plans[0].Status)
}

func TestWebhookApprovesPlanFromExternalReference(t *testing.T) {
	f, _ := newWebhookFixture(t)
	ctx := context.Background()

	first, err := f.checkout.Checkout(ctx, models.CheckoutRequest{UserID: "1", Plano: models.ModeIndividual})
	require.NoError(t, err)
	// a second, newer pending checkout must not steal the approval
	_, err = f.checkout.Checkout(ctx, models.CheckoutRequest{UserID: "1", Plano: models.ModeFamiliar})
	require.NoError(t, err)

	f.provider.payments["123"] = &billing.Payment{
		ID:                "123",
		Status:            billing.StatusApproved,
		ExternalReference: fmt.Sprintf("1|individual|%d", first.PlanID),
		Amount:            15,
	}

	res, err := f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "123"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, res.Outcome)
	assert.Equal(t, first.PlanID, res.PlanID)

	require.Len(t, f.notifier.payments, 1)
	assert.Equal(t, uint(1), f.notifier.payments[0].UserID)
	assert.Equal(t, models.ModeIndividual, f.notifier.payments[0].Plano)
	assert.Equal(t, 15.0, f.notifier.payments[0].Valor)
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	f, allPlans := newWebhookFixture(t)
	ctx := context.Background()

	_, err := f.checkout.Checkout(ctx, models.CheckoutRequest{UserID: "1", Plano: models.ModeIndividual})
	require.NoError(t, err)

	// legacy reference without a plan id falls back to most recent pending
	f.provider.payments["77"] = &billing.Payment{ID: "77", Status: billing.StatusApproved, ExternalReference: "1|individual"}

	for i := 0; i < 2; i++ {
		_, err := f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "77"})
		require.NoError(t, err, "delivery %d", i+1)
		assert.Equal(t, models.PlanStatusApproved, allPlans()[0].Status)
	}
}

func TestWebhookResolvesPayerEmail(t *testing.T) {
	f, allPlans := newWebhookFixture(t)
	ctx := context.Background()

	_, _, err := f.plans.Create(ctx, 1, models.ModeIndividual, models.CadenceOnce)
	require.NoError(t, err)

	f.provider.payments["5"] = &billing.Payment{ID: "5", Status: billing.StatusApproved, PayerEmail: "ANA@example.com"}
	res, err := f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "5"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, res.Outcome)
	assert.Equal(t, models.PlanStatusApproved, allPlans()[0].Status)
}

func TestWebhookBenignCases(t *testing.T) {
	f, _ := newWebhookFixture(t)
	ctx := context.Background()

	res, err := f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "404"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownID, res.Outcome)

	f.provider.payments["9"] = &billing.Payment{ID: "9", Status: billing.StatusApproved, PayerEmail: "ghost@example.com"}
	res, err = f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "9"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoUser, res.Outcome)

	f.provider.payments["10"] = &billing.Payment{ID: "10", Status: billing.StatusApproved, ExternalReference: "1|individual"}
	res, err = f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "10"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoPlan, res.Outcome)

	res, err = f.webhook.Reconcile(ctx, WebhookEvent{Type: "merchant_order", DataID: "1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	assert.Empty(t, f.notifier.payments)
}

func TestWebhookErrors(t *testing.T) {
	f, _ := newWebhookFixture(t)
	ctx := context.Background()

	_, err := f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment})
	assert.True(t, domain.IsCode(err, domain.EINVALID))

	f.provider.err = &billing.ProviderError{Op: "payment.get", StatusCode: 500, Body: "oops"}
	_, err = f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "1"})
	assert.True(t, domain.IsCode(err, domain.EUPSTREAM))
}

func TestWebhookNotificationFailureIsSwallowed(t *testing.T) {
	f, allPlans := newWebhookFixture(t)
	ctx := context.Background()
	f.notifier.err = errors.New("bot offline")

	_, _, err := f.plans.Create(ctx, 1, models.ModeIndividual, models.CadenceOnce)
	require.NoError(t, err)
	f.provider.payments["8"] = &billing.Payment{ID: "8", Status: billing.StatusApproved, ExternalReference: "1|individual"}

	res, err := f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "8"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, res.Outcome)
	assert.Equal(t, models.PlanStatusApproved, allPlans()[0].Status)
}

func TestWebhookSubscriptionAuthorized(t *testing.T) {
	f, allPlans := newWebhookFixture(t)
	ctx := context.Background()

	resp, err := f.checkout.Checkout(ctx, models.CheckoutRequest{UserID: "1", Plano: models.ModeFamiliar, Recorrencia: models.CadenceMonthly})
	require.NoError(t, err)

	f.provider.subscriptions[resp.PreferenceID] = &billing.Subscription{
		ID:     resp.PreferenceID,
		Status: billing.StatusAuthorized,
		Amount: 30,
	}

	res, err := f.webhook.Reconcile(ctx, WebhookEvent{Type: EventSubscription, DataID: resp.PreferenceID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, res.Outcome)

	plan := allPlans()[0]
	assert.Equal(t, models.PlanStatusApproved, plan.Status)
	assert.Nil(t, plan.ExpiresAt)
	require.Len(t, f.notifier.payments, 1)

	f.provider.subscriptions[resp.PreferenceID].Status = billing.StatusCancelled
	_, err = f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPreapproval, DataID: resp.PreferenceID})
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCancelled, allPlans()[0].Status)
	assert.Len(t, f.notifier.payments, 1)
}

func TestWebhookThenStatusReportsActive(t *testing.T) {
	database := newTestDB(t)
	provider := newFakeProvider()
	plans := NewPlanService(database, provider, nil)
	webhook := NewWebhookService(database, plans, provider, nil)
	ctx := context.Background()

	var user models.User
	for i := 1; i <= 7; i++ {
		user = createUser(t, database, fmt.Sprintf("U%d", i), fmt.Sprintf("u%d@example.com", i), "")
	}
	require.Equal(t, uint(7), user.ID)

	_, _, err := plans.Create(ctx, 7, models.ModeIndividual, models.CadenceOnce)
	require.NoError(t, err)

	provider.payments["123"] = &billing.Payment{ID: "123", Status: billing.StatusApproved, PayerEmail: "u7@example.com"}
	_, err = webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "123"})
	require.NoError(t, err)

	st, err := plans.Status(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "Ativo", st.Status)
}

func TestWebhookRedeliveryKeepsExpiredPlanExpired(t *testing.T) {
	f, allPlans := newWebhookFixture(t)
	ctx := context.Background()

	resp, err := f.checkout.Checkout(ctx, models.CheckoutRequest{UserID: "1", Plano: models.ModeIndividual})
	require.NoError(t, err)
	f.provider.payments["200"] = &billing.Payment{
		ID:                "200",
		Status:            billing.StatusApproved,
		ExternalReference: fmt.Sprintf("1|individual|%d", resp.PlanID),
	}

	res, err := f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "200"})
	require.NoError(t, err)
	require.Equal(t, OutcomeTransitioned, res.Outcome)

	n, err := f.plans.ExpireDue(ctx, time.Now().AddDate(0, 0, 31))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	expiredAt := allPlans()[0].ExpiresAt
	require.NotNil(t, expiredAt)

	res, err = f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "200"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.Equal(t, models.PlanStatusExpired, res.Status)

	plan := allPlans()[0]
	assert.Equal(t, models.PlanStatusExpired, plan.Status)
	require.NotNil(t, plan.ExpiresAt)
	assert.True(t, expiredAt.Equal(*plan.ExpiresAt))
	assert.Len(t, f.notifier.payments, 1)
}

func TestWebhookRedeliveryKeepsCancelledPlanCancelled(t *testing.T) {
	f, allPlans := newWebhookFixture(t)
	ctx := context.Background()

	resp, err := f.checkout.Checkout(ctx, models.CheckoutRequest{UserID: "1", Plano: models.ModeFamiliar})
	require.NoError(t, err)
	f.provider.payments["300"] = &billing.Payment{
		ID:                "300",
		Status:            billing.StatusApproved,
		ExternalReference: fmt.Sprintf("1|familiar|%d", resp.PlanID),
	}

	_, err = f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "300"})
	require.NoError(t, err)
	_, err = f.plans.Cancel(ctx, "1")
	require.NoError(t, err)

	res, err := f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPayment, DataID: "300"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.Equal(t, models.PlanStatusCancelled, allPlans()[0].Status)
	assert.Len(t, f.notifier.payments, 1)
}

func TestWebhookSubscriptionReferenceMustOwnPlan(t *testing.T) {
	f, allPlans := newWebhookFixture(t)
	ctx := context.Background()

	bia := createUser(t, f.db, "Bia", "bia@example.com", "")
	plan, _, err := f.plans.Create(ctx, bia.ID, models.ModeIndividual, models.CadenceMonthly)
	require.NoError(t, err)

	f.provider.subscriptions["sub-foreign"] = &billing.Subscription{
		ID:                "sub-foreign",
		Status:            billing.StatusAuthorized,
		ExternalReference: fmt.Sprintf("1|individual|%d", plan.ID),
	}
	res, err := f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPreapproval, DataID: "sub-foreign"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoPlan, res.Outcome)
	assert.Equal(t, models.PlanStatusPending, allPlans()[0].Status)

	f.provider.subscriptions["sub-own"] = &billing.Subscription{
		ID:                "sub-own",
		Status:            billing.StatusAuthorized,
		ExternalReference: fmt.Sprintf("%d|individual|%d", bia.ID, plan.ID),
	}
	res, err = f.webhook.Reconcile(ctx, WebhookEvent{Type: EventPreapproval, DataID: "sub-own"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransitioned, res.Outcome)
	assert.Equal(t, models.PlanStatusApproved, allPlans()[0].Status)
}
