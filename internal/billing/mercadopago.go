package billing

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preapproval"
	"github.com/mercadopago/sdk-go/pkg/preference"
)

// MercadoPago implements Provider on top of the official SDK.
type MercadoPago struct {
	payments      payment.Client
	preferences   preference.Client
	subscriptions preapproval.Client
}

// NewMercadoPago builds the provider from an access token.
func NewMercadoPago(accessToken string) (*MercadoPago, error) {
	if accessToken == "" {
		return nil, ErrNotConfigured
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, err
	}

	return &MercadoPago{
		payments:      payment.NewClient(cfg),
		preferences:   preference.NewClient(cfg),
		subscriptions: preapproval.NewClient(cfg),
	}, nil
}

func (m *MercadoPago) CreatePreference(ctx context.Context, params PreferenceParams) (*Checkout, error) {
	req := preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:      params.Title,
				Quantity:   1,
				UnitPrice:  params.Amount,
				CurrencyID: params.Currency,
			},
		},
		BackURLs: &preference.BackURLsRequest{
			Success: params.SuccessURL,
			Failure: params.FailureURL,
			Pending: params.PendingURL,
		},
		NotificationURL:   params.NotificationURL,
		AutoReturn:        "approved",
		ExternalReference: params.ExternalReference,
	}
	if params.PayerEmail != "" {
		req.Payer = &preference.PayerRequest{Email: params.PayerEmail}
	}

	resp, err := m.preferences.Create(ctx, req)
	if err != nil {
		return nil, wrapProviderError("preference.create", err)
	}

	url := resp.InitPoint
	if url == "" {
		url = resp.SandboxInitPoint
	}
	return &Checkout{ID: resp.ID, URL: url}, nil
}

func (m *MercadoPago) CreateSubscription(ctx context.Context, params SubscriptionParams) (*Checkout, error) {
	req := preapproval.Request{
		Reason:            params.Reason,
		ExternalReference: params.ExternalReference,
		PayerEmail:        params.PayerEmail,
		BackURL:           params.BackURL,
		AutoRecurring: &preapproval.AutoRecurringRequest{
			Frequency:         params.Frequency,
			FrequencyType:     params.FrequencyType,
			TransactionAmount: params.Amount,
			CurrencyID:        params.Currency,
		},
	}

	resp, err := m.subscriptions.Create(ctx, req)
	if err != nil {
		return nil, wrapProviderError("preapproval.create", err)
	}
	return &Checkout{ID: resp.ID, URL: resp.InitPoint}, nil
}

func (m *MercadoPago) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	id, err := strconv.Atoi(paymentID)
	if err != nil {
		// non numeric ids never exist on the provider side
		return nil, ErrPaymentNotFound
	}

	resp, err := m.payments.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrPaymentNotFound
		}
		return nil, wrapProviderError("payment.get", err)
	}

	return &Payment{
		ID:                strconv.Itoa(resp.ID),
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		PayerEmail:        resp.Payer.Email,
		ExternalReference: resp.ExternalReference,
		Amount:            resp.TransactionAmount,
	}, nil
}

func (m *MercadoPago) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	resp, err := m.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, wrapProviderError("preapproval.get", err)
	}

	return &Subscription{
		ID:                resp.ID,
		Status:            resp.Status,
		PayerEmail:        resp.PayerEmail,
		ExternalReference: resp.ExternalReference,
		Amount:            resp.AutoRecurring.TransactionAmount,
	}, nil
}

func (m *MercadoPago) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := m.subscriptions.Update(ctx, subscriptionID, preapproval.UpdateRequest{Status: StatusCancelled})
	if err != nil {
		if isNotFound(err) {
			return ErrSubscriptionNotFound
		}
		return wrapProviderError("preapproval.cancel", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *mperror.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func wrapProviderError(op string, err error) error {
	pe := &ProviderError{Op: op, Err: err}
	var respErr *mperror.ResponseError
	if errors.As(err, &respErr) {
		pe.StatusCode = respErr.StatusCode
		pe.Body = respErr.Message
	}
	return pe
}
