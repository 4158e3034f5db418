package services

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/billing"
	"github.com/vikasavnish/savepad/internal/config"
	"github.com/vikasavnish/savepad/internal/db"
	"github.com/vikasavnish/savepad/internal/models"
	"github.com/vikasavnish/savepad/internal/notify"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return database
}

func ref(id uint) models.FlexibleID {
	return models.FlexibleID(strconv.FormatUint(uint64(id), 10))
}

func createUser(t *testing.T, database *gorm.DB, name, email, phone string) models.User {
	t.Helper()
	user := models.User{Name: name, Status: models.UserStatusActive}
	if email != "" {
		user.Email = &email
	}
	if phone != "" {
		user.Phone = &phone
	}
	require.NoError(t, database.Create(&user).Error)
	return user
}

func createPlan(t *testing.T, database *gorm.DB, userID uint, mode, status string) models.Plan {
	t.Helper()
	plan := models.Plan{UserID: userID, Type: mode, Mode: mode, Status: status, Amount: 15}
	require.NoError(t, database.Create(&plan).Error)
	return plan
}

func countMembers(t *testing.T, database *gorm.DB, ownerID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, database.Model(&models.FamilyMember{}).Where("owner_id = ?", ownerID).Count(&n).Error)
	return n
}

type recordingNotifier struct {
	mu       sync.Mutex
	family   []notify.FamilyMessage
	payments []notify.PaymentMessage
	err      error
}

func (r *recordingNotifier) NotifyFamily(_ context.Context, msg notify.FamilyMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.family = append(r.family, msg)
	return r.err
}

func (r *recordingNotifier) NotifyPayment(_ context.Context, msg notify.PaymentMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, msg)
	return r.err
}

func (r *recordingNotifier) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.family))
	for _, m := range r.family {
		out = append(out, m.Action)
	}
	return out
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []models.Message
}

func (b *recordingBroadcaster) Broadcast(msg models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

// fakeProvider is an in-memory payment provider.
type fakeProvider struct {
	mu            sync.Mutex
	payments      map[string]*billing.Payment
	subscriptions map[string]*billing.Subscription
	preferences   []billing.PreferenceParams
	created       []billing.SubscriptionParams
	cancelled     []string
	err           error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		payments:      map[string]*billing.Payment{},
		subscriptions: map[string]*billing.Subscription{},
	}
}

func (f *fakeProvider) CreatePreference(_ context.Context, params billing.PreferenceParams) (*billing.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.preferences = append(f.preferences, params)
	id := "pref-" + uuid.NewString()[:8]
	return &billing.Checkout{ID: id, URL: "https://mp.test/checkout/" + id}, nil
}

func (f *fakeProvider) CreateSubscription(_ context.Context, params billing.SubscriptionParams) (*billing.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, params)
	id := "sub-" + uuid.NewString()[:8]
	return &billing.Checkout{ID: id, URL: "https://mp.test/subscription/" + id}, nil
}

func (f *fakeProvider) GetPayment(_ context.Context, id string) (*billing.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, billing.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeProvider) CancelSubscription(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}
