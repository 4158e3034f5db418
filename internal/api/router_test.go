package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vikasavnish/savepad/internal/billing"
	"github.com/vikasavnish/savepad/internal/config"
	"github.com/vikasavnish/savepad/internal/db"
	"github.com/vikasavnish/savepad/internal/models"
)

type stubProvider struct {
	payments map[string]*billing.Payment
}

func (p *stubProvider) CreatePreference(_ context.Context, params billing.PreferenceParams) (*billing.Checkout, error) {
	return &billing.Checkout{ID: "pref-1", URL: "https://mp.test/checkout/pref-1"}, nil
}

func (p *stubProvider) CreateSubscription(_ context.Context, params billing.SubscriptionParams) (*billing.Checkout, error) {
	return &billing.Checkout{ID: "sub-1", URL: "https://mp.test/subscription/sub-1"}, nil
}

func (p *stubProvider) GetPayment(_ context.Context, id string) (*billing.Payment, error) {
	if pay, ok := p.payments[id]; ok {
		return pay, nil
	}
	return nil, billing.ErrPaymentNotFound
}

func (p *stubProvider) GetSubscription(context.Context, string) (*billing.Subscription, error) {
	return nil, billing.ErrSubscriptionNotFound
}

func (p *stubProvider) CancelSubscription(context.Context, string) error {
	return nil
}

type testServer struct {
	router   *mux.Router
	db       *gorm.DB
	provider *stubProvider
	cfg      *config.Config
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	database, err := db.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.Server.BaseURL = "https://api.savepad.test"
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.TTL = time.Hour
	cfg.Verification.CodeTTL = time.Minute
	for _, m := range mutate {
		m(cfg)
	}

	provider := &stubProvider{payments: map[string]*billing.Payment{}}
	router := SetupRouter(Dependencies{DB: database, Provider: provider}, cfg)
	return &testServer{router: router, db: database, provider: provider, cfg: cfg}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createUser(t *testing.T, name, email string) models.User {
	t.Helper()
	user := models.User{Name: name, Status: models.UserStatusActive}
	if email != "" {
		user.Email = &email
	}
	require.NoError(t, s.db.Create(&user).Error)
	return user
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestFamilyAddThenList(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "Bia", "bia@example.com")

	rec := s.do(t, "POST", "/family/add", `{"owner_id":1,"name":"Ana","phone":"11999999999"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var row models.FamilyMember
	require.NoError(t, s.db.First(&row).Error)
	assert.Equal(t, "5511999999999", row.WhatsappNumber)

	rec = s.do(t, "GET", "/family/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var family models.Family
	decode(t, rec, &family)
	assert.Equal(t, uint(1), family.OwnerID)
	require.Len(t, family.Members, 1)
	assert.Equal(t, "Ana", family.Members[0].Name)
	assert.Equal(t, "5511999999999", family.Members[0].Phone)
	assert.Equal(t, 1, family.Total)

	rec = s.do(t, "GET", "/api/family-members/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var members []models.MemberView
	decode(t, rec, &members)
	assert.Len(t, members, 1)

	rec = s.do(t, "POST", "/family/add", `{"owner_id":"1","name":"Ana","phone":"(11) 99999-9999"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "DELETE", "/family/remove", map[string]interface{}{"owner_id": "1", "relation_id": family.Members[0].RelationID})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/family/add", `{"owner_id":"1","phone":"11999999999"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "invalid", body["code"])
	assert.Contains(t, body["error"], "name")

	rec = s.do(t, "POST", "/family/add", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "GET", "/status/404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "GET", "/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookThenStatus(t *testing.T) {
	s := newTestServer(t)
	for i := 1; i <= 7; i++ {
		s.createUser(t, fmt.Sprintf("U%d", i), fmt.Sprintf("u%d@example.com", i))
	}
	require.NoError(t, s.db.Create(&models.Plan{UserID: 7, Type: models.ModeIndividual, Mode: models.ModeIndividual, Status: models.PlanStatusPending}).Error)

	s.provider.payments["123"] = &billing.Payment{ID: "123", Status: billing.StatusApproved, PayerEmail: "u7@example.com"}

	for i := 0; i < 2; i++ {
		rec := s.do(t, "POST", "/webhook", `{"type":"payment","data":{"id":"123"}}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(t, "GET", "/status/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.StatusResponse
	decode(t, rec, &status)
	assert.Equal(t, "Ativo", status.Status)
	assert.Equal(t, models.ModeIndividual, status.Type)
}

func TestWebhookPayloadVariants(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/webhook?topic=payment&id=999", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res map[string]interface{}
	decode(t, rec, &res)
	assert.Equal(t, "unknown_id", res["outcome"])

	rec = s.do(t, "POST", "/webhook", `{"type":"payment","data":{"id":999}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "POST", "/webhook", `{"type":"payment","data":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "POST", "/webhook", `{"type":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookSignature(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.MercadoPago.WebhookSecret = "whsec" })

	rec := s.do(t, "POST", "/webhook", `{"type":"payment","data":{"id":"1"}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	sig := billing.Sign("whsec", billing.SignatureManifest("1", "req-1", "1700000000"))
	rec = s.do(t, "POST", "/webhook", `{"type":"payment","data":{"id":"1"}}`,
		"x-signature", "ts=1700000000,v1="+sig,
		"x-request-id", "req-1")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCheckoutAndCancel(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "Bia", "bia@example.com")

	rec := s.do(t, "POST", "/checkout", `{"user_id":1,"plano":"familiar"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var checkout models.CheckoutResponse
	decode(t, rec, &checkout)
	assert.Equal(t, "https://mp.test/checkout/pref-1", checkout.CheckoutURL)

	rec = s.do(t, "POST", "/cancel-plan", `{"user_id":"1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, s.db.Model(&models.Plan{}).Where("id = ?", checkout.PlanID).Update("status", models.PlanStatusApproved).Error)

	rec = s.do(t, "GET", "/planos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var plans []models.Plan
	decode(t, rec, &plans)
	assert.Len(t, plans, 1)

	rec = s.do(t, "POST", "/cancel-plan", `{"user_id":"bia@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRegisterLoginAndLinkWhatsapp(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Bot.Token = "bot-secret" })

	rec := s.do(t, "POST", "/register", `{"name":"Ana","email":"ana@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, "POST", "/register", `{"name":"Ana","email":"ana@example.com","password":"secret123"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "POST", "/login", `{"email":"ana@example.com","password":"wrong-pass"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, "POST", "/login", `{"email":"ana@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var token models.TokenResponse
	decode(t, rec, &token)
	require.NotEmpty(t, token.AccessToken)
	bearer := "Bearer " + token.AccessToken

	rec = s.do(t, "POST", "/api/link-whatsapp", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, "POST", "/api/link-whatsapp", `{"user_id":999}`, "Authorization", bearer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "POST", "/api/link-whatsapp", nil, "Authorization", bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, "POST", "/api/link-whatsapp", fmt.Sprintf(`{"user_id":%d}`, token.User.ID), "Authorization", bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var code models.LinkCodeResponse
	decode(t, rec, &code)
	assert.Len(t, code.Code, 6)

	verify := fmt.Sprintf(`{"code":%q,"phone":"11988887777"}`, code.Code)
	rec = s.do(t, "POST", "/bot/verify-whatsapp", verify)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, "POST", "/bot/verify-whatsapp", verify, "X-Bot-Token", "bot-secret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, "GET", "/api/check-whatsapp-link", nil, "Authorization", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	var link models.LinkStatusResponse
	decode(t, rec, &link)
	assert.True(t, link.Linked)
	assert.Equal(t, "5511988887777", link.Phone)
}

func TestUsersEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/usuarios", `{"name":"Ana","phone":"11977776666"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, "POST", "/usuarios", `{"name":"Ana","phone":"5511977776666"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "GET", "/usuarios/11977776666", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile models.Profile
	decode(t, rec, &profile)
	assert.Equal(t, "Ana", profile.Name)

	rec = s.do(t, "GET", "/usuarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profiles []models.Profile
	decode(t, rec, &profiles)
	assert.Len(t, profiles, 1)
}

func TestHealthAndRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	decode(t, rec, &health)
	assert.Equal(t, "ok", health["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, "GET", "/api/routes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/family/{user_id}")

	var buf bytes.Buffer
	PrintRoutes(&buf, s.router)
	assert.True(t, strings.Contains(buf.String(), "POST\t/webhook"))
}
