package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	PlanTransitions  *prometheus.CounterVec
	CheckoutCreated  *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	ExpiredPlans     prometheus.Counter
}

// Business is the process-wide metrics set. Nil until Init is called;
// every method below is safe on a nil receiver.
var Business *Metrics

// Init registers the collectors on reg and installs them as Business.
func Init(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "savepad_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "savepad_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		WebhookReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "savepad_webhook_received_total",
			Help: "Payment provider events received by type.",
		}, []string{"type"}),
		WebhookProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "savepad_webhook_processed_total",
			Help: "Payment provider events by outcome.",
		}, []string{"outcome"}),
		PlanTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "savepad_plan_transitions_total",
			Help: "Plan status transitions by target status.",
		}, []string{"status"}),
		CheckoutCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "savepad_checkout_created_total",
			Help: "Checkout sessions created by plan type and cadence.",
		}, []string{"type", "cadence"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "savepad_bot_notifications_total",
			Help: "Bot notifications by action and outcome.",
		}, []string{"action", "outcome"}),
		ExpiredPlans: f.NewCounter(prometheus.CounterOpts{
			Name: "savepad_plans_expired_total",
			Help: "Plans marked expired by the sweeper.",
		}),
	}
	Business = m
	return m
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType != "" {
		m.WebhookReceived.WithLabelValues(eventType).Inc()
	}
	m.WebhookProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.PlanTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCheckout(planType, cadence string) {
	if m == nil {
		return
	}
	if cadence == "" {
		cadence = "once"
	}
	m.CheckoutCreated.WithLabelValues(planType, cadence).Inc()
}

func (m *Metrics) ObserveNotification(action, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ExpiredPlans.Add(float64(n))
}
