package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every metric.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	salesCreated          *prometheus.CounterVec
	stockMovements        *prometheus.CounterVec
	webhookEvents         *prometheus.CounterVec
	verifyResults         *prometheus.CounterVec
	loginFailures         prometheus.Counter
	notificationsEnqueued *prometheus.CounterVec
}

// New configures the domain metrics instruments on the default registerer.
func New(cfg Config) (*Metrics, error) {
	return newMetrics(prometheus.DefaultRegisterer, cfg)
}

func newMetrics(registerer prometheus.Registerer, cfg Config) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	salesCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dukahub_sales_created_total",
		Help:        "Sales recorded by payment method.",
		ConstLabels: constLabels,
	}, []string{"payment_method"})
	stockMovements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dukahub_stock_movements_total",
		Help:        "Stock movements applied by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dukahub_gateway_webhook_events_total",
		Help:        "Gateway webhook deliveries by event and result.",
		ConstLabels: constLabels,
	}, []string{"event", "result"})
	verifyResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dukahub_subscription_verify_total",
		Help:        "Subscription verify calls by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	loginFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "dukahub_login_failures_total",
		Help:        "Rejected login attempts.",
		ConstLabels: constLabels,
	})
	notificationsEnqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dukahub_notifications_enqueued_total",
		Help:        "Notifications enqueued by kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})

	for _, collector := range []prometheus.Collector{
		salesCreated,
		stockMovements,
		webhookEvents,
		verifyResults,
		loginFailures,
		notificationsEnqueued,
	} {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, err
		}
	}

	return &Metrics{
		salesCreated:          salesCreated,
		stockMovements:        stockMovements,
		webhookEvents:         webhookEvents,
		verifyResults:         verifyResults,
		loginFailures:         loginFailures,
		notificationsEnqueued: notificationsEnqueued,
	}, nil
}

// RecordSaleCreated increments sale counts.
func (m *Metrics) RecordSaleCreated(paymentMethod string) {
	if m == nil {
		return
	}
	m.salesCreated.WithLabelValues(strings.TrimSpace(paymentMethod)).Inc()
}

// RecordStockMovement increments movement counts.
func (m *Metrics) RecordStockMovement(reason string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(strings.TrimSpace(reason)).Inc()
}

// RecordWebhookEvent increments webhook delivery counts.
func (m *Metrics) RecordWebhookEvent(event, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(strings.TrimSpace(event), strings.TrimSpace(result)).Inc()
}

// RecordVerifyResult increments verify outcome counts.
func (m *Metrics) RecordVerifyResult(result string) {
	if m == nil {
		return
	}
	m.verifyResults.WithLabelValues(strings.TrimSpace(result)).Inc()
}

// RecordLoginFailure increments the rejected login counter.
func (m *Metrics) RecordLoginFailure() {
	if m == nil {
		return
	}
	m.loginFailures.Inc()
}

// RecordNotificationEnqueued increments notification counts.
func (m *Metrics) RecordNotificationEnqueued(kind string) {
	if m == nil {
		return
	}
	m.notificationsEnqueued.WithLabelValues(strings.TrimSpace(kind)).Inc()
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "dukahub"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}
