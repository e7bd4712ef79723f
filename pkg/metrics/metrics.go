package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Storefront holds the counters exported on /metrics.
// A nil *Storefront is valid and records nothing.
type Storefront struct {
	ordersPlaced       *prometheus.CounterVec
	orderFailures      *prometheus.CounterVec
	couponRejections   *prometheus.CounterVec
	orderTransitions   *prometheus.CounterVec
	paymentOutcomes    *prometheus.CounterVec
	taskOutcomes       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	syncPushesRejected prometheus.Counter
}

// NewStorefront registers the storefront metrics on reg.
func NewStorefront(reg prometheus.Registerer) *Storefront {
	if reg == nil {
		return &Storefront{}
	}
	s := &Storefront{
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teahouse_orders_placed_total",
			Help: "Orders committed, by payment method.",
		}, []string{"payment_method"}),
		orderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teahouse_order_failures_total",
			Help: "Order placements that did not commit, by reason.",
		}, []string{"reason"}),
		couponRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teahouse_coupon_rejections_total",
			Help: "Coupon validations that failed, by reason.",
		}, []string{"reason"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teahouse_order_transitions_total",
			Help: "Order status transitions applied.",
		}, []string{"from", "to"}),
		paymentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teahouse_payment_operations_total",
			Help: "Payment gateway calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		taskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teahouse_follow_up_tasks_total",
			Help: "Follow-up task executions, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teahouse_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		syncPushesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teahouse_sync_stale_pushes_total",
			Help: "Cart or wishlist pushes rejected because of a stale version.",
		}),
	}
	reg.MustRegister(
		s.ordersPlaced,
		s.orderFailures,
		s.couponRejections,
		s.orderTransitions,
		s.paymentOutcomes,
		s.taskOutcomes,
		s.httpDuration,
		s.syncPushesRejected,
	)
	return s
}

func (s *Storefront) OrderPlaced(paymentMethod string) {
	if s == nil || s.ordersPlaced == nil {
		return
	}
	s.ordersPlaced.WithLabelValues(normalizeLabel(paymentMethod)).Inc()
}

func (s *Storefront) OrderFailed(reason string) {
	if s == nil || s.orderFailures == nil {
		return
	}
	s.orderFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (s *Storefront) CouponRejected(reason string) {
	if s == nil || s.couponRejections == nil {
		return
	}
	s.couponRejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (s *Storefront) OrderTransition(from, to string) {
	if s == nil || s.orderTransitions == nil {
		return
	}
	s.orderTransitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (s *Storefront) PaymentOperation(operation string, err error) {
	if s == nil || s.paymentOutcomes == nil {
		return
	}
	s.paymentOutcomes.WithLabelValues(normalizeLabel(operation), outcome(err)).Inc()
}

func (s *Storefront) TaskOutcome(kind, result string) {
	if s == nil || s.taskOutcomes == nil {
		return
	}
	s.taskOutcomes.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}

func (s *Storefront) ObserveHTTP(method, route string, status int, d time.Duration) {
	if s == nil || s.httpDuration == nil {
		return
	}
	s.httpDuration.WithLabelValues(method, normalizeLabel(route), strconv.Itoa(status)).Observe(d.Seconds())
}

func (s *Storefront) StaleSyncPush() {
	if s == nil || s.syncPushesRejected == nil {
		return
	}
	s.syncPushesRejected.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
