package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CouponDecisionsTotal counts coupon validation outcomes by reason ("accepted" on success).
	CouponDecisionsTotal *prometheus.CounterVec
	// SummariesTotal counts computed checkout summaries.
	SummariesTotal prometheus.Counter
	// OrderTotalAmount records order totals in major currency units.
	OrderTotalAmount prometheus.Histogram
	// PaymentOrdersTotal counts gateway order creation outcomes.
	PaymentOrdersTotal *prometheus.CounterVec
	// PaymentVerificationsTotal counts signature verification outcomes.
	PaymentVerificationsTotal *prometheus.CounterVec
	// EmailTasksTotal counts confirmation email task outcomes.
	EmailTasksTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CouponDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_decisions_total",
			Help:      "Count of coupon validation outcomes by reason.",
		}, []string{"type", "reason"})
		SummariesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_summaries_total",
			Help:      "Number of checkout summaries computed.",
		})
		OrderTotalAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_total_amount",
			Help:      "Distribution of placed order totals.",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 25000},
		})
		PaymentOrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_orders_total",
			Help:      "Count of gateway order creation outcomes.",
		}, []string{"result"})
		PaymentVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verifications_total",
			Help:      "Count of payment signature verification outcomes.",
		}, []string{"result"})
		EmailTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_tasks_total",
			Help:      "Count of confirmation email task outcomes.",
		}, []string{"stage", "result"})

		CouponDecisionsTotal = registerOrReuse(reg, CouponDecisionsTotal)
		SummariesTotal = registerOrReuse(reg, SummariesTotal)
		OrderTotalAmount = registerOrReuse(reg, OrderTotalAmount)
		PaymentOrdersTotal = registerOrReuse(reg, PaymentOrdersTotal)
		PaymentVerificationsTotal = registerOrReuse(reg, PaymentVerificationsTotal)
		EmailTasksTotal = registerOrReuse(reg, EmailTasksTotal)
	})
}

// ObserveCouponDecision records a coupon decision. Safe to call before registration.
func ObserveCouponDecision(couponType, reason string) {
	if CouponDecisionsTotal == nil {
		return
	}
	if reason == "" {
		reason = "accepted"
	}
	CouponDecisionsTotal.WithLabelValues(couponType, reason).Inc()
}

// ObserveSummary records a computed summary.
func ObserveSummary() {
	if SummariesTotal != nil {
		SummariesTotal.Inc()
	}
}

// ObserveOrderTotal records the total of a placed order.
func ObserveOrderTotal(total float64) {
	if OrderTotalAmount != nil {
		OrderTotalAmount.Observe(total)
	}
}

// ObservePaymentOrder records a gateway order creation outcome.
func ObservePaymentOrder(result string) {
	if PaymentOrdersTotal != nil {
		PaymentOrdersTotal.WithLabelValues(result).Inc()
	}
}

// ObservePaymentVerification records a signature verification outcome.
func ObservePaymentVerification(result string) {
	if PaymentVerificationsTotal != nil {
		PaymentVerificationsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveEmailTask records an email task outcome at the given stage (enqueue or send).
func ObserveEmailTask(stage, result string) {
	if EmailTasksTotal != nil {
		EmailTasksTotal.WithLabelValues(stage, result).Inc()
	}
}
