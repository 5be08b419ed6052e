package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/obs"
)

func TestDomainMetricsRecordOutcomes(t *testing.T) {
	obs.MustRegisterDomainMetrics("storefront", prometheus.NewRegistry())

	before := testutil.ToFloat64(obs.CouponDecisionsTotal.WithLabelValues("fixed", "accepted"))
	obs.ObserveCouponDecision("fixed", "")
	require.Equal(t, before+1, testutil.ToFloat64(obs.CouponDecisionsTotal.WithLabelValues("fixed", "accepted")))

	before = testutil.ToFloat64(obs.PaymentVerificationsTotal.WithLabelValues("invalid_signature"))
	obs.ObservePaymentVerification("invalid_signature")
	require.Equal(t, before+1, testutil.ToFloat64(obs.PaymentVerificationsTotal.WithLabelValues("invalid_signature")))

	before = testutil.ToFloat64(obs.SummariesTotal)
	obs.ObserveSummary()
	require.Equal(t, before+1, testutil.ToFloat64(obs.SummariesTotal))
}
