package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	breakerState = register(prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbound_breaker_state",
			Help: "Breaker state per outbound target: 0=closed, 1=open, 2=half-open.",
		},
		[]string{"target"},
	))
	breakerTransitions = register(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_breaker_transitions_total",
			Help: "Breaker state transitions per outbound target.",
		},
		[]string{"target", "from", "to"},
	))
	breakerOpened = register(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_breaker_opened_total",
			Help: "Times the breaker for an outbound target tripped open.",
		},
		[]string{"target"},
	))
)

// register adds c to the default registry, reusing an identical collector when
// the package is loaded more than once under test.
func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
