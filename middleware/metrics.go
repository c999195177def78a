package middleware

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultValid     = "valid"
	resultInvalid   = "invalid"
	resultMalformed = "malformed"
	resultError     = "error"
)

type metrics struct {
	validations *prometheus.CounterVec
}

// WithMetrics counts validations in flowi_validations_total{result}, registered
// on reg. Registering twice on the same registry reuses the first collector.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		if reg == nil {
			return
		}
		vec := prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowi",
				Name:      "validations_total",
				Help:      "Total number of validated requests by result",
			},
			[]string{"result"},
		)
		if err := reg.Register(vec); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
			vec = are.ExistingCollector.(*prometheus.CounterVec)
		}
		c.metrics = &metrics{validations: vec}
	}
}

func (m *metrics) observe(result string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(result).Inc()
}
