package asmref

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Resolution strategies, in chain order, as reported by metrics and spans.
const (
	strategyDelegate     = "delegate"
	strategyLoaded       = "loaded"
	strategyLoadOnDemand = "load-on-demand"
	strategyNotLoaded    = "not-loaded"
	strategyClosest      = "closest-version"
	strategyUnresolved   = "unresolved"
)

// metrics holds the counters of one session.
type metrics struct {
	loads       *prometheus.CounterVec
	resolutions *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asmref_loads_total",
			Help: "Total number of assembly loads by result.",
		}, []string{"result"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "asmref_resolutions_total",
			Help: "Total number of reference resolutions by the strategy that ended them.",
		}, []string{"strategy"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.loads, m.resolutions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
