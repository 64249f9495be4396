package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the orchestrator's Prometheus collectors. All methods are
// nil-receiver safe so an orchestrator without metrics pays no cost.
type Metrics struct {
	turns            *prometheus.CounterVec
	routingDecisions *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	retrievalQueries *prometheus.CounterVec
	gatewayRetries   *prometheus.CounterVec
	turnDuration     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentmesh",
			Name:      "turns_total",
			Help:      "Conversational turns processed, by outcome.",
		}, []string{"outcome"}),
		routingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentmesh",
			Name:      "routing_decisions_total",
			Help:      "Routing decisions, by kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentmesh",
			Name:      "workflow_transitions_total",
			Help:      "Applied workflow transitions, by definition.",
		}, []string{"definition"}),
		retrievalQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentmesh",
			Name:      "retrieval_queries_total",
			Help:      "Retrieval queries, by outcome.",
		}, []string{"outcome"}),
		gatewayRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentmesh",
			Name:      "gateway_retries_total",
			Help:      "Gateway retry attempts, by service.",
		}, []string{"service"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "talentmesh",
			Name:      "turn_duration_seconds",
			Help:      "Wall-clock duration of HandleTurn.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.turns, m.routingDecisions, m.transitions, m.retrievalQueries, m.gatewayRetries, m.turnDuration)
	return m
}

// ObserveGatewayRetry adapts the metrics to the gateway's OnRetry hook.
func (m *Metrics) ObserveGatewayRetry(service, _ string, _ int) {
	if m == nil {
		return
	}
	m.gatewayRetries.WithLabelValues(service).Inc()
}

func (m *Metrics) observeTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(seconds)
}

func (m *Metrics) observeDecision(kind string) {
	if m == nil {
		return
	}
	m.routingDecisions.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeTransition(definition string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(definition).Inc()
}

func (m *Metrics) observeRetrieval(outcome string) {
	if m == nil {
		return
	}
	m.retrievalQueries.WithLabelValues(outcome).Inc()
}
