package metrics

import "github.com/prometheus/client_golang/prometheus"

// Consumer message outcomes.
const (
	OutcomeAck       = "ack"
	OutcomeNack      = "nack"
	OutcomeDuplicate = "duplicate"
	OutcomePoison    = "poison"
)

// Outbox relay results.
const (
	RelayPublished = "published"
	RelayRetry     = "retry"
	RelayDLQ       = "dlq"
)

// PipelineMetrics counts consumer outcomes, ledger postings and outbox relays.
type PipelineMetrics struct {
	messages *prometheus.CounterVec
	postings *prometheus.CounterVec
	relays   *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_messages_total",
		Help:      "Messages handled by queue consumers, by outcome.",
	}, []string{"consumer", "outcome"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_postings_total",
		Help:      "Shop ledger postings, by entry type and result.",
	}, []string{"entry_type", "result"})
	relays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_relays_total",
		Help:      "Outbox rows relayed to the broker, by stream and result.",
	}, []string{"stream", "result"})
	reg.MustRegister(messages, postings, relays)
	return &PipelineMetrics{messages: messages, postings: postings, relays: relays}
}

func (p *PipelineMetrics) IncMessage(consumer, outcome string) {
	if p == nil || p.messages == nil {
		return
	}
	p.messages.WithLabelValues(normalizeLabel(consumer), normalizeLabel(outcome)).Inc()
}

// IncPosting records a ledger posting attempt. result is posted, duplicate or failed.
func (p *PipelineMetrics) IncPosting(entryType, result string) {
	if p == nil || p.postings == nil {
		return
	}
	p.postings.WithLabelValues(normalizeLabel(entryType), normalizeLabel(result)).Inc()
}

func (p *PipelineMetrics) IncRelay(stream, result string) {
	if p == nil || p.relays == nil {
		return
	}
	p.relays.WithLabelValues(normalizeLabel(stream), normalizeLabel(result)).Inc()
}
