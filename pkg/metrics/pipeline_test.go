package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestPipelineMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)
	m.IncMessage("payment-consumer", OutcomeAck)
	m.IncMessage("payment-consumer", OutcomeAck)
	m.IncPosting("EARNING", "duplicate")
	m.IncRelay("payment", RelayDLQ)
	m.IncRelay("", RelayPublished)

	assert.Equal(t, 2.0, counter(t, reg, "orderledger_consumer_messages_total", map[string]string{"consumer": "payment-consumer", "outcome": OutcomeAck}))
	assert.Equal(t, 1.0, counter(t, reg, "orderledger_ledger_postings_total", map[string]string{"result": "duplicate"}))
	assert.Equal(t, 1.0, counter(t, reg, "orderledger_outbox_relays_total", map[string]string{"stream": "payment", "result": RelayDLQ}))
	assert.Equal(t, 1.0, counter(t, reg, "orderledger_outbox_relays_total", map[string]string{"stream": "unknown", "result": RelayPublished}))
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	m.IncMessage("x", OutcomeNack)
	NewPipelineMetrics(nil).IncPosting("EARNING", "posted")
	NewPipelineMetrics(nil).IncRelay("checkout", RelayPublished)
}
