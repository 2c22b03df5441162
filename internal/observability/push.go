package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job name used by the ingest binary.
const PushJob = "trade_ingest"

// Push sends the ingestion metrics to a Prometheus Pushgateway. Batch runs
// exit before a scraper could reach them, so they push instead.
func (m *Metrics) Push(ctx context.Context, gatewayURL, indicator string) error {
	pusher := push.New(gatewayURL, PushJob).Grouping("indicator", indicator)
	for _, c := range m.ingestCollectors() {
		pusher = pusher.Collector(c)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

func (m *Metrics) ingestCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Runs,
		m.StageFailures,
		m.StageDuration,
		m.RowsFetched,
		m.RowsDropped,
		m.RowsPersisted,
		m.LastSuccess,
		m.SinkDeliveries,
	}
}
