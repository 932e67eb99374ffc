// Package metrics exposes the Prometheus registry monscrape's packages
// register with, and dumps it in text exposition format.
//
// All metrics are defined in their respective packages (cache, client,
// pagination, export, ratelimit) via promauto. A run is a one-shot CLI
// invocation, so there is no scrape endpoint; the CLI writes the dump to a
// file or stdout when --metrics-out is given.
package metrics

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry is the default Prometheus registry used by monscrape.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics written by Dump.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// Prefix is the name prefix of all monscrape metrics.
const Prefix = "monscrape_"

// Dump writes every monscrape metric family of g in text exposition format.
// Go runtime and process collectors are left out.
func Dump(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), Prefix) {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - monscrape_cache_hits_total{layer} (Counter): Cache hits by layer (file, redis)
//   - monscrape_cache_misses_total{layer} (Counter): Cache misses by layer
//   - monscrape_cache_writes_total{layer} (Counter): Pages written by layer
//   - monscrape_cache_written_bytes_total{layer} (Counter): Bytes written by layer
//   - monscrape_cache_invalidations_total (Counter): Partitions invalidated
//   - monscrape_cache_errors_total{layer, operation} (Counter): Store operation errors
//
// Request Metrics (pkg/client):
//   - monscrape_requests_total{status} (Counter): Live requests by HTTP status
//   - monscrape_request_duration_seconds (Histogram): Live request duration
//   - monscrape_errors_total{class} (Counter): Transport errors by class
//   - monscrape_pages_fetched_total{source} (Counter): Pages by source (cache, live)
//
// Walk Metrics (pkg/pagination):
//   - monscrape_walk_pages_total (Counter): Pages yielded by walks
//   - monscrape_walk_last_page_refetches_total (Counter): Forced last page refetches
//   - monscrape_walks_total{result} (Counter): Walks by result (complete, error, stopped)
//
// Export Metrics (pkg/export):
//   - monscrape_export_entries_total (Counter): Cache entries decoded
//   - monscrape_export_records_total (Counter): Flat records collected
//
// Rate Limit Metrics (pkg/ratelimit):
//   - monscrape_ratelimit_day_remaining (Gauge): Daily quota remaining
//   - monscrape_ratelimit_minute_remaining (Gauge): Minute window remaining
//   - monscrape_ratelimit_blocks_total (Counter): Requests blocked on the daily quota
//   - monscrape_ratelimit_waits_total (Counter): Requests delayed for the minute window
//
// Example Prometheus Queries (for dumps pushed to a gateway):
//
//   # Cache Hit Rate
//   sum(rate(monscrape_pages_fetched_total{source="cache"}[1h])) /
//   sum(rate(monscrape_pages_fetched_total[1h]))
//
//   # Daily quota pressure
//   monscrape_ratelimit_day_remaining < 50
