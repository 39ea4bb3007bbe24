package workermanager

import (
	"sort"
	"time"

	"github.com/riftline/inspectgate/internal/worker"
)

// responseTimeWindow is the span over which percentile stats are computed.
const responseTimeWindow = 5 * time.Minute

type responseSample struct {
	at time.Time
	d  time.Duration
}

// Stats is the manager's aggregate view: summed per-worker counters plus
// response-time percentiles and cumulative dispatch counters.
type Stats struct {
	ReadyBots int                              `json:"ready_bots"`
	BusyBots  int                              `json:"busy_bots"`
	TotalBots int                              `json:"total_bots"`
	Inspects  int                              `json:"inspects"`
	Successes int                              `json:"successes"`
	Failures  int                              `json:"failures"`
	Workers   map[string]worker.PartitionStats `json:"workers,omitempty"`

	Cached            int64 `json:"cached"`
	Failed            int64 `json:"failed"`
	TimedOut          int64 `json:"timed_out"`
	Retried           int64 `json:"retried_inspections"`
	SuccessAfterRetry int64 `json:"success_after_retry"`
	Pending           int   `json:"pending"`

	P50 time.Duration `json:"p50_ns"`
	P90 time.Duration `json:"p90_ns"`
	P95 time.Duration `json:"p95_ns"`
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// computePercentiles prunes samples older than responseTimeWindow and
// returns p50/p90/p95 over what remains.
func computePercentiles(samples []responseSample, now time.Time) (kept []responseSample, p50, p90, p95 time.Duration) {
	cutoff := now.Add(-responseTimeWindow)
	durations := make([]time.Duration, 0, len(samples))
	for _, s := range samples {
		if s.at.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
		durations = append(durations, s.d)
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	return kept, percentile(durations, 0.50), percentile(durations, 0.90), percentile(durations, 0.95)
}
