package base

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// Process wide counters of all gateway connections
var (
	requestsTotal        = metrics.GetOrCreateCounter("ibgw_requests_total")
	requestTimeoutsTotal = metrics.GetOrCreateCounter("ibgw_request_timeouts_total")
	remoteErrorsTotal    = metrics.GetOrCreateCounter("ibgw_remote_errors_total")
	framesReceivedTotal  = metrics.GetOrCreateCounter("ibgw_frames_received_total")
	framesIgnoredTotal   = metrics.GetOrCreateCounter("ibgw_frames_ignored_total")
	eventsDroppedTotal   = metrics.GetOrCreateCounter("ibgw_events_dropped_total")
	disconnectsTotal     = metrics.GetOrCreateCounter("ibgw_disconnects_total")
	drainedRequestsTotal = metrics.GetOrCreateCounter("ibgw_drained_requests_total")
	requestDuration      = metrics.GetOrCreateHistogram("ibgw_request_duration_seconds")
	frameSize            = metrics.GetOrCreateHistogram("ibgw_frame_size_bytes")
)

// connectionSets holds the gauges of every live connection
var connectionSets = xsync.NewMapOf[string, *metrics.Set]()

// registerConnectionMetrics creates the gauges of one connection and returns the
// registry key
func registerConnectionMetrics(endpoint string, clientID int32, c *correlator) string {
	set := metrics.NewSet()
	labels := fmt.Sprintf(`{endpoint=%q,client_id="%d"}`, endpoint, clientID)
	set.NewGauge("ibgw_pending_requests"+labels, func() float64 {
		return float64(c.size())
	})
	set.NewGauge("ibgw_oldest_pending_seconds"+labels, func() float64 {
		return c.oldest().Seconds()
	})

	key := fmt.Sprintf("%s/%d/%p", endpoint, clientID, c)
	connectionSets.Store(key, set)
	return key
}

func unregisterConnectionMetrics(key string) {
	connectionSets.Delete(key)
}

// WriteMetrics writes the transport metrics in Prometheus text format
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
	connectionSets.Range(func(_ string, set *metrics.Set) bool {
		set.WritePrometheus(w)
		return true
	})
}
