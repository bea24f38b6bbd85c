package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// Metrics tracks gateway counters for the /metrics endpoint.
type Metrics struct {
	ChangesTotal     atomic.Int64
	DroppedTotal     atomic.Int64
	WritesTotal      atomic.Int64
	WriteErrorsTotal atomic.Int64
}

// statusHandler returns an HTTP handler for GET /status.
func statusHandler(monitor Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(monitor.Status())
	}
}

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
// This uses the lightweight text format to avoid pulling in the full prometheus client.
func metricsHandler(monitor Monitor, metrics *Metrics, clients func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		st := monitor.Status()
		initialized := 0
		if st.Initialized {
			initialized = 1
		}

		fmt.Fprintf(w, "# HELP gpimon_initialized Whether the monitor worker is running.\n")
		fmt.Fprintf(w, "# TYPE gpimon_initialized gauge\n")
		fmt.Fprintf(w, "gpimon_initialized %d\n", initialized)

		fmt.Fprintf(w, "# HELP gpimon_output_value Last requested output value.\n")
		fmt.Fprintf(w, "# TYPE gpimon_output_value gauge\n")
		fmt.Fprintf(w, "gpimon_output_value %d\n", st.OutputValue)

		fmt.Fprintf(w, "# HELP gpimon_gateway_clients Connected WebSocket clients.\n")
		fmt.Fprintf(w, "# TYPE gpimon_gateway_clients gauge\n")
		fmt.Fprintf(w, "gpimon_gateway_clients %d\n", clients())

		fmt.Fprintf(w, "# HELP gpimon_changes_total Input changes forwarded to clients.\n")
		fmt.Fprintf(w, "# TYPE gpimon_changes_total counter\n")
		fmt.Fprintf(w, "gpimon_changes_total %d\n", metrics.ChangesTotal.Load())

		fmt.Fprintf(w, "# HELP gpimon_dropped_total Event frames dropped for slow clients.\n")
		fmt.Fprintf(w, "# TYPE gpimon_dropped_total counter\n")
		fmt.Fprintf(w, "gpimon_dropped_total %d\n", metrics.DroppedTotal.Load())

		fmt.Fprintf(w, "# HELP gpimon_writes_total Output writes queued through the gateway.\n")
		fmt.Fprintf(w, "# TYPE gpimon_writes_total counter\n")
		fmt.Fprintf(w, "gpimon_writes_total %d\n", metrics.WritesTotal.Load())

		fmt.Fprintf(w, "# HELP gpimon_write_errors_total Output writes rejected.\n")
		fmt.Fprintf(w, "# TYPE gpimon_write_errors_total counter\n")
		fmt.Fprintf(w, "gpimon_write_errors_total %d\n", metrics.WriteErrorsTotal.Load())
	}
}
