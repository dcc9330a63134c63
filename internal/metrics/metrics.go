// Package metrics holds process-wide counters exposed in Prometheus text
// format.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	ConnectionsAccepted atomic.Int64
	ConnectionsActive   atomic.Int64
	FramesDecoded       atomic.Int64
	FramesDropped       atomic.Int64
	ChecksumMismatches  atomic.Int64
	UnknownDevices      atomic.Int64
	PositionsIngested   atomic.Int64
	PositionsStale      atomic.Int64
	EventsPublished     atomic.Int64
	EventsDropped       atomic.Int64
	EventsFailed        atomic.Int64
	AlertsCreated       atomic.Int64
	TripsOpened         atomic.Int64
	TripsClosed         atomic.Int64
	CommandsSent        atomic.Int64
	CommandsQueued      atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "tracker_connections_accepted_total %d\n", ConnectionsAccepted.Load())
	fmt.Fprintf(w, "tracker_connections_active %d\n", ConnectionsActive.Load())
	fmt.Fprintf(w, "tracker_frames_decoded_total %d\n", FramesDecoded.Load())
	fmt.Fprintf(w, "tracker_frames_dropped_total %d\n", FramesDropped.Load())
	fmt.Fprintf(w, "tracker_checksum_mismatches_total %d\n", ChecksumMismatches.Load())
	fmt.Fprintf(w, "tracker_unknown_device_frames_total %d\n", UnknownDevices.Load())
	fmt.Fprintf(w, "tracker_positions_ingested_total %d\n", PositionsIngested.Load())
	fmt.Fprintf(w, "tracker_positions_stale_total %d\n", PositionsStale.Load())
	fmt.Fprintf(w, "tracker_events_published_total %d\n", EventsPublished.Load())
	fmt.Fprintf(w, "tracker_events_dropped_total %d\n", EventsDropped.Load())
	fmt.Fprintf(w, "tracker_events_failed_total %d\n", EventsFailed.Load())
	fmt.Fprintf(w, "tracker_alerts_created_total %d\n", AlertsCreated.Load())
	fmt.Fprintf(w, "tracker_trips_opened_total %d\n", TripsOpened.Load())
	fmt.Fprintf(w, "tracker_trips_closed_total %d\n", TripsClosed.Load())
	fmt.Fprintf(w, "tracker_commands_sent_total %d\n", CommandsSent.Load())
	fmt.Fprintf(w, "tracker_commands_queued_total %d\n", CommandsQueued.Load())
}
