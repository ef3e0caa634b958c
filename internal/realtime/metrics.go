// Package realtime – metrics
//
// Prometheus collectors for connections, session outcomes, room events and
// inbound message outcomes. All are registered in init.
package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Session outcomes.
const (
	outcomeAdmitted     = "admitted"
	outcomeUnauthorized = "unauthorized"
	outcomeForbidden    = "forbidden"
	outcomeNotFound     = "not_found"
	outcomeError        = "error"
)

// Ingestion results.
const (
	ingestAccepted     = "accepted"
	ingestDropped      = "dropped"
	ingestForbidden    = "forbidden"
	ingestPersistError = "persist_error"
	ingestRateLimited  = "rate_limited"
)

var (
	// wsActive gauges connections currently in the Active state.
	wsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections_active",
			Help: "Current number of active websocket sessions.",
		},
	)

	// wsSessions counts admission outcomes.
	wsSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_sessions_total",
			Help: "Websocket session attempts by admission outcome.",
		},
		[]string{"outcome"},
	)

	// eventsPublished counts events accepted by a room channel, by kind.
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_room_events_published_total",
			Help: "Events published to room channels by kind.",
		},
		[]string{"kind"},
	)

	// eventsLagged sums events skipped by lagging subscribers.
	eventsLagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_room_events_lagged_total",
			Help: "Events dropped for subscribers that fell behind.",
		},
	)

	// ingestTotal counts inbound messages by pipeline result.
	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ingest_total",
			Help: "Inbound chat messages by ingestion result.",
		},
		[]string{"result"},
	)

	// roomsActive gauges the number of channels held by the registry.
	roomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_rooms_active",
			Help: "Number of rooms with a live channel in the registry.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsActive, wsSessions, eventsPublished, eventsLagged, ingestTotal, roomsActive)
}

// publish sends e on ch and counts it. A send with no subscribers is not
// an error for callers.
func publish(ch *RoomChannel, e Event) int {
	n, err := ch.Send(e)
	if err != nil {
		return 0
	}
	eventsPublished.WithLabelValues(string(e.Kind())).Inc()
	return n
}
