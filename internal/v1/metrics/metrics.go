package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the collaborative whiteboard server.
//
// Naming convention: namespace_subsystem_name
// - namespace: whiteboard (application-level grouping)
// - subsystem: websocket, room, board, redis (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (messages processed, drops, saves)
// - Histogram: Latency distributions (processing time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "whiteboard",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "whiteboard",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of participants in each room
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "whiteboard",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// WebsocketEvents tracks the total number of WebSocket events processed
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// DroppedMessages counts outbound messages dropped because a client's send
	// queue overflowed. Each drop closes the offending connection.
	DroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "websocket",
		Name:      "dropped_messages_total",
		Help:      "Outbound messages dropped due to full per-connection queues",
	})

	// MessageProcessingDuration tracks the time spent processing WebSocket messages
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "whiteboard",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// ReplayLogSize tracks the current replay log length per room
	ReplayLogSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "whiteboard",
		Subsystem: "room",
		Name:      "replay_log_size",
		Help:      "Current number of envelopes in each room's replay log",
	}, []string{"room_id"})

	// BoardOperations tracks persistence port operations
	BoardOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "board",
		Name:      "operations_total",
		Help:      "Total board persistence operations",
	}, []string{"operation", "status"})

	// TimelapseJobs tracks timelapse job completions by terminal status
	TimelapseJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "board",
		Name:      "timelapse_jobs_total",
		Help:      "Total timelapse jobs by terminal status",
	}, []string{"status"})

	// ImagesUploaded counts accepted image uploads
	ImagesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "board",
		Name:      "images_uploaded_total",
		Help:      "Total uploaded images",
	})

	// RedisOperationsTotal tracks operations against the optional Redis bus
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total Redis bus operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks Redis bus operation latency
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "whiteboard",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Redis bus operation latency",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5},
	}, []string{"operation"})

	// CircuitBreakerState reports the breaker state per backing service (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "whiteboard",
		Subsystem: "redis",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	// CircuitBreakerFailures counts requests rejected by an open breaker
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "redis",
		Name:      "circuit_breaker_failures_total",
		Help:      "Requests rejected by an open circuit breaker",
	}, []string{"service"})

	// RateLimitRequests counts rate-limited endpoint hits
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "websocket",
		Name:      "rate_limit_requests_total",
		Help:      "Requests evaluated by the rate limiter",
	}, []string{"path"})

	// RateLimitExceeded counts requests rejected by the rate limiter
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whiteboard",
		Subsystem: "websocket",
		Name:      "rate_limit_exceeded_total",
		Help:      "Requests rejected by the rate limiter",
	}, []string{"path", "limit_type"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
