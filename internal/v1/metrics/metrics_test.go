package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	// These are promauto collectors registered against the global registry;
	// incrementing without panic implies registration succeeded.

	t.Run("RedisOperationsTotal", func(t *testing.T) {
		RedisOperationsTotal.WithLabelValues("publish", "success").Inc()
		val := testutil.ToFloat64(RedisOperationsTotal.WithLabelValues("publish", "success"))
		if val < 1 {
			t.Errorf("Expected RedisOperationsTotal to be at least 1, got %v", val)
		}
	})

	t.Run("RedisOperationDuration", func(t *testing.T) {
		RedisOperationDuration.WithLabelValues("publish").Observe(0.1)
	})

	t.Run("WebsocketEvents", func(t *testing.T) {
		WebsocketEvents.WithLabelValues("draw", "ok").Inc()
		val := testutil.ToFloat64(WebsocketEvents.WithLabelValues("draw", "ok"))
		if val < 1 {
			t.Errorf("Expected WebsocketEvents to be at least 1, got %v", val)
		}
	})

	t.Run("ConnectionGauge", func(t *testing.T) {
		before := testutil.ToFloat64(ActiveWebSocketConnections)
		IncConnection()
		IncConnection()
		DecConnection()
		after := testutil.ToFloat64(ActiveWebSocketConnections)
		if after != before+1 {
			t.Errorf("Expected connection gauge to move by +1, got %v -> %v", before, after)
		}
	})

	t.Run("RoomParticipants", func(t *testing.T) {
		RoomParticipants.WithLabelValues("room-1").Set(3)
		val := testutil.ToFloat64(RoomParticipants.WithLabelValues("room-1"))
		if val != 3 {
			t.Errorf("Expected RoomParticipants to be 3, got %v", val)
		}
		RoomParticipants.DeleteLabelValues("room-1")
	})

	t.Run("BoardOperations", func(t *testing.T) {
		BoardOperations.WithLabelValues("save", "success").Inc()
	})
}
