package observability_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/observability"
)

func TestMetricsSnapshot(t *testing.T) {
	m := observability.NewMetrics()
	m.RecordRequest("/tickets", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/tickets", "GET", 200, 30*time.Millisecond)
	m.RecordError("/tickets", "PATCH", "VERSION_CONFLICT")

	snap := m.Snapshot()
	require.Equal(t, int64(2), snap.Requests["/tickets|GET|200"])
	require.Equal(t, int64(20), snap.AvgLatencyMsec["/tickets|GET|200"])
	require.Equal(t, int64(1), snap.Errors["/tickets|PATCH|VERSION_CONFLICT"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *observability.Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
	require.Empty(t, m.Snapshot().Requests)
}
