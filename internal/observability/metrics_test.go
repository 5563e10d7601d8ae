package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(framesRouted.WithLabelValues("metrics-test", RouteJobID))
	RecordRoute("metrics-test", RouteJobID)
	RecordRoute("metrics-test", RouteJobID)
	assert.Equal(t, before+2, testutil.ToFloat64(framesRouted.WithLabelValues("metrics-test", RouteJobID)))

	RecordSourceError("metrics-test")
	RecordEviction("metrics-test", "Response")
	RecordConnectAttempt("tcp", true)

	SetUnmatchedDepth("metrics-test", 5)
	assert.Equal(t, float64(5), testutil.ToFloat64(unmatchedDepth.WithLabelValues("metrics-test")))
}
