package observability

import (
	"testing"
	"time"

	"github.com/atriumlabs/twinctl/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordTransition(TransitionStarted)
	RecordTransition(TransitionCompleted)
	RecordTelemetry(TelemetryTimeout)
	RecordStaleDrop()
	RecordWireMessage("out", "discover_equipment")
	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
}
