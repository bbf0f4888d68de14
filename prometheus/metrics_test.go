package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Packages under test call these helpers without a metrics registry, so
// every one of them must be a no-op before InitMetrics runs.
func TestHelpersAreNoOpsBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		TrackDBOperation("query")(time.Now())
		RecordSyncRun("customer", "success", time.Second)
		RecordSyncRecord("customer", "outbound", "success")
		RecordInstantSync("success")
		RecordTokenRefresh("success")
		RecordQBRequest("query", "200", time.Millisecond)
		RecordQBRetry("rate_limited")
		SetConnected(true)
	})
}
