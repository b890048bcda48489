package metrics

import (
	"testing"
	"time"

	"crm/internal/domain/targets"
)

func TestRecordSyncBuckets(t *testing.T) {
	c := New()
	c.RecordSync(targets.StatusApplied, false)
	c.RecordSync(targets.StatusApplied, true)
	c.RecordSync(targets.StatusConflict, false)
	c.RecordSync(targets.StatusNotFound, false)
	c.RecordSync(targets.StatusValidationFailed, false)

	snap := c.Snapshot()
	want := map[string]uint64{
		"syncApplied":   2,
		"syncReplays":   1,
		"syncConflicts": 1,
		"syncNotFound":  1,
		"syncRejected":  1,
	}
	for key, expected := range want {
		if got := snap[key]; got != expected {
			t.Fatalf("%s = %v, want %d", key, got, expected)
		}
	}
}

func TestRecordRequestCounters(t *testing.T) {
	c := New()
	c.Record(200, 10*time.Millisecond)
	c.Record(500, 30*time.Millisecond)
	c.Record(429, 0)

	snap := c.Snapshot()
	if snap["requestsTotal"] != uint64(3) {
		t.Fatalf("requestsTotal = %v, want 3", snap["requestsTotal"])
	}
	if snap["errorsTotal"] != uint64(1) {
		t.Fatalf("errorsTotal = %v, want 1", snap["errorsTotal"])
	}
	if snap["rateLimitedTotal"] != uint64(1) {
		t.Fatalf("rateLimitedTotal = %v, want 1", snap["rateLimitedTotal"])
	}
}
