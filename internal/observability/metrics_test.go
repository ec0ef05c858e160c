package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCountViolationsAndJobs(t *testing.T) {
	m := NewMetrics()

	m.RecordViolation("critical")
	m.RecordViolation("critical")
	m.RecordJobRun("sla-scan", "ok", time.Second)
	m.RecordJobRun("sla-scan", "skipped", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.violations.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("sla-scan", "skipped")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Millisecond)
		m.RecordError("/x", "GET", "NOT_FOUND")
		m.RecordViolation("low")
		m.RecordJobRun("j", "ok", time.Millisecond)
		m.RecordReconciled("case", "ok")
		m.RecordNotification("ticket_created", "ok")
		m.SetQueueDepth(3)
	})
}
