package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecorderExposesMetrics(t *testing.T) {
	r := New()
	r.JobSubmitted("email.send", "high")
	r.JobCompleted("email.send", "high", 0.2)
	r.JobRetried("email.send", "high", 1)
	r.JobWaitTime("email.send", "high", 1.5)
	r.SetQueueDepth(5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"ironforge_jobs_submitted_total",
		"ironforge_jobs_completed_total",
		"ironforge_jobs_retried_total{kind=\"email.send\",priority=\"high\",retry_count=\"1\"}",
		"ironforge_job_wait_time_seconds",
		"ironforge_queue_depth 5",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
