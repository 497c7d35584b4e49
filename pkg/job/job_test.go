package job

import (
	"testing"
	"time"
)

func TestPriorityScores(t *testing.T) {
	cases := []struct {
		p    Priority
		want int64
	}{
		{Critical, 0},
		{High, 1000},
		{Medium, 2000},
		{Low, 3000},
	}
	for _, c := range cases {
		if got := c.p.tierScore(); got != c.want {
			t.Errorf("%s.tierScore() = %d, want %d", c.p, got, c.want)
		}
	}
}

func TestScoreMonotonicity(t *testing.T) {
	now := time.Now()
	critical := &Job{Priority: Critical, CreatedAt: now}
	high := &Job{Priority: High, CreatedAt: now}
	medium := &Job{Priority: Medium, CreatedAt: now}
	low := &Job{Priority: Low, CreatedAt: now}

	if !(critical.Score() < high.Score() && high.Score() < medium.Score() && medium.Score() < low.Score()) {
		t.Fatalf("expected strict score ordering, got critical=%d high=%d medium=%d low=%d",
			critical.Score(), high.Score(), medium.Score(), low.Score())
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		retryCount uint8
		want       time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{10, 300_000 * time.Millisecond},
		{20, 300_000 * time.Millisecond},
	}
	for _, c := range cases {
		j := &Job{RetryCount: c.retryCount}
		if got := j.BackoffDelay(); got != c.want {
			t.Errorf("BackoffDelay() with retry_count=%d = %v, want %v", c.retryCount, got, c.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	j := New("email.send", []byte(`{"to":"a@b.com"}`))
	if j.Status != Queued {
		t.Errorf("status = %s, want queued", j.Status)
	}
	if j.Priority != Medium {
		t.Errorf("priority = %s, want medium", j.Priority)
	}
	if j.MaxRetries != DefaultMaxRetries {
		t.Errorf("max_retries = %d, want %d", j.MaxRetries, DefaultMaxRetries)
	}
	if j.RetryCount != 0 {
		t.Errorf("retry_count = %d, want 0", j.RetryCount)
	}
}

func TestExhausted(t *testing.T) {
	j := &Job{MaxRetries: 3, RetryCount: 2}
	if j.Exhausted() {
		t.Fatal("expected not exhausted at retry_count=2, max_retries=3")
	}
	j.RetryCount = 3
	if !j.Exhausted() {
		t.Fatal("expected exhausted at retry_count=3, max_retries=3")
	}
}

func TestLockTTL(t *testing.T) {
	j := &Job{TimeoutMS: 30_000}
	want := 40 * time.Second
	if got := j.LockTTL(); got != want {
		t.Errorf("LockTTL() = %v, want %v", got, want)
	}
}

func TestScoreWithinTierJitterBounded(t *testing.T) {
	j := &Job{Priority: High, CreatedAt: time.Unix(0, 1_234_567*int64(time.Millisecond))}
	score := j.Score()
	if score < 1000 || score >= 2000 {
		t.Fatalf("score %d escaped its tier [1000,2000)", score)
	}
}
