package liveness

import (
	"testing"
	"time"

	"github.com/starford/heirloom/internal/models"
)

func TestComputeTimeliness(t *testing.T) {
	cases := []struct {
		interval, elapsed int64
		want              int
	}{
		{86400, 3600, 96},
		{86400, 90000, 0},
		{86400, 86400, 0},
		{0, 100, 0},
		{-5, 1, 0},
		{100, 0, 100},
		{100, -10, 100},
		{3600, 1800, 50},
	}
	for _, c := range cases {
		if got := ComputeTimeliness(c.interval, c.elapsed); got != c.want {
			t.Errorf("ComputeTimeliness(%d, %d) = %d, want %d", c.interval, c.elapsed, got, c.want)
		}
	}
}

func TestComputeStatus_Overdue(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	st := ComputeStatus(86400, now.Add(-90000*time.Second), false, now)
	if !st.IsOverdue {
		t.Error("expected overdue")
	}
	if st.SecondsUntilDue != 0 {
		t.Errorf("SecondsUntilDue = %d, want 0", st.SecondsUntilDue)
	}
	if want := now.Add(-3600 * time.Second); !st.NextDueAt.Equal(want) {
		t.Errorf("NextDueAt = %v, want %v", st.NextDueAt, want)
	}
}

func TestComputeStatus_NotYetDue(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	st := ComputeStatus(3600, now.Add(-600*time.Second), true, now)
	if st.IsOverdue {
		t.Error("should not be overdue")
	}
	if st.SecondsUntilDue != 3000 {
		t.Errorf("SecondsUntilDue = %d, want 3000", st.SecondsUntilDue)
	}
	if !st.IsClaimInitiated {
		t.Error("claim flag should pass through")
	}
}

func TestComputeStatus_ExactDeadlineIsNotOverdue(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	st := ComputeStatus(60, now.Add(-60*time.Second), false, now)
	if st.IsOverdue {
		t.Error("now == deadline must not be overdue")
	}
}

func TestIsDue(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := &models.Plan{CheckInIntervalSeconds: 3600, LastCheckInAt: now.Add(-3601 * time.Second)}
	if !IsDue(p, now) {
		t.Error("overdue unclaimed plan should be due")
	}
	p.IsClaimInitiated = true
	if IsDue(p, now) {
		t.Error("claimed plan is never due")
	}
}

func TestComputeStatus_LargeIntervalStaysInFuture(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	for _, interval := range []int64{MaxIntervalSeconds, 10_000_000_000, 1<<63 - 1} {
		st := ComputeStatus(interval, now, false, now)
		if st.IsOverdue {
			t.Errorf("interval %d: fresh plan reported overdue, next due %v", interval, st.NextDueAt)
		}
		if !st.NextDueAt.After(now) {
			t.Errorf("interval %d: NextDueAt = %v, want after %v", interval, st.NextDueAt, now)
		}
		if IsDue(&models.Plan{CheckInIntervalSeconds: interval, LastCheckInAt: now}, now) {
			t.Errorf("interval %d: IsDue = true at creation", interval)
		}
	}
}
