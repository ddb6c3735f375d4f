// Package liveness computes check-in deadlines and timeliness scores.
// Every function here is pure; callers pass the current time.
package liveness

import (
	"math"
	"time"

	"github.com/starford/heirloom/internal/models"
)

// MaxIntervalSeconds bounds check-in intervals at one hundred years.
const MaxIntervalSeconds int64 = 100 * 365 * 24 * 60 * 60

// ComputeStatus returns the deadline view for a plan with the given interval
// and last check-in, evaluated at now. Intervals are clamped to
// MaxIntervalSeconds so the deadline never wraps into the past.
func ComputeStatus(intervalSeconds int64, lastCheckInAt time.Time, isClaimInitiated bool, now time.Time) models.Status {
	next := deadline(lastCheckInAt, intervalSeconds)
	until := int64(next.Sub(now) / time.Second)
	if until < 0 {
		until = 0
	}
	return models.Status{
		NextDueAt:        next,
		SecondsUntilDue:  until,
		IsOverdue:        now.After(next),
		IsClaimInitiated: isClaimInitiated,
	}
}

func deadline(last time.Time, intervalSeconds int64) time.Time {
	intervalSeconds = min(max(intervalSeconds, 0), MaxIntervalSeconds)
	return time.Unix(last.Unix()+intervalSeconds, int64(last.Nanosecond())).UTC()
}

// ComputeTimeliness scores a check-in that arrived elapsedSeconds after the
// previous one. The result is in [0,100]; 100 means immediately, 0 means at
// or past the deadline.
func ComputeTimeliness(intervalSeconds, elapsedSeconds int64) int {
	if intervalSeconds <= 0 || elapsedSeconds >= intervalSeconds {
		return 0
	}
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	ratio := float64(intervalSeconds-elapsedSeconds) / float64(intervalSeconds)
	return int(math.Round(ratio * 100))
}

// IsDue reports whether an unclaimed plan should be claimed at now.
func IsDue(p *models.Plan, now time.Time) bool {
	if p.IsClaimInitiated {
		return false
	}
	return ComputeStatus(p.CheckInIntervalSeconds, p.LastCheckInAt, false, now).IsOverdue
}
