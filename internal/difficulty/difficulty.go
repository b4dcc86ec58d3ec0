// Package difficulty implements Pool mode's variable-difficulty adjuster
// (spec.md §4.2.2): every adjustment interval, a worker's recent share
// timings are compared against a target share interval and its difficulty
// retargeted, with a deadband to avoid oscillation and exponential
// smoothing to avoid overreacting to a single burst.
package difficulty

import (
	"sort"
	"time"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

// TargetShareTime is the share interval the adjuster steers workers toward.
const TargetShareTime = 10 * time.Second

const (
	// deadbandPercent is the inner zone around TargetShareTime where no
	// retarget happens, preventing oscillation around the target.
	deadbandPercent = 15.0

	// baseMaxChangePercent is the smallest per-retarget change allowed;
	// it grows with how far the observed share time deviates from
	// target, capped at maxChangeCeiling.
	baseMaxChangePercent = 0.10
	deviationScale       = 0.05
	maxChangeCeiling     = 0.15

	// smoothingFactor weights the newly computed ratio against "no
	// change" (1.0), so a single bad window nudges rather than snaps
	// the difficulty to its new value.
	smoothingFactor = 0.4

	// minChangePercent suppresses retargets too small to matter.
	minChangePercent = 0.02

	// minSamples bounds the share-time window a retarget needs.
	minSamples = 3
)

// Adjuster holds the min/max bounds and interval Pool mode's config
// validates at startup (daemon.Config.Pool.{Min,Max}Difficulty,
// DifficultyAdjustmentInterval).
type Adjuster struct {
	MinDifficulty float64
	MaxDifficulty float64
	Interval      time.Duration
}

// NewAdjuster builds an Adjuster from Pool mode's configured bounds.
func NewAdjuster(minDifficulty, maxDifficulty float64, interval time.Duration) *Adjuster {
	return &Adjuster{MinDifficulty: minDifficulty, MaxDifficulty: maxDifficulty, Interval: interval}
}

// Evaluate examines worker's recent share timings at now and returns the
// retargeted difficulty and whether it changed. It does not mutate worker;
// the caller applies the result under the registry's lock.
func (a *Adjuster) Evaluate(worker *miningtypes.Worker, now time.Time) (newDifficulty float64, changed bool) {
	if len(worker.RecentShareTimes) < minSamples {
		return worker.Difficulty, false
	}

	avgShareTime := trimmedMedianInterval(worker.RecentShareTimes)
	if avgShareTime <= 0 {
		return worker.Difficulty, false
	}

	deadband := time.Duration(float64(TargetShareTime) * (deadbandPercent / 100.0))
	if avgShareTime >= TargetShareTime-deadband && avgShareTime <= TargetShareTime+deadband {
		return worker.Difficulty, false
	}

	ratio := float64(TargetShareTime) / float64(avgShareTime)

	deviation := float64(avgShareTime-TargetShareTime) / float64(TargetShareTime)
	if deviation < 0 {
		deviation = -deviation
	}
	maxChange := baseMaxChangePercent + deviation*deviationScale
	if maxChange > maxChangeCeiling {
		maxChange = maxChangeCeiling
	}
	if ratio > 1.0+maxChange {
		ratio = 1.0 + maxChange
	} else if ratio < 1.0-maxChange {
		ratio = 1.0 - maxChange
	}

	ratio = ratio*smoothingFactor + (1.0 - smoothingFactor)

	candidate := a.clamp(worker.Difficulty * ratio)

	change := (candidate - worker.Difficulty) / worker.Difficulty
	if change < 0 {
		change = -change
	}
	if change < minChangePercent {
		return worker.Difficulty, false
	}
	return candidate, true
}

func (a *Adjuster) clamp(difficulty float64) float64 {
	if difficulty < a.MinDifficulty {
		return a.MinDifficulty
	}
	if difficulty > a.MaxDifficulty {
		return a.MaxDifficulty
	}
	return difficulty
}

// trimmedMedianInterval returns the median gap between consecutive
// timestamps in times (most recent last), trimming the top and bottom
// tenth of samples first when there are enough of them. The median of a
// trimmed set resists the single outlier share a mean would be skewed by.
func trimmedMedianInterval(times []time.Time) time.Duration {
	if len(times) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]))
	}

	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })

	trim := len(gaps) / 10
	if trim > 0 && len(gaps) > 10 {
		gaps = gaps[trim : len(gaps)-trim]
	}

	mid := len(gaps) / 2
	if len(gaps)%2 == 0 {
		return (gaps[mid-1] + gaps[mid]) / 2
	}
	return gaps[mid]
}
