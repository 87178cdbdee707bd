package bench

import (
	"fmt"
	"math"
	"time"
)

// TrialResult is the outcome of one baseline-versus-concurrent trial
type TrialResult struct {
	Config TrialConfig

	BaselineDuration   time.Duration
	ConcurrentDuration time.Duration // writer time while the reader ran
	ReaderDuration     time.Duration

	ReaderQueryAttempts int64
	FinalRowsObserved   int64

	BaselineCommitted   int64
	ConcurrentCommitted int64
	FailedTransactions  int // across both phases
	DrainIterations     int
	ReaderCompleted     bool
}

// Overhead computes the slowdown of the concurrent run relative to the
// baseline. The percentage is negative when the concurrent run was faster
// and zero when there is no baseline to compare against.
func Overhead(baseline, concurrent time.Duration) (seconds, percent float64) {
	seconds = concurrent.Seconds() - baseline.Seconds()
	if baseline <= 0 {
		return seconds, 0
	}
	return seconds, seconds / baseline.Seconds() * 100
}

// OverheadSeconds is ConcurrentDuration minus BaselineDuration, in seconds
func (r *TrialResult) OverheadSeconds() float64 {
	s, _ := Overhead(r.BaselineDuration, r.ConcurrentDuration)
	return s
}

// OverheadPercent is OverheadSeconds relative to the baseline
func (r *TrialResult) OverheadPercent() float64 {
	_, p := Overhead(r.BaselineDuration, r.ConcurrentDuration)
	return p
}

// Verdict classifies the overhead against an advisory threshold
type Verdict int

const (
	VerdictNegligible Verdict = iota
	VerdictSignificant
)

func (v Verdict) String() string {
	if v == VerdictSignificant {
		return "significant overhead"
	}
	return "negligible overhead"
}

// Classify compares |OverheadPercent| with thresholdPercent
func (r *TrialResult) Classify(thresholdPercent float64) Verdict {
	if math.Abs(r.OverheadPercent()) > thresholdPercent {
		return VerdictSignificant
	}
	return VerdictNegligible
}

// State is a Coordinator phase
type State int32

const (
	StateIdle State = iota
	StateBaselineRunning
	StateBaselineDone
	StateConcurrentRunning
	StateConcurrentDone
	StateReaderDraining
	StateComplete
	StateAborted
)

var stateNames = [...]string{
	StateIdle:              "Idle",
	StateBaselineRunning:   "BaselineRunning",
	StateBaselineDone:      "BaselineDone",
	StateConcurrentRunning: "ConcurrentRunning",
	StateConcurrentDone:    "ConcurrentDone",
	StateReaderDraining:    "ReaderDraining",
	StateComplete:          "Complete",
	StateAborted:           "Aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}
