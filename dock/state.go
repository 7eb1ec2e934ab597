package dock

import (
	"sync"
	"time"
)

// Snapshot is the most recent estimator cycle as served over HTTP
type Snapshot struct {
	Frame      string       `json:"frame"`
	Points     []Point      `json:"points"`
	Best       PoseEstimate `json:"best"`
	Goal       *Pose        `json:"goal,omitempty"`
	Candidates int          `json:"candidates"`
	Outcome    Outcome      `json:"outcome,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Counters are running totals since start-up
type Counters struct {
	Scans    int64 `json:"scans"`
	Dropped  int64 `json:"dropped"`
	Invalid  int64 `json:"invalid"`
	Accepted int64 `json:"accepted"`
	Goals    int64 `json:"goals"`
}

// StateTracker keeps the latest scan and detection for HTTP endpoints
type StateTracker struct {
	mu       sync.RWMutex
	last     *Snapshot
	counters Counters
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// UpdateDetection records the points and estimator result of one scan.
func (st *StateTracker) UpdateDetection(frame string, points []Point, result Result, goal *Pose) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.counters.Scans++
	st.last = &Snapshot{
		Frame:      frame,
		Points:     append([]Point(nil), points...),
		Best:       result.Best,
		Goal:       goal,
		Candidates: len(result.Candidates),
		Timestamp:  time.Now(),
	}
}

// RecordOutcome attaches the bridge outcome to the latest snapshot and counts it.
func (st *StateTracker) RecordOutcome(o Outcome) {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch o {
	case OutcomeBusy:
		st.counters.Dropped++
		return
	case OutcomeInvalidScan:
		// The rejected scan never became a snapshot.
		st.counters.Invalid++
		return
	case OutcomeSucceeded, OutcomeFailed, OutcomeTimedOut:
		st.counters.Accepted++
		st.counters.Goals++
	case OutcomeFrameUnavailable:
		st.counters.Accepted++
	}
	if st.last != nil {
		st.last.Outcome = o
	}
}

// GetSnapshot returns a copy of the latest snapshot
func (st *StateTracker) GetSnapshot() (Snapshot, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.last == nil {
		return Snapshot{}, false
	}
	snap := *st.last
	snap.Points = append([]Point(nil), st.last.Points...)
	return snap, true
}

// GetCounters returns the running totals
func (st *StateTracker) GetCounters() Counters {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.counters
}

// HasSnapshot returns true once a scan has been processed
func (st *StateTracker) HasSnapshot() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.last != nil
}
