package dock

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
)

// Outcome is how one bridge cycle ended
type Outcome string

const (
	OutcomeSucceeded        Outcome = "succeeded"         // goal reached
	OutcomeFailed           Outcome = "failed"            // navigation reported failure
	OutcomeTimedOut         Outcome = "timed_out"         // no result within the goal timeout
	OutcomeRejected         Outcome = "rejected"          // no detection at or above threshold
	OutcomeBusy             Outcome = "busy"              // dropped, a cycle was already running
	OutcomeFrameUnavailable Outcome = "frame_unavailable" // sensor-to-base transform missing
	OutcomeInvalidScan      Outcome = "invalid_scan"
)

// BridgeOption configures optional Bridge collaborators.
type BridgeOption func(*Bridge)

// WithMarkerSink publishes a marker and detection every cycle.
func WithMarkerSink(sink MarkerSink) BridgeOption {
	return func(b *Bridge) {
		b.markers = sink
	}
}

// WithStateTracker records every cycle for the HTTP endpoints.
func WithStateTracker(st *StateTracker) BridgeOption {
	return func(b *Bridge) {
		b.state = st
	}
}

// Bridge turns scans into navigation goals: estimate, show, decide, transform,
// dispatch. Only one cycle runs at a time; scans arriving meanwhile are dropped.
type Bridge struct {
	estimator *Estimator
	frames    FrameLookup
	goals     GoalSender
	markers   MarkerSink
	state     *StateTracker
	cfg       BridgeConfig
	threshold float64
	busy      atomic.Bool
	dropped   atomic.Int64
}

// NewBridge wires the estimator to its collaborators.
func NewBridge(est *Estimator, frames FrameLookup, goals GoalSender, cfg BridgeConfig, opts ...BridgeOption) (*Bridge, error) {
	if est == nil {
		return nil, configErrorf("bridge.estimator", "is required")
	}
	if frames == nil || goals == nil {
		return nil, configErrorf("bridge", "frame lookup and goal sender are required")
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = DefaultFrameTimeout
	}
	if cfg.GoalTimeout <= 0 {
		cfg.GoalTimeout = DefaultGoalTimeout
	}
	threshold := cfg.GetThreshold()
	if threshold < 0 {
		return nil, configErrorf("bridge.threshold", "must not be negative, got %v", threshold)
	}

	b := &Bridge{
		estimator: est,
		frames:    frames,
		goals:     goals,
		cfg:       cfg,
		threshold: threshold,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Threshold returns the acceptance threshold
func (b *Bridge) Threshold() float64 {
	return b.threshold
}

// Accept reports whether a score is good enough to act on. A score equal to the
// threshold is accepted.
func (b *Bridge) Accept(score float64) bool {
	return score >= b.threshold
}

// Dropped returns how many scans were dropped because a cycle was running
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// HandleScan runs one full cycle for a scan. Collaborator failures end the cycle with
// a matching Outcome and a non-nil error; nothing is retried.
func (b *Bridge) HandleScan(ctx context.Context, scan *LaserScan) (Outcome, error) {
	if !b.busy.CompareAndSwap(false, true) {
		n := b.dropped.Add(1)
		log.Printf("[BRIDGE] cycle in progress, dropping scan (%d dropped)", n)
		b.record(OutcomeBusy)
		return OutcomeBusy, nil
	}
	defer b.busy.Store(false)

	result, err := b.estimator.EstimateScan(*scan)
	if err != nil {
		log.Printf("[BRIDGE] rejecting scan: %v", err)
		b.record(OutcomeInvalidScan)
		return OutcomeInvalidScan, err
	}

	sensor := scan.FrameID
	if sensor == "" {
		sensor = b.cfg.SensorFrame
	}
	best := result.Best
	log.Printf("[BRIDGE] scan with %d readings, %d candidates, best: (%.3f, %.3f) heading=%.3f score=%.2f",
		len(scan.Ranges), len(result.Candidates), best.X, best.Y, best.Heading, best.Score)

	if !result.Found() {
		if b.state != nil {
			b.state.UpdateDetection(sensor, scan.Points(), result, nil)
		}
		b.show(NewDockMarker(sensor, Pose{}, false), Detection{Frame: sensor, Estimate: best})
		b.record(OutcomeRejected)
		return OutcomeRejected, nil
	}

	goal := b.estimator.Template().GoalPose(best.Pose)
	if b.state != nil {
		b.state.UpdateDetection(sensor, scan.Points(), result, &goal)
	}

	frameCtx, cancel := context.WithTimeout(ctx, b.cfg.FrameTimeout)
	toBase, frameErr := b.frames.WaitForTransform(frameCtx, b.cfg.BaseFrame, sensor)
	cancel()

	goalFrame := sensor
	if frameErr != nil {
		log.Printf("[BRIDGE] %v", frameErr)
	} else {
		goalFrame = b.cfg.BaseFrame
		goal = TransformPose(goal, toBase)
	}

	accepted := b.Accept(best.Score)
	b.show(NewDockMarker(goalFrame, goal, true), Detection{
		Frame:     sensor,
		Estimate:  best,
		Goal:      &goal,
		GoalFrame: goalFrame,
		Accepted:  accepted,
	})

	if !accepted {
		b.record(OutcomeRejected)
		return OutcomeRejected, nil
	}
	if frameErr != nil {
		b.record(OutcomeFrameUnavailable)
		return OutcomeFrameUnavailable, fmt.Errorf("transforming goal to %s: %w", b.cfg.BaseFrame, frameErr)
	}

	outcome, err := b.dispatch(ctx, goal)
	b.record(outcome)
	return outcome, err
}

// dispatch sends the goal and waits for it within the goal timeout.
func (b *Bridge) dispatch(ctx context.Context, pose Pose) (Outcome, error) {
	goalCtx, cancel := context.WithTimeout(ctx, b.cfg.GoalTimeout)
	defer cancel()

	status, err := b.goals.SendGoal(goalCtx, Goal{Frame: b.cfg.BaseFrame, Pose: pose})
	if err != nil {
		if goalCtx.Err() != nil {
			log.Printf("[BRIDGE] goal timed out after %v: %v", b.cfg.GoalTimeout, err)
			return OutcomeTimedOut, err
		}
		log.Printf("[BRIDGE] goal dispatch failed: %v", err)
		return OutcomeFailed, err
	}

	if status != GoalSucceeded {
		log.Printf("[BRIDGE] the base failed to move to the goal (%s)", status)
		return OutcomeFailed, fmt.Errorf("navigation goal %s", status)
	}
	log.Println("[BRIDGE] the base moved to the goal")
	return OutcomeSucceeded, nil
}

func (b *Bridge) show(m Marker, d Detection) {
	if b.markers == nil {
		return
	}
	if err := b.markers.PublishMarker(m); err != nil {
		log.Printf("[BRIDGE] publishing marker: %v", err)
	}
	if err := b.markers.PublishDetection(d); err != nil {
		log.Printf("[BRIDGE] publishing detection: %v", err)
	}
}

func (b *Bridge) record(o Outcome) {
	if b.state != nil {
		b.state.RecordOutcome(o)
	}
}
