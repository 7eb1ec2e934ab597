package dock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// GoalStatus is the terminal state a navigation service reports for a goal
type GoalStatus string

const (
	GoalSucceeded GoalStatus = "succeeded"
	GoalAborted   GoalStatus = "aborted"
	GoalRejected  GoalStatus = "rejected"
	GoalPreempted GoalStatus = "preempted"
)

var (
	// ErrGoalTimeout is returned when no result arrives before the goal context ends.
	ErrGoalTimeout = errors.New("navigation goal timed out")

	// ErrServerUnavailable is returned when the navigation service cannot be reached.
	ErrServerUnavailable = errors.New("navigation server unavailable")
)

// Goal is a navigation target in a named frame
type Goal struct {
	GoalID string `json:"goalId"`
	Frame  string `json:"frame"`
	Pose   Pose   `json:"pose"`
	Stamp  int64  `json:"stamp"`
}

// GoalResult is the reply on the goal result topic
type GoalResult struct {
	GoalID string     `json:"goalId"`
	Status GoalStatus `json:"status"`
}

// GoalSender dispatches a goal and blocks until it finishes or ctx is done.
type GoalSender interface {
	SendGoal(ctx context.Context, goal Goal) (GoalStatus, error)
}

// GoalClient speaks a small goal/result protocol over MQTT:
// goals go to <prefix>/goal, results come back on <prefix>/goal/result and
// abandoned goals are cancelled on <prefix>/goal/cancel.
type GoalClient struct {
	client       mqtt.Client
	prefix       string
	pollInterval time.Duration
	pending      map[string]chan GoalStatus
	mu           sync.Mutex
}

// NewGoalClient creates a goal client publishing under prefix
func NewGoalClient(client mqtt.Client, prefix string) *GoalClient {
	return &GoalClient{
		client:       client,
		prefix:       prefix,
		pollInterval: time.Second,
		pending:      make(map[string]chan GoalStatus),
	}
}

// GoalTopic is where goals are published
func (g *GoalClient) GoalTopic() string { return g.prefix + "/goal" }

// ResultTopic is where results are expected
func (g *GoalClient) ResultTopic() string { return g.prefix + "/goal/result" }

// CancelTopic is where abandoned goals are cancelled
func (g *GoalClient) CancelTopic() string { return g.prefix + "/goal/cancel" }

// SendGoal waits for the broker connection, publishes the goal under a fresh id and
// waits for its result. Both waits are bounded by ctx.
func (g *GoalClient) SendGoal(ctx context.Context, goal Goal) (GoalStatus, error) {
	if err := g.waitForServer(ctx); err != nil {
		return "", err
	}

	if goal.GoalID == "" {
		goal.GoalID = uuid.NewString()
	}
	if goal.Stamp == 0 {
		goal.Stamp = time.Now().UnixNano()
	}

	done := make(chan GoalStatus, 1)
	g.mu.Lock()
	g.pending[goal.GoalID] = done
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, goal.GoalID)
		g.mu.Unlock()
	}()

	payload, err := json.Marshal(goal)
	if err != nil {
		return "", fmt.Errorf("marshaling goal: %w", err)
	}

	token := g.client.Publish(g.GoalTopic(), 1, false, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return "", fmt.Errorf("publishing goal to %s: %w", g.GoalTopic(), token.Error())
	}
	log.Printf("[GOAL] sent %s: (%.3f, %.3f) heading=%.3f in %s",
		goal.GoalID, goal.Pose.X, goal.Pose.Y, goal.Pose.Heading, goal.Frame)

	select {
	case status := <-done:
		return status, nil
	case <-ctx.Done():
		g.cancel(goal.GoalID)
		return "", fmt.Errorf("%w: %s: %v", ErrGoalTimeout, goal.GoalID, ctx.Err())
	}
}

// waitForServer blocks until the broker connection is up.
func (g *GoalClient) waitForServer(ctx context.Context) error {
	if g.client == nil {
		return fmt.Errorf("%w: no MQTT client", ErrServerUnavailable)
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for !g.client.IsConnected() {
		log.Println("[GOAL] waiting for the navigation server to come up")
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrServerUnavailable, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (g *GoalClient) cancel(goalID string) {
	payload, _ := json.Marshal(GoalResult{GoalID: goalID})
	token := g.client.Publish(g.CancelTopic(), 1, false, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		log.Printf("[GOAL] cancelling %s: %v", goalID, token.Error())
	}
}

// HandleResult routes a result payload to the goal waiting on it.
// Results for unknown or finished goals are ignored.
func (g *GoalClient) HandleResult(payload []byte) error {
	var res GoalResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return fmt.Errorf("parsing goal result: %w", err)
	}

	switch res.Status {
	case GoalSucceeded, GoalAborted, GoalRejected, GoalPreempted:
	default:
		return fmt.Errorf("goal %s: unknown status %q", res.GoalID, res.Status)
	}

	g.mu.Lock()
	done, ok := g.pending[res.GoalID]
	g.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case done <- res.Status:
	default:
	}
	return nil
}
