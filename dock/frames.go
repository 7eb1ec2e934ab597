package dock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrFrameUnavailable is returned when no chain of transforms links two frames.
var ErrFrameUnavailable = errors.New("frame transform unavailable")

// FrameLookup resolves the transform that maps points in source into target.
type FrameLookup interface {
	WaitForTransform(ctx context.Context, target, source string) (AffineMatrix, error)
}

// FrameTree holds the latest transform from each child frame to its parent.
// Static frames come from config; dynamic ones arrive on the tf topic.
type FrameTree struct {
	parents map[string]FrameTransform // child -> link to parent
	changed chan struct{}
	mu      sync.RWMutex
}

// NewFrameTree creates a tree seeded with static transforms
func NewFrameTree(static []FrameTransform) *FrameTree {
	ft := &FrameTree{
		parents: make(map[string]FrameTransform),
		changed: make(chan struct{}),
	}
	for _, t := range static {
		ft.Update(t)
	}
	return ft
}

// Update inserts or replaces the link from t.Child to t.Parent and wakes waiters.
func (ft *FrameTree) Update(t FrameTransform) {
	ft.mu.Lock()
	ft.parents[t.Child] = t
	close(ft.changed)
	ft.changed = make(chan struct{})
	ft.mu.Unlock()
}

// HandleMessage decodes a FrameTransform JSON payload from the tf topic.
func (ft *FrameTree) HandleMessage(payload []byte) error {
	var t FrameTransform
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("parsing frame transform: %w", err)
	}
	if t.Parent == "" || t.Child == "" || t.Parent == t.Child {
		return fmt.Errorf("frame transform needs distinct parent and child, got %q -> %q", t.Child, t.Parent)
	}
	ft.Update(t)
	return nil
}

// Lookup returns the transform mapping points expressed in source into target.
func (ft *FrameTree) Lookup(target, source string) (AffineMatrix, error) {
	if target == source {
		return Identity(), nil
	}

	ft.mu.RLock()
	defer ft.mu.RUnlock()

	srcRoot, srcToRoot, srcOK := ft.toRoot(source)
	tgtRoot, tgtToRoot, tgtOK := ft.toRoot(target)
	if !srcOK || !tgtOK || srcRoot != tgtRoot {
		return Identity(), fmt.Errorf("%w: %s -> %s", ErrFrameUnavailable, source, target)
	}
	return MultiplyMatrices(InvertMatrix(tgtToRoot), srcToRoot), nil
}

// toRoot walks parent links from frame and returns the root reached and the
// frame-to-root transform. Caller holds the read lock.
func (ft *FrameTree) toRoot(frame string) (string, AffineMatrix, bool) {
	m := Identity()
	current := frame
	// A cycle can only be as long as the number of links.
	for range len(ft.parents) + 1 {
		link, ok := ft.parents[current]
		if !ok {
			return current, m, true
		}
		m = MultiplyMatrices(link.Matrix(), m)
		current = link.Parent
	}
	log.Printf("[FRAMES] cycle detected walking up from %s", frame)
	return "", m, false
}

// WaitForTransform blocks until target and source are linked or ctx is done.
func (ft *FrameTree) WaitForTransform(ctx context.Context, target, source string) (AffineMatrix, error) {
	for {
		ft.mu.RLock()
		changed := ft.changed
		ft.mu.RUnlock()

		m, err := ft.Lookup(target, source)
		if err == nil {
			return m, nil
		}

		select {
		case <-ctx.Done():
			return Identity(), fmt.Errorf("%w: %s -> %s: %v", ErrFrameUnavailable, source, target, ctx.Err())
		case <-changed:
		}
	}
}

// Frames returns a copy of every known link
func (ft *FrameTree) Frames() []FrameTransform {
	ft.mu.RLock()
	defer ft.mu.RUnlock()
	out := make([]FrameTransform, 0, len(ft.parents))
	for _, t := range ft.parents {
		out = append(out, t)
	}
	return out
}
