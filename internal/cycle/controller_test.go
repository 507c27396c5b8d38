package cycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/window"
)

type fakeActivator struct {
	mu        sync.Mutex
	activated []uint64
	err       error
}

func (f *fakeActivator) Activate(ctx context.Context, w window.Window) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, w.Handle)
	return f.err
}

func (f *fakeActivator) calls() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.activated...)
}

type publishCall struct {
	index      int
	generation uint64
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
}

func (f *fakePublisher) Publish(index int, generation uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{index, generation})
	return nil
}

func (f *fakePublisher) published() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishCall(nil), f.calls...)
}

func newTestController(t *testing.T, hs ...uint64) (*Controller, *fakeActivator, *fakePublisher) {
	t.Helper()
	act := &fakeActivator{}
	pub := &fakePublisher{}
	c := NewController(act, pub)
	if len(hs) > 0 {
		if _, err := c.Merge(context.Background(), windows(hs...), 0); err != nil {
			t.Fatalf("Merge: %v", err)
		}
	}
	return c, act, pub
}

func TestControllerEndToEnd(t *testing.T) {
	ctx := context.Background()
	c, act, pub := newTestController(t)

	// Initial population only publishes.
	if _, err := c.Merge(ctx, windows(10, 20, 30), 0); err != nil {
		t.Fatal(err)
	}
	if got := len(act.calls()); got != 0 {
		t.Fatalf("initial merge activated %d windows", got)
	}

	steps := []struct {
		cmd        Command
		wantIdx    int
		wantHandle uint64
	}{
		{Forward, 1, 20},
		{Forward, 2, 30},
		{Forward, 0, 10},
		{Backward, 2, 30},
		{Target(2), 1, 20},
	}
	for _, step := range steps {
		tr, err := c.Apply(ctx, step.cmd, "test")
		if err != nil {
			t.Fatalf("%s: %v", step.cmd, err)
		}
		if !tr.Changed || tr.Index != step.wantIdx {
			t.Fatalf("%s: transition = %+v, want index %d", step.cmd, tr, step.wantIdx)
		}
		if calls := act.calls(); calls[len(calls)-1] != step.wantHandle {
			t.Fatalf("%s: activated %d, want %d", step.cmd, calls[len(calls)-1], step.wantHandle)
		}
	}

	// Out of range is a no-op.
	tr, err := c.Apply(ctx, Target(7), "test")
	if err != nil || tr.Changed {
		t.Fatalf("Target(7) = %+v, %v", tr, err)
	}

	if got := len(act.calls()); got != len(steps) {
		t.Errorf("activations = %d, want %d", got, len(steps))
	}
	calls := pub.published()
	if len(calls) != len(steps)+1 {
		t.Fatalf("publishes = %d, want %d", len(calls), len(steps)+1)
	}
	for i := 1; i < len(calls); i++ {
		if calls[i].generation <= calls[i-1].generation {
			t.Errorf("generation did not increase: %v", calls)
		}
	}
	if last := calls[len(calls)-1]; last.index != 1 {
		t.Errorf("last published index = %d, want 1", last.index)
	}
}

func TestControllerEmptyNoOps(t *testing.T) {
	ctx := context.Background()
	c, act, pub := newTestController(t)

	for _, cmd := range []Command{Forward, Backward, Target(1)} {
		tr, err := c.Apply(ctx, cmd, "test")
		if err != nil || tr.Changed {
			t.Errorf("%s on empty list = %+v, %v", cmd, tr, err)
		}
	}
	if len(act.calls()) != 0 || len(pub.published()) != 0 {
		t.Error("no-op commands had side effects")
	}
	if snap := c.Snapshot(); snap.Index != NoSelection || snap.Selected != nil {
		t.Errorf("snapshot = %+v", snap)
	}
}

// A window closing before the selection changes the selected window's index
// but not the window itself. The new index is published and nothing is
// activated: only a retarget to a different window activates.
func TestControllerIndexShiftPublishesWithoutActivating(t *testing.T) {
	ctx := context.Background()
	c, act, pub := newTestController(t, 1, 2, 3)
	c.Apply(ctx, Target(3), "test")
	activations := len(act.calls())
	publishes := len(pub.published())

	tr, err := c.Merge(ctx, windows(2, 3), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.Changed || tr.Index != 1 || tr.Activate {
		t.Errorf("index shift merge = %+v, want index 1 without activation", tr)
	}
	if len(act.calls()) != activations {
		t.Error("index shift activated the already focused window")
	}
	calls := pub.published()
	if len(calls) != publishes+1 || calls[len(calls)-1].index != 1 {
		t.Errorf("index shift not published: %v", calls)
	}
}

func TestControllerMergeRetargetActivates(t *testing.T) {
	ctx := context.Background()
	c, act, _ := newTestController(t, 1, 2, 3)
	c.Apply(ctx, Target(2), "test")

	tr, err := c.Merge(ctx, windows(2, 3), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.Changed || tr.Activate {
		t.Errorf("index shift merge = %+v", tr)
	}

	// Selected window closes: selection moves and the new window is focused.
	tr, err = c.Merge(ctx, windows(3), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.Activate || tr.Selected == nil || tr.Selected.Handle != 3 {
		t.Errorf("retarget merge = %+v", tr)
	}
	if calls := act.calls(); calls[len(calls)-1] != 3 {
		t.Errorf("activated %v, want 3 last", calls)
	}
}

func TestControllerFollowActive(t *testing.T) {
	ctx := context.Background()
	c, act, pub := newTestController(t, 1, 2, 3)
	published := len(pub.published())

	tr := c.FollowActive(ctx, 3, c.Generation())
	if !tr.Changed || tr.Index != 2 || tr.Activate {
		t.Errorf("FollowActive = %+v", tr)
	}
	if len(act.calls()) != 0 {
		t.Error("FollowActive activated a window")
	}
	if len(pub.published()) != published+1 {
		t.Error("FollowActive did not publish")
	}
	if tr := c.FollowActive(ctx, 99, c.Generation()); tr.Changed {
		t.Error("unknown window moved the selection")
	}
}

func TestControllerFollowActiveIgnoresStaleReading(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestController(t, 1, 2, 3)
	c.SetFocusSettle(0)

	seen := c.Generation()
	c.Apply(ctx, Forward, "mouse")
	if tr := c.FollowActive(ctx, 1, seen); tr.Changed {
		t.Errorf("reading older than a command moved the selection: %+v", tr)
	}
	if idx := c.Snapshot().Index; idx != 1 {
		t.Errorf("index = %d, want 1", idx)
	}

	c.SetFocusSettle(time.Hour)
	if tr := c.FollowActive(ctx, 3, c.Generation()); tr.Changed {
		t.Error("followed focus while an activation was settling")
	}
}

func TestControllerActivationError(t *testing.T) {
	ctx := context.Background()
	c, act, _ := newTestController(t, 1, 2)
	act.err = errors.New("window gone")

	tr, err := c.Apply(ctx, Forward, "test")
	if err == nil {
		t.Fatal("expected activation error")
	}
	if !tr.Changed || c.Snapshot().Index != 1 {
		t.Errorf("transition not committed: %+v", tr)
	}
}

func TestControllerConcurrentCommands(t *testing.T) {
	ctx := context.Background()
	const n = 5
	c, act, pub := newTestController(t, seq(n)...)

	var wg sync.WaitGroup
	forwards, backwards := 0, 0
	for g := 0; g < 8; g++ {
		cmd := Forward
		if g%3 == 0 {
			cmd = Backward
		}
		for i := 0; i < 50; i++ {
			if cmd == Forward {
				forwards++
			} else {
				backwards++
			}
		}
		wg.Add(1)
		go func(cmd Command) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := c.Apply(ctx, cmd, "test"); err != nil {
					t.Error(err)
				}
			}
		}(cmd)
	}
	wg.Wait()

	want := ((forwards-backwards)%n + n) % n
	snap := c.Snapshot()
	if snap.Index != want {
		t.Errorf("final index = %d, want %d", snap.Index, want)
	}
	if got := len(act.calls()); got != forwards+backwards {
		t.Errorf("activations = %d, want %d", got, forwards+backwards)
	}
	if snap.Generation != uint64(forwards+backwards+1) {
		t.Errorf("generation = %d, want %d", snap.Generation, forwards+backwards+1)
	}
	if got := len(pub.published()); got != forwards+backwards+1 {
		t.Errorf("publishes = %d, want %d", got, forwards+backwards+1)
	}
}

func TestControllerSubscribe(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestController(t, 1, 2)

	ch := c.Subscribe()
	c.Apply(ctx, Forward, "test")

	snap := <-ch
	if snap.Index != 1 || len(snap.Windows) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	c.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
}
