package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/cycle"
	"github.com/bryanchriswhite/nicotine/internal/window"
)

type fakeSource struct {
	mu      sync.Mutex
	results [][]window.Window
	errs    []error
	calls   int
}

func (f *fakeSource) Enumerate(ctx context.Context) ([]window.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.results[i], err
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeActive struct{ handle uint64 }

func (f fakeActive) ActiveWindow(ctx context.Context) (uint64, error) {
	return f.handle, nil
}

func wins(hs ...uint64) []window.Window {
	out := make([]window.Window, len(hs))
	for i, h := range hs {
		out[i] = window.Window{Handle: h, Title: "char", Ordinal: i + 1}
	}
	return out
}

func TestSingleEmptyTickDoesNotClear(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{results: [][]window.Window{wins(1, 2), nil, wins(1, 2)}}
	ctrl := cycle.NewController(nil, nil)
	l := New(Config{Interval: time.Second, EmptyTicksBeforeClear: 2}, src, nil, ctrl)

	l.Tick(ctx)
	ctrl.Apply(ctx, cycle.Forward, "test")
	l.Tick(ctx)
	if ctrl.Len() != 2 || ctrl.Snapshot().Index != 1 {
		t.Fatalf("single empty tick changed state: %+v", ctrl.Snapshot())
	}
	l.Tick(ctx)
	if ctrl.Snapshot().Index != 1 {
		t.Errorf("index = %d, want 1", ctrl.Snapshot().Index)
	}
}

func TestConsecutiveEmptyTicksClear(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{results: [][]window.Window{wins(1, 2), nil, nil}}
	ctrl := cycle.NewController(nil, nil)
	l := New(Config{Interval: time.Second, EmptyTicksBeforeClear: 2}, src, nil, ctrl)

	l.Tick(ctx)
	l.Tick(ctx)
	if ctrl.Len() != 2 {
		t.Fatal("cleared after one empty tick")
	}
	l.Tick(ctx)
	if ctrl.Len() != 0 || ctrl.Snapshot().Index != cycle.NoSelection {
		t.Errorf("not cleared after two empty ticks: %+v", ctrl.Snapshot())
	}
}

func TestEnumerationErrorKeepsState(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("compositor gone")
	src := &fakeSource{
		results: [][]window.Window{wins(1, 2), nil, nil, nil},
		errs:    []error{nil, boom, boom, boom},
	}
	ctrl := cycle.NewController(nil, nil)
	l := New(Config{Interval: time.Second}, src, nil, ctrl)

	for i := 0; i < 4; i++ {
		l.Tick(ctx)
	}
	if ctrl.Len() != 2 {
		t.Errorf("errors cleared the list: len = %d", ctrl.Len())
	}
}

func TestMinimumEmptyTicks(t *testing.T) {
	l := New(Config{EmptyTicksBeforeClear: 1}, &fakeSource{}, nil, cycle.NewController(nil, nil))
	if l.cfg.EmptyTicksBeforeClear != 2 {
		t.Errorf("EmptyTicksBeforeClear = %d, want 2", l.cfg.EmptyTicksBeforeClear)
	}
	if l.cfg.Interval <= 0 {
		t.Error("interval not defaulted")
	}
}

func TestInitialSelectionUsesActiveWindow(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{results: [][]window.Window{wins(1, 2, 3)}}
	ctrl := cycle.NewController(nil, nil)
	l := New(Config{Interval: time.Second}, src, fakeActive{handle: 2}, ctrl)

	l.Tick(ctx)
	if ctrl.Snapshot().Index != 1 {
		t.Errorf("index = %d, want 1", ctrl.Snapshot().Index)
	}
}

func TestFollowFocus(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{results: [][]window.Window{wins(1, 2, 3)}}
	ctrl := cycle.NewController(nil, nil)
	active := &fakeActive{}
	l := New(Config{Interval: time.Second, FollowFocus: true}, src, active, ctrl)

	l.Tick(ctx)
	if ctrl.Snapshot().Index != 0 {
		t.Fatalf("index = %d, want 0", ctrl.Snapshot().Index)
	}

	l.active = fakeActive{handle: 3}
	l.Tick(ctx)
	if ctrl.Snapshot().Index != 2 {
		t.Errorf("index after focus change = %d, want 2", ctrl.Snapshot().Index)
	}
}

// commandDuringLookup issues a cycle command while the active window is
// being read, the way a mouse press can land mid-tick.
type commandDuringLookup struct {
	ctrl   *cycle.Controller
	handle uint64
}

func (c commandDuringLookup) ActiveWindow(ctx context.Context) (uint64, error) {
	c.ctrl.Apply(ctx, cycle.Forward, "mouse")
	return c.handle, nil
}

type recordingActivator struct {
	mu      sync.Mutex
	handles []uint64
}

func (a *recordingActivator) Activate(ctx context.Context, w window.Window) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handles = append(a.handles, w.Handle)
	return nil
}

func TestFollowFocusKeepsCommandIssuedDuringTick(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{results: [][]window.Window{wins(1, 2, 3)}}
	act := &recordingActivator{}
	ctrl := cycle.NewController(act, nil)
	ctrl.Merge(ctx, wins(1, 2, 3), 0)

	l := New(Config{Interval: time.Second, FollowFocus: true}, src, commandDuringLookup{ctrl: ctrl, handle: 1}, ctrl)
	l.Tick(ctx)

	snap := ctrl.Snapshot()
	if snap.Index != 1 || snap.Selected == nil || snap.Selected.Handle != 2 {
		t.Errorf("forward undone by focus sync: index=%d selected=%+v", snap.Index, snap.Selected)
	}
	if len(act.handles) != 1 || act.handles[0] != 2 {
		t.Errorf("activated %v, want [2]", act.handles)
	}
}

func TestFollowFocusWaitsForActivationToSettle(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{results: [][]window.Window{wins(1, 2, 3)}}
	ctrl := cycle.NewController(&recordingActivator{}, nil)
	// The window manager still reports window 1 right after activating 2
	l := New(Config{Interval: time.Second, FollowFocus: true}, src, fakeActive{handle: 1}, ctrl)

	l.Tick(ctx)
	ctrl.Apply(ctx, cycle.Forward, "ipc")
	l.Tick(ctx)
	if idx := ctrl.Snapshot().Index; idx != 1 {
		t.Fatalf("index = %d, want 1 while activation settles", idx)
	}

	// Once settled, a window focused by other means is followed again
	ctrl.SetFocusSettle(0)
	l.Tick(ctx)
	if idx := ctrl.Snapshot().Index; idx != 0 {
		t.Errorf("index = %d, want 0 after settling", idx)
	}
}

func TestTriggeredEmptyTicksDoNotClear(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{results: [][]window.Window{wins(1, 2), nil}}
	ctrl := cycle.NewController(nil, nil)
	l := New(Config{Interval: time.Second, EmptyTicksBeforeClear: 2}, src, nil, ctrl)

	l.Tick(ctx)
	l.Tick(ctx)
	for i := 0; i < 3; i++ {
		l.tick(ctx, false)
	}
	if ctrl.Len() != 2 {
		t.Fatalf("triggered ticks cleared the list after one scheduled empty tick")
	}

	l.Tick(ctx)
	if ctrl.Len() != 0 {
		t.Errorf("second scheduled empty tick did not clear: len = %d", ctrl.Len())
	}
}

func TestRunTicksAndTrigger(t *testing.T) {
	src := &fakeSource{results: [][]window.Window{wins(1)}}
	ctrl := cycle.NewController(nil, nil)
	l := New(Config{Interval: time.Hour}, src, nil, ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitFor(t, func() bool { return src.count() >= 1 })
	l.Trigger()
	waitFor(t, func() bool { return src.count() >= 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
