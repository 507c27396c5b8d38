package cycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/logger"
	"github.com/bryanchriswhite/nicotine/internal/window"
)

// DefaultFocusSettle is how long after an activation the window manager's
// idea of the focused window is not trusted for FollowActive.
const DefaultFocusSettle = time.Second

// Activator focuses a window. window.Backend satisfies it.
type Activator interface {
	Activate(ctx context.Context, w window.Window) error
}

// Publisher mirrors the current index for observers outside the daemon.
type Publisher interface {
	Publish(index int, generation uint64) error
}

// Snapshot is a consistent copy of the shared state
type Snapshot struct {
	Index      int             `json:"index"`
	Generation uint64          `json:"generation"`
	Selected   *window.Window  `json:"selected,omitempty"`
	Windows    []window.Window `json:"windows"`
}

// Transition is the outcome of one command, merge or focus sync
type Transition struct {
	Changed    bool
	Index      int
	Generation uint64
	Selected   *window.Window
	// Activate is set when the selected window must be focused
	Activate bool
	Source   string
}

// Controller is the single owner of the shared cycle state. Every read and
// mutation happens under mu; activation, publication and subscriber
// notification happen after mu is released, using the values computed
// inside it.
type Controller struct {
	mu         sync.Mutex
	state      *State
	generation uint64
	// activatedAt is when the last activating transition committed
	activatedAt time.Time
	settle      time.Duration

	activator Activator
	publisher Publisher

	subsMu sync.RWMutex
	subs   []chan Snapshot
}

// NewController creates a controller with an empty cycle list. publisher
// may be nil.
func NewController(activator Activator, publisher Publisher) *Controller {
	return &Controller{
		state:     NewState(),
		settle:    DefaultFocusSettle,
		activator: activator,
		publisher: publisher,
	}
}

// SetFocusSettle changes how long FollowActive ignores the window manager
// after an activation.
func (c *Controller) SetFocusSettle(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settle = d
}

// Generation returns the number of committed transitions so far
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Apply runs cmd against the shared state. Forward, Backward and in-range
// Target commit and activate the resulting window; commands on an empty
// list and out-of-range targets are no-ops. The returned error only
// reports a failed activation; the transition itself is committed.
func (c *Controller) Apply(ctx context.Context, cmd Command, source string) (Transition, error) {
	c.mu.Lock()
	committed := c.state.Apply(cmd)
	t := c.transitionLocked(committed, committed, source)
	c.mu.Unlock()

	if !t.Changed {
		logger.WithComponent("cycle").Debug().
			Str("command", cmd.String()).
			Str("source", source).
			Int("windows", c.Len()).
			Msg("Command ignored")
		return t, nil
	}
	return t, c.commit(ctx, t)
}

// Merge replaces the cycle list with a fresh enumeration, keeping the
// selection on the same window when it still exists. active is the
// backend's focused window, used only when nothing was selected before.
//
// Only a retarget activates: the selected window closed and the selection
// moved to another one. A window closing earlier in the list shifts the
// selected window's index; that is published but not activated because
// the same window keeps focus.
func (c *Controller) Merge(ctx context.Context, windows []window.Window, active uint64) (Transition, error) {
	c.mu.Lock()
	res := c.state.Merge(windows, active)
	t := c.transitionLocked(res.Changed, res.Retargeted, "refresh")
	c.mu.Unlock()

	if !t.Changed {
		return t, nil
	}
	return t, c.commit(ctx, t)
}

// FollowActive moves the selection to a window the user focused by other
// means. The window is already focused, so nothing is activated.
//
// seen is the generation observed before handle was read from the window
// manager. If any transition committed since, or an activation is still
// settling, handle may predate it and is ignored.
func (c *Controller) FollowActive(ctx context.Context, handle uint64, seen uint64) Transition {
	if handle == 0 {
		return Transition{}
	}
	c.mu.Lock()
	if c.generation != seen || time.Since(c.activatedAt) < c.settle {
		t := Transition{Index: c.state.Index(), Generation: c.generation, Source: "focus"}
		c.mu.Unlock()
		return t
	}
	moved := c.state.SelectHandle(handle)
	t := c.transitionLocked(moved, false, "focus")
	c.mu.Unlock()

	if t.Changed {
		_ = c.commit(ctx, t)
	}
	return t
}

// transitionLocked bumps the generation for committed transitions. Caller
// holds mu.
func (c *Controller) transitionLocked(changed, activate bool, source string) Transition {
	t := Transition{Index: c.state.Index(), Generation: c.generation, Source: source}
	if !changed {
		return t
	}
	c.generation++
	t.Changed = true
	t.Generation = c.generation
	if w, ok := c.state.Selected(); ok {
		t.Selected = &w
		t.Activate = activate
	}
	if t.Activate {
		c.activatedAt = time.Now()
	}
	return t
}

// commit performs the side effects of a committed transition
func (c *Controller) commit(ctx context.Context, t Transition) error {
	log := logger.WithComponent("cycle")

	var activateErr error
	if t.Activate && t.Selected != nil && c.activator != nil {
		if err := c.activator.Activate(ctx, *t.Selected); err != nil {
			log.Warn().Err(err).
				Uint64("handle", t.Selected.Handle).
				Str("title", t.Selected.Title).
				Msg("Activation failed")
			activateErr = fmt.Errorf("activate %q: %w", t.Selected.Title, err)
		}
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(t.Index, t.Generation); err != nil {
			log.Warn().Err(err).Int("index", t.Index).Msg("Failed to publish index")
		}
	}

	ev := log.Debug().
		Str("source", t.Source).
		Int("index", t.Index).
		Uint64("generation", t.Generation).
		Bool("activate", t.Activate)
	if t.Selected != nil {
		ev = ev.Str("title", t.Selected.Title)
	}
	ev.Msg("Transition committed")

	c.notify()
	return activateErr
}

// Snapshot returns a consistent copy of the shared state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Index:      c.state.Index(),
		Generation: c.generation,
		Windows:    c.state.Windows(),
	}
	if w, ok := c.state.Selected(); ok {
		s.Selected = &w
	}
	return s
}

// Windows returns a copy of the cycle list
func (c *Controller) Windows() []window.Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Windows()
}

// Len returns the cycle list length
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Len()
}

// Subscribe returns a channel receiving a snapshot after every committed
// transition. Slow subscribers miss snapshots rather than block commits.
func (c *Controller) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 10)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription
func (c *Controller) Unsubscribe(ch chan Snapshot) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for i, sub := range c.subs {
		if sub == ch {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			close(ch)
			break
		}
	}
}

func (c *Controller) notify() {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	if len(c.subs) == 0 {
		return
	}

	snap := c.Snapshot()
	for _, sub := range c.subs {
		select {
		case sub <- snap:
		default:
			// Skip if channel is full
		}
	}
}
