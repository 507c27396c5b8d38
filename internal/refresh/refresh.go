// Package refresh keeps the cycle list in step with the window manager.
package refresh

import (
	"context"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/cycle"
	"github.com/bryanchriswhite/nicotine/internal/logger"
	"github.com/bryanchriswhite/nicotine/internal/window"
)

// Enumerator lists target windows; *window.Source implements it.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]window.Window, error)
}

// ActiveReporter reports the focused window; window.Backend implements it.
type ActiveReporter interface {
	ActiveWindow(ctx context.Context) (uint64, error)
}

// Config holds the loop settings
type Config struct {
	Interval time.Duration
	// EmptyTicksBeforeClear is how many consecutive empty enumerations it
	// takes to clear a populated list
	EmptyTicksBeforeClear int
	// FollowFocus moves the selection to a cycle window focused by other means
	FollowFocus bool
}

// Loop polls the enumerator and merges results into the controller.
// Enumeration runs outside the controller's lock; only the merge takes it.
type Loop struct {
	cfg    Config
	source Enumerator
	active ActiveReporter
	ctrl   *cycle.Controller

	trigger    chan struct{}
	emptyTicks int
}

// New creates a refresh loop. active may be nil.
func New(cfg Config, source Enumerator, active ActiveReporter, ctrl *cycle.Controller) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.EmptyTicksBeforeClear < 2 {
		cfg.EmptyTicksBeforeClear = 2
	}
	return &Loop{
		cfg:     cfg,
		source:  source,
		active:  active,
		ctrl:    ctrl,
		trigger: make(chan struct{}, 1),
	}
}

// Run ticks until ctx is done. The first tick runs immediately.
func (l *Loop) Run(ctx context.Context) error {
	log := logger.WithComponent("refresh")
	log.Info().Dur("interval", l.cfg.Interval).Msg("Refresh loop started")

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Refresh loop stopped")
			return nil
		case <-ticker.C:
			l.Tick(ctx)
		case <-l.trigger:
			l.tick(ctx, false)
		}
	}
}

// Trigger requests an out-of-band tick without waiting for it. Triggered
// ticks never clear the list: an empty result there waits for the next
// scheduled tick.
func (l *Loop) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
		// A tick is already pending
	}
}

// Tick runs one scheduled tick. Loop state is only touched from Run's
// goroutine, or directly by callers that do not run Run.
func (l *Loop) Tick(ctx context.Context) {
	l.tick(ctx, true)
}

func (l *Loop) tick(ctx context.Context, scheduled bool) {
	log := logger.WithComponent("refresh")

	windows, err := l.source.Enumerate(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("Enumeration failed, keeping current windows")
		}
		return
	}

	if len(windows) == 0 && l.ctrl.Len() > 0 {
		if !scheduled {
			log.Debug().Msg("Empty enumeration on triggered tick, waiting for the next interval")
			return
		}
		l.emptyTicks++
		if l.emptyTicks < l.cfg.EmptyTicksBeforeClear {
			log.Debug().Int("empty_ticks", l.emptyTicks).Msg("Empty enumeration, retrying next tick")
			return
		}
		log.Info().Int("empty_ticks", l.emptyTicks).Msg("No windows left, clearing cycle list")
	}
	if len(windows) > 0 {
		l.emptyTicks = 0
	}

	// seen pins the state the active window reading belongs to
	seen := l.ctrl.Generation()
	var active uint64
	if l.active != nil && (l.cfg.FollowFocus || l.ctrl.Snapshot().Selected == nil) {
		if id, err := l.active.ActiveWindow(ctx); err == nil {
			active = id
		} else {
			log.Debug().Err(err).Msg("Active window lookup failed")
		}
	}

	t, err := l.ctrl.Merge(ctx, windows, active)
	if err != nil {
		log.Warn().Err(err).Msg("Merge activation failed")
	}
	if t.Changed {
		log.Debug().Int("windows", len(windows)).Int("index", t.Index).Msg("Cycle list updated")
		if t.Generation == seen+1 {
			// Nothing else committed between the reading and the merge
			seen = t.Generation
		}
	}

	if l.cfg.FollowFocus {
		l.ctrl.FollowActive(ctx, active, seen)
	}
}
