package window

import (
	"context"
	"errors"
	"sync"

	"github.com/bryanchriswhite/nicotine/internal/logger"
)

// Switcher activates windows and minimizes the one it switched away from,
// so only the selected client renders. Restoring and minimizing are best
// effort; only a failed activation is reported.
type Switcher struct {
	backend Backend

	mu      sync.Mutex
	current Window
	hasCur  bool
}

// NewSwitcher wraps backend's activation with minimize and restore
func NewSwitcher(backend Backend) *Switcher {
	return &Switcher{backend: backend}
}

// Activate restores and focuses w, then minimizes the previously activated
// window.
func (s *Switcher) Activate(ctx context.Context, w Window) error {
	log := logger.WithComponent("switcher")

	s.mu.Lock()
	defer s.mu.Unlock()

	switching := !s.hasCur || s.current.Handle != w.Handle
	if switching {
		if err := s.backend.Restore(ctx, w); err != nil && !errors.Is(err, ErrUnsupported) {
			log.Debug().Err(err).Str("window", w.HexID()).Msg("Restore failed")
		}
	}
	if err := s.backend.Activate(ctx, w); err != nil {
		return err
	}

	if switching && s.hasCur {
		if err := s.backend.Minimize(ctx, s.current); err != nil && !errors.Is(err, ErrUnsupported) {
			log.Warn().Err(err).Str("window", s.current.HexID()).Msg("Minimize failed")
		}
	}
	s.current, s.hasCur = w, true
	return nil
}
