package input

import (
	"sync"

	"github.com/bryanchriswhite/nicotine/internal/config"
	"github.com/bryanchriswhite/nicotine/internal/cycle"
)

// Binding maps a key or button press to a cycle command. A non-zero
// Modifier must be held for the binding to fire.
type Binding struct {
	Code     uint16
	Modifier uint16
	Command  cycle.Command
}

// Recognizer turns raw key events into cycle commands. It tracks held keys
// so modifier bindings work.
type Recognizer struct {
	bindings []Binding

	mu   sync.Mutex
	held map[uint16]bool
}

// NewRecognizer creates a recognizer for bindings
func NewRecognizer(bindings []Binding) *Recognizer {
	return &Recognizer{
		bindings: append([]Binding(nil), bindings...),
		held:     make(map[uint16]bool),
	}
}

// Feed processes one event and returns the command it triggers, if any.
// Only EV_KEY press edges fire; repeats and releases only update held keys.
func (r *Recognizer) Feed(ev Event) (cycle.Command, bool) {
	if ev.Type != evKey {
		return cycle.Command{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Value {
	case keyRelease:
		delete(r.held, ev.Code)
		return cycle.Command{}, false
	case keyRepeat:
		return cycle.Command{}, false
	case keyPress:
	default:
		return cycle.Command{}, false
	}

	// Match before recording the press so a key never acts as its own modifier
	var plain *Binding
	for i := range r.bindings {
		b := &r.bindings[i]
		if b.Code != ev.Code {
			continue
		}
		if b.Modifier != 0 {
			if r.held[b.Modifier] {
				r.held[ev.Code] = true
				return b.Command, true
			}
			continue
		}
		if plain == nil {
			plain = b
		}
	}
	r.held[ev.Code] = true

	if plain != nil {
		return plain.Command, true
	}
	return cycle.Command{}, false
}

// MouseBindings returns the bindings for the configured mouse buttons
func MouseBindings(cfg config.MouseConfig) []Binding {
	var out []Binding
	if cfg.ForwardButton != 0 {
		out = append(out, Binding{Code: cfg.ForwardButton, Command: cycle.Forward})
	}
	if cfg.BackwardButton != 0 {
		out = append(out, Binding{Code: cfg.BackwardButton, Command: cycle.Backward})
	}
	return out
}

// KeyboardBindings returns the bindings for the configured keys. The i-th
// target key selects window i+1.
func KeyboardBindings(cfg config.KeyboardConfig) []Binding {
	var out []Binding
	if cfg.ForwardKey != 0 {
		out = append(out, Binding{Code: cfg.ForwardKey, Modifier: cfg.ForwardModifier, Command: cycle.Forward})
	}
	if cfg.BackwardKey != 0 {
		out = append(out, Binding{Code: cfg.BackwardKey, Modifier: cfg.BackwardModifier, Command: cycle.Backward})
	}
	for i, code := range cfg.TargetKeys {
		if code == 0 {
			continue
		}
		out = append(out, Binding{Code: code, Modifier: cfg.TargetModifier, Command: cycle.Target(i + 1)})
	}
	return out
}
