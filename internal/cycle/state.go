// Package cycle owns the ordered list of target windows and the current
// selection. State is the pure state machine; Controller guards one State
// with a mutex and performs activation and index publication after each
// committed transition.
package cycle

import (
	"fmt"
	"strconv"

	"github.com/bryanchriswhite/nicotine/internal/window"
)

// NoSelection is the index of an empty cycle list.
const NoSelection = -1

// Op identifies a cycle command
type Op int

const (
	OpForward Op = iota + 1
	OpBackward
	OpTarget
)

// Command is one unit of work for the state machine. N is the 1-based
// ordinal for OpTarget.
type Command struct {
	Op Op
	N  int
}

var (
	Forward  = Command{Op: OpForward}
	Backward = Command{Op: OpBackward}
)

// Target selects the n-th window, counting from 1.
func Target(n int) Command {
	return Command{Op: OpTarget, N: n}
}

func (c Command) String() string {
	switch c.Op {
	case OpForward:
		return "forward"
	case OpBackward:
		return "backward"
	case OpTarget:
		return strconv.Itoa(c.N)
	default:
		return fmt.Sprintf("op(%d)", int(c.Op))
	}
}

// State is the cycle list plus the current index. It is not safe for
// concurrent use.
type State struct {
	windows []window.Window
	index   int
}

// NewState returns an empty state with no selection
func NewState() *State {
	return &State{index: NoSelection}
}

// Len returns the number of windows in the cycle list
func (s *State) Len() int {
	return len(s.windows)
}

// Index returns the current index or NoSelection
func (s *State) Index() int {
	return s.index
}

// Windows returns a copy of the cycle list
func (s *State) Windows() []window.Window {
	return append([]window.Window(nil), s.windows...)
}

// Selected returns the selected window
func (s *State) Selected() (window.Window, bool) {
	if s.index < 0 || s.index >= len(s.windows) {
		return window.Window{}, false
	}
	return s.windows[s.index], true
}

// Forward advances the selection, wrapping from the last window to the
// first. Returns false on an empty list.
func (s *State) Forward() bool {
	n := len(s.windows)
	if n == 0 {
		return false
	}
	if s.index < 0 {
		s.index = 0
		return true
	}
	s.index = (s.index + 1) % n
	return true
}

// Backward moves the selection back, wrapping from the first window to the
// last. Returns false on an empty list.
func (s *State) Backward() bool {
	n := len(s.windows)
	if n == 0 {
		return false
	}
	if s.index < 0 {
		s.index = n - 1
		return true
	}
	s.index = (s.index - 1 + n) % n
	return true
}

// Target selects the window at 1-based ordinal n. Out of range is a no-op.
func (s *State) Target(n int) bool {
	if n < 1 || n > len(s.windows) {
		return false
	}
	s.index = n - 1
	return true
}

// Apply runs cmd and reports whether it committed
func (s *State) Apply(cmd Command) bool {
	switch cmd.Op {
	case OpForward:
		return s.Forward()
	case OpBackward:
		return s.Backward()
	case OpTarget:
		return s.Target(cmd.N)
	default:
		return false
	}
}

// MergeResult describes what a merge did to the selection
type MergeResult struct {
	// Changed is set when the index or the selected window changed
	Changed bool
	// Retargeted is set when a previous selection now points at a
	// different window because the selected one went away
	Retargeted bool
}

// Merge replaces the cycle list with windows. The selection follows the
// selected window's handle. When that window is gone the selection keeps the
// same position if it is still valid, else moves to the last window, else
// becomes NoSelection. With no previous selection the active window is
// chosen when present, else the first window.
func (s *State) Merge(windows []window.Window, active uint64) MergeResult {
	prev, hadSelection := s.Selected()
	prevIndex := s.index

	s.windows = dedupe(windows)
	n := len(s.windows)

	switch {
	case n == 0:
		s.index = NoSelection
	case hadSelection:
		if i := s.find(prev.Handle); i >= 0 {
			s.index = i
		} else if prevIndex < n {
			s.index = prevIndex
		} else {
			s.index = n - 1
		}
	default:
		s.index = 0
		if i := s.find(active); active != 0 && i >= 0 {
			s.index = i
		}
	}

	cur, hasSelection := s.Selected()
	res := MergeResult{
		Changed: s.index != prevIndex || hasSelection != hadSelection ||
			(hasSelection && cur.Handle != prev.Handle),
	}
	res.Retargeted = hadSelection && hasSelection && cur.Handle != prev.Handle
	return res
}

// SelectHandle moves the selection to the window with handle. Returns false
// when the window is unknown or already selected.
func (s *State) SelectHandle(handle uint64) bool {
	i := s.find(handle)
	if i < 0 || i == s.index {
		return false
	}
	s.index = i
	return true
}

func (s *State) find(handle uint64) int {
	for i, w := range s.windows {
		if w.Handle == handle {
			return i
		}
	}
	return -1
}

// dedupe copies windows dropping repeated handles, first occurrence wins
func dedupe(windows []window.Window) []window.Window {
	out := make([]window.Window, 0, len(windows))
	seen := make(map[uint64]bool, len(windows))
	for _, w := range windows {
		if seen[w.Handle] {
			continue
		}
		seen[w.Handle] = true
		out = append(out, w)
	}
	return out
}
