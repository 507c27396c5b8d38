package window

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/nicotine/internal/logger"
)

// ErrUnsupported is returned by optional backend operations a display server
// cannot perform.
var ErrUnsupported = errors.New("operation not supported by backend")

// Window identifies one target window
type Window struct {
	// Handle is the backend's opaque window identifier
	Handle uint64 `json:"handle"`
	// Title is the display title with the configured prefix removed
	Title string `json:"title"`
	// Ordinal is the 1-based position assigned at enumeration time
	Ordinal int `json:"ordinal"`
	// Monitor is the output the window is on, when the backend knows it
	Monitor string `json:"monitor,omitempty"`
	// Bounds is the window's frame at enumeration time, when the backend
	// reports it
	Bounds Geometry `json:"-"`
}

// HexID formats a handle the way X11 tools print window ids.
func (w Window) HexID() string {
	return fmt.Sprintf("0x%08x", w.Handle)
}

// Locator is implemented by backends that only look up window positions on
// demand. Locate fills in Bounds.
type Locator interface {
	Locate(ctx context.Context, windows []Window) []Window
}

// Geometry is a target rectangle in screen coordinates
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Backend defines the capability provider for one display-server family
type Backend interface {
	// Name returns the backend name (e.g., "x11", "sway")
	Name() string

	// Enumerate returns candidate windows in the window manager's own order.
	// Titles are returned unfiltered.
	Enumerate(ctx context.Context) ([]Window, error)

	// Activate focuses and raises a window
	Activate(ctx context.Context, w Window) error

	// Monitors lists the active outputs. An empty list means unknown.
	Monitors(ctx context.Context) ([]Monitor, error)

	// Stack moves every window to its planned geometry. Best effort.
	Stack(ctx context.Context, placements []Placement) error

	// Minimize hides a window; Restore brings it back. Either may return
	// ErrUnsupported.
	Minimize(ctx context.Context, w Window) error
	Restore(ctx context.Context, w Window) error

	// ActiveWindow returns the handle of the focused window, 0 if unknown
	ActiveWindow(ctx context.Context) (uint64, error)

	// Close releases display-server connections
	Close() error
}

// DetectBackend picks a backend name from the session environment.
func DetectBackend(getenv func(string) string) (string, error) {
	switch {
	case getenv("HYPRLAND_INSTANCE_SIGNATURE") != "":
		return "hyprland", nil
	case getenv("SWAYSOCK") != "":
		return "sway", nil
	case strings.Contains(strings.ToUpper(getenv("XDG_CURRENT_DESKTOP")), "KDE") && getenv("WAYLAND_DISPLAY") != "":
		return "kwin", nil
	case getenv("DISPLAY") != "":
		return "x11", nil
	}
	return "", fmt.Errorf("no supported display server detected (need Hyprland, Sway, KWin or X11)")
}

// NewBackend connects to the named backend; "auto" or "" detects one.
func NewBackend(name string) (Backend, error) {
	if name == "" || name == "auto" {
		detected, err := DetectBackend(os.Getenv)
		if err != nil {
			return nil, err
		}
		name = detected
	}

	logger.WithComponent("window").Info().Str("backend", name).Msg("Connecting to display server")

	switch name {
	case "x11":
		return NewX11Backend()
	case "kwin":
		return NewKWinBackend()
	case "sway":
		return NewSwayBackend(runCommand)
	case "hyprland":
		return NewHyprlandBackend(runCommand)
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
