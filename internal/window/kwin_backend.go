package window

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/nicotine/internal/logger"
	"github.com/godbus/dbus/v5"
)

const kwinService = "org.kde.KWin"

// KWinBackend drives KWin through XWayland tools (wmctrl, kdotool, xdotool).
// The session bus is only used to confirm KWin is the running compositor.
type KWinBackend struct {
	conn       *dbus.Conn
	run        commandRunner
	useKdotool bool

	// Raw titles from the last enumeration, needed by kdotool activation
	titlesMu sync.RWMutex
	titles   map[uint64]string
}

// NewKWinBackend creates a new KWin backend
func NewKWinBackend() (*KWinBackend, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list D-Bus names: %w", err)
	}

	found := false
	for _, name := range names {
		if name == kwinService {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("KWin service not found on D-Bus")
	}

	if _, err := exec.LookPath("wmctrl"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("wmctrl not found, install the wmctrl package: %w", err)
	}

	b := newKWinBackend(runCommand)
	b.conn = conn
	if _, err := exec.LookPath("kdotool"); err == nil {
		b.useKdotool = true
		logger.WithComponent("kwin-backend").Info().Msg("Using kdotool for window activation")
	} else {
		logger.WithComponent("kwin-backend").Info().Msg("kdotool not found, activating with wmctrl")
	}
	return b, nil
}

func newKWinBackend(run commandRunner) *KWinBackend {
	return &KWinBackend{
		run:    run,
		titles: make(map[uint64]string),
	}
}

// Name returns the backend name
func (b *KWinBackend) Name() string {
	return "kwin"
}

// Close closes the D-Bus connection
func (b *KWinBackend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// Enumerate lists windows with wmctrl -l -G
func (b *KWinBackend) Enumerate(ctx context.Context) ([]Window, error) {
	out, err := b.run(ctx, "wmctrl", "-l", "-G")
	if err != nil {
		return nil, err
	}

	windows := parseWmctrl(out)

	titles := make(map[uint64]string, len(windows))
	for _, w := range windows {
		titles[w.Handle] = w.Title
	}
	b.titlesMu.Lock()
	b.titles = titles
	b.titlesMu.Unlock()

	return windows, nil
}

// parseWmctrl parses lines of the form
// "0x04a00007  0 0    0    1920 1080 host EVE - Name"
func parseWmctrl(out []byte) []Window {
	var windows []Window
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 8 {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
		if err != nil || id == 0 {
			continue
		}
		w := Window{
			Handle: id,
			Title:  strings.Join(fields[7:], " "),
		}
		x, errX := strconv.Atoi(fields[2])
		y, errY := strconv.Atoi(fields[3])
		width, errW := strconv.Atoi(fields[4])
		height, errH := strconv.Atoi(fields[5])
		if errX == nil && errY == nil && errW == nil && errH == nil {
			w.Bounds = Geometry{X: x, Y: y, Width: width, Height: height}
		}
		windows = append(windows, w)
	}
	return windows
}

// Activate focuses a window with kdotool, falling back to wmctrl
func (b *KWinBackend) Activate(ctx context.Context, w Window) error {
	if b.useKdotool {
		b.titlesMu.RLock()
		title, ok := b.titles[w.Handle]
		b.titlesMu.RUnlock()

		if ok {
			pattern := "^" + regexp.QuoteMeta(title) + "$"
			if _, err := b.run(ctx, "kdotool", "search", "--name", pattern, "windowactivate"); err == nil {
				return nil
			}
		}
	}

	if _, err := b.run(ctx, "wmctrl", "-i", "-a", w.HexID()); err != nil {
		return fmt.Errorf("failed to activate %s: %w", w.HexID(), err)
	}
	return nil
}

// Stack moves and resizes windows with wmctrl -e
func (b *KWinBackend) Stack(ctx context.Context, placements []Placement) error {
	for _, p := range placements {
		g := p.Geometry
		geom := fmt.Sprintf("0,%d,%d,%d,%d", g.X, g.Y, g.Width, g.Height)
		if _, err := b.run(ctx, "wmctrl", "-i", "-r", p.Window.HexID(), "-e", geom); err != nil {
			return fmt.Errorf("failed to stack %s: %w", p.Window.HexID(), err)
		}
	}
	return nil
}

// Minimize iconifies a window with xdotool
func (b *KWinBackend) Minimize(ctx context.Context, w Window) error {
	if _, err := b.run(ctx, "xdotool", "windowminimize", w.HexID()); err != nil {
		return fmt.Errorf("failed to minimize %s: %w", w.HexID(), err)
	}
	return nil
}

// Restore maps a minimized window back; activation raises it
func (b *KWinBackend) Restore(ctx context.Context, w Window) error {
	if _, err := b.run(ctx, "wmctrl", "-i", "-r", w.HexID(), "-b", "remove,hidden"); err != nil {
		return fmt.Errorf("failed to restore %s: %w", w.HexID(), err)
	}
	return nil
}

// Monitors lists connected outputs from xrandr --query
func (b *KWinBackend) Monitors(ctx context.Context) ([]Monitor, error) {
	out, err := b.run(ctx, "xrandr", "--query")
	if err != nil {
		return nil, err
	}
	return parseXrandrMonitors(out), nil
}

// parseXrandrMonitors reads output lines of the form
// "DP-1 connected primary 2560x1440+1920+0 (normal left inverted) 597mm x 336mm"
func parseXrandrMonitors(out []byte) []Monitor {
	var monitors []Monitor
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[1] != "connected" {
			continue
		}
		for _, f := range fields[2:] {
			size, offset, ok := strings.Cut(f, "+")
			if !ok {
				continue
			}
			w, h, ok := parseSize(size)
			if !ok {
				continue
			}
			xs, ys, ok := strings.Cut(offset, "+")
			if !ok {
				continue
			}
			x, errX := strconv.Atoi(xs)
			y, errY := strconv.Atoi(ys)
			if errX != nil || errY != nil {
				continue
			}
			monitors = append(monitors, Monitor{Name: fields[0], X: x, Y: y, Width: w, Height: h})
			break
		}
	}
	return monitors
}

// ActiveWindow asks xdotool for the focused XWayland window
func (b *KWinBackend) ActiveWindow(ctx context.Context) (uint64, error) {
	out, err := b.run(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected xdotool output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return id, nil
}
