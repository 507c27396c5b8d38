package window

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HyprlandBackend drives Hyprland through hyprctl
type HyprlandBackend struct {
	run commandRunner
}

type hyprClient struct {
	Address string `json:"address"`
	Title   string `json:"title"`
	Monitor int    `json:"monitor"`
	Mapped  *bool  `json:"mapped"`
}

type hyprMonitor struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Focused bool   `json:"focused"`
}

// NewHyprlandBackend checks hyprctl is usable and returns a backend
func NewHyprlandBackend(run commandRunner) (*HyprlandBackend, error) {
	if _, err := run(context.Background(), "hyprctl", "version"); err != nil {
		return nil, fmt.Errorf("hyprctl not available, is Hyprland running? %w", err)
	}
	return &HyprlandBackend{run: run}, nil
}

// Name returns the backend name
func (b *HyprlandBackend) Name() string {
	return "hyprland"
}

// Close is a no-op; every call is a fresh hyprctl process
func (b *HyprlandBackend) Close() error {
	return nil
}

// Enumerate lists clients with hyprctl clients -j
func (b *HyprlandBackend) Enumerate(ctx context.Context) ([]Window, error) {
	out, err := b.run(ctx, "hyprctl", "clients", "-j")
	if err != nil {
		return nil, err
	}
	var clients []hyprClient
	if err := json.Unmarshal(out, &clients); err != nil {
		return nil, fmt.Errorf("failed to parse hyprctl clients: %w", err)
	}

	monitors := b.monitorNames(ctx)

	windows := make([]Window, 0, len(clients))
	for _, c := range clients {
		if c.Mapped != nil && !*c.Mapped {
			continue
		}
		handle, err := parseHyprAddress(c.Address)
		if err != nil {
			continue
		}
		windows = append(windows, Window{
			Handle:  handle,
			Title:   c.Title,
			Monitor: monitors[c.Monitor],
		})
	}
	return windows, nil
}

func (b *HyprlandBackend) monitors(ctx context.Context) ([]hyprMonitor, error) {
	out, err := b.run(ctx, "hyprctl", "monitors", "-j")
	if err != nil {
		return nil, err
	}
	var monitors []hyprMonitor
	if err := json.Unmarshal(out, &monitors); err != nil {
		return nil, fmt.Errorf("failed to parse hyprctl monitors: %w", err)
	}
	return monitors, nil
}

// monitorNames maps monitor ids to names; missing data yields an empty map
func (b *HyprlandBackend) monitorNames(ctx context.Context) map[int]string {
	names := make(map[int]string)
	monitors, err := b.monitors(ctx)
	if err != nil {
		return names
	}
	for _, m := range monitors {
		names[m.ID] = m.Name
	}
	return names
}

// Monitors lists outputs from hyprctl monitors -j
func (b *HyprlandBackend) Monitors(ctx context.Context) ([]Monitor, error) {
	monitors, err := b.monitors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Monitor, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, Monitor{Name: m.Name, X: m.X, Y: m.Y, Width: m.Width, Height: m.Height})
	}
	return out, nil
}

// parseHyprAddress converts "0x55ade765da10" to a handle
func parseHyprAddress(addr string) (uint64, error) {
	hex, ok := strings.CutPrefix(addr, "0x")
	if !ok {
		return 0, fmt.Errorf("unexpected address %q", addr)
	}
	return strconv.ParseUint(hex, 16, 64)
}

func hyprAddress(handle uint64) string {
	return fmt.Sprintf("address:0x%x", handle)
}

// dispatch runs hyprctl dispatch and checks for its "ok" reply
func (b *HyprlandBackend) dispatch(ctx context.Context, args ...string) error {
	out, err := b.run(ctx, "hyprctl", append([]string{"dispatch"}, args...)...)
	if err != nil {
		return err
	}
	if reply := strings.TrimSpace(string(out)); reply != "ok" && reply != "" {
		return fmt.Errorf("hyprctl dispatch %s: %s", strings.Join(args, " "), reply)
	}
	return nil
}

// Activate focuses a client by address
func (b *HyprlandBackend) Activate(ctx context.Context, w Window) error {
	if err := b.dispatch(ctx, "focuswindow", hyprAddress(w.Handle)); err != nil {
		return fmt.Errorf("failed to activate 0x%x: %w", w.Handle, err)
	}
	return nil
}

// Stack floats every client and places it at its planned geometry
func (b *HyprlandBackend) Stack(ctx context.Context, placements []Placement) error {
	for _, p := range placements {
		addr := hyprAddress(p.Window.Handle)
		g := p.Geometry
		steps := [][]string{
			{"setfloating", addr},
			{"resizewindowpixel", fmt.Sprintf("exact %d %d,%s", g.Width, g.Height, addr)},
			{"movewindowpixel", fmt.Sprintf("exact %d %d,%s", g.X, g.Y, addr)},
		}
		for _, step := range steps {
			if err := b.dispatch(ctx, step...); err != nil {
				return fmt.Errorf("failed to stack 0x%x: %w", p.Window.Handle, err)
			}
		}
	}
	return nil
}

// Minimize moves a client to the special workspace
func (b *HyprlandBackend) Minimize(ctx context.Context, w Window) error {
	if err := b.dispatch(ctx, "movetoworkspacesilent", "special,"+hyprAddress(w.Handle)); err != nil {
		return fmt.Errorf("failed to minimize 0x%x: %w", w.Handle, err)
	}
	return nil
}

// Restore brings a client back to the current workspace
func (b *HyprlandBackend) Restore(ctx context.Context, w Window) error {
	if err := b.dispatch(ctx, "movetoworkspace", "e+0,"+hyprAddress(w.Handle)); err != nil {
		return fmt.Errorf("failed to restore 0x%x: %w", w.Handle, err)
	}
	return nil
}

// ActiveWindow reads hyprctl activewindow -j
func (b *HyprlandBackend) ActiveWindow(ctx context.Context) (uint64, error) {
	out, err := b.run(ctx, "hyprctl", "activewindow", "-j")
	if err != nil {
		return 0, err
	}
	var active hyprClient
	if err := json.Unmarshal(out, &active); err != nil {
		return 0, fmt.Errorf("failed to parse hyprctl activewindow: %w", err)
	}
	if active.Address == "" {
		return 0, nil
	}
	return parseHyprAddress(active.Address)
}
