package window

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SwayBackend drives Sway through swaymsg
type SwayBackend struct {
	run commandRunner
}

// swayNode is the subset of a swaymsg get_tree node we read
type swayNode struct {
	ID               uint64          `json:"id"`
	Type             string          `json:"type"`
	Name             *string         `json:"name"`
	AppID            *string         `json:"app_id"`
	Focused          bool            `json:"focused"`
	WindowProperties json.RawMessage `json:"window_properties"`
	Nodes            []swayNode      `json:"nodes"`
	FloatingNodes    []swayNode      `json:"floating_nodes"`
}

// NewSwayBackend checks swaymsg is usable and returns a backend
func NewSwayBackend(run commandRunner) (*SwayBackend, error) {
	if _, err := run(context.Background(), "swaymsg", "--version"); err != nil {
		return nil, fmt.Errorf("swaymsg not available, is Sway running? %w", err)
	}
	return &SwayBackend{run: run}, nil
}

// Name returns the backend name
func (b *SwayBackend) Name() string {
	return "sway"
}

// Close is a no-op; every call is a fresh swaymsg process
func (b *SwayBackend) Close() error {
	return nil
}

func (b *SwayBackend) tree(ctx context.Context) (*swayNode, error) {
	out, err := b.run(ctx, "swaymsg", "-t", "get_tree")
	if err != nil {
		return nil, err
	}
	var root swayNode
	if err := json.Unmarshal(out, &root); err != nil {
		return nil, fmt.Errorf("failed to parse swaymsg tree: %w", err)
	}
	return &root, nil
}

// Enumerate walks the layout tree collecting application windows
func (b *SwayBackend) Enumerate(ctx context.Context) ([]Window, error) {
	root, err := b.tree(ctx)
	if err != nil {
		return nil, err
	}
	var windows []Window
	walkSway(root, "", func(n *swayNode, output string) {
		title := ""
		if n.Name != nil {
			title = *n.Name
		}
		windows = append(windows, Window{Handle: n.ID, Title: title, Monitor: output})
	})
	return windows, nil
}

// walkSway visits application windows in tree order, tracking the output name
func walkSway(n *swayNode, output string, visit func(*swayNode, string)) {
	if n.Type == "output" && n.Name != nil {
		output = *n.Name
	}
	if (n.Type == "con" || n.Type == "floating_con") && isSwayApp(n) {
		visit(n, output)
	}
	for i := range n.Nodes {
		walkSway(&n.Nodes[i], output, visit)
	}
	for i := range n.FloatingNodes {
		walkSway(&n.FloatingNodes[i], output, visit)
	}
}

func isSwayApp(n *swayNode) bool {
	if n.AppID != nil {
		return true
	}
	props := strings.TrimSpace(string(n.WindowProperties))
	return props != "" && props != "null"
}

// Activate focuses a container by id
func (b *SwayBackend) Activate(ctx context.Context, w Window) error {
	if _, err := b.run(ctx, "swaymsg", fmt.Sprintf("[con_id=%d] focus", w.Handle)); err != nil {
		return fmt.Errorf("failed to activate con_id %d: %w", w.Handle, err)
	}
	return nil
}

// Stack floats every window and places it at its planned geometry
func (b *SwayBackend) Stack(ctx context.Context, placements []Placement) error {
	for _, p := range placements {
		g := p.Geometry
		cmd := fmt.Sprintf("[con_id=%d] floating enable, resize set %d %d, move absolute position %d %d",
			p.Window.Handle, g.Width, g.Height, g.X, g.Y)
		if _, err := b.run(ctx, "swaymsg", cmd); err != nil {
			return fmt.Errorf("failed to stack con_id %d: %w", p.Window.Handle, err)
		}
	}
	return nil
}

// Minimize sends a container to the scratchpad
func (b *SwayBackend) Minimize(ctx context.Context, w Window) error {
	if _, err := b.run(ctx, "swaymsg", fmt.Sprintf("[con_id=%d] move scratchpad", w.Handle)); err != nil {
		return fmt.Errorf("failed to minimize con_id %d: %w", w.Handle, err)
	}
	return nil
}

// Restore shows a container from the scratchpad. Sway rejects the command
// for windows that were never minimized.
func (b *SwayBackend) Restore(ctx context.Context, w Window) error {
	if _, err := b.run(ctx, "swaymsg", fmt.Sprintf("[con_id=%d] scratchpad show", w.Handle)); err != nil {
		return fmt.Errorf("failed to restore con_id %d: %w", w.Handle, err)
	}
	return nil
}

type swayOutput struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Rect   struct {
		X      int `json:"x"`
		Y      int `json:"y"`
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"rect"`
}

// Monitors lists active outputs from swaymsg -t get_outputs
func (b *SwayBackend) Monitors(ctx context.Context) ([]Monitor, error) {
	out, err := b.run(ctx, "swaymsg", "-t", "get_outputs")
	if err != nil {
		return nil, err
	}
	return parseSwayOutputs(out)
}

func parseSwayOutputs(out []byte) ([]Monitor, error) {
	var outputs []swayOutput
	if err := json.Unmarshal(out, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse swaymsg outputs: %w", err)
	}
	var monitors []Monitor
	for _, o := range outputs {
		if !o.Active || o.Rect.Width <= 0 || o.Rect.Height <= 0 {
			continue
		}
		monitors = append(monitors, Monitor{Name: o.Name, X: o.Rect.X, Y: o.Rect.Y, Width: o.Rect.Width, Height: o.Rect.Height})
	}
	return monitors, nil
}

// ActiveWindow returns the focused application container
func (b *SwayBackend) ActiveWindow(ctx context.Context) (uint64, error) {
	root, err := b.tree(ctx)
	if err != nil {
		return 0, err
	}
	var active uint64
	walkSway(root, "", func(n *swayNode, _ string) {
		if n.Focused {
			active = n.ID
		}
	})
	return active, nil
}
