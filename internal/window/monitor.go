package window

import (
	"github.com/bryanchriswhite/nicotine/internal/config"
)

// Monitor is one output in the global screen coordinate space
type Monitor struct {
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (m Monitor) contains(x, y int) bool {
	return x >= m.X && x < m.X+m.Width && y >= m.Y && y < m.Y+m.Height
}

// Placement is the target geometry for one window
type Placement struct {
	Window   Window   `json:"window"`
	Geometry Geometry `json:"geometry"`
}

// PlanStack computes where each window goes when stacking. The primary
// character moves to the primary monitor; every other window is stacked on
// the monitor it is already on. With no monitor information every window
// gets the display-wide rectangle from cfg.
func PlanStack(windows []Window, monitors []Monitor, cfg config.StackConfig) []Placement {
	placements := make([]Placement, 0, len(windows))
	if len(monitors) == 0 {
		x, y, w, h := cfg.Rect()
		for _, win := range windows {
			placements = append(placements, Placement{Window: win, Geometry: Geometry{X: x, Y: y, Width: w, Height: h}})
		}
		return placements
	}

	primary := monitorNamed(monitors, cfg.PrimaryMonitor)
	if primary == nil {
		primary = &monitors[0]
	}

	for _, win := range windows {
		m := primary
		if cfg.PrimaryCharacter == "" || win.Title != cfg.PrimaryCharacter {
			m = monitorOf(win, monitors)
		}
		x, y, w, h := cfg.RectOn(m.X, m.Y, m.Width, m.Height)
		placements = append(placements, Placement{Window: win, Geometry: Geometry{X: x, Y: y, Width: w, Height: h}})
	}
	return placements
}

func monitorNamed(monitors []Monitor, name string) *Monitor {
	if name == "" {
		return nil
	}
	for i := range monitors {
		if monitors[i].Name == name {
			return &monitors[i]
		}
	}
	return nil
}

// monitorOf finds the window's monitor by name, then by the centre of its
// bounds, then falls back to the first monitor.
func monitorOf(w Window, monitors []Monitor) *Monitor {
	if m := monitorNamed(monitors, w.Monitor); m != nil {
		return m
	}
	if w.Bounds.Width > 0 && w.Bounds.Height > 0 {
		cx, cy := w.Bounds.X+w.Bounds.Width/2, w.Bounds.Y+w.Bounds.Height/2
		for i := range monitors {
			if monitors[i].contains(cx, cy) {
				return &monitors[i]
			}
		}
	}
	return &monitors[0]
}
