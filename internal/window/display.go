package window

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/logger"
)

const displayDetectTimeout = 2 * time.Second

// DetectDisplaySize asks the display server tools for the current screen
// size. ok is false when none of them answered.
func DetectDisplaySize(ctx context.Context) (width, height int, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, displayDetectTimeout)
	defer cancel()
	return detectDisplaySize(ctx, runCommand)
}

func detectDisplaySize(ctx context.Context, run commandRunner) (int, int, bool) {
	log := logger.WithComponent("window")

	tools := []struct {
		name  string
		args  []string
		parse func([]byte) (int, int, bool)
	}{
		{"xrandr", []string{"--current"}, parseXrandrCurrent},
		{"swaymsg", []string{"-t", "get_outputs"}, parseSwayOutputSize},
		{"hyprctl", []string{"monitors", "-j"}, parseHyprMonitorSize},
		{"wlr-randr", nil, parseWlrRandr},
	}
	for _, tool := range tools {
		out, err := run(ctx, tool.name, tool.args...)
		if err != nil {
			continue
		}
		if w, h, ok := tool.parse(out); ok {
			log.Info().Str("tool", tool.name).Int("width", w).Int("height", h).Msg("Detected display size")
			return w, h, true
		}
	}
	log.Debug().Msg("Display size not detected")
	return 0, 0, false
}

// parseSize reads "1920x1080", ignoring anything after the height digits
func parseSize(s string) (int, int, bool) {
	ws, hs, found := strings.Cut(s, "x")
	if !found {
		return 0, 0, false
	}
	end := 0
	for end < len(hs) && hs[end] >= '0' && hs[end] <= '9' {
		end++
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs[:end])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// parseXrandrCurrent finds the mode line marked current ("*")
func parseXrandrCurrent(out []byte) (int, int, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			if w, h, ok := parseSize(fields[0]); ok {
				return w, h, true
			}
		}
	}
	return 0, 0, false
}

// parseWlrRandr finds the mode line flagged "current"
func parseWlrRandr(out []byte) (int, int, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "current") || !strings.Contains(line, "px") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			if w, h, ok := parseSize(fields[0]); ok {
				return w, h, true
			}
		}
	}
	return 0, 0, false
}

func parseSwayOutputSize(out []byte) (int, int, bool) {
	monitors, err := parseSwayOutputs(out)
	if err != nil || len(monitors) == 0 {
		return 0, 0, false
	}
	return monitors[0].Width, monitors[0].Height, true
}

// parseHyprMonitorSize prefers the focused monitor, else the first
func parseHyprMonitorSize(out []byte) (int, int, bool) {
	var monitors []hyprMonitor
	if err := json.Unmarshal(out, &monitors); err != nil || len(monitors) == 0 {
		return 0, 0, false
	}
	m := monitors[0]
	for _, candidate := range monitors {
		if candidate.Focused {
			m = candidate
			break
		}
	}
	if m.Width <= 0 || m.Height <= 0 {
		return 0, 0, false
	}
	return m.Width, m.Height, true
}
