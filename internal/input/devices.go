package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrDeviceNotFound is returned when no input device matches a lookup
var ErrDeviceNotFound = errors.New("input device not found")

// ProcDevices is the kernel's input device listing
const ProcDevices = "/proc/bus/input/devices"

// Device is one entry of /proc/bus/input/devices
type Device struct {
	Name     string   `json:"name"`
	Phys     string   `json:"phys,omitempty"`
	Handlers []string `json:"handlers"`
	// Path is the evdev node, empty when the device has no event handler
	Path string `json:"path"`
	// EV is the supported event type bitmask
	EV uint64 `json:"ev"`
}

// IsMouse reports whether the kernel attached a mouse handler
func (d Device) IsMouse() bool {
	return d.hasHandler("mouse")
}

// IsKeyboard reports whether the device looks like a real keyboard: a kbd
// handler plus key repeat, which rules out power buttons and media keys.
func (d Device) IsKeyboard() bool {
	return d.hasHandler("kbd") && d.EV&(1<<evRep) != 0
}

func (d Device) hasHandler(prefix string) bool {
	for _, h := range d.Handlers {
		if strings.HasPrefix(h, prefix) {
			return true
		}
	}
	return false
}

// ListDevices reads the kernel device listing
func ListDevices() ([]Device, error) {
	f, err := os.Open(ProcDevices)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ProcDevices, err)
	}
	defer f.Close()
	return ParseDevices(f)
}

// ParseDevices parses the /proc/bus/input/devices format: blank-line
// separated blocks of "X: ..." lines.
func ParseDevices(r io.Reader) ([]Device, error) {
	var (
		devices []Device
		cur     Device
		started bool
	)
	flush := func() {
		if started {
			devices = append(devices, cur)
		}
		cur = Device{}
		started = false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if len(line) < 3 || line[1] != ':' {
			continue
		}
		started = true
		body := strings.TrimSpace(line[2:])

		switch line[0] {
		case 'N':
			cur.Name = strings.Trim(strings.TrimPrefix(body, "Name="), `"`)
		case 'P':
			cur.Phys = strings.TrimPrefix(body, "Phys=")
		case 'H':
			cur.Handlers = strings.Fields(strings.TrimPrefix(body, "Handlers="))
			for _, h := range cur.Handlers {
				if strings.HasPrefix(h, "event") {
					cur.Path = "/dev/input/" + h
				}
			}
		case 'B':
			if v, ok := strings.CutPrefix(body, "EV="); ok {
				ev, err := strconv.ParseUint(v, 16, 64)
				if err == nil {
					cur.EV = ev
				}
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}

// FindByName returns the first device whose name contains name,
// case-insensitively
func FindByName(devices []Device, name string) (Device, error) {
	needle := strings.ToLower(name)
	for _, d := range devices {
		if d.Path != "" && strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: no device named %q", ErrDeviceNotFound, name)
}

// Kind selects the automatic device lookup
type Kind int

const (
	KindMouse Kind = iota
	KindKeyboard
)

func (k Kind) String() string {
	if k == KindKeyboard {
		return "keyboard"
	}
	return "mouse"
}

// Resolve picks the evdev node for a listener: an explicit path wins, then a
// name lookup, then the first device of the requested kind.
func Resolve(devices []Device, kind Kind, path, name string) (string, error) {
	if path != "" {
		return path, nil
	}
	if name != "" {
		d, err := FindByName(devices, name)
		if err != nil {
			return "", err
		}
		return d.Path, nil
	}
	for _, d := range devices {
		if d.Path == "" {
			continue
		}
		if (kind == KindMouse && d.IsMouse()) || (kind == KindKeyboard && d.IsKeyboard()) {
			return d.Path, nil
		}
	}
	return "", fmt.Errorf("%w: no %s found", ErrDeviceNotFound, kind)
}
