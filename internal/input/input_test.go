package input

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/config"
	"github.com/bryanchriswhite/nicotine/internal/cycle"
)

const sampleDevices = `I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
P: Phys=LNXPWRBN/button/input0
S: Sysfs=/devices/LNXSYSTM:00/LNXPWRBN:00/input/input0
U: Uniq=
H: Handlers=kbd event0
B: PROP=0
B: EV=3
B: KEY=10000000000000 0

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver"
P: Phys=usb-0000:00:14.0-2/input0
S: Sysfs=/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/0003:046D:C52B.0001/input/input5
U: Uniq=
H: Handlers=sysrq kbd leds event4
B: PROP=0
B: EV=120013

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech G502 HERO Gaming Mouse"
P: Phys=usb-0000:00:14.0-3/input1
H: Handlers=mouse0 event5
B: PROP=0
B: EV=17
`

func TestParseDevices(t *testing.T) {
	devices, err := ParseDevices(strings.NewReader(sampleDevices))
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 3 {
		t.Fatalf("parsed %d devices, want 3", len(devices))
	}

	power := devices[0]
	if power.Name != "Power Button" || power.Path != "/dev/input/event0" {
		t.Errorf("power button = %+v", power)
	}
	if power.IsKeyboard() {
		t.Error("power button detected as keyboard")
	}

	kbd := devices[1]
	if !kbd.IsKeyboard() || kbd.IsMouse() {
		t.Errorf("receiver kind wrong: %+v", kbd)
	}
	if kbd.EV != 0x120013 {
		t.Errorf("EV = %x", kbd.EV)
	}

	mouse := devices[2]
	if !mouse.IsMouse() || mouse.Path != "/dev/input/event5" {
		t.Errorf("mouse = %+v", mouse)
	}
}

func TestResolve(t *testing.T) {
	devices, _ := ParseDevices(strings.NewReader(sampleDevices))

	tests := []struct {
		name    string
		kind    Kind
		path    string
		devName string
		want    string
		wantErr error
	}{
		{"explicit path", KindMouse, "/dev/input/event9", "", "/dev/input/event9", nil},
		{"by name", KindMouse, "", "g502", "/dev/input/event5", nil},
		{"auto mouse", KindMouse, "", "", "/dev/input/event5", nil},
		{"auto keyboard", KindKeyboard, "", "", "/dev/input/event4", nil},
		{"unknown name", KindMouse, "", "trackball", "", ErrDeviceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(devices, tt.kind, tt.path, tt.devName)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := Resolve(nil, KindKeyboard, "", ""); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("empty device list: err = %v", err)
	}
}

func TestDecodeEvents(t *testing.T) {
	at := time.Unix(1700000000, 250000*1000)
	buf := append(EncodeEvent(Event{Time: at, Type: evKey, Code: config.BtnSide, Value: keyPress}),
		EncodeEvent(Event{Time: at, Type: 0, Code: 0, Value: 0})...)
	buf = append(buf, 0xff, 0xff) // trailing partial record

	events := DecodeEvents(buf)
	if len(events) != 2 {
		t.Fatalf("decoded %d events, want 2", len(events))
	}
	ev := events[0]
	if ev.Type != evKey || ev.Code != config.BtnSide || ev.Value != keyPress {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Time.Equal(at) {
		t.Errorf("time = %v, want %v", ev.Time, at)
	}
}

func press(code uint16) Event   { return Event{Type: evKey, Code: code, Value: keyPress} }
func release(code uint16) Event { return Event{Type: evKey, Code: code, Value: keyRelease} }

func TestRecognizerMouse(t *testing.T) {
	r := NewRecognizer(MouseBindings(config.Defaults().Mouse))

	if cmd, ok := r.Feed(press(config.BtnSide)); !ok || cmd != cycle.Forward {
		t.Errorf("BTN_SIDE = %v, %v", cmd, ok)
	}
	if _, ok := r.Feed(release(config.BtnSide)); ok {
		t.Error("release fired")
	}
	if cmd, ok := r.Feed(press(config.BtnExtra)); !ok || cmd != cycle.Backward {
		t.Errorf("BTN_EXTRA = %v, %v", cmd, ok)
	}
	if _, ok := r.Feed(Event{Type: evKey, Code: config.BtnExtra, Value: keyRepeat}); ok {
		t.Error("repeat fired")
	}
	if _, ok := r.Feed(Event{Type: 2, Code: 0, Value: 1}); ok {
		t.Error("relative motion fired")
	}
	if _, ok := r.Feed(press(272)); ok {
		t.Error("unbound button fired")
	}
}

func TestRecognizerModifier(t *testing.T) {
	cfg := config.Defaults().Keyboard
	cfg.TargetKeys = []uint16{59, 60} // F1, F2
	r := NewRecognizer(KeyboardBindings(cfg))

	if cmd, ok := r.Feed(press(config.KeyTab)); !ok || cmd != cycle.Forward {
		t.Errorf("Tab = %v, %v", cmd, ok)
	}
	r.Feed(release(config.KeyTab))

	r.Feed(press(config.KeyLeftShift))
	if cmd, ok := r.Feed(press(config.KeyTab)); !ok || cmd != cycle.Backward {
		t.Errorf("Shift+Tab = %v, %v", cmd, ok)
	}
	r.Feed(release(config.KeyTab))
	r.Feed(release(config.KeyLeftShift))

	if cmd, ok := r.Feed(press(config.KeyTab)); !ok || cmd != cycle.Forward {
		t.Errorf("Tab after Shift release = %v, %v", cmd, ok)
	}

	if cmd, ok := r.Feed(press(60)); !ok || cmd != cycle.Target(2) {
		t.Errorf("F2 = %v, %v", cmd, ok)
	}
}

func TestRecognizerModifierOnlyBinding(t *testing.T) {
	r := NewRecognizer([]Binding{{Code: 30, Modifier: 29, Command: cycle.Target(1)}})

	if _, ok := r.Feed(press(30)); ok {
		t.Error("fired without modifier")
	}
	r.Feed(press(29))
	if cmd, ok := r.Feed(press(30)); !ok || cmd != cycle.Target(1) {
		t.Errorf("Ctrl+A = %v, %v", cmd, ok)
	}

	r.Feed(release(29))
	r.Feed(release(30))
	if _, ok := r.Feed(press(30)); ok {
		t.Error("fired after the modifier was released")
	}
}

type recordingCommander struct {
	mu   sync.Mutex
	cmds []cycle.Command
}

func (c *recordingCommander) Apply(ctx context.Context, cmd cycle.Command, source string) (cycle.Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
	return cycle.Transition{Changed: true}, nil
}

func TestListenerHandle(t *testing.T) {
	cmdr := &recordingCommander{}
	l := NewListener("mouse", "/dev/null", MouseBindings(config.Defaults().Mouse), cmdr)

	for _, ev := range DecodeEvents(append(EncodeEvent(press(config.BtnSide)), EncodeEvent(press(config.BtnExtra))...)) {
		l.handle(context.Background(), ev)
	}

	if len(cmdr.cmds) != 2 || cmdr.cmds[0] != cycle.Forward || cmdr.cmds[1] != cycle.Backward {
		t.Errorf("commands = %v", cmdr.cmds)
	}
}

func TestListenerMissingDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event99")
	l := NewListener("mouse", path, nil, &recordingCommander{})
	if err := l.Run(context.Background()); err == nil {
		t.Error("Run on a missing device returned nil")
	}
}
