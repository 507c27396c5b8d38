package window

import (
	"context"
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/nicotine/internal/logger"
)

// _NET_ACTIVE_WINDOW source indication for pagers and other direct user
// action tools. Window managers honour these without focus-stealing checks.
const sourcePager = 2

// ICCCM WM_STATE value requested through WM_CHANGE_STATE
const iconicState = 3

// X11Backend implements the Backend interface using X11
type X11Backend struct {
	conn *xgb.Conn
	root xproto.Window
	// randr is false when the server lacks the RandR extension
	randr bool

	atomsMu sync.Mutex
	atoms   map[string]xproto.Atom
}

// NewX11Backend creates a new X11 backend
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	b := &X11Backend{
		conn:  conn,
		root:  xproto.Setup(conn).DefaultScreen(conn).Root,
		atoms: make(map[string]xproto.Atom),
	}

	if err := randr.Init(conn); err != nil {
		logger.WithComponent("x11-backend").Warn().Err(err).Msg("RandR unavailable, stacking ignores monitors")
	} else {
		b.randr = true
	}

	// Activation sits on the hot path; intern its atom up front.
	if _, err := b.getAtom("_NET_ACTIVE_WINDOW"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to intern _NET_ACTIVE_WINDOW: %w", err)
	}

	return b, nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Enumerate returns all client windows using EWMH _NET_CLIENT_LIST with QueryTree fallback
func (b *X11Backend) Enumerate(ctx context.Context) ([]Window, error) {
	log := logger.WithComponent("x11-backend")

	ids, err := b.clientList()
	if err != nil || len(ids) == 0 {
		log.Debug().Err(err).Msg("Enumerate: EWMH unavailable, falling back to QueryTree")
		tree, err := xproto.QueryTree(b.conn, b.root).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to query window tree: %w", err)
		}
		ids = tree.Children
	}

	windows := make([]Window, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		title := b.windowTitle(id)
		if title == "" {
			continue
		}
		windows = append(windows, Window{Handle: uint64(id), Title: title})
	}
	return windows, nil
}

// clientList reads _NET_CLIENT_LIST from the root window
func (b *X11Backend) clientList() ([]xproto.Window, error) {
	atom, err := b.getAtom("_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}

	reply, err := xproto.GetProperty(b.conn, false, b.root, atom, xproto.AtomWindow, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST property: %w", err)
	}

	ids := make([]xproto.Window, 0, len(reply.Value)/4)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		ids = append(ids, xproto.Window(xgb.Get32(reply.Value[i:])))
	}
	return ids, nil
}

// windowTitle reads _NET_WM_NAME, then WM_NAME
func (b *X11Backend) windowTitle(win xproto.Window) string {
	for _, name := range []string{"_NET_WM_NAME", "WM_NAME"} {
		atom, err := b.getAtom(name)
		if err != nil {
			continue
		}
		reply, err := xproto.GetProperty(b.conn, false, win, atom, xproto.GetPropertyTypeAny, 0, 1024).Reply()
		if err != nil || reply.ValueLen == 0 {
			continue
		}
		return string(reply.Value)
	}
	return ""
}

// Activate asks the window manager to activate the window and moves input focus to it
func (b *X11Backend) Activate(ctx context.Context, w Window) error {
	atom, err := b.getAtom("_NET_ACTIVE_WINDOW")
	if err != nil {
		return err
	}

	current, _ := b.ActiveWindow(ctx)
	win := xproto.Window(w.Handle)

	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   atom,
		Data: xproto.ClientMessageDataUnionData32New([]uint32{
			sourcePager,
			xproto.TimeCurrentTime,
			uint32(current),
			0,
			0,
		}),
	}

	mask := uint32(xproto.EventMaskSubstructureNotify | xproto.EventMaskSubstructureRedirect)
	if err := xproto.SendEventChecked(b.conn, false, b.root, mask, string(ev.Bytes())).Check(); err != nil {
		return fmt.Errorf("failed to send _NET_ACTIVE_WINDOW for %s: %w", w.HexID(), err)
	}

	if err := xproto.SetInputFocusChecked(b.conn, xproto.InputFocusParent, win, xproto.TimeCurrentTime).Check(); err != nil {
		return fmt.Errorf("failed to set input focus on %s: %w", w.HexID(), err)
	}
	return nil
}

// Stack moves and resizes every window to its planned geometry
func (b *X11Backend) Stack(ctx context.Context, placements []Placement) error {
	mask := uint16(xproto.ConfigWindowX | xproto.ConfigWindowY | xproto.ConfigWindowWidth | xproto.ConfigWindowHeight)

	for _, p := range placements {
		if err := ctx.Err(); err != nil {
			return err
		}
		g := p.Geometry
		values := []uint32{uint32(int32(g.X)), uint32(int32(g.Y)), uint32(g.Width), uint32(g.Height)}
		if err := xproto.ConfigureWindowChecked(b.conn, xproto.Window(p.Window.Handle), mask, values).Check(); err != nil {
			return fmt.Errorf("failed to configure %s: %w", p.Window.HexID(), err)
		}
	}
	return nil
}

// Minimize asks the window manager to iconify the window (ICCCM 4.1.4)
func (b *X11Backend) Minimize(ctx context.Context, w Window) error {
	atom, err := b.getAtom("WM_CHANGE_STATE")
	if err != nil {
		return err
	}
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: xproto.Window(w.Handle),
		Type:   atom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{iconicState, 0, 0, 0, 0}),
	}
	mask := uint32(xproto.EventMaskSubstructureNotify | xproto.EventMaskSubstructureRedirect)
	if err := xproto.SendEventChecked(b.conn, false, b.root, mask, string(ev.Bytes())).Check(); err != nil {
		return fmt.Errorf("failed to iconify %s: %w", w.HexID(), err)
	}
	return nil
}

// Restore maps an iconified window
func (b *X11Backend) Restore(ctx context.Context, w Window) error {
	if err := xproto.MapWindowChecked(b.conn, xproto.Window(w.Handle)).Check(); err != nil {
		return fmt.Errorf("failed to map %s: %w", w.HexID(), err)
	}
	return nil
}

// Monitors lists the CRTCs driving connected outputs
func (b *X11Backend) Monitors(ctx context.Context) ([]Monitor, error) {
	if !b.randr {
		return nil, nil
	}
	res, err := randr.GetScreenResourcesCurrent(b.conn, b.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []Monitor
	for _, output := range res.Outputs {
		info, err := randr.GetOutputInfo(b.conn, output, res.ConfigTimestamp).Reply()
		if err != nil || info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}
		crtc, err := randr.GetCrtcInfo(b.conn, info.Crtc, res.ConfigTimestamp).Reply()
		if err != nil || crtc.Width == 0 || crtc.Height == 0 {
			continue
		}
		monitors = append(monitors, Monitor{
			Name:   string(info.Name),
			X:      int(crtc.X),
			Y:      int(crtc.Y),
			Width:  int(crtc.Width),
			Height: int(crtc.Height),
		})
	}
	return monitors, nil
}

// Locate fills in each window's frame position in root coordinates.
// Windows the server no longer knows keep empty bounds.
func (b *X11Backend) Locate(ctx context.Context, windows []Window) []Window {
	located := make([]Window, len(windows))
	for i, w := range windows {
		located[i] = w
		win := xproto.Window(w.Handle)
		geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply()
		if err != nil {
			continue
		}
		pos, err := xproto.TranslateCoordinates(b.conn, win, b.root, 0, 0).Reply()
		if err != nil {
			continue
		}
		located[i].Bounds = Geometry{X: int(pos.DstX), Y: int(pos.DstY), Width: int(geom.Width), Height: int(geom.Height)}
	}
	return located
}

// ActiveWindow reads _NET_ACTIVE_WINDOW from the root window
func (b *X11Backend) ActiveWindow(ctx context.Context) (uint64, error) {
	atom, err := b.getAtom("_NET_ACTIVE_WINDOW")
	if err != nil {
		return 0, err
	}

	reply, err := xproto.GetProperty(b.conn, false, b.root, atom, xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to get _NET_ACTIVE_WINDOW: %w", err)
	}
	if len(reply.Value) < 4 {
		return 0, nil
	}
	return uint64(xgb.Get32(reply.Value)), nil
}

// getAtom gets an atom ID by name, interning it once
func (b *X11Backend) getAtom(name string) (xproto.Atom, error) {
	b.atomsMu.Lock()
	defer b.atomsMu.Unlock()

	if atom, ok := b.atoms[name]; ok {
		return atom, nil
	}

	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	b.atoms[name] = reply.Atom
	return reply.Atom, nil
}
