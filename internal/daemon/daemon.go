// Package daemon wires the backend, cycle controller, refresh loop, input
// listeners and sockets into one supervised process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/nicotine/internal/api"
	"github.com/bryanchriswhite/nicotine/internal/config"
	"github.com/bryanchriswhite/nicotine/internal/cycle"
	"github.com/bryanchriswhite/nicotine/internal/indexfile"
	"github.com/bryanchriswhite/nicotine/internal/input"
	"github.com/bryanchriswhite/nicotine/internal/ipc"
	"github.com/bryanchriswhite/nicotine/internal/logger"
	"github.com/bryanchriswhite/nicotine/internal/refresh"
	"github.com/bryanchriswhite/nicotine/internal/window"
	"golang.org/x/sync/errgroup"
)

// Options are per-run switches that are not part of the config file
type Options struct {
	NoMouse    bool
	NoKeyboard bool
	// Devices overrides the /proc/bus/input/devices lookup
	Devices func() ([]input.Device, error)
}

// Daemon owns every long-running component
type Daemon struct {
	cfg     *config.Config
	opts    Options
	backend window.Backend

	order     *window.OrderFile
	source    *window.Source
	publisher *indexfile.Publisher
	ctrl      *cycle.Controller
	loop      *refresh.Loop
	ipc       *ipc.Server
	status    *api.Server
	listeners []*input.Listener
}

// New acquires every startup resource: order file, index file, control
// socket and status socket. Any failure here is fatal and nothing has been
// started yet. The daemon takes ownership of backend.
func New(cfg *config.Config, backend window.Backend, opts Options) (*Daemon, error) {
	log := logger.WithComponent("daemon")
	d := &Daemon{cfg: cfg, opts: opts, backend: backend}

	order, err := window.LoadOrderFile(cfg.Window.OrderFile)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Window.OrderFile).Msg("Ignoring unreadable order file")
		order, _ = window.LoadOrderFile("")
	}
	d.order = order

	d.source, err = window.NewSource(backend, cfg.Window, order)
	if err != nil {
		return nil, err
	}

	d.publisher, err = indexfile.NewPublisher(cfg.IndexPath)
	if err != nil {
		return nil, err
	}

	var activator cycle.Activator = backend
	if cfg.MinimizeInactive {
		activator = window.NewSwitcher(backend)
	}
	d.ctrl = cycle.NewController(activator, d.publisher)
	d.loop = refresh.New(refresh.Config{
		Interval:              cfg.RefreshInterval,
		EmptyTicksBeforeClear: cfg.EmptyTicksBeforeClear,
		FollowFocus:           cfg.FollowFocus,
	}, d.source, backend, d.ctrl)

	d.ipc = ipc.NewServer(cfg.SocketPath, cfg.IPCReadTimeout, ipc.HandlerFunc(d.handle))
	if err := d.ipc.Listen(); err != nil {
		return nil, err
	}

	if cfg.Status.Enabled {
		d.status = api.NewServer(d.ctrl, cfg, backend.Name())
		if err := d.status.Listen(cfg.Status.SocketPath); err != nil {
			d.ipc.Close()
			return nil, err
		}
	}

	d.listeners = d.buildListeners()
	return d, nil
}

// Controller exposes the shared state, used by tests
func (d *Daemon) Controller() *cycle.Controller {
	return d.ctrl
}

func (d *Daemon) buildListeners() []*input.Listener {
	log := logger.WithComponent("daemon")
	mouse := d.cfg.Mouse.Enabled && !d.opts.NoMouse
	keyboard := d.cfg.Keyboard.Enabled && !d.opts.NoKeyboard
	if !mouse && !keyboard {
		return nil
	}

	listDevices := d.opts.Devices
	if listDevices == nil {
		listDevices = input.ListDevices
	}
	devices, err := listDevices()
	if err != nil {
		log.Warn().Err(err).Msg("Cannot list input devices, only explicit device paths will work")
	}

	var listeners []*input.Listener
	add := func(name string, kind input.Kind, path, devName string, bindings []input.Binding) {
		if len(bindings) == 0 {
			return
		}
		resolved, err := input.Resolve(devices, kind, path, devName)
		if err != nil {
			log.Warn().Err(err).Str("device", name).Msg("Input listener disabled")
			return
		}
		listeners = append(listeners, input.NewListener(name, resolved, bindings, d.ctrl))
	}

	if mouse {
		add("mouse", input.KindMouse, d.cfg.Mouse.DevicePath, d.cfg.Mouse.DeviceName, input.MouseBindings(d.cfg.Mouse))
	}
	if keyboard {
		add("keyboard", input.KindKeyboard, d.cfg.Keyboard.DevicePath, d.cfg.Keyboard.DeviceName, input.KeyboardBindings(d.cfg.Keyboard))
	}
	return listeners
}

// Run starts every component and blocks until ctx is done or SIGINT/SIGTERM
// arrives, then waits for all of them to stop.
func (d *Daemon) Run(ctx context.Context) error {
	log := logger.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer d.cleanup()

	// Observers see "no selection" until the first enumeration lands
	if err := d.publisher.Publish(cycle.NoSelection, 0); err != nil {
		log.Warn().Err(err).Msg("Failed to publish initial index")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.ipc.Serve(ctx) })
	if d.status != nil {
		g.Go(func() error { return d.status.Serve(ctx) })
	}
	g.Go(func() error { return d.loop.Run(ctx) })

	g.Go(func() error {
		if err := d.order.Watch(ctx, d.loop.Trigger); err != nil {
			log.Warn().Err(err).Msg("Order file watcher disabled")
		}
		return nil
	})

	for _, l := range d.listeners {
		g.Go(func() error {
			if err := l.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("path", l.Path()).Msg("Input listener stopped")
			}
			return nil
		})
	}

	if d.cfg.Stack.OnStart {
		g.Go(func() error {
			d.stackWhenReady(ctx)
			return nil
		})
	}

	log.Info().
		Str("backend", d.backend.Name()).
		Str("socket", d.ipc.SocketPath()).
		Str("index", d.publisher.Path()).
		Str("order_file", d.order.Path()).
		Int("listeners", len(d.listeners)).
		Msg("Daemon running")

	err := g.Wait()
	log.Info().Msg("Daemon stopped")
	return err
}

// stackWhenReady waits for the first non-empty window list and stacks it
func (d *Daemon) stackWhenReady(ctx context.Context) {
	updates := d.ctrl.Subscribe()
	defer d.ctrl.Unsubscribe(updates)

	for d.ctrl.Len() == 0 {
		select {
		case <-ctx.Done():
			return
		case <-updates:
		}
	}
	if err := d.Stack(ctx); err != nil {
		logger.WithComponent("daemon").Warn().Err(err).Msg("Stacking on start failed")
	}
}

// Stack arranges every cycle window on its monitor at the configured size
func (d *Daemon) Stack(ctx context.Context) error {
	log := logger.WithComponent("daemon")

	windows := d.ctrl.Windows()
	if len(windows) == 0 {
		return nil
	}
	if l, ok := d.backend.(window.Locator); ok {
		windows = l.Locate(ctx, windows)
	}
	monitors, err := d.backend.Monitors(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cannot list monitors, stacking on the configured display")
		monitors = nil
	}
	placements := window.PlanStack(windows, monitors, d.cfg.Stack)

	log.Info().
		Int("windows", len(windows)).
		Int("monitors", len(monitors)).
		Str("primary", d.cfg.Stack.PrimaryCharacter).
		Msg("Stacking windows")
	return d.backend.Stack(ctx, placements)
}

// handle executes one control socket request
func (d *Daemon) handle(ctx context.Context, req ipc.Request) error {
	switch req.Kind {
	case ipc.KindCycle:
		_, err := d.ctrl.Apply(ctx, req.Command, "ipc")
		return err
	case ipc.KindStack:
		err := d.Stack(ctx)
		if errors.Is(err, window.ErrUnsupported) {
			return fmt.Errorf("%s backend cannot stack windows", d.backend.Name())
		}
		return err
	case ipc.KindRefresh:
		d.loop.Trigger()
		return nil
	default:
		return fmt.Errorf("%w: unknown request", ipc.ErrMalformed)
	}
}

func (d *Daemon) cleanup() {
	log := logger.WithComponent("daemon")
	if err := d.ipc.Close(); err != nil {
		log.Debug().Err(err).Msg("Control socket cleanup")
	}
	if err := d.publisher.Remove(); err != nil {
		log.Debug().Err(err).Msg("Index file cleanup")
	}
	if err := d.backend.Close(); err != nil {
		log.Debug().Err(err).Msg("Backend close")
	}
}
