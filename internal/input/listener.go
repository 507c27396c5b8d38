package input

import (
	"context"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/cycle"
	"github.com/bryanchriswhite/nicotine/internal/logger"
)

// pollTimeout bounds how long a listener takes to notice shutdown
const pollTimeout = 200 * time.Millisecond

// Commander receives recognized commands; *cycle.Controller implements it.
type Commander interface {
	Apply(ctx context.Context, cmd cycle.Command, source string) (cycle.Transition, error)
}

// Listener owns one input device
type Listener struct {
	name       string
	path       string
	recognizer *Recognizer
	commander  Commander
}

// NewListener creates a listener for the evdev node at path. name labels
// logs and transitions ("mouse", "keyboard").
func NewListener(name, path string, bindings []Binding, commander Commander) *Listener {
	return &Listener{
		name:       name,
		path:       path,
		recognizer: NewRecognizer(bindings),
		commander:  commander,
	}
}

// Path returns the device node
func (l *Listener) Path() string {
	return l.path
}

// Run reads the device until ctx is done. A device error ends the listener
// with that error; other listeners are unaffected.
func (l *Listener) Run(ctx context.Context) error {
	log := logger.WithComponent("input").With().Str("device", l.name).Str("path", l.path).Logger()

	dev, err := openDevice(l.path)
	if err != nil {
		return err
	}
	defer dev.close()

	log.Info().Int("bindings", len(l.recognizer.bindings)).Msg("Listening for input")

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Input listener stopped")
			return nil
		}

		events, err := dev.read(pollTimeout)
		if err != nil {
			return err
		}
		for _, ev := range events {
			l.handle(ctx, ev)
		}
	}
}

func (l *Listener) handle(ctx context.Context, ev Event) {
	cmd, ok := l.recognizer.Feed(ev)
	if !ok {
		return
	}

	log := logger.WithComponent("input")
	log.Debug().Str("device", l.name).Uint16("code", ev.Code).Str("command", cmd.String()).Msg("Binding fired")

	if _, err := l.commander.Apply(ctx, cmd, l.name); err != nil {
		log.Warn().Err(err).Str("command", cmd.String()).Msg("Command failed")
	}
}
