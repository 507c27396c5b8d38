// Package input reads mouse and keyboard events from evdev devices and turns
// configured presses into cycle commands. Devices are opened read-only and
// never grabbed, so other programs keep receiving the same events.
package input

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const (
	evKey = 0x01
	evRep = 0x14

	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2

	// eventSize is sizeof(struct input_event) on 64-bit Linux:
	// struct timeval (16) + type (2) + code (2) + value (4)
	eventSize = 24
)

// Event is one decoded input_event
type Event struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

// DecodeEvents decodes every whole record in buf
func DecodeEvents(buf []byte) []Event {
	n := len(buf) / eventSize
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		rec := buf[i*eventSize : (i+1)*eventSize]
		sec := int64(binary.LittleEndian.Uint64(rec[0:8]))
		usec := int64(binary.LittleEndian.Uint64(rec[8:16]))
		events = append(events, Event{
			Time:  time.Unix(sec, usec*1000),
			Type:  binary.LittleEndian.Uint16(rec[16:18]),
			Code:  binary.LittleEndian.Uint16(rec[18:20]),
			Value: int32(binary.LittleEndian.Uint32(rec[20:24])),
		})
	}
	return events
}

// EncodeEvent is the inverse of DecodeEvents for a single event
func EncodeEvent(ev Event) []byte {
	rec := make([]byte, eventSize)
	usec := ev.Time.UnixMicro()
	binary.LittleEndian.PutUint64(rec[0:8], uint64(usec/1e6))
	binary.LittleEndian.PutUint64(rec[8:16], uint64(usec%1e6))
	binary.LittleEndian.PutUint16(rec[16:18], ev.Type)
	binary.LittleEndian.PutUint16(rec[18:20], ev.Code)
	binary.LittleEndian.PutUint32(rec[20:24], uint32(ev.Value))
	return rec
}

// device is an open evdev node
type device struct {
	path string
	fd   int
	buf  []byte
}

func openDevice(path string) (*device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &device{path: path, fd: fd, buf: make([]byte, eventSize*64)}, nil
}

// read waits up to timeout for events. A timeout returns no events and no
// error so the caller can check for shutdown.
func (d *device) read(timeout time.Duration) ([]Event, error) {
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("poll %s: %w", d.path, err)
	}
	if n == 0 {
		return nil, nil
	}
	// Drain pending events before reporting a hangup
	revents := fds[0].Revents
	if revents&unix.POLLIN == 0 {
		if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return nil, fmt.Errorf("device %s disconnected: %w", d.path, unix.ENODEV)
		}
		return nil, nil
	}

	m, err := unix.Read(d.fd, d.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", d.path, err)
	}
	if m == 0 {
		return nil, fmt.Errorf("device %s disconnected: %w", d.path, unix.ENODEV)
	}
	return DecodeEvents(d.buf[:m]), nil
}

func (d *device) close() error {
	return unix.Close(d.fd)
}
