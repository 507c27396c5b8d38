package ipc

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/cycle"
	"github.com/bryanchriswhite/nicotine/internal/window"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line    string
		want    Request
		wantErr bool
	}{
		{"forward", Request{Kind: KindCycle, Command: cycle.Forward}, false},
		{"backward\n", Request{Kind: KindCycle, Command: cycle.Backward}, false},
		{"  3  ", Request{Kind: KindCycle, Command: cycle.Target(3)}, false},
		{"stack", Request{Kind: KindStack}, false},
		{"refresh", Request{Kind: KindRefresh}, false},
		{"", Request{}, true},
		{"0", Request{}, true},
		{"-1", Request{}, true},
		{"Forward", Request{}, true},
		{"next", Request{}, true},
		{"2 3", Request{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseRequest(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("ParseRequest(%q) error = %v, want ErrMalformed", tt.line, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ParseRequest(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	if err := ParseResponse(FormatResponse(nil)); err != nil {
		t.Errorf("ok response parsed as %v", err)
	}

	err := ParseResponse(FormatResponse(errors.New("window gone\nreally")))
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Reason != "window gone really" {
		t.Errorf("err response parsed as %v", err)
	}

	if err := ParseResponse("what"); err == nil || errors.As(err, &remote) {
		t.Errorf("garbage response parsed as %v", err)
	}
}

type recordingActivator struct {
	mu      sync.Mutex
	handles []uint64
}

func (a *recordingActivator) Activate(ctx context.Context, w window.Window) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handles = append(a.handles, w.Handle)
	return nil
}

func (a *recordingActivator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}

func controllerHandler(ctrl *cycle.Controller) Handler {
	return HandlerFunc(func(ctx context.Context, req Request) error {
		switch req.Kind {
		case KindCycle:
			_, err := ctrl.Apply(ctx, req.Command, "ipc")
			return err
		case KindStack:
			return errors.New("stack not supported")
		default:
			return nil
		}
	})
}

func startServer(t *testing.T, handler Handler) (string, *Server) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nicotine.sock")
	srv := NewServer(path, 200*time.Millisecond, handler)
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not stop")
		}
	})
	return path, srv
}

func TestServerEndToEnd(t *testing.T) {
	act := &recordingActivator{}
	ctrl := cycle.NewController(act, nil)
	ctx := context.Background()
	ctrl.Merge(ctx, []window.Window{{Handle: 1, Title: "A"}, {Handle: 2, Title: "B"}, {Handle: 3, Title: "C"}}, 0)

	path, _ := startServer(t, controllerHandler(ctrl))

	steps := []struct {
		req     string
		wantIdx int
	}{
		{"forward", 1},
		{"forward", 2},
		{"forward", 0},
		{"backward", 2},
		{"2", 1},
	}
	for _, step := range steps {
		if err := Send(ctx, path, step.req); err != nil {
			t.Fatalf("%s: %v", step.req, err)
		}
		if idx := ctrl.Snapshot().Index; idx != step.wantIdx {
			t.Fatalf("%s: index = %d, want %d", step.req, idx, step.wantIdx)
		}
	}

	// Out of range target: ok, nothing happens.
	if err := Send(ctx, path, "9"); err != nil {
		t.Fatalf("9: %v", err)
	}
	if ctrl.Snapshot().Index != 1 {
		t.Error("out of range target moved the selection")
	}

	// Malformed requests are rejected without touching state.
	gen := ctrl.Snapshot().Generation
	err := Send(ctx, path, "sideways")
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("malformed request: err = %v", err)
	}
	if ctrl.Snapshot().Generation != gen {
		t.Error("malformed request changed state")
	}

	if err := Send(ctx, path, "stack"); !errors.As(err, &remote) {
		t.Errorf("handler error not reported: %v", err)
	}

	if got := act.count(); got != len(steps) {
		t.Errorf("activations = %d, want %d", got, len(steps))
	}
}

func TestServerSocketMode(t *testing.T) {
	path, _ := startServer(t, HandlerFunc(func(context.Context, Request) error { return nil }))
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}
}

func TestServerRefusesLiveSocket(t *testing.T) {
	path, _ := startServer(t, HandlerFunc(func(context.Context, Request) error { return nil }))

	second := NewServer(path, time.Second, nil)
	if err := second.Listen(); !errors.Is(err, ErrDaemonRunning) {
		t.Fatalf("second Listen error = %v, want ErrDaemonRunning", err)
	}
	if !Running(path) {
		t.Error("first daemon's socket was disturbed")
	}
}

func TestServerRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nicotine.sock")

	// A bound socket whose owner went away without unlinking it.
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	l.(*net.UnixListener).SetUnlinkOnClose(false)
	l.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stale socket not left behind: %v", err)
	}

	srv := NewServer(path, time.Second, HandlerFunc(func(context.Context, Request) error { return nil }))
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	srv.Close()
}

func TestServerReadTimeout(t *testing.T) {
	path, _ := startServer(t, HandlerFunc(func(context.Context, Request) error { return nil }))

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Send nothing; the server drops the connection after its read deadline.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := bufio.NewReader(conn).ReadString('\n'); err == nil {
		t.Error("silent client got a response")
	}

	// Other clients are still served.
	if err := Send(context.Background(), path, "refresh"); err != nil {
		t.Errorf("refresh after slow client: %v", err)
	}
}

func TestServerConcurrentClients(t *testing.T) {
	const n = 4
	ctrl := cycle.NewController(&recordingActivator{}, nil)
	ctx := context.Background()
	ctrl.Merge(ctx, []window.Window{{Handle: 1}, {Handle: 2}, {Handle: 3}, {Handle: 4}}, 0)

	path, _ := startServer(t, controllerHandler(ctrl))

	var wg sync.WaitGroup
	var mu sync.Mutex
	forwards, backwards := 0, 0
	for g := 0; g < 6; g++ {
		req := "forward"
		if g%2 == 1 {
			req = "backward"
		}
		wg.Add(1)
		go func(req string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := Send(ctx, path, req); err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				if req == "forward" {
					forwards++
				} else {
					backwards++
				}
				mu.Unlock()
			}
		}(req)
	}

	// Commands from an input device race with the socket clients.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			ctrl.Apply(ctx, cycle.Forward, "mouse")
			mu.Lock()
			forwards++
			mu.Unlock()
		}
	}()
	wg.Wait()

	want := ((forwards-backwards)%n + n) % n
	if idx := ctrl.Snapshot().Index; idx != want {
		t.Errorf("final index = %d, want %d", idx, want)
	}
}

func TestSendNoDaemon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")
	if err := Send(context.Background(), path, "forward"); err == nil {
		t.Error("Send to a missing socket succeeded")
	}
	if Running(path) {
		t.Error("Running reported a missing daemon")
	}
}
