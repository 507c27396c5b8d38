package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout bounds a client round-trip when ctx has no deadline
const DefaultTimeout = 2 * time.Second

// Send delivers one request line to the daemon at socketPath and returns
// the daemon's verdict. An err response comes back as *RemoteError.
func Send(ctx context.Context, socketPath, request string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon at %s: %w", socketPath, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "%s\n", request); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return ParseResponse(line)
}

// Running reports whether a daemon answers at socketPath
func Running(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
