package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/nicotine/internal/logger"
)

// ErrDaemonRunning is returned when the socket already answers
var ErrDaemonRunning = errors.New("another daemon is already running")

// maxRequest bounds a request line
const maxRequest = 256

// Handler executes parsed requests
type Handler interface {
	Handle(ctx context.Context, req Request) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, req Request) error

func (f HandlerFunc) Handle(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Server is the control socket
type Server struct {
	socketPath  string
	readTimeout time.Duration
	handler     Handler

	listener  net.Listener
	done      chan struct{}
	closeOnce sync.Once
	conns     sync.WaitGroup
}

// NewServer creates a control socket server. Nothing is bound until Listen.
func NewServer(socketPath string, readTimeout time.Duration, handler Handler) *Server {
	if readTimeout <= 0 {
		readTimeout = time.Second
	}
	return &Server{
		socketPath:  socketPath,
		readTimeout: readTimeout,
		handler:     handler,
		done:        make(chan struct{}),
	}
}

// SocketPath returns the socket location
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Listen binds the socket. A socket that answers a dial belongs to a live
// daemon and is left alone; a dead one is removed first.
func (s *Server) Listen() error {
	log := logger.WithComponent("ipc")

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	if conn, err := net.DialTimeout("unix", s.socketPath, 200*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("%w: %s is in use", ErrDaemonRunning, s.socketPath)
	}

	if err := os.Remove(s.socketPath); err == nil {
		log.Info().Str("path", s.socketPath).Msg("Removed stale socket")
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to restrict socket permissions: %w", err)
	}
	s.listener = listener

	log.Info().Str("path", s.socketPath).Msg("Control socket listening")
	return nil
}

// Serve accepts connections until ctx is done or Close is called
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	log := logger.WithComponent("ipc")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				s.conns.Wait()
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			log.Error().Err(err).Msg("Accept failed")
			s.Close()
			s.conns.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting and removes the socket file
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			err = s.listener.Close()
		}
		if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	})
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := logger.WithComponent("ipc")

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	reader := bufio.NewReaderSize(io.LimitReader(conn, maxRequest), maxRequest)
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		log.Debug().Err(err).Msg("Dropping connection without a request")
		return
	}

	var result error
	req, err := ParseRequest(line)
	if err != nil {
		result = err
	} else {
		result = s.handler.Handle(ctx, req)
	}

	if result != nil {
		log.Debug().Err(result).Str("request", req.String()).Msg("Request failed")
	} else {
		log.Debug().Str("request", req.String()).Msg("Request handled")
	}

	conn.SetWriteDeadline(time.Now().Add(s.readTimeout))
	if _, err := io.WriteString(conn, FormatResponse(result)+"\n"); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
