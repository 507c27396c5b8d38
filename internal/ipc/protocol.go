// Package ipc is the control channel: a unix socket accepting one request
// line per connection and answering with one response line.
//
//	request:  forward | backward | <N> | stack | refresh
//	response: ok | err <reason>
package ipc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/nicotine/internal/cycle"
)

// ErrMalformed is returned for requests that are not a known verb or a
// positive integer
var ErrMalformed = errors.New("malformed request")

// Verbs that are not cycle commands
const (
	VerbStack   = "stack"
	VerbRefresh = "refresh"
)

// Response lines
const (
	RespOK  = "ok"
	RespErr = "err"
)

// Kind distinguishes requests
type Kind int

const (
	KindCycle Kind = iota + 1
	KindStack
	KindRefresh
)

// Request is one parsed request line
type Request struct {
	Kind    Kind
	Command cycle.Command
}

func (r Request) String() string {
	switch r.Kind {
	case KindStack:
		return VerbStack
	case KindRefresh:
		return VerbRefresh
	default:
		return r.Command.String()
	}
}

// ParseRequest parses a request line. Surrounding whitespace is ignored.
func ParseRequest(line string) (Request, error) {
	s := strings.TrimSpace(line)
	switch s {
	case "forward":
		return Request{Kind: KindCycle, Command: cycle.Forward}, nil
	case "backward":
		return Request{Kind: KindCycle, Command: cycle.Backward}, nil
	case VerbStack:
		return Request{Kind: KindStack}, nil
	case VerbRefresh:
		return Request{Kind: KindRefresh}, nil
	case "":
		return Request{}, fmt.Errorf("%w: empty request", ErrMalformed)
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return Request{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return Request{Kind: KindCycle, Command: cycle.Target(n)}, nil
}

// FormatResponse renders err as a response line without the newline
func FormatResponse(err error) string {
	if err == nil {
		return RespOK
	}
	reason := strings.ReplaceAll(err.Error(), "\n", " ")
	return RespErr + " " + reason
}

// ParseResponse turns a response line back into an error
func ParseResponse(line string) error {
	s := strings.TrimSpace(line)
	if s == RespOK {
		return nil
	}
	if reason, ok := strings.CutPrefix(s, RespErr); ok {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "unknown error"
		}
		return &RemoteError{Reason: reason}
	}
	return fmt.Errorf("unexpected response %q", s)
}

// RemoteError is an err response from the daemon
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return "daemon: " + e.Reason
}
