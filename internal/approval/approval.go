// Package approval implements the two approval arbitrators: a synchronous
// terminal prompt, and an asynchronous one-shot future resolved by an
// external POST over the server's event channel.
package approval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Arbitrator authorizes one tool call, given its call_id (may be empty for
// the terminal arbitrator, which has no correlation concept).
type Arbitrator interface {
	RequestApproval(ctx context.Context, toolName string, argsJSON json.RawMessage, callID string) (bool, error)
}

// Request is what the server arbitrator hands off to its publisher when it
// needs a human decision. The publisher turns it into an approval_required
// server event.
type Request struct {
	CallID   string
	ToolName string
	ArgsJSON json.RawMessage
	Reason   string
}

// Terminal prompts on Out and reads one line from In. Approval is granted
// iff the trimmed input equals "y", case-insensitively.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{In: in, Out: out}
}

func (t *Terminal) RequestApproval(_ context.Context, toolName string, argsJSON json.RawMessage, _ string) (bool, error) {
	fmt.Fprintf(t.Out, "[approval] %s %s — approve? (y/N): ", toolName, string(argsJSON))
	scanner := bufio.NewScanner(t.In)
	if !scanner.Scan() {
		return false, scanner.Err()
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "y"), nil
}

type pendingApproval struct {
	result      chan bool
	requestedAt time.Time
}

// Server is non-blocking at the call site: it publishes an approval_required
// request, creates a one-shot future keyed by call_id, and waits for either
// TryResolve or cancellation.
type Server struct {
	mu      sync.Mutex
	pending map[string]*pendingApproval
	publish func(Request)
}

// NewServer constructs a Server arbitrator. publish is invoked once per
// request with the correlation id already assigned; the caller is
// responsible for turning it into an actual wire event.
func NewServer(publish func(Request)) *Server {
	return &Server{
		pending: make(map[string]*pendingApproval),
		publish: publish,
	}
}

func (s *Server) RequestApproval(ctx context.Context, toolName string, argsJSON json.RawMessage, callID string) (bool, error) {
	if callID == "" {
		callID = uuid.NewString()
	}

	p := &pendingApproval{result: make(chan bool, 1), requestedAt: time.Now()}
	s.mu.Lock()
	s.pending[callID] = p
	s.mu.Unlock()

	s.publish(Request{CallID: callID, ToolName: toolName, ArgsJSON: argsJSON, Reason: "approval required by policy"})

	select {
	case approved := <-p.result:
		return approved, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, callID)
		s.mu.Unlock()
		return false, ctx.Err()
	}
}

// TryResolve completes the pending approval for callID. It is a single-shot
// state transition: the second call for the same id (or a call for an
// unknown id) returns false.
func (s *Server) TryResolve(callID string, approved bool) bool {
	_, ok := s.TryResolveTimed(callID, approved)
	return ok
}

// TryResolveTimed is TryResolve plus the wall-clock time the approval spent
// pending, for callers that want to feed it into a latency metric.
func (s *Server) TryResolveTimed(callID string, approved bool) (time.Duration, bool) {
	s.mu.Lock()
	p, ok := s.pending[callID]
	if ok {
		delete(s.pending, callID)
	}
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	p.result <- approved
	return time.Since(p.requestedAt), true
}

// Pending reports whether callID currently has an outstanding approval —
// useful for server handlers distinguishing "unknown call" (404) from
// "already resolved" (also 404, but worth a different log line).
func (s *Server) Pending(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[callID]
	return ok
}
