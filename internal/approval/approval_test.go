package approval

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTerminalApprovesOnY(t *testing.T) {
	term := NewTerminal(strings.NewReader("y\n"), &strings.Builder{})
	ok, err := term.RequestApproval(context.Background(), "RunCommand", json.RawMessage(`{}`), "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected y to approve")
	}
}

func TestTerminalRejectsOnAnythingElse(t *testing.T) {
	term := NewTerminal(strings.NewReader("n\n"), &strings.Builder{})
	ok, err := term.RequestApproval(context.Background(), "RunCommand", json.RawMessage(`{}`), "")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected n to reject")
	}
}

func TestServerResolvesAfterPublish(t *testing.T) {
	var published Request
	srv := NewServer(func(r Request) { published = r })

	resultCh := make(chan bool, 1)
	errCh := make(chan error, 1)
	go func() {
		ok, err := srv.RequestApproval(context.Background(), "RunCommand", json.RawMessage(`{}`), "")
		resultCh <- ok
		errCh <- err
	}()

	// Wait for the publish side effect before resolving.
	deadline := time.After(time.Second)
	for published.CallID == "" {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for publish")
		case <-time.After(time.Millisecond):
		}
	}

	if !srv.TryResolve(published.CallID, true) {
		t.Fatal("expected TryResolve to find the pending approval")
	}
	if got := <-resultCh; !got {
		t.Fatal("expected approval to resolve true")
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
}

func TestServerTryResolveUnknownCallID(t *testing.T) {
	srv := NewServer(func(Request) {})
	if srv.TryResolve("missing", true) {
		t.Fatal("expected TryResolve on unknown call_id to return false")
	}
}

func TestServerCancellation(t *testing.T) {
	srv := NewServer(func(Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := srv.RequestApproval(ctx, "RunCommand", json.RawMessage(`{}`), "fixed-id")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
