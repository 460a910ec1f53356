package terminal

import (
	"context"
	"strings"
	"testing"

	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/orchestrator"
	"github.com/pocketomega/codex-core/internal/provider"
	"github.com/pocketomega/codex-core/internal/session"
)

type scriptedAdapter struct {
	events []provider.Event
}

func (a scriptedAdapter) Stream(ctx context.Context, req provider.ModelRequest) <-chan provider.Event {
	ch := make(chan provider.Event, len(a.events))
	for _, ev := range a.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestSessionRunExitsOnExitCommand(t *testing.T) {
	in := strings.NewReader("/exit\n")
	var out strings.Builder

	sess, id, err := New(scriptedAdapter{}, orchestrator.Options{RepoRoot: t.TempDir()}, "openai", in, &out, true)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected a generated session id")
	}
	if code := sess.Run(context.Background()); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestSessionRunPrintsHelpThenExits(t *testing.T) {
	in := strings.NewReader("/help\n/quit\n")
	var out strings.Builder

	sess, _, err := New(scriptedAdapter{}, orchestrator.Options{RepoRoot: t.TempDir()}, "openai", in, &out, true)
	if err != nil {
		t.Fatal(err)
	}
	sess.Run(context.Background())
	if !strings.Contains(out.String(), "commands:") {
		t.Fatalf("expected help text in output, got %q", out.String())
	}
}

func TestSessionRunStreamsTextAndWritesLog(t *testing.T) {
	adapter := scriptedAdapter{events: []provider.Event{
		provider.TextDelta("hello"), provider.ResponseCompleted("end_turn", nil),
	}}
	in := strings.NewReader("hi there\n/exit\n")
	var out strings.Builder
	root := t.TempDir()

	sess, id, err := New(adapter, orchestrator.Options{RepoRoot: root}, "openai", in, &out, true)
	if err != nil {
		t.Fatal(err)
	}
	sess.Run(context.Background())

	if !strings.Contains(out.String(), "hello") {
		t.Fatalf("expected streamed text in output, got %q", out.String())
	}

	messages, err := (&session.Reader{}).ReadMessages(session.LogPath(root, id))
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 reconstructed messages, got %d", len(messages))
	}
}

func TestSeedPreloadsMessages(t *testing.T) {
	sess := &Session{}
	seeded := []conversation.Message{conversation.NewUserMessage("earlier")}
	sess.Seed(seeded)
	if len(sess.messages) != 1 {
		t.Fatalf("expected Seed to preload 1 message, got %d", len(sess.messages))
	}
}
