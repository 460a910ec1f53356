package orchestrator

import (
	"crypto/md5"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pocketomega/codex-core/internal/conversation"
)

// ContextStatus indicates the context window usage level.
type ContextStatus int

const (
	ContextOK ContextStatus = iota
	ContextWarning
	ContextCritical
)

// ContextGuard monitors context window usage against the model's window
// size and signals when the conversation should be compacted.
type ContextGuard struct {
	windowTokens int
}

// NewContextGuard creates a context guard. windowTokens <= 0 disables it.
func NewContextGuard(windowTokens int) *ContextGuard {
	return &ContextGuard{windowTokens: windowTokens}
}

func (g *ContextGuard) CheckTokens(tokens int) ContextStatus {
	if g.windowTokens <= 0 {
		return ContextOK
	}
	ratio := float64(tokens) / float64(g.windowTokens)
	switch {
	case ratio >= 0.85:
		return ContextCritical
	case ratio >= 0.70:
		return ContextWarning
	default:
		return ContextOK
	}
}

// CostGuard enforces a token budget and a wall-clock duration limit across
// a whole orchestrator run.
type CostGuard struct {
	maxTokens   int64
	maxDuration time.Duration
	usedTokens  atomic.Int64
	startTime   time.Time
	exceeded    bool
}

// NewCostGuard creates a cost guard. maxTokens=0 or maxDuration=0 disables
// the respective limit.
func NewCostGuard(maxTokens int64, maxDuration time.Duration) *CostGuard {
	return &CostGuard{maxTokens: maxTokens, maxDuration: maxDuration, startTime: time.Now()}
}

func (g *CostGuard) RecordTokens(n int) error {
	if g.maxTokens <= 0 {
		return nil
	}
	total := g.usedTokens.Add(int64(n))
	if total > g.maxTokens {
		g.exceeded = true
		return fmt.Errorf("token budget exceeded: used %d / limit %d", total, g.maxTokens)
	}
	return nil
}

func (g *CostGuard) CheckDuration() error {
	if g.maxDuration <= 0 {
		return nil
	}
	if elapsed := time.Since(g.startTime); elapsed > g.maxDuration {
		g.exceeded = true
		return fmt.Errorf("run duration exceeded: %v / limit %v", elapsed.Round(time.Second), g.maxDuration)
	}
	return nil
}

func (g *CostGuard) IsExceeded() bool { return g.exceeded }

// toolCallRecord is the minimal per-call history the loop detector needs.
type toolCallRecord struct {
	toolName string
	argsJSON string
	failed   bool
}

const (
	loopWindowSize       = 8
	loopSameToolLimit    = 3
	loopConsecErrorLimit = 3
)

// LoopDetectionResult describes a detected repetitive-call pattern.
type LoopDetectionResult struct {
	Detected    bool
	Rule        string
	Description string
}

// LoopDetector flags repetitive tool-call patterns: the same (tool, args)
// pair called too often in a recent window, or a run of consecutive
// failures. Stateless — callers pass in the call history each time.
type LoopDetector struct{}

func (d *LoopDetector) Check(history []toolCallRecord) LoopDetectionResult {
	if len(history) < 2 {
		return LoopDetectionResult{}
	}
	if r := d.checkSameCallFrequency(history); r.Detected {
		return r
	}
	return d.checkConsecutiveErrors(history)
}

func (d *LoopDetector) checkSameCallFrequency(history []toolCallRecord) LoopDetectionResult {
	window := history
	if len(window) > loopWindowSize {
		window = window[len(window)-loopWindowSize:]
	}
	type key struct{ name, args string }
	freq := make(map[key]int)
	for _, c := range window {
		freq[key{c.toolName, argsDedupKey(c.argsJSON)}]++
	}
	for k, count := range freq {
		if count >= loopSameToolLimit {
			return LoopDetectionResult{
				Detected:    true,
				Rule:        "same_call_frequency",
				Description: fmt.Sprintf("%s called %d times with the same arguments", k.name, count),
			}
		}
	}
	return LoopDetectionResult{}
}

func (d *LoopDetector) checkConsecutiveErrors(history []toolCallRecord) LoopDetectionResult {
	if len(history) < loopConsecErrorLimit {
		return LoopDetectionResult{}
	}
	tail := history[len(history)-loopConsecErrorLimit:]
	for _, c := range tail {
		if !c.failed {
			return LoopDetectionResult{}
		}
	}
	return LoopDetectionResult{
		Detected:    true,
		Rule:        "consecutive_errors",
		Description: fmt.Sprintf("the last %d tool calls all failed", loopConsecErrorLimit),
	}
}

// contextCompactTailMessages is how many of the most recent messages
// compactOldestTurns always leaves untouched, regardless of how much is
// folded away — the model needs the immediate exchange intact to keep
// working on the current tool call sequence.
const contextCompactTailMessages = 6

// compactOldestTurns folds every message before the last
// contextCompactTailMessages into a single synthetic User note instead of
// letting the request grow unbounded. It only cuts at a User-message
// boundary so an Assistant message's tool calls are never separated from
// their Tool result messages.
func compactOldestTurns(messages []conversation.Message) []conversation.Message {
	if len(messages) <= contextCompactTailMessages {
		return messages
	}
	cut := len(messages) - contextCompactTailMessages
	for cut > 0 && messages[cut].Role != conversation.RoleUser {
		cut--
	}
	if cut <= 0 {
		return messages
	}

	var turns int
	for _, m := range messages[:cut] {
		if m.Role == conversation.RoleUser {
			turns++
		}
	}
	summary := fmt.Sprintf("[compacted %d earlier turn(s) to stay within the context window]", turns)
	note := conversation.NewUserMessage(summary)

	out := make([]conversation.Message, 0, 1+len(messages)-cut)
	out = append(out, note)
	out = append(out, messages[cut:]...)
	return out
}

// argsDedupKey hashes argsJSON so equal argument sets compare equal without
// keeping the full JSON text around in the frequency map.
func argsDedupKey(argsJSON string) string {
	h := md5.Sum([]byte(argsJSON)) //nolint:gosec // dedup key, not a security boundary
	return fmt.Sprintf("%x", h)
}
