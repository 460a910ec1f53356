// Package openai adapts api.openai.com (and compatible) chat completions
// into the normalized provider event stream.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/provider"
)

// Adapter streams a single turn's normalized events from the OpenAI chat
// completions API. It is stateless and safe for concurrent use; each Stream
// call owns its own goroutine and channel.
type Adapter struct {
	client *openailib.Client
}

func NewAdapter(client *openailib.Client) *Adapter {
	return &Adapter{client: client}
}

// Stream implements provider.Adapter. The returned channel is closed exactly
// once, after a terminal response_completed (successful or error) has been
// sent; the goroutine never panics across the channel.
func (a *Adapter) Stream(ctx context.Context, req provider.ModelRequest) <-chan provider.Event {
	events := make(chan provider.Event, 16)

	go func() {
		defer close(events)

		emit := func(ev provider.Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		creq := toChatRequest(req)
		stream, err := a.client.CreateChatCompletionStream(ctx, creq)
		if err != nil {
			emit(provider.Trace("error", err.Error()))
			emit(provider.ResponseCompleted("error", nil))
			return
		}
		defer stream.Close()

		tracker := newToolCallTracker()
		stopReason := ""
		var usage *provider.Usage

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if !emit(provider.Trace("error", err.Error())) {
					return
				}
				stopReason = "error"
				break
			}
			if len(chunk.Choices) == 0 {
				// Heartbeat/keep-alive frame: dropped silently.
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				if !emit(provider.TextDelta(choice.Delta.Content)) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				for _, ev := range tracker.ingest(tc) {
					if !emit(ev) {
						return
					}
				}
			}
			if choice.FinishReason != "" {
				stopReason = normalizeStopReason(string(choice.FinishReason))
			}
			if chunk.Usage != nil {
				usage = &provider.Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
		}

		for _, ev := range tracker.flush() {
			if !emit(ev) {
				return
			}
		}

		if stopReason == "" {
			stopReason = "stop"
		}
		emit(provider.ResponseCompleted(stopReason, usage))
	}()

	return events
}

// normalizeStopReason maps every vendor-specific finish reason to end_turn
// or stop when it means the assistant is done with no more work; everything
// else (length, tool_calls, content_filter) passes through unchanged as a
// non-terminal reason the orchestrator must still recognize by name.
func normalizeStopReason(reason string) string {
	switch reason {
	case "stop":
		return "stop"
	case "":
		return "stop"
	default:
		return reason
	}
}

// toolCallTracker buffers per-call_id argument fragments until the stream
// tells us (via a new index or stream end) that a call's arguments are
// complete, then emits exactly one tool_call_ready.
type toolCallTracker struct {
	order   []string
	ids     map[string]string // index key -> call_id
	names   map[string]string
	args    map[string]*strings.Builder
	started map[string]bool
}

func newToolCallTracker() *toolCallTracker {
	return &toolCallTracker{
		ids:     make(map[string]string),
		names:   make(map[string]string),
		args:    make(map[string]*strings.Builder),
		started: make(map[string]bool),
	}
}

func (t *toolCallTracker) ingest(tc openailib.ToolCall) []provider.Event {
	var events []provider.Event

	key := fmt.Sprintf("%d", derefInt(tc.Index))
	callID, ok := t.ids[key]
	if !ok {
		callID = tc.ID
		if callID == "" {
			callID = key
		}
		t.ids[key] = callID
		t.order = append(t.order, key)
	}
	if tc.Function.Name != "" {
		t.names[key] = tc.Function.Name
	}
	if !t.started[key] && t.names[key] != "" {
		t.started[key] = true
		events = append(events, provider.ToolCallStarted(callID, t.names[key]))
	}
	if tc.Function.Arguments != "" {
		b, ok := t.args[key]
		if !ok {
			b = &strings.Builder{}
			t.args[key] = b
		}
		b.WriteString(tc.Function.Arguments)
		events = append(events, provider.ToolCallArgsDelta(callID, tc.Function.Arguments))
	}
	return events
}

// flush is called once at stream end: every tracked call gets exactly one
// tool_call_ready, with {} substituted if no argument fragments arrived.
func (t *toolCallTracker) flush() []provider.Event {
	var events []provider.Event
	for _, key := range t.order {
		callID := t.ids[key]
		name := t.names[key]
		argsJSON := "{}"
		if b, ok := t.args[key]; ok && b.Len() > 0 {
			raw := b.String()
			var js json.RawMessage
			if json.Unmarshal([]byte(raw), &js) == nil {
				argsJSON = raw
			}
		}
		events = append(events, provider.ToolCallReady(callID, name, argsJSON))
	}
	return events
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

// toChatRequest translates the normalized conversation and tool descriptors
// into the vendor's wire shape. Tool results carry a JSON view of the data
// on success, falling back to stdout, falling back to the literal OK; on
// failure they carry stderr or the first diagnostic's message.
func toChatRequest(req provider.ModelRequest) openailib.ChatCompletionRequest {
	var messages []openailib.ChatCompletionMessage

	if req.SystemPrompt != "" {
		messages = append(messages, openailib.ChatCompletionMessage{
			Role:    openailib.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case conversation.RoleUser:
			messages = append(messages, openailib.ChatCompletionMessage{
				Role:    openailib.ChatMessageRoleUser,
				Content: m.Text,
			})
		case conversation.RoleAssistant:
			msg := openailib.ChatCompletionMessage{Role: openailib.ChatMessageRoleAssistant, Content: m.Text}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openailib.ToolCall{
					ID:   tc.CallID,
					Type: openailib.ToolTypeFunction,
					Function: openailib.FunctionCall{
						Name:      tc.ToolName,
						Arguments: string(tc.ArgsJSON),
					},
				})
			}
			messages = append(messages, msg)
		case conversation.RoleToolResult:
			messages = append(messages, openailib.ChatCompletionMessage{
				Role:       openailib.ChatMessageRoleTool,
				ToolCallID: m.CallID,
				Content:    toolResultContent(m.Result),
			})
		}
	}

	creq := openailib.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		creq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		creq.Temperature = *req.Temperature
	}
	for _, td := range req.Tools {
		creq.Tools = append(creq.Tools, toolDescriptorToVendor(td))
	}
	return creq
}

func toolResultContent(r conversation.ToolResult) string {
	if r.OK {
		if r.Data != nil {
			if b, err := json.Marshal(r.Data); err == nil {
				return string(b)
			}
		}
		if r.Stdout != "" {
			return r.Stdout
		}
		return "OK"
	}
	if r.Stderr != "" {
		return r.Stderr
	}
	if len(r.Diagnostics) > 0 {
		return r.Diagnostics[0].Message
	}
	return "error"
}

// toolDescriptorToVendor parses the tool's JSON-Schema text into the
// vendor's free-form Parameters map. A schema that fails to parse is
// substituted with {} so one bad tool does not kill the whole turn.
func toolDescriptorToVendor(td provider.ToolDescriptor) openailib.Tool {
	var params map[string]any
	if len(td.InputSchema) > 0 {
		if err := json.Unmarshal([]byte(td.InputSchema), &params); err != nil {
			params = map[string]any{}
		}
	} else {
		params = map[string]any{}
	}
	return openailib.Tool{
		Type: openailib.ToolTypeFunction,
		Function: &openailib.FunctionDefinition{
			Name:        td.Name,
			Description: td.Description,
			Parameters:  params,
		},
	}
}
