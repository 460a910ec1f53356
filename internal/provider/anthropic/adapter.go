// Package anthropic adapts the Claude Messages API into the normalized
// provider event stream.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/provider"
)

// Adapter streams a single turn's normalized events from Claude's Messages
// API. Stateless; each Stream call owns its own goroutine and channel.
type Adapter struct {
	client anthropic.Client
}

func NewAdapter(client anthropic.Client) *Adapter {
	return &Adapter{client: client}
}

// Config holds the connection details for the Anthropic API.
type Config struct {
	APIKey  string
	BaseURL string
}

// NewClient builds the vendor client and wraps it in an Adapter.
func NewClient(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return NewAdapter(anthropic.NewClient(opts...)), nil
}

const defaultMaxTokens = 4096

// Stream implements provider.Adapter.
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

		messages, err := toMessageParams(req.Messages)
		if err != nil {
			emit(provider.Trace("error", err.Error()))
			emit(provider.ResponseCompleted("error", nil))
			return
		}

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(req.Model),
			Messages:  messages,
			MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
		}
		if req.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
		}
		for _, td := range req.Tools {
			tool, err := toVendorTool(td)
			if err != nil {
				if !emit(provider.Trace("parse_error", err.Error())) {
					return
				}
				continue
			}
			params.Tools = append(params.Tools, tool)
		}

		stream := a.client.Messages.NewStreaming(ctx, params)

		type pendingCall struct {
			callID, toolName string
			args             []byte
		}
		var current *pendingCall
		stopReason := ""
		var usage *provider.Usage

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				usage = &provider.Usage{PromptTokens: int(ms.Message.Usage.InputTokens)}

			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type == "tool_use" {
					tu := block.AsToolUse()
					current = &pendingCall{callID: tu.ID, toolName: tu.Name}
					if !emit(provider.ToolCallStarted(tu.ID, tu.Name)) {
						return
					}
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						if !emit(provider.TextDelta(delta.Text)) {
							return
						}
					}
				case "input_json_delta":
					if current != nil && delta.PartialJSON != "" {
						current.args = append(current.args, []byte(delta.PartialJSON)...)
						if !emit(provider.ToolCallArgsDelta(current.callID, delta.PartialJSON)) {
							return
						}
					}
				}

			case "content_block_stop":
				if current != nil {
					argsJSON := "{}"
					if len(current.args) > 0 {
						var js json.RawMessage
						if json.Unmarshal(current.args, &js) == nil {
							argsJSON = string(current.args)
						}
					}
					if !emit(provider.ToolCallReady(current.callID, current.toolName, argsJSON)) {
						return
					}
					current = nil
				}

			case "message_delta":
				md := event.AsMessageDelta()
				if md.Usage.OutputTokens > 0 {
					if usage == nil {
						usage = &provider.Usage{}
					}
					usage.CompletionTokens = int(md.Usage.OutputTokens)
				}
				if reason := string(md.Delta.StopReason); reason != "" {
					stopReason = normalizeStopReason(reason)
				}

			case "error":
				if !emit(provider.Trace("error", "anthropic stream error")) {
					return
				}
				stopReason = "error"
			}
		}

		if err := stream.Err(); err != nil {
			if !emit(provider.Trace("error", err.Error())) {
				return
			}
			stopReason = "error"
		}

		if stopReason == "" {
			stopReason = "stop"
		}
		if usage != nil {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
		emit(provider.ResponseCompleted(stopReason, usage))
	}()

	return events
}

// normalizeStopReason maps Claude's stop reasons to the shared vocabulary;
// end_turn and stop_sequence both mean the assistant is done with no more
// work, everything else passes through as non-terminal.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "end_turn"
	default:
		return reason
	}
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}

func toMessageParams(messages []conversation.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case conversation.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))

		case conversation.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if m.Text != "" {
				content = append(content, anthropic.NewTextBlock(m.Text))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				if len(tc.ArgsJSON) > 0 {
					if err := json.Unmarshal(tc.ArgsJSON, &input); err != nil {
						input = map[string]any{}
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.CallID, input, tc.ToolName))
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		case conversation.RoleToolResult:
			content := resultText(m.Result)
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.CallID, content, !m.Result.OK),
			))
		}
	}
	return result, nil
}

func resultText(r conversation.ToolResult) string {
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

// toVendorTool parses the tool's JSON-Schema text into Anthropic's schema
// shape. A schema that fails to parse is substituted with an empty object
// schema so one bad tool does not kill the whole turn.
func toVendorTool(td provider.ToolDescriptor) (anthropic.ToolUnionParam, error) {
	var schema anthropic.ToolInputSchemaParam
	if len(td.InputSchema) > 0 {
		if err := json.Unmarshal([]byte(td.InputSchema), &schema); err != nil {
			schema = anthropic.ToolInputSchemaParam{}
		}
	}
	toolParam := anthropic.ToolUnionParamOfTool(schema, td.Name)
	if toolParam.OfTool != nil {
		toolParam.OfTool.Description = anthropic.String(td.Description)
	}
	return toolParam, nil
}
