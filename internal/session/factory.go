package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/pocketomega/codex-core/internal/config"
	"github.com/pocketomega/codex-core/internal/conversation"
	"github.com/pocketomega/codex-core/internal/orchestrator"
	"github.com/pocketomega/codex-core/internal/policy"
	"github.com/pocketomega/codex-core/internal/provider"
	"github.com/pocketomega/codex-core/internal/provider/anthropic"
	"github.com/pocketomega/codex-core/internal/provider/openai"
	"github.com/pocketomega/codex-core/internal/tool/builtin"
	"github.com/pocketomega/codex-core/internal/workspace"
)

// CreateRequest is the body of POST /api/sessions.
type CreateRequest struct {
	WorkspacePath string `json:"workspacePath"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
}

// Env carries the provider API keys and endpoint read from the environment.
type Env struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	// Endpoint is the openai-compatible endpoint from the environment. The
	// config file's endpoint takes precedence; provider openai-compatible
	// requires one of the two.
	Endpoint string
}

// Factory validates a CreateRequest, builds the full dependency graph for
// one session (adapter, registry, policy engine, guard, log writer), and
// returns a ready Runtime. Resumption reuses the same path with a
// pre-populated message list.
type Factory struct {
	Env Env

	AutoApprove         bool
	MaxIterations       int
	MaxTokens           int
	ContextWindowTokens int
	MaxCostTokens       int64
	MaxDuration         time.Duration

	cfgMu sync.RWMutex
	cfg   config.Config
}

// SetConfig swaps the config a Factory hands to newly created sessions.
// Safe to call concurrently with New/Resume; sessions already running are
// unaffected (config.Watcher calls this on every reload).
func (f *Factory) SetConfig(cfg config.Config) {
	f.cfgMu.Lock()
	defer f.cfgMu.Unlock()
	f.cfg = cfg
}

func (f *Factory) config() config.Config {
	f.cfgMu.RLock()
	defer f.cfgMu.RUnlock()
	return f.cfg
}

// New validates req, constructs a fresh Runtime under a new session id, and
// writes the session_start diagnostic to the session log and a
// session_created record to the index file.
func (f *Factory) New(req CreateRequest) (*Runtime, error) {
	return f.build(NewID(), req, nil, "session_created")
}

// Resume rebuilds a Runtime with the given id, reading its existing log to
// reconstruct the message list before new lines are appended to it.
func (f *Factory) Resume(id string, req CreateRequest) (*Runtime, error) {
	messages, err := (&Reader{}).ReadMessages(LogPath(req.WorkspacePath, id))
	if err != nil {
		return nil, fmt.Errorf("session: resuming %s: %w", id, err)
	}
	return f.build(id, req, messages, "session_resumed")
}

func (f *Factory) build(id string, req CreateRequest, messages []conversation.Message, indexEvent string) (*Runtime, error) {
	if err := EnsureWorkspaceDir(req.WorkspacePath); err != nil {
		return nil, err
	}

	cfg := f.config()
	requestedProvider := req.Provider
	if requestedProvider == "" {
		requestedProvider = string(cfg.Provider)
	}
	providerName, err := config.NormalizeProvider(requestedProvider)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = f.Env.Endpoint
	}
	if providerName == config.ProviderOpenAICompatible && endpoint == "" {
		return nil, fmt.Errorf("openai-compatible provider requires an explicit endpoint")
	}
	model := config.ResolveModel(req.Model, cfg, providerName)
	if providerName == config.ProviderOpenAICompatible && model == "" {
		return nil, fmt.Errorf("openai-compatible provider requires an explicit model")
	}

	adapter, err := f.buildAdapter(providerName, endpoint)
	if err != nil {
		return nil, err
	}

	guard, err := workspace.NewGuard(req.WorkspacePath)
	if err != nil {
		return nil, fmt.Errorf("session: workspace guard: %w", err)
	}

	registry := builtin.NewDefaultRegistry()

	writer, err := OpenWriter(LogPath(req.WorkspacePath, id))
	if err != nil {
		return nil, err
	}

	info := Info{ID: id, WorkspaceRoot: req.WorkspacePath, ProviderName: string(providerName), Model: model, CreatedAt: time.Now().UTC()}
	writer.WriteSessionStart(info)
	_ = appendIndexRecord(req.WorkspacePath, info, indexEvent)

	opts := orchestrator.Options{
		RepoRoot:            req.WorkspacePath,
		Model:               model,
		MaxIterations:       f.MaxIterations,
		MaxTokens:           f.MaxTokens,
		ContextWindowTokens: f.ContextWindowTokens,
		MaxCostTokens:       f.MaxCostTokens,
		MaxDuration:         f.MaxDuration,
	}

	rt := NewRuntime(info, opts, registry, adapter, policy.NewEngine(f.AutoApprove), guard, writer, messages)
	return rt, nil
}

func (f *Factory) buildAdapter(p config.Provider, endpoint string) (provider.Adapter, error) {
	switch p {
	case config.ProviderAnthropic:
		if f.Env.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for provider anthropic")
		}
		return anthropic.NewClient(anthropic.Config{APIKey: f.Env.AnthropicAPIKey})
	case config.ProviderOpenAI:
		if f.Env.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for provider openai")
		}
		return openai.NewClient(openai.Config{APIKey: f.Env.OpenAIAPIKey, BaseURL: f.Env.OpenAIBaseURL})
	case config.ProviderOpenAICompatible:
		if f.Env.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for provider openai-compatible")
		}
		return openai.NewClient(openai.Config{APIKey: f.Env.OpenAIAPIKey, BaseURL: endpoint})
	default:
		return nil, fmt.Errorf("unknown provider %q", p)
	}
}
