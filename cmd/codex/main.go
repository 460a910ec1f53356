// Command codex is the CLI surface: an interactive terminal loop (codex
// run), a server runtime (codex serve), and log-based resumption (codex
// resume), all driving the same orchestrator core.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pocketomega/codex-core/internal/config"
	"github.com/pocketomega/codex-core/internal/orchestrator"
	"github.com/pocketomega/codex-core/internal/provider"
	"github.com/pocketomega/codex-core/internal/provider/anthropic"
	"github.com/pocketomega/codex-core/internal/provider/openai"
	"github.com/pocketomega/codex-core/internal/session"
	"github.com/pocketomega/codex-core/internal/terminal"
	"github.com/pocketomega/codex-core/internal/web"
)

var (
	flagConfig        string
	flagProvider      string
	flagModel         string
	flagWorkspace     string
	flagAutoApprove   bool
	flagAddr          string
	flagContextWindow int
	flagMaxCostTokens int64
	flagMaxDuration   time.Duration
)

func main() {
	config.LoadEnv()

	root := &cobra.Command{
		Use:   "codex",
		Short: "a local coding assistant that mediates between a model and your repository",
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flagProvider, "provider", "", "openai | anthropic | openai-compatible")
	root.PersistentFlags().StringVar(&flagModel, "model", "", "model name")
	root.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "repository root (default: current directory)")
	root.PersistentFlags().BoolVar(&flagAutoApprove, "auto-approve", false, "skip all approval prompts")
	root.PersistentFlags().IntVar(&flagContextWindow, "context-window-tokens", 0, "model context window size that triggers compaction (0 disables)")
	root.PersistentFlags().Int64Var(&flagMaxCostTokens, "max-cost-tokens", 0, "token budget per run (0 disables)")
	root.PersistentFlags().DurationVar(&flagMaxDuration, "max-run-duration", 0, "wall-clock budget per run, e.g. 5m (0 disables)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newResumeCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("codex: %v", err)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start an interactive terminal session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, requestedProvider, err := resolveEnv()
			if err != nil {
				return err
			}
			adapter, providerName, model, err := buildAdapter(env, requestedProvider, flagModel)
			if err != nil {
				return err
			}
			repoRoot, err := resolveWorkspace()
			if err != nil {
				return err
			}

			opts := agentOptions(repoRoot, model)
			sess, id, err := terminal.New(adapter, opts, string(providerName), os.Stdin, os.Stdout, flagAutoApprove)
			if err != nil {
				return err
			}
			fmt.Printf("session %s — provider=%s model=%s workspace=%s\n", id, providerName, model, repoRoot)
			os.Exit(sess.Run(cmd.Context()))
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP server runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, _, err := resolveEnv()
			if err != nil {
				return err
			}

			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if flagProvider != "" {
				providerName, err := config.NormalizeProvider(flagProvider)
				if err != nil {
					return err
				}
				cfg.Provider = providerName
			}

			store := session.NewStore()
			factory := &session.Factory{
				Env:                 env,
				AutoApprove:         flagAutoApprove,
				MaxIterations:       20,
				MaxTokens:           4096,
				ContextWindowTokens: flagContextWindow,
				MaxCostTokens:       flagMaxCostTokens,
				MaxDuration:         flagMaxDuration,
			}
			factory.SetConfig(cfg)
			srv := web.NewServer(store, factory)

			// Config file edits take effect for sessions created after the
			// reload; sessions already running keep the config they were
			// built with.
			watcher := config.NewWatcher(flagConfig, factory.SetConfig)
			defer watcher.Close()

			addr := flagAddr
			if addr == "" {
				addr = ":8080"
			}
			httpServer := web.NewHTTPServer(addr, srv)
			log.Printf("[Server] listening on %s", addr)
			return httpServer.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", ":8080", "listen address")
	return cmd
}

func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <sessionId>",
		Short: "resume an interactive terminal session from its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			env, requestedProvider, err := resolveEnv()
			if err != nil {
				return err
			}
			adapter, providerName, model, err := buildAdapter(env, requestedProvider, flagModel)
			if err != nil {
				return err
			}
			repoRoot, err := resolveWorkspace()
			if err != nil {
				return err
			}

			messages, err := (&session.Reader{}).ReadMessages(session.LogPath(repoRoot, id))
			if err != nil {
				return err
			}

			opts := agentOptions(repoRoot, model)
			sess, err := terminal.Resume(adapter, opts, string(providerName), id, os.Stdin, os.Stdout, flagAutoApprove)
			if err != nil {
				return err
			}
			sess.Seed(messages)
			fmt.Printf("resumed session %s (%d prior messages) — provider=%s model=%s\n", id, len(messages), providerName, model)
			os.Exit(sess.Run(cmd.Context()))
			return nil
		},
	}
	return cmd
}

// agentOptions assembles the per-run options every entrypoint shares,
// including the context/cost guard knobs from the persistent flags.
func agentOptions(repoRoot, model string) orchestrator.Options {
	return orchestrator.Options{
		RepoRoot:            repoRoot,
		Model:               model,
		ContextWindowTokens: flagContextWindow,
		MaxCostTokens:       flagMaxCostTokens,
		MaxDuration:         flagMaxDuration,
	}
}

func resolveWorkspace() (string, error) {
	if flagWorkspace != "" {
		return flagWorkspace, nil
	}
	return os.Getwd()
}

// resolveEnv reads the provider API keys from the environment. The provider
// flag itself is passed through unvalidated (empty string included) so
// buildAdapter can fall back to the config file's provider before
// normalizing — normalizing here would mask that fallback, since
// NormalizeProvider("") already resolves to openai.
func resolveEnv() (session.Env, string, error) {
	env := session.Env{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		Endpoint:        os.Getenv("OPENAI_BASE_URL"),
	}
	return env, flagProvider, nil
}

func buildAdapter(env session.Env, requestedProvider, requestedModel string) (provider.Adapter, config.Provider, string, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, "", "", err
	}
	if requestedProvider == "" {
		requestedProvider = string(cfg.Provider)
	}
	providerName, err := config.NormalizeProvider(requestedProvider)
	if err != nil {
		return nil, "", "", err
	}
	model := config.ResolveModel(requestedModel, cfg, providerName)

	switch providerName {
	case config.ProviderAnthropic:
		if env.AnthropicAPIKey == "" {
			return nil, "", "", fmt.Errorf("ANTHROPIC_API_KEY is required for provider anthropic")
		}
		a, err := anthropic.NewClient(anthropic.Config{APIKey: env.AnthropicAPIKey})
		return a, providerName, model, err
	case config.ProviderOpenAI:
		if env.OpenAIAPIKey == "" {
			return nil, "", "", fmt.Errorf("OPENAI_API_KEY is required for provider openai")
		}
		a, err := openai.NewClient(openai.Config{APIKey: env.OpenAIAPIKey, BaseURL: env.OpenAIBaseURL})
		return a, providerName, model, err
	case config.ProviderOpenAICompatible:
		if model == "" {
			return nil, "", "", fmt.Errorf("openai-compatible provider requires an explicit --model")
		}
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = env.OpenAIBaseURL
		}
		if endpoint == "" {
			return nil, "", "", fmt.Errorf("openai-compatible provider requires an explicit endpoint (config openaiCompatibleEndpoint or OPENAI_BASE_URL)")
		}
		if env.OpenAIAPIKey == "" {
			return nil, "", "", fmt.Errorf("OPENAI_API_KEY is required for provider openai-compatible")
		}
		a, err := openai.NewClient(openai.Config{APIKey: env.OpenAIAPIKey, BaseURL: endpoint})
		return a, providerName, model, err
	default:
		return nil, "", "", fmt.Errorf("unknown provider %q", providerName)
	}
}
