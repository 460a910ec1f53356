package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Provider is one of the three supported model providers.
type Provider string

const (
	ProviderOpenAI           Provider = "openai"
	ProviderAnthropic        Provider = "anthropic"
	ProviderOpenAICompatible Provider = "openai-compatible"
)

// Config is the recognized YAML config shape. All fields optional unless
// provider is openai-compatible, in which case Model and Endpoint are
// required (enforced by the session runtime factory, not here).
type Config struct {
	Provider Provider `yaml:"provider"`
	Model    string   `yaml:"model"`

	// Endpoint accepts any of its three key spellings as aliases;
	// UnmarshalYAML below normalizes whichever was present onto this field.
	Endpoint string `yaml:"openaiCompatibleEndpoint"`
}

// defaultModels gives each provider a fallback model when neither the
// request nor the config file names one. openai-compatible has no default:
// that provider always requires an explicit model.
var defaultModels = map[Provider]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-sonnet-4-20250514",
}

// UnmarshalYAML accepts the three documented aliases for the endpoint key
// (openaiCompatibleEndpoint, openai_compatible_endpoint,
// openai-compatible-endpoint) and normalizes whichever was present.
func (c *Config) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if v, ok := raw["provider"]; ok {
		c.Provider = Provider(fmt.Sprintf("%v", v))
	}
	if v, ok := raw["model"]; ok {
		c.Model = fmt.Sprintf("%v", v)
	}
	for _, key := range []string{"openaiCompatibleEndpoint", "openai_compatible_endpoint", "openai-compatible-endpoint"} {
		if v, ok := raw[key]; ok {
			c.Endpoint = fmt.Sprintf("%v", v)
			break
		}
	}
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	return nil
}

// Load reads a YAML config file. A missing file is not an error: the
// default Config (provider=openai, everything else empty) is returned
// so callers fall through to env vars and provider defaults.
func Load(path string) (Config, error) {
	cfg := Config{Provider: ProviderOpenAI}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ResolveModel walks the derivation chain: request model, then config file
// model, then provider default. openai-compatible has no provider default;
// validation of that requirement lives in the session runtime factory,
// which is where the fatal startup error surfaces.
func ResolveModel(requested string, cfg Config, provider Provider) string {
	if requested != "" {
		return requested
	}
	if cfg.Model != "" {
		return cfg.Model
	}
	return defaultModels[provider]
}

// Watcher live-reloads a YAML config file on disk and hands the parsed
// result to onChange. Sessions already running keep the config they were
// built with; only newly created sessions observe a reload.
type Watcher struct {
	mu       sync.Mutex
	path     string
	watcher  *fsnotify.Watcher
	onChange func(Config)
	done     chan struct{}
}

// NewWatcher starts watching path for changes. If path is empty or the
// underlying fsnotify watcher can't be created, Watcher degrades to a
// no-op (config live-reload is an enhancement, not a hard requirement).
func NewWatcher(path string, onChange func(Config)) *Watcher {
	w := &Watcher{path: path, onChange: onChange, done: make(chan struct{})}
	if path == "" || onChange == nil {
		return w
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[Config] live-reload disabled: %v", err)
		return w
	}
	if err := fw.Add(path); err != nil {
		log.Printf("[Config] live-reload disabled for %s: %v", path, err)
		fw.Close()
		return w
	}
	w.watcher = fw
	go w.loop()
	return w
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				log.Printf("[Config] reload of %s failed: %v", w.path, err)
				continue
			}
			log.Printf("[Config] reloaded %s (provider=%s model=%s)", w.path, cfg.Provider, cfg.Model)
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Config] watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine. Safe to call on a no-op Watcher.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	if w.watcher != nil {
		w.watcher.Close()
	}
}

// NormalizeProvider lowercases and validates a provider string from CLI
// flags or config, defaulting to openai when empty.
func NormalizeProvider(s string) (Provider, error) {
	if s == "" {
		return ProviderOpenAI, nil
	}
	p := Provider(strings.ToLower(s))
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderOpenAICompatible:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}
