package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Fatalf("expected default provider openai, got %q", cfg.Provider)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != ProviderOpenAI {
		t.Fatalf("expected default provider openai, got %q", cfg.Provider)
	}
}

func TestLoadParsesProviderAndModel(t *testing.T) {
	path := writeConfig(t, "provider: anthropic\nmodel: claude-sonnet-4-20250514\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != ProviderAnthropic {
		t.Fatalf("expected anthropic, got %q", cfg.Provider)
	}
	if cfg.Model != "claude-sonnet-4-20250514" {
		t.Fatalf("unexpected model %q", cfg.Model)
	}
}

func TestLoadNormalizesEndpointAliases(t *testing.T) {
	cases := []string{
		"openaiCompatibleEndpoint: http://localhost:1234/v1\n",
		"openai_compatible_endpoint: http://localhost:1234/v1\n",
		"openai-compatible-endpoint: http://localhost:1234/v1\n",
	}
	for _, body := range cases {
		cfg, err := Load(writeConfig(t, body))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Endpoint != "http://localhost:1234/v1" {
			t.Fatalf("body %q: expected endpoint to normalize, got %q", body, cfg.Endpoint)
		}
	}
}

func TestResolveModelPrefersRequestThenConfigThenDefault(t *testing.T) {
	cfg := Config{Model: "configured-model"}
	if got := ResolveModel("requested-model", cfg, ProviderOpenAI); got != "requested-model" {
		t.Fatalf("expected requested model to win, got %q", got)
	}
	if got := ResolveModel("", cfg, ProviderOpenAI); got != "configured-model" {
		t.Fatalf("expected config model to win, got %q", got)
	}
	if got := ResolveModel("", Config{}, ProviderOpenAI); got != "gpt-4o-mini" {
		t.Fatalf("expected provider default, got %q", got)
	}
	if got := ResolveModel("", Config{}, ProviderOpenAICompatible); got != "" {
		t.Fatalf("expected no default for openai-compatible, got %q", got)
	}
}

func TestNormalizeProvider(t *testing.T) {
	if p, err := NormalizeProvider(""); err != nil || p != ProviderOpenAI {
		t.Fatalf("expected empty string to default to openai, got %q err=%v", p, err)
	}
	if p, err := NormalizeProvider("ANTHROPIC"); err != nil || p != ProviderAnthropic {
		t.Fatalf("expected case-insensitive match, got %q err=%v", p, err)
	}
	if _, err := NormalizeProvider("bogus"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "provider: openai\nmodel: gpt-4o-mini\n")

	changed := make(chan Config, 1)
	w := NewWatcher(path, func(c Config) { changed <- c })
	defer w.Close()

	if err := os.WriteFile(path, []byte("provider: anthropic\nmodel: claude-sonnet-4-20250514\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.Provider != ProviderAnthropic {
			t.Fatalf("expected reload to pick up anthropic, got %q", cfg.Provider)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}

func TestWatcherNoopOnEmptyPath(t *testing.T) {
	w := NewWatcher("", func(Config) { t.Fatal("onChange should never fire for an empty path") })
	w.Close()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
