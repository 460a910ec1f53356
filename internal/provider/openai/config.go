package openai

import (
	"fmt"
	"net/http"
	"time"

	openailib "github.com/sashabaranov/go-openai"
)

// Config holds the connection details for an OpenAI-compatible endpoint.
type Config struct {
	APIKey      string
	BaseURL     string // default: https://api.openai.com/v1
	HTTPTimeout int    // seconds, default 300
}

func (c Config) httpTimeout() time.Duration {
	if c.HTTPTimeout <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.HTTPTimeout) * time.Second
}

// NewClient builds the vendor client and wraps it in an Adapter.
func NewClient(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	clientConfig := openailib.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.httpTimeout()}
	return NewAdapter(openailib.NewClientWithConfig(clientConfig)), nil
}
