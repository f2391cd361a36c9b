package embedder

import (
	"fmt"

	"github.com/bowerhall/graphmem/internal/graph"
)

type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}

// New builds an embedding provider. An empty provider returns nil without
// error; callers treat a nil embedder as "vector features disabled".
func New(cfg Config) (graph.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return newOllama(baseURL, model), nil
	case "openai":
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		return newOpenAI(cfg.APIKey, cfg.BaseURL, model), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedder provider: %s", cfg.Provider)
	}
}
