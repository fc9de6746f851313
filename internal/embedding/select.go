package embedding

import "strings"

// Config names which Provider to build. It mirrors the donor's
// environment-driven selection (EMBEDDING_PROVIDER/EMBEDDING_MODEL/
// OPENAI_API_KEY) but is threaded explicitly rather than read from
// globals, so a process can build more than one.
type Config struct {
	Provider string // "openai" | "local" | "" (zero-vector fallback)
	Dim      int
	Endpoint string
	APIKey   string
	Model    string
}

// Select builds the Provider named by cfg.Provider, falling back to the
// zero-vector stub when no real provider is configured ("openai"/"http"
// without an APIKey also falls back). Each call builds a new Provider;
// nothing is cached.
func Select(cfg Config) Provider {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "http":
		if cfg.APIKey != "" {
			endpoint := cfg.Endpoint
			if endpoint == "" {
				endpoint = "https://api.openai.com/v1/embeddings"
			}
			model := cfg.Model
			if model == "" {
				model = "text-embedding-3-small"
			}
			return &HTTPProvider{Endpoint: endpoint, APIKey: cfg.APIKey, Model: model}
		}
	case "local":
		return &LocalProvider{Dim: cfg.Dim}
	}
	return &ZeroProvider{Dim: cfg.Dim}
}
