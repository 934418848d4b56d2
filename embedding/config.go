package embedding

import "time"

// OpenAIConfig configures the OpenAI-compatible embedding provider.
type OpenAIConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`           // text-embedding-3-small
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"` // 1536 for 3-small
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Requests per second allowed against the upstream API; 0 disables limiting.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// DefaultOpenAIConfig returns default OpenAI embedding config.
// The corpus artifacts are produced with text-embedding-3-small (1536 dims),
// so live queries default to the same model.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:    "https://api.openai.com",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
		RateLimit:  10,
	}
}
