// Package fourblocks provides a top-level convenience entry point for the
// emotional wellness retrieval engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/fourblocks"
//
//	engine, err := fourblocks.New(fourblocks.WithEmbeddingsFile("data/embeddings.json"))
//	engine, err := fourblocks.New(
//		fourblocks.WithEmbeddingsFile("data/embeddings.json"),
//		fourblocks.WithOpenAIKey(os.Getenv("OPENAI_API_KEY")),
//	)
//	wisdom, err := engine.FindRelevantWisdom(ctx, "Why am I so angry?", 5)
//
// Without an embedding provider the engine runs in keyword-only mode.
package fourblocks

import (
	"go.uber.org/zap"

	"github.com/BaSui01/fourblocks/embedding"
	"github.com/BaSui01/fourblocks/retrieval"
	"github.com/BaSui01/fourblocks/types"
)

// Option configures the engine created by [New].
type Option func(*builder)

type builder struct {
	cfg       retrieval.EngineConfig
	embedder  retrieval.QueryEmbedder
	openAIKey string
	logger    *zap.Logger
	path      string
	db        *types.EmbeddingsDatabase
}

// WithEmbeddingsFile loads the corpus from an embeddings JSON artifact.
func WithEmbeddingsFile(path string) Option {
	return func(b *builder) { b.path = path }
}

// WithDatabase loads a pre-parsed corpus snapshot.
func WithDatabase(db *types.EmbeddingsDatabase) Option {
	return func(b *builder) { b.db = db }
}

// WithOpenAIKey enables semantic search using the default OpenAI embedding model.
func WithOpenAIKey(apiKey string) Option {
	return func(b *builder) { b.openAIKey = apiKey }
}

// WithEmbedder sets a pre-built query embedder.
func WithEmbedder(e retrieval.QueryEmbedder) Option {
	return func(b *builder) { b.embedder = e }
}

// WithEngineConfig overrides the default engine configuration.
func WithEngineConfig(cfg retrieval.EngineConfig) Option {
	return func(b *builder) { b.cfg = cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

// New creates a [retrieval.Engine] with minimal configuration.
// At minimum, a corpus must be provided via [WithEmbeddingsFile] or
// [WithDatabase].
func New(opts ...Option) (*retrieval.Engine, error) {
	b := &builder{cfg: retrieval.DefaultEngineConfig()}
	for _, opt := range opts {
		opt(b)
	}

	if b.embedder == nil && b.openAIKey != "" {
		cfg := embedding.DefaultOpenAIConfig()
		cfg.APIKey = b.openAIKey
		b.embedder = embedding.NewOpenAIProvider(cfg, b.logger)
	}

	engine := retrieval.NewEngine(b.cfg, b.embedder, nil, b.logger)

	switch {
	case b.db != nil:
		if err := engine.LoadDatabase(b.db); err != nil {
			return nil, err
		}
	case b.path != "":
		if err := engine.LoadDatabaseFile(b.path); err != nil {
			return nil, err
		}
	default:
		return nil, types.NewError(types.ErrNotLoaded, "no embeddings source configured, use WithEmbeddingsFile or WithDatabase")
	}

	return engine, nil
}
