package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/tbh-ai/secure-agent-memory/config"
	"github.com/tbh-ai/secure-agent-memory/embedding"
	"github.com/tbh-ai/secure-agent-memory/model"
)

// New constructs the backend selected by cfg.Storage.Backend. There is no
// global registry; callers hold the returned Backend and must call
// Initialize before first use.
func New(cfg *config.Config, log zerolog.Logger) (Backend, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		path := cfg.Storage.Path
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("%w: resolve home dir: %v", model.ErrConfiguration, err)
			}
			path = filepath.Join(home, ".secure-memory", "memory.db")
		}
		return NewSQLiteBackend(path, log)
	case "volatile":
		return NewVolatileBackend(cfg.Storage.MaxEntriesPerUser), nil
	case "vector":
		emb, err := embedding.New(cfg.Storage.EmbedProvider, cfg.Storage.EmbedModel)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
		}
		return NewVectorBackend(cfg.Storage.Path, emb, log)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", model.ErrConfiguration, cfg.Storage.Backend)
	}
}
