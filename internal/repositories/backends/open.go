// Package backends selects and prepares the configured order store.
package backends

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Abdullah97825/Matjary-sub000/internal/platform/config"
	pfirestore "github.com/Abdullah97825/Matjary-sub000/internal/platform/firestore"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/sqldb"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
	firestoreRepo "github.com/Abdullah97825/Matjary-sub000/internal/repositories/firestore"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories/memory"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories/sqlstore"
)

// Open connects the backend named by cfg.Storage.Backend. MySQL schemas are migrated on open.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		logger.Warn("using in-memory order store; data is lost on restart")
		return memory.New(), nil
	case config.StorageBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, err
		}
		return firestoreRepo.New(provider)
	case config.StorageBackendMySQL:
		db, err := sqldb.Open(ctx, cfg.MySQL, logger)
		if err != nil {
			return nil, err
		}
		store, err := sqlstore.New(db)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("migrate order schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}
