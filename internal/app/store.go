package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"digimenu/internal/config"
	"digimenu/internal/infrastructure/mysql"
	"digimenu/internal/infrastructure/postgres"
	"digimenu/internal/infrastructure/sqlite"
	"digimenu/internal/state"
)

// NewStateStore opens the persistence backend named by cfg.State.Driver. The
// returned func releases it.
func NewStateStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (state.Store, func(), error) {
	switch cfg.State.Driver {
	case config.StateDriverFile:
		st, err := state.NewFileStore(cfg.State.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("state store ready", zap.String("driver", "file"), zap.String("path", cfg.State.Path))
		return st, func() {}, nil

	case config.StateDriverSQLite:
		db, err := sqlite.NewConnection(cfg.State.Path)
		if err != nil {
			return nil, nil, err
		}
		st := state.NewSQLStore(db, state.SQLiteDialect)
		if err := st.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("state store ready", zap.String("driver", "sqlite"), zap.String("path", cfg.State.Path))
		return st, func() { db.Close() }, nil

	case config.StateDriverMySQL:
		db, err := mysql.NewConnection(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		st := state.NewSQLStore(db, state.MySQLDialect)
		if err := st.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("state store ready", zap.String("driver", "mysql"), zap.String("host", cfg.Database.Host))
		return st, func() { db.Close() }, nil

	case config.StateDriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		st := state.NewPgxStore(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("state store ready", zap.String("driver", "postgres"))
		return st, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown state driver %q", cfg.State.Driver)
	}
}
