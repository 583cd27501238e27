/*
Package store selects and opens the persistence backend named by the
process config.

DRIVERS:
  memory    game/store.Memory, lost on exit
  sqlite    store/sqlite, single node (SQLITE_PATH)
  postgres  store/postgres, shared by several engine processes (DATABASE_URL)

SEE ALSO:
  - config/config.go: DB_DRIVER and friends
  - cmd/server/main.go, cmd/gamectl: Callers
*/
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/warp/gamify-engine/config"
	"github.com/warp/gamify-engine/game"
	memstore "github.com/warp/gamify-engine/game/store"
	"github.com/warp/gamify-engine/store/postgres"
	"github.com/warp/gamify-engine/store/sqlite"
)

// Backend is everything the server and the CLI need from a store.
type Backend interface {
	game.TxStore
	game.AdminStore
}

// Open opens the backend named by cfg.DBDriver. The returned func releases
// it.
func Open(ctx context.Context, cfg config.ServerConfig) (Backend, func(), error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		return memstore.NewMemory(), func() {}, nil
	case config.DriverPostgres:
		st, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := st.Ping(ctx); err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return st, st.Close, nil
	case config.DriverSQLite:
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return st, func() { st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}
