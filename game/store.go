/*
store.go - Persistence contracts consumed by the engine

PURPOSE:
  Defines the interface between the engine and the data store. The engine
  only ever talks to these interfaces; SQLite, PostgreSQL and in-memory
  implementations live in their own packages.

KEY INTERFACES:
  ProfileStore:   Per-user balances with versioned compare-and-swap updates
  InventoryStore: Purchased items and their one-way used flag
  LogStore:       Append-only audit trail
  CatalogStore:   Shop items
  ConfigSource:   Current rule config snapshot
  TxStore:        Runs a function against all of the above atomically

APPEND-ONLY CONTRACT:
  LogStore has Append and read methods only. No Update, no Delete.

ATOMICITY:
  Every mutation runs inside TxStore.WithTx. If fn returns an error the
  store discards every write made through the Tx, so a failed call leaves
  the profile, the inventory and the log exactly as they were.

OPTIMISTIC CONCURRENCY:
  UpdateProfile succeeds only if the stored Version still equals
  p.Version. On success the stored Version becomes p.Version+1. On mismatch
  it returns ErrVersionConflict and the engine retries the whole Tx.

SEE ALSO:
  - game/store/memory.go: In-memory implementation for tests and dev
  - store/sqlite/sqlite.go: SQLite implementation
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package game

import (
	"context"
	"time"
)

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

type ProfileStore interface {
	// GetProfile returns ErrNotFound when the user has no profile.
	GetProfile(ctx context.Context, userID UserID) (Profile, error)

	// UpdateProfile writes p if the stored version equals p.Version.
	UpdateProfile(ctx context.Context, p Profile) error
}

type InventoryStore interface {
	InsertInventory(ctx context.Context, e InventoryEntry) error
	// GetInventory returns ErrNotFound for unknown ids.
	GetInventory(ctx context.Context, id InventoryID) (InventoryEntry, error)
	// MarkInventoryUsed flips IsUsed; ErrAlreadyUsed if it was already set.
	MarkInventoryUsed(ctx context.Context, id InventoryID, at time.Time) error
	// FirstUnusedByEffect returns the oldest unused entry whose item has the
	// given effect, or ErrNotFound.
	FirstUnusedByEffect(ctx context.Context, userID UserID, effect EffectType) (InventoryEntry, error)
	ListInventory(ctx context.Context, userID UserID) ([]InventoryEntry, error)
}

type LogStore interface {
	AppendLog(ctx context.Context, e LogEntry) error
	// QueryLogs returns one page, newest first, and the total match count.
	QueryLogs(ctx context.Context, q LogQuery) ([]LogEntry, int, error)
	// LatestRefundable returns the newest entry for userID with a negative HP
	// delta whose kind is in kinds and which no refund entry references yet.
	// ErrNotFound when there is none.
	LatestRefundable(ctx context.Context, userID UserID, kinds []ActionKind) (LogEntry, error)
}

type CatalogStore interface {
	ListActiveItems(ctx context.Context) ([]ShopItem, error)
	GetItem(ctx context.Context, id ItemID) (ShopItem, error)
}

// ConfigSource hands out the current config snapshot.
type ConfigSource interface {
	CurrentConfig(ctx context.Context) (*Config, error)
}

// Tx is the view of the store available inside a transaction.
type Tx interface {
	ProfileStore
	InventoryStore
	LogStore
	CatalogStore
}

// TxStore is everything the engine needs from a backing store.
type TxStore interface {
	Tx

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through tx is rolled back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// EnsureProfile creates a starting profile if userID has none.
	EnsureProfile(ctx context.Context, p Profile) error
}

// AdminStore manages the catalog and config versions.
type AdminStore interface {
	ConfigSource

	// SaveItem inserts or replaces a catalog item.
	SaveItem(ctx context.Context, item ShopItem) error

	// SaveConfig stores cfg as the next version and returns that version.
	SaveConfig(ctx context.Context, cfg *Config) (int64, error)
}

// =============================================================================
// LOG QUERY
// =============================================================================

type LogFilter string

const (
	FilterAll     LogFilter = "all"
	FilterEarned  LogFilter = "earned"
	FilterSpent   LogFilter = "spent"
	FilterPenalty LogFilter = "penalty"
)

// ParseLogFilter maps an external string to a filter, defaulting to all.
func ParseLogFilter(s string) LogFilter {
	switch LogFilter(s) {
	case FilterEarned, FilterSpent, FilterPenalty:
		return LogFilter(s)
	default:
		return FilterAll
	}
}

// Match reports whether e belongs to the filter.
func (f LogFilter) Match(e LogEntry) bool {
	switch f {
	case FilterEarned:
		return e.XPDelta > 0 || e.CoinDelta > 0
	case FilterSpent:
		return e.Kind == KindShopPurchase
	case FilterPenalty:
		return e.IsPenalty()
	default:
		return true
	}
}

// LogQuery selects one page of a user's log. Page is 1-based.
type LogQuery struct {
	UserID   UserID
	Filter   LogFilter
	Page     int
	PageSize int
}

// Offset is the number of rows to skip for the page.
func (q LogQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}
