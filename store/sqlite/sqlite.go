/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements game.TxStore (profiles, inventory, audit log, catalog) and
  game.ConfigSource using SQLite. The PostgreSQL store in store/postgres
  follows the same schema with row locks instead of a single connection.

INTERFACES IMPLEMENTED:
  game.TxStore:      Profiles, inventory, logs, catalog, transactions
  game.ConfigSource: Versioned JSON game config

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on game_logs
  - No DELETE statements on game_logs (except Reset, dev only)
  - Reversals are new rows pointing at the original via related_id

OPTIMISTIC CONCURRENCY:
  profiles.version is bumped on every write. UpdateProfile only matches
  the row when the version is unchanged since the read, so two processes
  sharing one database file can't lose each other's updates.

KEY TABLES:
  profiles:    One row per user (xp, hp, coins, level, version)
  inventory:   One row per purchase, is_used flips 0 -> 1 once
  game_logs:   Immutable audit trail
  shop_items:  Catalog
  game_config: Config documents, one row per version

CONNECTIONS:
  The pool is capped at one connection. SQLite has a single writer anyway,
  and ":memory:" databases are private to their connection.

USAGE:
  store, err := sqlite.New("./data/game.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := game.NewEngine(store, logger)

SEE ALSO:
  - game/store.go: Interface definitions
  - game/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/gamify-engine/factory"
	"github.com/warp/gamify-engine/game"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	queries
	db *sql.DB
}

var (
	_ game.TxStore      = (*Store)(nil)
	_ game.ConfigSource = (*Store)(nil)
	_ game.AdminStore   = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		xp INTEGER NOT NULL DEFAULT 0,
		hp INTEGER NOT NULL,
		coins INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		max_hp INTEGER NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shop_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL CHECK (price >= 0),
		effect_type TEXT NOT NULL,
		effect_value INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS inventory (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		is_used BOOLEAN NOT NULL DEFAULT FALSE,
		used_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_inventory_user
		ON inventory(user_id, is_used, created_at);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS game_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		xp_delta INTEGER NOT NULL DEFAULT 0,
		hp_delta INTEGER NOT NULL DEFAULT 0,
		coin_delta INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		related_id TEXT
	);

	-- Newest-first history pages (hot path)
	CREATE INDEX IF NOT EXISTS idx_game_logs_user_created
		ON game_logs(user_id, created_at DESC, id DESC);

	-- Time Warp lookups of already-refunded penalties
	CREATE INDEX IF NOT EXISTS idx_game_logs_related
		ON game_logs(related_id) WHERE related_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS game_config (
		version INTEGER PRIMARY KEY,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (game.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx game.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{db: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// EnsureProfile inserts p unless the user already has a profile.
func (s *Store) EnsureProfile(ctx context.Context, p game.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO profiles (user_id, xp, hp, coins, level, max_hp, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
	`, p.UserID, p.XP, p.HP, p.Coins, p.Level, p.MaxHP, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}
	return nil
}

// =============================================================================
// QUERIES - Shared by the pool and by transactions
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// =============================================================================
// PROFILE STORE
// =============================================================================

func (q queries) GetProfile(ctx context.Context, userID game.UserID) (game.Profile, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT user_id, xp, hp, coins, level, max_hp, version, updated_at
		FROM profiles WHERE user_id = ?
	`, userID)

	var p game.Profile
	var updatedAt string
	if err := row.Scan(&p.UserID, &p.XP, &p.HP, &p.Coins, &p.Level, &p.MaxHP, &p.Version, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.Profile{}, game.ErrNotFound
		}
		return game.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func (q queries) UpdateProfile(ctx context.Context, p game.Profile) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE profiles
		SET xp = ?, hp = ?, coins = ?, level = ?, max_hp = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?
	`, p.XP, p.HP, p.Coins, p.Level, p.MaxHP, formatTime(p.UpdatedAt), p.UserID, p.Version)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := q.GetProfile(ctx, p.UserID); err != nil {
		return err
	}
	return game.ErrVersionConflict
}

// =============================================================================
// INVENTORY STORE
// =============================================================================

const inventoryColumns = `id, user_id, item_id, is_used, used_at, created_at`

func (q queries) InsertInventory(ctx context.Context, e game.InventoryEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO inventory (id, user_id, item_id, is_used, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.ItemID, e.IsUsed, nullTime(e.UsedAt), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert inventory: %w", err)
	}
	return nil
}

func (q queries) GetInventory(ctx context.Context, id game.InventoryID) (game.InventoryEntry, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+inventoryColumns+` FROM inventory WHERE id = ?`, id)
	if err != nil {
		return game.InventoryEntry{}, fmt.Errorf("failed to get inventory: %w", err)
	}
	entries, err := scanInventory(rows)
	if err != nil {
		return game.InventoryEntry{}, err
	}
	if len(entries) == 0 {
		return game.InventoryEntry{}, game.ErrNotFound
	}
	return entries[0], nil
}

func (q queries) MarkInventoryUsed(ctx context.Context, id game.InventoryID, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE inventory SET is_used = TRUE, used_at = ? WHERE id = ? AND is_used = FALSE
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark inventory used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark inventory used: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := q.GetInventory(ctx, id); err != nil {
		return err
	}
	return game.ErrAlreadyUsed
}

func (q queries) FirstUnusedByEffect(ctx context.Context, userID game.UserID, effect game.EffectType) (game.InventoryEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT i.id, i.user_id, i.item_id, i.is_used, i.used_at, i.created_at
		FROM inventory i JOIN shop_items s ON s.id = i.item_id
		WHERE i.user_id = ? AND i.is_used = FALSE AND s.effect_type = ?
		ORDER BY i.created_at ASC, i.id ASC
		LIMIT 1
	`, userID, effect)
	if err != nil {
		return game.InventoryEntry{}, fmt.Errorf("failed to find inventory: %w", err)
	}
	entries, err := scanInventory(rows)
	if err != nil {
		return game.InventoryEntry{}, err
	}
	if len(entries) == 0 {
		return game.InventoryEntry{}, game.ErrNotFound
	}
	return entries[0], nil
}

func (q queries) ListInventory(ctx context.Context, userID game.UserID) ([]game.InventoryEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+inventoryColumns+` FROM inventory WHERE user_id = ? ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	return scanInventory(rows)
}

func scanInventory(rows *sql.Rows) ([]game.InventoryEntry, error) {
	defer rows.Close()
	var out []game.InventoryEntry
	for rows.Next() {
		var e game.InventoryEntry
		var usedAt sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.ItemID, &e.IsUsed, &usedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		if usedAt.Valid {
			t := parseTime(usedAt.String)
			e.UsedAt = &t
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// LOG STORE
// =============================================================================

const logColumns = `id, user_id, kind, xp_delta, hp_delta, coin_delta, description, created_at, related_id`

func (q queries) AppendLog(ctx context.Context, e game.LogEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO game_logs (`+logColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Kind, e.XPDelta, e.HPDelta, e.CoinDelta, e.Description,
		formatTime(e.CreatedAt), nullString(string(e.RelatedID)))
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (q queries) QueryLogs(ctx context.Context, lq game.LogQuery) ([]game.LogEntry, int, error) {
	where := "user_id = ?" + filterClause(lq.Filter)

	var total int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM game_logs WHERE `+where, lq.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count logs: %w", err)
	}

	limit := lq.PageSize
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+logColumns+` FROM game_logs WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, lq.UserID, limit, lq.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query logs: %w", err)
	}
	entries, err := scanLogs(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// filterClause mirrors game.LogFilter.Match in SQL.
func filterClause(f game.LogFilter) string {
	switch f {
	case game.FilterEarned:
		return " AND (xp_delta > 0 OR coin_delta > 0)"
	case game.FilterSpent:
		return " AND kind = 'shop_purchase'"
	case game.FilterPenalty:
		return " AND (hp_delta < 0 OR (coin_delta < 0 AND kind <> 'shop_purchase'))"
	default:
		return ""
	}
}

func (q queries) LatestRefundable(ctx context.Context, userID game.UserID, kinds []game.ActionKind) (game.LogEntry, error) {
	if len(kinds) == 0 {
		return game.LogEntry{}, game.ErrNotFound
	}
	args := []any{userID}
	for _, k := range kinds {
		args = append(args, string(k))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+logColumns+` FROM game_logs l
		WHERE l.user_id = ? AND l.hp_delta < 0 AND l.kind IN (`+placeholders+`)
		  AND NOT EXISTS (
			SELECT 1 FROM game_logs r
			WHERE r.related_id = l.id AND r.kind = 'time_warp_refund'
		  )
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT 1
	`, args...)
	if err != nil {
		return game.LogEntry{}, fmt.Errorf("failed to find refundable penalty: %w", err)
	}
	entries, err := scanLogs(rows)
	if err != nil {
		return game.LogEntry{}, err
	}
	if len(entries) == 0 {
		return game.LogEntry{}, game.ErrNotFound
	}
	return entries[0], nil
}

func scanLogs(rows *sql.Rows) ([]game.LogEntry, error) {
	defer rows.Close()
	var out []game.LogEntry
	for rows.Next() {
		var e game.LogEntry
		var createdAt string
		var related sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.XPDelta, &e.HPDelta, &e.CoinDelta,
			&e.Description, &createdAt, &related); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		e.RelatedID = game.LogID(related.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// CATALOG STORE
// =============================================================================

const itemColumns = `id, name, description, price, effect_type, effect_value, active`

func (q queries) ListActiveItems(ctx context.Context) ([]game.ShopItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM shop_items WHERE active = TRUE ORDER BY price ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return scanItems(rows)
}

func (q queries) GetItem(ctx context.Context, id game.ItemID) (game.ShopItem, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM shop_items WHERE id = ?`, id)
	if err != nil {
		return game.ShopItem{}, fmt.Errorf("failed to get item: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return game.ShopItem{}, err
	}
	if len(items) == 0 {
		return game.ShopItem{}, game.ErrNotFound
	}
	return items[0], nil
}

// SaveItem inserts or replaces a catalog item.
func (s *Store) SaveItem(ctx context.Context, item game.ShopItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shop_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			effect_type = excluded.effect_type,
			effect_value = excluded.effect_value,
			active = excluded.active
	`, item.ID, item.Name, item.Description, item.Price, item.EffectType, item.EffectValue, item.Active)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func scanItems(rows *sql.Rows) ([]game.ShopItem, error) {
	defer rows.Close()
	var out []game.ShopItem
	for rows.Next() {
		var it game.ShopItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.EffectType, &it.EffectValue, &it.Active); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// =============================================================================
// CONFIG SOURCE
// =============================================================================

// SaveConfig stores cfg as the next config version and returns that version.
func (s *Store) SaveConfig(ctx context.Context, cfg *game.Config) (int64, error) {
	var version int64
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := sqlTx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM game_config`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read config version: %w", err)
	}
	next := *cfg
	next.Version = version
	data, err := factory.Marshal(&next)
	if err != nil {
		return 0, err
	}
	if _, err := sqlTx.ExecContext(ctx, `
		INSERT INTO game_config (version, config_json, created_at) VALUES (?, ?, ?)
	`, version, string(data), formatTime(time.Now())); err != nil {
		return 0, fmt.Errorf("failed to save config: %w", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit config: %w", err)
	}
	return version, nil
}

// CurrentConfig returns the newest stored config, or the defaults when none
// was stored yet.
func (s *Store) CurrentConfig(ctx context.Context) (*game.Config, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT config_json FROM game_config ORDER BY version DESC LIMIT 1
	`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return game.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return factory.ParseConfig([]byte(data))
}

// =============================================================================
// ADMIN / DEV
// =============================================================================

// Reset clears all data. Development only.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"game_logs", "inventory", "profiles", "shop_items", "game_config"}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// timeLayout is fixed width so TEXT ordering matches time ordering.
// RFC3339Nano trims trailing zeros and would sort "09:00:00Z" after
// "09:00:00.5Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
