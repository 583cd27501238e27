/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces, for deployments where several engine processes share one
database.

TRANSACTIONS:
  WithTx opens a pgx transaction. Profile and inventory reads inside it use
  SELECT ... FOR UPDATE, so two processes mutating the same user serialize
  on the row lock. UpdateProfile still compares profiles.version, which
  catches writers that read outside a transaction.

SCHEMA:
  Same tables as the SQLite store. Migrate creates them if missing and is
  called by New.

SEE ALSO:
  - store/sqlite/sqlite.go: Single-node implementation
  - game/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/gamify-engine/factory"
	"github.com/warp/gamify-engine/game"
)

// Store wraps DB access.
type Store struct {
	queries
	Pool *pgxpool.Pool
}

var (
	_ game.TxStore      = (*Store)(nil)
	_ game.ConfigSource = (*Store)(nil)
	_ game.AdminStore   = (*Store)(nil)
)

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{queries: queries{db: pool}, Pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id    TEXT PRIMARY KEY,
	xp         BIGINT NOT NULL DEFAULT 0,
	hp         BIGINT NOT NULL,
	coins      BIGINT NOT NULL DEFAULT 0,
	level      BIGINT NOT NULL DEFAULT 1,
	max_hp     BIGINT NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS shop_items (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	price        BIGINT NOT NULL CHECK (price >= 0),
	effect_type  TEXT NOT NULL,
	effect_value BIGINT NOT NULL DEFAULT 0,
	active       BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS inventory (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	is_used    BOOLEAN NOT NULL DEFAULT FALSE,
	used_at    TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inventory_user ON inventory(user_id, is_used, created_at);

CREATE TABLE IF NOT EXISTS game_logs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	xp_delta    BIGINT NOT NULL DEFAULT 0,
	hp_delta    BIGINT NOT NULL DEFAULT 0,
	coin_delta  BIGINT NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	related_id  TEXT
);
CREATE INDEX IF NOT EXISTS idx_game_logs_user_created ON game_logs(user_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_game_logs_related ON game_logs(related_id) WHERE related_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS game_config (
	version     BIGINT PRIMARY KEY,
	config_json JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

// WithTx runs fn inside a transaction. Rows read through the Tx are locked
// until commit.
func (s *Store) WithTx(ctx context.Context, fn func(tx game.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(queries{db: tx, forUpdate: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) EnsureProfile(ctx context.Context, p game.Profile) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO profiles (user_id, xp, hp, coins, level, max_hp, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, now())
		ON CONFLICT (user_id) DO NOTHING
	`, string(p.UserID), p.XP, p.HP, p.Coins, p.Level, p.MaxHP)
	return err
}

// SaveItem inserts or replaces a catalog item.
func (s *Store) SaveItem(ctx context.Context, item game.ShopItem) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO shop_items (id, name, description, price, effect_type, effect_value, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			effect_type = EXCLUDED.effect_type,
			effect_value = EXCLUDED.effect_value,
			active = EXCLUDED.active
	`, string(item.ID), item.Name, item.Description, item.Price, string(item.EffectType), item.EffectValue, item.Active)
	return err
}

// SaveConfig stores cfg as the next config version and returns that version.
func (s *Store) SaveConfig(ctx context.Context, cfg *game.Config) (int64, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	// Serializes concurrent SaveConfig calls on the version sequence.
	if _, err := tx.Exec(ctx, `LOCK TABLE game_config IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return 0, err
	}
	var version int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM game_config`).Scan(&version); err != nil {
		return 0, err
	}
	next := *cfg
	next.Version = version
	data, err := factory.Marshal(&next)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO game_config (version, config_json) VALUES ($1, $2)`, version, data); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) CurrentConfig(ctx context.Context) (*game.Config, error) {
	var data []byte
	err := s.Pool.QueryRow(ctx, `SELECT config_json FROM game_config ORDER BY version DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	return factory.ParseConfig(data)
}

// =============================================================================
// QUERIES
// =============================================================================

type pgxdb interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db        pgxdb
	forUpdate bool
}

func (q queries) lock() string {
	if q.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return game.ErrNotFound
	}
	return err
}

func (q queries) GetProfile(ctx context.Context, userID game.UserID) (game.Profile, error) {
	var p game.Profile
	var id string
	err := q.db.QueryRow(ctx, `
		SELECT user_id, xp, hp, coins, level, max_hp, version, updated_at
		FROM profiles WHERE user_id = $1`+q.lock(), string(userID),
	).Scan(&id, &p.XP, &p.HP, &p.Coins, &p.Level, &p.MaxHP, &p.Version, &p.UpdatedAt)
	if err != nil {
		return game.Profile{}, mapNotFound(err)
	}
	p.UserID = game.UserID(id)
	return p, nil
}

func (q queries) UpdateProfile(ctx context.Context, p game.Profile) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE profiles
		SET xp = $1, hp = $2, coins = $3, level = $4, max_hp = $5, version = version + 1, updated_at = $6
		WHERE user_id = $7 AND version = $8
	`, p.XP, p.HP, p.Coins, p.Level, p.MaxHP, p.UpdatedAt, string(p.UserID), p.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE user_id = $1)`, string(p.UserID)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return game.ErrNotFound
	}
	return game.ErrVersionConflict
}

func (q queries) InsertInventory(ctx context.Context, e game.InventoryEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO inventory (id, user_id, item_id, is_used, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(e.ID), string(e.UserID), string(e.ItemID), e.IsUsed, e.UsedAt, e.CreatedAt)
	return err
}

func (q queries) GetInventory(ctx context.Context, id game.InventoryID) (game.InventoryEntry, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, user_id, item_id, is_used, used_at, created_at
		FROM inventory WHERE id = $1`+q.lock(), string(id))
	e, err := scanInventory(row)
	if err != nil {
		return game.InventoryEntry{}, mapNotFound(err)
	}
	return e, nil
}

func (q queries) MarkInventoryUsed(ctx context.Context, id game.InventoryID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE inventory SET is_used = TRUE, used_at = $1 WHERE id = $2 AND is_used = FALSE
	`, at, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := q.GetInventory(ctx, id); err != nil {
		return err
	}
	return game.ErrAlreadyUsed
}

func (q queries) FirstUnusedByEffect(ctx context.Context, userID game.UserID, effect game.EffectType) (game.InventoryEntry, error) {
	row := q.db.QueryRow(ctx, `
		SELECT i.id, i.user_id, i.item_id, i.is_used, i.used_at, i.created_at
		FROM inventory i JOIN shop_items s ON s.id = i.item_id
		WHERE i.user_id = $1 AND i.is_used = FALSE AND s.effect_type = $2
		ORDER BY i.created_at ASC, i.id ASC
		LIMIT 1`+q.lockOf("i"), string(userID), string(effect))
	e, err := scanInventory(row)
	if err != nil {
		return game.InventoryEntry{}, mapNotFound(err)
	}
	return e, nil
}

func (q queries) lockOf(table string) string {
	if q.forUpdate {
		return " FOR UPDATE OF " + table
	}
	return ""
}

func (q queries) ListInventory(ctx context.Context, userID game.UserID) ([]game.InventoryEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, item_id, is_used, used_at, created_at
		FROM inventory WHERE user_id = $1 ORDER BY created_at ASC, id ASC
	`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.InventoryEntry
	for rows.Next() {
		e, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanInventory(row pgx.Row) (game.InventoryEntry, error) {
	var e game.InventoryEntry
	var id, userID, itemID string
	if err := row.Scan(&id, &userID, &itemID, &e.IsUsed, &e.UsedAt, &e.CreatedAt); err != nil {
		return game.InventoryEntry{}, err
	}
	e.ID = game.InventoryID(id)
	e.UserID = game.UserID(userID)
	e.ItemID = game.ItemID(itemID)
	return e, nil
}

const logColumns = `id, user_id, kind, xp_delta, hp_delta, coin_delta, description, created_at, related_id`

func (q queries) AppendLog(ctx context.Context, e game.LogEntry) error {
	var related *string
	if e.RelatedID != "" {
		r := string(e.RelatedID)
		related = &r
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO game_logs (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, string(e.ID), string(e.UserID), string(e.Kind), e.XPDelta, e.HPDelta, e.CoinDelta,
		e.Description, e.CreatedAt, related)
	return err
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

func (q queries) QueryLogs(ctx context.Context, lq game.LogQuery) ([]game.LogEntry, int, error) {
	where := "user_id = $1" + filterClause(lq.Filter)

	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(1) FROM game_logs WHERE `+where, string(lq.UserID)).Scan(&total); err != nil {
		return nil, 0, err
	}

	var limit *int
	if lq.PageSize > 0 {
		limit = &lq.PageSize
	}
	rows, err := q.db.Query(ctx, `
		SELECT `+logColumns+` FROM game_logs WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, string(lq.UserID), limit, lq.Offset())
	if err != nil {
		return nil, 0, err
	}
	entries, err := collectLogs(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (q queries) LatestRefundable(ctx context.Context, userID game.UserID, kinds []game.ActionKind) (game.LogEntry, error) {
	if len(kinds) == 0 {
		return game.LogEntry{}, game.ErrNotFound
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	rows, err := q.db.Query(ctx, `
		SELECT `+logColumns+` FROM game_logs l
		WHERE l.user_id = $1 AND l.hp_delta < 0 AND l.kind = ANY($2)
		  AND NOT EXISTS (
			SELECT 1 FROM game_logs r
			WHERE r.related_id = l.id AND r.kind = 'time_warp_refund'
		  )
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT 1
	`, string(userID), names)
	if err != nil {
		return game.LogEntry{}, err
	}
	entries, err := collectLogs(rows)
	if err != nil {
		return game.LogEntry{}, err
	}
	if len(entries) == 0 {
		return game.LogEntry{}, game.ErrNotFound
	}
	return entries[0], nil
}

func collectLogs(rows pgx.Rows) ([]game.LogEntry, error) {
	defer rows.Close()
	var out []game.LogEntry
	for rows.Next() {
		var e game.LogEntry
		var id, userID, kind string
		var related *string
		if err := rows.Scan(&id, &userID, &kind, &e.XPDelta, &e.HPDelta, &e.CoinDelta,
			&e.Description, &e.CreatedAt, &related); err != nil {
			return nil, err
		}
		e.ID = game.LogID(id)
		e.UserID = game.UserID(userID)
		e.Kind = game.ActionKind(kind)
		if related != nil {
			e.RelatedID = game.LogID(*related)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q queries) ListActiveItems(ctx context.Context) ([]game.ShopItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, description, price, effect_type, effect_value, active
		FROM shop_items WHERE active ORDER BY price ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.ShopItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (q queries) GetItem(ctx context.Context, id game.ItemID) (game.ShopItem, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, name, description, price, effect_type, effect_value, active
		FROM shop_items WHERE id = $1
	`, string(id))
	it, err := scanItem(row)
	if err != nil {
		return game.ShopItem{}, mapNotFound(err)
	}
	return it, nil
}

func scanItem(row pgx.Row) (game.ShopItem, error) {
	var it game.ShopItem
	var id, effect string
	if err := row.Scan(&id, &it.Name, &it.Description, &it.Price, &effect, &it.EffectValue, &it.Active); err != nil {
		return game.ShopItem{}, err
	}
	it.ID = game.ItemID(id)
	it.EffectType = game.EffectType(effect)
	return it, nil
}

// Reset clears all data. Development only.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `TRUNCATE game_logs, inventory, profiles, shop_items, game_config`)
	return err
}
