/*
Package game provides the gamification rules and economy engine.

PURPOSE:
  Turns real-world work events (finishing a task, attending on time, missing
  a duty, buying or using a shop item, an admin override) into changes to a
  user's experience points (XP), health points (HP) and coins, decides
  level-ups, and writes an append-only audit trail.

KEY CONCEPTS IN THIS FILE (types.go):
  - Profile: The per-user balances (XP, HP, coins, level)
  - ShopItem / InventoryEntry: Catalog entity and one purchased unit
  - LogEntry: Immutable audit record of every applied change
  - Result: The delta produced by the rule evaluator for one action

DESIGN PRINCIPLES:
  1. Purity: Rule evaluation and leveling never touch the store
  2. Injection: Config is passed into every call, never read from globals
  3. Atomicity: Read-apply-write runs inside one store transaction
  4. Auditability: Every applied delta leaves a LogEntry behind

USAGE:
  engine := game.NewEngine(store, logger)
  out, err := engine.Process(ctx, "user-1", game.TaskComplete{...}, cfg)

SEE ALSO:
  - action.go: The closed set of actions the engine understands
  - evaluate.go: Rule evaluator
  - engine.go: Profile mutation orchestrator
*/
package game

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ItemID string
type InventoryID string
type LogID string

// =============================================================================
// PROFILE - Per-user balances
// =============================================================================

// Profile is a user's current game state. The store owns it; the engine reads
// a fresh snapshot inside every transaction and never caches it.
type Profile struct {
	UserID    UserID
	XP        int64
	HP        int64
	Coins     int64
	Level     int64
	MaxHP     int64
	Version   int64
	UpdatedAt time.Time
}

// NewProfile returns a starting profile: full health, level 1, no XP or coins.
func NewProfile(userID UserID, cfg *Config) Profile {
	maxHP := cfg.Leveling.MaxHP
	if maxHP <= 0 {
		maxHP = DefaultMaxHP
	}
	return Profile{
		UserID: userID,
		HP:     maxHP,
		Level:  1,
		MaxHP:  maxHP,
	}
}

// =============================================================================
// RESULT - Delta produced by the evaluator
// =============================================================================

// Result is the outcome of evaluating one action. It is never persisted; the
// orchestrator consumes it once and records what was actually applied.
type Result struct {
	XPDelta   int64
	HPDelta   int64
	CoinDelta int64
	Message   string
	Detail    string
}

// IsNoop reports whether applying r would change nothing and log nothing.
func (r Result) IsNoop() bool {
	return r.XPDelta == 0 && r.HPDelta == 0 && r.CoinDelta == 0 && r.Message == ""
}

// =============================================================================
// SHOP & INVENTORY
// =============================================================================

type EffectType string

const (
	EffectHealHP     EffectType = "heal_hp"
	EffectSkipDuty   EffectType = "skip_duty"
	EffectRemoveLate EffectType = "remove_late"
)

// ShopItem is a catalog entry. Items are edited by the catalog admin flow and
// are treated as immutable for the duration of a transaction.
type ShopItem struct {
	ID          ItemID
	Name        string
	Description string
	Price       int64
	EffectType  EffectType
	EffectValue int64
	Active      bool
}

// InventoryEntry is one purchased unit of a ShopItem.
// IsUsed moves from false to true exactly once.
type InventoryEntry struct {
	ID        InventoryID
	UserID    UserID
	ItemID    ItemID
	IsUsed    bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// LogEntry is an append-only audit record. The engine never updates or
// deletes one. RelatedID links a refund back to the penalty it reverses.
type LogEntry struct {
	ID          LogID
	UserID      UserID
	Kind        ActionKind
	XPDelta     int64
	HPDelta     int64
	CoinDelta   int64
	Description string
	CreatedAt   time.Time
	RelatedID   LogID
}

// IsPenalty reports whether the entry took something away from the user
// outside of a shop purchase.
func (e LogEntry) IsPenalty() bool {
	if e.HPDelta < 0 {
		return true
	}
	return e.CoinDelta < 0 && e.Kind != KindShopPurchase
}

// =============================================================================
// OUTCOME - What the orchestrator hands back to callers
// =============================================================================

// Outcome describes a mutation that was applied and persisted.
type Outcome struct {
	Result  Result
	Before  Profile
	After   Profile
	LevelUp bool
	// LevelUpBonus is the coins credited for crossing a level boundary.
	LevelUpBonus int64
	Entries      []LogEntry
}
