/*
engine.go - Profile mutation orchestrator

PURPOSE:
  The transactional core. Every path that changes a user's balances goes
  through Engine.mutate: take the user's lock, open a store transaction,
  read a fresh profile, apply, compare-and-swap, append log rows, commit.

PROCESS FLOW:
  1. Evaluate the action. An all-zero, message-less result short-circuits
     with no store I/O and no log row.
  2. Read the current profile inside a transaction.
  3. Clamp xp >= 0 and 0 <= hp <= maxHp, then recompute the level.
  4. Crossing a boundary adds the level-up bonus, and coins are clamped
     once over the sum: max(0, coins + delta + bonus).
  5. Write the profile with a version check.
  6. Append the action's log row with the deltas that were actually
     applied, plus a separate level_up row carrying only the bonus.
  7. Any store failure rolls back everything and surfaces as
     PersistenceError. No partial log, no partial mutation.

CONCURRENCY:
  Same-user calls are serialized by an in-process keyed mutex, and every
  write is a version compare-and-swap so that concurrent writers in other
  processes are detected. A conflict retries the whole transaction up to
  MaxRetries times, then fails with ErrConflictRetryExhausted.

SEE ALSO:
  - evaluate.go: Produces the Result applied here
  - shop.go, admin.go: Other mutation paths reusing mutate/applyInTx
*/
package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxRetries is how many times a conflicting transaction is attempted.
const DefaultMaxRetries = 3

// Engine applies actions to user profiles.
type Engine struct {
	Store  TxStore
	Logger zerolog.Logger

	// MaxRetries bounds attempts after a version conflict.
	MaxRetries int

	// Now returns the current time; tests replace it.
	Now func() time.Time

	locks *keyLock
}

func NewEngine(store TxStore, logger zerolog.Logger) *Engine {
	return &Engine{
		Store:      store,
		Logger:     logger,
		MaxRetries: DefaultMaxRetries,
		Now:        func() time.Time { return time.Now().UTC() },
		locks:      newKeyLock(),
	}
}

// =============================================================================
// PROCESS
// =============================================================================

// Process evaluates action for userID and applies the result.
// It returns (nil, nil) when the action is a no-op.
func (e *Engine) Process(ctx context.Context, userID UserID, action Action, cfg *Config) (*Outcome, error) {
	if err := checkCall(userID, cfg); err != nil {
		return nil, err
	}
	if action == nil {
		return nil, validationErr("action", "required")
	}
	if a, ok := action.(ManualAdjust); ok && a.Reason == "" {
		return nil, validationErr("reason", "required for manual adjustments")
	}

	res := Evaluate(action, cfg)
	if res.IsNoop() {
		return nil, nil
	}

	var out *Outcome
	err := e.mutate(ctx, userID, "process "+string(action.Kind()), func(tx Tx) error {
		o, err := e.applyInTx(ctx, tx, userID, action.Kind(), res, cfg, "")
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		e.logFailure(userID, action.Kind(), err)
		return nil, err
	}
	e.logApplied(out, action.Kind())
	return out, nil
}

// RecipientOutcome is one recipient's share of a ProcessEach call.
type RecipientOutcome struct {
	UserID  UserID
	Outcome *Outcome
	// CoveredBy is set when a passive item absorbed the action.
	CoveredBy *InventoryEntry
	Err       error
}

// ProcessEach applies the same action to every recipient. Each recipient's
// result is applied against their own profile, so level-ups and clamping are
// decided per person. Recipients are processed concurrently; a failure for
// one does not stop the others. The returned error joins all failures.
// Each recipient goes through Trigger, so passive items apply per person.
func (e *Engine) ProcessEach(ctx context.Context, userIDs []UserID, action Action, cfg *Config) ([]RecipientOutcome, error) {
	seen := make(map[UserID]bool, len(userIDs))
	var unique []UserID
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	results := make([]RecipientOutcome, len(unique))
	var g errgroup.Group
	g.SetLimit(8)
	for i, id := range unique {
		g.Go(func() error {
			out, covered, err := e.Trigger(ctx, id, action, cfg)
			results[i] = RecipientOutcome{UserID: id, Outcome: out, CoveredBy: covered, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", r.UserID, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

// EnsureProfile creates a starting profile for userID if none exists.
func (e *Engine) EnsureProfile(ctx context.Context, userID UserID, cfg *Config) error {
	if err := checkCall(userID, cfg); err != nil {
		return err
	}
	if err := e.Store.EnsureProfile(ctx, NewProfile(userID, cfg)); err != nil {
		return &PersistenceError{Op: "ensure profile", Err: err}
	}
	return nil
}

// =============================================================================
// TRANSACTION MACHINERY
// =============================================================================

// mutate runs fn under userID's lock inside a store transaction, retrying
// the whole transaction on version conflicts.
func (e *Engine) mutate(ctx context.Context, userID UserID, op string, fn func(tx Tx) error) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	attempts := max(e.MaxRetries, 1)
	for attempt := 1; ; attempt++ {
		err := e.Store.WithTx(ctx, fn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrVersionConflict):
			if attempt >= attempts {
				return fmt.Errorf("%s after %d attempts: %w", op, attempt, ErrConflictRetryExhausted)
			}
			e.Logger.Debug().Str("user_id", string(userID)).Str("op", op).Int("attempt", attempt).Msg("version conflict, retrying")
			continue
		case IsBusinessError(err):
			return err
		default:
			var pe *PersistenceError
			if errors.As(err, &pe) {
				return err
			}
			return &PersistenceError{Op: op, Err: err}
		}
	}
}

// loadProfile reads userID's profile, turning a missing row into a
// validation error so callers can tell it apart from store failures.
func loadProfile(ctx context.Context, tx Tx, userID UserID) (Profile, error) {
	p, err := tx.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Profile{}, validationErr("user_id", fmt.Sprintf("no profile for %q", userID))
	}
	if err != nil {
		return Profile{}, &PersistenceError{Op: "get profile", Err: err}
	}
	return p, nil
}

// writeProfile persists next with a version check. Conflicts pass through
// untouched so mutate can retry them.
func writeProfile(ctx context.Context, tx Tx, next Profile) error {
	err := tx.UpdateProfile(ctx, next)
	if err == nil || errors.Is(err, ErrVersionConflict) {
		return err
	}
	return &PersistenceError{Op: "update profile", Err: err}
}

func appendLogs(ctx context.Context, tx Tx, entries ...LogEntry) error {
	for _, entry := range entries {
		if err := tx.AppendLog(ctx, entry); err != nil {
			return &PersistenceError{Op: "append log", Err: err}
		}
	}
	return nil
}

// applyInTx applies res to userID's profile and writes the audit rows.
func (e *Engine) applyInTx(ctx context.Context, tx Tx, userID UserID, kind ActionKind, res Result, cfg *Config, relatedID LogID) (*Outcome, error) {
	before, err := loadProfile(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	a := applyResult(before, res, cfg)
	a.profile.UpdatedAt = now
	if err := writeProfile(ctx, tx, a.profile); err != nil {
		return nil, err
	}

	entries := []LogEntry{{
		ID:          LogID(NewID()),
		UserID:      userID,
		Kind:        kind,
		XPDelta:     a.xp,
		HPDelta:     a.hp,
		CoinDelta:   a.coins,
		Description: describe(res),
		CreatedAt:   now,
		RelatedID:   relatedID,
	}}
	if a.levelUp {
		entries = append(entries, LogEntry{
			ID:          LogID(NewID()),
			UserID:      userID,
			Kind:        KindLevelUp,
			CoinDelta:   a.bonus,
			Description: fmt.Sprintf("Reached level %d", a.profile.Level),
			CreatedAt:   now,
		})
	}
	if err := appendLogs(ctx, tx, entries...); err != nil {
		return nil, err
	}

	after := a.profile
	after.Version = before.Version + 1
	return &Outcome{
		Result:       res,
		Before:       before,
		After:        after,
		LevelUp:      a.levelUp,
		LevelUpBonus: a.bonus,
		Entries:      entries,
	}, nil
}

func describe(res Result) string {
	if res.Detail == "" {
		return res.Message
	}
	return res.Message + " [" + res.Detail + "]"
}

// =============================================================================
// APPLY - Pure clamping and level-up arithmetic
// =============================================================================

type applied struct {
	profile Profile
	// Deltas actually applied. bonus is the part of the level-up bonus
	// that was credited; coins excludes it.
	xp, hp, coins int64
	bonus         int64
	levelUp       bool
}

func applyResult(p Profile, r Result, cfg *Config) applied {
	maxHP := p.MaxHP
	if maxHP <= 0 {
		maxHP = cfg.Leveling.MaxHP
	}
	if maxHP <= 0 {
		maxHP = DefaultMaxHP
	}

	next := p
	next.MaxHP = maxHP
	next.XP = max(0, addSat(p.XP, r.XPDelta))
	next.HP = min(maxHP, max(0, addSat(p.HP, r.HPDelta)))
	next.Level = Level(next.XP, cfg)

	var bonus int64
	levelUp := next.Level > p.Level
	if levelUp {
		bonus = max(0, cfg.Leveling.LevelUpBonusCoins)
	}
	// coins = max(0, coins + delta + bonus), clamped once over the sum. The
	// bonus row keeps whatever part of the bonus survived an overdraft.
	withoutBonus := max(0, addSat(p.Coins, r.CoinDelta))
	next.Coins = max(0, addSat(addSat(p.Coins, r.CoinDelta), bonus))

	a := applied{
		profile: next,
		xp:      next.XP - p.XP,
		hp:      next.HP - p.HP,
		bonus:   next.Coins - withoutBonus,
		levelUp: levelUp,
	}
	a.coins = next.Coins - p.Coins - a.bonus
	return a
}

// addSat adds without wrapping around on overflow.
func addSat(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

func checkCall(userID UserID, cfg *Config) error {
	if userID == "" {
		return validationErr("user_id", "required")
	}
	if cfg == nil {
		return validationErr("config", "required")
	}
	return nil
}

// =============================================================================
// LOGGING
// =============================================================================

func (e *Engine) logApplied(out *Outcome, kind ActionKind) {
	e.Logger.Debug().
		Str("user_id", string(out.After.UserID)).
		Str("kind", string(kind)).
		Int64("xp", out.After.XP).
		Int64("hp", out.After.HP).
		Int64("coins", out.After.Coins).
		Int64("level", out.After.Level).
		Bool("level_up", out.LevelUp).
		Msg("profile updated")
}

func (e *Engine) logFailure(userID UserID, kind ActionKind, err error) {
	ev := e.Logger.Error()
	if IsBusinessError(err) {
		ev = e.Logger.Info()
	}
	ev.Err(err).Str("user_id", string(userID)).Str("kind", string(kind)).Msg("action rejected")
}
