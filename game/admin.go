package game

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// ADMIN ADJUSTMENTS
// =============================================================================

// AdjustDelta holds the raw deltas of an admin override. Nil fields are left
// untouched.
type AdjustDelta struct {
	XP    *int64
	HP    *int64
	Coins *int64
}

func (d AdjustDelta) isEmpty() bool {
	return d.XP == nil && d.HP == nil && d.Coins == nil
}

// Adjust applies raw deltas to target, skipping rule evaluation but going
// through the same clamp, level, persist and log path as Process. The
// magnitude is unbounded; reason and actorID are mandatory and end up in the
// log description.
func (e *Engine) Adjust(ctx context.Context, target UserID, delta AdjustDelta, reason string, actorID string, cfg *Config) (*Outcome, error) {
	if err := checkCall(target, cfg); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationErr("reason", "required")
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, validationErr("actor_id", "required")
	}
	if delta.isEmpty() {
		return nil, validationErr("delta", "at least one of xp, hp, coins is required")
	}

	res := Result{Message: fmt.Sprintf("[admin %s] %s", actorID, reason)}
	if delta.XP != nil {
		res.XPDelta = *delta.XP
	}
	if delta.HP != nil {
		res.HPDelta = *delta.HP
	}
	if delta.Coins != nil {
		res.CoinDelta = *delta.Coins
	}

	var out *Outcome
	err := e.mutate(ctx, target, "admin adjust", func(tx Tx) error {
		o, err := e.applyInTx(ctx, tx, target, KindManualAdjust, res, cfg, "")
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		e.logFailure(target, KindManualAdjust, err)
		return nil, err
	}
	e.Logger.Info().
		Str("actor_id", actorID).
		Str("user_id", string(target)).
		Int64("xp", res.XPDelta).
		Int64("hp", res.HPDelta).
		Int64("coins", res.CoinDelta).
		Str("reason", reason).
		Msg("admin adjustment applied")
	return out, nil
}
