package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SHOP & INVENTORY
// =============================================================================
//
// Purchases and item use reuse the orchestrator's transaction machinery, so
// the balance check and the deduction happen inside the same locked,
// version-checked transaction. Two concurrent purchases can never both pass
// the check against a stale balance.

// Purchase is the result of a successful BuyItem.
type Purchase struct {
	Entry   InventoryEntry
	Outcome *Outcome
}

// BuyItem deducts item.Price from userID's coins and grants one unused
// inventory entry. On InsufficientFunds nothing is written.
func (e *Engine) BuyItem(ctx context.Context, userID UserID, item ShopItem, cfg *Config) (*Purchase, error) {
	if err := checkCall(userID, cfg); err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, validationErr("item_id", "required")
	}
	if item.Price < 0 {
		return nil, validationErr("price", "must not be negative")
	}
	if !item.Active {
		return nil, validationErr("item_id", fmt.Sprintf("item %q is not for sale", item.ID))
	}

	res := Evaluate(ShopPurchase{ItemName: item.Name, Price: item.Price}, cfg)
	var purchase *Purchase
	err := e.mutate(ctx, userID, "buy item", func(tx Tx) error {
		p, err := loadProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		if p.Coins < item.Price {
			return &InsufficientFundsError{UserID: userID, Balance: p.Coins, Price: item.Price}
		}

		out, err := e.applyInTx(ctx, tx, userID, KindShopPurchase, res, cfg, "")
		if err != nil {
			return err
		}
		entry := InventoryEntry{
			ID:        InventoryID(NewID()),
			UserID:    userID,
			ItemID:    item.ID,
			CreatedAt: e.Now(),
		}
		if err := tx.InsertInventory(ctx, entry); err != nil {
			return &PersistenceError{Op: "insert inventory", Err: err}
		}
		purchase = &Purchase{Entry: entry, Outcome: out}
		return nil
	})
	if err != nil {
		e.logFailure(userID, KindShopPurchase, err)
		return nil, err
	}
	e.logApplied(purchase.Outcome, KindShopPurchase)
	return purchase, nil
}

// BuyItemByID looks item up in the catalog and buys it.
func (e *Engine) BuyItemByID(ctx context.Context, userID UserID, itemID ItemID, cfg *Config) (*Purchase, error) {
	item, err := e.lookupItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return e.BuyItem(ctx, userID, item, cfg)
}

// UseItem consumes inventory entry id, applying item's effect.
//
//	heal_hp:     hp = min(maxHp, hp + effectValue)
//	skip_duty:   passive only, fails with PassiveItemError
//	remove_late: Time Warp, reverses the newest refundable penalty
//
// The entry is marked used in the same transaction that applies the
// effect. A second call for the same id fails with ErrAlreadyUsed.
func (e *Engine) UseItem(ctx context.Context, id InventoryID, item ShopItem, cfg *Config) (*Outcome, error) {
	if id == "" {
		return nil, validationErr("inventory_id", "required")
	}
	if cfg == nil {
		return nil, validationErr("config", "required")
	}
	entry, err := e.Store.GetInventory(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("inventory entry %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get inventory", Err: err}
	}
	if entry.ItemID != item.ID {
		return nil, validationErr("item_id", fmt.Sprintf("entry %q holds item %q, not %q", id, entry.ItemID, item.ID))
	}

	var kind ActionKind
	var out *Outcome
	err = e.mutate(ctx, entry.UserID, "use item", func(tx Tx) error {
		current, err := tx.GetInventory(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("inventory entry %q: %w", id, ErrNotFound)
			}
			return &PersistenceError{Op: "get inventory", Err: err}
		}
		if current.IsUsed {
			return fmt.Errorf("inventory entry %q: %w", id, ErrAlreadyUsed)
		}

		var res Result
		var related LogID
		switch item.EffectType {
		case EffectHealHP:
			kind = KindItemUse
			res = Evaluate(ItemUse{ItemName: item.Name}, cfg)
			res.HPDelta = max(0, item.EffectValue)
		case EffectSkipDuty:
			return &PassiveItemError{
				ItemID:  item.ID,
				Message: fmt.Sprintf("%s works automatically when a duty is missed and can't be used by hand", item.Name),
			}
		case EffectRemoveLate:
			kind = KindTimeWarpRefund
			penalty, err := tx.LatestRefundable(ctx, entry.UserID, cfg.Items.RefundableKinds)
			if errors.Is(err, ErrNotFound) {
				return ErrNothingToRefund
			}
			if err != nil {
				return &PersistenceError{Op: "find penalty", Err: err}
			}
			res = timeWarpRefund(penalty, cfg.Items)
			related = penalty.ID
		default:
			return &UnsupportedEffectError{Effect: item.EffectType}
		}

		if err := tx.MarkInventoryUsed(ctx, id, e.Now()); err != nil {
			if errors.Is(err, ErrAlreadyUsed) {
				return fmt.Errorf("inventory entry %q: %w", id, ErrAlreadyUsed)
			}
			return &PersistenceError{Op: "mark inventory used", Err: err}
		}
		o, err := e.applyInTx(ctx, tx, entry.UserID, kind, res, cfg, related)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		e.logFailure(entry.UserID, KindItemUse, err)
		return nil, err
	}
	e.logApplied(out, kind)
	return out, nil
}

// UseItemByID looks up the entry's item in the catalog and uses it.
func (e *Engine) UseItemByID(ctx context.Context, id InventoryID, cfg *Config) (*Outcome, error) {
	entry, err := e.Store.GetInventory(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("inventory entry %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get inventory", Err: err}
	}
	item, err := e.lookupItem(ctx, entry.ItemID)
	if err != nil {
		return nil, err
	}
	return e.UseItem(ctx, id, item, cfg)
}

// ConsumePassive uses up the oldest unused item with the given effect, for
// triggers that apply passive items on the user's behalf (skip_duty when a
// duty is missed). It returns nil when the user owns no such item.
func (e *Engine) ConsumePassive(ctx context.Context, userID UserID, effect EffectType) (*InventoryEntry, error) {
	if userID == "" {
		return nil, validationErr("user_id", "required")
	}
	var used *InventoryEntry
	err := e.mutate(ctx, userID, "consume passive item", func(tx Tx) error {
		entry, err := tx.FirstUnusedByEffect(ctx, userID, effect)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return &PersistenceError{Op: "find passive item", Err: err}
		}
		now := e.Now()
		if err := tx.MarkInventoryUsed(ctx, entry.ID, now); err != nil {
			return &PersistenceError{Op: "mark inventory used", Err: err}
		}
		entry.IsUsed = true
		entry.UsedAt = &now
		if err := appendLogs(ctx, tx, LogEntry{
			ID:          LogID(NewID()),
			UserID:      userID,
			Kind:        KindItemUse,
			Description: fmt.Sprintf("Passive item applied (%s)", effect),
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		used = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return used, nil
}

// Trigger applies action the way event sources report it. A missed duty is
// first covered by an unused skip_duty item; when one is consumed no penalty
// is applied and the entry is returned instead of an outcome.
func (e *Engine) Trigger(ctx context.Context, userID UserID, action Action, cfg *Config) (*Outcome, *InventoryEntry, error) {
	if err := checkCall(userID, cfg); err != nil {
		return nil, nil, err
	}
	if _, missed := action.(DutyMissed); missed {
		used, err := e.ConsumePassive(ctx, userID, EffectSkipDuty)
		if err != nil {
			return nil, nil, err
		}
		if used != nil {
			e.Logger.Info().Str("user_id", string(userID)).Str("inventory_id", string(used.ID)).Msg("missed duty covered by passive item")
			return nil, used, nil
		}
	}
	out, err := e.Process(ctx, userID, action, cfg)
	return out, nil, err
}

func (e *Engine) lookupItem(ctx context.Context, id ItemID) (ShopItem, error) {
	item, err := e.Store.GetItem(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return ShopItem{}, fmt.Errorf("item %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return ShopItem{}, &PersistenceError{Op: "get item", Err: err}
	}
	return item, nil
}

// timeWarpRefund computes the refund for a penalty entry:
// hp = min(|hp| * RefundPercent, RefundCapHP), coins = |coinDelta|.
// A non-positive cap means the refund is uncapped.
func timeWarpRefund(penalty LogEntry, m ItemMechanics) Result {
	lost := decimal.NewFromInt(-penalty.HPDelta)
	hp := lost.Mul(m.RefundPercent).Floor().IntPart()
	if m.RefundCapHP > 0 {
		hp = min(hp, m.RefundCapHP)
	}
	coins := penalty.CoinDelta
	if coins < 0 {
		coins = -coins
	}
	return Result{
		HPDelta:   max(0, hp),
		CoinDelta: coins,
		Message:   "Time Warp refund",
		Detail:    penalty.Description,
	}
}
