package game_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/gamify-engine/game"
	"github.com/warp/gamify-engine/game/store"
)

var (
	potion = game.ShopItem{ID: "potion", Name: "Health Potion", Price: 50, EffectType: game.EffectHealHP, EffectValue: 30, Active: true}
	skip   = game.ShopItem{ID: "skip", Name: "Duty Skip", Price: 120, EffectType: game.EffectSkipDuty, Active: true}
	warp   = game.ShopItem{ID: "warp", Name: "Time Warp", Price: 150, EffectType: game.EffectRemoveLate, Active: true}
)

func seedCatalog(mem *store.Memory) {
	for _, it := range []game.ShopItem{potion, skip, warp} {
		mem.PutItem(it)
	}
}

// =============================================================================
// BUY
// =============================================================================

func TestBuyItem_InsufficientFunds(t *testing.T) {
	// GIVEN: A user with 50 coins
	// WHEN: Buying an item priced 100
	// THEN: InsufficientFunds; coins stay 50; no inventory row; no log

	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 50)
	item := game.ShopItem{ID: "big", Name: "Big Thing", Price: 100, EffectType: game.EffectHealHP, Active: true}

	_, err := engine.BuyItem(context.Background(), "u1", item, game.DefaultConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, game.ErrInsufficientFunds)
	var fe *game.InsufficientFundsError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int64(50), fe.Shortfall())

	assert.Equal(t, int64(50), mustProfile(t, mem, "u1").Coins)
	inv, err := mem.ListInventory(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, inv)
	assert.Empty(t, allLogs(t, mem, "u1"))
}

func TestBuyItem_Success(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 80)

	purchase, err := engine.BuyItem(context.Background(), "u1", potion, game.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, int64(30), purchase.Outcome.After.Coins)
	assert.False(t, purchase.Entry.IsUsed)
	assert.Equal(t, potion.ID, purchase.Entry.ItemID)

	logs := allLogs(t, mem, "u1")
	require.Len(t, logs, 1)
	assert.Equal(t, game.KindShopPurchase, logs[0].Kind)
	assert.Equal(t, int64(-50), logs[0].CoinDelta)
	assert.False(t, logs[0].IsPenalty(), "purchases are spending, not penalties")
}

func TestBuyItem_ExactBalance(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 50)

	purchase, err := engine.BuyItem(context.Background(), "u1", potion, game.DefaultConfig())
	require.NoError(t, err)
	assert.Zero(t, purchase.Outcome.After.Coins)
}

func TestBuyItem_RejectsInactiveAndUnknown(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 500)
	seedCatalog(mem)
	ctx := context.Background()
	cfg := game.DefaultConfig()

	retired := potion
	retired.Active = false
	_, err := engine.BuyItem(ctx, "u1", retired, cfg)
	assert.ErrorIs(t, err, game.ErrValidation)

	_, err = engine.BuyItemByID(ctx, "u1", "nope", cfg)
	assert.ErrorIs(t, err, game.ErrNotFound)

	_, err = engine.BuyItemByID(ctx, "u1", potion.ID, cfg)
	assert.NoError(t, err)
}

func TestBuyItem_ConcurrentPurchasesNeverOverspend(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 120)
	cfg := game.DefaultConfig()

	results := make(chan error, 5)
	for range 5 {
		go func() {
			_, err := engine.BuyItem(context.Background(), "u1", potion, cfg)
			results <- err
		}()
	}
	var ok, broke int
	for range 5 {
		if err := <-results; err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, game.ErrInsufficientFunds)
			broke++
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, broke)
	assert.Equal(t, int64(20), mustProfile(t, mem, "u1").Coins)
}

func TestBuyItem_StoreFailureLeavesNothingBehind(t *testing.T) {
	// GIVEN: A user with 100 coins and a store that fails after the
	//        profile write
	// WHEN: A potion is bought
	// THEN: PersistenceError; coins, inventory and log are unchanged

	tests := []struct {
		name   string
		inject func(*faultyStore)
	}{
		{"log append fails", func(fs *faultyStore) { fs.failAppend = true }},
		{"inventory insert fails", func(fs *faultyStore) { fs.failInsert = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, fs := newFaultyEngine(t)
			seedProfile(fs.Memory, "u1", 0, 100, 100)
			tt.inject(fs)

			purchase, err := engine.BuyItem(context.Background(), "u1", potion, game.DefaultConfig())

			require.Error(t, err)
			assert.ErrorIs(t, err, game.ErrPersistence)
			assert.Nil(t, purchase)

			p := mustProfile(t, fs.Memory, "u1")
			assert.Equal(t, int64(100), p.Coins)
			assert.Equal(t, int64(1), p.Version)
			inv, err := fs.Memory.ListInventory(context.Background(), "u1")
			require.NoError(t, err)
			assert.Empty(t, inv)
			assert.Empty(t, allLogs(t, fs.Memory, "u1"))
		})
	}
}

// =============================================================================
// USE
// =============================================================================

func TestUseItem_HealCapsAtMaxHP(t *testing.T) {
	// GIVEN: hp=80, maxHp=100, a potion worth 30
	// THEN: hp=100, entry marked used

	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 80, 50)
	ctx := context.Background()
	cfg := game.DefaultConfig()

	purchase, err := engine.BuyItem(ctx, "u1", potion, cfg)
	require.NoError(t, err)

	out, err := engine.UseItem(ctx, purchase.Entry.ID, potion, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(100), out.After.HP)
	assert.Equal(t, int64(20), out.Entries[0].HPDelta)

	entry, err := mem.GetInventory(ctx, purchase.Entry.ID)
	require.NoError(t, err)
	assert.True(t, entry.IsUsed)
	require.NotNil(t, entry.UsedAt)
	assert.Equal(t, testNow, *entry.UsedAt)
}

func TestUseItem_SecondUseFails(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 50, 50)
	seedCatalog(mem)
	ctx := context.Background()
	cfg := game.DefaultConfig()

	purchase, err := engine.BuyItem(ctx, "u1", potion, cfg)
	require.NoError(t, err)
	_, err = engine.UseItemByID(ctx, purchase.Entry.ID, cfg)
	require.NoError(t, err)

	_, err = engine.UseItemByID(ctx, purchase.Entry.ID, cfg)
	assert.ErrorIs(t, err, game.ErrAlreadyUsed)
	assert.Equal(t, int64(80), mustProfile(t, mem, "u1").HP)
}

func TestUseItem_PassiveItemRejected(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 200)
	ctx := context.Background()
	cfg := game.DefaultConfig()

	purchase, err := engine.BuyItem(ctx, "u1", skip, cfg)
	require.NoError(t, err)

	_, err = engine.UseItem(ctx, purchase.Entry.ID, skip, cfg)
	assert.ErrorIs(t, err, game.ErrPassiveItem)
	var pe *game.PassiveItemError
	assert.ErrorAs(t, err, &pe)

	entry, err := mem.GetInventory(ctx, purchase.Entry.ID)
	require.NoError(t, err)
	assert.False(t, entry.IsUsed, "passive item must stay available")
}

func TestUseItem_UnsupportedEffect(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 200)
	ctx := context.Background()
	cfg := game.DefaultConfig()
	odd := game.ShopItem{ID: "odd", Name: "Mystery", Price: 1, EffectType: "teleport", Active: true}

	purchase, err := engine.BuyItem(ctx, "u1", odd, cfg)
	require.NoError(t, err)

	_, err = engine.UseItem(ctx, purchase.Entry.ID, odd, cfg)
	assert.ErrorIs(t, err, game.ErrUnsupportedEffect)
}

func TestUseItem_WrongItemAndMissingEntry(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 200)
	ctx := context.Background()
	cfg := game.DefaultConfig()

	purchase, err := engine.BuyItem(ctx, "u1", potion, cfg)
	require.NoError(t, err)

	_, err = engine.UseItem(ctx, purchase.Entry.ID, warp, cfg)
	assert.ErrorIs(t, err, game.ErrValidation)

	_, err = engine.UseItem(ctx, "missing", potion, cfg)
	assert.ErrorIs(t, err, game.ErrNotFound)
}

// =============================================================================
// TIME WARP
// =============================================================================

func TestUseItem_TimeWarpRefundsLatestPenalty(t *testing.T) {
	// GIVEN: A late task (-10 HP, -5 coins) and a Time Warp in inventory
	// WHEN: The Time Warp is used
	// THEN: +5 HP (50%), +5 coins, logged with a link to the penalty;
	//       a second Time Warp finds nothing left to refund

	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 400)
	ctx := context.Background()
	cfg := game.DefaultConfig()

	late, err := engine.Process(ctx, "u1", game.TaskLate{TaskID: "report", DaysLate: 2}, cfg)
	require.NoError(t, err)
	penaltyID := late.Entries[0].ID

	first, err := engine.BuyItem(ctx, "u1", warp, cfg)
	require.NoError(t, err)
	second, err := engine.BuyItem(ctx, "u1", warp, cfg)
	require.NoError(t, err)

	out, err := engine.UseItem(ctx, first.Entry.ID, warp, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(95), out.After.HP)
	assert.Equal(t, late.After.Coins-2*warp.Price+5, out.After.Coins)

	refund := out.Entries[0]
	assert.Equal(t, game.KindTimeWarpRefund, refund.Kind)
	assert.Equal(t, penaltyID, refund.RelatedID)
	assert.Equal(t, int64(5), refund.HPDelta)
	assert.Equal(t, int64(5), refund.CoinDelta)

	_, err = engine.UseItem(ctx, second.Entry.ID, warp, cfg)
	assert.ErrorIs(t, err, game.ErrNothingToRefund)
	entry, err := mem.GetInventory(ctx, second.Entry.ID)
	require.NoError(t, err)
	assert.False(t, entry.IsUsed)
}

func TestUseItem_TimeWarpRespectsCap(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 400)
	ctx := context.Background()
	cfg := game.DefaultConfig()

	_, err := engine.Process(ctx, "u1", game.DutyMissed{DutyID: "d", CustomPenalty: int64p(60)}, cfg)
	require.NoError(t, err)
	purchase, err := engine.BuyItem(ctx, "u1", warp, cfg)
	require.NoError(t, err)

	out, err := engine.UseItem(ctx, purchase.Entry.ID, warp, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Items.RefundCapHP, out.Entries[0].HPDelta)
	assert.Equal(t, int64(60), out.After.HP)
}

func TestUseItem_TimeWarpIgnoresNonRefundableKinds(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 400)
	ctx := context.Background()
	cfg := game.DefaultConfig()

	_, err := engine.Process(ctx, "u1", game.ManualAdjust{HP: -30, Reason: "admin"}, cfg)
	require.NoError(t, err)
	purchase, err := engine.BuyItem(ctx, "u1", warp, cfg)
	require.NoError(t, err)

	_, err = engine.UseItem(ctx, purchase.Entry.ID, warp, cfg)
	assert.ErrorIs(t, err, game.ErrNothingToRefund)
}

// =============================================================================
// PASSIVE ITEMS
// =============================================================================

func TestConsumePassive(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 500)
	seedCatalog(mem)
	ctx := context.Background()
	cfg := game.DefaultConfig()

	used, err := engine.ConsumePassive(ctx, "u1", game.EffectSkipDuty)
	require.NoError(t, err)
	assert.Nil(t, used, "nothing to consume yet")

	purchase, err := engine.BuyItem(ctx, "u1", skip, cfg)
	require.NoError(t, err)

	used, err = engine.ConsumePassive(ctx, "u1", game.EffectSkipDuty)
	require.NoError(t, err)
	require.NotNil(t, used)
	assert.Equal(t, purchase.Entry.ID, used.ID)
	assert.True(t, used.IsUsed)

	used, err = engine.ConsumePassive(ctx, "u1", game.EffectSkipDuty)
	require.NoError(t, err)
	assert.Nil(t, used)

	logs := allLogs(t, mem, "u1")
	assert.Equal(t, game.KindItemUse, logs[0].Kind)
}

func TestTrigger_DutyMissedUsesSkipOncePerItem(t *testing.T) {
	// GIVEN: Two users missing a duty, one of them owning a Duty Skip
	// WHEN: The miss is distributed to both
	// THEN: The owner's item is consumed instead of the penalty; the other
	//       user is penalised; a second miss hits the owner too

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	cfg := game.DefaultConfig()
	seedProfile(mem, "owner", 0, 100, 120)
	seedProfile(mem, "other", 0, 100, 0)
	bought, err := engine.BuyItem(ctx, "owner", skip, cfg)
	require.NoError(t, err)

	results, err := engine.ProcessEach(ctx, []game.UserID{"owner", "other"}, game.DutyMissed{DutyID: "rota"}, cfg)
	require.NoError(t, err)
	byUser := map[game.UserID]game.RecipientOutcome{}
	for _, r := range results {
		byUser[r.UserID] = r
	}
	require.NotNil(t, byUser["owner"].CoveredBy)
	assert.Equal(t, bought.Entry.ID, byUser["owner"].CoveredBy.ID)
	assert.Nil(t, byUser["owner"].Outcome)
	assert.Nil(t, byUser["other"].CoveredBy)
	assert.Equal(t, int64(85), byUser["other"].Outcome.After.HP)
	assert.Equal(t, int64(100), mustProfile(t, mem, "owner").HP)

	out, covered, err := engine.Trigger(ctx, "owner", game.DutyMissed{DutyID: "rota"}, cfg)
	require.NoError(t, err)
	assert.Nil(t, covered)
	assert.Equal(t, int64(85), out.After.HP)
}
