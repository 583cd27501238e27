package postgres_test

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/gamify-engine/config"
	"github.com/warp/gamify-engine/game"
	"github.com/warp/gamify-engine/store/postgres"
	"golang.org/x/sync/errgroup"
)

var t0 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

// openStore connects to TEST_DATABASE_URL inside a throwaway schema.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	cfg, err := config.LoadTest()
	if err != nil {
		t.Skipf("skip test db: %v", err)
	}
	ctx := context.Background()
	dsn := cfg.TestDatabaseURL
	schema := pgx.Identifier{fmt.Sprintf("test_%d", time.Now().UnixNano())}.Sanitize()

	base, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	_, err = base.Exec(ctx, "CREATE SCHEMA "+schema)
	base.Close()
	require.NoError(t, err)

	st, err := postgres.New(ctx, withSearchPath(dsn, strings.Trim(schema, `"`)))
	require.NoError(t, err)
	t.Cleanup(func() {
		st.Close()
		if base, err := pgxpool.New(ctx, dsn); err == nil {
			_, _ = base.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
			base.Close()
		}
	})
	return st
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + url.QueryEscape(schema)
}

func TestUpdateProfile_VersionCheck(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureProfile(ctx, game.NewProfile("u1", game.DefaultConfig())))

	read, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), read.Version)

	first := read
	first.Coins = 10
	first.UpdatedAt = t0
	require.NoError(t, st.UpdateProfile(ctx, first))
	assert.ErrorIs(t, st.UpdateProfile(ctx, read), game.ErrVersionConflict)
	assert.ErrorIs(t, st.UpdateProfile(ctx, game.Profile{UserID: "ghost", Version: 1}), game.ErrNotFound)

	p, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Coins)
	assert.Equal(t, int64(2), p.Version)
	assert.True(t, t0.Equal(p.UpdatedAt))
}

func TestInventoryAndRefundLookup(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveItem(ctx, game.ShopItem{ID: "skip", Name: "Duty Skip", Price: 120, EffectType: game.EffectSkipDuty, Active: true}))

	err := st.WithTx(ctx, func(tx game.Tx) error {
		if err := tx.InsertInventory(ctx, game.InventoryEntry{ID: "a", UserID: "u1", ItemID: "skip", CreatedAt: t0}); err != nil {
			return err
		}
		for _, e := range []game.LogEntry{
			{ID: "p1", UserID: "u1", Kind: game.KindTaskLate, HPDelta: -10, CreatedAt: t0},
			{ID: "p2", UserID: "u1", Kind: game.KindDutyMissed, HPDelta: -15, CreatedAt: t0.Add(time.Minute)},
			{ID: "r1", UserID: "u1", Kind: game.KindTimeWarpRefund, HPDelta: 7, RelatedID: "p2", CreatedAt: t0.Add(2 * time.Minute)},
		} {
			if err := tx.AppendLog(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	got, err := st.LatestRefundable(ctx, "u1", game.DefaultConfig().Items.RefundableKinds)
	require.NoError(t, err)
	assert.Equal(t, game.LogID("p1"), got.ID)

	entry, err := st.FirstUnusedByEffect(ctx, "u1", game.EffectSkipDuty)
	require.NoError(t, err)
	require.NoError(t, st.MarkInventoryUsed(ctx, entry.ID, t0))
	assert.ErrorIs(t, st.MarkInventoryUsed(ctx, entry.ID, t0), game.ErrAlreadyUsed)
	_, err = st.FirstUnusedByEffect(ctx, "u1", game.EffectSkipDuty)
	assert.ErrorIs(t, err, game.ErrNotFound)

	entries, total, err := st.QueryLogs(ctx, game.LogQuery{UserID: "u1", Filter: game.FilterPenalty, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, game.LogID("p2"), entries[0].ID)
}

func TestConfig_Versions(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	cfg, err := st.CurrentConfig(ctx)
	require.NoError(t, err)
	cfg.Penalties.BaseLateHP = 30

	g, gctx := errgroup.WithContext(ctx)
	for range 4 {
		g.Go(func() error {
			_, err := st.SaveConfig(gctx, cfg)
			return err
		})
	}
	require.NoError(t, g.Wait())

	current, err := st.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), current.Version)
	assert.Equal(t, int64(30), current.Penalties.BaseLateHP)
}

func TestEngine_ParallelPurchasesNeverOverspend(t *testing.T) {
	// GIVEN: Two engines sharing one database, a user with 120 coins
	// WHEN: Both buy 50-coin potions in parallel
	// THEN: Exactly two purchases succeed

	st := openStore(t)
	ctx := context.Background()
	cfg := game.DefaultConfig()
	potion := game.ShopItem{ID: "potion", Name: "Health Potion", Price: 50, EffectType: game.EffectHealHP, EffectValue: 30, Active: true}
	require.NoError(t, st.SaveItem(ctx, potion))

	p := game.NewProfile("u1", cfg)
	p.Coins = 120
	require.NoError(t, st.EnsureProfile(ctx, p))

	engines := []*game.Engine{game.NewEngine(st, zerolog.Nop()), game.NewEngine(st, zerolog.Nop())}
	results := make(chan error, 6)
	var g errgroup.Group
	for i := range 6 {
		g.Go(func() error {
			_, err := engines[i%2].BuyItem(ctx, "u1", potion, cfg)
			results <- err
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, game.ErrInsufficientFunds)
	}
	assert.Equal(t, 2, ok)

	got, err := st.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Coins)
	inv, err := st.ListInventory(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, inv, 2)
}
