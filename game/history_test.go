package game_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/gamify-engine/game"
)

func TestListLogs_Pagination(t *testing.T) {
	// GIVEN: 25 completed duties
	// WHEN: Paging with size 10
	// THEN: Pages of 10, 10, 5 newest first; HasMore flips on the last page

	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 0)
	ctx := context.Background()
	cfg := game.DefaultConfig()
	for range 25 {
		_, err := engine.Process(ctx, "u1", game.DutyComplete{DutyID: "rota"}, cfg)
		require.NoError(t, err)
	}

	first, err := engine.ListLogs(ctx, "u1", 1, 10, game.FilterAll)
	require.NoError(t, err)
	assert.Len(t, first.Entries, 10)
	assert.Equal(t, 25, first.Total)
	assert.True(t, first.HasMore())

	last, err := engine.ListLogs(ctx, "u1", 3, 10, game.FilterAll)
	require.NoError(t, err)
	assert.Len(t, last.Entries, 5)
	assert.False(t, last.HasMore())

	beyond, err := engine.ListLogs(ctx, "u1", 9, 10, game.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, beyond.Entries)
	assert.Equal(t, 25, beyond.Total)
}

func TestListLogs_PageSizeBounds(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 0)
	ctx := context.Background()

	page, err := engine.ListLogs(ctx, "u1", 0, 0, game.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, game.DefaultPageSize, page.PageSize)

	page, err = engine.ListLogs(ctx, "u1", 1, 10_000, game.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, game.MaxPageSize, page.PageSize)

	_, err = engine.ListLogs(ctx, "", 1, 10, game.FilterAll)
	assert.ErrorIs(t, err, game.ErrValidation)
}

func TestListLogs_Filters(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 100)
	ctx := context.Background()
	cfg := game.DefaultConfig()

	_, err := engine.Process(ctx, "u1", game.DutyComplete{DutyID: "rota"}, cfg)
	require.NoError(t, err)
	_, err = engine.Process(ctx, "u1", game.TaskLate{TaskID: "t", DaysLate: 1}, cfg)
	require.NoError(t, err)
	_, err = engine.BuyItem(ctx, "u1", potion, cfg)
	require.NoError(t, err)

	tests := []struct {
		filter game.LogFilter
		kinds  []game.ActionKind
	}{
		{game.FilterAll, []game.ActionKind{game.KindShopPurchase, game.KindTaskLate, game.KindDutyComplete}},
		{game.FilterEarned, []game.ActionKind{game.KindDutyComplete}},
		{game.FilterSpent, []game.ActionKind{game.KindShopPurchase}},
		{game.FilterPenalty, []game.ActionKind{game.KindTaskLate}},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			page, err := engine.ListLogs(ctx, "u1", 1, 50, tt.filter)
			require.NoError(t, err)
			var kinds []game.ActionKind
			for _, e := range page.Entries {
				kinds = append(kinds, e.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
			assert.Equal(t, len(tt.kinds), page.Total)
		})
	}
}

func TestParseLogFilter(t *testing.T) {
	assert.Equal(t, game.FilterPenalty, game.ParseLogFilter("penalty"))
	assert.Equal(t, game.FilterAll, game.ParseLogFilter(""))
	assert.Equal(t, game.FilterAll, game.ParseLogFilter("bogus"))
}

func TestSummarize(t *testing.T) {
	day1 := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	entries := []game.LogEntry{
		{Kind: game.KindShopPurchase, CoinDelta: -50, CreatedAt: day2.Add(time.Hour)},
		{Kind: game.KindDutyComplete, XPDelta: 30, CoinDelta: 5, CreatedAt: day2},
		{Kind: game.KindTaskLate, HPDelta: -10, CoinDelta: -5, CreatedAt: day1.Add(3 * time.Hour)},
		{Kind: game.KindTaskComplete, XPDelta: 190, CoinDelta: 30, CreatedAt: day1},
	}

	s := game.Summarize(entries, 0)
	assert.Equal(t, int64(35), s.Income)
	assert.Equal(t, int64(55), s.Expense)
	assert.Equal(t, int64(220), s.XP)
	require.Len(t, s.Trend, 2)
	assert.Equal(t, day1.Truncate(24*time.Hour), s.Trend[0].Start)
	assert.Equal(t, int64(190), s.Trend[0].XP)
	assert.Equal(t, int64(30), s.Trend[1].XP)
}

func TestSummarize_Empty(t *testing.T) {
	s := game.Summarize(nil, time.Hour)
	assert.Zero(t, s.Income)
	assert.Zero(t, s.Expense)
	assert.Empty(t, s.Trend)
}
