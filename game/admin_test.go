package game_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/gamify-engine/game"
)

func TestAdjust_AppliesRawDeltas(t *testing.T) {
	// GIVEN: A user with 100 coins
	// WHEN: An admin grants 500 XP and takes 40 coins
	// THEN: Deltas applied verbatim and the log names the admin and reason

	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 100)

	out, err := engine.Adjust(context.Background(), "u1",
		game.AdjustDelta{XP: int64p(500), Coins: int64p(-40)},
		"hackathon prize correction", "admin-7", game.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, int64(500), out.After.XP)
	assert.Equal(t, int64(60), out.After.Coins)
	assert.Equal(t, int64(100), out.After.HP)

	logs := allLogs(t, mem, "u1")
	require.Len(t, logs, 1)
	assert.Equal(t, game.KindManualAdjust, logs[0].Kind)
	assert.Equal(t, "[admin admin-7] hackathon prize correction", logs[0].Description)
}

func TestAdjust_LevelsUpAndClamps(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 30, 10)

	out, err := engine.Adjust(context.Background(), "u1",
		game.AdjustDelta{XP: int64p(1000), HP: int64p(-50), Coins: int64p(-25)},
		"reset", "root", game.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, int64(2), out.After.Level)
	assert.True(t, out.LevelUp)
	assert.Zero(t, out.After.HP)
	// max(0, 10 - 25 + 50): the bonus covers the overdraft.
	assert.Equal(t, int64(35), out.After.Coins)
	assert.Equal(t, int64(35), out.LevelUpBonus)
	require.Len(t, out.Entries, 2)
	assert.Equal(t, int64(-10), out.Entries[0].CoinDelta)
	assert.Equal(t, int64(35), out.Entries[1].CoinDelta)
}

func TestAdjust_Validation(t *testing.T) {
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 0)
	cfg := game.DefaultConfig()
	one := game.AdjustDelta{XP: int64p(1)}

	tests := []struct {
		name   string
		target game.UserID
		delta  game.AdjustDelta
		reason string
		actor  string
	}{
		{"blank reason", "u1", one, "   ", "root"},
		{"missing actor", "u1", one, "bonus", ""},
		{"empty delta", "u1", game.AdjustDelta{}, "bonus", "root"},
		{"missing target", "", one, "bonus", "root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Adjust(context.Background(), tt.target, tt.delta, tt.reason, tt.actor, cfg)
			assert.ErrorIs(t, err, game.ErrValidation)
		})
	}
	assert.Empty(t, allLogs(t, mem, "u1"))
}

func TestAdjust_ZeroDeltaStillAudited(t *testing.T) {
	// An explicit zero is an admin decision, so it leaves a trace.
	engine, mem := newTestEngine(t)
	seedProfile(mem, "u1", 0, 100, 0)

	_, err := engine.Adjust(context.Background(), "u1", game.AdjustDelta{Coins: int64p(0)}, "noop check", "root", game.DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, allLogs(t, mem, "u1"), 1)
}
