package game_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/gamify-engine/game"
)

func TestLevel(t *testing.T) {
	cfg := game.DefaultConfig()

	tests := []struct {
		xp   int64
		want int64
	}{
		{-50, 1},
		{0, 1},
		{999, 1},
		{1000, 2},
		{1050, 2},
		{25_000, 26},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, game.Level(tt.xp, cfg), "xp=%d", tt.xp)
	}
}

func TestLevel_NonPositiveBaseIsLevelOne(t *testing.T) {
	cfg := game.DefaultConfig()
	cfg.Leveling.BaseXPPerLevel = 0
	assert.Equal(t, int64(1), game.Level(5000, cfg))
}

func TestLevel_Monotonic(t *testing.T) {
	cfg := game.DefaultConfig()
	prev := game.Level(0, cfg)
	for xp := int64(0); xp <= 10_000; xp += 37 {
		lvl := game.Level(xp, cfg)
		assert.GreaterOrEqual(t, lvl, prev)
		prev = lvl
	}
}

func TestXPToNextLevel(t *testing.T) {
	cfg := game.DefaultConfig()
	assert.Equal(t, int64(1000), game.XPToNextLevel(0, cfg))
	assert.Equal(t, int64(50), game.XPToNextLevel(950, cfg))
	assert.Equal(t, int64(1000), game.XPToNextLevel(1000, cfg))
	assert.Equal(t, int64(1000), game.XPForLevel(2, cfg))
}
