package game_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/gamify-engine/game"
)

func int64p(v int64) *int64 { return &v }

// =============================================================================
// TASKS
// =============================================================================

func TestEvaluate_TaskCompleteEarly(t *testing.T) {
	// GIVEN: A medium task estimated at 2 hours, finished 2 days before due
	// WHEN: Evaluated under the default config
	// THEN: 100 base + 2*20 hours + 50 early = 190 XP; 10 + 20 early = 30 coins

	cfg := game.DefaultConfig()
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	res := game.Evaluate(game.TaskComplete{
		TaskID:         "t-1",
		Difficulty:     game.DifficultyMedium,
		EstimatedHours: decimal.NewFromInt(2),
		DueDate:        now.Add(48 * time.Hour),
		CompletedAt:    now,
	}, cfg)

	assert.Equal(t, int64(190), res.XPDelta)
	assert.Equal(t, int64(30), res.CoinDelta)
	assert.Zero(t, res.HPDelta)
	assert.Equal(t, "Task completed early", res.Message)
}

func TestEvaluate_TaskCompleteOnDueDateIsNotEarly(t *testing.T) {
	cfg := game.DefaultConfig()
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	res := game.Evaluate(game.TaskComplete{
		Difficulty:     game.DifficultyEasy,
		EstimatedHours: decimal.NewFromFloat(1.5),
		DueDate:        now.Add(23 * time.Hour),
		CompletedAt:    now,
	}, cfg)

	// 50 base + floor(1.5*20)=30
	assert.Equal(t, int64(80), res.XPDelta)
	assert.Equal(t, int64(10), res.CoinDelta)
}

func TestEvaluate_TaskCompleteFloorsFractionalHours(t *testing.T) {
	cfg := game.DefaultConfig()

	res := game.Evaluate(game.TaskComplete{
		Difficulty:     game.DifficultyHard,
		EstimatedHours: decimal.RequireFromString("0.33"),
	}, cfg)

	// 200 + floor(6.6)
	assert.Equal(t, int64(206), res.XPDelta)
}

func TestEvaluate_TaskLate(t *testing.T) {
	cfg := game.DefaultConfig()

	res := game.Evaluate(game.TaskLate{TaskID: "t-2", DaysLate: 3}, cfg)
	assert.Equal(t, int64(-10), res.HPDelta)
	assert.Equal(t, int64(-5), res.CoinDelta)
	assert.Zero(t, res.XPDelta)

	res = game.Evaluate(game.TaskLate{TaskID: "t-2", DaysLate: 3, CustomPenalty: int64p(25)}, cfg)
	assert.Equal(t, int64(-25), res.HPDelta)
}

// =============================================================================
// DUTIES
// =============================================================================

func TestEvaluate_DutyAssistNeverPaysLessThanComplete(t *testing.T) {
	cfg := game.DefaultConfig()
	cfg.Duty.Assist = game.Reward{XP: 10, Coins: 1}

	complete := game.Evaluate(game.DutyComplete{DutyID: "d"}, cfg)
	assist := game.Evaluate(game.DutyAssist{DutyID: "d"}, cfg)

	assert.GreaterOrEqual(t, assist.XPDelta, complete.XPDelta)
	assert.GreaterOrEqual(t, assist.CoinDelta, complete.CoinDelta)
}

func TestEvaluate_DutyMissed(t *testing.T) {
	cfg := game.DefaultConfig()

	res := game.Evaluate(game.DutyMissed{DutyID: "d"}, cfg)
	assert.Equal(t, int64(-15), res.HPDelta)
	assert.Equal(t, "Duty missed", res.Message)

	res = game.Evaluate(game.DutyMissed{DutyID: "d", CustomPenalty: int64p(40), Note: "third time"}, cfg)
	assert.Equal(t, int64(-40), res.HPDelta)
	assert.Equal(t, "Duty neglected: third time", res.Message)
}

func TestEvaluate_DutyLateSubmit(t *testing.T) {
	res := game.Evaluate(game.DutyLateSubmit{DutyID: "d"}, game.DefaultConfig())
	assert.Equal(t, int64(10), res.XPDelta)
	assert.Equal(t, int64(-3), res.HPDelta)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func TestEvaluate_AttendanceLate(t *testing.T) {
	// GIVEN: Late attendance configured as {xp:0, hp:-5, coins:0}
	// THEN: Exactly -5 HP and nothing else

	cfg := game.DefaultConfig()
	cfg.Attendance[game.AttendanceLate] = game.Reward{HP: -5}

	res := game.Evaluate(game.AttendanceCheckIn{Status: game.AttendanceLate}, cfg)
	assert.Equal(t, game.Result{HPDelta: -5, Message: res.Message}, res)
}

func TestEvaluate_AttendanceTable(t *testing.T) {
	cfg := game.DefaultConfig()

	tests := []struct {
		name   string
		action game.Action
		want   game.Reward
	}{
		{"on time", game.AttendanceCheckIn{Status: game.AttendanceOnTime}, game.Reward{XP: 10, Coins: 2}},
		{"absent", game.AttendanceAbsentAction{}, game.Reward{HP: -10}},
		{"no show", game.AttendanceNoShowAction{}, game.Reward{HP: -20, Coins: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := game.Evaluate(tt.action, cfg)
			assert.Equal(t, tt.want, game.Reward{XP: res.XPDelta, HP: res.HPDelta, Coins: res.CoinDelta})
		})
	}
}

func TestEvaluate_AttendanceMissingRowIsZero(t *testing.T) {
	cfg := game.DefaultConfig()
	delete(cfg.Attendance, game.AttendanceOnTime)

	res := game.Evaluate(game.AttendanceCheckIn{Status: game.AttendanceOnTime}, cfg)
	assert.True(t, res.IsNoop())
}

func TestEvaluate_EarlyLeaveRoundsUpIntervals(t *testing.T) {
	cfg := game.DefaultConfig()

	tests := []struct {
		minutes int64
		wantHP  int64
	}{
		{0, 0},
		{1, -2},
		{30, -2},
		{31, -4},
		{95, -8},
	}
	for _, tt := range tests {
		res := game.Evaluate(game.AttendanceEarlyLeave{MissingMinutes: tt.minutes}, cfg)
		assert.Equal(t, tt.wantHP, res.HPDelta, "missing %d minutes", tt.minutes)
	}
}

// =============================================================================
// MISC
// =============================================================================

func TestEvaluate_KpiReward(t *testing.T) {
	cfg := game.DefaultConfig()

	res := game.Evaluate(game.KpiReward{Grade: game.KPIGradeS, Period: "2025-Q1"}, cfg)
	assert.Equal(t, int64(500), res.XPDelta)
	assert.Equal(t, int64(200), res.CoinDelta)

	res = game.Evaluate(game.KpiReward{Grade: "Z"}, cfg)
	assert.Equal(t, "KPI grade D", res.Message)
	assert.Zero(t, res.XPDelta)
}

func TestEvaluate_ShopAndAdjust(t *testing.T) {
	cfg := game.DefaultConfig()

	res := game.Evaluate(game.ShopPurchase{ItemName: "Potion", Price: 40}, cfg)
	assert.Equal(t, int64(-40), res.CoinDelta)

	res = game.Evaluate(game.ManualAdjust{XP: 7, HP: -3, Coins: 9, Reason: "fix"}, cfg)
	assert.Equal(t, game.Result{XPDelta: 7, HPDelta: -3, CoinDelta: 9, Message: "fix"}, res)
}

func TestEvaluate_IsPure(t *testing.T) {
	cfg := game.DefaultConfig()
	action := game.TaskComplete{Difficulty: game.DifficultyEpic, EstimatedHours: decimal.NewFromInt(8)}

	first := game.Evaluate(action, cfg)
	for range 5 {
		assert.Equal(t, first, game.Evaluate(action, cfg))
	}
	assert.Equal(t, game.DefaultConfig(), cfg, "evaluate must not modify config")
}
