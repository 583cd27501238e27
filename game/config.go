package game

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIG - Rule parameters consumed by the evaluator and orchestrator
// =============================================================================
//
// Config is a read-only snapshot. Callers load it once per operation and
// pass it in; the engine never mutates it and never keeps it between calls.
// Persistence and distribution of config belong to the ConfigSource.

const (
	DefaultMaxHP          int64 = 100
	DefaultBaseXPPerLevel int64 = 1000
)

// Reward is a fixed XP/HP/coin triple looked up from a config table.
type Reward struct {
	XP    int64
	HP    int64
	Coins int64
}

type Config struct {
	Version     int64
	Multipliers Multipliers
	// DifficultyXP is the base XP granted per task difficulty.
	DifficultyXP map[Difficulty]int64
	Penalties    Penalties
	Duty         DutyRewards
	Attendance   map[AttendanceStatus]Reward
	KPI          map[KPIGrade]Reward
	Leveling     Leveling
	Items        ItemMechanics
}

type Multipliers struct {
	XPPerHour      decimal.Decimal
	CoinPerTask    int64
	EarlyXPBonus   int64
	EarlyCoinBonus int64
}

// Penalties holds positive magnitudes; the evaluator applies the sign.
type Penalties struct {
	BaseLateHP                int64
	CoinPerLateDay            int64
	BaseMissedDutyHP          int64
	EarlyLeaveIntervalMinutes int64
	EarlyLeaveHPPerInterval   int64
}

type DutyRewards struct {
	Complete Reward
	// Assist is never paid below Complete.
	Assist     Reward
	LateSubmit Reward
}

type Leveling struct {
	BaseXPPerLevel    int64
	LevelUpBonusCoins int64
	MaxHP             int64
}

type ItemMechanics struct {
	RefundPercent decimal.Decimal
	RefundCapHP   int64
	// RefundableKinds is the penalty set a Time Warp may reverse.
	RefundableKinds []ActionKind
}

// IsRefundable reports whether a log entry of kind k may be reversed by a
// Time Warp item.
func (m ItemMechanics) IsRefundable(k ActionKind) bool {
	for _, r := range m.RefundableKinds {
		if r == k {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no maps or slices with c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.DifficultyXP = maps.Clone(c.DifficultyXP)
	out.Attendance = maps.Clone(c.Attendance)
	out.KPI = maps.Clone(c.KPI)
	out.Items.RefundableKinds = slices.Clone(c.Items.RefundableKinds)
	return &out
}

// DefaultConfig returns the rule set used when no config has been stored.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Multipliers: Multipliers{
			XPPerHour:      decimal.NewFromInt(20),
			CoinPerTask:    10,
			EarlyXPBonus:   50,
			EarlyCoinBonus: 20,
		},
		DifficultyXP: map[Difficulty]int64{
			DifficultyEasy:   50,
			DifficultyMedium: 100,
			DifficultyHard:   200,
			DifficultyEpic:   400,
		},
		Penalties: Penalties{
			BaseLateHP:                10,
			CoinPerLateDay:            5,
			BaseMissedDutyHP:          15,
			EarlyLeaveIntervalMinutes: 30,
			EarlyLeaveHPPerInterval:   2,
		},
		Duty: DutyRewards{
			Complete:   Reward{XP: 30, Coins: 5},
			Assist:     Reward{XP: 50, Coins: 10},
			LateSubmit: Reward{XP: 10, HP: -3},
		},
		Attendance: map[AttendanceStatus]Reward{
			AttendanceOnTime: {XP: 10, Coins: 2},
			AttendanceLate:   {HP: -5},
			AttendanceAbsent: {HP: -10},
			AttendanceNoShow: {HP: -20, Coins: -5},
		},
		KPI: map[KPIGrade]Reward{
			KPIGradeS: {XP: 500, Coins: 200},
			KPIGradeA: {XP: 300, Coins: 100},
			KPIGradeB: {XP: 150, Coins: 50},
			KPIGradeC: {XP: 50, Coins: 10},
			KPIGradeD: {},
		},
		Leveling: Leveling{
			BaseXPPerLevel:    DefaultBaseXPPerLevel,
			LevelUpBonusCoins: 50,
			MaxHP:             DefaultMaxHP,
		},
		Items: ItemMechanics{
			RefundPercent: decimal.NewFromFloat(0.5),
			RefundCapHP:   20,
			RefundableKinds: []ActionKind{
				KindTaskLate,
				KindDutyMissed,
				KindAttendanceCheckIn,
				KindAttendanceEarlyLeave,
			},
		},
	}
}
