package game

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE EVALUATOR
// =============================================================================

// earlyThreshold is how far ahead of the due date a task must be finished to
// count as early.
const earlyThreshold = 24 * time.Hour

// Evaluate maps an action to the delta it is worth under cfg.
//
// Evaluate is pure and total: it performs no I/O, never fails, and returns
// the same Result for the same inputs. Actions whose real effect is applied
// elsewhere (shop purchases, item use, time warp refunds) only describe the
// event here. Unknown actions yield the zero Result.
func Evaluate(action Action, cfg *Config) Result {
	switch a := action.(type) {
	case TaskComplete:
		return evalTaskComplete(a, cfg)
	case TaskLate:
		hp := cfg.Penalties.BaseLateHP
		if a.CustomPenalty != nil {
			hp = *a.CustomPenalty
		}
		msg := "Task overdue"
		if a.DaysLate > 0 {
			msg = fmt.Sprintf("Task overdue by %d day(s)", a.DaysLate)
		}
		return Result{
			HPDelta:   -hp,
			CoinDelta: -cfg.Penalties.CoinPerLateDay,
			Message:   msg,
			Detail:    a.TaskID,
		}
	case DutyComplete:
		r := cfg.Duty.Complete
		return Result{XPDelta: r.XP, HPDelta: r.HP, CoinDelta: r.Coins, Message: "Duty completed", Detail: a.DutyID}
	case DutyAssist:
		r := assistReward(cfg.Duty)
		return Result{XPDelta: r.XP, HPDelta: r.HP, CoinDelta: r.Coins, Message: "Covered a teammate's duty", Detail: a.DutyID}
	case DutyMissed:
		hp := cfg.Penalties.BaseMissedDutyHP
		msg := "Duty missed"
		if a.CustomPenalty != nil {
			hp = *a.CustomPenalty
			msg = "Duty neglected"
			if a.Note != "" {
				msg = "Duty neglected: " + a.Note
			}
		}
		return Result{HPDelta: -hp, Message: msg, Detail: a.DutyID}
	case DutyLateSubmit:
		r := cfg.Duty.LateSubmit
		return Result{XPDelta: r.XP, HPDelta: r.HP, CoinDelta: r.Coins, Message: "Duty logged late", Detail: a.DutyID}
	case AttendanceCheckIn:
		return attendance(cfg, a.Status, "Checked in "+string(a.Status))
	case AttendanceAbsentAction:
		return attendance(cfg, AttendanceAbsent, "Absent")
	case AttendanceNoShowAction:
		return attendance(cfg, AttendanceNoShow, "No-show")
	case AttendanceEarlyLeave:
		return evalEarlyLeave(a, cfg)
	case ShopPurchase:
		return Result{CoinDelta: -a.Price, Message: "Bought " + a.ItemName}
	case ItemUse:
		return Result{Message: "Used " + a.ItemName}
	case ManualAdjust:
		return Result{XPDelta: a.XP, HPDelta: a.HP, CoinDelta: a.Coins, Message: a.Reason}
	case TimeWarpRefund:
		return Result{Message: "Time Warp"}
	case KpiReward:
		r, ok := cfg.KPI[a.Grade]
		grade := a.Grade
		if !ok {
			grade = KPIGradeD
			r = cfg.KPI[KPIGradeD]
		}
		return Result{
			XPDelta:   r.XP,
			HPDelta:   r.HP,
			CoinDelta: r.Coins,
			Message:   fmt.Sprintf("KPI grade %s", grade),
			Detail:    a.Period,
		}
	default:
		return Result{}
	}
}

func evalTaskComplete(a TaskComplete, cfg *Config) Result {
	xp := cfg.DifficultyXP[a.Difficulty]
	hours := a.EstimatedHours
	if hours.IsNegative() {
		hours = decimal.Zero
	}
	xp += hours.Mul(cfg.Multipliers.XPPerHour).Floor().IntPart()
	coins := cfg.Multipliers.CoinPerTask

	msg := "Task completed"
	if isEarly(a.DueDate, a.CompletedAt) {
		xp += cfg.Multipliers.EarlyXPBonus
		coins += cfg.Multipliers.EarlyCoinBonus
		msg = "Task completed early"
	}
	return Result{XPDelta: xp, CoinDelta: coins, Message: msg, Detail: a.TaskID}
}

func isEarly(due, completedAt time.Time) bool {
	if due.IsZero() || completedAt.IsZero() {
		return false
	}
	return due.Sub(completedAt) >= earlyThreshold
}

func assistReward(d DutyRewards) Reward {
	r := d.Assist
	r.XP = max(r.XP, d.Complete.XP)
	r.Coins = max(r.Coins, d.Complete.Coins)
	r.HP = max(r.HP, d.Complete.HP)
	return r
}

func attendance(cfg *Config, status AttendanceStatus, msg string) Result {
	r, ok := cfg.Attendance[status]
	if !ok {
		return Result{}
	}
	return Result{XPDelta: r.XP, HPDelta: r.HP, CoinDelta: r.Coins, Message: msg}
}

func evalEarlyLeave(a AttendanceEarlyLeave, cfg *Config) Result {
	interval := cfg.Penalties.EarlyLeaveIntervalMinutes
	if interval <= 0 || a.MissingMinutes <= 0 {
		return Result{}
	}
	blocks := (a.MissingMinutes + interval - 1) / interval
	return Result{
		HPDelta: -blocks * cfg.Penalties.EarlyLeaveHPPerInterval,
		Message: fmt.Sprintf("Left %d minute(s) early", a.MissingMinutes),
	}
}
