package game

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACTION KIND - Closed set of triggers the engine understands
// =============================================================================

type ActionKind string

const (
	KindTaskComplete         ActionKind = "task_complete"
	KindTaskLate             ActionKind = "task_late"
	KindDutyComplete         ActionKind = "duty_complete"
	KindDutyAssist           ActionKind = "duty_assist"
	KindDutyMissed           ActionKind = "duty_missed"
	KindDutyLateSubmit       ActionKind = "duty_late_submit"
	KindAttendanceCheckIn    ActionKind = "attendance_check_in"
	KindAttendanceAbsent     ActionKind = "attendance_absent"
	KindAttendanceNoShow     ActionKind = "attendance_no_show"
	KindAttendanceEarlyLeave ActionKind = "attendance_early_leave"
	KindShopPurchase         ActionKind = "shop_purchase"
	KindItemUse              ActionKind = "item_use"
	KindManualAdjust         ActionKind = "manual_adjust"
	KindTimeWarpRefund       ActionKind = "time_warp_refund"
	KindKpiReward            ActionKind = "kpi_reward"

	// KindLevelUp only appears in the audit log, never as an input action.
	KindLevelUp ActionKind = "level_up"
)

// AllActionKinds lists every input kind, in declaration order.
var AllActionKinds = []ActionKind{
	KindTaskComplete, KindTaskLate,
	KindDutyComplete, KindDutyAssist, KindDutyMissed, KindDutyLateSubmit,
	KindAttendanceCheckIn, KindAttendanceAbsent, KindAttendanceNoShow, KindAttendanceEarlyLeave,
	KindShopPurchase, KindItemUse, KindManualAdjust, KindTimeWarpRefund, KindKpiReward,
}

// ParseActionKind validates a kind string coming from outside the engine.
func ParseActionKind(s string) (ActionKind, bool) {
	k := ActionKind(s)
	if k == KindLevelUp {
		return k, true
	}
	for _, known := range AllActionKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// =============================================================================
// ACTION - Sealed sum type, one variant per kind
// =============================================================================

// Action is a single real-world event together with its typed context.
// The set of implementations is closed: only this package can add variants.
type Action interface {
	Kind() ActionKind
	isAction()
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyEpic   Difficulty = "epic"
)

type AttendanceStatus string

const (
	AttendanceOnTime AttendanceStatus = "on_time"
	AttendanceLate   AttendanceStatus = "late"
	AttendanceAbsent AttendanceStatus = "absent"
	AttendanceNoShow AttendanceStatus = "no_show"
)

// KPIGrade is a coarse periodic performance tier. KPIGradeD is the lowest
// grade and the fallback for anything unrecognised.
type KPIGrade string

const (
	KPIGradeS KPIGrade = "S"
	KPIGradeA KPIGrade = "A"
	KPIGradeB KPIGrade = "B"
	KPIGradeC KPIGrade = "C"
	KPIGradeD KPIGrade = "D"
)

// TaskComplete is emitted when a task is finished.
type TaskComplete struct {
	TaskID         string
	Difficulty     Difficulty
	EstimatedHours decimal.Decimal
	DueDate        time.Time
	CompletedAt    time.Time
}

// TaskLate is emitted for an overdue task. CustomPenalty lets the caller pass
// an already escalated HP penalty (positive number).
type TaskLate struct {
	TaskID        string
	DaysLate      int
	CustomPenalty *int64
}

type DutyComplete struct{ DutyID string }

// DutyAssist rewards covering someone else's duty.
type DutyAssist struct{ DutyID string }

// DutyMissed carries an optional externally computed negligence penalty.
type DutyMissed struct {
	DutyID        string
	CustomPenalty *int64
	Note          string
}

type DutyLateSubmit struct{ DutyID string }

type AttendanceCheckIn struct{ Status AttendanceStatus }

type AttendanceAbsentAction struct{}

type AttendanceNoShowAction struct{}

type AttendanceEarlyLeave struct{ MissingMinutes int64 }

type ShopPurchase struct {
	ItemName string
	Price    int64
}

type ItemUse struct{ ItemName string }

// ManualAdjust deltas are applied verbatim. Reason is mandatory upstream.
type ManualAdjust struct {
	XP     int64
	HP     int64
	Coins  int64
	Reason string
}

type TimeWarpRefund struct{}

type KpiReward struct {
	Grade  KPIGrade
	Period string
}

func (TaskComplete) Kind() ActionKind           { return KindTaskComplete }
func (TaskLate) Kind() ActionKind               { return KindTaskLate }
func (DutyComplete) Kind() ActionKind           { return KindDutyComplete }
func (DutyAssist) Kind() ActionKind             { return KindDutyAssist }
func (DutyMissed) Kind() ActionKind             { return KindDutyMissed }
func (DutyLateSubmit) Kind() ActionKind         { return KindDutyLateSubmit }
func (AttendanceCheckIn) Kind() ActionKind      { return KindAttendanceCheckIn }
func (AttendanceAbsentAction) Kind() ActionKind { return KindAttendanceAbsent }
func (AttendanceNoShowAction) Kind() ActionKind { return KindAttendanceNoShow }
func (AttendanceEarlyLeave) Kind() ActionKind   { return KindAttendanceEarlyLeave }
func (ShopPurchase) Kind() ActionKind           { return KindShopPurchase }
func (ItemUse) Kind() ActionKind                { return KindItemUse }
func (ManualAdjust) Kind() ActionKind           { return KindManualAdjust }
func (TimeWarpRefund) Kind() ActionKind         { return KindTimeWarpRefund }
func (KpiReward) Kind() ActionKind              { return KindKpiReward }

func (TaskComplete) isAction()           {}
func (TaskLate) isAction()               {}
func (DutyComplete) isAction()           {}
func (DutyAssist) isAction()             {}
func (DutyMissed) isAction()             {}
func (DutyLateSubmit) isAction()         {}
func (AttendanceCheckIn) isAction()      {}
func (AttendanceAbsentAction) isAction() {}
func (AttendanceNoShowAction) isAction() {}
func (AttendanceEarlyLeave) isAction()   {}
func (ShopPurchase) isAction()           {}
func (ItemUse) isAction()                {}
func (ManualAdjust) isAction()           {}
func (TimeWarpRefund) isAction()         {}
func (KpiReward) isAction()              {}
