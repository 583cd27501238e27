/*
Package factory provides JSON to Go game config conversion.

PURPOSE:
  Converts the externally stored game config (a key → nested-value JSON
  document) into a game.Config snapshot, and back. Admins tune rewards and
  penalties in JSON; the engine only ever sees the typed struct.

JSON SCHEMA:
  {
    "version": 3,
    "multipliers": {"xp_per_hour": 20, "coin_per_task": 10,
                    "early_xp_bonus": 50, "early_coin_bonus": 20},
    "difficulty_xp": {"easy": 50, "medium": 100, "hard": 200, "epic": 400},
    "penalties": {"base_late_hp": 10, "coin_per_late_day": 5,
                  "base_missed_duty_hp": 15,
                  "early_leave_interval_minutes": 30,
                  "early_leave_hp_per_interval": 2},
    "duty": {"complete": {"xp": 30, "coins": 5},
             "assist": {"xp": 50, "coins": 10},
             "late_submit": {"xp": 10, "hp": -3}},
    "attendance": {"on_time": {"xp": 10, "coins": 2}, "late": {"hp": -5}},
    "kpi": {"S": {"xp": 500, "coins": 200}, "D": {}},
    "leveling": {"base_xp_per_level": 1000, "level_up_bonus_coins": 50,
                 "max_hp": 100},
    "items": {"refund_percent": 0.5, "refund_cap_hp": 20,
              "refundable_kinds": ["task_late", "duty_missed"]}
  }

DEFAULTS:
  Parsing starts from game.DefaultConfig(), so any section or key missing
  from the document keeps its default value. Map sections merge key by key.

VALIDATION:
  - leveling.base_xp_per_level and leveling.max_hp must be positive
  - items.refund_percent must be within [0, 1]
  - duty.assist must pay at least duty.complete
  - refundable_kinds, difficulty, attendance and KPI keys must be known

SEE ALSO:
  - game/config.go: Config type definition
  - store/sqlite/sqlite.go: Stores the JSON document, versioned
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/gamify-engine/game"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConfigJSON is the JSON representation of a game config.
type ConfigJSON struct {
	Version      int64                 `json:"version"`
	Multipliers  MultipliersJSON       `json:"multipliers"`
	DifficultyXP map[string]int64      `json:"difficulty_xp"`
	Penalties    PenaltiesJSON         `json:"penalties"`
	Duty         DutyJSON              `json:"duty"`
	Attendance   map[string]RewardJSON `json:"attendance"`
	KPI          map[string]RewardJSON `json:"kpi"`
	Leveling     LevelingJSON          `json:"leveling"`
	Items        ItemsJSON             `json:"items"`
}

type MultipliersJSON struct {
	XPPerHour      decimal.Decimal `json:"xp_per_hour"`
	CoinPerTask    int64           `json:"coin_per_task"`
	EarlyXPBonus   int64           `json:"early_xp_bonus"`
	EarlyCoinBonus int64           `json:"early_coin_bonus"`
}

type PenaltiesJSON struct {
	BaseLateHP                int64 `json:"base_late_hp"`
	CoinPerLateDay            int64 `json:"coin_per_late_day"`
	BaseMissedDutyHP          int64 `json:"base_missed_duty_hp"`
	EarlyLeaveIntervalMinutes int64 `json:"early_leave_interval_minutes"`
	EarlyLeaveHPPerInterval   int64 `json:"early_leave_hp_per_interval"`
}

type RewardJSON struct {
	XP    int64 `json:"xp,omitempty"`
	HP    int64 `json:"hp,omitempty"`
	Coins int64 `json:"coins,omitempty"`
}

type DutyJSON struct {
	Complete   RewardJSON `json:"complete"`
	Assist     RewardJSON `json:"assist"`
	LateSubmit RewardJSON `json:"late_submit"`
}

type LevelingJSON struct {
	BaseXPPerLevel    int64 `json:"base_xp_per_level"`
	LevelUpBonusCoins int64 `json:"level_up_bonus_coins"`
	MaxHP             int64 `json:"max_hp"`
}

type ItemsJSON struct {
	RefundPercent   decimal.Decimal `json:"refund_percent"`
	RefundCapHP     int64           `json:"refund_cap_hp"`
	RefundableKinds []string        `json:"refundable_kinds"`
}

// =============================================================================
// PARSING
// =============================================================================

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid game config")

// ParseConfig parses a JSON document into a validated Config.
func ParseConfig(data []byte) (*game.Config, error) {
	cj := ToJSON(game.DefaultConfig())
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return FromJSON(cj)
}

// FromMap converts a decoded key → nested-value map, as handed out by a
// config store, into a validated Config.
func FromMap(m map[string]any) (*game.Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config map: %w", err)
	}
	return ParseConfig(data)
}

// FromJSON converts ConfigJSON to a validated game.Config.
func FromJSON(cj ConfigJSON) (*game.Config, error) {
	cfg := &game.Config{
		Version: cj.Version,
		Multipliers: game.Multipliers{
			XPPerHour:      cj.Multipliers.XPPerHour,
			CoinPerTask:    cj.Multipliers.CoinPerTask,
			EarlyXPBonus:   cj.Multipliers.EarlyXPBonus,
			EarlyCoinBonus: cj.Multipliers.EarlyCoinBonus,
		},
		DifficultyXP: make(map[game.Difficulty]int64, len(cj.DifficultyXP)),
		Penalties: game.Penalties{
			BaseLateHP:                cj.Penalties.BaseLateHP,
			CoinPerLateDay:            cj.Penalties.CoinPerLateDay,
			BaseMissedDutyHP:          cj.Penalties.BaseMissedDutyHP,
			EarlyLeaveIntervalMinutes: cj.Penalties.EarlyLeaveIntervalMinutes,
			EarlyLeaveHPPerInterval:   cj.Penalties.EarlyLeaveHPPerInterval,
		},
		Duty: game.DutyRewards{
			Complete:   cj.Duty.Complete.reward(),
			Assist:     cj.Duty.Assist.reward(),
			LateSubmit: cj.Duty.LateSubmit.reward(),
		},
		Attendance: make(map[game.AttendanceStatus]game.Reward, len(cj.Attendance)),
		KPI:        make(map[game.KPIGrade]game.Reward, len(cj.KPI)),
		Leveling: game.Leveling{
			BaseXPPerLevel:    cj.Leveling.BaseXPPerLevel,
			LevelUpBonusCoins: cj.Leveling.LevelUpBonusCoins,
			MaxHP:             cj.Leveling.MaxHP,
		},
		Items: game.ItemMechanics{
			RefundPercent: cj.Items.RefundPercent,
			RefundCapHP:   cj.Items.RefundCapHP,
		},
	}

	var errs []error
	for k, v := range cj.DifficultyXP {
		d, ok := parseDifficulty(k)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown difficulty %q", k))
			continue
		}
		cfg.DifficultyXP[d] = v
	}
	for k, v := range cj.Attendance {
		s, ok := parseAttendance(k)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown attendance status %q", k))
			continue
		}
		cfg.Attendance[s] = v.reward()
	}
	for k, v := range cj.KPI {
		g, ok := parseGrade(k)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown KPI grade %q", k))
			continue
		}
		cfg.KPI[g] = v.reward()
	}
	for _, k := range cj.Items.RefundableKinds {
		kind, ok := game.ParseActionKind(k)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown refundable kind %q", k))
			continue
		}
		cfg.Items.RefundableKinds = append(cfg.Items.RefundableKinds, kind)
	}

	errs = append(errs, Validate(cfg)...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, nil
}

// Validate checks the cross-field rules of cfg.
func Validate(cfg *game.Config) []error {
	var errs []error
	if cfg.Leveling.BaseXPPerLevel <= 0 {
		errs = append(errs, errors.New("leveling.base_xp_per_level must be positive"))
	}
	if cfg.Leveling.MaxHP <= 0 {
		errs = append(errs, errors.New("leveling.max_hp must be positive"))
	}
	if cfg.Items.RefundPercent.IsNegative() || cfg.Items.RefundPercent.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("items.refund_percent must be within [0, 1]"))
	}
	if cfg.Multipliers.XPPerHour.IsNegative() {
		errs = append(errs, errors.New("multipliers.xp_per_hour must not be negative"))
	}
	c, a := cfg.Duty.Complete, cfg.Duty.Assist
	if a.XP < c.XP || a.Coins < c.Coins {
		errs = append(errs, errors.New("duty.assist must pay at least duty.complete"))
	}
	return errs
}

// ToJSON converts a Config to ConfigJSON.
func ToJSON(cfg *game.Config) ConfigJSON {
	cj := ConfigJSON{
		Version: cfg.Version,
		Multipliers: MultipliersJSON{
			XPPerHour:      cfg.Multipliers.XPPerHour,
			CoinPerTask:    cfg.Multipliers.CoinPerTask,
			EarlyXPBonus:   cfg.Multipliers.EarlyXPBonus,
			EarlyCoinBonus: cfg.Multipliers.EarlyCoinBonus,
		},
		DifficultyXP: make(map[string]int64, len(cfg.DifficultyXP)),
		Penalties: PenaltiesJSON{
			BaseLateHP:                cfg.Penalties.BaseLateHP,
			CoinPerLateDay:            cfg.Penalties.CoinPerLateDay,
			BaseMissedDutyHP:          cfg.Penalties.BaseMissedDutyHP,
			EarlyLeaveIntervalMinutes: cfg.Penalties.EarlyLeaveIntervalMinutes,
			EarlyLeaveHPPerInterval:   cfg.Penalties.EarlyLeaveHPPerInterval,
		},
		Duty: DutyJSON{
			Complete:   rewardJSON(cfg.Duty.Complete),
			Assist:     rewardJSON(cfg.Duty.Assist),
			LateSubmit: rewardJSON(cfg.Duty.LateSubmit),
		},
		Attendance: make(map[string]RewardJSON, len(cfg.Attendance)),
		KPI:        make(map[string]RewardJSON, len(cfg.KPI)),
		Leveling: LevelingJSON{
			BaseXPPerLevel:    cfg.Leveling.BaseXPPerLevel,
			LevelUpBonusCoins: cfg.Leveling.LevelUpBonusCoins,
			MaxHP:             cfg.Leveling.MaxHP,
		},
		Items: ItemsJSON{
			RefundPercent: cfg.Items.RefundPercent,
			RefundCapHP:   cfg.Items.RefundCapHP,
		},
	}
	for k, v := range cfg.DifficultyXP {
		cj.DifficultyXP[string(k)] = v
	}
	for k, v := range cfg.Attendance {
		cj.Attendance[string(k)] = rewardJSON(v)
	}
	for k, v := range cfg.KPI {
		cj.KPI[string(k)] = rewardJSON(v)
	}
	for _, k := range cfg.Items.RefundableKinds {
		cj.Items.RefundableKinds = append(cj.Items.RefundableKinds, string(k))
	}
	return cj
}

// Marshal encodes cfg as a JSON document accepted by ParseConfig.
func Marshal(cfg *game.Config) ([]byte, error) {
	return json.Marshal(ToJSON(cfg))
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func (r RewardJSON) reward() game.Reward {
	return game.Reward{XP: r.XP, HP: r.HP, Coins: r.Coins}
}

func rewardJSON(r game.Reward) RewardJSON {
	return RewardJSON{XP: r.XP, HP: r.HP, Coins: r.Coins}
}

func parseDifficulty(s string) (game.Difficulty, bool) {
	switch d := game.Difficulty(s); d {
	case game.DifficultyEasy, game.DifficultyMedium, game.DifficultyHard, game.DifficultyEpic:
		return d, true
	default:
		return "", false
	}
}

func parseAttendance(s string) (game.AttendanceStatus, bool) {
	switch a := game.AttendanceStatus(s); a {
	case game.AttendanceOnTime, game.AttendanceLate, game.AttendanceAbsent, game.AttendanceNoShow:
		return a, true
	default:
		return "", false
	}
}

func parseGrade(s string) (game.KPIGrade, bool) {
	switch g := game.KPIGrade(s); g {
	case game.KPIGradeS, game.KPIGradeA, game.KPIGradeB, game.KPIGradeC, game.KPIGradeD:
		return g, true
	default:
		return "", false
	}
}
