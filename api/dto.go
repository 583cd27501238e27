/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the game model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Profile:   ProfileDTO
  Actions:   ActionRequest, BatchActionRequest, OutcomeDTO, RecipientDTO
  Shop:      ShopItemDTO, InventoryDTO, PurchaseRequest, PurchaseDTO
  Admin:     AdjustmentRequest
  History:   LogEntryDTO, LogPageDTO, SummaryDTO

VALIDATION:
  ActionRequest.ToAction checks that the kind is known and that enum fields
  parse. Rule-level validation stays in the game package.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/config.go: ConfigJSON, served as-is by the config endpoints
*/
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/gamify-engine/game"
)

// =============================================================================
// PROFILE
// =============================================================================

// ProfileDTO represents a user's game state in API responses.
type ProfileDTO struct {
	UserID    string `json:"user_id"`
	XP        int64  `json:"xp"`
	HP        int64  `json:"hp"`
	MaxHP     int64  `json:"max_hp"`
	Coins     int64  `json:"coins"`
	Level     int64  `json:"level"`
	XPToNext  int64  `json:"xp_to_next_level"`
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func toProfileDTO(p game.Profile, cfg *game.Config) ProfileDTO {
	dto := ProfileDTO{
		UserID:   string(p.UserID),
		XP:       p.XP,
		HP:       p.HP,
		MaxHP:    p.MaxHP,
		Coins:    p.Coins,
		Level:    p.Level,
		XPToNext: game.XPToNextLevel(p.XP, cfg),
		Version:  p.Version,
	}
	if !p.UpdatedAt.IsZero() {
		dto.UpdatedAt = p.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// ACTIONS
// =============================================================================

// ActionRequest is a tagged union: Kind selects which of the other fields
// are read.
type ActionRequest struct {
	Kind string `json:"kind"`

	// task_complete, task_late
	TaskID         string           `json:"task_id,omitempty"`
	Difficulty     string           `json:"difficulty,omitempty"`
	EstimatedHours *decimal.Decimal `json:"estimated_hours,omitempty"`
	DueDate        *time.Time       `json:"due_date,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	DaysLate       int              `json:"days_late,omitempty"`
	CustomPenalty  *int64           `json:"custom_penalty,omitempty"`

	// duty_*
	DutyID string `json:"duty_id,omitempty"`
	Note   string `json:"note,omitempty"`

	// attendance_*
	Status         string `json:"status,omitempty"`
	MissingMinutes int64  `json:"missing_minutes,omitempty"`

	// shop_purchase, item_use
	ItemName string `json:"item_name,omitempty"`
	Price    int64  `json:"price,omitempty"`

	// manual_adjust
	XP     int64  `json:"xp,omitempty"`
	HP     int64  `json:"hp,omitempty"`
	Coins  int64  `json:"coins,omitempty"`
	Reason string `json:"reason,omitempty"`

	// kpi_reward
	Grade  string `json:"grade,omitempty"`
	Period string `json:"period,omitempty"`
}

// ToAction converts the request into a typed game.Action. now fills in a
// missing completed_at.
func (r ActionRequest) ToAction(now time.Time) (game.Action, error) {
	kind, ok := game.ParseActionKind(r.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown action kind %q", r.Kind)
	}

	switch kind {
	case game.KindTaskComplete:
		a := game.TaskComplete{TaskID: r.TaskID, Difficulty: game.Difficulty(strings.ToLower(r.Difficulty)), CompletedAt: now}
		switch a.Difficulty {
		case game.DifficultyEasy, game.DifficultyMedium, game.DifficultyHard, game.DifficultyEpic:
		default:
			return nil, fmt.Errorf("unknown difficulty %q", r.Difficulty)
		}
		if r.EstimatedHours != nil {
			if r.EstimatedHours.IsNegative() {
				return nil, fmt.Errorf("estimated_hours must not be negative")
			}
			a.EstimatedHours = *r.EstimatedHours
		}
		if r.DueDate != nil {
			a.DueDate = *r.DueDate
		}
		if r.CompletedAt != nil {
			a.CompletedAt = *r.CompletedAt
		}
		return a, nil
	case game.KindTaskLate:
		if r.DaysLate < 0 {
			return nil, fmt.Errorf("days_late must not be negative")
		}
		return game.TaskLate{TaskID: r.TaskID, DaysLate: r.DaysLate, CustomPenalty: r.CustomPenalty}, nil
	case game.KindDutyComplete:
		return game.DutyComplete{DutyID: r.DutyID}, nil
	case game.KindDutyAssist:
		return game.DutyAssist{DutyID: r.DutyID}, nil
	case game.KindDutyMissed:
		return game.DutyMissed{DutyID: r.DutyID, CustomPenalty: r.CustomPenalty, Note: r.Note}, nil
	case game.KindDutyLateSubmit:
		return game.DutyLateSubmit{DutyID: r.DutyID}, nil
	case game.KindAttendanceCheckIn:
		status := game.AttendanceStatus(strings.ToLower(r.Status))
		switch status {
		case game.AttendanceOnTime, game.AttendanceLate, game.AttendanceAbsent, game.AttendanceNoShow:
		default:
			return nil, fmt.Errorf("unknown attendance status %q", r.Status)
		}
		return game.AttendanceCheckIn{Status: status}, nil
	case game.KindAttendanceAbsent:
		return game.AttendanceAbsentAction{}, nil
	case game.KindAttendanceNoShow:
		return game.AttendanceNoShowAction{}, nil
	case game.KindAttendanceEarlyLeave:
		return game.AttendanceEarlyLeave{MissingMinutes: r.MissingMinutes}, nil
	case game.KindShopPurchase:
		return game.ShopPurchase{ItemName: r.ItemName, Price: r.Price}, nil
	case game.KindItemUse:
		return game.ItemUse{ItemName: r.ItemName}, nil
	case game.KindManualAdjust:
		return game.ManualAdjust{XP: r.XP, HP: r.HP, Coins: r.Coins, Reason: r.Reason}, nil
	case game.KindTimeWarpRefund:
		return game.TimeWarpRefund{}, nil
	case game.KindKpiReward:
		return game.KpiReward{Grade: game.KPIGrade(strings.ToUpper(r.Grade)), Period: r.Period}, nil
	default:
		return nil, fmt.Errorf("action kind %q can't be submitted directly", r.Kind)
	}
}

// BatchActionRequest applies one action to several users.
type BatchActionRequest struct {
	UserIDs []string      `json:"user_ids"`
	Action  ActionRequest `json:"action"`
}

// OutcomeDTO reports what a mutation did. Applied is false for no-op
// actions and for missed duties covered by a passive item (CoveredBy set).
type OutcomeDTO struct {
	Applied      bool          `json:"applied"`
	XPDelta      int64         `json:"xp_delta"`
	HPDelta      int64         `json:"hp_delta"`
	CoinDelta    int64         `json:"coin_delta"`
	Message      string        `json:"message,omitempty"`
	Before       *ProfileDTO   `json:"before,omitempty"`
	After        *ProfileDTO   `json:"after,omitempty"`
	LevelUp      bool          `json:"level_up"`
	LevelUpBonus int64         `json:"level_up_bonus,omitempty"`
	Entries      []LogEntryDTO `json:"entries,omitempty"`
	CoveredBy    string        `json:"covered_by,omitempty"`
}

func toOutcomeDTO(out *game.Outcome, cfg *game.Config) OutcomeDTO {
	if out == nil {
		return OutcomeDTO{}
	}
	before := toProfileDTO(out.Before, cfg)
	after := toProfileDTO(out.After, cfg)
	return OutcomeDTO{
		Applied:      true,
		XPDelta:      out.Result.XPDelta,
		HPDelta:      out.Result.HPDelta,
		CoinDelta:    out.Result.CoinDelta,
		Message:      out.Result.Message,
		Before:       &before,
		After:        &after,
		LevelUp:      out.LevelUp,
		LevelUpBonus: out.LevelUpBonus,
		Entries:      toLogEntryDTOs(out.Entries),
	}
}

// RecipientDTO is one user's result within a batch.
type RecipientDTO struct {
	UserID  string     `json:"user_id"`
	Outcome OutcomeDTO `json:"outcome"`
	Error   string     `json:"error,omitempty"`
}

// =============================================================================
// SHOP
// =============================================================================

type ShopItemDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	EffectType  string `json:"effect_type"`
	EffectValue int64  `json:"effect_value"`
	Active      bool   `json:"active"`
}

func toShopItemDTO(it game.ShopItem) ShopItemDTO {
	return ShopItemDTO{
		ID:          string(it.ID),
		Name:        it.Name,
		Description: it.Description,
		Price:       it.Price,
		EffectType:  string(it.EffectType),
		EffectValue: it.EffectValue,
		Active:      it.Active,
	}
}

func (d ShopItemDTO) toItem() game.ShopItem {
	return game.ShopItem{
		ID:          game.ItemID(d.ID),
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		EffectType:  game.EffectType(d.EffectType),
		EffectValue: d.EffectValue,
		Active:      d.Active,
	}
}

type InventoryDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ItemID    string `json:"item_id"`
	IsUsed    bool   `json:"is_used"`
	UsedAt    string `json:"used_at,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toInventoryDTO(e game.InventoryEntry) InventoryDTO {
	dto := InventoryDTO{
		ID:        string(e.ID),
		UserID:    string(e.UserID),
		ItemID:    string(e.ItemID),
		IsUsed:    e.IsUsed,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if e.UsedAt != nil {
		dto.UsedAt = e.UsedAt.Format(time.RFC3339)
	}
	return dto
}

type PurchaseRequest struct {
	ItemID string `json:"item_id"`
}

type PurchaseDTO struct {
	Inventory InventoryDTO `json:"inventory"`
	Outcome   OutcomeDTO   `json:"outcome"`
}

// =============================================================================
// ADMIN
// =============================================================================

// AdjustmentRequest is an admin override. Omitted deltas are left alone.
type AdjustmentRequest struct {
	UserID  string `json:"user_id"`
	XP      *int64 `json:"xp,omitempty"`
	HP      *int64 `json:"hp,omitempty"`
	Coins   *int64 `json:"coins,omitempty"`
	Reason  string `json:"reason"`
	ActorID string `json:"actor_id"`
}

// =============================================================================
// HISTORY
// =============================================================================

type LogEntryDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Kind        string `json:"kind"`
	XPDelta     int64  `json:"xp_delta"`
	HPDelta     int64  `json:"hp_delta"`
	CoinDelta   int64  `json:"coin_delta"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	RelatedID   string `json:"related_id,omitempty"`
}

func toLogEntryDTOs(entries []game.LogEntry) []LogEntryDTO {
	dtos := make([]LogEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LogEntryDTO{
			ID:          string(e.ID),
			UserID:      string(e.UserID),
			Kind:        string(e.Kind),
			XPDelta:     e.XPDelta,
			HPDelta:     e.HPDelta,
			CoinDelta:   e.CoinDelta,
			Description: e.Description,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339Nano),
			RelatedID:   string(e.RelatedID),
		}
	}
	return dtos
}

type LogPageDTO struct {
	Entries  []LogEntryDTO `json:"entries"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	HasMore  bool          `json:"has_more"`
}

type SummaryDTO struct {
	Income  int64            `json:"income"`
	Expense int64            `json:"expense"`
	XP      int64            `json:"xp"`
	Trend   []TrendBucketDTO `json:"trend"`
}

type TrendBucketDTO struct {
	Start string `json:"start"`
	XP    int64  `json:"xp"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
