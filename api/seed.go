/*
seed.go - Default catalog and demo scenario loaders

PURPOSE:

	Seeds the shop with the standard items and provides pre-built scenarios
	that populate profiles through the engine itself, so every seeded
	balance has matching log rows.

AVAILABLE SCENARIOS:

	fresh-team:  Three new teammates with a first day of activity
	time-warp:   A user with a late penalty and a Time Warp to undo it

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "time-warp"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, cfg)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios add to whatever is already stored. Profiles that already exist
	are reused, so loading twice doubles the activity.

SEE ALSO:
  - handlers.go: Engine-backed endpoints
  - cmd/server/main.go: Seeds the catalog at startup when SEED_CATALOG=true
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/gamify-engine/game"
)

// =============================================================================
// DEFAULT CATALOG
// =============================================================================

const (
	ItemHealthPotion game.ItemID = "health-potion"
	ItemDutySkip     game.ItemID = "duty-skip"
	ItemTimeWarp     game.ItemID = "time-warp"
)

// DefaultCatalog returns the standard shop items.
func DefaultCatalog() []game.ShopItem {
	return []game.ShopItem{
		{
			ID:          ItemHealthPotion,
			Name:        "Health Potion",
			Description: "Restores 30 HP",
			Price:       50,
			EffectType:  game.EffectHealHP,
			EffectValue: 30,
			Active:      true,
		},
		{
			ID:          ItemDutySkip,
			Name:        "Duty Skip",
			Description: "Covers one missed duty automatically",
			Price:       120,
			EffectType:  game.EffectSkipDuty,
			Active:      true,
		},
		{
			ID:          ItemTimeWarp,
			Name:        "Time Warp",
			Description: "Refunds part of your most recent penalty",
			Price:       150,
			EffectType:  game.EffectRemoveLate,
			Active:      true,
		},
	}
}

// SeedCatalog saves the default items, replacing any with the same IDs.
func SeedCatalog(ctx context.Context, store game.AdminStore) error {
	for _, item := range DefaultCatalog() {
		if err := store.SaveItem(ctx, item); err != nil {
			return fmt.Errorf("seed item %s: %w", item.ID, err)
		}
	}
	return nil
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-team",
		Name:        "Fresh Team",
		Description: "Three new teammates: one finishes a hard task early, one checks in late, one covers a duty",
	},
	{
		ID:          "time-warp",
		Name:        "Time Warp",
		Description: "A user who was late on a task and owns a Time Warp to refund it",
	},
}

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": nil})
}

// LoadScenario runs a scenario's actions through the engine.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, ok := h.config(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := SeedCatalog(ctx, h.Store); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed catalog", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-team":
		err = h.loadFreshTeamScenario(ctx, cfg)
	case "time-warp":
		err = h.loadTimeWarpScenario(ctx, cfg)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q not found", req.ScenarioID))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Logger.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type step struct {
	user   game.UserID
	action game.Action
}

func (h *Handler) runSteps(ctx context.Context, cfg *game.Config, steps []step) error {
	for _, s := range steps {
		if err := h.Engine.EnsureProfile(ctx, s.user, cfg); err != nil {
			return err
		}
		if _, err := h.Engine.Process(ctx, s.user, s.action, cfg); err != nil {
			return fmt.Errorf("%s %s: %w", s.user, s.action.Kind(), err)
		}
	}
	return nil
}

func (h *Handler) loadFreshTeamScenario(ctx context.Context, cfg *game.Config) error {
	now := h.Engine.Now()
	return h.runSteps(ctx, cfg, []step{
		{"alice", game.AttendanceCheckIn{Status: game.AttendanceOnTime}},
		{"alice", game.TaskComplete{
			TaskID:         "onboarding-doc",
			Difficulty:     game.DifficultyHard,
			EstimatedHours: decimal.NewFromInt(4),
			DueDate:        now.Add(72 * time.Hour),
			CompletedAt:    now,
		}},
		{"bob", game.AttendanceCheckIn{Status: game.AttendanceLate}},
		{"bob", game.TaskComplete{
			TaskID:         "fix-login",
			Difficulty:     game.DifficultyMedium,
			EstimatedHours: decimal.NewFromFloat(1.5),
			DueDate:        now,
			CompletedAt:    now,
		}},
		{"carol", game.AttendanceCheckIn{Status: game.AttendanceOnTime}},
		{"carol", game.DutyAssist{DutyID: "kitchen-rota"}},
	})
}

func (h *Handler) loadTimeWarpScenario(ctx context.Context, cfg *game.Config) error {
	const user game.UserID = "dana"
	if err := h.runSteps(ctx, cfg, []step{
		{user, game.KpiReward{Grade: game.KPIGradeS, Period: "Q1"}},
		{user, game.TaskLate{TaskID: "quarterly-report", DaysLate: 2}},
	}); err != nil {
		return err
	}
	_, err := h.Engine.BuyItemByID(ctx, user, ItemTimeWarp, cfg)
	return err
}
