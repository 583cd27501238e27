/*
handlers.go - HTTP API handlers for the gamification engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the game package.

ENDPOINTS:
  Profiles:
    POST   /api/users/{id}                   Create starting profile (idempotent)
    GET    /api/users/{id}                   Profile with xp to next level
    POST   /api/users/{id}/actions           Evaluate and apply one action
    POST   /api/actions/batch                Apply one action to many users

  Shop & Inventory:
    GET    /api/shop/items                   Active catalog
    GET    /api/users/{id}/inventory         User's items
    POST   /api/users/{id}/purchases         Buy an item
    POST   /api/inventory/{id}/use           Use an item

  History:
    GET    /api/users/{id}/logs              Paginated audit log (?page, page_size, filter)
    GET    /api/users/{id}/summary           Income/expense/XP trend (?bucket=day|week, limit)

  Admin:
    POST   /api/admin/adjustments            Raw delta override
    PUT    /api/admin/items                  Create or replace a catalog item
    GET    /api/admin/config                 Current config document
    PUT    /api/admin/config                 Store a new config version

REQUEST FLOW:
  1. Parse HTTP request
  2. Take a config snapshot from the store
  3. Call the engine
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with the status from statusFor:
  - 400: Validation errors, invalid input
  - 402: Insufficient funds
  - 404: User, item or inventory entry not found
  - 409: Item already used, conflict retries exhausted
  - 422: Passive item, unsupported effect, nothing to refund
  - 500: Persistence and internal errors

SECURITY NOTE:
  No authentication. actor_id on admin adjustments is trusted as sent.

SEE ALSO:
  - dto.go: Request/response data structures
  - seed.go: Default catalog and demo scenarios
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/gamify-engine/factory"
	"github.com/warp/gamify-engine/game"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers need from a backend.
type Store interface {
	game.TxStore
	game.AdminStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Store
	Engine *game.Engine
	Logger zerolog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a handler whose engine runs against store.
func NewHandler(store Store, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:  store,
		Engine: game.NewEngine(store, logger),
		Logger: logger,
	}
}

// config returns the config snapshot used for the whole request.
func (h *Handler) config(w http.ResponseWriter, r *http.Request) (*game.Config, bool) {
	cfg, err := h.Store.CurrentConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load config", err)
		return nil, false
	}
	return cfg, true
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// CreateProfile creates a starting profile. Existing profiles are untouched.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	userID := game.UserID(chi.URLParam(r, "id"))
	cfg, ok := h.config(w, r)
	if !ok {
		return
	}
	if err := h.Engine.EnsureProfile(r.Context(), userID, cfg); err != nil {
		writeEngineError(w, "Failed to create profile", err)
		return
	}
	p, err := h.Store.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileDTO(p, cfg))
}

// GetProfile returns a user's profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := game.UserID(chi.URLParam(r, "id"))
	cfg, ok := h.config(w, r)
	if !ok {
		return
	}
	p, err := h.Store.GetProfile(r.Context(), userID)
	if errors.Is(err, game.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Profile not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p, cfg))
}

// =============================================================================
// ACTION HANDLERS
// =============================================================================

// SubmitAction evaluates one action for a user and applies it.
// A no-op action answers 200 with applied=false. A duty_missed action first
// consumes an unused skip_duty item if the user owns one; the penalty is then
// waived and covered_by names the consumed entry.
func (h *Handler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	userID := game.UserID(chi.URLParam(r, "id"))

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	action, err := req.ToAction(h.Engine.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid action", err)
		return
	}
	cfg, ok := h.config(w, r)
	if !ok {
		return
	}

	out, covered, err := h.Engine.Trigger(r.Context(), userID, action, cfg)
	if err != nil {
		writeEngineError(w, "Failed to apply action", err)
		return
	}
	if covered != nil {
		writeJSON(w, http.StatusOK, OutcomeDTO{CoveredBy: string(covered.ID)})
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeDTO(out, cfg))
}

// SubmitBatch applies one action to every listed user. Per-user failures are
// reported inline; the response is 200 unless the request itself is bad.
// Missed duties are covered per recipient exactly as in SubmitAction.
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "user_ids is required", nil)
		return
	}
	action, err := req.Action.ToAction(h.Engine.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid action", err)
		return
	}
	cfg, ok := h.config(w, r)
	if !ok {
		return
	}

	ids := make([]game.UserID, len(req.UserIDs))
	for i, id := range req.UserIDs {
		ids[i] = game.UserID(id)
	}
	results, _ := h.Engine.ProcessEach(r.Context(), ids, action, cfg)

	dtos := make([]RecipientDTO, len(results))
	for i, res := range results {
		dtos[i] = RecipientDTO{UserID: string(res.UserID), Outcome: toOutcomeDTO(res.Outcome, cfg)}
		if res.CoveredBy != nil {
			dtos[i].Outcome.CoveredBy = string(res.CoveredBy.ID)
		}
		if res.Err != nil {
			dtos[i].Error = res.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SHOP HANDLERS
// =============================================================================

// ListShopItems returns the active catalog, cheapest first.
func (h *Handler) ListShopItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListActiveItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}
	dtos := make([]ShopItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toShopItemDTO(it)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInventory returns every inventory entry a user owns, used or not.
func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	userID := game.UserID(chi.URLParam(r, "id"))
	entries, err := h.Store.ListInventory(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list inventory", err)
		return
	}
	dtos := make([]InventoryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toInventoryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// BuyItem purchases one catalog item for a user.
func (h *Handler) BuyItem(w http.ResponseWriter, r *http.Request) {
	userID := game.UserID(chi.URLParam(r, "id"))

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "item_id is required", nil)
		return
	}
	cfg, ok := h.config(w, r)
	if !ok {
		return
	}

	purchase, err := h.Engine.BuyItemByID(r.Context(), userID, game.ItemID(req.ItemID), cfg)
	if err != nil {
		writeEngineError(w, "Purchase failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, PurchaseDTO{
		Inventory: toInventoryDTO(purchase.Entry),
		Outcome:   toOutcomeDTO(purchase.Outcome, cfg),
	})
}

// UseItem consumes an inventory entry.
func (h *Handler) UseItem(w http.ResponseWriter, r *http.Request) {
	id := game.InventoryID(chi.URLParam(r, "id"))
	cfg, ok := h.config(w, r)
	if !ok {
		return
	}
	out, err := h.Engine.UseItemByID(r.Context(), id, cfg)
	if err != nil {
		writeEngineError(w, "Item use failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeDTO(out, cfg))
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

// GetLogs returns one page of a user's audit log, newest first.
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	userID := game.UserID(chi.URLParam(r, "id"))
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page", err)
		return
	}
	pageSize, err := intParam(q.Get("page_size"), game.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page_size", err)
		return
	}

	result, err := h.Engine.ListLogs(r.Context(), userID, page, pageSize, game.ParseLogFilter(q.Get("filter")))
	if err != nil {
		writeEngineError(w, "Failed to list logs", err)
		return
	}
	writeJSON(w, http.StatusOK, LogPageDTO{
		Entries:  toLogEntryDTOs(result.Entries),
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
		HasMore:  result.HasMore(),
	})
}

// GetSummary rolls up the user's most recent log entries (up to limit,
// default and max game.MaxPageSize) into coin totals and an XP trend.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := game.UserID(chi.URLParam(r, "id"))
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), game.MaxPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	bucket := 24 * time.Hour
	switch q.Get("bucket") {
	case "", "day":
	case "week":
		bucket = 7 * 24 * time.Hour
	default:
		writeError(w, http.StatusBadRequest, "bucket must be day or week", nil)
		return
	}

	result, err := h.Engine.ListLogs(r.Context(), userID, 1, limit, game.FilterAll)
	if err != nil {
		writeEngineError(w, "Failed to load logs", err)
		return
	}
	s := game.Summarize(result.Entries, bucket)
	dto := SummaryDTO{Income: s.Income, Expense: s.Expense, XP: s.XP, Trend: []TrendBucketDTO{}}
	for _, b := range s.Trend {
		dto.Trend = append(dto.Trend, TrendBucketDTO{Start: b.Start.Format("2006-01-02"), XP: b.XP})
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment applies an admin override to a user's balances.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, ok := h.config(w, r)
	if !ok {
		return
	}

	delta := game.AdjustDelta{XP: req.XP, HP: req.HP, Coins: req.Coins}
	out, err := h.Engine.Adjust(r.Context(), game.UserID(req.UserID), delta, req.Reason, req.ActorID, cfg)
	if err != nil {
		writeEngineError(w, "Adjustment failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOutcomeDTO(out, cfg))
}

// SaveItem creates or replaces a catalog item.
func (h *Handler) SaveItem(w http.ResponseWriter, r *http.Request) {
	var req ShopItemDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	if req.Price < 0 {
		writeError(w, http.StatusBadRequest, "price must not be negative", nil)
		return
	}
	switch game.EffectType(req.EffectType) {
	case game.EffectHealHP, game.EffectSkipDuty, game.EffectRemoveLate:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown effect_type %q", req.EffectType), nil)
		return
	}

	if err := h.Store.SaveItem(r.Context(), req.toItem()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save item", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetConfig returns the current config document.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.config(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, factory.ToJSON(cfg))
}

// PutConfig validates a config document and stores it as the next version.
// Keys missing from the document keep their default values.
func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, err := factory.ParseConfig(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid config", err)
		return
	}
	version, err := h.Store.SaveConfig(r.Context(), cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save config", err)
		return
	}
	cfg.Version = version
	h.Logger.Info().Int64("version", version).Msg("game config updated")
	writeJSON(w, http.StatusOK, factory.ToJSON(cfg))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError writes err with the status code for its error class.
// Persistence details are not echoed back.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, message, nil)
		return
	}
	writeError(w, status, message, err)
}

// statusFor maps game errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, game.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrAlreadyUsed),
		errors.Is(err, game.ErrConflictRetryExhausted),
		errors.Is(err, game.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, game.ErrPassiveItem),
		errors.Is(err, game.ErrUnsupportedEffect),
		errors.Is(err, game.ErrNothingToRefund):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
