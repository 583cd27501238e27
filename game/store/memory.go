// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/gamify-engine/game"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	profiles  map[game.UserID]game.Profile
	inventory map[game.InventoryID]game.InventoryEntry
	invOrder  []game.InventoryID
	logs      map[game.UserID][]game.LogEntry // oldest first
	items     map[game.ItemID]game.ShopItem
	config    *game.Config
}

var (
	_ game.TxStore      = (*Memory)(nil)
	_ game.ConfigSource = (*Memory)(nil)
	_ game.AdminStore   = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		profiles:  make(map[game.UserID]game.Profile),
		inventory: make(map[game.InventoryID]game.InventoryEntry),
		logs:      make(map[game.UserID][]game.LogEntry),
		items:     make(map[game.ItemID]game.ShopItem),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(game.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{m: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	profiles  map[game.UserID]game.Profile
	inventory map[game.InventoryID]game.InventoryEntry
	invOrder  []game.InventoryID
	logs      map[game.UserID][]game.LogEntry
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		profiles:  make(map[game.UserID]game.Profile, len(m.profiles)),
		inventory: make(map[game.InventoryID]game.InventoryEntry, len(m.inventory)),
		invOrder:  append([]game.InventoryID{}, m.invOrder...),
		logs:      make(map[game.UserID][]game.LogEntry, len(m.logs)),
	}
	for k, v := range m.profiles {
		s.profiles[k] = v
	}
	for k, v := range m.inventory {
		s.inventory[k] = v
	}
	for k, v := range m.logs {
		s.logs[k] = append([]game.LogEntry{}, v...)
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.profiles = s.profiles
	m.inventory = s.inventory
	m.invOrder = s.invOrder
	m.logs = s.logs
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (m *Memory) EnsureProfile(_ context.Context, p game.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.UserID]; !ok {
		p.Version = 1
		p.UpdatedAt = time.Now().UTC()
		m.profiles[p.UserID] = p
	}
	return nil
}

// PutProfile overwrites a profile, bypassing the version check. Seeding only.
func (m *Memory) PutProfile(p game.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Version == 0 {
		p.Version = 1
	}
	m.profiles[p.UserID] = p
}

func (m *Memory) GetProfile(ctx context.Context, userID game.UserID) (game.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&txView{m: m}).GetProfile(ctx, userID)
}

func (m *Memory) UpdateProfile(ctx context.Context, p game.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txView{m: m}).UpdateProfile(ctx, p)
}

func (m *Memory) InsertInventory(ctx context.Context, e game.InventoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txView{m: m}).InsertInventory(ctx, e)
}

func (m *Memory) GetInventory(ctx context.Context, id game.InventoryID) (game.InventoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&txView{m: m}).GetInventory(ctx, id)
}

func (m *Memory) MarkInventoryUsed(ctx context.Context, id game.InventoryID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txView{m: m}).MarkInventoryUsed(ctx, id, at)
}

func (m *Memory) FirstUnusedByEffect(ctx context.Context, userID game.UserID, effect game.EffectType) (game.InventoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&txView{m: m}).FirstUnusedByEffect(ctx, userID, effect)
}

func (m *Memory) ListInventory(ctx context.Context, userID game.UserID) ([]game.InventoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&txView{m: m}).ListInventory(ctx, userID)
}

func (m *Memory) AppendLog(ctx context.Context, e game.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txView{m: m}).AppendLog(ctx, e)
}

func (m *Memory) QueryLogs(ctx context.Context, q game.LogQuery) ([]game.LogEntry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&txView{m: m}).QueryLogs(ctx, q)
}

func (m *Memory) LatestRefundable(ctx context.Context, userID game.UserID, kinds []game.ActionKind) (game.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&txView{m: m}).LatestRefundable(ctx, userID, kinds)
}

func (m *Memory) ListActiveItems(ctx context.Context) ([]game.ShopItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&txView{m: m}).ListActiveItems(ctx)
}

func (m *Memory) GetItem(ctx context.Context, id game.ItemID) (game.ShopItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&txView{m: m}).GetItem(ctx, id)
}

// PutItem adds or replaces a catalog item.
func (m *Memory) PutItem(item game.ShopItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = make(map[game.UserID]game.Profile)
	m.inventory = make(map[game.InventoryID]game.InventoryEntry)
	m.invOrder = nil
	m.logs = make(map[game.UserID][]game.LogEntry)
	m.items = make(map[game.ItemID]game.ShopItem)
	m.config = nil
	return nil
}

// SaveItem is PutItem behind the game.AdminStore signature.
func (m *Memory) SaveItem(_ context.Context, item game.ShopItem) error {
	m.PutItem(item)
	return nil
}

// SaveConfig stores a copy of cfg as the next config version.
func (m *Memory) SaveConfig(_ context.Context, cfg *game.Config) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var version int64 = 1
	if m.config != nil {
		version = m.config.Version + 1
	}
	next := cfg.Clone()
	next.Version = version
	m.config = next
	return version, nil
}

func (m *Memory) CurrentConfig(_ context.Context) (*game.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return game.DefaultConfig(), nil
	}
	return m.config.Clone(), nil
}

// =============================================================================
// TRANSACTIONAL VIEW - Caller holds m.mu
// =============================================================================

type txView struct {
	m *Memory
}

func (tv *txView) GetProfile(_ context.Context, userID game.UserID) (game.Profile, error) {
	p, ok := tv.m.profiles[userID]
	if !ok {
		return game.Profile{}, game.ErrNotFound
	}
	return p, nil
}

func (tv *txView) UpdateProfile(_ context.Context, p game.Profile) error {
	current, ok := tv.m.profiles[p.UserID]
	if !ok {
		return game.ErrNotFound
	}
	if current.Version != p.Version {
		return game.ErrVersionConflict
	}
	p.Version++
	tv.m.profiles[p.UserID] = p
	return nil
}

func (tv *txView) InsertInventory(_ context.Context, e game.InventoryEntry) error {
	tv.m.inventory[e.ID] = e
	tv.m.invOrder = append(tv.m.invOrder, e.ID)
	return nil
}

func (tv *txView) GetInventory(_ context.Context, id game.InventoryID) (game.InventoryEntry, error) {
	e, ok := tv.m.inventory[id]
	if !ok {
		return game.InventoryEntry{}, game.ErrNotFound
	}
	return e, nil
}

func (tv *txView) MarkInventoryUsed(_ context.Context, id game.InventoryID, at time.Time) error {
	e, ok := tv.m.inventory[id]
	if !ok {
		return game.ErrNotFound
	}
	if e.IsUsed {
		return game.ErrAlreadyUsed
	}
	e.IsUsed = true
	e.UsedAt = &at
	tv.m.inventory[id] = e
	return nil
}

func (tv *txView) FirstUnusedByEffect(_ context.Context, userID game.UserID, effect game.EffectType) (game.InventoryEntry, error) {
	for _, id := range tv.m.invOrder {
		e := tv.m.inventory[id]
		if e.UserID != userID || e.IsUsed {
			continue
		}
		if item, ok := tv.m.items[e.ItemID]; ok && item.EffectType == effect {
			return e, nil
		}
	}
	return game.InventoryEntry{}, game.ErrNotFound
}

func (tv *txView) ListInventory(_ context.Context, userID game.UserID) ([]game.InventoryEntry, error) {
	var out []game.InventoryEntry
	for _, id := range tv.m.invOrder {
		if e := tv.m.inventory[id]; e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tv *txView) AppendLog(_ context.Context, e game.LogEntry) error {
	tv.m.logs[e.UserID] = append(tv.m.logs[e.UserID], e)
	return nil
}

func (tv *txView) QueryLogs(_ context.Context, q game.LogQuery) ([]game.LogEntry, int, error) {
	all := tv.m.logs[q.UserID]
	var matched []game.LogEntry
	for i := len(all) - 1; i >= 0; i-- {
		if q.Filter.Match(all[i]) {
			matched = append(matched, all[i])
		}
	}
	total := len(matched)
	from := min(q.Offset(), total)
	to := total
	if q.PageSize > 0 {
		to = min(from+q.PageSize, total)
	}
	return append([]game.LogEntry{}, matched[from:to]...), total, nil
}

func (tv *txView) LatestRefundable(_ context.Context, userID game.UserID, kinds []game.ActionKind) (game.LogEntry, error) {
	all := tv.m.logs[userID]
	refunded := make(map[game.LogID]bool)
	for _, e := range all {
		if e.Kind == game.KindTimeWarpRefund && e.RelatedID != "" {
			refunded[e.RelatedID] = true
		}
	}
	mech := game.ItemMechanics{RefundableKinds: kinds}
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if e.HPDelta < 0 && mech.IsRefundable(e.Kind) && !refunded[e.ID] {
			return e, nil
		}
	}
	return game.LogEntry{}, game.ErrNotFound
}

func (tv *txView) ListActiveItems(_ context.Context) ([]game.ShopItem, error) {
	var out []game.ShopItem
	for _, item := range tv.m.items {
		if item.Active {
			out = append(out, item)
		}
	}
	sortItems(out)
	return out, nil
}

func (tv *txView) GetItem(_ context.Context, id game.ItemID) (game.ShopItem, error) {
	item, ok := tv.m.items[id]
	if !ok {
		return game.ShopItem{}, game.ErrNotFound
	}
	return item, nil
}

func sortItems(items []game.ShopItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Price != items[j].Price {
			return items[i].Price < items[j].Price
		}
		return items[i].ID < items[j].ID
	})
}
