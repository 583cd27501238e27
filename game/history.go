package game

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// HISTORY & AUDIT QUERIES
// =============================================================================

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// LogPage is one page of a user's audit log, newest first.
type LogPage struct {
	Entries  []LogEntry
	Total    int
	Page     int
	PageSize int
}

// HasMore reports whether later pages exist.
func (p LogPage) HasMore() bool {
	return p.Page*p.PageSize < p.Total
}

// ListLogs returns one page of userID's log filtered by filter. Read-only.
func (e *Engine) ListLogs(ctx context.Context, userID UserID, page, pageSize int, filter LogFilter) (*LogPage, error) {
	if userID == "" {
		return nil, validationErr("user_id", "required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	entries, total, err := e.Store.QueryLogs(ctx, LogQuery{
		UserID:   userID,
		Filter:   filter,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "query logs", Err: err}
	}
	return &LogPage{Entries: entries, Total: total, Page: page, PageSize: pageSize}, nil
}

// =============================================================================
// SUMMARY - Client-side rollups over loaded entries
// =============================================================================

// Summary aggregates whatever entries the caller has loaded. It is an
// approximation of the user's history, not a global aggregate.
type Summary struct {
	Income  int64 // coins earned
	Expense int64 // coins spent or lost, as a positive number
	XP      int64
	Trend   []TrendBucket
}

type TrendBucket struct {
	Start time.Time
	XP    int64
}

// Summarize rolls entries up into coin totals and an XP trend bucketed by
// bucket (a day when bucket <= 0). Buckets are returned oldest first.
func Summarize(entries []LogEntry, bucket time.Duration) Summary {
	if bucket <= 0 {
		bucket = 24 * time.Hour
	}
	var s Summary
	byStart := make(map[time.Time]int64)
	for _, e := range entries {
		if e.CoinDelta > 0 {
			s.Income += e.CoinDelta
		} else {
			s.Expense -= e.CoinDelta
		}
		s.XP += e.XPDelta
		start := e.CreatedAt.UTC().Truncate(bucket)
		byStart[start] += e.XPDelta
	}
	for start, xp := range byStart {
		s.Trend = append(s.Trend, TrendBucket{Start: start, XP: xp})
	}
	sort.Slice(s.Trend, func(i, j int) bool { return s.Trend[i].Start.Before(s.Trend[j].Start) })
	return s
}
