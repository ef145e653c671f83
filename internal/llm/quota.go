package llm

import (
	"sync"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/metrics"
)

// QuotaConfig sets the process-wide upstream budgets.
type QuotaConfig struct {
	PerMinute int
	PerDay    int
	Location  *time.Location   // calendar day boundary; UTC when nil
	Now       func() time.Time // clock; time.Now when nil
}

// QuotaRemaining is the unused budget in the current windows.
type QuotaRemaining struct {
	PerMinute int `json:"perMinute"`
	PerDay    int `json:"perDay"`
}

type quotaState struct {
	minuteCount       int
	minuteWindowStart time.Time
	dayCount          int
	dayWindowStart    time.Time
}

// QuotaTracker counts upstream calls per minute and per calendar day.
// Windows roll lazily on access. Safe for concurrent use.
type QuotaTracker struct {
	mu    sync.Mutex
	cfg   QuotaConfig
	state quotaState
}

// NewQuotaTracker creates a tracker with empty windows.
func NewQuotaTracker(cfg QuotaConfig) *QuotaTracker {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &QuotaTracker{cfg: cfg}
}

// CanCall reports whether both budgets have room. It does not count a call.
func (q *QuotaTracker) CanCall() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll(q.cfg.Now())
	return q.hasRoom()
}

// RecordCall counts one call against both budgets.
func (q *QuotaTracker) RecordCall() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll(q.cfg.Now())
	q.state.minuteCount++
	q.state.dayCount++
}

// TryAcquire checks and counts a call under one lock, so concurrent callers
// cannot jointly overrun a budget.
func (q *QuotaTracker) TryAcquire() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll(q.cfg.Now())
	if !q.hasRoom() {
		if q.state.minuteCount >= q.cfg.PerMinute {
			metrics.QuotaRejections.WithLabelValues("minute").Inc()
		} else {
			metrics.QuotaRejections.WithLabelValues("day").Inc()
		}
		return false
	}
	q.state.minuteCount++
	q.state.dayCount++
	return true
}

// Remaining returns the unused budget after rolling windows.
func (q *QuotaTracker) Remaining() QuotaRemaining {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll(q.cfg.Now())
	return QuotaRemaining{
		PerMinute: max(q.cfg.PerMinute-q.state.minuteCount, 0),
		PerDay:    max(q.cfg.PerDay-q.state.dayCount, 0),
	}
}

// RetryAfter returns how long until a call would be admitted, or zero when
// there is room now.
func (q *QuotaTracker) RetryAfter() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.cfg.Now()
	q.roll(now)
	if q.hasRoom() {
		return 0
	}
	if q.state.dayCount >= q.cfg.PerDay {
		y, m, d := now.In(q.cfg.Location).Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, q.cfg.Location).Sub(now)
	}
	return q.state.minuteWindowStart.Add(time.Minute).Sub(now)
}

func (q *QuotaTracker) hasRoom() bool {
	return q.state.minuteCount < q.cfg.PerMinute && q.state.dayCount < q.cfg.PerDay
}

// roll resets a window whose period has passed. Caller holds mu.
func (q *QuotaTracker) roll(now time.Time) {
	if now.Sub(q.state.minuteWindowStart) >= time.Minute {
		q.state.minuteCount = 0
		q.state.minuteWindowStart = now
	}
	if !sameDay(now, q.state.dayWindowStart, q.cfg.Location) {
		q.state.dayCount = 0
		q.state.dayWindowStart = now
	}
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
