package governor

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/taskflow-agent/pkg/icron"
)

const (
	DefaultRequestsPerWindow = 3
	DefaultWindow            = time.Minute
	DefaultTokensPerDay      = 100000
	DefaultPruneSchedule     = "@every 10m"
)

// Config holds the limits enforced per user.
type Config struct {
	RequestsPerWindow int
	Window            time.Duration
	TokensPerDay      int
	// BudgetReset is a cron expression marking when daily budgets roll over.
	// Empty means local midnight.
	BudgetReset   string
	PruneSchedule string
}

func DefaultConfig() Config {
	return Config{
		RequestsPerWindow: DefaultRequestsPerWindow,
		Window:            DefaultWindow,
		TokensPerDay:      DefaultTokensPerDay,
		BudgetReset:       icron.DailyMidnight,
		PruneSchedule:     DefaultPruneSchedule,
	}
}

// RateLimitResult is the outcome of a sliding-window check.
type RateLimitResult struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	// ResetIn is the number of whole seconds until the oldest request leaves the window.
	ResetIn int `json:"reset_in"`
}

// TokenUsageResult is the outcome of a token budget check.
type TokenUsageResult struct {
	Allowed   bool `json:"allowed"`
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}

type Option func(*Governor)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		g.now = now
	}
}

// Governor gates agent invocations per user with a request rate limit and a
// daily token budget. Each user's records carry their own lock so checks for
// different users never serialize on each other.
type Governor struct {
	cfg      Config
	boundary *icron.Boundary
	now      func() time.Time

	windows sync.Map // userID -> *rateWindow
	budgets sync.Map // userID -> *tokenBudget

	cronMu sync.Mutex
	cron   *cron.Cron
}

type rateWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
	// pruned entries were removed from the table; callers holding a stale
	// pointer must look the user up again.
	pruned bool
}

type tokenBudget struct {
	mu      sync.Mutex
	used    int
	limit   int
	resetAt time.Time
	pruned  bool
}

func New(cfg Config, opts ...Option) (*Governor, error) {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = DefaultRequestsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.TokensPerDay <= 0 {
		cfg.TokensPerDay = DefaultTokensPerDay
	}
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = DefaultPruneSchedule
	}

	boundary, err := icron.NewBoundary(cfg.BudgetReset)
	if err != nil {
		return nil, fmt.Errorf("budget reset schedule: %w", err)
	}

	g := &Governor{
		cfg:      cfg,
		boundary: boundary,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Governor) Config() Config {
	return g.cfg
}

// CheckRateLimit runs the sliding-window check for userID. An allowed check
// records the current request; checking and recording happen under one lock.
func (g *Governor) CheckRateLimit(userID string) RateLimitResult {
	return g.rateLimit(userID, true)
}

// PeekRateLimit reports the window state without recording a request.
func (g *Governor) PeekRateLimit(userID string) RateLimitResult {
	return g.rateLimit(userID, false)
}

func (g *Governor) rateLimit(userID string, record bool) RateLimitResult {
	now := g.now()
	windowStart := now.Add(-g.cfg.Window)

	w := g.lockWindow(userID)
	defer w.mu.Unlock()

	recent := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(windowStart) {
			recent = append(recent, ts)
		}
	}
	w.timestamps = recent

	count := len(recent)
	result := RateLimitResult{
		Allowed:   count < g.cfg.RequestsPerWindow,
		Remaining: max(0, g.cfg.RequestsPerWindow-count),
	}
	if count > 0 {
		result.ResetIn = ceilSeconds(recent[0].Add(g.cfg.Window).Sub(now))
	}

	if result.Allowed && record {
		w.timestamps = append(w.timestamps, now)
	}
	return result
}

// TrackTokenUsage adds delta to userID's daily budget. A delta that would push
// usage past the limit is rejected and leaves the budget untouched. Negative
// deltas count as zero, so usage only grows within a day.
func (g *Governor) TrackTokenUsage(userID string, delta int) TokenUsageResult {
	now := g.now()
	delta = max(delta, 0)

	b := g.lockBudget(userID)
	defer b.mu.Unlock()

	g.resetIfDue(b, now)

	// compared against the headroom so huge deltas cannot overflow
	wouldExceed := delta > b.limit-b.used
	if !wouldExceed {
		b.used += delta
	}
	return TokenUsageResult{
		Allowed:   !wouldExceed,
		Used:      b.used,
		Limit:     b.limit,
		Remaining: max(0, b.limit-b.used),
	}
}

// TokenUsage reports userID's budget without consuming from it.
func (g *Governor) TokenUsage(userID string) TokenUsageResult {
	now := g.now()

	v, ok := g.budgets.Load(userID)
	if !ok {
		return TokenUsageResult{
			Allowed:   true,
			Limit:     g.cfg.TokensPerDay,
			Remaining: g.cfg.TokensPerDay,
		}
	}
	b := v.(*tokenBudget)
	b.mu.Lock()
	defer b.mu.Unlock()

	used, limit := b.used, b.limit
	if !now.Before(b.resetAt) {
		used, limit = 0, g.cfg.TokensPerDay
	}
	return TokenUsageResult{
		Allowed:   used < limit,
		Used:      used,
		Limit:     limit,
		Remaining: max(0, limit-used),
	}
}

// must be called with b.mu held
func (g *Governor) resetIfDue(b *tokenBudget, now time.Time) {
	if b.resetAt.IsZero() || !now.Before(b.resetAt) {
		b.used = 0
		b.limit = g.cfg.TokensPerDay
		b.resetAt = g.boundary.Next(now)
	}
}

// Headers renders the rate and token state as response headers. It never
// consumes quota.
func (g *Governor) Headers(userID string) map[string]string {
	rate := g.PeekRateLimit(userID)
	tokens := g.TokenUsage(userID)
	return map[string]string{
		"X-RateLimit-Limit":      strconv.Itoa(g.cfg.RequestsPerWindow),
		"X-RateLimit-Remaining":  strconv.Itoa(rate.Remaining),
		"X-RateLimit-Reset":      strconv.Itoa(rate.ResetIn),
		"X-TokenLimit-Used":      strconv.Itoa(tokens.Used),
		"X-TokenLimit-Remaining": strconv.Itoa(tokens.Remaining),
	}
}

// lockWindow returns userID's live window entry with its lock held.
func (g *Governor) lockWindow(userID string) *rateWindow {
	for {
		v, _ := g.windows.LoadOrStore(userID, &rateWindow{})
		w := v.(*rateWindow)
		w.mu.Lock()
		if !w.pruned {
			return w
		}
		w.mu.Unlock()
	}
}

// lockBudget returns userID's live budget entry with its lock held.
func (g *Governor) lockBudget(userID string) *tokenBudget {
	for {
		v, _ := g.budgets.LoadOrStore(userID, &tokenBudget{})
		b := v.(*tokenBudget)
		b.mu.Lock()
		if !b.pruned {
			return b
		}
		b.mu.Unlock()
	}
}

// EstimateTokens approximates the token count of text at four characters per
// token. The estimate never decreases as text grows.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 4))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
