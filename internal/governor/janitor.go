package governor

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/taskflow-agent/pkg/log"
)

// Prune drops users whose window holds no live requests and whose budget has
// passed its reset time. It returns the number of entries removed.
func (g *Governor) Prune() int {
	now := g.now()
	windowStart := now.Add(-g.cfg.Window)
	removed := 0

	g.windows.Range(func(key, value any) bool {
		w := value.(*rateWindow)
		w.mu.Lock()
		live := false
		for _, ts := range w.timestamps {
			if ts.After(windowStart) {
				live = true
				break
			}
		}
		if !live && !w.pruned {
			w.pruned = true
			g.windows.CompareAndDelete(key, w)
			removed++
		}
		w.mu.Unlock()
		return true
	})

	g.budgets.Range(func(key, value any) bool {
		b := value.(*tokenBudget)
		b.mu.Lock()
		if !b.pruned && !now.Before(b.resetAt) {
			b.pruned = true
			g.budgets.CompareAndDelete(key, b)
			removed++
		}
		b.mu.Unlock()
		return true
	})

	return removed
}

// StartJanitor schedules Prune on cfg.PruneSchedule. Calling it twice is a no-op.
func (g *Governor) StartJanitor() error {
	g.cronMu.Lock()
	defer g.cronMu.Unlock()
	if g.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(g.cfg.PruneSchedule, func() {
		start := time.Now()
		if n := g.Prune(); n > 0 {
			log.Debug("Governor pruned %d idle entries in %s", n, time.Since(start))
		}
	}); err != nil {
		return fmt.Errorf("schedule governor janitor: %w", err)
	}
	c.Start()
	g.cron = c
	return nil
}

// Close stops the janitor and waits for a running prune to finish.
func (g *Governor) Close() error {
	g.cronMu.Lock()
	c := g.cron
	g.cron = nil
	g.cronMu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	return nil
}
