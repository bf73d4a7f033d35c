package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/config"
)

// CompactionManager runs lazy background compaction for the catalog's HNSW
// vector index. Every re-embedded tool document leaves an orphaned graph
// node behind; compaction rebuilds the graph without them.
//
// Compaction runs automatically when:
// 1. The catalog is idle (no searches for IdleTimeout).
// 2. Orphan ratio exceeds the threshold (orphans/total > OrphanThreshold).
// 3. The minimum orphan count is met (avoids small-index churn).
// 4. The cooldown since the last compaction has elapsed.
//
// Compaction is interruptible: a search request cancels an ongoing rebuild.
type CompactionManager struct {
	config config.CompactionConfig
	vector *catalog.HNSWStore

	mu          sync.Mutex
	lastSearch  time.Time
	lastCompact time.Time
	idleTimer   *time.Timer
	compacting  bool
	cancelFunc  context.CancelFunc

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCompactionManager creates a compaction manager for the given vector
// store.
func NewCompactionManager(vector *catalog.HNSWStore, cfg config.CompactionConfig) *CompactionManager {
	return &CompactionManager{
		config: cfg,
		vector: vector,
	}
}

// Start initializes the compaction manager.
func (m *CompactionManager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	slog.Debug("compaction manager started",
		slog.Bool("enabled", m.config.Enabled),
		slog.Float64("orphan_threshold", m.config.OrphanThreshold),
		slog.Int("min_orphan_count", m.config.MinOrphanCount))
}

// Stop gracefully shuts down the compaction manager, waiting for any
// in-progress compaction to complete or cancel.
func (m *CompactionManager) Stop() {
	m.stopOnce.Do(func() {
		slog.Debug("compaction manager stopping")

		if m.cancel != nil {
			m.cancel()
		}

		m.mu.Lock()
		if m.idleTimer != nil {
			m.idleTimer.Stop()
			m.idleTimer = nil
		}
		if m.cancelFunc != nil {
			m.cancelFunc()
		}
		m.mu.Unlock()

		m.wg.Wait()
		slog.Debug("compaction manager stopped")
	})
}

// OnSearchComplete records search activity. It interrupts an in-progress
// compaction and restarts the idle countdown.
func (m *CompactionManager) OnSearchComplete() {
	if !m.config.Enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSearch = time.Now()

	if m.compacting && m.cancelFunc != nil {
		slog.Debug("search interrupted compaction")
		m.cancelFunc()
	}

	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}
	m.idleTimer = time.AfterFunc(m.idleTimeout(), m.onIdle)
}

// onIdle fires when the idle timeout elapses without a search.
func (m *CompactionManager) onIdle() {
	if m.ctx == nil || m.ctx.Err() != nil {
		return
	}
	if m.shouldCompact() {
		m.startCompaction()
	}
}

// shouldCompact checks every eligibility condition.
func (m *CompactionManager) shouldCompact() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.compacting || m.vector == nil {
		return false
	}

	if time.Since(m.lastCompact) < m.cooldown() {
		slog.Debug("compaction skipped: cooldown active")
		return false
	}

	stats := m.vector.Stats()
	if stats.Orphans < m.config.MinOrphanCount {
		return false
	}
	if stats.GraphNodes == 0 {
		return false
	}
	ratio := float64(stats.Orphans) / float64(stats.GraphNodes)
	if ratio <= m.config.OrphanThreshold {
		return false
	}

	slog.Debug("compaction eligible",
		slog.Int("orphans", stats.Orphans),
		slog.Int("nodes", stats.GraphNodes),
		slog.Float64("ratio", ratio))
	return true
}

// startCompaction launches the rebuild in a goroutine.
func (m *CompactionManager) startCompaction() {
	m.mu.Lock()
	if m.compacting {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.compacting = true
	m.cancelFunc = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.compacting = false
			m.cancelFunc = nil
			m.mu.Unlock()
			cancel()
		}()

		start := time.Now()
		removed, err := m.vector.Compact(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Debug("compaction cancelled")
			} else {
				slog.Warn("compaction failed", slog.String("error", err.Error()))
			}
			return
		}

		m.mu.Lock()
		m.lastCompact = time.Now()
		m.mu.Unlock()

		slog.Info("compaction complete",
			slog.Int("orphans_removed", removed),
			slog.Duration("duration", time.Since(start)))
	}()
}

// IsCompacting reports whether a rebuild is currently running.
func (m *CompactionManager) IsCompacting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compacting
}

func (m *CompactionManager) idleTimeout() time.Duration {
	if d, err := time.ParseDuration(m.config.IdleTimeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

func (m *CompactionManager) cooldown() time.Duration {
	if d, err := time.ParseDuration(m.config.Cooldown); err == nil && d > 0 {
		return d
	}
	return time.Hour
}
