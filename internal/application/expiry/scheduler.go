package expiry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskboard/taskboard/internal/domain/lock"
)

// LockManager is the slice of the lock service the scheduler needs.
type LockManager interface {
	ListExpired(ctx context.Context, threshold time.Time, limit int) ([]*lock.HeldLock, error)
	ForceRelease(ctx context.Context, taskID uuid.UUID, kind lock.Kind) (bool, error)
}

// Config holds scheduler timing. TTL is measured from the lock's original
// AcquiredAt, which re-acquisition never refreshes.
type Config struct {
	Interval   time.Duration
	TTL        time.Duration
	BatchLimit int
}

// DefaultConfig returns the reference timing: 30s sweep, 2m TTL.
func DefaultConfig() Config {
	return Config{
		Interval:   30 * time.Second,
		TTL:        2 * time.Minute,
		BatchLimit: 100,
	}
}

// Scheduler periodically force-releases locks held longer than the TTL,
// independent of request traffic. Overlapping sweeps are safe because
// ForceRelease is idempotent and atomic; a lock freed elsewhere in the
// meantime just reports false.
type Scheduler struct {
	cfg    Config
	locks  LockManager
	logger zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

func New(cfg Config, locks LockManager, logger zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultConfig().BatchLimit
	}
	return &Scheduler{
		cfg:    cfg,
		locks:  locks,
		logger: logger.With().Str("service", "expiry").Logger(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the sweep loop. Subsequent calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run(ctx)
	})
}

// Stop terminates the loop and waits for the in-flight sweep to finish.
// Safe to call even when Start never ran.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.started.Load() {
		<-s.done
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("ttl", s.cfg.TTL).
		Msg("expiry scheduler started")

	for {
		select {
		case <-ticker.C:
			released, err := s.Sweep(ctx)
			if err != nil {
				// Tick errors never crash the loop; the next tick
				// rescans from scratch.
				s.logger.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			if released > 0 {
				s.logger.Info().Int("released", released).Msg("expired locks reclaimed")
			}
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep force-releases every lock held past the TTL, concurrently,
// tolerating individual failures. Returns the number released.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	threshold := time.Now().UTC().Add(-s.cfg.TTL)
	expired, err := s.locks.ListExpired(ctx, threshold, s.cfg.BatchLimit)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		released int
	)
	for _, h := range expired {
		wg.Add(1)
		go func(h *lock.HeldLock) {
			defer wg.Done()
			ok, err := s.locks.ForceRelease(ctx, h.TaskID, h.Kind)
			if err != nil {
				s.logger.Warn().Err(err).
					Str("task_id", h.TaskID.String()).
					Str("kind", string(h.Kind)).
					Msg("failed to force-release expired lock")
				return
			}
			if ok {
				mu.Lock()
				released++
				mu.Unlock()
			}
		}(h)
	}
	wg.Wait()
	return released, nil
}
