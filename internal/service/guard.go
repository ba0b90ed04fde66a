package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TaroHarado/copytrade-key/internal/config"
	"github.com/TaroHarado/copytrade-key/internal/pkg/apperrors"
	"github.com/TaroHarado/copytrade-key/internal/pkg/logger"
	"github.com/TaroHarado/copytrade-key/internal/pkg/metrics"
)

const rateWindow = time.Minute

// UsageStore tracks per-user signed volume for the current UTC day.
// Backed by memory or Redis; advisory state, not a correctness boundary.
type UsageStore interface {
	GetDailyVolume(ctx context.Context, userID int64) (float64, error)
	AddDailyVolume(ctx context.Context, userID int64, amountUSDC float64) error
}

// Guard is the combined block / rate / volume throttle. All gate state for
// one user is checked and mutated under that user's lock, so two in-flight
// requests cannot both pass a limit only one should pass.
type Guard struct {
	cfg    config.GuardConfig
	usage  UsageStore
	alerts AlertSink
	now    func() time.Time

	mu    sync.Mutex
	users map[int64]*guardState
}

type guardState struct {
	mu        sync.Mutex
	requests  []time.Time
	blockedAt time.Time
	blocked   bool
}

func NewGuard(cfg config.GuardConfig, usage UsageStore, alerts AlertSink) *Guard {
	if usage == nil {
		usage = NewMemoryUsageStore()
	}
	return &Guard{
		cfg:    cfg,
		usage:  usage,
		alerts: alerts,
		now:    time.Now,
		users:  make(map[int64]*guardState),
	}
}

func (g *Guard) userState(userID int64) *guardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.users[userID]
	if !ok {
		st = &guardState{}
		g.users[userID] = st
	}
	return st
}

// Allow runs the full gate chain: blocked, rate, volume. The first failing
// gate short-circuits the rest. A passing request consumes a rate slot and
// accumulates volume; a rejected request consumes neither.
func (g *Guard) Allow(ctx context.Context, userID int64, amountUSDC float64) error {
	st := g.userState(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := g.checkBlocked(st, userID); err != nil {
		return err
	}
	if err := g.checkRate(ctx, st, userID); err != nil {
		return err
	}
	if err := g.checkVolume(ctx, st, userID, amountUSDC); err != nil {
		return err
	}

	g.recordRequest(st)
	return nil
}

// AllowRateOnly runs the block and rate gates without volume accounting.
// Allowance signing has no notional to meter.
func (g *Guard) AllowRateOnly(ctx context.Context, userID int64) error {
	st := g.userState(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := g.checkBlocked(st, userID); err != nil {
		return err
	}
	if err := g.checkRate(ctx, st, userID); err != nil {
		return err
	}

	g.recordRequest(st)
	return nil
}

// recordRequest consumes a rate slot. With the rate gate unlimited no
// window is kept at all; otherwise the slice would grow for the life of
// the process, since pruning only happens when the gate is checked.
func (g *Guard) recordRequest(st *guardState) {
	if g.cfg.MaxSignaturesPerMinute == 0 {
		return
	}
	st.requests = append(st.requests, g.now())
}

func (g *Guard) checkBlocked(st *guardState, userID int64) error {
	if !st.blocked {
		return nil
	}
	blockFor := time.Duration(g.cfg.BlockMinutes) * time.Minute
	if blockFor <= 0 {
		blockFor = time.Hour
	}
	if g.now().Sub(st.blockedAt) > blockFor {
		// Lazy eviction on next check.
		st.blocked = false
		logger.Info("unblocking user", "user_id", userID)
		return nil
	}
	metrics.GuardRejects.WithLabelValues("blocked").Inc()
	logger.Warn("user is temporarily blocked", "user_id", userID)
	return apperrors.Newf(apperrors.ReasonUserBlocked,
		"user %d is temporarily blocked", userID)
}

func (g *Guard) checkRate(ctx context.Context, st *guardState, userID int64) error {
	if g.cfg.MaxSignaturesPerMinute == 0 {
		return nil
	}

	cutoff := g.now().Add(-rateWindow)
	kept := st.requests[:0]
	for _, ts := range st.requests {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	st.requests = kept

	if len(st.requests) >= g.cfg.MaxSignaturesPerMinute {
		metrics.GuardRejects.WithLabelValues("rate").Inc()
		logger.Warn("rate limit exceeded",
			"user_id", userID,
			"requests", len(st.requests),
			"limit", g.cfg.MaxSignaturesPerMinute)
		g.sendAlert(ctx, fmt.Sprintf(
			"Rate limit exceeded\nUser: %d\nRequests: %d in last minute",
			userID, len(st.requests)))
		return apperrors.Newf(apperrors.ReasonRateLimitExceeded,
			"rate limit exceeded: %d signatures in the last minute (max %d)",
			len(st.requests), g.cfg.MaxSignaturesPerMinute)
	}
	return nil
}

func (g *Guard) checkVolume(ctx context.Context, st *guardState, userID int64, amountUSDC float64) error {
	if g.cfg.MaxDailyVolumeUSDC == 0 {
		return nil
	}

	current, err := g.usage.GetDailyVolume(ctx, userID)
	if err != nil {
		// Usage state is abuse-dampening, not correctness-critical; a
		// broken store must not take signing down with it.
		logger.Error("usage store read failed, volume gate skipped",
			"user_id", userID, "error", err)
		return nil
	}

	newVolume := current + amountUSDC
	if newVolume > g.cfg.MaxDailyVolumeUSDC {
		metrics.GuardRejects.WithLabelValues("volume").Inc()
		logger.Error("daily volume limit exceeded",
			"user_id", userID,
			"current_usdc", current,
			"attempted_usdc", amountUSDC,
			"limit_usdc", g.cfg.MaxDailyVolumeUSDC)
		g.sendAlert(ctx, fmt.Sprintf(
			"CRITICAL: daily volume limit exceeded\nUser: %d\nCurrent: $%.2f\nAttempted: $%.2f\nLimit: $%.2f\nSignature blocked, user temporarily blocked",
			userID, current, amountUSDC, g.cfg.MaxDailyVolumeUSDC))

		st.blocked = true
		st.blockedAt = g.now()

		return apperrors.Newf(apperrors.ReasonVolumeLimitExceeded,
			"daily volume limit exceeded: $%.2f + $%.2f > $%.2f",
			current, amountUSDC, g.cfg.MaxDailyVolumeUSDC)
	}

	if err := g.usage.AddDailyVolume(ctx, userID, amountUSDC); err != nil {
		logger.Error("usage store write failed", "user_id", userID, "error", err)
	}
	return nil
}

// sendAlert is called with the user's guard lock held; delivery happens on
// its own goroutine so a slow sink never stalls guard checks. The request
// context's deadline does not apply, only the sink's own timeout.
func (g *Guard) sendAlert(ctx context.Context, message string) {
	if g.alerts == nil {
		return
	}
	go g.alerts.Send(context.WithoutCancel(ctx), message)
}

// MemoryUsageStore keeps daily volume in a mutex-guarded map keyed by
// user and UTC date. Day rollover happens implicitly through the key;
// entries are lost on restart.
type MemoryUsageStore struct {
	mu      sync.RWMutex
	volumes map[string]float64
	now     func() time.Time
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{
		volumes: make(map[string]float64),
		now:     time.Now,
	}
}

func (s *MemoryUsageStore) GetDailyVolume(_ context.Context, userID int64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volumes[s.makeKey(userID)], nil
}

func (s *MemoryUsageStore) AddDailyVolume(_ context.Context, userID int64, amountUSDC float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[s.makeKey(userID)] += amountUSDC
	return nil
}

func (s *MemoryUsageStore) makeKey(userID int64) string {
	return fmt.Sprintf("%d:%s", userID, s.now().UTC().Format("2006-01-02"))
}
