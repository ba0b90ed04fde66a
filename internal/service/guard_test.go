package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaroHarado/copytrade-key/internal/config"
	"github.com/TaroHarado/copytrade-key/internal/pkg/apperrors"
)

type failingUsageStore struct{}

func (failingUsageStore) GetDailyVolume(context.Context, int64) (float64, error) {
	return 0, errors.New("store down")
}

func (failingUsageStore) AddDailyVolume(context.Context, int64, float64) error {
	return errors.New("store down")
}

func newTestGuard(cfg config.GuardConfig, usage UsageStore) (*Guard, *time.Time) {
	g := NewGuard(cfg, usage, nil)
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return current }
	return g, &current
}

func TestGuardRateLimit(t *testing.T) {
	g, now := newTestGuard(config.GuardConfig{MaxSignaturesPerMinute: 3}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Allow(ctx, 1, 10))
	}

	err := g.Allow(ctx, 1, 10)
	assert.True(t, apperrors.Is(err, apperrors.ReasonRateLimitExceeded))

	// A rejection consumes no slot: still rejected, not pushed further out.
	err = g.Allow(ctx, 1, 10)
	assert.True(t, apperrors.Is(err, apperrors.ReasonRateLimitExceeded))

	// Once the window slides past the old requests the user may sign again.
	*now = now.Add(61 * time.Second)
	assert.NoError(t, g.Allow(ctx, 1, 10))
}

func TestGuardRateLimitPerUser(t *testing.T) {
	g, _ := newTestGuard(config.GuardConfig{MaxSignaturesPerMinute: 1}, nil)
	ctx := context.Background()

	require.NoError(t, g.Allow(ctx, 1, 10))
	err := g.Allow(ctx, 1, 10)
	assert.True(t, apperrors.Is(err, apperrors.ReasonRateLimitExceeded))

	// Another user is unaffected.
	assert.NoError(t, g.Allow(ctx, 2, 10))
}

func TestGuardVolumeLimit(t *testing.T) {
	g, _ := newTestGuard(config.GuardConfig{
		MaxDailyVolumeUSDC: 1000,
		BlockMinutes:       60,
	}, NewMemoryUsageStore())
	ctx := context.Background()

	require.NoError(t, g.Allow(ctx, 1, 950))

	// 950 + 100 > 1000: rejected, volume not accumulated, user blocked.
	err := g.Allow(ctx, 1, 100)
	assert.True(t, apperrors.Is(err, apperrors.ReasonVolumeLimitExceeded))

	err = g.Allow(ctx, 1, 40)
	assert.True(t, apperrors.Is(err, apperrors.ReasonUserBlocked))
}

func TestGuardVolumeRejectionDoesNotAccumulate(t *testing.T) {
	usage := NewMemoryUsageStore()
	g, now := newTestGuard(config.GuardConfig{
		MaxDailyVolumeUSDC: 1000,
		BlockMinutes:       60,
	}, usage)
	ctx := context.Background()

	require.NoError(t, g.Allow(ctx, 1, 950))
	require.Error(t, g.Allow(ctx, 1, 100))

	// Unblock by advancing past the block duration; the rejected $100 was
	// never counted, so $40 still fits under the cap.
	*now = now.Add(61 * time.Minute)
	assert.NoError(t, g.Allow(ctx, 1, 40))

	volume, err := usage.GetDailyVolume(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 990, volume, 0.001)
}

func TestGuardBlockExpiry(t *testing.T) {
	g, now := newTestGuard(config.GuardConfig{
		MaxDailyVolumeUSDC: 100,
		BlockMinutes:       30,
	}, NewMemoryUsageStore())
	ctx := context.Background()

	require.Error(t, g.Allow(ctx, 1, 200))

	err := g.Allow(ctx, 1, 10)
	assert.True(t, apperrors.Is(err, apperrors.ReasonUserBlocked))

	*now = now.Add(31 * time.Minute)
	assert.NoError(t, g.Allow(ctx, 1, 10))
}

func TestGuardZeroLimitsUnlimited(t *testing.T) {
	g, _ := newTestGuard(config.GuardConfig{}, nil)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, g.Allow(ctx, 1, 1e6))
	}
}

func TestGuardUnlimitedRateKeepsNoWindowState(t *testing.T) {
	g, _ := newTestGuard(config.GuardConfig{}, nil)
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		require.NoError(t, g.Allow(ctx, 1, 1))
		require.NoError(t, g.AllowRateOnly(ctx, 2))
	}

	// An unlimited rate gate never consults the window, so nothing may
	// accumulate there.
	assert.Empty(t, g.userState(1).requests)
	assert.Empty(t, g.userState(2).requests)
}

type blockingAlertSink struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingAlertSink) Send(_ context.Context, _ string) {
	s.started <- struct{}{}
	<-s.release
}

func TestGuardAlertDeliveryDoesNotHoldLock(t *testing.T) {
	sink := &blockingAlertSink{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	g := NewGuard(config.GuardConfig{
		MaxDailyVolumeUSDC: 100,
		BlockMinutes:       60,
	}, NewMemoryUsageStore(), sink)
	ctx := context.Background()

	// The breach must reject immediately even though the sink is stuck.
	err := g.Allow(ctx, 1, 200)
	assert.True(t, apperrors.Is(err, apperrors.ReasonVolumeLimitExceeded))

	// And further guard checks for the same user are not serialized
	// behind the delivery.
	err = g.Allow(ctx, 1, 10)
	assert.True(t, apperrors.Is(err, apperrors.ReasonUserBlocked))

	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("alert was never dispatched")
	}
	close(sink.release)
}

func TestGuardUsageStoreFailureSkipsVolumeGate(t *testing.T) {
	g, _ := newTestGuard(config.GuardConfig{
		MaxDailyVolumeUSDC: 100,
	}, failingUsageStore{})
	ctx := context.Background()

	// A broken usage store degrades the volume gate instead of refusing
	// all signing.
	assert.NoError(t, g.Allow(ctx, 1, 500))
}

func TestGuardAllowRateOnlySkipsVolume(t *testing.T) {
	g, _ := newTestGuard(config.GuardConfig{
		MaxSignaturesPerMinute: 10,
		MaxDailyVolumeUSDC:     100,
	}, NewMemoryUsageStore())
	ctx := context.Background()

	// The volume cap would reject this amount but allowances carry none.
	assert.NoError(t, g.AllowRateOnly(ctx, 1))
	assert.NoError(t, g.Allow(ctx, 1, 50))

	volume, err := g.usage.GetDailyVolume(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 50, volume, 0.001)
}
