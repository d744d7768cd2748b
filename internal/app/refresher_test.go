package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/splatauth/pkg/exchange"
	"github.com/aussiebroadwan/splatauth/pkg/slogx"
	"github.com/aussiebroadwan/splatauth/pkg/tokens"
	"github.com/stretchr/testify/require"
)

type countingRegen struct {
	gtokens atomic.Int32
	bullets atomic.Int32
	fail    atomic.Bool
}

func (c *countingRegen) MintGToken(ctx context.Context, session string) (*exchange.Grant, error) {
	if c.fail.Load() {
		return nil, fmt.Errorf("provider down")
	}
	n := c.gtokens.Add(1)
	return &exchange.Grant{GToken: fmt.Sprintf("gtoken-%d", n), CoralUserID: "1"}, nil
}

func (c *countingRegen) MintBulletToken(ctx context.Context, grant *exchange.Grant) (string, error) {
	if c.fail.Load() {
		return "", fmt.Errorf("provider down")
	}
	n := c.bullets.Add(1)
	return fmt.Sprintf("bullet-%d", n), nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRefresherFixture(t *testing.T) (*Refresher, *countingRegen, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Unix(1700000000, 0)}
	regen := &countingRegen{}
	store := tokens.NewStore(regen, tokens.WithClock(clock.Now))
	_, err := store.Set(context.Background(), tokens.KindSession, "session-1", time.Time{})
	require.NoError(t, err)

	r := NewRefresher(store, slogx.Discard(), time.Minute, 10*time.Minute)
	r.now = clock.Now
	return r, regen, clock
}

func TestRefresherMintsMissingTokens(t *testing.T) {
	t.Parallel()

	r, regen, _ := newRefresherFixture(t)

	require.Equal(t, 2, r.refresh(context.Background()))
	require.Equal(t, int32(1), regen.gtokens.Load())
	require.Equal(t, int32(1), regen.bullets.Load())

	// Nothing is due yet
	require.Zero(t, r.refresh(context.Background()))
}

func TestRefresherRegeneratesWithinMargin(t *testing.T) {
	t.Parallel()

	r, regen, clock := newRefresherFixture(t)
	require.Equal(t, 2, r.refresh(context.Background()))

	// Bullet expires first
	clock.Advance(tokens.BulletTTL - 9*time.Minute)
	require.Equal(t, 1, r.refresh(context.Background()))
	require.Equal(t, int32(1), regen.gtokens.Load())
	require.Equal(t, int32(2), regen.bullets.Load())

	bullet, ok := r.Tokens.Peek(tokens.KindBullet)
	require.True(t, ok)
	require.Equal(t, "bullet-2", bullet.Value())
}

func TestRefresherKeepsTokensOnFailure(t *testing.T) {
	t.Parallel()

	r, regen, clock := newRefresherFixture(t)
	require.Equal(t, 2, r.refresh(context.Background()))

	regen.fail.Store(true)
	clock.Advance(tokens.BulletTTL - time.Minute)
	require.Zero(t, r.refresh(context.Background()))

	bullet, ok := r.Tokens.Peek(tokens.KindBullet)
	require.True(t, ok)
	require.Equal(t, "bullet-1", bullet.Value())
}

func TestRefresherWithoutSession(t *testing.T) {
	t.Parallel()

	regen := &countingRegen{}
	r := NewRefresher(tokens.NewStore(regen), slogx.Discard(), 0, 0)

	require.Equal(t, time.Minute, r.Interval)
	require.Equal(t, 10*time.Minute, r.Margin)
	require.Zero(t, r.refresh(context.Background()))
	require.Zero(t, regen.gtokens.Load())
}

func TestRefresherStartStop(t *testing.T) {
	t.Parallel()

	r, regen, _ := newRefresherFixture(t)
	r.Start(context.Background())

	require.Eventually(t, func() bool {
		return regen.bullets.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	r.Stop()
}
