package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evbooking/backend/services/booking-gateway/internal/flow"
	redisstore "evbooking/backend/services/booking-gateway/internal/redis"
)

type slotsBackend struct{}

func (slotsBackend) ListAvailableSlots(context.Context, int64) ([]flow.SlotRecord, error) {
	start := time.Date(2026, time.March, 11, 10, 0, 0, 0, time.UTC)
	return []flow.SlotRecord{{StartTime: start, EndTime: start.Add(time.Hour), Available: true}}, nil
}

func (slotsBackend) CreateBooking(context.Context, flow.BookingRequest) (flow.BookingRecord, error) {
	return flow.BookingRecord{}, nil
}

func (slotsBackend) ProcessPayment(context.Context, int64, flow.PaymentMethod) (flow.BookingRecord, error) {
	return flow.BookingRecord{}, nil
}

func (slotsBackend) SubscriptionStatus(context.Context) (flow.SubscriptionInfo, error) {
	return flow.SubscriptionInfo{}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, idle time.Duration) (*Registry, *miniredis.Miniredis, *clock, *[]int) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := &clock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	sizes := &[]int{}
	reg := New(slotsBackend{}, redisstore.NewStore(client, time.Hour), Config{
		IdleTimeout:   10 * time.Minute,
		EngineOptions: []flow.Option{flow.WithClock(clk.Now), flow.WithLocation(time.UTC)},
		OnSizeChange:  func(n int) { *sizes = append(*sizes, n) },
		Now:           clk.Now,
	}, nil)
	if idle >= 0 {
		reg.cfg.IdleTimeout = idle
	}
	return reg, mr, clk, sizes
}

func TestCreateAndGet(t *testing.T) {
	reg, _, _, sizes := newTestRegistry(t, -1)

	engine := reg.Create()
	_, err := uuid.Parse(engine.ID())
	require.NoError(t, err)

	got, err := reg.Get(context.Background(), engine.ID())
	require.NoError(t, err)
	assert.Same(t, engine, got)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, []int{1}, *sizes)
}

func TestGetUnknown(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t, -1)

	_, err := reg.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrFlowNotFound)

	_, err = reg.Get(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestTransitionsArePersisted(t *testing.T) {
	reg, mr, _, _ := newTestRegistry(t, -1)
	engine := reg.Create()

	_, err := engine.Open(context.Background(), 3)
	require.NoError(t, err)

	assert.True(t, mr.Exists("flows:snapshot:"+engine.ID()))
}

func TestEvictedFlowIsRestored(t *testing.T) {
	reg, _, clk, _ := newTestRegistry(t, -1)
	engine := reg.Create()
	ctx := context.Background()
	_, err := engine.Open(ctx, 3)
	require.NoError(t, err)
	_, err = engine.SelectSlot(ctx, flow.SlotRecord{StartTime: time.Date(2026, time.March, 11, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	assert.Zero(t, reg.Sweep(), "not idle long enough")

	clk.Advance(6 * time.Minute)
	assert.Equal(t, 1, reg.Sweep())
	assert.Zero(t, reg.Len())

	restored, err := reg.Get(ctx, engine.ID())
	require.NoError(t, err)
	assert.NotSame(t, engine, restored)

	s := restored.Session()
	assert.Equal(t, int64(3), s.PortID)
	require.NotNil(t, s.SelectedSlot())
	assert.Equal(t, 10, s.SelectedSlot().StartTime.Hour())
	assert.False(t, restored.Grid().Empty())
}

func TestSweepKeepsFlowJustLookedUp(t *testing.T) {
	reg, _, clk, _ := newTestRegistry(t, -1)
	engine := reg.Create()
	ctx := context.Background()
	_, err := engine.Open(ctx, 3)
	require.NoError(t, err)

	clk.Advance(11 * time.Minute)
	got, err := reg.Get(ctx, engine.ID())
	require.NoError(t, err)
	assert.Same(t, engine, got)

	assert.Zero(t, reg.Sweep())
	assert.Equal(t, 1, reg.Len())

	again, err := reg.Get(ctx, engine.ID())
	require.NoError(t, err)
	assert.Same(t, engine, again)

	clk.Advance(11 * time.Minute)
	assert.Equal(t, 1, reg.Sweep())
}

func TestSweepDisabled(t *testing.T) {
	reg, _, clk, _ := newTestRegistry(t, 0)
	reg.Create()

	clk.Advance(24 * time.Hour)
	assert.Zero(t, reg.Sweep())
	assert.Equal(t, 1, reg.Len())
}

func TestRemoveDeletesSnapshot(t *testing.T) {
	reg, mr, _, sizes := newTestRegistry(t, -1)
	engine := reg.Create()
	ctx := context.Background()
	_, err := engine.Open(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, reg.Remove(ctx, engine.ID()))

	assert.False(t, mr.Exists("flows:snapshot:"+engine.ID()))
	_, err = reg.Get(ctx, engine.ID())
	assert.ErrorIs(t, err, ErrFlowNotFound)
	assert.Equal(t, []int{1, 0}, *sizes)
}

func TestMemoryOnlyRegistry(t *testing.T) {
	reg := New(slotsBackend{}, nil, Config{}, nil)
	engine := reg.Create()

	_, err := engine.Open(context.Background(), 3)
	require.NoError(t, err)
	require.NoError(t, reg.Remove(context.Background(), engine.ID()))

	_, err = reg.Get(context.Background(), engine.ID())
	assert.ErrorIs(t, err, ErrFlowNotFound)
}
