package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evbooking/backend/services/booking-gateway/internal/flow"
	redisstore "evbooking/backend/services/booking-gateway/internal/redis"
)

// ErrFlowNotFound is returned for ids that are neither in memory nor in the snapshot store.
var ErrFlowNotFound = errors.New("registry: flow not found")

const saveTimeout = 3 * time.Second

// SnapshotStore persists flow snapshots between requests.
type SnapshotStore interface {
	Save(ctx context.Context, flowID string, session flow.Session) error
	Load(ctx context.Context, flowID string) (flow.Session, error)
	Delete(ctx context.Context, flowID string) error
}

// Config tunes the registry.
type Config struct {
	// IdleTimeout evicts flows from memory after this long without a transition. Their snapshot
	// stays in the store. Zero disables eviction.
	IdleTimeout time.Duration
	// EngineOptions are applied to every engine the registry creates.
	EngineOptions []flow.Option
	// OnSizeChange is told the number of live flows whenever it changes.
	OnSizeChange func(n int)
	Now          func() time.Time
}

// Registry owns the live booking flows of the gateway.
type Registry struct {
	mu      sync.RWMutex
	flows   map[string]*flow.Engine
	touched map[string]time.Time // last lookup per flow
	backend flow.Backend
	store   SnapshotStore
	cfg     Config
	logger  *zap.Logger
}

// New builds registry. store may be nil, in which case flows live only in memory.
func New(backend flow.Backend, store SnapshotStore, cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		flows:   make(map[string]*flow.Engine),
		touched: make(map[string]time.Time),
		backend: backend,
		store:   store,
		cfg:     cfg,
		logger:  logger,
	}
}

// Create starts a new flow with a random id.
func (r *Registry) Create() *flow.Engine {
	engine := r.newEngine(uuid.NewString())

	r.mu.Lock()
	r.flows[engine.ID()] = engine
	r.touched[engine.ID()] = r.cfg.Now()
	n := len(r.flows)
	r.mu.Unlock()

	r.sizeChanged(n)
	return engine
}

// Get returns the flow with id, restoring it from the snapshot store when it was evicted.
// A lookup counts as activity, so a flow just handed out is not swept before it is used.
func (r *Registry) Get(ctx context.Context, id string) (*flow.Engine, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrFlowNotFound
	}

	r.mu.Lock()
	engine, ok := r.flows[id]
	if ok {
		r.touched[id] = r.cfg.Now()
	}
	r.mu.Unlock()
	if ok {
		return engine, nil
	}
	if r.store == nil {
		return nil, ErrFlowNotFound
	}

	snapshot, err := r.store.Load(ctx, id)
	if errors.Is(err, redisstore.ErrNotFound) {
		return nil, ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: load flow %s: %w", id, err)
	}

	restored := r.newEngine(id)
	restored.Restore(snapshot)

	r.mu.Lock()
	r.touched[id] = r.cfg.Now()
	if existing, ok := r.flows[id]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.flows[id] = restored
	n := len(r.flows)
	r.mu.Unlock()

	r.logger.Info("restored booking flow", zap.String("flow_id", id), zap.String("phase", string(snapshot.Phase())))
	r.sizeChanged(n)
	return restored, nil
}

// Remove forgets a flow and deletes its snapshot.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.flows, id)
	delete(r.touched, id)
	n := len(r.flows)
	r.mu.Unlock()
	r.sizeChanged(n)

	if r.store == nil {
		return nil
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("registry: delete flow %s: %w", id, err)
	}
	return nil
}

// Len returns the number of flows held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}

// Sweep evicts flows idle for longer than the idle timeout and returns how many were evicted.
// A flow is idle when neither a transition nor a Get touched it. Flows waiting on the backend
// are kept.
func (r *Registry) Sweep() int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.cfg.Now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	evicted := 0
	for id, engine := range r.flows {
		if engine.LastActive().After(cutoff) || r.touched[id].After(cutoff) || engine.Session().Loading {
			continue
		}
		delete(r.flows, id)
		delete(r.touched, id)
		evicted++
	}
	n := len(r.flows)
	r.mu.Unlock()

	if evicted > 0 {
		r.logger.Info("evicted idle booking flows", zap.Int("evicted", evicted), zap.Int("live", n))
		r.sizeChanged(n)
	}
	return evicted
}

// Start runs the idle sweep until ctx is done.
func (r *Registry) Start(ctx context.Context) {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	interval := r.cfg.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// OnTransition implements flow.Observer by persisting every new snapshot.
func (r *Registry) OnTransition(ctx context.Context, ev flow.Event, session flow.Session) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := r.store.Save(ctx, ev.FlowID, session); err != nil {
		r.logger.Warn("failed to persist flow snapshot",
			zap.String("flow_id", ev.FlowID),
			zap.String("op", string(ev.Op)),
			zap.Error(err),
		)
	}
}

func (r *Registry) newEngine(id string) *flow.Engine {
	opts := make([]flow.Option, 0, len(r.cfg.EngineOptions)+1)
	opts = append(opts, r.cfg.EngineOptions...)
	opts = append(opts, flow.WithObserver(r))
	return flow.NewEngine(id, r.backend, opts...)
}

func (r *Registry) sizeChanged(n int) {
	if r.cfg.OnSizeChange != nil {
		r.cfg.OnSizeChange(n)
	}
}
