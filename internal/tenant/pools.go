package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/metrics"
	"github.com/and161185/zerobase/internal/repository/postgres"
)

type pooled struct {
	pool     *pgxpool.Pool
	lastUsed time.Time
	refs     int
}

// Pools caches one connection pool per tenant database. When more than
// maxPools are open, the least recently used pool nobody holds is closed.
type Pools struct {
	loc      *Locator
	maxPools int
	maxConns int32
	log      *zap.Logger

	mu        sync.Mutex
	pools     map[string]*pooled
	now       func() time.Time
	closePool func(*pgxpool.Pool)
}

// NewPools constructs a pool cache. maxPools <= 0 means unbounded.
func NewPools(loc *Locator, maxPools int, maxConns int32, log *zap.Logger) *Pools {
	return &Pools{
		loc:       loc,
		maxPools:  maxPools,
		maxConns:  maxConns,
		log:       log,
		pools:     make(map[string]*pooled),
		now:       time.Now,
		closePool: (*pgxpool.Pool).Close,
	}
}

var _ postgres.TenantConnector = (*Pools)(nil)

// Tenant returns the pool for projectID, opening it on first use. The pool
// is not evicted before release is called.
func (p *Pools) Tenant(ctx context.Context, projectID string) (postgres.PgxPool, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.pools[projectID]; ok {
		e.lastUsed = p.now()
		e.refs++
		return e.pool, p.releaser(e), nil
	}

	cfg := p.loc.Locate(projectID)
	if p.maxConns > 0 {
		cfg.MaxConns = p.maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open tenant pool %s: %w", projectID, err)
	}
	e := &pooled{pool: pool, lastUsed: p.now(), refs: 1}
	p.pools[projectID] = e
	p.evictLocked()
	metrics.TenantPools.Set(float64(len(p.pools)))
	return pool, p.releaser(e), nil
}

func (p *Pools) releaser(e *pooled) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			e.refs--
			p.evictLocked()
			metrics.TenantPools.Set(float64(len(p.pools)))
		})
	}
}

// evictLocked closes unheld pools, oldest first, until the cache fits.
// While every pool is held the cache stays over its limit.
func (p *Pools) evictLocked() {
	for p.maxPools > 0 && len(p.pools) > p.maxPools {
		var (
			victim string
			oldest time.Time
		)
		for id, e := range p.pools {
			if e.refs > 0 {
				continue
			}
			if victim == "" || e.lastUsed.Before(oldest) {
				victim, oldest = id, e.lastUsed
			}
		}
		if victim == "" {
			return
		}
		p.closePool(p.pools[victim].pool)
		delete(p.pools, victim)
		p.log.Debug("tenant pool evicted", zap.String("project", victim))
	}
}

// Len reports the number of open pools.
func (p *Pools) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pools)
}

// Close closes every cached pool.
func (p *Pools) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.pools {
		p.closePool(e.pool)
		delete(p.pools, id)
	}
	metrics.TenantPools.Set(0)
}
