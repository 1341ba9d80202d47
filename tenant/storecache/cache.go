// Package storecache keeps one open store handle per tenant locator.
package storecache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	logx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/logger"
	metricsx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/metrics"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

var ErrClosed = fmt.Errorf("%w: store cache closed", contractx.ErrInfrastructure)

const (
	defaultCapacity    = 256
	defaultOpenTimeout = 30 * time.Second
	maxAcquireAttempts = 3
)

// Opener connects to a tenant database and applies its schema. It must not
// return a handle that has not been fully prepared.
type Opener func(ctx context.Context, locator string) (storex.Store, error)

type Cache struct {
	open        Opener
	capacity    int
	openTimeout time.Duration
	metrics     *metricsx.Metrics

	handles *lru.Cache[string, *entry]
	group   singleflight.Group

	mu     sync.RWMutex
	closed bool
}

type Option func(*Cache)

func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

func WithOpenTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.openTimeout = d
		}
	}
}

func WithMetrics(m *metricsx.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func New(open Opener, opts ...Option) (*Cache, error) {
	if open == nil {
		return nil, errors.New("store opener is required")
	}

	c := &Cache{
		open:        open,
		capacity:    defaultCapacity,
		openTimeout: defaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	handles, err := lru.NewWithEvict(c.capacity, c.evicted)
	if err != nil {
		return nil, fmt.Errorf("create store cache: %w", err)
	}
	c.handles = handles
	return c, nil
}

// GetOrCreate returns the handle for locator, opening it on first use.
// Concurrent callers for the same locator share one open; callers for other
// locators are not blocked by it.
//
// The caller must call release when it is done with the handle. A handle
// that leaves the cache stays open until its last release.
func (c *Cache) GetOrCreate(ctx context.Context, locator string) (storex.Store, func(), error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, nil, fmt.Errorf("%w: store locator is empty", contractx.ErrValidation)
	}

	for i := 0; i < maxAcquireAttempts; i++ {
		if c.isClosed() {
			return nil, nil, ErrClosed
		}
		e, err := c.lookup(ctx, locator)
		if err != nil {
			return nil, nil, err
		}
		// a closed entry was evicted between lookup and acquire; look again
		if e.acquire() {
			var once sync.Once
			return e.store, func() { once.Do(e.release) }, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: tenant store evicted while acquiring", contractx.ErrInfrastructure)
}

func (c *Cache) lookup(ctx context.Context, locator string) (*entry, error) {
	if e, ok := c.handles.Get(locator); ok {
		return e, nil
	}

	ch := c.group.DoChan(locator, func() (any, error) {
		if e, ok := c.handles.Get(locator); ok {
			return e, nil
		}
		return c.create(ctx, locator)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entry), nil
	}
}

// create runs detached from the first caller so its cancellation does not
// fail the callers sharing the flight.
func (c *Cache) create(ctx context.Context, locator string) (*entry, error) {
	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.openTimeout)
	defer cancel()

	started := time.Now()
	s, err := c.open(openCtx, locator)
	c.metrics.TenantOpened(err)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("locator", logx.MaskDSN(locator)).
			Dur("elapsed", time.Since(started)).
			Msg("open tenant store failed")
		if !errors.Is(err, contractx.ErrInfrastructure) && !errors.Is(err, contractx.ErrValidation) {
			err = fmt.Errorf("%w: %v", contractx.ErrInfrastructure, err)
		}
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		_ = s.Close()
		return nil, ErrClosed
	}
	e := &entry{locator: locator, store: s}
	c.handles.Add(locator, e)
	c.metrics.SetTenantHandles(c.handles.Len())

	log.Ctx(ctx).Info().
		Str("locator", logx.MaskDSN(locator)).
		Dur("elapsed", time.Since(started)).
		Int("handles", c.handles.Len()).
		Msg("tenant store opened")
	return e, nil
}

func (c *Cache) evicted(_ string, e *entry) {
	e.retire()
	c.metrics.SetTenantHandles(c.handles.Len())
}

func (c *Cache) Len() int {
	return c.handles.Len()
}

func (c *Cache) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close drops every cached handle; each closes once its leases are
// released. Later calls to GetOrCreate fail.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.handles.Purge()
	c.metrics.SetTenantHandles(0)
	return nil
}

// entry is one cached handle with the number of callers holding it.
type entry struct {
	locator string
	store   storex.Store

	mu      sync.Mutex
	leases  int
	retired bool
	closed  bool
}

func (e *entry) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.leases++
	return true
}

func (e *entry) release() {
	e.mu.Lock()
	e.leases--
	done := e.retired && e.leases == 0 && !e.closed
	if done {
		e.closed = true
	}
	e.mu.Unlock()

	if done {
		e.close()
	}
}

// retire marks the entry as out of the cache and closes it when no lease
// is held.
func (e *entry) retire() {
	e.mu.Lock()
	e.retired = true
	done := e.leases == 0 && !e.closed
	if done {
		e.closed = true
	}
	e.mu.Unlock()

	if done {
		e.close()
	}
}

func (e *entry) close() {
	if err := e.store.Close(); err != nil {
		log.Warn().Err(err).Str("locator", logx.MaskDSN(e.locator)).Msg("close evicted tenant store")
	}
}
