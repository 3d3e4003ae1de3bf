// Package cache provides caching infrastructure with PostgreSQL LISTEN/NOTIFY support.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"foodledger/internal/core/id"
	"foodledger/internal/domain/inventory"
	"foodledger/pkg/logger"
)

// SettingsChangedChannel is notified by a trigger on cat_products with the
// payload "<tenant_id>:<product_id>". An empty payload flushes the cache.
const SettingsChangedChannel = "product_settings_changed"

const defaultTTL = 5 * time.Minute

var _ inventory.ProductCatalog = (*SettingsCache)(nil)

type settingsKey struct {
	tenantID  string
	productID id.ID
}

type cachedSettings struct {
	settings inventory.ProductSettings
	loadedAt time.Time
}

// SettingsCache keeps product settings in memory in front of a catalog.
// Entries expire after a TTL and are dropped early on NOTIFY.
type SettingsCache struct {
	next inventory.ProductCatalog
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[settingsKey]cachedSettings

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewSettingsCache wraps next. pool is used for LISTEN and may be nil, in
// which case only the TTL applies.
func NewSettingsCache(next inventory.ProductCatalog, pool *pgxpool.Pool, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &SettingsCache{
		next:    next,
		pool:    pool,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[settingsKey]cachedSettings),
	}
}

// Settings returns cached settings or loads them from the wrapped catalog.
// Errors, not-found included, are never cached.
func (c *SettingsCache) Settings(ctx context.Context, tenantID string, productID id.ID) (inventory.ProductSettings, error) {
	key := settingsKey{tenantID: tenantID, productID: productID}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.loadedAt) < c.ttl {
		return entry.settings, nil
	}

	ps, err := c.next.Settings(ctx, tenantID, productID)
	if err != nil {
		return ps, err
	}

	c.mu.Lock()
	c.entries[key] = cachedSettings{settings: ps, loadedAt: c.now()}
	c.mu.Unlock()
	return ps, nil
}

// Start begins listening for invalidation notifications.
func (c *SettingsCache) Start(ctx context.Context) {
	if c.pool == nil {
		return
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "settings cache started", "channel", SettingsChangedChannel)
}

// Stop gracefully stops the listener.
func (c *SettingsCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	cancel()
	c.wg.Wait()
	logger.Info(context.Background(), "settings cache stopped")
}

// listenLoop holds a dedicated connection for LISTEN and reconnects on failure.
func (c *SettingsCache) listenLoop() {
	defer c.wg.Done()

	for c.ctx.Err() == nil {
		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			c.sleep(time.Second)
			continue
		}

		if _, err = conn.Exec(c.ctx, "LISTEN "+SettingsChangedChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			c.sleep(time.Second)
			continue
		}

		// Anything cached before the listener attached may be stale.
		c.flush()
		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *SettingsCache) waitForNotifications(conn *pgxpool.Conn) {
	for c.ctx.Err() == nil {
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		n, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if ctx.Err() != nil {
				continue
			}
			logger.Warn(c.ctx, "LISTEN connection lost", "error", err)
			return
		}
		c.handleNotification(n.Payload)
	}
}

// handleNotification drops the entry named by payload.
func (c *SettingsCache) handleNotification(payload string) {
	tenantID, rawID, ok := strings.Cut(strings.TrimSpace(payload), ":")
	if !ok {
		c.flush()
		return
	}
	productID, err := id.Parse(rawID)
	if err != nil {
		c.flush()
		return
	}

	c.mu.Lock()
	delete(c.entries, settingsKey{tenantID: tenantID, productID: productID})
	c.mu.Unlock()
}

func (c *SettingsCache) flush() {
	c.mu.Lock()
	c.entries = make(map[settingsKey]cachedSettings)
	c.mu.Unlock()
}

func (c *SettingsCache) sleep(d time.Duration) {
	select {
	case <-c.ctx.Done():
	case <-time.After(d):
	}
}
