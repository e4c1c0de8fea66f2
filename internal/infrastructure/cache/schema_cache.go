// Package cache keeps directory field definitions in memory, invalidated
// through PostgreSQL LISTEN/NOTIFY.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/pkg/logger"
)

// SchemaChangedChannel is notified by a trigger on directory_fields with the
// owning directory id as payload.
const SchemaChangedChannel = "directory_schema_changed"

// InvalidationListener is called after an invalidation was applied.
type InvalidationListener func(channel string, payload string)

// FieldCache is a read-through cache in front of a FieldRepository. Writes go
// to the repository and drop the affected entries immediately; other
// processes learn about changes from NOTIFY.
type FieldCache struct {
	inner directory.FieldRepository
	pool  *pgxpool.Pool

	// bypass reports contexts whose reads must not populate the cache,
	// such as open transactions that may still roll back.
	bypass func(ctx context.Context) bool

	mu        sync.RWMutex
	byDir     map[id.ID][]*directory.Field
	byID      map[id.ID]*directory.Field
	relations []*directory.Field
	hits      atomic.Int64
	misses    atomic.Int64

	listenersMu sync.RWMutex
	listeners   []InvalidationListener

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

var _ directory.FieldRepository = (*FieldCache)(nil)

// NewFieldCache wraps inner. pool may be nil, in which case Start only
// marks the cache as running and no cross-process invalidation happens.
func NewFieldCache(inner directory.FieldRepository, pool *pgxpool.Pool, bypass func(ctx context.Context) bool) *FieldCache {
	if bypass == nil {
		bypass = func(context.Context) bool { return false }
	}
	return &FieldCache{
		inner:  inner,
		pool:   pool,
		bypass: bypass,
		byDir:  make(map[id.ID][]*directory.Field),
		byID:   make(map[id.ID]*directory.Field),
		ctx:    context.Background(),
	}
}

// Start begins listening for schema notifications.
func (c *FieldCache) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true
	if c.pool != nil {
		c.wg.Add(1)
		go c.listenLoop()
	}
	logger.Info(c.ctx, "field cache started", "listen", c.pool != nil)
	return nil
}

// Stop ends the listener and waits for it.
func (c *FieldCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.lifecycleMu.Unlock()

	cancel()
	c.wg.Wait()
	logger.Info(context.Background(), "field cache stopped")
}

func (c *FieldCache) listenLoop() {
	defer c.wg.Done()
	for c.ctx.Err() == nil {
		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if _, err := conn.Exec(c.ctx, "LISTEN "+SchemaChangedChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "channel", SchemaChangedChannel, "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}
		// notifications may have been missed while disconnected
		c.InvalidateAll()
		logger.Info(c.ctx, "listening for schema notifications", "channel", SchemaChangedChannel)
		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *FieldCache) waitForNotifications(conn *pgxpool.Conn) {
	for c.ctx.Err() == nil {
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		n, err := conn.Conn().WaitForNotification(ctx)
		cancel()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if conn.Conn().IsClosed() {
				logger.Warn(c.ctx, "LISTEN connection lost", "error", err)
				return
			}
			continue
		}
		c.handleNotification(n.Channel, n.Payload)
	}
}

func (c *FieldCache) handleNotification(channel, payload string) {
	if channel != SchemaChangedChannel {
		return
	}
	logger.Debug(c.ctx, "schema changed", "payload", payload)
	dirID, err := id.Parse(strings.TrimSpace(payload))
	if err != nil {
		c.InvalidateAll()
	} else {
		c.Invalidate(dirID)
	}

	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, l := range c.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(c.ctx, "listener panic recovered", "channel", channel, "panic", r)
				}
			}()
			l(channel, payload)
		}()
	}
}

// OnInvalidation registers a callback run after each notification.
func (c *FieldCache) OnInvalidation(l InvalidationListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
}

// Invalidate drops the fields of one directory and the relation list.
func (c *FieldCache) Invalidate(directoryID id.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.byDir[directoryID] {
		delete(c.byID, f.ID)
	}
	for fid, f := range c.byID {
		if f.DirectoryID == directoryID {
			delete(c.byID, fid)
		}
	}
	delete(c.byDir, directoryID)
	c.relations = nil
}

// InvalidateAll empties the cache.
func (c *FieldCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byDir = make(map[id.ID][]*directory.Field)
	c.byID = make(map[id.ID]*directory.Field)
	c.relations = nil
}

func (c *FieldCache) CreateField(ctx context.Context, f *directory.Field) error {
	defer c.Invalidate(f.DirectoryID)
	return c.inner.CreateField(ctx, f)
}

func (c *FieldCache) UpdateField(ctx context.Context, f *directory.Field) error {
	defer c.Invalidate(f.DirectoryID)
	return c.inner.UpdateField(ctx, f)
}

func (c *FieldCache) DeleteField(ctx context.Context, fieldID id.ID) error {
	f, err := c.inner.GetField(ctx, fieldID)
	if err != nil {
		return err
	}
	defer c.Invalidate(f.DirectoryID)
	return c.inner.DeleteField(ctx, fieldID)
}

func (c *FieldCache) GetField(ctx context.Context, fieldID id.ID) (*directory.Field, error) {
	c.mu.RLock()
	f, ok := c.byID[fieldID]
	c.mu.RUnlock()
	if ok {
		c.hit()
		return copyField(f), nil
	}
	c.miss()

	f, err := c.inner.GetField(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	if !c.bypass(ctx) {
		c.mu.Lock()
		c.byID[fieldID] = copyField(f)
		c.mu.Unlock()
	}
	return f, nil
}

func (c *FieldCache) ListFields(ctx context.Context, directoryID id.ID) ([]*directory.Field, error) {
	c.mu.RLock()
	fields, ok := c.byDir[directoryID]
	c.mu.RUnlock()
	if ok {
		c.hit()
		return copyFields(fields), nil
	}
	c.miss()

	fields, err := c.inner.ListFields(ctx, directoryID)
	if err != nil {
		return nil, err
	}
	if !c.bypass(ctx) {
		c.mu.Lock()
		c.byDir[directoryID] = copyFields(fields)
		for _, f := range fields {
			c.byID[f.ID] = copyField(f)
		}
		c.mu.Unlock()
	}
	return fields, nil
}

func (c *FieldCache) ListRelationFields(ctx context.Context) ([]*directory.Field, error) {
	c.mu.RLock()
	rel := c.relations
	c.mu.RUnlock()
	if rel != nil {
		c.hit()
		return copyFields(rel), nil
	}
	c.miss()

	rel, err := c.inner.ListRelationFields(ctx)
	if err != nil {
		return nil, err
	}
	if !c.bypass(ctx) {
		c.mu.Lock()
		c.relations = copyFields(rel)
		if c.relations == nil {
			c.relations = []*directory.Field{}
		}
		c.mu.Unlock()
	}
	return rel, nil
}

// FieldNameExists is never cached; it guards writes.
func (c *FieldCache) FieldNameExists(ctx context.Context, directoryID id.ID, name string, exceptID *id.ID) (bool, error) {
	return c.inner.FieldNameExists(ctx, directoryID, name, exceptID)
}

func (c *FieldCache) hit()  { c.hits.Add(1) }
func (c *FieldCache) miss() { c.misses.Add(1) }

// CacheStats is a snapshot of cache usage.
type CacheStats struct {
	Directories int   `json:"directories"`
	Fields      int   `json:"fields"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
}

func (c *FieldCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Directories: len(c.byDir),
		Fields:      len(c.byID),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
	}
}

func (s CacheStats) String() string {
	return fmt.Sprintf("directories=%d fields=%d hits=%d misses=%d", s.Directories, s.Fields, s.Hits, s.Misses)
}

func copyField(f *directory.Field) *directory.Field {
	cp := *f
	if f.Type.Target != nil {
		t := *f.Type.Target
		cp.Type.Target = &t
	}
	if f.Meta.Order != nil {
		o := *f.Meta.Order
		cp.Meta.Order = &o
	}
	return &cp
}

func copyFields(in []*directory.Field) []*directory.Field {
	if in == nil {
		return nil
	}
	out := make([]*directory.Field, len(in))
	for i, f := range in {
		out[i] = copyField(f)
	}
	return out
}
