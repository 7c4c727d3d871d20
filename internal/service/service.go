package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealer-service/internal/broker"
	"dealer-service/internal/lifecycle"
	"dealer-service/internal/models"
	"dealer-service/internal/redisclient"
	"dealer-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrBusy is returned when another request holds the entity's transition lock
	ErrBusy = errors.New("entity is being modified by another request")
	// ErrPreconditionFailed is returned when a transition is allowed by the
	// table but its business precondition does not hold.
	ErrPreconditionFailed = errors.New("transition precondition not met")
)

// Cache groups. A mutation invalidates every key filled under its group.
const (
	groupQuotations   = "quotations"
	groupAgencyOrders = "agency-orders"
	groupPromotions   = "promotions"
	groupInventory    = "inventory"
)

// GroupsFor returns the cache groups affected by a change to entity.
func GroupsFor(entity string) []string {
	switch entity {
	case models.EntityQuotation:
		return []string{groupQuotations}
	case models.EntityAgencyOrder:
		return []string{groupAgencyOrders, groupInventory}
	case models.EntityOrder:
		return []string{groupQuotations}
	case models.EntityPromotion:
		return []string{groupPromotions}
	}
	return nil
}

// Publisher publishes lifecycle events; *broker.EventPublisher satisfies it.
type Publisher interface {
	PublishTransition(ctx context.Context, event *models.StatusTransitionedEvent) error
	PublishVehicleAllocated(ctx context.Context, orderID, agencyID, instanceID, contractID int64) error
	PublishPromotionChanged(ctx context.Context, promotionID, vehicleID int64) error
}

// Options tunes the services
type Options struct {
	CacheTTL time.Duration
	LockTTL  time.Duration
	Location *time.Location
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 30 * time.Second
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Second
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// base carries what every use case needs: cache, locks and event publishing.
type base struct {
	redis     *redisclient.Client
	publisher Publisher
	opts      Options
	fills     singleflight.Group
	logger    *zap.Logger
}

func newBase(redis *redisclient.Client, publisher Publisher, opts Options) *base {
	return &base{
		redis:     redis,
		publisher: publisher,
		opts:      opts.withDefaults(),
		logger:    util.ComponentLogger("service"),
	}
}

// today is the current instant in the pricing location
func (b *base) today() time.Time {
	return b.opts.Now().In(b.opts.Location)
}

// withLock runs fn while holding the entity's transition lock.
func (b *base) withLock(ctx context.Context, entity string, id int64, fn func(context.Context) error) error {
	key := fmt.Sprintf("%s:%d", entity, id)
	token, ok, err := b.redis.AcquireLock(ctx, key, b.opts.LockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrBusy, key)
	}
	defer func() {
		if err := b.redis.ReleaseLock(context.Background(), key, token); err != nil {
			b.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// fillTimeout bounds a shared cache fill
var fillTimeout = 30 * time.Second

// cachedList serves a list from the read cache, filling it from fetch on a
// miss. Concurrent misses for the same key share one fetch.
func cachedList[T any](ctx context.Context, b *base, group, key string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	var out []T
	hit, err := b.redis.GetJSON(ctx, key, &out)
	if err != nil {
		b.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		util.CacheRequestsTotal.WithLabelValues("hit").Inc()
		return out, nil
	}
	util.CacheRequestsTotal.WithLabelValues("miss").Inc()

	v, err, _ := b.fills.Do(key, func() (interface{}, error) {
		// Shared by every waiter, so the first caller's cancellation must not end it.
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		items, err := fetch(fillCtx)
		if err != nil {
			return nil, err
		}
		if err := b.redis.SetJSON(fillCtx, group, key, items, b.opts.CacheTTL); err != nil {
			b.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

// refetch re-reads a record after a write so callers see what the backend
// stored. If the read fails the locally updated copy is returned.
func refetch[T any](ctx context.Context, b *base, written *T, get func(context.Context) (*T, error)) *T {
	fresh, err := get(ctx)
	if err != nil {
		b.logger.Warn("Refetch after write failed", zap.String("type", fmt.Sprintf("%T", written)), zap.Error(err))
		return written
	}
	return fresh
}

func (b *base) invalidate(ctx context.Context, groups ...string) {
	if len(groups) == 0 {
		return
	}
	if err := b.redis.InvalidateGroups(ctx, groups...); err != nil {
		b.logger.Warn("Cache invalidation failed", zap.Strings("groups", groups), zap.Error(err))
	}
}

// transitioned finishes a successful transition: metrics, cache and event.
// The backend write already happened, so failures here are only logged.
func (b *base) transitioned(ctx context.Context, entity string, id, agencyID int64, action lifecycle.Action, from, to string, actor int64) {
	util.TransitionsTotal.WithLabelValues(entity, string(action), "success").Inc()
	b.invalidate(ctx, GroupsFor(entity)...)

	b.logger.Info("Status transitioned",
		zap.String("entity", entity),
		zap.Int64("id", id),
		zap.String("action", string(action)),
		zap.String("from", from),
		zap.String("to", to))

	event := broker.NewTransitionEvent(entity, id, agencyID, string(action), from, to, actor)
	if err := b.publisher.PublishTransition(ctx, event); err != nil {
		b.logger.Error("Failed to publish transition event",
			zap.String("entity", entity),
			zap.Int64("id", id),
			zap.Error(err))
	}
}

// failed counts a rejected or aborted transition
func (b *base) failed(entity string, action lifecycle.Action, err error) {
	if action == "" {
		action = "unknown"
	}
	result := "error"
	switch {
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		result = "invalid"
	case errors.Is(err, ErrBusy):
		result = "busy"
	case errors.Is(err, ErrPreconditionFailed), errors.Is(err, models.ErrValidation):
		result = "rejected"
	}
	util.TransitionsTotal.WithLabelValues(entity, string(action), result).Inc()
}
