package service

import (
	"context"
	"fmt"

	"dealer-service/internal/models"
	"dealer-service/internal/redisclient"
	"dealer-service/internal/util"

	"go.uber.org/zap"
)

// Journal is the transition journal store; *store.Store satisfies it.
type Journal interface {
	RecordTransition(ctx context.Context, t *models.Transition, eventType string) (bool, error)
	ListTransitions(ctx context.Context, entity string, entityID int64) ([]models.Transition, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// JournalService consumes lifecycle events: it journals transitions and
// drops the cache entries other instances may still hold.
type JournalService struct {
	journal Journal
	redis   *redisclient.Client
	logger  *zap.Logger
}

// NewJournalService creates a new journal service
func NewJournalService(journal Journal, redis *redisclient.Client) *JournalService {
	return &JournalService{
		journal: journal,
		redis:   redis,
		logger:  util.ComponentLogger("service.journal"),
	}
}

// HandleTransition journals a StatusTransitioned event exactly once
func (js *JournalService) HandleTransition(ctx context.Context, event *models.StatusTransitionedEvent) error {
	ctx, span := util.StartSpan(ctx, "JournalService.HandleTransition")
	defer span.End()

	inserted, err := js.journal.RecordTransition(ctx, &models.Transition{
		Entity:     event.Entity,
		EntityID:   event.EntityID,
		Action:     event.Action,
		FromStatus: event.FromStatus,
		ToStatus:   event.ToStatus,
		Actor:      event.Actor,
		EventID:    event.EventID,
	}, event.EventType)
	if err != nil {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "error").Inc()
		return util.RecordError(span, fmt.Errorf("failed to journal transition: %w", err))
	}
	if !inserted {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		js.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	js.invalidate(ctx, GroupsFor(event.Entity)...)
	util.EventsConsumedTotal.WithLabelValues(event.EventType, "success").Inc()
	js.logger.Debug("Transition journaled",
		zap.String("entity", event.Entity),
		zap.Int64("id", event.EntityID),
		zap.String("to", event.ToStatus))
	return nil
}

// HandleVehicleAllocated drops cached inventory after an allocation step
func (js *JournalService) HandleVehicleAllocated(ctx context.Context, event *models.VehicleAllocatedEvent) error {
	return js.once(ctx, event.BaseEvent, func(ctx context.Context) {
		js.invalidate(ctx, groupInventory, groupAgencyOrders)
		js.logger.Debug("Vehicle allocated",
			zap.Int64("agency_order_id", event.AgencyOrderID),
			zap.Int64("vehicle_instance_id", event.VehicleInstanceID))
	})
}

// HandlePromotionChanged drops cached promotions
func (js *JournalService) HandlePromotionChanged(ctx context.Context, event *models.PromotionChangedEvent) error {
	return js.once(ctx, event.BaseEvent, func(ctx context.Context) {
		js.invalidate(ctx, groupPromotions)
	})
}

// ListTransitions returns the journal of one entity, oldest first
func (js *JournalService) ListTransitions(ctx context.Context, entity string, id int64) ([]models.Transition, error) {
	switch entity {
	case models.EntityQuotation, models.EntityAgencyOrder, models.EntityOrder:
	default:
		return nil, fmt.Errorf("%w: unknown entity %q", models.ErrValidation, entity)
	}
	return js.journal.ListTransitions(ctx, entity, id)
}

func (js *JournalService) once(ctx context.Context, event models.BaseEvent, fn func(context.Context)) error {
	processed, err := js.journal.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "error").Inc()
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		return nil
	}

	fn(ctx)

	if err := js.journal.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		js.logger.Error("Failed to mark event processed", zap.String("event_id", event.EventID), zap.Error(err))
	}
	util.EventsConsumedTotal.WithLabelValues(event.EventType, "success").Inc()
	return nil
}

func (js *JournalService) invalidate(ctx context.Context, groups ...string) {
	if len(groups) == 0 {
		return
	}
	if err := js.redis.InvalidateGroups(ctx, groups...); err != nil {
		js.logger.Warn("Cache invalidation failed", zap.Strings("groups", groups), zap.Error(err))
	}
}
