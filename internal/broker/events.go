package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dealer-service/internal/models"
	"dealer-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventSink is where EventPublisher writes; *Producer satisfies it.
type EventSink interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	sink EventSink
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(sink EventSink) *EventPublisher {
	return &EventPublisher{sink: sink}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

var transitionEventTypes = map[string]string{
	models.EntityQuotation:   models.EventTypeQuotationTransitioned,
	models.EntityAgencyOrder: models.EventTypeAgencyOrderTransitioned,
	models.EntityOrder:       models.EventTypeOrderTransitioned,
}

// NewTransitionEvent builds a transition event with a fresh id
func NewTransitionEvent(entity string, entityID, agencyID int64, action, from, to string, actor int64) *models.StatusTransitionedEvent {
	return &models.StatusTransitionedEvent{
		BaseEvent:  newBaseEvent(transitionEventTypes[entity]),
		Entity:     entity,
		EntityID:   entityID,
		AgencyID:   agencyID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
	}
}

// PublishTransition publishes a StatusTransitioned event keyed by entity
func (ep *EventPublisher) PublishTransition(ctx context.Context, event *models.StatusTransitionedEvent) error {
	key := fmt.Sprintf("%s-%d", event.Entity, event.EntityID)
	return ep.sink.PublishEvent(ctx, key, event)
}

// PublishVehicleAllocated publishes a VehicleAllocated event
func (ep *EventPublisher) PublishVehicleAllocated(ctx context.Context, orderID, agencyID, instanceID, contractID int64) error {
	event := &models.VehicleAllocatedEvent{
		BaseEvent:         newBaseEvent(models.EventTypeVehicleAllocated),
		AgencyOrderID:     orderID,
		AgencyID:          agencyID,
		VehicleInstanceID: instanceID,
		AgencyContractID:  contractID,
	}
	key := fmt.Sprintf("%s-%d", models.EntityAgencyOrder, orderID)
	return ep.sink.PublishEvent(ctx, key, event)
}

// PublishPromotionChanged publishes a PromotionChanged event
func (ep *EventPublisher) PublishPromotionChanged(ctx context.Context, promotionID, vehicleID int64) error {
	event := &models.PromotionChangedEvent{
		BaseEvent:   newBaseEvent(models.EventTypePromotionChanged),
		PromotionID: promotionID,
		VehicleID:   vehicleID,
	}
	key := fmt.Sprintf("%s-%d", models.EntityPromotion, promotionID)
	return ep.sink.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onTransition       func(context.Context, *models.StatusTransitionedEvent) error
	onVehicleAllocated func(context.Context, *models.VehicleAllocatedEvent) error
	onPromotionChanged func(context.Context, *models.PromotionChangedEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.ComponentLogger("broker.handler")}
}

// OnTransition registers a handler for all three StatusTransitioned event types
func (eh *EventHandler) OnTransition(handler func(context.Context, *models.StatusTransitionedEvent) error) {
	eh.onTransition = handler
}

// OnVehicleAllocated registers a handler for VehicleAllocated events
func (eh *EventHandler) OnVehicleAllocated(handler func(context.Context, *models.VehicleAllocatedEvent) error) {
	eh.onVehicleAllocated = handler
}

// OnPromotionChanged registers a handler for PromotionChanged events
func (eh *EventHandler) OnPromotionChanged(handler func(context.Context, *models.PromotionChangedEvent) error) {
	eh.onPromotionChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeQuotationTransitioned, models.EventTypeAgencyOrderTransitioned, models.EventTypeOrderTransitioned:
		if eh.onTransition != nil {
			var event models.StatusTransitionedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
			}
			return eh.onTransition(ctx, &event)
		}

	case models.EventTypeVehicleAllocated:
		if eh.onVehicleAllocated != nil {
			var event models.VehicleAllocatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal VehicleAllocated event: %w", err)
			}
			return eh.onVehicleAllocated(ctx, &event)
		}

	case models.EventTypePromotionChanged:
		if eh.onPromotionChanged != nil {
			var event models.PromotionChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PromotionChanged event: %w", err)
			}
			return eh.onPromotionChanged(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
