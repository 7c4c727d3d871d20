package models

import "time"

// Event types
const (
	EventTypeQuotationTransitioned   = "QUOTATION_TRANSITIONED"
	EventTypeAgencyOrderTransitioned = "AGENCY_ORDER_TRANSITIONED"
	EventTypeOrderTransitioned       = "ORDER_TRANSITIONED"
	EventTypeVehicleAllocated        = "VEHICLE_ALLOCATED"
	EventTypePromotionChanged        = "PROMOTION_CHANGED"
)

// Entity names used in events and in the journal
const (
	EntityQuotation   = "quotation"
	EntityAgencyOrder = "agency_order"
	EntityOrder       = "order"
	EntityPromotion   = "promotion"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusTransitionedEvent is published after a lifecycle transition has
// been written to the owning backend.
type StatusTransitionedEvent struct {
	BaseEvent
	Entity     string `json:"entity"`
	EntityID   int64  `json:"entity_id"`
	AgencyID   int64  `json:"agency_id,omitempty"`
	Action     string `json:"action"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Actor      int64  `json:"actor,omitempty"`
}

// VehicleAllocatedEvent is published once per allocation step
type VehicleAllocatedEvent struct {
	BaseEvent
	AgencyOrderID     int64 `json:"agency_order_id"`
	AgencyID          int64 `json:"agency_id"`
	VehicleInstanceID int64 `json:"vehicle_instance_id"`
	AgencyContractID  int64 `json:"agency_contract_id"`
}

// PromotionChangedEvent is published when a promotion is created or edited
type PromotionChangedEvent struct {
	BaseEvent
	PromotionID int64 `json:"promotion_id"`
	VehicleID   int64 `json:"vehicle_id"`
}
