package service

import (
	"context"
	"errors"
	"fmt"

	"dealer-service/internal/allocation"
	"dealer-service/internal/lifecycle"
	"dealer-service/internal/models"
	"dealer-service/internal/redisclient"
	"dealer-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AgencyOrderBackend is the part of the agency service stock orders need
type AgencyOrderBackend interface {
	GetAgencyOrder(ctx context.Context, id int64) (*models.AgencyOrder, error)
	ListAgencyOrders(ctx context.Context, agencyID int64) ([]models.AgencyOrder, error)
	UpdateAgencyOrder(ctx context.Context, o *models.AgencyOrder) error
	ListAgencyInventory(ctx context.Context, agencyID int64) ([]models.InventoryItem, error)
}

// AllocationLister lists the allocations made for an agency order
type AllocationLister interface {
	ListAllocations(ctx context.Context, agencyOrderID int64) ([]models.Allocation, error)
}

// AgencyOrderService handles agency stock orders and their allocation
type AgencyOrderService struct {
	*base
	backend     AgencyOrderBackend
	allocations AllocationLister
	matcher     *allocation.Matcher
}

// NewAgencyOrderService creates a new agency order service
func NewAgencyOrderService(
	backend AgencyOrderBackend,
	allocations AllocationLister,
	matcher *allocation.Matcher,
	redis *redisclient.Client,
	publisher Publisher,
	opts Options,
) *AgencyOrderService {
	return &AgencyOrderService{
		base:        newBase(redis, publisher, opts),
		backend:     backend,
		allocations: allocations,
		matcher:     matcher,
	}
}

// Get retrieves an agency order by ID
func (s *AgencyOrderService) Get(ctx context.Context, id int64) (*models.AgencyOrder, error) {
	return s.backend.GetAgencyOrder(ctx, id)
}

// ListByAgency returns an agency's stock orders
func (s *AgencyOrderService) ListByAgency(ctx context.Context, agencyID int64) ([]models.AgencyOrder, error) {
	key := fmt.Sprintf("agency-orders:agency:%d", agencyID)
	return cachedList(ctx, s.base, groupAgencyOrders, key, func(ctx context.Context) ([]models.AgencyOrder, error) {
		return s.backend.ListAgencyOrders(ctx, agencyID)
	})
}

// Candidates returns the warehouse instances an order can be filled from.
// It fails with allocation.ErrInsufficientStock when there are too few, so
// the selection list is never shown for an order that cannot be filled.
func (s *AgencyOrderService) Candidates(ctx context.Context, id int64) ([]models.InventoryItem, error) {
	ctx, span := util.StartSpan(ctx, "AgencyOrderService.Candidates")
	defer span.End()

	order, err := s.backend.GetAgencyOrder(ctx, id)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if _, err := lifecycle.AgencyOrder(order.Status, lifecycle.ActionAllocate); err != nil {
		return nil, util.RecordError(span, err)
	}
	candidates, err := s.matcher.CheckStock(ctx, order)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return candidates, nil
}

// Confirm moves a Pending order to Confirmed
func (s *AgencyOrderService) Confirm(ctx context.Context, id, actor int64) (*models.AgencyOrder, error) {
	return s.transition(ctx, id, lifecycle.ActionConfirm, actor, nil)
}

// Cancel moves a non-terminal order to Cancelled
func (s *AgencyOrderService) Cancel(ctx context.Context, id, actor int64) (*models.AgencyOrder, error) {
	return s.transition(ctx, id, lifecycle.ActionCancel, actor, nil)
}

// Allocate assigns the selected warehouse instances to the order and moves
// it to Processing. A retry after a partial failure resumes where the
// previous attempt stopped.
func (s *AgencyOrderService) Allocate(ctx context.Context, id int64, selected []int64, actor int64) (*models.AgencyOrder, error) {
	return s.transition(ctx, id, lifecycle.ActionAllocate, actor, func(ctx context.Context, order *models.AgencyOrder) error {
		done, err := s.matcher.Allocate(ctx, order, selected)
		var partial *allocation.PartialAllocationError
		if errors.As(err, &partial) {
			// the completed steps already moved stock
			s.invalidate(ctx, groupInventory)
		}
		if err != nil {
			return err
		}
		for _, instanceID := range done {
			if err := s.publisher.PublishVehicleAllocated(ctx, order.ID, order.AgencyID, instanceID, order.AgencyContractID); err != nil {
				s.logger.Error("Failed to publish VehicleAllocated event",
					zap.Int64("agency_order_id", order.ID),
					zap.Int64("vehicle_instance_id", instanceID),
					zap.Error(err))
			}
		}
		return nil
	})
}

// ReceiveAll completes a Processing order once every allocated instance
// is in the agency's inventory.
func (s *AgencyOrderService) ReceiveAll(ctx context.Context, id, actor int64) (*models.AgencyOrder, error) {
	return s.transition(ctx, id, lifecycle.ActionReceiveAll, actor, func(ctx context.Context, order *models.AgencyOrder) error {
		allocs, err := s.allocations.ListAllocations(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to list allocations for order %d: %w", order.ID, err)
		}
		if len(allocs) != order.Quantity {
			return fmt.Errorf("%w: order %d has %d allocations, quantity is %d",
				ErrPreconditionFailed, order.ID, len(allocs), order.Quantity)
		}

		inventory, err := s.backend.ListAgencyInventory(ctx, order.AgencyID)
		if err != nil {
			return fmt.Errorf("failed to list inventory of agency %d: %w", order.AgencyID, err)
		}
		held := make(map[int64]bool, len(inventory))
		for _, it := range inventory {
			held[it.VehicleInstanceID] = true
		}
		for _, a := range allocs {
			if !held[a.VehicleInstanceID] {
				return fmt.Errorf("%w: vehicle instance %d has not been received by agency %d",
					ErrPreconditionFailed, a.VehicleInstanceID, order.AgencyID)
			}
		}
		return nil
	})
}

// transition applies action under the order's lock. effect runs after the
// table check and before the status write; its error aborts the transition.
func (s *AgencyOrderService) transition(
	ctx context.Context,
	id int64,
	action lifecycle.Action,
	actor int64,
	effect func(context.Context, *models.AgencyOrder) error,
) (*models.AgencyOrder, error) {
	ctx, span := util.StartSpan(ctx, "AgencyOrderService.Transition")
	defer span.End()
	span.SetAttributes(attribute.Int64("agency_order.id", id), attribute.String("action", string(action)))

	var out *models.AgencyOrder
	err := s.withLock(ctx, models.EntityAgencyOrder, id, func(ctx context.Context) error {
		order, err := s.backend.GetAgencyOrder(ctx, id)
		if err != nil {
			return err
		}
		from := order.Status
		to, err := lifecycle.AgencyOrder(from, action)
		if err != nil {
			return err
		}
		if effect != nil {
			if err := effect(ctx, order); err != nil {
				return err
			}
		}

		updated := *order
		updated.Status = to
		if err := s.backend.UpdateAgencyOrder(ctx, &updated); err != nil {
			return fmt.Errorf("failed to update agency order %d: %w", id, err)
		}
		out = refetch(ctx, s.base, &updated, func(ctx context.Context) (*models.AgencyOrder, error) {
			return s.backend.GetAgencyOrder(ctx, id)
		})

		s.transitioned(ctx, models.EntityAgencyOrder, id, order.AgencyID, action, string(from), string(to), actor)
		return nil
	})
	if err != nil {
		s.failed(models.EntityAgencyOrder, action, err)
		return nil, util.RecordError(span, err)
	}
	return out, nil
}
