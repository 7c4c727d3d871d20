// Package allocation matches physical vehicle instances from the central
// warehouse to an agency's stock order.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealer-service/internal/models"
	"dealer-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientStock is returned when the central warehouse holds fewer
	// available instances of the vehicle than the order asks for.
	ErrInsufficientStock = errors.New("insufficient central stock")
	// ErrSelectionMismatch is returned when the selection size differs from
	// the order quantity.
	ErrSelectionMismatch = errors.New("selected instances do not match order quantity")
)

// Inventory lists the central warehouse
type Inventory interface {
	ListCentralInventory(ctx context.Context) ([]models.InventoryItem, error)
}

// Allocator records one allocation
type Allocator interface {
	CreateAllocation(ctx context.Context, a *models.Allocation) (*models.Allocation, error)
}

// AgencyStock receives an instance into an agency's inventory
type AgencyStock interface {
	AddAgencyInventory(ctx context.Context, agencyID, vehicleInstanceID int64) error
}

// StepLedger remembers which (order, instance) steps already completed
type StepLedger interface {
	MarkStepDone(ctx context.Context, key string, ttl time.Duration) error
	IsStepDone(ctx context.Context, key string) (bool, error)
}

// PartialAllocationError reports a loop that stopped part way. The
// completed steps are in the ledger, so retrying the same selection resumes
// at Failed.
type PartialAllocationError struct {
	Completed []int64
	Failed    int64
	Err       error
}

func (e *PartialAllocationError) Error() string {
	return fmt.Sprintf("allocation stopped at instance %d after %d completed: %v", e.Failed, len(e.Completed), e.Err)
}

func (e *PartialAllocationError) Unwrap() error {
	return e.Err
}

// Matcher checks and performs allocations
type Matcher struct {
	inventory Inventory
	allocator Allocator
	agency    AgencyStock
	ledger    StepLedger
	ledgerTTL time.Duration
	logger    *zap.Logger
}

// NewMatcher creates a new allocation matcher
func NewMatcher(inventory Inventory, allocator Allocator, agency AgencyStock, ledger StepLedger, ledgerTTL time.Duration) *Matcher {
	return &Matcher{
		inventory: inventory,
		allocator: allocator,
		agency:    agency,
		ledger:    ledger,
		ledgerTTL: ledgerTTL,
		logger:    util.ComponentLogger("allocation"),
	}
}

// Each instance is two ledger phases so a retry never creates a second
// allocation for an instance whose inventory move failed.
const (
	phaseAllocated = "allocated"
	phaseReceived  = "received"
)

func stepKey(orderID, instanceID int64, phase string) string {
	return fmt.Sprintf("allocation:%d:%d:%s", orderID, instanceID, phase)
}

// IsAvailable reports whether a warehouse entry can be allocated. Entries
// without a status are counted as available.
func IsAvailable(item models.InventoryItem) bool {
	s := strings.TrimSpace(item.Status)
	return s == "" || strings.EqualFold(s, models.VehicleInstanceAvailable) || strings.EqualFold(s, "InStock")
}

// Candidates returns the available warehouse instances of the order's
// vehicle, plus the instances an earlier attempt already allocated to this
// order, so a partially allocated order can be offered again and resumed.
func (m *Matcher) Candidates(ctx context.Context, order *models.AgencyOrder) ([]models.InventoryItem, error) {
	items, err := m.inventory.ListCentralInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list central inventory: %w", err)
	}
	out := make([]models.InventoryItem, 0, len(items))
	for _, it := range items {
		if it.VehicleID != order.VehicleID {
			continue
		}
		if IsAvailable(it) {
			out = append(out, it)
			continue
		}
		resumed, err := m.ledger.IsStepDone(ctx, stepKey(order.ID, it.VehicleInstanceID, phaseAllocated))
		if err != nil {
			return nil, fmt.Errorf("failed to read allocation ledger: %w", err)
		}
		if resumed {
			out = append(out, it)
		}
	}
	return out, nil
}

// available returns only the unallocated warehouse instances of the vehicle
func (m *Matcher) available(ctx context.Context, order *models.AgencyOrder) ([]models.InventoryItem, error) {
	items, err := m.inventory.ListCentralInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list central inventory: %w", err)
	}
	out := make([]models.InventoryItem, 0, len(items))
	for _, it := range items {
		if it.VehicleID == order.VehicleID && IsAvailable(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// CheckStock fails with ErrInsufficientStock unless the warehouse has at
// least order.Quantity available instances of the vehicle.
func (m *Matcher) CheckStock(ctx context.Context, order *models.AgencyOrder) ([]models.InventoryItem, error) {
	candidates, err := m.Candidates(ctx, order)
	if err != nil {
		return nil, err
	}
	if len(candidates) < order.Quantity {
		util.AllocationRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
		return candidates, fmt.Errorf("%w: vehicle %d has %d available, order needs %d",
			ErrInsufficientStock, order.VehicleID, len(candidates), order.Quantity)
	}
	return candidates, nil
}

// Validate checks a selection against the order without side effects.
func Validate(order *models.AgencyOrder, selected []int64) error {
	if order.Quantity <= 0 {
		return fmt.Errorf("%w: order %d has non-positive quantity %d", models.ErrValidation, order.ID, order.Quantity)
	}
	if len(selected) != order.Quantity {
		util.AllocationRejectionsTotal.WithLabelValues("selection_mismatch").Inc()
		return fmt.Errorf("%w: selected %d, order needs %d", ErrSelectionMismatch, len(selected), order.Quantity)
	}
	seen := make(map[int64]bool, len(selected))
	for _, id := range selected {
		if id <= 0 {
			util.AllocationRejectionsTotal.WithLabelValues("invalid_selection").Inc()
			return fmt.Errorf("%w: empty vehicle instance id in selection", models.ErrValidation)
		}
		if seen[id] {
			util.AllocationRejectionsTotal.WithLabelValues("invalid_selection").Inc()
			return fmt.Errorf("%w: vehicle instance %d selected twice", models.ErrValidation, id)
		}
		seen[id] = true
	}
	return nil
}

// Allocate re-checks stock and the selection, then for each instance in
// turn creates the allocation and receives the instance into the agency's
// inventory. Steps already in the ledger are skipped. The caller moves the
// order to Processing once Allocate returns nil.
func (m *Matcher) Allocate(ctx context.Context, order *models.AgencyOrder, selected []int64) ([]int64, error) {
	ctx, span := util.StartSpan(ctx, "AllocationMatcher.Allocate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("agency_order.id", order.ID),
		attribute.Int("agency_order.quantity", order.Quantity),
	)

	if err := Validate(order, selected); err != nil {
		return nil, util.RecordError(span, err)
	}

	pending := make([]int64, 0, len(selected))
	done := make([]int64, 0, len(selected))
	allocated := make(map[int64]bool, len(selected))
	for _, id := range selected {
		received, err := m.ledger.IsStepDone(ctx, stepKey(order.ID, id, phaseReceived))
		if err != nil {
			return nil, util.RecordError(span, fmt.Errorf("failed to read allocation ledger: %w", err))
		}
		if received {
			done = append(done, id)
			continue
		}
		pending = append(pending, id)
		if allocated[id], err = m.ledger.IsStepDone(ctx, stepKey(order.ID, id, phaseAllocated)); err != nil {
			return nil, util.RecordError(span, fmt.Errorf("failed to read allocation ledger: %w", err))
		}
	}

	// Instances allocated by an earlier attempt have left the available pool,
	// so only the unallocated ones need stock.
	var unallocated []int64
	for _, id := range pending {
		if !allocated[id] {
			unallocated = append(unallocated, id)
		}
	}
	if len(unallocated) > 0 {
		candidates, err := m.available(ctx, order)
		if err != nil {
			return nil, util.RecordError(span, err)
		}
		if len(candidates) < len(unallocated) {
			util.AllocationRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, util.RecordError(span, fmt.Errorf("%w: vehicle %d has %d available, %d still to allocate",
				ErrInsufficientStock, order.VehicleID, len(candidates), len(unallocated)))
		}
		available := make(map[int64]bool, len(candidates))
		for _, c := range candidates {
			available[c.VehicleInstanceID] = true
		}
		for _, id := range unallocated {
			if !available[id] {
				util.AllocationRejectionsTotal.WithLabelValues("unavailable_instance").Inc()
				return nil, util.RecordError(span, fmt.Errorf("%w: vehicle instance %d is not available for vehicle %d",
					models.ErrValidation, id, order.VehicleID))
			}
		}
	}

	for _, id := range pending {
		if err := m.step(ctx, order, id, allocated[id]); err != nil {
			util.AllocationStepsTotal.WithLabelValues("failed").Inc()
			m.logger.Error("Allocation step failed",
				zap.Int64("agency_order_id", order.ID),
				zap.Int64("vehicle_instance_id", id),
				zap.Int("completed", len(done)),
				zap.Error(err))
			return done, util.RecordError(span, &PartialAllocationError{Completed: done, Failed: id, Err: err})
		}
		util.AllocationStepsTotal.WithLabelValues("success").Inc()
		done = append(done, id)
	}

	m.logger.Info("Agency order allocated",
		zap.Int64("agency_order_id", order.ID),
		zap.Int("instances", len(done)))
	return done, nil
}

func (m *Matcher) step(ctx context.Context, order *models.AgencyOrder, instanceID int64, allocated bool) error {
	if !allocated {
		_, err := m.allocator.CreateAllocation(ctx, &models.Allocation{
			AgencyOrderID:     order.ID,
			VehicleInstanceID: instanceID,
			AgencyContractID:  order.AgencyContractID,
		})
		if err != nil {
			return fmt.Errorf("failed to create allocation: %w", err)
		}
		if err := m.ledger.MarkStepDone(ctx, stepKey(order.ID, instanceID, phaseAllocated), m.ledgerTTL); err != nil {
			return fmt.Errorf("failed to record allocation step: %w", err)
		}
	}
	if err := m.agency.AddAgencyInventory(ctx, order.AgencyID, instanceID); err != nil {
		return fmt.Errorf("failed to add instance to agency inventory: %w", err)
	}
	if err := m.ledger.MarkStepDone(ctx, stepKey(order.ID, instanceID, phaseReceived), m.ledgerTTL); err != nil {
		return fmt.Errorf("failed to record allocation step: %w", err)
	}
	return nil
}
