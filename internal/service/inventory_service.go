package service

import (
	"context"
	"fmt"

	"dealer-service/internal/models"
	"dealer-service/internal/redisclient"
	"dealer-service/internal/util"

	"go.uber.org/zap"
)

// CentralInventory is the central warehouse ledger in the allocation service
type CentralInventory interface {
	ListCentralInventory(ctx context.Context) ([]models.InventoryItem, error)
	AddCentralInventory(ctx context.Context, vehicleInstanceID int64) (*models.InventoryItem, error)
}

// InventoryService reads and stocks the central warehouse
type InventoryService struct {
	*base
	backend CentralInventory
}

// NewInventoryService creates a new inventory service
func NewInventoryService(backend CentralInventory, redis *redisclient.Client, publisher Publisher, opts Options) *InventoryService {
	return &InventoryService{
		base:    newBase(redis, publisher, opts),
		backend: backend,
	}
}

// ListCentral returns the warehouse ledger
func (s *InventoryService) ListCentral(ctx context.Context) ([]models.InventoryItem, error) {
	return cachedList(ctx, s.base, groupInventory, "inventory:central", s.backend.ListCentralInventory)
}

// AddCentral puts a vehicle instance into the central warehouse
func (s *InventoryService) AddCentral(ctx context.Context, vehicleInstanceID int64) (*models.InventoryItem, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.AddCentral")
	defer span.End()

	if vehicleInstanceID <= 0 {
		return nil, util.RecordError(span, fmt.Errorf("%w: vehicleInstanceId is required", models.ErrValidation))
	}
	item, err := s.backend.AddCentralInventory(ctx, vehicleInstanceID)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to add vehicle instance %d to central inventory: %w", vehicleInstanceID, err))
	}
	s.invalidate(ctx, groupInventory)
	s.logger.Info("Vehicle instance stocked", zap.Int64("vehicle_instance_id", vehicleInstanceID))
	return item, nil
}
