package service

import (
	"context"
	"fmt"
	"time"

	"dealer-service/internal/models"
	"dealer-service/internal/redisclient"
	"dealer-service/internal/util"

	"go.uber.org/zap"
)

// PromotionBackend is the part of the order service promotions need
type PromotionBackend interface {
	ListPromotions(ctx context.Context) ([]models.Promotion, error)
	CreatePromotion(ctx context.Context, p *models.Promotion) (*models.Promotion, error)
	UpdatePromotion(ctx context.Context, p *models.Promotion) error
	ListPromotionsByVehicle(ctx context.Context, vehicleID int64) ([]models.Promotion, error)
}

// PromotionService manages vehicle promotions
type PromotionService struct {
	*base
	backend PromotionBackend
}

// NewPromotionService creates a new promotion service
func NewPromotionService(backend PromotionBackend, redis *redisclient.Client, publisher Publisher, opts Options) *PromotionService {
	return &PromotionService{
		base:    newBase(redis, publisher, opts),
		backend: backend,
	}
}

// PromotionRequest represents a promotion to create or replace. A missing
// or zero agency makes the promotion national.
type PromotionRequest struct {
	Name           string    `json:"name" binding:"required"`
	Description    string    `json:"description"`
	VehicleID      int64     `json:"vehicleId" binding:"required"`
	AgencyID       *int64    `json:"agencyId"`
	DiscountAmount int64     `json:"discountAmount" binding:"gte=0"`
	StartDate      time.Time `json:"startDate" binding:"required"`
	EndDate        time.Time `json:"endDate" binding:"required"`
}

func (r *PromotionRequest) toModel(id int64) (*models.Promotion, error) {
	if models.CalendarDay(r.EndDate).Before(models.CalendarDay(r.StartDate)) {
		return nil, fmt.Errorf("%w: promotion ends before it starts", models.ErrValidation)
	}
	return &models.Promotion{
		ID:             id,
		Name:           r.Name,
		Description:    r.Description,
		VehicleID:      r.VehicleID,
		AgencyID:       r.AgencyID,
		DiscountAmount: r.DiscountAmount,
		StartDate:      models.NewTimestamp(r.StartDate),
		EndDate:        models.NewTimestamp(r.EndDate),
	}, nil
}

// List returns every promotion
func (s *PromotionService) List(ctx context.Context) ([]models.Promotion, error) {
	return cachedList(ctx, s.base, groupPromotions, "promotions:all", s.backend.ListPromotions)
}

// Create creates a promotion
func (s *PromotionService) Create(ctx context.Context, req *PromotionRequest) (*models.Promotion, error) {
	ctx, span := util.StartSpan(ctx, "PromotionService.Create")
	defer span.End()

	p, err := req.toModel(0)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	created, err := s.backend.CreatePromotion(ctx, p)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to create promotion: %w", err))
	}
	s.changed(ctx, created)
	return created, nil
}

// Update replaces a promotion
func (s *PromotionService) Update(ctx context.Context, id int64, req *PromotionRequest) (*models.Promotion, error) {
	ctx, span := util.StartSpan(ctx, "PromotionService.Update")
	defer span.End()

	p, err := req.toModel(id)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	err = s.withLock(ctx, models.EntityPromotion, id, func(ctx context.Context) error {
		return s.backend.UpdatePromotion(ctx, p)
	})
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to update promotion %d: %w", id, err))
	}
	p = refetch(ctx, s.base, p, func(ctx context.Context) (*models.Promotion, error) {
		return s.find(ctx, p.VehicleID, id)
	})
	s.changed(ctx, p)
	return p, nil
}

// find has no single-promotion endpoint to use, so it scans the vehicle's list
func (s *PromotionService) find(ctx context.Context, vehicleID, id int64) (*models.Promotion, error) {
	promotions, err := s.backend.ListPromotionsByVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	for i := range promotions {
		if promotions[i].ID == id {
			return &promotions[i], nil
		}
	}
	return nil, fmt.Errorf("promotion %d not listed for vehicle %d", id, vehicleID)
}

func (s *PromotionService) changed(ctx context.Context, p *models.Promotion) {
	s.invalidate(ctx, groupPromotions)
	s.logger.Info("Promotion saved",
		zap.Int64("promotion_id", p.ID),
		zap.Int64("vehicle_id", p.VehicleID),
		zap.Int64("discount", p.DiscountAmount))
	if err := s.publisher.PublishPromotionChanged(ctx, p.ID, p.VehicleID); err != nil {
		s.logger.Error("Failed to publish PromotionChanged event", zap.Int64("promotion_id", p.ID), zap.Error(err))
	}
}
