package service

import (
	"context"
	"fmt"
	"time"

	"dealer-service/internal/lifecycle"
	"dealer-service/internal/models"
	"dealer-service/internal/pricing"
	"dealer-service/internal/redisclient"
	"dealer-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// QuotationBackend is the part of the order service quotations need
type QuotationBackend interface {
	GetQuotation(ctx context.Context, id int64) (*models.Quotation, error)
	ListQuotationsByAgency(ctx context.Context, agencyID int64) ([]models.Quotation, error)
	ListQuotationsByCreator(ctx context.Context, userID int64) ([]models.Quotation, error)
	CreateQuotation(ctx context.Context, q *models.Quotation) (*models.Quotation, error)
	UpdateQuotation(ctx context.Context, q *models.Quotation) error
	DeleteQuotation(ctx context.Context, id int64) error
	CreateOrder(ctx context.Context, o *models.CustomerOrder) (*models.CustomerOrder, error)
	GetOrder(ctx context.Context, id int64) (*models.CustomerOrder, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error
	SetVehicleInstanceStatus(ctx context.Context, id int64, status string) error
	ListPromotionsByVehicle(ctx context.Context, vehicleID int64) ([]models.Promotion, error)
}

// CustomerDirectory looks up customers in the user service
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
}

// QuotationService handles quotation pricing and lifecycle
type QuotationService struct {
	*base
	backend   QuotationBackend
	customers CustomerDirectory
}

// NewQuotationService creates a new quotation service
func NewQuotationService(
	backend QuotationBackend,
	customers CustomerDirectory,
	redis *redisclient.Client,
	publisher Publisher,
	opts Options,
) *QuotationService {
	return &QuotationService{
		base:      newBase(redis, publisher, opts),
		backend:   backend,
		customers: customers,
	}
}

// QuoteRequest asks for a price without creating anything. When Promotions
// is nil the vehicle's promotions are fetched; when CustomerClass is empty
// the class is looked up from CustomerID.
type QuoteRequest struct {
	BasePrice     int64              `json:"basePrice" binding:"gte=0"`
	VehicleID     int64              `json:"vehicleId" binding:"required"`
	AgencyID      int64              `json:"agencyId"`
	CustomerID    int64              `json:"customerId"`
	CustomerClass string             `json:"customerClass" binding:"omitempty,customer_class"`
	Promotions    []models.Promotion `json:"promotions"`
	AsOf          *time.Time         `json:"asOf"`
}

// Quote runs the pricing engine
func (s *QuotationService) Quote(ctx context.Context, req *QuoteRequest) (*pricing.Result, error) {
	ctx, span := util.StartSpan(ctx, "QuotationService.Quote")
	defer span.End()

	promotions := req.Promotions
	if promotions == nil {
		var err error
		promotions, err = s.vehiclePromotions(ctx, req.VehicleID)
		if err != nil {
			return nil, util.RecordError(span, err)
		}
	}

	class := models.ParseCustomerClass(req.CustomerClass)
	if req.CustomerClass == "" && req.CustomerID > 0 {
		customer, err := s.customers.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			return nil, util.RecordError(span, fmt.Errorf("failed to get customer %d: %w", req.CustomerID, err))
		}
		class = customer.Class
	}

	asOf := s.today()
	if req.AsOf != nil {
		asOf = req.AsOf.In(s.opts.Location)
	}

	res := s.price(req.BasePrice, promotions, class, req.VehicleID, req.AgencyID, asOf)
	span.SetAttributes(attribute.Int64("pricing.final_price", res.FinalPrice))
	return &res, nil
}

func (s *QuotationService) price(basePrice int64, promotions []models.Promotion, class models.CustomerClass, vehicleID, agencyID int64, asOf time.Time) pricing.Result {
	res := pricing.ComputeFinalPrice(pricing.Input{
		BasePrice:     basePrice,
		Promotions:    promotions,
		CustomerClass: class,
		VehicleID:     vehicleID,
		AgencyID:      agencyID,
		AsOf:          asOf,
	})
	util.QuotationsPricedTotal.Inc()
	if res.Negative {
		util.NegativePricesTotal.Inc()
		s.logger.Warn("Computed price is negative",
			zap.Int64("vehicle_id", vehicleID),
			zap.Int64("agency_id", agencyID),
			zap.Int64("final_price", res.FinalPrice))
	}
	return res
}

func (s *QuotationService) vehiclePromotions(ctx context.Context, vehicleID int64) ([]models.Promotion, error) {
	key := fmt.Sprintf("promotions:vehicle:%d", vehicleID)
	promotions, err := cachedList(ctx, s.base, groupPromotions, key, func(ctx context.Context) ([]models.Promotion, error) {
		return s.backend.ListPromotionsByVehicle(ctx, vehicleID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list promotions for vehicle %d: %w", vehicleID, err)
	}
	return promotions, nil
}

// ListByAgency returns an agency's quotations
func (s *QuotationService) ListByAgency(ctx context.Context, agencyID int64) ([]models.Quotation, error) {
	key := fmt.Sprintf("quotations:agency:%d", agencyID)
	return cachedList(ctx, s.base, groupQuotations, key, func(ctx context.Context) ([]models.Quotation, error) {
		return s.backend.ListQuotationsByAgency(ctx, agencyID)
	})
}

// ListByCreator returns the quotations a staff member created
func (s *QuotationService) ListByCreator(ctx context.Context, userID int64) ([]models.Quotation, error) {
	key := fmt.Sprintf("quotations:createby:%d", userID)
	return cachedList(ctx, s.base, groupQuotations, key, func(ctx context.Context) ([]models.Quotation, error) {
		return s.backend.ListQuotationsByCreator(ctx, userID)
	})
}

// Get retrieves a quotation by ID
func (s *QuotationService) Get(ctx context.Context, id int64) (*models.Quotation, error) {
	return s.backend.GetQuotation(ctx, id)
}

// CreateQuotationRequest represents a request to create a quotation
type CreateQuotationRequest struct {
	CustomerID        int64      `json:"customerId" binding:"required"`
	VehicleInstanceID int64      `json:"vehicleInstanceId" binding:"required"`
	VehicleID         int64      `json:"vehicleId" binding:"required"`
	AgencyID          int64      `json:"agencyId" binding:"required"`
	BasePrice         int64      `json:"basePrice" binding:"gte=0"`
	StartDate         *time.Time `json:"startDate"`
	EndDate           *time.Time `json:"endDate"`
	CreatedBy         int64      `json:"createdBy"`
}

// QuotationView is a quotation together with how its price was reached
type QuotationView struct {
	Quotation *models.Quotation  `json:"quotation"`
	Pricing   *pricing.Result    `json:"pricing,omitempty"`
	Actions   []lifecycle.Action `json:"actions"`
	Terminal  bool               `json:"terminal"`
}

// NewQuotationView wraps q with the actions its status allows
func NewQuotationView(q *models.Quotation, priced *pricing.Result) *QuotationView {
	return &QuotationView{
		Quotation: q,
		Pricing:   priced,
		Actions:   lifecycle.QuotationActions(q.Status),
		Terminal:  lifecycle.QuotationTerminal(q.Status),
	}
}

// Create prices and creates a Pending quotation. The quoted price is
// computed here, never taken from the caller.
func (s *QuotationService) Create(ctx context.Context, req *CreateQuotationRequest) (*QuotationView, error) {
	ctx, span := util.StartSpan(ctx, "QuotationService.Create")
	defer span.End()

	start := s.today()
	if req.StartDate != nil {
		start = req.StartDate.In(s.opts.Location)
	}
	if req.EndDate != nil && models.CalendarDay(*req.EndDate).Before(models.CalendarDay(start)) {
		return nil, util.RecordError(span, fmt.Errorf("%w: endDate is before startDate", models.ErrValidation))
	}

	customer, err := s.customers.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to get customer %d: %w", req.CustomerID, err))
	}
	promotions, err := s.vehiclePromotions(ctx, req.VehicleID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	res := s.price(req.BasePrice, promotions, customer.Class, req.VehicleID, req.AgencyID, start)

	q := &models.Quotation{
		CustomerID:        req.CustomerID,
		VehicleInstanceID: req.VehicleInstanceID,
		VehicleID:         req.VehicleID,
		AgencyID:          req.AgencyID,
		QuotedPrice:       res.FinalPrice,
		BasePrice:         req.BasePrice,
		StartDate:         models.NewTimestamp(start),
		Status:            models.QuotationPending,
		CreatedBy:         req.CreatedBy,
	}
	if req.EndDate != nil {
		q.EndDate = models.NewTimestamp(*req.EndDate)
	}

	created, err := s.backend.CreateQuotation(ctx, q)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to create quotation: %w", err))
	}
	s.invalidate(ctx, groupQuotations)

	if created.ID > 0 {
		if fresh, err := s.backend.GetQuotation(ctx, created.ID); err == nil {
			created = fresh
		} else {
			s.logger.Warn("Failed to refetch created quotation", zap.Int64("quotation_id", created.ID), zap.Error(err))
		}
	}

	s.logger.Info("Quotation created",
		zap.Int64("quotation_id", created.ID),
		zap.Int64("customer_id", req.CustomerID),
		zap.Int64("quoted_price", res.FinalPrice))

	return NewQuotationView(created, &res), nil
}

// Delete removes a quotation. Converted quotations are kept since an order
// refers to them.
func (s *QuotationService) Delete(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "QuotationService.Delete")
	defer span.End()

	err := s.withLock(ctx, models.EntityQuotation, id, func(ctx context.Context) error {
		q, err := s.backend.GetQuotation(ctx, id)
		if err != nil {
			return err
		}
		if q.Status == models.QuotationConverted {
			return fmt.Errorf("%w: quotation %d was converted to an order", ErrPreconditionFailed, id)
		}
		if err := s.backend.DeleteQuotation(ctx, id); err != nil {
			return fmt.Errorf("failed to delete quotation %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return util.RecordError(span, err)
	}

	s.invalidate(ctx, groupQuotations)
	s.logger.Info("Quotation deleted", zap.Int64("quotation_id", id))
	return nil
}

// Approve moves a Pending quotation to Accepted
func (s *QuotationService) Approve(ctx context.Context, id, actor int64) (*models.Quotation, error) {
	return s.transition(ctx, id, lifecycle.ActionApprove, actor, nil)
}

// Reject moves a Pending quotation to Rejected
func (s *QuotationService) Reject(ctx context.Context, id, actor int64) (*models.Quotation, error) {
	return s.transition(ctx, id, lifecycle.ActionReject, actor, nil)
}

// Expire moves an open quotation whose end date has passed to Expired
func (s *QuotationService) Expire(ctx context.Context, id, actor int64) (*models.Quotation, error) {
	return s.transition(ctx, id, lifecycle.ActionExpire, actor, func(q *models.Quotation) error {
		if !q.Lapsed(s.today()) {
			return fmt.Errorf("%w: quotation %d is valid until %s", ErrPreconditionFailed, q.ID, q.EndDate.Format("2006-01-02"))
		}
		return nil
	})
}

func (s *QuotationService) transition(ctx context.Context, id int64, action lifecycle.Action, actor int64, check func(*models.Quotation) error) (*models.Quotation, error) {
	ctx, span := util.StartSpan(ctx, "QuotationService.Transition")
	defer span.End()
	span.SetAttributes(attribute.Int64("quotation.id", id), attribute.String("action", string(action)))

	var out *models.Quotation
	err := s.withLock(ctx, models.EntityQuotation, id, func(ctx context.Context) error {
		q, err := s.backend.GetQuotation(ctx, id)
		if err != nil {
			return err
		}
		from := q.Status
		to, err := lifecycle.Quotation(from, action)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(q); err != nil {
				return err
			}
		}

		updated := *q
		updated.Status = to
		if err := s.backend.UpdateQuotation(ctx, &updated); err != nil {
			return fmt.Errorf("failed to update quotation %d: %w", id, err)
		}
		out = refetch(ctx, s.base, &updated, func(ctx context.Context) (*models.Quotation, error) {
			return s.backend.GetQuotation(ctx, id)
		})

		s.transitioned(ctx, models.EntityQuotation, id, q.AgencyID, action, string(from), string(to), actor)
		return nil
	})
	if err != nil {
		s.failed(models.EntityQuotation, action, err)
		return nil, util.RecordError(span, err)
	}
	return out, nil
}

// ConvertResult is the converted quotation and the order created from it
type ConvertResult struct {
	Quotation *models.Quotation     `json:"quotation"`
	Order     *models.CustomerOrder `json:"order"`
}

// Convert turns an Accepted quotation into a Pending customer order and
// reserves the quoted vehicle instance. If a later step fails the earlier
// ones are compensated and the quotation stays Accepted.
func (s *QuotationService) Convert(ctx context.Context, id, actor int64) (*ConvertResult, error) {
	ctx, span := util.StartSpan(ctx, "QuotationService.Convert")
	defer span.End()
	action := lifecycle.ActionConvert

	var out *ConvertResult
	err := s.withLock(ctx, models.EntityQuotation, id, func(ctx context.Context) error {
		q, err := s.backend.GetQuotation(ctx, id)
		if err != nil {
			return err
		}
		from := q.Status
		to, err := lifecycle.Quotation(from, action)
		if err != nil {
			return err
		}

		order, err := s.backend.CreateOrder(ctx, &models.CustomerOrder{
			CustomerID:        q.CustomerID,
			QuotationID:       q.ID,
			VehicleInstanceID: q.VehicleInstanceID,
			AgencyID:          q.AgencyID,
			TotalAmount:       q.QuotedPrice,
			Status:            models.OrderPending,
			OrderDate:         models.NewTimestamp(s.today()),
		})
		if err != nil {
			return fmt.Errorf("failed to create order for quotation %d: %w", id, err)
		}

		if err := s.backend.SetVehicleInstanceStatus(ctx, q.VehicleInstanceID, models.VehicleInstanceReserved); err != nil {
			s.compensateOrder(ctx, order.ID)
			return fmt.Errorf("failed to reserve vehicle instance %d: %w", q.VehicleInstanceID, err)
		}

		updated := *q
		updated.Status = to
		if err := s.backend.UpdateQuotation(ctx, &updated); err != nil {
			s.compensateReservation(ctx, q.VehicleInstanceID)
			s.compensateOrder(ctx, order.ID)
			return fmt.Errorf("failed to update quotation %d: %w", id, err)
		}

		out = &ConvertResult{Quotation: &updated, Order: order}
		if fresh, err := s.backend.GetQuotation(ctx, id); err == nil {
			out.Quotation = fresh
		} else {
			s.logger.Warn("Failed to refetch converted quotation", zap.Int64("quotation_id", id), zap.Error(err))
		}
		if order.ID > 0 {
			if fresh, err := s.backend.GetOrder(ctx, order.ID); err == nil {
				out.Order = fresh
			} else {
				s.logger.Warn("Failed to refetch created order", zap.Int64("order_id", order.ID), zap.Error(err))
			}
		}

		s.transitioned(ctx, models.EntityQuotation, id, q.AgencyID, action, string(from), string(to), actor)
		return nil
	})
	if err != nil {
		s.failed(models.EntityQuotation, action, err)
		return nil, util.RecordError(span, err)
	}

	s.logger.Info("Quotation converted",
		zap.Int64("quotation_id", id),
		zap.Int64("order_id", out.Order.ID))
	return out, nil
}

// compensateOrder cancels an order created by a conversion that did not finish
func (s *QuotationService) compensateOrder(ctx context.Context, orderID int64) {
	if orderID <= 0 {
		return
	}
	if err := s.backend.UpdateOrderStatus(ctx, orderID, models.OrderCancelled); err != nil {
		s.logger.Error("Failed to compensate order", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// compensateReservation releases a vehicle instance reserved by a conversion that did not finish
func (s *QuotationService) compensateReservation(ctx context.Context, instanceID int64) {
	if err := s.backend.SetVehicleInstanceStatus(ctx, instanceID, models.VehicleInstanceAvailable); err != nil {
		s.logger.Error("Failed to release vehicle instance", zap.Int64("vehicle_instance_id", instanceID), zap.Error(err))
	}
}
