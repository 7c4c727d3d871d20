package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dealer-service/internal/lifecycle"
	"dealer-service/internal/models"
	"dealer-service/internal/redisclient"
	"dealer-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SalesBackend is the part of the order service customer orders need
type SalesBackend interface {
	GetOrder(ctx context.Context, id int64) (*models.CustomerOrder, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error
	CreateContract(ctx context.Context, c *models.Contract) (*models.Contract, error)
	CreatePayment(ctx context.Context, p *models.Payment) (*models.Payment, error)
	ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error)
	CreateDelivery(ctx context.Context, d *models.Delivery) (*models.Delivery, error)
	UpdateDelivery(ctx context.Context, d *models.Delivery) error
	GetDeliveryByOrder(ctx context.Context, orderID int64) (*models.Delivery, error)
}

// Delivery record statuses
const (
	DeliveryInTransit = "InTransit"
	DeliveryDelivered = "Delivered"
)

// OrderService handles the customer order lifecycle from contract to delivery
type OrderService struct {
	*base
	backend SalesBackend
}

// NewOrderService creates a new order service
func NewOrderService(backend SalesBackend, redis *redisclient.Client, publisher Publisher, opts Options) *OrderService {
	return &OrderService{
		base:    newBase(redis, publisher, opts),
		backend: backend,
	}
}

// OrderView is an order with its payment state and the actions open to it
type OrderView struct {
	Order    *models.CustomerOrder `json:"order"`
	Paid     int64                 `json:"paid"`
	Actions  []lifecycle.Action    `json:"actions"`
	Terminal bool                  `json:"terminal"`
}

// GetOrder retrieves an order by ID together with what has been paid
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.backend.GetOrder(ctx, id)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	paid, _, err := s.paidSoFar(ctx, id)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return &OrderView{
		Order:    order,
		Paid:     paid,
		Actions:  lifecycle.OrderActions(order.Status),
		Terminal: lifecycle.OrderTerminal(order.Status),
	}, nil
}

// ContractRequest represents a request to sign an order's contract
type ContractRequest struct {
	Terms      string     `json:"terms"`
	SignedDate *time.Time `json:"signedDate"`
}

// SignContract records the contract and moves a Pending order to Processing
func (s *OrderService) SignContract(ctx context.Context, id int64, req *ContractRequest, actor int64) (*models.CustomerOrder, error) {
	return s.transition(ctx, id, actor, func(ctx context.Context, order *models.CustomerOrder) (lifecycle.Action, models.OrderStatus, error) {
		to, err := lifecycle.Order(order.Status, lifecycle.ActionSignContract)
		if err != nil {
			return lifecycle.ActionSignContract, to, err
		}
		signed := s.today()
		if req.SignedDate != nil {
			signed = *req.SignedDate
		}
		contract, err := s.backend.CreateContract(ctx, &models.Contract{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			SignedDate: models.NewTimestamp(signed),
			Terms:      req.Terms,
		})
		if err != nil {
			return lifecycle.ActionSignContract, to, fmt.Errorf("failed to create contract for order %d: %w", order.ID, err)
		}
		s.logger.Info("Contract signed", zap.Int64("order_id", order.ID), zap.Int64("contract_id", contract.ID))
		return lifecycle.ActionSignContract, to, nil
	})
}

// DeliveryRequest represents a request to hand a vehicle over for delivery
type DeliveryRequest struct {
	DeliveryDate   *time.Time `json:"deliveryDate"`
	BeforeImageURL string     `json:"beforeImageUrl" binding:"required"`
	Note           string     `json:"note"`
}

// RecordDelivery records the delivery with its before photo and moves the
// order to InTransit. A partially paid order may be delivered.
func (s *OrderService) RecordDelivery(ctx context.Context, id int64, req *DeliveryRequest, actor int64) (*models.CustomerOrder, error) {
	return s.transition(ctx, id, actor, func(ctx context.Context, order *models.CustomerOrder) (lifecycle.Action, models.OrderStatus, error) {
		action := lifecycle.ActionRecordDelivery
		to, err := lifecycle.Order(order.Status, action)
		if err != nil {
			return action, to, err
		}
		if strings.TrimSpace(req.BeforeImageURL) == "" {
			return action, to, fmt.Errorf("%w: a before-delivery photo is required", models.ErrValidation)
		}
		date := s.today()
		if req.DeliveryDate != nil {
			date = *req.DeliveryDate
		}
		delivery, err := s.backend.CreateDelivery(ctx, &models.Delivery{
			OrderID:        order.ID,
			DeliveryDate:   models.NewTimestamp(date),
			BeforeImageURL: req.BeforeImageURL,
			Note:           req.Note,
			Status:         DeliveryInTransit,
		})
		if err != nil {
			return action, to, fmt.Errorf("failed to create delivery for order %d: %w", order.ID, err)
		}
		s.logger.Info("Delivery recorded", zap.Int64("order_id", order.ID), zap.Int64("delivery_id", delivery.ID))
		return action, to, nil
	})
}

// CompleteDeliveryRequest represents the hand-over confirmation
type CompleteDeliveryRequest struct {
	AfterImageURL string `json:"afterImageUrl" binding:"required"`
	Note          string `json:"note"`
}

// CompleteDelivery records the after photo and completes an InTransit order
func (s *OrderService) CompleteDelivery(ctx context.Context, id int64, req *CompleteDeliveryRequest, actor int64) (*models.CustomerOrder, error) {
	return s.transition(ctx, id, actor, func(ctx context.Context, order *models.CustomerOrder) (lifecycle.Action, models.OrderStatus, error) {
		action := lifecycle.ActionCompleteDelivery
		to, err := lifecycle.Order(order.Status, action)
		if err != nil {
			return action, to, err
		}
		if strings.TrimSpace(req.AfterImageURL) == "" {
			return action, to, fmt.Errorf("%w: an after-delivery photo is required", models.ErrValidation)
		}
		delivery, err := s.backend.GetDeliveryByOrder(ctx, order.ID)
		if err != nil {
			return action, to, fmt.Errorf("failed to get delivery for order %d: %w", order.ID, err)
		}
		delivery.AfterImageURL = req.AfterImageURL
		delivery.Status = DeliveryDelivered
		if req.Note != "" {
			delivery.Note = req.Note
		}
		if err := s.backend.UpdateDelivery(ctx, delivery); err != nil {
			return action, to, fmt.Errorf("failed to update delivery %d: %w", delivery.ID, err)
		}
		return action, to, nil
	})
}

// Cancel moves a non-terminal order to Cancelled
func (s *OrderService) Cancel(ctx context.Context, id, actor int64) (*models.CustomerOrder, error) {
	return s.transition(ctx, id, actor, func(ctx context.Context, order *models.CustomerOrder) (lifecycle.Action, models.OrderStatus, error) {
		to, err := lifecycle.Order(order.Status, lifecycle.ActionCancel)
		return lifecycle.ActionCancel, to, err
	})
}

// step checks the transition, writes the supporting record and returns the
// action taken and the status to move to.
type step func(ctx context.Context, order *models.CustomerOrder) (lifecycle.Action, models.OrderStatus, error)

func (s *OrderService) transition(ctx context.Context, id, actor int64, run step) (*models.CustomerOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Transition")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", id))

	var (
		out    *models.CustomerOrder
		action lifecycle.Action
	)
	err := s.withLock(ctx, models.EntityOrder, id, func(ctx context.Context) error {
		order, err := s.backend.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		from := order.Status

		var to models.OrderStatus
		action, to, err = run(ctx, order)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String("action", string(action)))

		if to != from {
			if err := s.backend.UpdateOrderStatus(ctx, id, to); err != nil {
				return fmt.Errorf("failed to update order %d status: %w", id, err)
			}
		}
		updated := *order
		updated.Status = to
		out = refetch(ctx, s.base, &updated, func(ctx context.Context) (*models.CustomerOrder, error) {
			return s.backend.GetOrder(ctx, id)
		})

		s.transitioned(ctx, models.EntityOrder, id, order.AgencyID, action, string(from), string(to), actor)
		return nil
	})
	if err != nil {
		s.failed(models.EntityOrder, action, err)
		return nil, util.RecordError(span, err)
	}
	return out, nil
}
