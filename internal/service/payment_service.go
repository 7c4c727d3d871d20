package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dealer-service/internal/lifecycle"
	"dealer-service/internal/models"
	"dealer-service/internal/util"

	"go.uber.org/zap"
)

// PaymentRequest represents one payment or installment against an order
type PaymentRequest struct {
	Amount int64      `json:"amount" binding:"required,gt=0"`
	Method string     `json:"method" binding:"required"`
	PaidAt *time.Time `json:"paidAt"`
}

// PaymentResult is the order after a payment with the payment recorded
type PaymentResult struct {
	Order   *models.CustomerOrder `json:"order"`
	Payment *models.Payment       `json:"payment"`
	Paid    int64                 `json:"paid"`
}

// RecordPayment records a payment and moves the order to Paying, or to
// Paid once the cumulative amount covers the total.
func (s *OrderService) RecordPayment(ctx context.Context, id int64, req *PaymentRequest, actor int64) (*PaymentResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", models.ErrValidation)
	}
	if strings.TrimSpace(req.Method) == "" {
		return nil, fmt.Errorf("%w: payment method is required", models.ErrValidation)
	}

	res := &PaymentResult{}
	order, err := s.transition(ctx, id, actor, func(ctx context.Context, order *models.CustomerOrder) (lifecycle.Action, models.OrderStatus, error) {
		action := lifecycle.ActionRecordPayment
		if _, err := lifecycle.Order(order.Status, action); err != nil {
			return action, order.Status, err
		}

		before, _, err := s.paidSoFar(ctx, order.ID)
		if err != nil {
			return action, order.Status, err
		}

		paidAt := s.today()
		if req.PaidAt != nil {
			paidAt = *req.PaidAt
		}
		payment, err := s.backend.CreatePayment(ctx, &models.Payment{
			OrderID: order.ID,
			Amount:  req.Amount,
			Method:  req.Method,
			PaidAt:  models.NewTimestamp(paidAt),
		})
		if err != nil {
			return action, order.Status, fmt.Errorf("failed to create payment for order %d: %w", order.ID, err)
		}
		res.Payment = payment

		paid := s.paidAfter(ctx, order.ID, payment, before, req.Amount)
		res.Paid = paid

		to, err := lifecycle.PaymentTarget(order.Status, paid, order.TotalAmount)
		if err != nil {
			return action, order.Status, err
		}
		util.PaymentsRecordedTotal.WithLabelValues(string(to)).Inc()
		s.logger.Info("Payment recorded",
			zap.Int64("order_id", order.ID),
			zap.Int64("amount", req.Amount),
			zap.Int64("paid", paid),
			zap.Int64("total", order.TotalAmount))
		return action, to, nil
	})
	if err != nil {
		return nil, err
	}
	res.Order = order
	return res, nil
}

// ListPayments returns the payments recorded against an order
func (s *OrderService) ListPayments(ctx context.Context, id int64) ([]models.Payment, error) {
	return s.backend.ListPayments(ctx, id)
}

// paidAfter is the cumulative amount once payment is written. The payment
// list may lag the write: a payment with an id is counted if the list lacks
// it, one without an id is counted if the listed total did not grow. When
// the list cannot be read the amount before the write is used.
func (s *OrderService) paidAfter(ctx context.Context, orderID int64, payment *models.Payment, before, amount int64) int64 {
	listed, recorded, err := s.paidSoFar(ctx, orderID)
	if err != nil {
		s.logger.Warn("Payment list unavailable after write, using prior total",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return before + amount
	}
	switch {
	case payment != nil && payment.ID != 0:
		if !recorded[payment.ID] {
			listed += amount
		}
	case listed <= before:
		listed += amount
	}
	return listed
}

// paidSoFar sums the payments recorded against an order
func (s *OrderService) paidSoFar(ctx context.Context, orderID int64) (int64, map[int64]bool, error) {
	payments, err := s.backend.ListPayments(ctx, orderID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list payments for order %d: %w", orderID, err)
	}
	var paid int64
	ids := make(map[int64]bool, len(payments))
	for _, p := range payments {
		paid += p.Amount
		ids[p.ID] = true
	}
	return paid, ids, nil
}
