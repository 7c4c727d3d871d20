package service

import (
	"context"
	"testing"

	"dealer-service/internal/lifecycle"
	"dealer-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderService(t *testing.T) (*OrderService, *fakeOrderBackend, *recordingPublisher) {
	t.Helper()
	ob := newFakeOrderBackend()
	rc, _ := newTestRedis(t)
	pub := &recordingPublisher{}
	return NewOrderService(ob, rc, pub, testOptions()), ob, pub
}

func seedOrder(ob *fakeOrderBackend, status models.OrderStatus, total int64) {
	ob.orders[30] = &models.CustomerOrder{
		ID:          30,
		CustomerID:  1,
		QuotationID: 1,
		AgencyID:    3,
		TotalAmount: total,
		Status:      status,
	}
}

func TestSignContract(t *testing.T) {
	s, ob, pub := newOrderService(t)
	seedOrder(ob, models.OrderPending, 1000)

	order, err := s.SignContract(context.Background(), 30, &ContractRequest{Terms: "standard"}, 5)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, order.Status)
	require.Len(t, ob.contracts, 1)
	assert.Equal(t, int64(30), ob.contracts[0].OrderID)
	require.Len(t, pub.transitions, 1)
	assert.Equal(t, string(lifecycle.ActionSignContract), pub.transitions[0].Action)
}

func TestSignContract_FailedContractLeavesStatus(t *testing.T) {
	s, ob, _ := newOrderService(t)
	seedOrder(ob, models.OrderPending, 1000)
	ob.failNext["CreateContract"] = errUpstream

	_, err := s.SignContract(context.Background(), 30, &ContractRequest{}, 0)
	require.Error(t, err)
	assert.Equal(t, models.OrderPending, ob.orders[30].Status)
	assert.Empty(t, ob.orderUpdates)
}

func TestRecordPayment_PartialThenPaid(t *testing.T) {
	s, ob, _ := newOrderService(t)
	seedOrder(ob, models.OrderProcessing, 1000)
	ctx := context.Background()

	res, err := s.RecordPayment(ctx, 30, &PaymentRequest{Amount: 400, Method: "cash"}, 0)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaying, res.Order.Status)
	assert.Equal(t, int64(400), res.Paid)

	res, err = s.RecordPayment(ctx, 30, &PaymentRequest{Amount: 300, Method: "transfer"}, 0)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaying, res.Order.Status)
	assert.Equal(t, int64(700), res.Paid)

	res, err = s.RecordPayment(ctx, 30, &PaymentRequest{Amount: 300, Method: "transfer"}, 0)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, res.Order.Status)
	assert.Equal(t, int64(1000), res.Paid)

	_, err = s.RecordPayment(ctx, 30, &PaymentRequest{Amount: 1, Method: "cash"}, 0)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Len(t, ob.payments[30], 3)
}

func TestRecordPayment_RequiresContract(t *testing.T) {
	s, ob, _ := newOrderService(t)
	seedOrder(ob, models.OrderPending, 1000)

	_, err := s.RecordPayment(context.Background(), 30, &PaymentRequest{Amount: 1000, Method: "cash"}, 0)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Empty(t, ob.payments[30])
}

func TestRecordPayment_RejectsNonPositiveAmount(t *testing.T) {
	s, ob, _ := newOrderService(t)
	seedOrder(ob, models.OrderProcessing, 1000)

	_, err := s.RecordPayment(context.Background(), 30, &PaymentRequest{Amount: 0, Method: "cash"}, 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRecordPayment_PaymentWithoutIDCountedOnce(t *testing.T) {
	s, ob, _ := newOrderService(t)
	seedOrder(ob, models.OrderProcessing, 1000)
	ob.idlessPayments = true

	res, err := s.RecordPayment(context.Background(), 30, &PaymentRequest{Amount: 500, Method: "cash"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Paid)
	assert.Equal(t, models.OrderPaying, res.Order.Status)
}

func TestRecordPayment_ListFailureAfterWriteKeepsPayment(t *testing.T) {
	s, ob, _ := newOrderService(t)
	seedOrder(ob, models.OrderProcessing, 1000)
	ctx := context.Background()

	_, err := s.RecordPayment(ctx, 30, &PaymentRequest{Amount: 400, Method: "cash"}, 0)
	require.NoError(t, err)

	ob.failListAfterCreate = errUpstream
	res, err := s.RecordPayment(ctx, 30, &PaymentRequest{Amount: 600, Method: "transfer"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Paid)
	assert.Equal(t, models.OrderPaid, res.Order.Status)
	assert.Len(t, ob.payments[30], 2)
}

func TestRecordPayment_ListFailureBeforeWriteHasNoSideEffect(t *testing.T) {
	s, ob, _ := newOrderService(t)
	seedOrder(ob, models.OrderProcessing, 1000)
	ob.failNext["listPayments"] = errUpstream

	_, err := s.RecordPayment(context.Background(), 30, &PaymentRequest{Amount: 400, Method: "cash"}, 0)
	assert.Error(t, err)
	assert.Empty(t, ob.payments[30])
	assert.Equal(t, models.OrderProcessing, ob.orders[30].Status)
}

func TestDeliveryFlow(t *testing.T) {
	s, ob, _ := newOrderService(t)
	seedOrder(ob, models.OrderPaying, 1000)
	ctx := context.Background()

	_, err := s.RecordDelivery(ctx, 30, &DeliveryRequest{}, 0)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, models.OrderPaying, ob.orders[30].Status)

	order, err := s.RecordDelivery(ctx, 30, &DeliveryRequest{BeforeImageURL: "https://img/before.jpg"}, 0)
	require.NoError(t, err)
	assert.Equal(t, models.OrderInTransit, order.Status)
	assert.Equal(t, DeliveryInTransit, ob.deliveries[30].Status)

	_, err = s.CompleteDelivery(ctx, 30, &CompleteDeliveryRequest{}, 0)
	assert.ErrorIs(t, err, models.ErrValidation)

	order, err = s.CompleteDelivery(ctx, 30, &CompleteDeliveryRequest{AfterImageURL: "https://img/after.jpg"}, 0)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
	assert.Equal(t, "https://img/after.jpg", ob.deliveries[30].AfterImageURL)
	assert.Equal(t, DeliveryDelivered, ob.deliveries[30].Status)
}

func TestCancel_Irreversible(t *testing.T) {
	s, ob, _ := newOrderService(t)
	seedOrder(ob, models.OrderPaid, 1000)

	order, err := s.Cancel(context.Background(), 30, 0)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, order.Status)

	_, err = s.Cancel(context.Background(), 30, 0)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestGetOrder_IncludesPaidAndActions(t *testing.T) {
	s, ob, _ := newOrderService(t)
	seedOrder(ob, models.OrderPaying, 1000)
	ob.payments[30] = []models.Payment{{ID: 1, OrderID: 30, Amount: 250}}

	view, err := s.GetOrder(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(250), view.Paid)
	assert.Equal(t, []lifecycle.Action{lifecycle.ActionRecordPayment, lifecycle.ActionRecordDelivery, lifecycle.ActionCancel}, view.Actions)
}
