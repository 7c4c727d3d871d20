package lifecycle

import (
	"testing"

	"dealer-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allQuotationStatuses = []models.QuotationStatus{
	models.QuotationPending, models.QuotationAccepted, models.QuotationRejected,
	models.QuotationExpired, models.QuotationConverted,
}

func TestQuotation_ApproveRejectOnlyFromPending(t *testing.T) {
	to, err := Quotation(models.QuotationPending, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationAccepted, to)

	to, err = Quotation(models.QuotationPending, ActionReject)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationRejected, to)

	for _, from := range allQuotationStatuses {
		if from == models.QuotationPending {
			continue
		}
		for _, action := range []Action{ActionApprove, ActionReject} {
			to, err := Quotation(from, action)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s/%s", from, action)
			assert.Equal(t, from, to, "status must be unchanged")
		}
	}
}

func TestQuotation_ConvertRequiresAccepted(t *testing.T) {
	to, err := Quotation(models.QuotationAccepted, ActionConvert)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationConverted, to)

	_, err = Quotation(models.QuotationPending, ActionConvert)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestQuotation_TerminalStatusesHaveNoActions(t *testing.T) {
	for _, s := range allQuotationStatuses {
		if QuotationTerminal(s) {
			assert.Empty(t, QuotationActions(s), s)
		}
	}
	assert.Equal(t, []Action{ActionApprove, ActionReject, ActionExpire}, QuotationActions(models.QuotationPending))
}

func TestAgencyOrder_Transitions(t *testing.T) {
	tests := []struct {
		from    models.AgencyOrderStatus
		action  Action
		to      models.AgencyOrderStatus
		wantErr bool
	}{
		{models.AgencyOrderPending, ActionConfirm, models.AgencyOrderConfirmed, false},
		{models.AgencyOrderPending, ActionAllocate, models.AgencyOrderProcessing, false},
		{models.AgencyOrderConfirmed, ActionAllocate, models.AgencyOrderProcessing, false},
		{models.AgencyOrderProcessing, ActionReceiveAll, models.AgencyOrderCompleted, false},
		{models.AgencyOrderProcessing, ActionAllocate, models.AgencyOrderProcessing, true},
		{models.AgencyOrderPending, ActionReceiveAll, models.AgencyOrderPending, true},
		{models.AgencyOrderConfirmed, ActionCancel, models.AgencyOrderCancelled, false},
		{models.AgencyOrderCompleted, ActionCancel, models.AgencyOrderCompleted, true},
		{models.AgencyOrderCancelled, ActionCancel, models.AgencyOrderCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			to, err := AgencyOrder(tt.from, tt.action)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestOrder_HappyPath(t *testing.T) {
	s := models.OrderPending

	s, err := Order(s, ActionSignContract)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, s)

	s, err = PaymentTarget(s, 400, 1000)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaying, s)

	s, err = PaymentTarget(s, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, s)

	s, err = Order(s, ActionRecordDelivery)
	require.NoError(t, err)
	assert.Equal(t, models.OrderInTransit, s)

	s, err = Order(s, ActionCompleteDelivery)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, s)
	assert.True(t, OrderTerminal(s))
}

func TestOrder_PaymentRequiresContract(t *testing.T) {
	to, err := PaymentTarget(models.OrderPending, 1000, 1000)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.OrderPending, to)
}

func TestOrder_DeliveryAllowedOnPartialPayment(t *testing.T) {
	to, err := Order(models.OrderPaying, ActionRecordDelivery)
	require.NoError(t, err)
	assert.Equal(t, models.OrderInTransit, to)

	_, err = Order(models.OrderProcessing, ActionRecordDelivery)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrder_CancelIsIrreversible(t *testing.T) {
	for _, a := range []Action{ActionSignContract, ActionRecordPayment, ActionRecordDelivery, ActionCompleteDelivery, ActionCancel} {
		_, err := Order(models.OrderCancelled, a)
		assert.ErrorIs(t, err, ErrInvalidTransition, a)
	}
	assert.Empty(t, OrderActions(models.OrderCancelled))
	assert.Empty(t, OrderActions(models.OrderCompleted))
}

func TestApply_CanonicalizesRawStatus(t *testing.T) {
	to, err := Apply(models.EntityQuotation, "  pending ", ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, string(models.QuotationAccepted), to)

	to, err = Apply(models.EntityOrder, "Partial", ActionRecordDelivery)
	require.NoError(t, err)
	assert.Equal(t, string(models.OrderInTransit), to)

	_, err = Apply(models.EntityAgencyOrder, "Completed", ActionCancel)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApply_RejectsUnknownInput(t *testing.T) {
	_, err := Apply(models.EntityOrder, "Shipped??", ActionCancel)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = Apply("invoice", "Pending", ActionCancel)
	assert.ErrorIs(t, err, models.ErrValidation)
}
