// Package lifecycle holds the status transition tables for quotations,
// agency stock orders and customer orders.
package lifecycle

import (
	"errors"
	"fmt"

	"dealer-service/internal/models"
)

// ErrInvalidTransition is returned when an action is not allowed from the current status
var ErrInvalidTransition = errors.New("invalid status transition")

// Action is a user action that moves an entity between statuses
type Action string

const (
	ActionApprove          Action = "approve"
	ActionReject           Action = "reject"
	ActionConvert          Action = "convert"
	ActionExpire           Action = "expire"
	ActionConfirm          Action = "confirm"
	ActionAllocate         Action = "allocate"
	ActionReceiveAll       Action = "receive_all"
	ActionSignContract     Action = "sign_contract"
	ActionRecordPayment    Action = "record_payment"
	ActionRecordDelivery   Action = "record_delivery"
	ActionCompleteDelivery Action = "complete_delivery"
	ActionCancel           Action = "cancel"
)

type quotationKey struct {
	from   models.QuotationStatus
	action Action
}

type agencyOrderKey struct {
	from   models.AgencyOrderStatus
	action Action
}

type orderKey struct {
	from   models.OrderStatus
	action Action
}

var quotationTransitions = map[quotationKey]models.QuotationStatus{
	{models.QuotationPending, ActionApprove}:  models.QuotationAccepted,
	{models.QuotationPending, ActionReject}:   models.QuotationRejected,
	{models.QuotationAccepted, ActionConvert}: models.QuotationConverted,
	{models.QuotationPending, ActionExpire}:   models.QuotationExpired,
	{models.QuotationAccepted, ActionExpire}:  models.QuotationExpired,
}

var agencyOrderTransitions = map[agencyOrderKey]models.AgencyOrderStatus{
	{models.AgencyOrderPending, ActionConfirm}:       models.AgencyOrderConfirmed,
	{models.AgencyOrderPending, ActionAllocate}:      models.AgencyOrderProcessing,
	{models.AgencyOrderConfirmed, ActionAllocate}:    models.AgencyOrderProcessing,
	{models.AgencyOrderProcessing, ActionReceiveAll}: models.AgencyOrderCompleted,
	{models.AgencyOrderPending, ActionCancel}:        models.AgencyOrderCancelled,
	{models.AgencyOrderConfirmed, ActionCancel}:      models.AgencyOrderCancelled,
	{models.AgencyOrderProcessing, ActionCancel}:     models.AgencyOrderCancelled,
}

// RecordPayment has two outcomes; the table holds the partial one and
// PaymentTarget picks between them.
var orderTransitions = map[orderKey]models.OrderStatus{
	{models.OrderPending, ActionSignContract}:       models.OrderProcessing,
	{models.OrderProcessing, ActionRecordPayment}:   models.OrderPaying,
	{models.OrderPaying, ActionRecordPayment}:       models.OrderPaying,
	{models.OrderPaying, ActionRecordDelivery}:      models.OrderInTransit,
	{models.OrderPaid, ActionRecordDelivery}:        models.OrderInTransit,
	{models.OrderInTransit, ActionCompleteDelivery}: models.OrderCompleted,
	{models.OrderPending, ActionCancel}:             models.OrderCancelled,
	{models.OrderProcessing, ActionCancel}:          models.OrderCancelled,
	{models.OrderPaying, ActionCancel}:              models.OrderCancelled,
	{models.OrderPaid, ActionCancel}:                models.OrderCancelled,
	{models.OrderInTransit, ActionCancel}:           models.OrderCancelled,
}

func invalid(entity string, from string, action Action) error {
	return fmt.Errorf("%w: %s cannot %s from %s", ErrInvalidTransition, entity, action, from)
}

// Quotation returns the status a quotation moves to under action.
func Quotation(from models.QuotationStatus, action Action) (models.QuotationStatus, error) {
	if to, ok := quotationTransitions[quotationKey{from, action}]; ok {
		return to, nil
	}
	return from, invalid(models.EntityQuotation, string(from), action)
}

// AgencyOrder returns the status an agency order moves to under action.
func AgencyOrder(from models.AgencyOrderStatus, action Action) (models.AgencyOrderStatus, error) {
	if to, ok := agencyOrderTransitions[agencyOrderKey{from, action}]; ok {
		return to, nil
	}
	return from, invalid(models.EntityAgencyOrder, string(from), action)
}

// Order returns the status a customer order moves to under action. For
// RecordPayment use PaymentTarget, which knows whether the order is settled.
func Order(from models.OrderStatus, action Action) (models.OrderStatus, error) {
	if to, ok := orderTransitions[orderKey{from, action}]; ok {
		return to, nil
	}
	return from, invalid(models.EntityOrder, string(from), action)
}

// PaymentTarget returns Paid once the cumulative paid amount covers the
// total, otherwise Paying.
func PaymentTarget(from models.OrderStatus, paid, total int64) (models.OrderStatus, error) {
	to, err := Order(from, ActionRecordPayment)
	if err != nil {
		return from, err
	}
	if paid >= total {
		return models.OrderPaid, nil
	}
	return to, nil
}

// QuotationTerminal reports whether no further action is possible.
func QuotationTerminal(s models.QuotationStatus) bool {
	return s == models.QuotationRejected || s == models.QuotationExpired || s == models.QuotationConverted
}

// AgencyOrderTerminal reports whether no further action is possible.
func AgencyOrderTerminal(s models.AgencyOrderStatus) bool {
	return s == models.AgencyOrderCompleted || s == models.AgencyOrderCancelled
}

// OrderTerminal reports whether no further action is possible.
func OrderTerminal(s models.OrderStatus) bool {
	return s == models.OrderCompleted || s == models.OrderCancelled
}

// QuotationActions lists the actions available from s, for the UI.
func QuotationActions(s models.QuotationStatus) []Action {
	return available(s, quotationTransitions, func(k quotationKey) (models.QuotationStatus, Action) { return k.from, k.action })
}

// AgencyOrderActions lists the actions available from s, for the UI.
func AgencyOrderActions(s models.AgencyOrderStatus) []Action {
	return available(s, agencyOrderTransitions, func(k agencyOrderKey) (models.AgencyOrderStatus, Action) { return k.from, k.action })
}

// OrderActions lists the actions available from s, for the UI.
func OrderActions(s models.OrderStatus) []Action {
	return available(s, orderTransitions, func(k orderKey) (models.OrderStatus, Action) { return k.from, k.action })
}

var actionOrder = []Action{
	ActionApprove, ActionReject, ActionConvert, ActionExpire, ActionConfirm, ActionAllocate,
	ActionReceiveAll, ActionSignContract, ActionRecordPayment, ActionRecordDelivery,
	ActionCompleteDelivery, ActionCancel,
}

func available[S comparable, K comparable, V any](s S, table map[K]V, split func(K) (S, Action)) []Action {
	allowed := make(map[Action]bool)
	for k := range table {
		if from, action := split(k); from == s {
			allowed[action] = true
		}
	}
	out := make([]Action, 0, len(allowed))
	for _, a := range actionOrder {
		if allowed[a] {
			out = append(out, a)
		}
	}
	return out
}

// Apply runs action against a raw status string of the named entity. The
// status is canonicalized first; an unknown entity or status is a
// validation error.
func Apply(entity, from string, action Action) (string, error) {
	switch entity {
	case models.EntityQuotation:
		s, err := models.ParseQuotationStatus(from)
		if err != nil {
			return from, err
		}
		to, err := Quotation(s, action)
		return string(to), err
	case models.EntityAgencyOrder:
		s, err := models.ParseAgencyOrderStatus(from)
		if err != nil {
			return from, err
		}
		to, err := AgencyOrder(s, action)
		return string(to), err
	case models.EntityOrder:
		s, err := models.ParseOrderStatus(from)
		if err != nil {
			return from, err
		}
		to, err := Order(s, action)
		return string(to), err
	}
	return from, fmt.Errorf("%w: unknown entity %q", models.ErrValidation, entity)
}
