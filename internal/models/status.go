package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrValidation marks input rejected before any backend call is made.
var ErrValidation = errors.New("validation failed")

// QuotationStatus is the lifecycle status of a quotation
type QuotationStatus string

const (
	QuotationPending   QuotationStatus = "Pending"
	QuotationAccepted  QuotationStatus = "Accepted"
	QuotationRejected  QuotationStatus = "Rejected"
	QuotationExpired   QuotationStatus = "Expired"
	QuotationConverted QuotationStatus = "Converted"
)

// AgencyOrderStatus is the lifecycle status of an agency stock order
type AgencyOrderStatus string

const (
	AgencyOrderPending    AgencyOrderStatus = "Pending"
	AgencyOrderConfirmed  AgencyOrderStatus = "Confirmed"
	AgencyOrderProcessing AgencyOrderStatus = "Processing"
	AgencyOrderCompleted  AgencyOrderStatus = "Completed"
	AgencyOrderCancelled  AgencyOrderStatus = "Cancelled"
)

// OrderStatus is the lifecycle status of a customer order
type OrderStatus string

const (
	OrderPending    OrderStatus = "Pending"
	OrderProcessing OrderStatus = "Processing"
	OrderPaying     OrderStatus = "Paying"
	OrderPaid       OrderStatus = "Paid"
	OrderInTransit  OrderStatus = "InTransit"
	OrderCompleted  OrderStatus = "Completed"
	OrderCancelled  OrderStatus = "Cancelled"
)

// CustomerClass determines the percentage discount a customer receives
type CustomerClass string

const (
	CustomerRegular  CustomerClass = "Thường"
	CustomerVIP      CustomerClass = "VIP"
	CustomerKimCuong CustomerClass = "KimCuong"
)

// Records created without an explicit status start out Pending.
var quotationStatuses = map[string]QuotationStatus{
	"":          QuotationPending,
	"pending":   QuotationPending,
	"accepted":  QuotationAccepted,
	"approved":  QuotationAccepted,
	"rejected":  QuotationRejected,
	"expired":   QuotationExpired,
	"converted": QuotationConverted,
}

var agencyOrderStatuses = map[string]AgencyOrderStatus{
	"":           AgencyOrderPending,
	"pending":    AgencyOrderPending,
	"confirmed":  AgencyOrderConfirmed,
	"processing": AgencyOrderProcessing,
	"completed":  AgencyOrderCompleted,
	"cancelled":  AgencyOrderCancelled,
	"canceled":   AgencyOrderCancelled,
}

var orderStatuses = map[string]OrderStatus{
	"":           OrderPending,
	"pending":    OrderPending,
	"processing": OrderProcessing,
	"paying":     OrderPaying,
	"partial":    OrderPaying,
	"paid":       OrderPaid,
	"intransit":  OrderInTransit,
	"delivering": OrderInTransit,
	"completed":  OrderCompleted,
	"cancelled":  OrderCancelled,
	"canceled":   OrderCancelled,
}

var customerClasses = map[string]CustomerClass{
	"":         CustomerRegular,
	"thuong":   CustomerRegular,
	"regular":  CustomerRegular,
	"vip":      CustomerVIP,
	"kimcuong": CustomerKimCuong,
	"diamond":  CustomerKimCuong,
}

// canonicalKey folds a free-form status string into a lookup key:
// diacritics, case, whitespace, '_' and '-' are ignored.
func canonicalKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsSpace(r), r == '_', r == '-':
			continue
		case r == 'đ':
			b.WriteRune('d')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseQuotationStatus canonicalizes a quotation status string
func ParseQuotationStatus(s string) (QuotationStatus, error) {
	if st, ok := quotationStatuses[canonicalKey(s)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown quotation status %q", ErrValidation, s)
}

// ParseAgencyOrderStatus canonicalizes an agency order status string
func ParseAgencyOrderStatus(s string) (AgencyOrderStatus, error) {
	if st, ok := agencyOrderStatuses[canonicalKey(s)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown agency order status %q", ErrValidation, s)
}

// ParseOrderStatus canonicalizes a customer order status string
func ParseOrderStatus(s string) (OrderStatus, error) {
	if st, ok := orderStatuses[canonicalKey(s)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, s)
}

// ParseCustomerClass never fails: anything unrecognised is a regular customer.
func ParseCustomerClass(s string) CustomerClass {
	if c, ok := customerClasses[canonicalKey(s)]; ok {
		return c
	}
	return CustomerRegular
}

// IsKnownCustomerClass reports whether s names one of the customer classes.
func IsKnownCustomerClass(s string) bool {
	_, ok := customerClasses[canonicalKey(s)]
	return ok
}

// UnmarshalText lets JSON decoding canonicalize statuses at the boundary.
func (s *QuotationStatus) UnmarshalText(b []byte) error {
	st, err := ParseQuotationStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s *AgencyOrderStatus) UnmarshalText(b []byte) error {
	st, err := ParseAgencyOrderStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s *OrderStatus) UnmarshalText(b []byte) error {
	st, err := ParseOrderStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (c *CustomerClass) UnmarshalText(b []byte) error {
	*c = ParseCustomerClass(string(b))
	return nil
}
