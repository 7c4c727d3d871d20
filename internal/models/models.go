package models

import (
	"bytes"
	"fmt"
	"time"
)

// Timestamp accepts the date formats the backend services emit: RFC3339,
// zone-less ISO timestamps and bare dates. Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// NewTimestamp wraps t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		t.Time = time.Time{}
		return nil
	}
	s := string(bytes.Trim(b, `"`))
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("%w: unparseable timestamp %q", ErrValidation, s)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339) + `"`), nil
}

// Quotation is a priced offer of one vehicle instance to one customer
type Quotation struct {
	ID                int64           `json:"quotationId"`
	CustomerID        int64           `json:"customerId"`
	VehicleInstanceID int64           `json:"vehicleInstanceId"`
	VehicleID         int64           `json:"vehicleId"`
	AgencyID          int64           `json:"agencyId"`
	QuotedPrice       int64           `json:"quotedPrice"`
	BasePrice         int64           `json:"basePrice"`
	StartDate         Timestamp       `json:"startDate"`
	EndDate           Timestamp       `json:"endDate"`
	Status            QuotationStatus `json:"status"`
	CreatedBy         int64           `json:"createdBy"`
	CreatedAt         Timestamp       `json:"createdAt"`
}

// Lapsed reports whether the validity window ended before asOf's calendar day.
func (q *Quotation) Lapsed(asOf time.Time) bool {
	if q.EndDate.IsZero() {
		return false
	}
	return CalendarDay(q.EndDate.Time).Before(CalendarDay(asOf))
}

// Promotion is a time-windowed absolute discount on one vehicle
type Promotion struct {
	ID             int64     `json:"promotionId"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	VehicleID      int64     `json:"vehicleId"`
	AgencyID       *int64    `json:"agencyId"`
	DiscountAmount int64     `json:"discountAmount"`
	StartDate      Timestamp `json:"startDate"`
	EndDate        Timestamp `json:"endDate"`
}

// National reports whether the promotion applies to every agency.
func (p *Promotion) National() bool {
	return p.AgencyID == nil || *p.AgencyID == 0
}

// Customer is an end buyer registered at an agency
type Customer struct {
	ID       int64         `json:"customerId"`
	Name     string        `json:"fullName"`
	Phone    string        `json:"phone,omitempty"`
	Email    string        `json:"email,omitempty"`
	Class    CustomerClass `json:"class"`
	AgencyID int64         `json:"agencyId"`
}

// AgencyOrder is an agency's request for stock from the central warehouse
type AgencyOrder struct {
	ID               int64             `json:"agencyOrderId"`
	AgencyID         int64             `json:"agencyId"`
	VehicleID        int64             `json:"vehicleId"`
	AgencyContractID int64             `json:"agencyContractId"`
	Quantity         int               `json:"quantity"`
	Status           AgencyOrderStatus `json:"status"`
	OrderDate        Timestamp         `json:"orderDate"`
}

// Allocation assigns one physical vehicle instance to an agency order
type Allocation struct {
	ID                int64 `json:"allocationId"`
	AgencyOrderID     int64 `json:"agencyOrderId"`
	VehicleInstanceID int64 `json:"vehicleInstanceId"`
	AgencyContractID  int64 `json:"agencyContractId"`
}

// CustomerOrder is the sale created when a quotation is converted
type CustomerOrder struct {
	ID                int64       `json:"orderId"`
	CustomerID        int64       `json:"customerId"`
	QuotationID       int64       `json:"quotationId"`
	VehicleInstanceID int64       `json:"vehicleInstanceId"`
	AgencyID          int64       `json:"agencyId"`
	TotalAmount       int64       `json:"totalAmount"`
	Status            OrderStatus `json:"status"`
	OrderDate         Timestamp   `json:"orderDate"`
}

// Contract is the signed sales contract for a customer order
type Contract struct {
	ID         int64     `json:"contractId"`
	OrderID    int64     `json:"orderId"`
	CustomerID int64     `json:"customerId"`
	SignedDate Timestamp `json:"signedDate"`
	Terms      string    `json:"terms,omitempty"`
}

// Payment is one (possibly partial) payment against a customer order
type Payment struct {
	ID      int64     `json:"paymentId"`
	OrderID int64     `json:"orderId"`
	Amount  int64     `json:"amount"`
	Method  string    `json:"method"`
	PaidAt  Timestamp `json:"paidAt"`
}

// Delivery records the hand-over of the vehicle
type Delivery struct {
	ID             int64     `json:"deliveryId"`
	OrderID        int64     `json:"orderId"`
	DeliveryDate   Timestamp `json:"deliveryDate"`
	BeforeImageURL string    `json:"beforeImageUrl"`
	AfterImageURL  string    `json:"afterImageUrl,omitempty"`
	Note           string    `json:"note,omitempty"`
	Status         string    `json:"status,omitempty"`
}

// VehicleInstance is one VIN-identified physical unit
type VehicleInstance struct {
	ID        int64  `json:"vehicleInstanceId"`
	VehicleID int64  `json:"vehicleId"`
	VIN       string `json:"vin"`
	Color     string `json:"color,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Vehicle instance statuses the service writes
const (
	VehicleInstanceAvailable = "Available"
	VehicleInstanceReserved  = "Reserved"
)

// InventoryItem is one ledger row of the central warehouse or an agency
type InventoryItem struct {
	ID                int64  `json:"inventoryId"`
	VehicleInstanceID int64  `json:"vehicleInstanceId"`
	VehicleID         int64  `json:"vehicleId"`
	AgencyID          int64  `json:"agencyId,omitempty"`
	Status            string `json:"status,omitempty"`
}

// Transition is one journal row: an entity moved between statuses
type Transition struct {
	ID         int64     `db:"id" json:"id"`
	Entity     string    `db:"entity" json:"entity"`
	EntityID   int64     `db:"entity_id" json:"entity_id"`
	Action     string    `db:"action" json:"action"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	Actor      int64     `db:"actor" json:"actor"`
	EventID    string    `db:"event_id" json:"event_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// CalendarDay keeps only the year, month and day of t as written in t's own
// location, so dates from different zones compare as calendar dates.
func CalendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
