package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus_Aliases(t *testing.T) {
	cases := map[string]OrderStatus{
		"Pending":    OrderPending,
		"  PAYING ":  OrderPaying,
		"Partial":    OrderPaying,
		"in_transit": OrderInTransit,
		"In-Transit": OrderInTransit,
		"delivering": OrderInTransit,
		"canceled":   OrderCancelled,
		"":           OrderPending,
		"completed":  OrderCompleted,
	}
	for in, want := range cases {
		got, err := ParseOrderStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseStatus_UnknownIsValidationError(t *testing.T) {
	_, err := ParseQuotationStatus("archived")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseAgencyOrderStatus("shipped")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseQuotationStatus_Approved(t *testing.T) {
	s, err := ParseQuotationStatus("approved")
	require.NoError(t, err)
	assert.Equal(t, QuotationAccepted, s)
}

func TestParseCustomerClass_IgnoresDiacritics(t *testing.T) {
	assert.Equal(t, CustomerRegular, ParseCustomerClass("Thường"))
	assert.Equal(t, CustomerRegular, ParseCustomerClass("thuong"))
	assert.Equal(t, CustomerVIP, ParseCustomerClass(" vip "))
	assert.Equal(t, CustomerKimCuong, ParseCustomerClass("Kim Cương"))
	assert.Equal(t, CustomerKimCuong, ParseCustomerClass("kim_cuong"))
	assert.Equal(t, CustomerRegular, ParseCustomerClass("gold"))

	assert.True(t, IsKnownCustomerClass("KIMCUONG"))
	assert.False(t, IsKnownCustomerClass("gold"))
}

func TestQuotationJSON_CanonicalizesStatus(t *testing.T) {
	var q Quotation
	raw := `{"quotationId":7,"status":"accepted","startDate":"2024-05-01","endDate":"2024-05-31T00:00:00","createdAt":null}`
	require.NoError(t, json.Unmarshal([]byte(raw), &q))

	assert.Equal(t, int64(7), q.ID)
	assert.Equal(t, QuotationAccepted, q.Status)
	assert.Equal(t, 2024, q.StartDate.Year())
	assert.Equal(t, time.May, q.EndDate.Month())
	assert.True(t, q.CreatedAt.IsZero())
}

func TestQuotationJSON_UnknownStatusFails(t *testing.T) {
	var q Quotation
	err := json.Unmarshal([]byte(`{"status":"bogus"}`), &q)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTimestamp_MarshalZeroAsNull(t *testing.T) {
	b, err := json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = json.Marshal(NewTimestamp(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, `"2024-01-02T03:04:05Z"`, string(b))
}

func TestQuotationLapsed(t *testing.T) {
	q := Quotation{EndDate: NewTimestamp(time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC))}

	assert.False(t, q.Lapsed(time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC)))
	assert.True(t, q.Lapsed(time.Date(2024, 6, 1, 0, 0, 1, 0, time.UTC)))

	open := Quotation{}
	assert.False(t, open.Lapsed(time.Now()))
}

func TestPromotionNational(t *testing.T) {
	zero, five := int64(0), int64(5)
	assert.True(t, (&Promotion{}).National())
	assert.True(t, (&Promotion{AgencyID: &zero}).National())
	assert.False(t, (&Promotion{AgencyID: &five}).National())
}
