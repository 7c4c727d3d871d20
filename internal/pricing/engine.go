// Package pricing computes a quotation's final price from the vehicle MSRP,
// the promotions running on the quote date and the customer's class.
package pricing

import (
	"time"

	"dealer-service/internal/models"

	"github.com/shopspring/decimal"
)

// Promotion scopes as shown in the breakdown
const (
	ScopeNational = "national"
	ScopeAgency   = "agency"
	ScopeCustomer = "customer_class"
)

var classRates = map[models.CustomerClass]decimal.Decimal{
	models.CustomerVIP:      decimal.New(3, -2),
	models.CustomerKimCuong: decimal.New(5, -2),
}

// Input is everything the engine needs to price one vehicle for one customer
type Input struct {
	BasePrice     int64
	Promotions    []models.Promotion
	CustomerClass models.CustomerClass
	VehicleID     int64
	AgencyID      int64
	AsOf          time.Time
}

// Line is one discount line of the breakdown, in application order
type Line struct {
	PromotionID int64  `json:"promotion_id,omitempty"`
	Name        string `json:"name"`
	Scope       string `json:"scope"`
	Amount      int64  `json:"amount"`
}

// Result is the priced quotation
type Result struct {
	BasePrice           int64  `json:"base_price"`
	PromotionDiscount   int64  `json:"promotion_discount"`
	PriceAfterPromotion int64  `json:"price_after_promotion"`
	ClassDiscount       int64  `json:"class_discount"`
	TotalDiscount       int64  `json:"total_discount"`
	FinalPrice          int64  `json:"final_price"`
	Negative            bool   `json:"negative"`
	Breakdown           []Line `json:"breakdown"`
}

// ClassRate returns the fractional discount for a customer class.
func ClassRate(class models.CustomerClass) decimal.Decimal {
	if r, ok := classRates[class]; ok {
		return r
	}
	return decimal.Zero
}

// Matches reports whether p applies to the vehicle at the agency on asOf.
// The window is inclusive on both ends and compared by calendar day.
func Matches(p models.Promotion, vehicleID, agencyID int64, asOf time.Time) bool {
	if p.VehicleID != vehicleID {
		return false
	}
	if !p.National() && *p.AgencyID != agencyID {
		return false
	}
	day := models.CalendarDay(asOf)
	if !p.StartDate.IsZero() && day.Before(models.CalendarDay(p.StartDate.Time)) {
		return false
	}
	if !p.EndDate.IsZero() && day.After(models.CalendarDay(p.EndDate.Time)) {
		return false
	}
	return true
}

// ComputeFinalPrice stacks every matching promotion additively, then applies
// the class percentage to what is left. There is no cap and no floor: a
// large enough promotion set yields a negative price, flagged in Negative.
func ComputeFinalPrice(in Input) Result {
	res := Result{
		BasePrice: in.BasePrice,
		Breakdown: make([]Line, 0, len(in.Promotions)+1),
	}

	for _, p := range in.Promotions {
		if !Matches(p, in.VehicleID, in.AgencyID, in.AsOf) {
			continue
		}
		scope := ScopeAgency
		if p.National() {
			scope = ScopeNational
		}
		res.PromotionDiscount += p.DiscountAmount
		res.Breakdown = append(res.Breakdown, Line{
			PromotionID: p.ID,
			Name:        p.Name,
			Scope:       scope,
			Amount:      p.DiscountAmount,
		})
	}

	res.PriceAfterPromotion = in.BasePrice - res.PromotionDiscount

	rate := ClassRate(in.CustomerClass)
	if !rate.IsZero() {
		res.ClassDiscount = decimal.NewFromInt(res.PriceAfterPromotion).Mul(rate).Round(0).IntPart()
		res.Breakdown = append(res.Breakdown, Line{
			Name:   string(in.CustomerClass),
			Scope:  ScopeCustomer,
			Amount: res.ClassDiscount,
		})
	}

	res.FinalPrice = res.PriceAfterPromotion - res.ClassDiscount
	res.TotalDiscount = res.PromotionDiscount + res.ClassDiscount
	res.Negative = res.FinalPrice < 0
	return res
}
