package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dealer-service/internal/models"
)

// OrderService is the client for the order domain: quotations, customer
// orders, contracts, payments, deliveries, promotions and vehicle instances.
type OrderService struct {
	c *Client
}

// NewOrderService creates an order domain client
func NewOrderService(cfg Config, httpClient *http.Client) *OrderService {
	return &OrderService{c: NewClient("order", cfg, httpClient)}
}

func (s *OrderService) GetQuotation(ctx context.Context, id int64) (*models.Quotation, error) {
	var q models.Quotation
	if err := s.c.GetJSON(ctx, fmt.Sprintf("/Quotation/%d", id), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *OrderService) ListQuotationsByAgency(ctx context.Context, agencyID int64) ([]models.Quotation, error) {
	var qs []models.Quotation
	err := s.c.GetJSON(ctx, fmt.Sprintf("/Quotation/agency/%d", agencyID), &qs)
	return qs, err
}

func (s *OrderService) ListQuotationsByCreator(ctx context.Context, userID int64) ([]models.Quotation, error) {
	var qs []models.Quotation
	err := s.c.GetJSON(ctx, fmt.Sprintf("/Quotation/createby/%d", userID), &qs)
	return qs, err
}

func (s *OrderService) CreateQuotation(ctx context.Context, q *models.Quotation) (*models.Quotation, error) {
	var created models.Quotation
	if err := s.c.SendJSON(ctx, http.MethodPost, "/Quotation", q, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateQuotation resends the full record; the endpoint has no patch semantics.
func (s *OrderService) UpdateQuotation(ctx context.Context, q *models.Quotation) error {
	return s.c.SendJSON(ctx, http.MethodPut, fmt.Sprintf("/Quotation/%d", q.ID), q, nil)
}

func (s *OrderService) DeleteQuotation(ctx context.Context, id int64) error {
	return s.c.Delete(ctx, fmt.Sprintf("/Quotation/%d", id))
}

func (s *OrderService) CreateOrder(ctx context.Context, o *models.CustomerOrder) (*models.CustomerOrder, error) {
	var created models.CustomerOrder
	if err := s.c.SendJSON(ctx, http.MethodPost, "/Order/create", o, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.CustomerOrder, error) {
	var o models.CustomerOrder
	if err := s.c.GetJSON(ctx, fmt.Sprintf("/Order/%d", id), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateOrderStatus sends the status as a single multipart field.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	form := (&Form{}).Add("status", string(status))
	return s.c.SendForm(ctx, http.MethodPut, fmt.Sprintf("/Order/update/%d", id), form, nil)
}

func (s *OrderService) CreateContract(ctx context.Context, c *models.Contract) (*models.Contract, error) {
	var created models.Contract
	if err := s.c.SendJSON(ctx, http.MethodPost, "/Contract", c, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *OrderService) CreatePayment(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	var created models.Payment
	if err := s.c.SendJSON(ctx, http.MethodPost, "/Payment", p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *OrderService) ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var ps []models.Payment
	err := s.c.GetJSON(ctx, fmt.Sprintf("/Payment/order/%d", orderID), &ps)
	return ps, err
}

func (s *OrderService) CreateDelivery(ctx context.Context, d *models.Delivery) (*models.Delivery, error) {
	form := (&Form{}).
		AddInt("orderId", d.OrderID).
		Add("deliveryDate", d.DeliveryDate.Format(time.RFC3339)).
		Add("beforeImageUrl", d.BeforeImageURL).
		Add("note", d.Note)
	var created models.Delivery
	if err := s.c.SendForm(ctx, http.MethodPost, "/Delivery", form, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *OrderService) UpdateDelivery(ctx context.Context, d *models.Delivery) error {
	form := (&Form{}).
		AddInt("orderId", d.OrderID).
		Add("deliveryDate", d.DeliveryDate.Format(time.RFC3339)).
		Add("beforeImageUrl", d.BeforeImageURL).
		Add("afterImageUrl", d.AfterImageURL).
		Add("note", d.Note).
		Add("status", d.Status)
	return s.c.SendForm(ctx, http.MethodPut, fmt.Sprintf("/Delivery/%d", d.ID), form, nil)
}

func (s *OrderService) GetDeliveryByOrder(ctx context.Context, orderID int64) (*models.Delivery, error) {
	var d models.Delivery
	if err := s.c.GetJSON(ctx, fmt.Sprintf("/Delivery/order/%d", orderID), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *OrderService) ListPromotions(ctx context.Context) ([]models.Promotion, error) {
	var ps []models.Promotion
	err := s.c.GetJSON(ctx, "/VehiclePromotion", &ps)
	return ps, err
}

func (s *OrderService) ListPromotionsByVehicle(ctx context.Context, vehicleID int64) ([]models.Promotion, error) {
	var ps []models.Promotion
	err := s.c.GetJSON(ctx, fmt.Sprintf("/VehiclePromotion/vehicle/%d", vehicleID), &ps)
	return ps, err
}

func promotionForm(p *models.Promotion) *Form {
	form := (&Form{}).
		Add("name", p.Name).
		Add("description", p.Description).
		AddInt("vehicleId", p.VehicleID).
		AddInt("discountAmount", p.DiscountAmount).
		Add("startDate", p.StartDate.Format(time.RFC3339)).
		Add("endDate", p.EndDate.Format(time.RFC3339))
	if !p.National() {
		form.AddInt("agencyId", *p.AgencyID)
	}
	return form
}

func (s *OrderService) CreatePromotion(ctx context.Context, p *models.Promotion) (*models.Promotion, error) {
	var created models.Promotion
	if err := s.c.SendForm(ctx, http.MethodPost, "/VehiclePromotion", promotionForm(p), &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *OrderService) UpdatePromotion(ctx context.Context, p *models.Promotion) error {
	return s.c.SendForm(ctx, http.MethodPut, fmt.Sprintf("/VehiclePromotion/%d", p.ID), promotionForm(p), nil)
}

// SetVehicleInstanceStatus marks a physical vehicle as reserved/available.
func (s *OrderService) SetVehicleInstanceStatus(ctx context.Context, id int64, status string) error {
	form := (&Form{}).Add("status", status)
	return s.c.SendForm(ctx, http.MethodPut, fmt.Sprintf("/VehicleInstance/%d/status", id), form, nil)
}
