package backend

import (
	"context"
	"fmt"
	"net/http"

	"dealer-service/internal/models"
)

// UserService is the client for the user domain
type UserService struct {
	c *Client
}

// NewUserService creates a user domain client
func NewUserService(cfg Config, httpClient *http.Client) *UserService {
	return &UserService{c: NewClient("user", cfg, httpClient)}
}

func (s *UserService) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	if err := s.c.GetJSON(ctx, fmt.Sprintf("/Customer/%d", id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// AllocationService is the client for allocations and the central warehouse ledger
type AllocationService struct {
	c *Client
}

// NewAllocationService creates an allocation domain client
func NewAllocationService(cfg Config, httpClient *http.Client) *AllocationService {
	return &AllocationService{c: NewClient("allocation", cfg, httpClient)}
}

func (s *AllocationService) CreateAllocation(ctx context.Context, a *models.Allocation) (*models.Allocation, error) {
	form := (&Form{}).
		AddInt("agencyContractId", a.AgencyContractID).
		AddInt("vehicleInstanceId", a.VehicleInstanceID).
		AddInt("agencyOrderId", a.AgencyOrderID)
	var created models.Allocation
	if err := s.c.SendForm(ctx, http.MethodPost, "/Allocation", form, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *AllocationService) ListAllocations(ctx context.Context, agencyOrderID int64) ([]models.Allocation, error) {
	var as []models.Allocation
	err := s.c.GetJSON(ctx, fmt.Sprintf("/Allocation/order/%d", agencyOrderID), &as)
	return as, err
}

func (s *AllocationService) ListCentralInventory(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := s.c.GetJSON(ctx, "/EVInventory", &items)
	return items, err
}

func (s *AllocationService) AddCentralInventory(ctx context.Context, vehicleInstanceID int64) (*models.InventoryItem, error) {
	form := (&Form{}).AddInt("vehicleInstanceId", vehicleInstanceID)
	var created models.InventoryItem
	if err := s.c.SendForm(ctx, http.MethodPost, "/EVInventory", form, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// AgencyService is the client for agency orders and per-agency stock
type AgencyService struct {
	c *Client
}

// NewAgencyService creates an agency domain client
func NewAgencyService(cfg Config, httpClient *http.Client) *AgencyService {
	return &AgencyService{c: NewClient("agency", cfg, httpClient)}
}

func (s *AgencyService) GetAgencyOrder(ctx context.Context, id int64) (*models.AgencyOrder, error) {
	var o models.AgencyOrder
	if err := s.c.GetJSON(ctx, fmt.Sprintf("/AgencyOrder/%d", id), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *AgencyService) ListAgencyOrders(ctx context.Context, agencyID int64) ([]models.AgencyOrder, error) {
	var orders []models.AgencyOrder
	err := s.c.GetJSON(ctx, fmt.Sprintf("/AgencyOrder/agency/%d", agencyID), &orders)
	return orders, err
}

// UpdateAgencyOrder resends the full record with its new status.
func (s *AgencyService) UpdateAgencyOrder(ctx context.Context, o *models.AgencyOrder) error {
	return s.c.SendJSON(ctx, http.MethodPut, fmt.Sprintf("/AgencyOrder/%d", o.ID), o, nil)
}

func (s *AgencyService) AddAgencyInventory(ctx context.Context, agencyID, vehicleInstanceID int64) error {
	body := map[string]int64{"vehicleInstanceId": vehicleInstanceID}
	return s.c.SendJSON(ctx, http.MethodPost, fmt.Sprintf("/AgencyInventory/Agency/%d/inventory", agencyID), body, nil)
}

func (s *AgencyService) ListAgencyInventory(ctx context.Context, agencyID int64) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := s.c.GetJSON(ctx, fmt.Sprintf("/AgencyInventory/Agency/%d/inventory", agencyID), &items)
	return items, err
}
