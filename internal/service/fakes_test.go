package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"dealer-service/internal/backend"
	"dealer-service/internal/models"
	"dealer-service/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

var errUpstream = &backend.StatusError{Service: "order", Method: "PUT", Path: "/x", StatusCode: 500}

// fakeOrderBackend stands in for the order service
type fakeOrderBackend struct {
	mu           sync.Mutex
	quotations   map[int64]*models.Quotation
	orders       map[int64]*models.CustomerOrder
	payments     map[int64][]models.Payment
	deliveries   map[int64]*models.Delivery
	promotions   []models.Promotion
	instances    map[int64]string
	contracts    []models.Contract
	nextID       int64
	listCalls    int
	failNext     map[string]error
	orderUpdates []models.OrderStatus

	// idlessPayments makes CreatePayment answer like an empty 201 body
	idlessPayments      bool
	failListAfterCreate error
}

func newFakeOrderBackend() *fakeOrderBackend {
	return &fakeOrderBackend{
		quotations: make(map[int64]*models.Quotation),
		orders:     make(map[int64]*models.CustomerOrder),
		payments:   make(map[int64][]models.Payment),
		deliveries: make(map[int64]*models.Delivery),
		instances:  make(map[int64]string),
		failNext:   make(map[string]error),
		nextID:     100,
	}
}

func (f *fakeOrderBackend) fail(op string) error {
	if err, ok := f.failNext[op]; ok {
		delete(f.failNext, op)
		return err
	}
	return nil
}

func (f *fakeOrderBackend) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeOrderBackend) GetQuotation(ctx context.Context, id int64) (*models.Quotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotations[id]
	if !ok {
		return nil, fmt.Errorf("quotation %d: %w", id, backend.ErrNotFound)
	}
	cp := *q
	return &cp, nil
}

func (f *fakeOrderBackend) ListQuotationsByAgency(ctx context.Context, agencyID int64) ([]models.Quotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []models.Quotation
	for _, q := range f.quotations {
		if q.AgencyID == agencyID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeOrderBackend) ListQuotationsByCreator(ctx context.Context, userID int64) ([]models.Quotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []models.Quotation
	for _, q := range f.quotations {
		if q.CreatedBy == userID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeOrderBackend) CreateQuotation(ctx context.Context, q *models.Quotation) (*models.Quotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateQuotation"); err != nil {
		return nil, err
	}
	cp := *q
	cp.ID = f.id()
	f.quotations[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeOrderBackend) UpdateQuotation(ctx context.Context, q *models.Quotation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("UpdateQuotation"); err != nil {
		return err
	}
	cp := *q
	f.quotations[q.ID] = &cp
	return nil
}

func (f *fakeOrderBackend) DeleteQuotation(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.quotations, id)
	return nil
}

func (f *fakeOrderBackend) CreateOrder(ctx context.Context, o *models.CustomerOrder) (*models.CustomerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateOrder"); err != nil {
		return nil, err
	}
	cp := *o
	cp.ID = f.id()
	f.orders[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeOrderBackend) GetOrder(ctx context.Context, id int64) (*models.CustomerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, backend.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderBackend) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("UpdateOrderStatus"); err != nil {
		return err
	}
	o, ok := f.orders[id]
	if !ok {
		return backend.ErrNotFound
	}
	o.Status = status
	f.orderUpdates = append(f.orderUpdates, status)
	return nil
}

func (f *fakeOrderBackend) SetVehicleInstanceStatus(ctx context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("SetVehicleInstanceStatus"); err != nil {
		return err
	}
	f.instances[id] = status
	return nil
}

func (f *fakeOrderBackend) CreateContract(ctx context.Context, c *models.Contract) (*models.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateContract"); err != nil {
		return nil, err
	}
	cp := *c
	cp.ID = f.id()
	f.contracts = append(f.contracts, cp)
	return &cp, nil
}

func (f *fakeOrderBackend) CreatePayment(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("createPayment"); err != nil {
		return nil, err
	}
	cp := *p
	cp.ID = f.id()
	f.payments[p.OrderID] = append(f.payments[p.OrderID], cp)
	if f.failListAfterCreate != nil {
		f.failNext["listPayments"] = f.failListAfterCreate
		f.failListAfterCreate = nil
	}
	if f.idlessPayments {
		return &models.Payment{}, nil
	}
	return &cp, nil
}

func (f *fakeOrderBackend) ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("listPayments"); err != nil {
		return nil, err
	}
	return append([]models.Payment(nil), f.payments[orderID]...), nil
}

func (f *fakeOrderBackend) CreateDelivery(ctx context.Context, d *models.Delivery) (*models.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	cp.ID = f.id()
	f.deliveries[d.OrderID] = &cp
	return &cp, nil
}

func (f *fakeOrderBackend) UpdateDelivery(ctx context.Context, d *models.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.deliveries[d.OrderID] = &cp
	return nil
}

func (f *fakeOrderBackend) GetDeliveryByOrder(ctx context.Context, orderID int64) (*models.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[orderID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeOrderBackend) ListPromotions(ctx context.Context) ([]models.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]models.Promotion(nil), f.promotions...), nil
}

func (f *fakeOrderBackend) ListPromotionsByVehicle(ctx context.Context, vehicleID int64) ([]models.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []models.Promotion
	for _, p := range f.promotions {
		if p.VehicleID == vehicleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeOrderBackend) CreatePromotion(ctx context.Context, p *models.Promotion) (*models.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	cp.ID = f.id()
	f.promotions = append(f.promotions, cp)
	return &cp, nil
}

func (f *fakeOrderBackend) UpdatePromotion(ctx context.Context, p *models.Promotion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.promotions {
		if f.promotions[i].ID == p.ID {
			f.promotions[i] = *p
			return nil
		}
	}
	return backend.ErrNotFound
}

// fakeCustomers stands in for the user service
type fakeCustomers map[int64]models.Customer

func (f fakeCustomers) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	c, ok := f[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &c, nil
}

// fakeAgencyBackend stands in for the agency and allocation services
type fakeAgencyBackend struct {
	mu          sync.Mutex
	orders      map[int64]*models.AgencyOrder
	central     []models.InventoryItem
	allocations []models.Allocation
	agencyStock map[int64][]models.InventoryItem
	failAdd     error
}

func newFakeAgencyBackend() *fakeAgencyBackend {
	return &fakeAgencyBackend{
		orders:      make(map[int64]*models.AgencyOrder),
		agencyStock: make(map[int64][]models.InventoryItem),
	}
}

func (f *fakeAgencyBackend) GetAgencyOrder(ctx context.Context, id int64) (*models.AgencyOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeAgencyBackend) ListAgencyOrders(ctx context.Context, agencyID int64) ([]models.AgencyOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AgencyOrder
	for _, o := range f.orders {
		if o.AgencyID == agencyID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeAgencyBackend) UpdateAgencyOrder(ctx context.Context, o *models.AgencyOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.orders[o.ID] = &cp
	return nil
}

func (f *fakeAgencyBackend) ListAgencyInventory(ctx context.Context, agencyID int64) ([]models.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.InventoryItem(nil), f.agencyStock[agencyID]...), nil
}

func (f *fakeAgencyBackend) AddAgencyInventory(ctx context.Context, agencyID, instanceID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd != nil {
		return f.failAdd
	}
	f.agencyStock[agencyID] = append(f.agencyStock[agencyID], models.InventoryItem{VehicleInstanceID: instanceID, AgencyID: agencyID})
	return nil
}

func (f *fakeAgencyBackend) ListCentralInventory(ctx context.Context) ([]models.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allocated := make(map[int64]bool)
	for _, a := range f.allocations {
		allocated[a.VehicleInstanceID] = true
	}
	out := make([]models.InventoryItem, 0, len(f.central))
	for _, it := range f.central {
		if allocated[it.VehicleInstanceID] {
			it.Status = "Allocated"
		}
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeAgencyBackend) AddCentralInventory(ctx context.Context, instanceID int64) (*models.InventoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := models.InventoryItem{ID: int64(len(f.central) + 1), VehicleInstanceID: instanceID, Status: models.VehicleInstanceAvailable}
	f.central = append(f.central, it)
	return &it, nil
}

func (f *fakeAgencyBackend) CreateAllocation(ctx context.Context, a *models.Allocation) (*models.Allocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	cp.ID = int64(len(f.allocations) + 1)
	f.allocations = append(f.allocations, cp)
	return &cp, nil
}

func (f *fakeAgencyBackend) ListAllocations(ctx context.Context, orderID int64) ([]models.Allocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Allocation
	for _, a := range f.allocations {
		if a.AgencyOrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu          sync.Mutex
	transitions []*models.StatusTransitionedEvent
	allocated   []int64
	promotions  []int64
}

func (p *recordingPublisher) PublishTransition(ctx context.Context, e *models.StatusTransitionedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, e)
	return nil
}

func (p *recordingPublisher) PublishVehicleAllocated(ctx context.Context, orderID, agencyID, instanceID, contractID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allocated = append(p.allocated, instanceID)
	return nil
}

func (p *recordingPublisher) PublishPromotionChanged(ctx context.Context, promotionID, vehicleID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.promotions = append(p.promotions, promotionID)
	return nil
}

func newTestRedis(t *testing.T) (*redisclient.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return redisclient.New(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

var testNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		CacheTTL: time.Minute,
		LockTTL:  time.Minute,
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	}
}
