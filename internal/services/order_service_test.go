package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	drivermysql "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories/memory"
)

var (
	adminActor    = domain.Actor{ID: "admin_1", Role: domain.ActorRoleAdmin}
	customerActor = domain.Actor{ID: "user_1", Role: domain.ActorRoleCustomer}
)

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

type captureLogs struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureLogs) log(_ context.Context, event string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, fmt.Sprintf("%s %v", event, fields))
}

type orderServiceHarness struct {
	store   *memory.Store
	svc     OrderService
	events  *captureOrderEvents
	logs    *captureLogs
	metrics *recordingMetrics
}

func newOrderServiceHarness(t *testing.T) *orderServiceHarness {
	t.Helper()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	var (
		mu  sync.Mutex
		seq int
	)
	h := &orderServiceHarness{
		store:   memory.New(),
		events:  &captureOrderEvents{},
		logs:    &captureLogs{},
		metrics: &recordingMetrics{},
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Store:   h.store,
		Events:  h.events,
		Metrics: h.metrics,
		Clock:   func() time.Time { return now },
		IDGenerator: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("%04d", seq)
		},
		Logger: h.logs.log,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	h.svc = svc
	return h
}

func (h *orderServiceHarness) seedOrder(status domain.OrderStatus, items ...domain.OrderItem) domain.Order {
	order := domain.Order{
		ID:            "ord_1",
		Status:        status,
		CustomerID:    customerActor.ID,
		PaymentMethod: domain.PaymentMethodPending,
	}
	for _, item := range items {
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	h.store.PutOrder(order)
	return order
}

func (h *orderServiceHarness) history(t *testing.T, orderID string) []domain.OrderStatusHistory {
	t.Helper()
	entries, err := h.svc.ListHistory(context.Background(), orderID, adminActor)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	return entries
}

func statusPtr(status domain.OrderStatus) *domain.OrderStatus { return &status }

func intPtr(v int) *int { return &v }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func TestOrderService_AcceptAdminPendingOrder(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.store.PutProduct(domain.Product{ID: "p1", Name: "Rug", Price: dec("120"), Stock: 4, UseStock: true, NegotiablePrice: true})
	h.seedOrder(domain.OrderStatusAdminPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", ProductName: "Rug", Quantity: 2, Price: dec("100")})

	view, err := h.svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID:    "ord_1",
		Actor:      adminActor,
		Status:     statusPtr(domain.OrderStatusAccepted),
		StatusNote: "agreed by phone",
	})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if view.Order.Status != domain.OrderStatusAccepted {
		t.Fatalf("expected ACCEPTED, got %s", view.Order.Status)
	}
	if view.Order.PaymentMethod != domain.PaymentMethodCash {
		t.Fatalf("expected payment method CASH, got %s", view.Order.PaymentMethod)
	}
	if !view.Totals.Total.Equal(dec("200")) {
		t.Fatalf("expected total 200, got %s", view.Totals.Total)
	}

	rug, _ := h.store.Product("p1")
	if rug.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", rug.Stock)
	}

	entries := h.history(t, "ord_1")
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.PreviousStatus != domain.OrderStatusAdminPending || entry.NewStatus != domain.OrderStatusAccepted || entry.ActorID != adminActor.ID || entry.Note != "agreed by phone" {
		t.Fatalf("unexpected history entry %+v", entry)
	}

	if len(h.events.events) != 1 || h.events.events[0].Type != orderEventStatusChanged || h.events.events[0].PreviousStatus != string(domain.OrderStatusAdminPending) {
		t.Fatalf("unexpected events %+v", h.events.events)
	}
	if len(h.metrics.transitions) != 1 || h.metrics.transitions[0] != "ADMIN_PENDING>ACCEPTED:ok" {
		t.Fatalf("unexpected transition metrics %+v", h.metrics.transitions)
	}
}

func TestOrderService_ConcurrentAcceptanceOfLastUnit(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.store.PutProduct(domain.Product{ID: "p1", Name: "Lamp", Price: dec("30"), Stock: 1, UseStock: true})
	for _, id := range []string{"ord_a", "ord_b"} {
		h.store.PutOrder(domain.Order{
			ID:         id,
			Status:     domain.OrderStatusPending,
			CustomerID: customerActor.ID,
			Items:      []domain.OrderItem{{ID: "itm_" + id, OrderID: id, ProductID: "p1", ProductName: "Lamp", Quantity: 1, Price: dec("30")}},
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"ord_a", "ord_b"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.svc.UpdateOrder(context.Background(), UpdateOrderCommand{
				OrderID: id,
				Actor:   adminActor,
				Status:  statusPtr(domain.OrderStatusAccepted),
			})
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var shortage *StockShortageError
		if !errors.As(err, &shortage) || !errors.Is(err, ErrOrderConflict) {
			t.Fatalf("expected stock shortage conflict, got %v", err)
		}
		if shortage.Available != 0 || shortage.Required != 1 || shortage.ProductName != "Lamp" {
			t.Fatalf("unexpected shortage detail %+v", shortage)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one acceptance, got %d", succeeded)
	}
	lamp, _ := h.store.Product("p1")
	if lamp.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", lamp.Stock)
	}
}

func TestOrderService_ItemChangesBlockDirectAcceptance(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.store.PutProduct(domain.Product{ID: "p1", Name: "Kettle", Price: dec("50"), Stock: 10, UseStock: true})
	h.seedOrder(domain.OrderStatusPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", ProductName: "Kettle", Quantity: 2, Price: dec("50")})

	_, err := h.svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID: "ord_1",
		Actor:   adminActor,
		Status:  statusPtr(domain.OrderStatusAccepted),
		Items:   []ItemUpdate{{ItemID: "itm_a", Price: decPtr("45")}},
	})
	var transition *TransitionError
	if !errors.As(err, &transition) || !errors.Is(err, ErrOrderIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if transition.From != domain.OrderStatusPending || transition.To != domain.OrderStatusAccepted || transition.Role != domain.ActorRoleAdmin {
		t.Fatalf("unexpected transition context %+v", transition)
	}

	view, err := h.svc.GetOrder(context.Background(), "ord_1", adminActor)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if view.Order.ItemsEdited || !view.Order.Items[0].Price.Equal(dec("50")) {
		t.Fatalf("rejected request must not change the order, got %+v", view.Order)
	}
	if kettle, _ := h.store.Product("p1"); kettle.Stock != 10 {
		t.Fatalf("expected stock untouched, got %d", kettle.Stock)
	}
	if len(h.history(t, "ord_1")) != 0 {
		t.Fatalf("rejected request must not write history")
	}
}

func TestOrderService_QuoteRoundTrip(t *testing.T) {
	h := newOrderServiceHarness(t)
	ctx := context.Background()
	h.store.PutProduct(domain.Product{ID: "p1", Name: "Kettle", Price: dec("50"), Stock: 10, UseStock: true})
	h.store.PutProduct(domain.Product{ID: "p3", Name: "Mug", Price: dec("19.99"), Stock: 10, UseStock: true})
	h.seedOrder(domain.OrderStatusPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", ProductName: "Kettle", Quantity: 2, Price: dec("50")})

	quoted, err := h.svc.UpdateOrder(ctx, UpdateOrderCommand{
		OrderID:  "ord_1",
		Actor:    adminActor,
		Status:   statusPtr(domain.OrderStatusCustomerPending),
		Items:    []ItemUpdate{{ItemID: "itm_a", Price: decPtr("45"), Note: "bulk price"}},
		NewItems: []NewItem{{ProductID: "p3", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !quoted.Order.ItemsEdited || len(quoted.Order.Items) != 2 {
		t.Fatalf("unexpected quoted order %+v", quoted.Order)
	}
	added, ok := quoted.Order.ItemByProductID("p3")
	if !ok || !added.AdminAdded || added.PriceEdited {
		t.Fatalf("expected admin added item at catalog price, got %+v", added)
	}
	if !quoted.Totals.Subtotal.Equal(dec("109.99")) {
		t.Fatalf("expected subtotal 109.99, got %s", quoted.Totals.Subtotal)
	}

	approved, err := h.svc.UpdateOrder(ctx, UpdateOrderCommand{
		OrderID: "ord_1",
		Actor:   customerActor,
		Status:  statusPtr(domain.OrderStatusPending),
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Order.ItemsEdited {
		t.Fatalf("customer approval must clear the edited flag")
	}
	kettle, _ := approved.Order.ItemByID("itm_a")
	if entry, ok := kettle.OriginalValues.Entry(domain.AuditFieldPrice); !ok || !entry.PriorValue.Equal(dec("50")) || entry.Note != "bulk price" {
		t.Fatalf("audit trail must survive approval, got %+v", kettle.OriginalValues)
	}

	if _, err := h.svc.UpdateOrder(ctx, UpdateOrderCommand{
		OrderID: "ord_1",
		Actor:   adminActor,
		Status:  statusPtr(domain.OrderStatusAccepted),
	}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	entries := h.history(t, "ord_1")
	if len(entries) != 3 {
		t.Fatalf("expected three history entries, got %d", len(entries))
	}
	if stock, _ := h.store.Product("p3"); stock.Stock != 9 {
		t.Fatalf("expected mug stock 9, got %d", stock.Stock)
	}
}

func TestOrderService_MissingItemsAreSkipped(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.seedOrder(domain.OrderStatusPending,
		domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")},
		domain.OrderItem{ID: "itm_b", ProductID: "p2", Quantity: 1, Price: dec("5")},
	)

	view, err := h.svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID:        "ord_1",
		Actor:          customerActor,
		Items:          []ItemUpdate{{ItemID: "itm_missing", Quantity: intPtr(3)}, {ItemID: "itm_a", Quantity: intPtr(1)}},
		RemovedItemIDs: []string{"itm_gone", "itm_b"},
	})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if len(view.Order.Items) != 1 || view.Order.Items[0].Quantity != 1 {
		t.Fatalf("expected remaining item with quantity 1, got %+v", view.Order.Items)
	}
	if len(h.logs.entries) != 2 {
		t.Fatalf("expected two skip warnings, got %v", h.logs.entries)
	}
	for _, entry := range h.logs.entries {
		if !strings.HasPrefix(entry, "order.item.skipped") {
			t.Fatalf("unexpected log %q", entry)
		}
	}
	if len(h.history(t, "ord_1")) != 0 {
		t.Fatalf("item edits without a status change must not write history")
	}
}

func TestOrderService_SameStatusWritesNoHistory(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.seedOrder(domain.OrderStatusPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")})

	view, err := h.svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID: "ord_1",
		Actor:   adminActor,
		Status:  statusPtr(domain.OrderStatusPending),
	})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if view.Order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected status %s", view.Order.Status)
	}
	if len(h.history(t, "ord_1")) != 0 || len(h.events.events) != 0 {
		t.Fatalf("no-op status change must not write history or events")
	}
}

func TestOrderService_RemovingLastItemIsRejected(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.seedOrder(domain.OrderStatusPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")})

	_, err := h.svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID:        "ord_1",
		Actor:          adminActor,
		RemovedItemIDs: []string{"itm_a"},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderService_UpdateGuards(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.OrderStatus
		cmd     UpdateOrderCommand
		wantErr error
	}{
		{
			name:    "customer price edit",
			status:  domain.OrderStatusPending,
			cmd:     UpdateOrderCommand{Actor: customerActor, Items: []ItemUpdate{{ItemID: "itm_a", Price: decPtr("1")}}},
			wantErr: ErrOrderForbidden,
		},
		{
			name:    "customer adds item",
			status:  domain.OrderStatusPending,
			cmd:     UpdateOrderCommand{Actor: customerActor, NewItems: []NewItem{{ProductID: "p1", Quantity: 1}}},
			wantErr: ErrOrderForbidden,
		},
		{
			name:    "generic cancel of accepted order",
			status:  domain.OrderStatusAccepted,
			cmd:     UpdateOrderCommand{Actor: adminActor, Status: statusPtr(domain.OrderStatusCancelled)},
			wantErr: ErrOrderIllegalTransition,
		},
		{
			name:    "items edited outside editable status",
			status:  domain.OrderStatusCustomerPending,
			cmd:     UpdateOrderCommand{Actor: customerActor, Items: []ItemUpdate{{ItemID: "itm_a", Quantity: intPtr(1)}}},
			wantErr: ErrOrderIllegalTransition,
		},
		{
			name:    "admin discount above subtotal",
			status:  domain.OrderStatusPending,
			cmd:     UpdateOrderCommand{Actor: adminActor, AdminDiscount: decPtr("100.01")},
			wantErr: ErrOrderInvalidInput,
		},
		{
			name:    "admin discount on accepted order",
			status:  domain.OrderStatusAccepted,
			cmd:     UpdateOrderCommand{Actor: adminActor, AdminDiscount: decPtr("5")},
			wantErr: ErrOrderConflict,
		},
		{
			name:    "sub-cent item price",
			status:  domain.OrderStatusPending,
			cmd:     UpdateOrderCommand{Actor: adminActor, Items: []ItemUpdate{{ItemID: "itm_a", Price: decPtr("19.999")}}},
			wantErr: ErrOrderInvalidInput,
		},
		{
			name:    "sub-cent new item price",
			status:  domain.OrderStatusPending,
			cmd:     UpdateOrderCommand{Actor: adminActor, NewItems: []NewItem{{ProductID: "p1", Quantity: 1, Price: decPtr("0.005")}}},
			wantErr: ErrOrderInvalidInput,
		},
		{
			name:    "empty request",
			status:  domain.OrderStatusPending,
			cmd:     UpdateOrderCommand{Actor: adminActor},
			wantErr: ErrOrderInvalidInput,
		},
		{
			name:    "unknown status",
			status:  domain.OrderStatusPending,
			cmd:     UpdateOrderCommand{Actor: adminActor, Status: statusPtr("SHIPPED")},
			wantErr: ErrOrderInvalidInput,
		},
		{
			name:    "other customer's order",
			status:  domain.OrderStatusPending,
			cmd:     UpdateOrderCommand{Actor: domain.Actor{ID: "user_2", Role: domain.ActorRoleCustomer}, Items: []ItemUpdate{{ItemID: "itm_a", Quantity: intPtr(1)}}},
			wantErr: ErrOrderNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newOrderServiceHarness(t)
			h.seedOrder(tc.status, domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")})
			tc.cmd.OrderID = "ord_1"

			_, err := h.svc.UpdateOrder(context.Background(), tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestOrderService_AdminDiscount(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.seedOrder(domain.OrderStatusPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")})
	reason := "<b>loyal</b> customer"

	view, err := h.svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID:             "ord_1",
		Actor:               adminActor,
		AdminDiscount:       decPtr("15"),
		AdminDiscountReason: &reason,
	})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if view.Order.AdminDiscount == nil || !view.Order.AdminDiscount.Equal(dec("15")) {
		t.Fatalf("expected admin discount 15, got %v", view.Order.AdminDiscount)
	}
	if !view.Totals.Total.Equal(dec("85")) {
		t.Fatalf("expected total 85, got %s", view.Totals.Total)
	}

	cleared, err := h.svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID:       "ord_1",
		Actor:         adminActor,
		AdminDiscount: decPtr("0"),
	})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if cleared.Order.AdminDiscount != nil || cleared.Order.AdminDiscountReason != nil {
		t.Fatalf("zero discount must clear, got %+v", cleared.Order)
	}
}

func TestOrderService_CancelAcceptedOrder(t *testing.T) {
	tests := []struct {
		name      string
		restore   *bool
		wantStock int
	}{
		{name: "restore stock", restore: func() *bool { v := true; return &v }(), wantStock: 5},
		{name: "keep stock", restore: func() *bool { v := false; return &v }(), wantStock: 3},
		{name: "default keeps stock", wantStock: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newOrderServiceHarness(t)
			h.store.PutProduct(domain.Product{ID: "p1", Name: "Kettle", Stock: 3, UseStock: true})
			h.seedOrder(domain.OrderStatusAccepted, domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")})

			view, err := h.svc.CancelAcceptedOrder(context.Background(), CancelOrderCommand{
				OrderID:      "ord_1",
				Actor:        adminActor,
				RestoreStock: tc.restore,
				Note:         "customer called",
			})
			if err != nil {
				t.Fatalf("CancelAcceptedOrder: %v", err)
			}
			if view.Order.Status != domain.OrderStatusCancelled {
				t.Fatalf("expected CANCELLED, got %s", view.Order.Status)
			}
			if kettle, _ := h.store.Product("p1"); kettle.Stock != tc.wantStock {
				t.Fatalf("expected stock %d, got %d", tc.wantStock, kettle.Stock)
			}
			entries := h.history(t, "ord_1")
			if len(entries) != 1 || entries[0].PreviousStatus != domain.OrderStatusAccepted || entries[0].Note != "customer called" {
				t.Fatalf("unexpected history %+v", entries)
			}
		})
	}
}

func TestOrderService_CancelRequiresAcceptedAdmin(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.seedOrder(domain.OrderStatusPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")})

	if _, err := h.svc.CancelAcceptedOrder(context.Background(), CancelOrderCommand{OrderID: "ord_1", Actor: adminActor}); !errors.Is(err, ErrOrderInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if _, err := h.svc.CancelAcceptedOrder(context.Background(), CancelOrderCommand{OrderID: "ord_1", Actor: customerActor}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestOrderService_PlaceOrder(t *testing.T) {
	h := newOrderServiceHarness(t)
	compareAt := dec("60")
	h.store.PutProduct(domain.Product{ID: "p1", Name: "Kettle", Price: dec("50"), CompareAtPrice: &compareAt, Stock: 5, UseStock: true})
	h.store.PutProduct(domain.Product{ID: "p2", Name: "Rug", Price: dec("0"), HidePrice: true})

	view, err := h.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Actor:           customerActor,
		Lines:           []domain.CartLine{{ProductID: "p1", Quantity: 1}, {ProductID: "p2", Quantity: 1}, {ProductID: "p1", Quantity: 1}},
		RecipientName:   "Sara",
		Phone:           "+100",
		ShippingAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	order := view.Order
	if order.Status != domain.OrderStatusAdminPending {
		t.Fatalf("hidden price must route to ADMIN_PENDING, got %s", order.Status)
	}
	if len(order.Items) != 2 {
		t.Fatalf("duplicate lines must merge, got %d items", len(order.Items))
	}
	kettle, _ := order.ItemByProductID("p1")
	if kettle.Quantity != 2 || !kettle.Price.Equal(dec("50")) {
		t.Fatalf("unexpected kettle line %+v", kettle)
	}
	if !order.Savings.Equal(dec("20")) {
		t.Fatalf("expected savings 20, got %s", order.Savings)
	}
	if stock, _ := h.store.Product("p1"); stock.Stock != 5 {
		t.Fatalf("checkout must not decrement stock, got %d", stock.Stock)
	}

	entries, err := h.svc.ListHistory(context.Background(), order.ID, customerActor)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 1 || entries[0].PreviousStatus != "" || entries[0].NewStatus != domain.OrderStatusAdminPending {
		t.Fatalf("unexpected initial history %+v", entries)
	}
	if len(h.events.events) != 1 || h.events.events[0].Type != orderEventCreated {
		t.Fatalf("unexpected events %+v", h.events.events)
	}
}

func TestOrderService_PlaceOrderRejectsShortageAndArchived(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.store.PutProduct(domain.Product{ID: "p1", Name: "Kettle", Price: dec("50"), Stock: 1, UseStock: true})
	h.store.PutProduct(domain.Product{ID: "p2", Name: "Old mug", Price: dec("5"), IsArchived: true})
	base := PlaceOrderCommand{Actor: customerActor, RecipientName: "Sara", Phone: "+100", ShippingAddress: "1 Main St"}

	shortage := base
	shortage.Lines = []domain.CartLine{{ProductID: "p1", Quantity: 2}}
	var stockErr *StockShortageError
	if _, err := h.svc.PlaceOrder(context.Background(), shortage); !errors.As(err, &stockErr) {
		t.Fatalf("expected stock shortage, got %v", err)
	}

	archived := base
	archived.Lines = []domain.CartLine{{ProductID: "p2", Quantity: 1}}
	var archivedErr *ArchivedProductsError
	if _, err := h.svc.PlaceOrder(context.Background(), archived); !errors.As(err, &archivedErr) {
		t.Fatalf("expected archived products, got %v", err)
	}

	empty := base
	if _, err := h.svc.PlaceOrder(context.Background(), empty); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for empty cart, got %v", err)
	}
}

func TestOrderService_PromoLifecycle(t *testing.T) {
	h := newOrderServiceHarness(t)
	ctx := context.Background()
	h.store.PutProduct(domain.Product{ID: "p1", Name: "Kettle", Price: dec("50"), Stock: 5, UseStock: true})
	h.store.PutPromoCode(domain.PromoCode{ID: "promo_1", Code: "SPRING", DiscountType: domain.DiscountTypePercentage, DiscountPercent: dec("10"), IsActive: true})
	h.seedOrder(domain.OrderStatusPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")})

	applied, err := h.svc.ApplyPromoCode(ctx, ApplyPromoCodeCommand{OrderID: "ord_1", Actor: customerActor, Code: "spring"})
	if err != nil {
		t.Fatalf("ApplyPromoCode: %v", err)
	}
	if !applied.Totals.PromoEstimated || !applied.Totals.PromoDiscount.Equal(dec("10")) {
		t.Fatalf("expected estimated discount 10, got %+v", applied.Totals)
	}
	if applied.Order.PromoDiscount != nil {
		t.Fatalf("discount must not be materialized before acceptance")
	}

	if _, err := h.svc.ApplyPromoCode(ctx, ApplyPromoCodeCommand{OrderID: "ord_1", Actor: customerActor, Code: "spring"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected promo already applied conflict, got %v", err)
	}

	accepted, err := h.svc.UpdateOrder(ctx, UpdateOrderCommand{OrderID: "ord_1", Actor: adminActor, Status: statusPtr(domain.OrderStatusAccepted)})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Order.PromoDiscount == nil || !accepted.Order.PromoDiscount.Equal(applied.Totals.PromoDiscount) {
		t.Fatalf("materialized discount %v differs from estimate %s", accepted.Order.PromoDiscount, applied.Totals.PromoDiscount)
	}
	if accepted.Totals.PromoEstimated || !accepted.Totals.Total.Equal(dec("90")) {
		t.Fatalf("unexpected accepted totals %+v", accepted.Totals)
	}
	entries := h.history(t, "ord_1")
	if len(entries) != 1 || !strings.Contains(entries[0].Note, "SPRING") {
		t.Fatalf("expected system note in history, got %+v", entries)
	}
	if promo, _ := h.store.PromoCode("promo_1"); promo.UsedCount != 1 {
		t.Fatalf("expected promo usage 1, got %d", promo.UsedCount)
	}

	if _, err := h.svc.RemovePromoCode(ctx, RemovePromoCodeCommand{OrderID: "ord_1", Actor: adminActor}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict removing promo from accepted order, got %v", err)
	}
}

func TestOrderService_RemovePromoCode(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.store.PutPromoCode(domain.PromoCode{ID: "promo_1", Code: "SPRING", DiscountType: domain.DiscountTypeFlat, DiscountAmount: dec("5"), IsActive: true})
	h.seedOrder(domain.OrderStatusCustomerPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")})

	if _, err := h.svc.ApplyPromoCode(context.Background(), ApplyPromoCodeCommand{OrderID: "ord_1", Actor: customerActor, Code: "SPRING"}); err != nil {
		t.Fatalf("ApplyPromoCode: %v", err)
	}
	view, err := h.svc.RemovePromoCode(context.Background(), RemovePromoCodeCommand{OrderID: "ord_1", Actor: customerActor})
	if err != nil {
		t.Fatalf("RemovePromoCode: %v", err)
	}
	if view.Order.PromoCodeID != nil || !view.Totals.PromoDiscount.IsZero() {
		t.Fatalf("expected promo detached, got %+v", view)
	}
}

func TestOrderService_EventFailureIsLogged(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.events.err = errors.New("broker down")
	h.seedOrder(domain.OrderStatusPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")})

	if _, err := h.svc.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: "ord_1", Actor: adminActor, Status: statusPtr(domain.OrderStatusRejected)}); err != nil {
		t.Fatalf("publish failures must not fail the update: %v", err)
	}
	if len(h.logs.entries) != 1 || !strings.HasPrefix(h.logs.entries[0], "order.event.publish.failed") {
		t.Fatalf("expected publish failure log, got %v", h.logs.entries)
	}
}

func TestOrderService_StoreFailureMapsToUnavailable(t *testing.T) {
	svc, err := NewOrderService(OrderServiceDeps{Store: failingStore{}})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	_, err = svc.GetOrder(context.Background(), "ord_1", adminActor)
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

type failingStore struct{}

func (failingStore) RunInTx(context.Context, repositories.TxFunc) error {
	return repositories.NewError("test.tx", repositories.ErrorUnavailable, "down", nil)
}

func TestOrderService_ItemPriceWithTrailingZerosIsAccepted(t *testing.T) {
	h := newOrderServiceHarness(t)
	h.seedOrder(domain.OrderStatusPending, domain.OrderItem{ID: "itm_a", ProductID: "p1", Quantity: 2, Price: dec("50")})

	view, err := h.svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID: "ord_1",
		Actor:   adminActor,
		Items:   []ItemUpdate{{ItemID: "itm_a", Price: decPtr("45.500")}},
	})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if !view.Order.Items[0].Price.Equal(dec("45.5")) {
		t.Fatalf("expected price 45.5, got %s", view.Order.Items[0].Price)
	}
}

func TestMapRepositoryErrorKeepsDriverCause(t *testing.T) {
	deadlock := &drivermysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	err := mapRepositoryError(repositories.NewError("products.findMany", repositories.ErrorConflict, "Deadlock found", deadlock))

	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var mysqlErr *drivermysql.MySQLError
	if !errors.As(err, &mysqlErr) || mysqlErr.Number != 1213 {
		t.Fatalf("expected driver error in chain, got %v", err)
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected repository classification in chain, got %v", err)
	}
}

// replayingStore runs every unit of work twice, the way a store retrying a deadlock victim does.
type replayingStore struct {
	*memory.Store
}

func (s replayingStore) RunInTx(ctx context.Context, fn repositories.TxFunc) error {
	_ = s.Store.RunInTx(ctx, fn)
	return s.Store.RunInTx(ctx, fn)
}

func TestOrderService_RejectedTransitionCountedOncePerRequest(t *testing.T) {
	store := memory.New()
	store.PutOrder(domain.Order{
		ID:         "ord_1",
		Status:     domain.OrderStatusAccepted,
		CustomerID: customerActor.ID,
		Items:      []domain.OrderItem{{ID: "itm_a", OrderID: "ord_1", ProductID: "p1", Quantity: 1, Price: dec("10")}},
	})
	metrics := &recordingMetrics{}
	svc, err := NewOrderService(OrderServiceDeps{Store: replayingStore{store}, Metrics: metrics})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	_, err = svc.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID: "ord_1",
		Actor:   adminActor,
		Status:  statusPtr(domain.OrderStatusPending),
	})
	if !errors.Is(err, ErrOrderIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if len(metrics.transitions) != 1 || metrics.transitions[0] != "ACCEPTED>PENDING:rejected" {
		t.Fatalf("expected one rejected transition, got %v", metrics.transitions)
	}
}
