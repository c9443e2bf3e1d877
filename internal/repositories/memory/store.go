// Package memory provides an in-process order store. Transactions are serialized by one mutex and
// run against a private copy of the data that replaces the committed state only when the callback
// succeeds.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
)

// Store implements repositories.Registry in memory.
type Store struct {
	mu    sync.Mutex
	state *dataset
}

var _ repositories.Registry = (*Store)(nil)

type dataset struct {
	orders      map[string]domain.Order
	products    map[string]domain.Product
	promos      map[string]domain.PromoCode
	assignments map[string]domain.PromoAssignment
	history     []domain.OrderStatusHistory
}

// New returns an empty store.
func New() *Store {
	return &Store{state: &dataset{
		orders:      make(map[string]domain.Order),
		products:    make(map[string]domain.Product),
		promos:      make(map[string]domain.PromoCode),
		assignments: make(map[string]domain.PromoAssignment),
	}}
}

// RunInTx executes fn against a snapshot and commits it when fn returns nil. Calls are not reentrant.
func (s *Store) RunInTx(ctx context.Context, fn repositories.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return repositories.NewError("memory.tx", repositories.ErrorUnavailable, "context done", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &tx{data: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return repositories.NewError("memory.tx", repositories.ErrorUnavailable, "context done before commit", err)
	}
	s.state = working
	return nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// Health always succeeds.
func (s *Store) Health(context.Context) error { return nil }

// PutProduct seeds or replaces a product.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[product.ID] = product
}

// PutPromoCode seeds or replaces a promo code.
func (s *Store) PutPromoCode(promo domain.PromoCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	promo.ExcludedUserIDs = slices.Clone(promo.ExcludedUserIDs)
	s.state.promos[promo.ID] = promo
}

// PutAssignment seeds or replaces a promo assignment.
func (s *Store) PutAssignment(assignment domain.PromoAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.assignments[assignment.ID] = assignment
}

// PutOrder seeds or replaces an order together with its items.
func (s *Store) PutOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.orders[order.ID] = order.Clone()
}

// Product returns the committed product row.
func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.state.products[id]
	return product, ok
}

// PromoCode returns the committed promo code.
func (s *Store) PromoCode(id string) (domain.PromoCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	promo, ok := s.state.promos[id]
	return promo, ok
}

// Assignment returns the committed promo assignment.
func (s *Store) Assignment(id string) (domain.PromoAssignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignment, ok := s.state.assignments[id]
	return assignment, ok
}

func (d *dataset) clone() *dataset {
	out := &dataset{
		orders:      make(map[string]domain.Order, len(d.orders)),
		products:    make(map[string]domain.Product, len(d.products)),
		promos:      make(map[string]domain.PromoCode, len(d.promos)),
		assignments: make(map[string]domain.PromoAssignment, len(d.assignments)),
		history:     slices.Clone(d.history),
	}
	for id, order := range d.orders {
		out.orders[id] = order.Clone()
	}
	for id, product := range d.products {
		out.products[id] = product
	}
	for id, promo := range d.promos {
		promo.ExcludedUserIDs = slices.Clone(promo.ExcludedUserIDs)
		out.promos[id] = promo
	}
	for id, assignment := range d.assignments {
		out.assignments[id] = assignment
	}
	return out
}

type tx struct {
	data *dataset
}

func (t *tx) Orders() repositories.OrderGateway         { return orderGateway{data: t.data} }
func (t *tx) Products() repositories.ProductGateway     { return productGateway{data: t.data} }
func (t *tx) Promotions() repositories.PromoCodeGateway { return promoGateway{data: t.data} }
func (t *tx) History() repositories.HistorySink         { return historySink{data: t.data} }

type orderGateway struct {
	data *dataset
}

func (g orderGateway) Insert(_ context.Context, order domain.Order) error {
	if _, exists := g.data.orders[order.ID]; exists {
		return repositories.NewError("memory.orders.insert", repositories.ErrorConflict, "order "+order.ID+" already exists", nil)
	}
	g.data.orders[order.ID] = order.Clone()
	return nil
}

func (g orderGateway) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := g.data.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("memory.orders.find", "order %s not found", orderID)
	}
	return order.Clone(), nil
}

func (g orderGateway) Update(_ context.Context, order domain.Order) error {
	current, ok := g.data.orders[order.ID]
	if !ok {
		return repositories.NotFound("memory.orders.update", "order %s not found", order.ID)
	}
	updated := order.Clone()
	updated.Items = current.Items
	g.data.orders[order.ID] = updated
	return nil
}

func (g orderGateway) InsertItem(_ context.Context, item domain.OrderItem) error {
	order, ok := g.data.orders[item.OrderID]
	if !ok {
		return repositories.NotFound("memory.orders.insertItem", "order %s not found", item.OrderID)
	}
	if _, exists := order.ItemByID(item.ID); exists {
		return repositories.NewError("memory.orders.insertItem", repositories.ErrorConflict, "item "+item.ID+" already exists", nil)
	}
	order.Items = append(slices.Clone(order.Items), item.Clone())
	g.data.orders[order.ID] = order
	return nil
}

func (g orderGateway) UpdateItem(_ context.Context, item domain.OrderItem) error {
	order, ok := g.data.orders[item.OrderID]
	if !ok {
		return repositories.NotFound("memory.orders.updateItem", "order %s not found", item.OrderID)
	}
	idx := slices.IndexFunc(order.Items, func(existing domain.OrderItem) bool { return existing.ID == item.ID })
	if idx < 0 {
		return repositories.NotFound("memory.orders.updateItem", "item %s not found", item.ID)
	}
	order.Items = slices.Clone(order.Items)
	order.Items[idx] = item.Clone()
	g.data.orders[order.ID] = order
	return nil
}

func (g orderGateway) DeleteItem(_ context.Context, orderID, itemID string) error {
	order, ok := g.data.orders[orderID]
	if !ok {
		return repositories.NotFound("memory.orders.deleteItem", "order %s not found", orderID)
	}
	idx := slices.IndexFunc(order.Items, func(existing domain.OrderItem) bool { return existing.ID == itemID })
	if idx < 0 {
		return repositories.NotFound("memory.orders.deleteItem", "item %s not found", itemID)
	}
	order.Items = slices.Delete(slices.Clone(order.Items), idx, idx+1)
	g.data.orders[orderID] = order
	return nil
}

type productGateway struct {
	data *dataset
}

func (g productGateway) FindByID(_ context.Context, productID string) (domain.Product, error) {
	product, ok := g.data.products[productID]
	if !ok {
		return domain.Product{}, repositories.NotFound("memory.products.find", "product %s not found", productID)
	}
	return product, nil
}

func (g productGateway) FindMany(_ context.Context, productIDs []string) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		if product, ok := g.data.products[id]; ok {
			products = append(products, product)
		}
	}
	return products, nil
}

func (g productGateway) DecrementStock(_ context.Context, productID string, amount int) error {
	product, ok := g.data.products[productID]
	if !ok {
		return repositories.NotFound("memory.products.decrement", "product %s not found", productID)
	}
	if product.Stock < amount {
		return repositories.NewError("memory.products.decrement", repositories.ErrorInsufficientStock, "insufficient stock for "+productID, nil)
	}
	product.Stock -= amount
	g.data.products[productID] = product
	return nil
}

func (g productGateway) IncrementStock(_ context.Context, productID string, amount int) error {
	product, ok := g.data.products[productID]
	if !ok {
		return repositories.NotFound("memory.products.increment", "product %s not found", productID)
	}
	product.Stock += amount
	g.data.products[productID] = product
	return nil
}

type promoGateway struct {
	data *dataset
}

func (g promoGateway) FindByCode(_ context.Context, code string) (domain.PromoCode, error) {
	for _, promo := range g.data.promos {
		if strings.EqualFold(promo.Code, code) {
			return promo, nil
		}
	}
	return domain.PromoCode{}, repositories.NotFound("memory.promos.findByCode", "promo code %s not found", code)
}

func (g promoGateway) FindByID(_ context.Context, promoID string) (domain.PromoCode, error) {
	promo, ok := g.data.promos[promoID]
	if !ok {
		return domain.PromoCode{}, repositories.NotFound("memory.promos.find", "promo %s not found", promoID)
	}
	return promo, nil
}

func (g promoGateway) IncrementUsage(_ context.Context, promoID string) error {
	promo, ok := g.data.promos[promoID]
	if !ok {
		return repositories.NotFound("memory.promos.incrementUsage", "promo %s not found", promoID)
	}
	promo.UsedCount++
	g.data.promos[promoID] = promo
	return nil
}

func (g promoGateway) FindUserAssignment(_ context.Context, userID, promoID string) (domain.PromoAssignment, error) {
	for _, assignment := range g.data.assignments {
		if assignment.UserID == userID && assignment.PromoCodeID == promoID {
			return assignment, nil
		}
	}
	return domain.PromoAssignment{}, repositories.NotFound("memory.promos.findAssignment", "no assignment of %s to %s", promoID, userID)
}

func (g promoGateway) MarkAssignmentUsed(_ context.Context, assignmentID string, usedAt time.Time) error {
	assignment, ok := g.data.assignments[assignmentID]
	if !ok {
		return repositories.NotFound("memory.promos.markUsed", "assignment %s not found", assignmentID)
	}
	if assignment.Used {
		return nil
	}
	assignment.Used = true
	assignment.UsedAt = &usedAt
	g.data.assignments[assignmentID] = assignment
	return nil
}

type historySink struct {
	data *dataset
}

func (h historySink) Append(_ context.Context, entry domain.OrderStatusHistory) error {
	h.data.history = append(h.data.history, entry)
	return nil
}

func (h historySink) ListByOrder(_ context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	var entries []domain.OrderStatusHistory
	for _, entry := range h.data.history {
		if entry.OrderID == orderID {
			entries = append(entries, entry)
		}
	}
	slices.SortStableFunc(entries, func(a, b domain.OrderStatusHistory) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return entries, nil
}
