// Package firestore stores orders in Cloud Firestore. Line items are embedded in the order document.
//
// Firestore transactions require every read to happen before the first write, while the order
// engine interleaves reads and writes. Each unit of work therefore reads through a per-attempt
// cache and buffers its writes, flushing them in one batch when the callback returns.
package firestore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	pfirestore "github.com/Abdullah97825/Matjary-sub000/internal/platform/firestore"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
)

var (
	orders      = pfirestore.NewCollection[orderDocument](ordersCollection)
	products    = pfirestore.NewCollection[productDocument](productsCollection)
	promoCodes  = pfirestore.NewCollection[promoCodeDocument](promoCodesCollection)
	assignments = pfirestore.NewCollection[assignmentDocument](promoAssignmentsCollection)
	history     = pfirestore.NewCollection[historyDocument](orderHistoryCollection)
)

// Store implements repositories.Registry on Firestore.
type Store struct {
	provider *pfirestore.Provider
	txOpts   []pfirestore.TxOption
}

var _ repositories.Registry = (*Store)(nil)

// New constructs a Store. Transaction options apply to every unit of work.
func New(provider *pfirestore.Provider, opts ...pfirestore.TxOption) (*Store, error) {
	if provider == nil {
		return nil, errors.New("firestore store requires provider")
	}
	return &Store{provider: provider, txOpts: opts}, nil
}

// RunInTx executes fn in a Firestore transaction. Firestore may rerun fn on contention; each
// attempt starts from a fresh cache.
func (s *Store) RunInTx(ctx context.Context, fn repositories.TxFunc) error {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("firestore.tx", err)
	}
	return pfirestore.RunTransaction(ctx, client, func(ctx context.Context, ftx *firestore.Transaction) error {
		u := newUnit(client, ftx)
		if err := fn(ctx, u); err != nil {
			return err
		}
		return u.flush()
	}, s.txOpts...)
}

// Close releases the Firestore client.
func (s *Store) Close(ctx context.Context) error {
	return s.provider.Close(ctx)
}

// Health reads one order document to prove the backend answers.
func (s *Store) Health(ctx context.Context) error {
	return s.provider.Ping(ctx, ordersCollection)
}

// PutProduct seeds or replaces a product outside any unit of work.
func (s *Store) PutProduct(ctx context.Context, product domain.Product) error {
	return s.set(ctx, productsCollection, product.ID, newProductDocument(product))
}

// PutPromoCode seeds or replaces a promo code.
func (s *Store) PutPromoCode(ctx context.Context, promo domain.PromoCode) error {
	return s.set(ctx, promoCodesCollection, promo.ID, newPromoCodeDocument(promo))
}

// PutAssignment seeds or replaces a promo assignment.
func (s *Store) PutAssignment(ctx context.Context, assignment domain.PromoAssignment) error {
	return s.set(ctx, promoAssignmentsCollection, assignment.ID, newAssignmentDocument(assignment))
}

func (s *Store) set(ctx context.Context, collection, id string, data any) error {
	if id == "" {
		return fmt.Errorf("firestore: %s document id is required", collection)
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError(collection+".set", err)
	}
	if _, err := client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return pfirestore.WrapError(collection+".set", err)
	}
	return nil
}

type orderEntry struct {
	doc     orderDocument
	exists  bool
	created bool
	dirty   bool
}

type productEntry struct {
	doc        productDocument
	exists     bool
	stockDirty bool
}

type promoEntry struct {
	doc        promoCodeDocument
	exists     bool
	usageDirty bool
}

type assignmentEntry struct {
	doc    assignmentDocument
	exists bool
	dirty  bool
}

type unit struct {
	client *firestore.Client
	tx     *firestore.Transaction

	orders      map[string]*orderEntry
	products    map[string]*productEntry
	promos      map[string]*promoEntry
	assignments map[string]*assignmentEntry
	history     []domain.OrderStatusHistory
}

func newUnit(client *firestore.Client, tx *firestore.Transaction) *unit {
	return &unit{
		client:      client,
		tx:          tx,
		orders:      make(map[string]*orderEntry),
		products:    make(map[string]*productEntry),
		promos:      make(map[string]*promoEntry),
		assignments: make(map[string]*assignmentEntry),
	}
}

func (u *unit) Orders() repositories.OrderGateway         { return orderGateway{u} }
func (u *unit) Products() repositories.ProductGateway     { return productGateway{u} }
func (u *unit) Promotions() repositories.PromoCodeGateway { return promoGateway{u} }
func (u *unit) History() repositories.HistorySink         { return historySink{u} }

func (u *unit) order(id string) (*orderEntry, error) {
	if entry, ok := u.orders[id]; ok {
		return entry, nil
	}
	doc, ok, err := orders.Get(u.tx, orders.Doc(u.client, id))
	if err != nil {
		return nil, err
	}
	entry := &orderEntry{doc: doc.Data, exists: ok}
	u.orders[id] = entry
	return entry, nil
}

func (u *unit) existingOrder(op, id string) (*orderEntry, error) {
	entry, err := u.order(id)
	if err != nil {
		return nil, err
	}
	if !entry.exists {
		return nil, repositories.NotFound(op, "order %s not found", id)
	}
	return entry, nil
}

func (u *unit) loadProducts(ids []string) error {
	var refs []*firestore.DocumentRef
	for _, id := range ids {
		if _, ok := u.products[id]; !ok && id != "" {
			refs = append(refs, products.Doc(u.client, id))
		}
	}
	if len(refs) == 0 {
		return nil
	}
	docs, err := products.GetAll(u.tx, refs)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		doc, ok := docs[ref.ID]
		u.products[ref.ID] = &productEntry{doc: doc.Data, exists: ok}
	}
	return nil
}

func (u *unit) product(op, id string) (*productEntry, error) {
	if err := u.loadProducts([]string{id}); err != nil {
		return nil, err
	}
	entry, ok := u.products[id]
	if !ok || !entry.exists {
		return nil, repositories.NotFound(op, "product %s not found", id)
	}
	return entry, nil
}

func (u *unit) promo(op, id string) (*promoEntry, error) {
	entry, ok := u.promos[id]
	if !ok {
		doc, found, err := promoCodes.Get(u.tx, promoCodes.Doc(u.client, id))
		if err != nil {
			return nil, err
		}
		entry = &promoEntry{doc: doc.Data, exists: found}
		u.promos[id] = entry
	}
	if !entry.exists {
		return nil, repositories.NotFound(op, "promo %s not found", id)
	}
	return entry, nil
}

func (u *unit) assignment(op, id string) (*assignmentEntry, error) {
	entry, ok := u.assignments[id]
	if !ok {
		doc, found, err := assignments.Get(u.tx, assignments.Doc(u.client, id))
		if err != nil {
			return nil, err
		}
		entry = &assignmentEntry{doc: doc.Data, exists: found}
		u.assignments[id] = entry
	}
	if !entry.exists {
		return nil, repositories.NotFound(op, "assignment %s not found", id)
	}
	return entry, nil
}

// flush writes every buffered change. Keys are visited in sorted order so retries issue identical batches.
func (u *unit) flush() error {
	for _, id := range slices.Sorted(maps.Keys(u.orders)) {
		entry := u.orders[id]
		if !entry.dirty {
			continue
		}
		ref := orders.Doc(u.client, id)
		var err error
		if entry.created {
			err = u.tx.Create(ref, entry.doc)
		} else {
			err = u.tx.Set(ref, entry.doc)
		}
		if err != nil {
			return pfirestore.WrapError("orders.write", err)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(u.products)) {
		entry := u.products[id]
		if !entry.stockDirty {
			continue
		}
		if err := u.tx.Update(products.Doc(u.client, id), []firestore.Update{{Path: "stock", Value: entry.doc.Stock}}); err != nil {
			return pfirestore.WrapError("products.update", err)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(u.promos)) {
		entry := u.promos[id]
		if !entry.usageDirty {
			continue
		}
		if err := u.tx.Update(promoCodes.Doc(u.client, id), []firestore.Update{{Path: "usedCount", Value: entry.doc.UsedCount}}); err != nil {
			return pfirestore.WrapError("promoCodes.update", err)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(u.assignments)) {
		entry := u.assignments[id]
		if !entry.dirty {
			continue
		}
		updates := []firestore.Update{
			{Path: "used", Value: entry.doc.Used},
			{Path: "usedAt", Value: entry.doc.UsedAt},
		}
		if err := u.tx.Update(assignments.Doc(u.client, id), updates); err != nil {
			return pfirestore.WrapError("promoAssignments.update", err)
		}
	}
	for _, entry := range u.history {
		if err := u.tx.Create(history.Doc(u.client, entry.ID), newHistoryDocument(entry)); err != nil {
			return pfirestore.WrapError("orderStatusHistory.create", err)
		}
	}
	return nil
}

type orderGateway struct{ u *unit }

func (g orderGateway) Insert(_ context.Context, order domain.Order) error {
	entry, err := g.u.order(order.ID)
	if err != nil {
		return err
	}
	if entry.exists {
		return repositories.NewError("orders.insert", repositories.ErrorConflict, "order "+order.ID+" already exists", nil)
	}
	g.u.orders[order.ID] = &orderEntry{doc: newOrderDocument(order), exists: true, created: true, dirty: true}
	return nil
}

func (g orderGateway) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	entry, err := g.u.existingOrder("orders.find", orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return entry.doc.toDomain(orderID)
}

func (g orderGateway) Update(_ context.Context, order domain.Order) error {
	entry, err := g.u.existingOrder("orders.update", order.ID)
	if err != nil {
		return err
	}
	items := entry.doc.Items
	entry.doc = newOrderDocument(order)
	entry.doc.Items = items
	entry.dirty = true
	return nil
}

func (g orderGateway) InsertItem(_ context.Context, item domain.OrderItem) error {
	entry, err := g.u.existingOrder("orders.insertItem", item.OrderID)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(entry.doc.Items, func(existing itemDocument) bool { return existing.ID == item.ID }) {
		return repositories.NewError("orders.insertItem", repositories.ErrorConflict, "item "+item.ID+" already exists", nil)
	}
	entry.doc.Items = append(slices.Clone(entry.doc.Items), newItemDocument(item))
	entry.dirty = true
	return nil
}

func (g orderGateway) UpdateItem(_ context.Context, item domain.OrderItem) error {
	entry, err := g.u.existingOrder("orders.updateItem", item.OrderID)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(entry.doc.Items, func(existing itemDocument) bool { return existing.ID == item.ID })
	if idx < 0 {
		return repositories.NotFound("orders.updateItem", "item %s not found", item.ID)
	}
	entry.doc.Items = slices.Clone(entry.doc.Items)
	entry.doc.Items[idx] = newItemDocument(item)
	entry.dirty = true
	return nil
}

func (g orderGateway) DeleteItem(_ context.Context, orderID, itemID string) error {
	entry, err := g.u.existingOrder("orders.deleteItem", orderID)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(entry.doc.Items, func(existing itemDocument) bool { return existing.ID == itemID })
	if idx < 0 {
		return repositories.NotFound("orders.deleteItem", "item %s not found", itemID)
	}
	entry.doc.Items = slices.Delete(slices.Clone(entry.doc.Items), idx, idx+1)
	entry.dirty = true
	return nil
}

type productGateway struct{ u *unit }

func (g productGateway) FindByID(_ context.Context, productID string) (domain.Product, error) {
	entry, err := g.u.product("products.find", productID)
	if err != nil {
		return domain.Product{}, err
	}
	return entry.doc.toDomain(productID)
}

func (g productGateway) FindMany(_ context.Context, productIDs []string) ([]domain.Product, error) {
	if err := g.u.loadProducts(productIDs); err != nil {
		return nil, err
	}
	result := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		entry, ok := g.u.products[id]
		if !ok || !entry.exists {
			continue
		}
		product, err := entry.doc.toDomain(id)
		if err != nil {
			return nil, err
		}
		result = append(result, product)
	}
	return result, nil
}

func (g productGateway) DecrementStock(_ context.Context, productID string, amount int) error {
	entry, err := g.u.product("products.decrement", productID)
	if err != nil {
		return err
	}
	if entry.doc.Stock < amount {
		return repositories.NewError("products.decrement", repositories.ErrorInsufficientStock, "insufficient stock for "+productID, nil)
	}
	entry.doc.Stock -= amount
	entry.stockDirty = true
	return nil
}

func (g productGateway) IncrementStock(_ context.Context, productID string, amount int) error {
	entry, err := g.u.product("products.increment", productID)
	if err != nil {
		return err
	}
	entry.doc.Stock += amount
	entry.stockDirty = true
	return nil
}

type promoGateway struct{ u *unit }

func (g promoGateway) FindByCode(_ context.Context, code string) (domain.PromoCode, error) {
	key := promoCodeKey(code)
	for id, entry := range g.u.promos {
		if entry.exists && entry.doc.CodeKey == key {
			return entry.doc.toDomain(id)
		}
	}
	query := g.u.client.Collection(promoCodesCollection).Where("codeKey", "==", key).Limit(1)
	docs, err := promoCodes.Query(g.u.tx, query)
	if err != nil {
		return domain.PromoCode{}, err
	}
	if len(docs) == 0 {
		return domain.PromoCode{}, repositories.NotFound("promoCodes.findByCode", "promo code %s not found", code)
	}
	doc := docs[0]
	g.u.promos[doc.ID] = &promoEntry{doc: doc.Data, exists: true}
	return doc.Data.toDomain(doc.ID)
}

func (g promoGateway) FindByID(_ context.Context, promoID string) (domain.PromoCode, error) {
	entry, err := g.u.promo("promoCodes.find", promoID)
	if err != nil {
		return domain.PromoCode{}, err
	}
	return entry.doc.toDomain(promoID)
}

func (g promoGateway) IncrementUsage(_ context.Context, promoID string) error {
	entry, err := g.u.promo("promoCodes.incrementUsage", promoID)
	if err != nil {
		return err
	}
	entry.doc.UsedCount++
	entry.usageDirty = true
	return nil
}

func (g promoGateway) FindUserAssignment(_ context.Context, userID, promoID string) (domain.PromoAssignment, error) {
	for id, entry := range g.u.assignments {
		if entry.exists && entry.doc.UserID == userID && entry.doc.PromoCodeID == promoID {
			return entry.doc.toDomain(id), nil
		}
	}
	query := g.u.client.Collection(promoAssignmentsCollection).
		Where("userId", "==", userID).
		Where("promoCodeId", "==", promoID).
		Limit(1)
	docs, err := assignments.Query(g.u.tx, query)
	if err != nil {
		return domain.PromoAssignment{}, err
	}
	if len(docs) == 0 {
		return domain.PromoAssignment{}, repositories.NotFound("promoAssignments.find", "no assignment of %s to %s", promoID, userID)
	}
	doc := docs[0]
	g.u.assignments[doc.ID] = &assignmentEntry{doc: doc.Data, exists: true}
	return doc.Data.toDomain(doc.ID), nil
}

func (g promoGateway) MarkAssignmentUsed(_ context.Context, assignmentID string, usedAt time.Time) error {
	entry, err := g.u.assignment("promoAssignments.markUsed", assignmentID)
	if err != nil {
		return err
	}
	if entry.doc.Used {
		return nil
	}
	usedAt = usedAt.UTC()
	entry.doc.Used = true
	entry.doc.UsedAt = &usedAt
	entry.dirty = true
	return nil
}

type historySink struct{ u *unit }

func (h historySink) Append(_ context.Context, entry domain.OrderStatusHistory) error {
	if entry.ID == "" {
		return errors.New("firestore: history entry id is required")
	}
	h.u.history = append(h.u.history, entry)
	return nil
}

// ListByOrder merges committed entries with the ones appended in this unit, oldest first.
func (h historySink) ListByOrder(_ context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	query := h.u.client.Collection(orderHistoryCollection).Where("orderId", "==", orderID)
	docs, err := history.Query(h.u.tx, query)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.OrderStatusHistory, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.Data.toDomain(doc.ID))
	}
	for _, pending := range h.u.history {
		if pending.OrderID == orderID {
			entries = append(entries, pending)
		}
	}
	slices.SortStableFunc(entries, func(a, b domain.OrderStatusHistory) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return entries, nil
}
