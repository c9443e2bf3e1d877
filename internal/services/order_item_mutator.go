package services

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

const (
	orderItemIDPrefix = "itm_"

	defaultCustomPriceNote = "Item added by admin with custom price"
)

// RecordEdit applies an audited edit of field to item and returns the updated item.
// The first recorded prior value is preserved across successive edits; a non-empty note replaces the stored one.
func RecordEdit(item domain.OrderItem, field domain.AuditField, value decimal.Decimal, note string) domain.OrderItem {
	out := item.Clone()
	switch field {
	case domain.AuditFieldPrice:
		out.OriginalValues = out.OriginalValues.Record(field, item.Price, note)
		out.Price = value
		out.PriceEdited = true
	case domain.AuditFieldQuantity:
		out.OriginalValues = out.OriginalValues.Record(field, decimal.NewFromInt(int64(item.Quantity)), note)
		out.Quantity = int(value.IntPart())
		out.QuantityEdited = true
	}
	return out
}

// ItemChanges is the persisted effect of an edit batch.
type ItemChanges struct {
	Inserted []domain.OrderItem
	Updated  []domain.OrderItem
	Deleted  []string
}

// Empty reports whether the batch changed nothing.
func (c ItemChanges) Empty() bool {
	return len(c.Inserted) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// OrderItemMutator applies audited quantity/price edits, additions and removals to an order's items.
type OrderItemMutator struct {
	clock func() time.Time
	newID func() string
}

// NewOrderItemMutator constructs a mutator using the supplied clock and id source.
func NewOrderItemMutator(clock func() time.Time, newID func() string) *OrderItemMutator {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = defaultIDGenerator
	}
	return &OrderItemMutator{clock: clock, newID: newID}
}

// Begin starts an edit batch. Item lookups resolve against the order as passed here, never against
// the partially edited working copy.
func (m *OrderItemMutator) Begin(order domain.Order) *ItemEditBatch {
	return &ItemEditBatch{
		mutator:  m,
		original: order.Clone(),
		working:  order.Clone(),
		updated:  make(map[string]struct{}),
	}
}

// ItemEditBatch accumulates edits against one order.
type ItemEditBatch struct {
	mutator  *OrderItemMutator
	original domain.Order
	working  domain.Order
	inserted []string
	updated  map[string]struct{}
	deleted  []string
}

// Order returns a copy of the edited order.
func (b *ItemEditBatch) Order() domain.Order {
	return b.working.Clone()
}

// EditPrice sets a new snapshot price on an existing item.
func (b *ItemEditBatch) EditPrice(itemID string, price decimal.Decimal, note string) error {
	if price.IsNegative() {
		return invalidField("items.price", "price must not be negative")
	}
	idx, err := b.locate(itemID)
	if err != nil {
		return err
	}
	item := b.working.Items[idx]
	if item.Price.Equal(price) {
		return nil
	}
	b.replace(idx, RecordEdit(item, domain.AuditFieldPrice, price, note))
	return nil
}

// EditQuantity sets a new quantity on an existing item. Admin-added items have no pre-order quantity,
// so their quantity changes are applied without an audit entry.
func (b *ItemEditBatch) EditQuantity(itemID string, quantity int, note string) error {
	if quantity < 1 {
		return invalidField("items.quantity", "quantity must be at least 1")
	}
	idx, err := b.locate(itemID)
	if err != nil {
		return err
	}
	item := b.working.Items[idx]
	if item.Quantity == quantity {
		return nil
	}
	if item.AdminAdded {
		item = item.Clone()
		item.Quantity = quantity
		b.replace(idx, item)
		return nil
	}
	b.replace(idx, RecordEdit(item, domain.AuditFieldQuantity, decimal.NewFromInt(int64(quantity)), note))
	return nil
}

// AddItem inserts an admin-added line for product. When the product already has a line in the order,
// that line's quantity is increased through the audited edit path instead.
func (b *ItemEditBatch) AddItem(product domain.Product, quantity int, price decimal.Decimal, note string) (domain.OrderItem, error) {
	if quantity < 1 {
		return domain.OrderItem{}, invalidField("newItems.quantity", "quantity must be at least 1")
	}
	if price.IsNegative() {
		return domain.OrderItem{}, invalidField("newItems.price", "price must not be negative")
	}
	if product.IsArchived {
		return domain.OrderItem{}, fmt.Errorf("%w: product %q is archived", ErrOrderConflict, product.Name)
	}

	if existing, ok := b.original.ItemByProductID(product.ID); ok {
		idx := b.indexOf(existing.ID)
		if idx >= 0 {
			current := b.working.Items[idx]
			if err := b.EditQuantity(current.ID, current.Quantity+quantity, note); err != nil {
				return domain.OrderItem{}, err
			}
			return b.working.Items[idx].Clone(), nil
		}
	}
	if idx := b.indexOfProduct(product.ID); idx >= 0 {
		// Added earlier in this batch.
		current := b.working.Items[idx]
		if err := b.EditQuantity(current.ID, current.Quantity+quantity, note); err != nil {
			return domain.OrderItem{}, err
		}
		return b.working.Items[idx].Clone(), nil
	}

	now := b.mutator.clock()
	item := domain.OrderItem{
		ID:          orderItemIDPrefix + b.mutator.newID(),
		OrderID:     b.working.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		Price:       price,
		AdminAdded:  true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !price.Equal(product.Price) {
		if strings.TrimSpace(note) == "" {
			note = defaultCustomPriceNote
		}
		item.OriginalValues = item.OriginalValues.Record(domain.AuditFieldPrice, product.Price, note)
		item.PriceEdited = true
	}

	b.working.Items = append(b.working.Items, item)
	b.working.ItemsEdited = true
	b.inserted = append(b.inserted, item.ID)
	return item.Clone(), nil
}

// RemoveItem deletes an item that is part of the order's current item set.
func (b *ItemEditBatch) RemoveItem(itemID string) error {
	idx, err := b.locate(itemID)
	if err != nil {
		return err
	}
	b.working.Items = slices.Delete(b.working.Items, idx, idx+1)
	b.working.ItemsEdited = true

	if pos := slices.Index(b.inserted, itemID); pos >= 0 {
		b.inserted = slices.Delete(b.inserted, pos, pos+1)
		return nil
	}
	delete(b.updated, itemID)
	b.deleted = append(b.deleted, itemID)
	return nil
}

// Changes lists the rows to insert, update and delete.
func (b *ItemEditBatch) Changes() ItemChanges {
	var changes ItemChanges
	for _, id := range b.inserted {
		if idx := b.indexOf(id); idx >= 0 {
			changes.Inserted = append(changes.Inserted, b.working.Items[idx].Clone())
		}
	}
	for _, item := range b.working.Items {
		if _, ok := b.updated[item.ID]; ok {
			changes.Updated = append(changes.Updated, item.Clone())
		}
	}
	changes.Deleted = slices.Clone(b.deleted)
	return changes
}

// locate resolves itemID against the original item set and returns its index in the working copy.
func (b *ItemEditBatch) locate(itemID string) (int, error) {
	itemID = strings.TrimSpace(itemID)
	if _, ok := b.original.ItemByID(itemID); !ok {
		if slices.Contains(b.inserted, itemID) {
			return b.indexOf(itemID), nil
		}
		return -1, fmt.Errorf("%w: item %q is not part of order %s", ErrOrderNotFound, itemID, b.original.ID)
	}
	idx := b.indexOf(itemID)
	if idx < 0 {
		return -1, fmt.Errorf("%w: item %q was already removed from order %s", ErrOrderNotFound, itemID, b.original.ID)
	}
	return idx, nil
}

func (b *ItemEditBatch) replace(idx int, item domain.OrderItem) {
	item.UpdatedAt = b.mutator.clock()
	b.working.Items[idx] = item
	b.working.ItemsEdited = true
	if !slices.Contains(b.inserted, item.ID) {
		b.updated[item.ID] = struct{}{}
	}
}

func (b *ItemEditBatch) indexOf(itemID string) int {
	return slices.IndexFunc(b.working.Items, func(item domain.OrderItem) bool { return item.ID == itemID })
}

func (b *ItemEditBatch) indexOfProduct(productID string) int {
	return slices.IndexFunc(b.working.Items, func(item domain.OrderItem) bool { return item.ProductID == productID })
}
