package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

func newTestMutator() *OrderItemMutator {
	seq := 0
	return NewOrderItemMutator(
		func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) },
		func() string {
			seq++
			return fmt.Sprintf("%03d", seq)
		},
	)
}

func pendingOrder() domain.Order {
	return domain.Order{
		ID:     "ord_1",
		Status: domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ID: "itm_a", OrderID: "ord_1", ProductID: "p1", ProductName: "Kettle", Quantity: 2, Price: dec("50")},
		},
	}
}

func TestItemEditBatch_PriceEditedTwiceKeepsFirstOriginal(t *testing.T) {
	order := pendingOrder()
	order.Items[0].Price = dec("10")

	batch := newTestMutator().Begin(order)
	if err := batch.EditPrice("itm_a", dec("8"), "sale"); err != nil {
		t.Fatalf("EditPrice: %v", err)
	}
	if err := batch.EditPrice("itm_a", dec("9"), ""); err != nil {
		t.Fatalf("EditPrice: %v", err)
	}

	item := batch.Order().Items[0]
	if !item.Price.Equal(dec("9")) {
		t.Fatalf("expected live price 9, got %s", item.Price)
	}
	entry, ok := item.OriginalValues.Entry(domain.AuditFieldPrice)
	if !ok || !entry.PriorValue.Equal(dec("10")) {
		t.Fatalf("expected original price 10, got %+v", entry)
	}
	if entry.Note != "sale" {
		t.Fatalf("expected note to remain %q, got %q", "sale", entry.Note)
	}
	if !item.PriceEdited || !batch.Order().ItemsEdited {
		t.Fatalf("expected edited flags to be set")
	}
}

func TestItemEditBatch_AddItemAtCatalogPrice(t *testing.T) {
	batch := newTestMutator().Begin(pendingOrder())

	added, err := batch.AddItem(domain.Product{ID: "p3", Name: "Mug", Price: dec("19.99")}, 1, dec("19.99"), "")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if !added.AdminAdded {
		t.Fatalf("expected admin added item")
	}
	if added.PriceEdited || added.OriginalValues.Has(domain.AuditFieldPrice) {
		t.Fatalf("catalog price must not be audited: %+v", added)
	}
	if added.OriginalValues.Has(domain.AuditFieldQuantity) || added.QuantityEdited {
		t.Fatalf("fresh item must not audit quantity")
	}
	if !batch.Order().ItemsEdited {
		t.Fatalf("expected order to be flagged edited")
	}

	changes := batch.Changes()
	if len(changes.Inserted) != 1 || changes.Inserted[0].ID != added.ID || len(changes.Updated) != 0 {
		t.Fatalf("unexpected changes %+v", changes)
	}
}

func TestItemEditBatch_AddItemWithCustomPriceUsesDefaultNote(t *testing.T) {
	batch := newTestMutator().Begin(pendingOrder())

	added, err := batch.AddItem(domain.Product{ID: "p3", Name: "Mug", Price: dec("19.99")}, 2, dec("15"), "")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	entry, ok := added.OriginalValues.Entry(domain.AuditFieldPrice)
	if !ok {
		t.Fatalf("expected price audit")
	}
	if !entry.PriorValue.Equal(dec("19.99")) || entry.Note != defaultCustomPriceNote {
		t.Fatalf("unexpected audit %+v", entry)
	}
	if !added.PriceEdited {
		t.Fatalf("expected price edited flag")
	}
}

func TestItemEditBatch_AddExistingProductMergesQuantity(t *testing.T) {
	batch := newTestMutator().Begin(pendingOrder())

	merged, err := batch.AddItem(domain.Product{ID: "p1", Name: "Kettle", Price: dec("50")}, 3, dec("50"), "restock")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if merged.ID != "itm_a" || merged.Quantity != 5 {
		t.Fatalf("expected existing line with quantity 5, got %+v", merged)
	}
	entry, ok := merged.OriginalValues.Entry(domain.AuditFieldQuantity)
	if !ok || entry.PriorValue.IntPart() != 2 || entry.Note != "restock" {
		t.Fatalf("expected audited quantity edit, got %+v", entry)
	}
	if len(batch.Order().Items) != 1 {
		t.Fatalf("merge must not insert a row")
	}
	changes := batch.Changes()
	if len(changes.Inserted) != 0 || len(changes.Updated) != 1 {
		t.Fatalf("unexpected changes %+v", changes)
	}
}

func TestItemEditBatch_RemoveUnknownItem(t *testing.T) {
	order := pendingOrder()
	batch := newTestMutator().Begin(order)

	err := batch.RemoveItem("itm_missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	after := batch.Order()
	if len(after.Items) != 1 || after.ItemsEdited {
		t.Fatalf("order must be unchanged, got %+v", after)
	}
	if !batch.Changes().Empty() {
		t.Fatalf("expected no changes")
	}
}

func TestItemEditBatch_RemoveUsesOriginalItemSet(t *testing.T) {
	batch := newTestMutator().Begin(pendingOrder())

	if err := batch.EditQuantity("itm_a", 4, ""); err != nil {
		t.Fatalf("EditQuantity: %v", err)
	}
	if err := batch.RemoveItem("itm_a"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if err := batch.RemoveItem("itm_a"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("second removal should report not found, got %v", err)
	}

	changes := batch.Changes()
	if len(changes.Deleted) != 1 || changes.Deleted[0] != "itm_a" || len(changes.Updated) != 0 {
		t.Fatalf("unexpected changes %+v", changes)
	}
}

func TestItemEditBatch_AdminAddedQuantityIsNotAudited(t *testing.T) {
	order := pendingOrder()
	order.Items = append(order.Items, domain.OrderItem{ID: "itm_b", ProductID: "p2", Quantity: 1, Price: dec("5"), AdminAdded: true})

	batch := newTestMutator().Begin(order)
	if err := batch.EditQuantity("itm_b", 3, "more"); err != nil {
		t.Fatalf("EditQuantity: %v", err)
	}
	item, _ := batch.Order().ItemByID("itm_b")
	if item.Quantity != 3 || item.OriginalValues.Has(domain.AuditFieldQuantity) {
		t.Fatalf("unexpected item %+v", item)
	}
	if !batch.Order().ItemsEdited {
		t.Fatalf("expected order edited flag")
	}
}

func TestItemEditBatch_ValidatesInput(t *testing.T) {
	batch := newTestMutator().Begin(pendingOrder())

	if err := batch.EditQuantity("itm_a", 0, ""); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
	if err := batch.EditPrice("itm_a", dec("-1"), ""); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for negative price, got %v", err)
	}
	if _, err := batch.AddItem(domain.Product{ID: "p9", IsArchived: true}, 1, dec("1"), ""); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for archived product, got %v", err)
	}
	if err := batch.EditPrice("itm_a", dec("50"), "same"); err != nil {
		t.Fatalf("same price should be a no-op: %v", err)
	}
	if !batch.Changes().Empty() {
		t.Fatalf("no-op edits must not produce changes")
	}
}
