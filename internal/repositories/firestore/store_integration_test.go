//go:build integration

package firestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	pconfig "github.com/Abdullah97825/Matjary-sub000/internal/platform/config"
	pfirestore "github.com/Abdullah97825/Matjary-sub000/internal/platform/firestore"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
)

func newEmulatorStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "matjary-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	store, err := New(provider, pfirestore.WithTxAttempts(10))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStoreIntegration_ReadYourWritesAndRollback(t *testing.T) {
	store := newEmulatorStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	productID := "p-" + ulid.Make().String()
	if err := store.PutProduct(ctx, domain.Product{ID: productID, Name: "Kettle", Price: decimal.NewFromInt(50), Stock: 3, UseStock: true}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	orderID := "o-" + ulid.Make().String()
	now := time.Now().UTC().Truncate(time.Millisecond)
	err := store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := tx.Orders().Insert(ctx, domain.Order{ID: orderID, Status: domain.OrderStatusPending, CustomerID: "u1", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.Orders().InsertItem(ctx, domain.OrderItem{ID: "i1", OrderID: orderID, ProductID: productID, Quantity: 2, Price: decimal.NewFromInt(50)}); err != nil {
			return err
		}
		if err := tx.Products().DecrementStock(ctx, productID, 2); err != nil {
			return err
		}
		product, err := tx.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if product.Stock != 1 {
			t.Fatalf("expected buffered stock 1, got %d", product.Stock)
		}
		order, err := tx.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if len(order.Items) != 1 {
			t.Fatalf("expected buffered item, got %d", len(order.Items))
		}
		return tx.History().Append(ctx, domain.OrderStatusHistory{ID: "h-" + ulid.Make().String(), OrderID: orderID, NewStatus: domain.OrderStatusPending, CreatedAt: now})
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	err = store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		return tx.Products().DecrementStock(ctx, productID, 5)
	})
	if !repositories.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	err = store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		product, err := tx.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if product.Stock != 1 {
			t.Fatalf("expected committed stock 1, got %d", product.Stock)
		}
		entries, err := tx.History().ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(entries) != 1 || entries[0].NewStatus != domain.OrderStatusPending {
			t.Fatalf("unexpected history %#v", entries)
		}
		_, err = tx.Orders().FindByID(ctx, "missing-"+orderID)
		if !repositories.IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestStoreIntegration_PromoLookupAndAssignment(t *testing.T) {
	store := newEmulatorStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	suffix := ulid.Make().String()
	promo := domain.PromoCode{ID: "pc-" + suffix, Code: "Save" + suffix, DiscountType: domain.DiscountTypeFlat, DiscountAmount: decimal.NewFromInt(5), IsActive: true, Exclusive: true}
	if err := store.PutPromoCode(ctx, promo); err != nil {
		t.Fatalf("seed promo: %v", err)
	}
	if err := store.PutAssignment(ctx, domain.PromoAssignment{ID: "pa-" + suffix, PromoCodeID: promo.ID, UserID: "u1"}); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	usedAt := time.Now().UTC()
	err := store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		found, err := tx.Promotions().FindByCode(ctx, "save"+suffix)
		if err != nil {
			return err
		}
		if found.ID != promo.ID {
			t.Fatalf("expected promo %s, got %s", promo.ID, found.ID)
		}
		if err := tx.Promotions().IncrementUsage(ctx, found.ID); err != nil {
			return err
		}
		assignment, err := tx.Promotions().FindUserAssignment(ctx, "u1", promo.ID)
		if err != nil {
			return err
		}
		return tx.Promotions().MarkAssignmentUsed(ctx, assignment.ID, usedAt)
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	err = store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		found, err := tx.Promotions().FindByID(ctx, promo.ID)
		if err != nil {
			return err
		}
		if found.UsedCount != 1 {
			t.Fatalf("expected used count 1, got %d", found.UsedCount)
		}
		assignment, err := tx.Promotions().FindUserAssignment(ctx, "u1", promo.ID)
		if err != nil {
			return err
		}
		if !assignment.Used || assignment.UsedAt == nil {
			t.Fatalf("expected assignment to be marked used, got %#v", assignment)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if err := store.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
}
