package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	drivermysql "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
)

func TestMapErrorClassifiesDriverErrors(t *testing.T) {
	testCases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, notFound: true},
		{name: "duplicate", err: &drivermysql.MySQLError{Number: mysqlDuplicateEntry, Message: "Duplicate entry"}, conflict: true},
		{name: "deadlock", err: fmt.Errorf("commit: %w", &drivermysql.MySQLError{Number: mysqlDeadlock}), conflict: true},
		{name: "lock wait", err: &drivermysql.MySQLError{Number: mysqlLockWaitTimeout}, conflict: true},
		{name: "bad connection", err: drivermysql.ErrInvalidConn, unavailable: true},
		{name: "other mysql", err: &drivermysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := mapError("orders.find", tc.err)
			var repoErr repositories.RepositoryError
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected repository error, got %T (%v)", err, err)
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification: %v", err)
			}
		})
	}
}

func TestMapErrorPassesThroughCallbackErrors(t *testing.T) {
	if mapError("op", nil) != nil {
		t.Fatalf("expected nil")
	}
	callbackErr := errors.New("illegal transition")
	if err := mapError("sqlstore.tx", callbackErr); err != callbackErr {
		t.Fatalf("expected callback error unchanged, got %v", err)
	}
	stockErr := repositories.NewError("products.decrement", repositories.ErrorInsufficientStock, "short", nil)
	if err := mapError("sqlstore.tx", stockErr); !repositories.IsInsufficientStock(err) {
		t.Fatalf("expected stock error to survive, got %v", err)
	}
	if err := mapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestRetryableOnlyForLockFailures(t *testing.T) {
	if !retryable(fmt.Errorf("wrap: %w", &drivermysql.MySQLError{Number: mysqlDeadlock})) {
		t.Fatalf("expected deadlock to be retryable")
	}
	if !retryable(&drivermysql.MySQLError{Number: mysqlLockWaitTimeout}) {
		t.Fatalf("expected lock wait timeout to be retryable")
	}
	if retryable(&drivermysql.MySQLError{Number: mysqlDuplicateEntry}) {
		t.Fatalf("duplicate entry must not be retried")
	}
	serviceWrapped := fmt.Errorf("%w: %w", errors.New("order: conflict"),
		repositories.NewError("products.findMany", repositories.ErrorConflict, "Deadlock found", &drivermysql.MySQLError{Number: mysqlDeadlock}))
	if !retryable(mapError("sqlstore.tx", serviceWrapped)) {
		t.Fatalf("expected deadlock raised inside the callback to be retryable")
	}
	if retryable(errors.New("boom")) {
		t.Fatalf("plain errors must not be retried")
	}
}

func TestAuditColumnRoundTrip(t *testing.T) {
	item := domain.OrderItem{
		ID:    "i1",
		Price: decimal.RequireFromString("9.50"),
		OriginalValues: domain.OriginalValues{}.
			Record(domain.AuditFieldQuantity, decimal.NewFromInt(3), "customer asked").
			Record(domain.AuditFieldPrice, decimal.RequireFromString("12.00"), ""),
	}
	record := newOrderItemRecord(item)

	value, err := record.OriginalValues.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var scanned auditColumn
	if err := scanned.Scan([]byte(value.(string))); err != nil {
		t.Fatalf("scan: %v", err)
	}
	record.OriginalValues = scanned

	decoded := record.toDomain()
	quantity, ok := decoded.OriginalValues.Entry(domain.AuditFieldQuantity)
	if !ok || !quantity.PriorValue.Equal(decimal.NewFromInt(3)) || quantity.Note != "customer asked" {
		t.Fatalf("unexpected quantity audit %#v", quantity)
	}
	price, ok := decoded.OriginalValues.Entry(domain.AuditFieldPrice)
	if !ok || !price.PriorValue.Equal(decimal.RequireFromString("12")) {
		t.Fatalf("unexpected price audit %#v", price)
	}
}

func TestAuditColumnEmptyIsNull(t *testing.T) {
	var column auditColumn
	value, err := column.Value()
	if err != nil || value != nil {
		t.Fatalf("expected NULL for empty audit, got %v (%v)", value, err)
	}
	if err := column.Scan(nil); err != nil || column != nil {
		t.Fatalf("expected nil column after scanning NULL")
	}
	if err := column.Scan(42); err == nil {
		t.Fatalf("expected error for unsupported source")
	}
}

func TestStringListColumn(t *testing.T) {
	var column stringListColumn
	value, err := column.Value()
	if err != nil || value != "[]" {
		t.Fatalf("expected empty json array, got %v (%v)", value, err)
	}
	if err := column.Scan(`["u1","u2"]`); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(column) != 2 || column[1] != "u2" {
		t.Fatalf("unexpected list %#v", column)
	}
}
