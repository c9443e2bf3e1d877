package repositories

import (
	"context"
	"time"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

// Registry exposes the storage backend's transactional entry point and lifecycle hooks.
type Registry interface {
	Close(ctx context.Context) error
	Health(ctx context.Context) error
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// TxFunc runs against a typed transaction handle. Returning an error rolls the whole unit back.
type TxFunc func(ctx context.Context, tx Tx) error

// UnitOfWork groups gateway calls into one atomic, serializable unit.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn TxFunc) error
}

// Tx is the handle for one unit of work. Every gateway obtained from it reads and writes inside
// the same transaction; reads always observe the transaction's own earlier writes.
type Tx interface {
	Orders() OrderGateway
	Products() ProductGateway
	Promotions() PromoCodeGateway
	History() HistorySink
}

// OrderGateway persists order headers and their line items.
type OrderGateway interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// Update persists header fields (status, payment method, discounts, promo, edited flag).
	Update(ctx context.Context, order domain.Order) error
	InsertItem(ctx context.Context, item domain.OrderItem) error
	UpdateItem(ctx context.Context, item domain.OrderItem) error
	DeleteItem(ctx context.Context, orderID, itemID string) error
}

// ProductGateway reads live product rows and adjusts stock.
type ProductGateway interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindMany(ctx context.Context, productIDs []string) ([]domain.Product, error)
	DecrementStock(ctx context.Context, productID string, amount int) error
	IncrementStock(ctx context.Context, productID string, amount int) error
}

// PromoCodeGateway reads promo codes and records their redemption.
type PromoCodeGateway interface {
	FindByCode(ctx context.Context, code string) (domain.PromoCode, error)
	FindByID(ctx context.Context, promoID string) (domain.PromoCode, error)
	IncrementUsage(ctx context.Context, promoID string) error
	FindUserAssignment(ctx context.Context, userID, promoID string) (domain.PromoAssignment, error)
	MarkAssignmentUsed(ctx context.Context, assignmentID string, usedAt time.Time) error
}

// HistorySink appends and lists order status history entries.
type HistorySink interface {
	Append(ctx context.Context, entry domain.OrderStatusHistory) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error)
}
