package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

// OrderService exposes the order lifecycle to admins and customers.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (OrderView, error)
	GetOrder(ctx context.Context, orderID string, actor domain.Actor) (OrderView, error)
	ListHistory(ctx context.Context, orderID string, actor domain.Actor) ([]domain.OrderStatusHistory, error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (OrderView, error)
	CancelAcceptedOrder(ctx context.Context, cmd CancelOrderCommand) (OrderView, error)
	ApplyPromoCode(ctx context.Context, cmd ApplyPromoCodeCommand) (OrderView, error)
	RemovePromoCode(ctx context.Context, cmd RemovePromoCodeCommand) (OrderView, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	CustomerID     string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderView is an order together with its priced totals.
type OrderView struct {
	Order  domain.Order
	Totals OrderTotals
}

// PlaceOrderCommand creates an order from cart lines.
type PlaceOrderCommand struct {
	Actor           domain.Actor
	Lines           []domain.CartLine
	RecipientName   string
	Phone           string
	ShippingAddress string
	PromoCode       string
}

// ItemUpdate edits an existing line. Nil fields are left unchanged.
type ItemUpdate struct {
	ItemID   string
	Quantity *int
	Price    *decimal.Decimal
	Note     string
}

// NewItem adds a product line. A nil price uses the live catalog price.
type NewItem struct {
	ProductID string
	Quantity  int
	Price     *decimal.Decimal
	Note      string
}

// UpdateOrderCommand is one update request against one order.
type UpdateOrderCommand struct {
	OrderID        string
	Actor          domain.Actor
	Status         *domain.OrderStatus
	StatusNote     string
	Items          []ItemUpdate
	NewItems       []NewItem
	RemovedItemIDs []string
	// AdminDiscount sets the discretionary discount; zero clears it.
	AdminDiscount       *decimal.Decimal
	AdminDiscountReason *string
}

// HasItemChanges reports whether the request mutates line items.
func (c UpdateOrderCommand) HasItemChanges() bool {
	return len(c.Items) > 0 || len(c.NewItems) > 0 || len(c.RemovedItemIDs) > 0
}

// CancelOrderCommand cancels an accepted order.
type CancelOrderCommand struct {
	OrderID string
	Actor   domain.Actor
	// RestoreStock overrides the configured default when set.
	RestoreStock *bool
	Note         string
}

// ApplyPromoCodeCommand attaches a promo code to an order awaiting a decision.
type ApplyPromoCodeCommand struct {
	OrderID string
	Actor   domain.Actor
	Code    string
}

// RemovePromoCodeCommand detaches the promo code before acceptance.
type RemovePromoCodeCommand struct {
	OrderID string
	Actor   domain.Actor
}
