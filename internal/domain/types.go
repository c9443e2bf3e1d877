package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending awaits an admin decision.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusAdminPending awaits an admin decision on an order with hidden or negotiable prices.
	OrderStatusAdminPending OrderStatus = "ADMIN_PENDING"
	// OrderStatusCustomerPending is a quote awaiting the customer's approval.
	OrderStatusCustomerPending OrderStatus = "CUSTOMER_PENDING"
	// OrderStatusAccepted marks a finalized order whose stock and promo usage were committed.
	OrderStatusAccepted OrderStatus = "ACCEPTED"
	// OrderStatusRejected is terminal.
	OrderStatusRejected OrderStatus = "REJECTED"
	// OrderStatusCompleted is terminal.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled is terminal and only reachable from ACCEPTED.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatuses lists every known status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAdminPending,
	OrderStatusCustomerPending,
	OrderStatusAccepted,
	OrderStatusRejected,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// Valid reports whether the status is part of the fixed enum.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusRejected, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod records how the order is settled.
type PaymentMethod string

const (
	PaymentMethodPending PaymentMethod = "PENDING"
	PaymentMethodCash    PaymentMethod = "CASH"
)

// ActorRole distinguishes the two parties of the approval workflow.
type ActorRole string

const (
	ActorRoleAdmin    ActorRole = "ADMIN"
	ActorRoleCustomer ActorRole = "CUSTOMER"
)

// Actor identifies who performs a mutating call. It is threaded explicitly through every operation.
type Actor struct {
	ID   string
	Role ActorRole
}

// IsAdmin reports whether the actor acts with admin privileges.
func (a Actor) IsAdmin() bool {
	return a.Role == ActorRoleAdmin
}

// Order is one customer purchase together with its current line items.
type Order struct {
	ID                  string
	Status              OrderStatus
	CustomerID          string
	RecipientName       string
	Phone               string
	ShippingAddress     string
	PaymentMethod       PaymentMethod
	Savings             decimal.Decimal
	AdminDiscount       *decimal.Decimal
	AdminDiscountReason *string
	PromoCodeID         *string
	PromoCode           *string
	PromoDiscount       *decimal.Decimal
	ItemsEdited         bool
	Items               []OrderItem
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Subtotal sums price × quantity over the current items.
func (o Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ItemByID returns the line item with the given id.
func (o Order) ItemByID(id string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ID == id {
			return item, true
		}
	}
	return OrderItem{}, false
}

// ItemByProductID returns the line item referencing the product.
func (o Order) ItemByProductID(productID string) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return OrderItem{}, false
}

// ProductIDs returns the distinct product ids referenced by the items, in item order.
func (o Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Clone returns a deep copy safe to mutate.
func (o Order) Clone() Order {
	out := o
	out.AdminDiscount = cloneDecimal(o.AdminDiscount)
	out.PromoDiscount = cloneDecimal(o.PromoDiscount)
	out.AdminDiscountReason = cloneString(o.AdminDiscountReason)
	out.PromoCodeID = cloneString(o.PromoCodeID)
	out.PromoCode = cloneString(o.PromoCode)
	if o.Items != nil {
		out.Items = make([]OrderItem, len(o.Items))
		for i, item := range o.Items {
			out.Items[i] = item.Clone()
		}
	}
	return out
}

// OrderItem is one product line. Price is the snapshot taken at order or edit time.
type OrderItem struct {
	ID             string
	OrderID        string
	ProductID      string
	ProductName    string
	Quantity       int
	Price          decimal.Decimal
	PriceEdited    bool
	QuantityEdited bool
	AdminAdded     bool
	OriginalValues OriginalValues
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LineTotal returns price × quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Clone returns a deep copy of the item including its audit record.
func (i OrderItem) Clone() OrderItem {
	out := i
	out.OriginalValues = i.OriginalValues.Clone()
	return out
}

// OrderStatusHistory is an append-only ledger entry written once per actual status change.
type OrderStatusHistory struct {
	ID             string
	OrderID        string
	PreviousStatus OrderStatus
	NewStatus      OrderStatus
	Note           string
	ActorID        string
	CreatedAt      time.Time
}

// Product is the catalog view consumed by the order engine.
type Product struct {
	ID              string
	Name            string
	Price           decimal.Decimal
	CompareAtPrice  *decimal.Decimal
	Stock           int
	UseStock        bool
	IsArchived      bool
	HidePrice       bool
	NegotiablePrice bool
}

// RequiresAdminReview reports whether orders containing this product start in ADMIN_PENDING.
func (p Product) RequiresAdminReview() bool {
	return p.HidePrice || p.NegotiablePrice
}

// DiscountType enumerates promo discount shapes.
type DiscountType string

const (
	DiscountTypeNone       DiscountType = "NONE"
	DiscountTypeFlat       DiscountType = "FLAT"
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeBoth       DiscountType = "BOTH"
)

// PromoCode is the externally owned promotion consumed by finalization.
type PromoCode struct {
	ID              string
	Code            string
	DiscountType    DiscountType
	DiscountAmount  decimal.Decimal
	DiscountPercent decimal.Decimal
	IsActive        bool
	ExpiresAt       *time.Time
	MaxUses         *int
	UsedCount       int
	MinOrderAmount  *decimal.Decimal
	// Exclusive codes may only be redeemed by users holding an assignment.
	Exclusive       bool
	ExcludedUserIDs []string
}

// Excludes reports whether the user is on the code's exclusion list.
func (p PromoCode) Excludes(userID string) bool {
	for _, id := range p.ExcludedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PromoAssignment binds a promo code to one user.
type PromoAssignment struct {
	ID          string
	PromoCodeID string
	UserID      string
	Used        bool
	UsedAt      *time.Time
}

// CartLine is one requested product at checkout.
type CartLine struct {
	ProductID string
	Quantity  int
}

func cloneDecimal(value *decimal.Decimal) *decimal.Decimal {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
