package firestore

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

const (
	ordersCollection           = "orders"
	productsCollection         = "products"
	promoCodesCollection       = "promoCodes"
	promoAssignmentsCollection = "promoAssignments"
	orderHistoryCollection     = "orderStatusHistory"
)

// Money is persisted as decimal strings so no precision is lost to float64.
type orderDocument struct {
	Status              string         `firestore:"status"`
	CustomerID          string         `firestore:"customerId"`
	RecipientName       string         `firestore:"recipientName"`
	Phone               string         `firestore:"phone"`
	ShippingAddress     string         `firestore:"shippingAddress"`
	PaymentMethod       string         `firestore:"paymentMethod"`
	Savings             string         `firestore:"savings"`
	AdminDiscount       *string        `firestore:"adminDiscount"`
	AdminDiscountReason *string        `firestore:"adminDiscountReason"`
	PromoCodeID         *string        `firestore:"promoCodeId"`
	PromoCode           *string        `firestore:"promoCode"`
	PromoDiscount       *string        `firestore:"promoDiscount"`
	ItemsEdited         bool           `firestore:"itemsEdited"`
	Items               []itemDocument `firestore:"items"`
	CreatedAt           time.Time      `firestore:"createdAt"`
	UpdatedAt           time.Time      `firestore:"updatedAt"`
}

type itemDocument struct {
	ID             string                   `firestore:"id"`
	ProductID      string                   `firestore:"productId"`
	ProductName    string                   `firestore:"productName"`
	Quantity       int                      `firestore:"quantity"`
	Price          string                   `firestore:"price"`
	PriceEdited    bool                     `firestore:"priceEdited"`
	QuantityEdited bool                     `firestore:"quantityEdited"`
	AdminAdded     bool                     `firestore:"adminAdded"`
	OriginalValues map[string]auditDocument `firestore:"originalValues,omitempty"`
	CreatedAt      time.Time                `firestore:"createdAt"`
	UpdatedAt      time.Time                `firestore:"updatedAt"`
}

type auditDocument struct {
	PriorValue string `firestore:"priorValue"`
	Note       string `firestore:"note,omitempty"`
}

type productDocument struct {
	Name            string  `firestore:"name"`
	Price           string  `firestore:"price"`
	CompareAtPrice  *string `firestore:"compareAtPrice"`
	Stock           int     `firestore:"stock"`
	UseStock        bool    `firestore:"useStock"`
	IsArchived      bool    `firestore:"isArchived"`
	HidePrice       bool    `firestore:"hidePrice"`
	NegotiablePrice bool    `firestore:"negotiablePrice"`
}

type promoCodeDocument struct {
	Code            string     `firestore:"code"`
	CodeKey         string     `firestore:"codeKey"`
	DiscountType    string     `firestore:"discountType"`
	DiscountAmount  string     `firestore:"discountAmount"`
	DiscountPercent string     `firestore:"discountPercent"`
	IsActive        bool       `firestore:"isActive"`
	ExpiresAt       *time.Time `firestore:"expiresAt"`
	MaxUses         *int       `firestore:"maxUses"`
	UsedCount       int        `firestore:"usedCount"`
	MinOrderAmount  *string    `firestore:"minOrderAmount"`
	Exclusive       bool       `firestore:"exclusive"`
	ExcludedUserIDs []string   `firestore:"excludedUserIds"`
}

type assignmentDocument struct {
	PromoCodeID string     `firestore:"promoCodeId"`
	UserID      string     `firestore:"userId"`
	Used        bool       `firestore:"used"`
	UsedAt      *time.Time `firestore:"usedAt"`
}

type historyDocument struct {
	OrderID        string    `firestore:"orderId"`
	PreviousStatus string    `firestore:"previousStatus"`
	NewStatus      string    `firestore:"newStatus"`
	Note           string    `firestore:"note"`
	ActorID        string    `firestore:"actorId"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

func promoCodeKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		Status:              string(order.Status),
		CustomerID:          order.CustomerID,
		RecipientName:       order.RecipientName,
		Phone:               order.Phone,
		ShippingAddress:     order.ShippingAddress,
		PaymentMethod:       string(order.PaymentMethod),
		Savings:             order.Savings.String(),
		AdminDiscount:       decimalString(order.AdminDiscount),
		AdminDiscountReason: cloneString(order.AdminDiscountReason),
		PromoCodeID:         cloneString(order.PromoCodeID),
		PromoCode:           cloneString(order.PromoCode),
		PromoDiscount:       decimalString(order.PromoDiscount),
		ItemsEdited:         order.ItemsEdited,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
	}
	doc.Items = make([]itemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, newItemDocument(item))
	}
	return doc
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	savings, err := parseDecimal("savings", d.Savings)
	if err != nil {
		return domain.Order{}, err
	}
	adminDiscount, err := parseDecimalPtr("adminDiscount", d.AdminDiscount)
	if err != nil {
		return domain.Order{}, err
	}
	promoDiscount, err := parseDecimalPtr("promoDiscount", d.PromoDiscount)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:                  id,
		Status:              domain.OrderStatus(d.Status),
		CustomerID:          d.CustomerID,
		RecipientName:       d.RecipientName,
		Phone:               d.Phone,
		ShippingAddress:     d.ShippingAddress,
		PaymentMethod:       domain.PaymentMethod(d.PaymentMethod),
		Savings:             savings,
		AdminDiscount:       adminDiscount,
		AdminDiscountReason: cloneString(d.AdminDiscountReason),
		PromoCodeID:         cloneString(d.PromoCodeID),
		PromoCode:           cloneString(d.PromoCode),
		PromoDiscount:       promoDiscount,
		ItemsEdited:         d.ItemsEdited,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
		Items:               make([]domain.OrderItem, 0, len(d.Items)),
	}
	for _, itemDoc := range d.Items {
		item, err := itemDoc.toDomain(id)
		if err != nil {
			return domain.Order{}, err
		}
		order.Items = append(order.Items, item)
	}
	return order, nil
}

func newItemDocument(item domain.OrderItem) itemDocument {
	doc := itemDocument{
		ID:             item.ID,
		ProductID:      item.ProductID,
		ProductName:    item.ProductName,
		Quantity:       item.Quantity,
		Price:          item.Price.String(),
		PriceEdited:    item.PriceEdited,
		QuantityEdited: item.QuantityEdited,
		AdminAdded:     item.AdminAdded,
		CreatedAt:      item.CreatedAt.UTC(),
		UpdatedAt:      item.UpdatedAt.UTC(),
	}
	if len(item.OriginalValues) > 0 {
		doc.OriginalValues = make(map[string]auditDocument, len(item.OriginalValues))
		for field, entry := range item.OriginalValues {
			doc.OriginalValues[string(field)] = auditDocument{PriorValue: entry.PriorValue.String(), Note: entry.Note}
		}
	}
	return doc
}

func (d itemDocument) toDomain(orderID string) (domain.OrderItem, error) {
	price, err := parseDecimal("items.price", d.Price)
	if err != nil {
		return domain.OrderItem{}, err
	}
	item := domain.OrderItem{
		ID:             d.ID,
		OrderID:        orderID,
		ProductID:      d.ProductID,
		ProductName:    d.ProductName,
		Quantity:       d.Quantity,
		Price:          price,
		PriceEdited:    d.PriceEdited,
		QuantityEdited: d.QuantityEdited,
		AdminAdded:     d.AdminAdded,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if len(d.OriginalValues) > 0 {
		item.OriginalValues = make(domain.OriginalValues, len(d.OriginalValues))
		for field, entry := range d.OriginalValues {
			prior, err := parseDecimal("items.originalValues."+field, entry.PriorValue)
			if err != nil {
				return domain.OrderItem{}, err
			}
			item.OriginalValues[domain.AuditField(field)] = domain.AuditEntry{PriorValue: prior, Note: entry.Note}
		}
	}
	return item, nil
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Name:            product.Name,
		Price:           product.Price.String(),
		CompareAtPrice:  decimalString(product.CompareAtPrice),
		Stock:           product.Stock,
		UseStock:        product.UseStock,
		IsArchived:      product.IsArchived,
		HidePrice:       product.HidePrice,
		NegotiablePrice: product.NegotiablePrice,
	}
}

func (d productDocument) toDomain(id string) (domain.Product, error) {
	price, err := parseDecimal("price", d.Price)
	if err != nil {
		return domain.Product{}, err
	}
	compareAt, err := parseDecimalPtr("compareAtPrice", d.CompareAtPrice)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:              id,
		Name:            d.Name,
		Price:           price,
		CompareAtPrice:  compareAt,
		Stock:           d.Stock,
		UseStock:        d.UseStock,
		IsArchived:      d.IsArchived,
		HidePrice:       d.HidePrice,
		NegotiablePrice: d.NegotiablePrice,
	}, nil
}

func newPromoCodeDocument(promo domain.PromoCode) promoCodeDocument {
	doc := promoCodeDocument{
		Code:            promo.Code,
		CodeKey:         promoCodeKey(promo.Code),
		DiscountType:    string(promo.DiscountType),
		DiscountAmount:  promo.DiscountAmount.String(),
		DiscountPercent: promo.DiscountPercent.String(),
		IsActive:        promo.IsActive,
		UsedCount:       promo.UsedCount,
		MinOrderAmount:  decimalString(promo.MinOrderAmount),
		Exclusive:       promo.Exclusive,
		ExcludedUserIDs: append([]string(nil), promo.ExcludedUserIDs...),
	}
	if promo.ExpiresAt != nil {
		expires := promo.ExpiresAt.UTC()
		doc.ExpiresAt = &expires
	}
	if promo.MaxUses != nil {
		maxUses := *promo.MaxUses
		doc.MaxUses = &maxUses
	}
	return doc
}

func (d promoCodeDocument) toDomain(id string) (domain.PromoCode, error) {
	amount, err := parseDecimal("discountAmount", d.DiscountAmount)
	if err != nil {
		return domain.PromoCode{}, err
	}
	percent, err := parseDecimal("discountPercent", d.DiscountPercent)
	if err != nil {
		return domain.PromoCode{}, err
	}
	minAmount, err := parseDecimalPtr("minOrderAmount", d.MinOrderAmount)
	if err != nil {
		return domain.PromoCode{}, err
	}
	return domain.PromoCode{
		ID:              id,
		Code:            d.Code,
		DiscountType:    domain.DiscountType(d.DiscountType),
		DiscountAmount:  amount,
		DiscountPercent: percent,
		IsActive:        d.IsActive,
		ExpiresAt:       d.ExpiresAt,
		MaxUses:         d.MaxUses,
		UsedCount:       d.UsedCount,
		MinOrderAmount:  minAmount,
		Exclusive:       d.Exclusive,
		ExcludedUserIDs: append([]string(nil), d.ExcludedUserIDs...),
	}, nil
}

func newAssignmentDocument(assignment domain.PromoAssignment) assignmentDocument {
	return assignmentDocument{
		PromoCodeID: assignment.PromoCodeID,
		UserID:      assignment.UserID,
		Used:        assignment.Used,
		UsedAt:      assignment.UsedAt,
	}
}

func (d assignmentDocument) toDomain(id string) domain.PromoAssignment {
	return domain.PromoAssignment{
		ID:          id,
		PromoCodeID: d.PromoCodeID,
		UserID:      d.UserID,
		Used:        d.Used,
		UsedAt:      d.UsedAt,
	}
}

func newHistoryDocument(entry domain.OrderStatusHistory) historyDocument {
	return historyDocument{
		OrderID:        entry.OrderID,
		PreviousStatus: string(entry.PreviousStatus),
		NewStatus:      string(entry.NewStatus),
		Note:           entry.Note,
		ActorID:        entry.ActorID,
		CreatedAt:      entry.CreatedAt.UTC(),
	}
}

func (d historyDocument) toDomain(id string) domain.OrderStatusHistory {
	return domain.OrderStatusHistory{
		ID:             id,
		OrderID:        d.OrderID,
		PreviousStatus: domain.OrderStatus(d.PreviousStatus),
		NewStatus:      domain.OrderStatus(d.NewStatus),
		Note:           d.Note,
		ActorID:        d.ActorID,
		CreatedAt:      d.CreatedAt,
	}
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("firestore: decode %s: %w", field, err)
	}
	return parsed, nil
}

func parseDecimalPtr(field string, value *string) (*decimal.Decimal, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := parseDecimal(field, *value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func decimalString(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	s := value.String()
	return &s
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
