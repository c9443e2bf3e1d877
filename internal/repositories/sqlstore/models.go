package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

type orderRecord struct {
	ID                  string           `gorm:"primaryKey;size:64"`
	Status              string           `gorm:"size:32;not null;index"`
	CustomerID          string           `gorm:"size:128;not null;index"`
	RecipientName       string           `gorm:"size:255"`
	Phone               string           `gorm:"size:64"`
	ShippingAddress     string           `gorm:"size:1024"`
	PaymentMethod       string           `gorm:"size:32;not null"`
	Savings             decimal.Decimal  `gorm:"type:decimal(14,2);not null"`
	AdminDiscount       *decimal.Decimal `gorm:"type:decimal(14,2)"`
	AdminDiscountReason *string          `gorm:"size:1024"`
	PromoCodeID         *string          `gorm:"size:64;index"`
	PromoCode           *string          `gorm:"size:64"`
	PromoDiscount       *decimal.Decimal `gorm:"type:decimal(14,2)"`
	ItemsEdited         bool             `gorm:"not null"`
	CreatedAt           time.Time        `gorm:"autoCreateTime:false;not null"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime:false;not null"`
}

func (orderRecord) TableName() string { return "orders" }

// orderHeaderColumns are written by OrderGateway.Update; items and identity are left untouched.
var orderHeaderColumns = []string{
	"status", "customer_id", "recipient_name", "phone", "shipping_address", "payment_method",
	"savings", "admin_discount", "admin_discount_reason", "promo_code_id", "promo_code",
	"promo_discount", "items_edited", "updated_at",
}

type orderItemRecord struct {
	ID             string          `gorm:"primaryKey;size:64"`
	OrderID        string          `gorm:"size:64;not null;index:idx_order_items_order"`
	ProductID      string          `gorm:"size:64;not null"`
	ProductName    string          `gorm:"size:255"`
	Quantity       int             `gorm:"not null"`
	Price          decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	PriceEdited    bool            `gorm:"not null"`
	QuantityEdited bool            `gorm:"not null"`
	AdminAdded     bool            `gorm:"not null"`
	OriginalValues auditColumn     `gorm:"type:json"`
	CreatedAt      time.Time       `gorm:"autoCreateTime:false;not null"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime:false;not null"`
}

func (orderItemRecord) TableName() string { return "order_items" }

type productRecord struct {
	ID              string           `gorm:"primaryKey;size:64"`
	Name            string           `gorm:"size:255;not null"`
	Price           decimal.Decimal  `gorm:"type:decimal(14,2);not null"`
	CompareAtPrice  *decimal.Decimal `gorm:"type:decimal(14,2)"`
	Stock           int              `gorm:"not null"`
	UseStock        bool             `gorm:"not null"`
	IsArchived      bool             `gorm:"not null"`
	HidePrice       bool             `gorm:"not null"`
	NegotiablePrice bool             `gorm:"not null"`
}

func (productRecord) TableName() string { return "products" }

type promoCodeRecord struct {
	ID              string           `gorm:"primaryKey;size:64"`
	Code            string           `gorm:"size:64;not null;uniqueIndex"`
	DiscountType    string           `gorm:"size:16;not null"`
	DiscountAmount  decimal.Decimal  `gorm:"type:decimal(14,2);not null"`
	DiscountPercent decimal.Decimal  `gorm:"type:decimal(5,2);not null"`
	IsActive        bool             `gorm:"not null"`
	ExpiresAt       *time.Time       `gorm:""`
	MaxUses         *int             `gorm:""`
	UsedCount       int              `gorm:"not null"`
	MinOrderAmount  *decimal.Decimal `gorm:"type:decimal(14,2)"`
	Exclusive       bool             `gorm:"not null"`
	ExcludedUserIDs stringListColumn `gorm:"type:json"`
}

func (promoCodeRecord) TableName() string { return "promo_codes" }

type promoAssignmentRecord struct {
	ID          string     `gorm:"primaryKey;size:64"`
	PromoCodeID string     `gorm:"size:64;not null;uniqueIndex:idx_assignment_user_promo,priority:2"`
	UserID      string     `gorm:"size:128;not null;uniqueIndex:idx_assignment_user_promo,priority:1"`
	Used        bool       `gorm:"not null"`
	UsedAt      *time.Time `gorm:""`
}

func (promoAssignmentRecord) TableName() string { return "promo_assignments" }

type historyRecord struct {
	ID             string    `gorm:"primaryKey;size:64"`
	OrderID        string    `gorm:"size:64;not null;index:idx_history_order_created,priority:1"`
	PreviousStatus string    `gorm:"size:32"`
	NewStatus      string    `gorm:"size:32;not null"`
	Note           string    `gorm:"size:1024"`
	ActorID        string    `gorm:"size:128"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false;not null;index:idx_history_order_created,priority:2"`
}

func (historyRecord) TableName() string { return "order_status_history" }

// auditColumn stores OriginalValues as JSON with decimal strings.
type auditColumn map[string]auditValue

type auditValue struct {
	PriorValue decimal.Decimal `json:"priorValue"`
	Note       string          `json:"note,omitempty"`
}

// Value implements driver.Valuer.
func (c auditColumn) Value() (driver.Value, error) {
	if len(c) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(map[string]auditValue(c))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (c *auditColumn) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil || data == nil {
		*c = nil
		return err
	}
	var decoded map[string]auditValue
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("sqlstore: decode original values: %w", err)
	}
	*c = decoded
	return nil
}

// stringListColumn stores a string slice as a JSON array.
type stringListColumn []string

// Value implements driver.Valuer.
func (c stringListColumn) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (c *stringListColumn) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil || data == nil {
		*c = nil
		return err
	}
	var decoded []string
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("sqlstore: decode string list: %w", err)
	}
	*c = decoded
	return nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("sqlstore: unsupported json column type")
	}
}

func newOrderRecord(order domain.Order) orderRecord {
	return orderRecord{
		ID:                  order.ID,
		Status:              string(order.Status),
		CustomerID:          order.CustomerID,
		RecipientName:       order.RecipientName,
		Phone:               order.Phone,
		ShippingAddress:     order.ShippingAddress,
		PaymentMethod:       string(order.PaymentMethod),
		Savings:             order.Savings,
		AdminDiscount:       order.AdminDiscount,
		AdminDiscountReason: order.AdminDiscountReason,
		PromoCodeID:         order.PromoCodeID,
		PromoCode:           order.PromoCode,
		PromoDiscount:       order.PromoDiscount,
		ItemsEdited:         order.ItemsEdited,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
	}
}

func (r orderRecord) toDomain(items []orderItemRecord) domain.Order {
	order := domain.Order{
		ID:                  r.ID,
		Status:              domain.OrderStatus(r.Status),
		CustomerID:          r.CustomerID,
		RecipientName:       r.RecipientName,
		Phone:               r.Phone,
		ShippingAddress:     r.ShippingAddress,
		PaymentMethod:       domain.PaymentMethod(r.PaymentMethod),
		Savings:             r.Savings,
		AdminDiscount:       r.AdminDiscount,
		AdminDiscountReason: r.AdminDiscountReason,
		PromoCodeID:         r.PromoCodeID,
		PromoCode:           r.PromoCode,
		PromoDiscount:       r.PromoDiscount,
		ItemsEdited:         r.ItemsEdited,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		Items:               make([]domain.OrderItem, 0, len(items)),
	}
	for _, item := range items {
		order.Items = append(order.Items, item.toDomain())
	}
	return order
}

func newOrderItemRecord(item domain.OrderItem) orderItemRecord {
	record := orderItemRecord{
		ID:             item.ID,
		OrderID:        item.OrderID,
		ProductID:      item.ProductID,
		ProductName:    item.ProductName,
		Quantity:       item.Quantity,
		Price:          item.Price,
		PriceEdited:    item.PriceEdited,
		QuantityEdited: item.QuantityEdited,
		AdminAdded:     item.AdminAdded,
		CreatedAt:      item.CreatedAt.UTC(),
		UpdatedAt:      item.UpdatedAt.UTC(),
	}
	if len(item.OriginalValues) > 0 {
		record.OriginalValues = make(auditColumn, len(item.OriginalValues))
		for field, entry := range item.OriginalValues {
			record.OriginalValues[string(field)] = auditValue{PriorValue: entry.PriorValue, Note: entry.Note}
		}
	}
	return record
}

func (r orderItemRecord) toDomain() domain.OrderItem {
	item := domain.OrderItem{
		ID:             r.ID,
		OrderID:        r.OrderID,
		ProductID:      r.ProductID,
		ProductName:    r.ProductName,
		Quantity:       r.Quantity,
		Price:          r.Price,
		PriceEdited:    r.PriceEdited,
		QuantityEdited: r.QuantityEdited,
		AdminAdded:     r.AdminAdded,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if len(r.OriginalValues) > 0 {
		item.OriginalValues = make(domain.OriginalValues, len(r.OriginalValues))
		for field, entry := range r.OriginalValues {
			item.OriginalValues[domain.AuditField(field)] = domain.AuditEntry{PriorValue: entry.PriorValue, Note: entry.Note}
		}
	}
	return item
}

func newProductRecord(product domain.Product) productRecord {
	return productRecord{
		ID:              product.ID,
		Name:            product.Name,
		Price:           product.Price,
		CompareAtPrice:  product.CompareAtPrice,
		Stock:           product.Stock,
		UseStock:        product.UseStock,
		IsArchived:      product.IsArchived,
		HidePrice:       product.HidePrice,
		NegotiablePrice: product.NegotiablePrice,
	}
}

func (r productRecord) toDomain() domain.Product {
	return domain.Product{
		ID:              r.ID,
		Name:            r.Name,
		Price:           r.Price,
		CompareAtPrice:  r.CompareAtPrice,
		Stock:           r.Stock,
		UseStock:        r.UseStock,
		IsArchived:      r.IsArchived,
		HidePrice:       r.HidePrice,
		NegotiablePrice: r.NegotiablePrice,
	}
}

func newPromoCodeRecord(promo domain.PromoCode) promoCodeRecord {
	return promoCodeRecord{
		ID:              promo.ID,
		Code:            promo.Code,
		DiscountType:    string(promo.DiscountType),
		DiscountAmount:  promo.DiscountAmount,
		DiscountPercent: promo.DiscountPercent,
		IsActive:        promo.IsActive,
		ExpiresAt:       promo.ExpiresAt,
		MaxUses:         promo.MaxUses,
		UsedCount:       promo.UsedCount,
		MinOrderAmount:  promo.MinOrderAmount,
		Exclusive:       promo.Exclusive,
		ExcludedUserIDs: stringListColumn(promo.ExcludedUserIDs),
	}
}

func (r promoCodeRecord) toDomain() domain.PromoCode {
	return domain.PromoCode{
		ID:              r.ID,
		Code:            r.Code,
		DiscountType:    domain.DiscountType(r.DiscountType),
		DiscountAmount:  r.DiscountAmount,
		DiscountPercent: r.DiscountPercent,
		IsActive:        r.IsActive,
		ExpiresAt:       r.ExpiresAt,
		MaxUses:         r.MaxUses,
		UsedCount:       r.UsedCount,
		MinOrderAmount:  r.MinOrderAmount,
		Exclusive:       r.Exclusive,
		ExcludedUserIDs: []string(r.ExcludedUserIDs),
	}
}

func (r promoAssignmentRecord) toDomain() domain.PromoAssignment {
	return domain.PromoAssignment{
		ID:          r.ID,
		PromoCodeID: r.PromoCodeID,
		UserID:      r.UserID,
		Used:        r.Used,
		UsedAt:      r.UsedAt,
	}
}

func newHistoryRecord(entry domain.OrderStatusHistory) historyRecord {
	return historyRecord{
		ID:             entry.ID,
		OrderID:        entry.OrderID,
		PreviousStatus: string(entry.PreviousStatus),
		NewStatus:      string(entry.NewStatus),
		Note:           entry.Note,
		ActorID:        entry.ActorID,
		CreatedAt:      entry.CreatedAt.UTC(),
	}
}

func (r historyRecord) toDomain() domain.OrderStatusHistory {
	return domain.OrderStatusHistory{
		ID:             r.ID,
		OrderID:        r.OrderID,
		PreviousStatus: domain.OrderStatus(r.PreviousStatus),
		NewStatus:      domain.OrderStatus(r.NewStatus),
		Note:           r.Note,
		ActorID:        r.ActorID,
		CreatedAt:      r.CreatedAt,
	}
}
