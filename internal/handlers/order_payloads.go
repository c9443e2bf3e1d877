package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/services"
)

// Money leaves the API as fixed two-decimal strings.
type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                  string        `json:"id"`
	Status              string        `json:"status"`
	CustomerID          string        `json:"customerId"`
	RecipientName       string        `json:"recipientName,omitempty"`
	Phone               string        `json:"phone,omitempty"`
	ShippingAddress     string        `json:"shippingAddress,omitempty"`
	PaymentMethod       string        `json:"paymentMethod"`
	Savings             string        `json:"savings"`
	AdminDiscount       *string       `json:"adminDiscount,omitempty"`
	AdminDiscountReason *string       `json:"adminDiscountReason,omitempty"`
	PromoCodeID         *string       `json:"promoCodeId,omitempty"`
	PromoCode           *string       `json:"promoCode,omitempty"`
	PromoDiscount       *string       `json:"promoDiscount,omitempty"`
	ItemsEdited         bool          `json:"itemsEdited"`
	Items               []itemPayload `json:"items"`
	Totals              totalsPayload `json:"totals"`
	CreatedAt           string        `json:"createdAt"`
	UpdatedAt           string        `json:"updatedAt"`
}

type itemPayload struct {
	ID             string                  `json:"id"`
	ProductID      string                  `json:"productId"`
	ProductName    string                  `json:"productName"`
	Quantity       int                     `json:"quantity"`
	Price          string                  `json:"price"`
	LineTotal      string                  `json:"lineTotal"`
	PriceEdited    bool                    `json:"priceEdited"`
	QuantityEdited bool                    `json:"quantityEdited"`
	AdminAdded     bool                    `json:"adminAdded"`
	OriginalValues map[string]auditPayload `json:"originalValues,omitempty"`
}

type auditPayload struct {
	PriorValue string `json:"priorValue"`
	Note       string `json:"note,omitempty"`
}

type totalsPayload struct {
	Subtotal       string `json:"subtotal"`
	AdminDiscount  string `json:"adminDiscount"`
	PromoDiscount  string `json:"promoDiscount"`
	PromoEstimated bool   `json:"promoEstimated"`
	Total          string `json:"total"`
}

type historyResponse struct {
	Items []historyPayload `json:"items"`
}

type historyPayload struct {
	ID             string `json:"id"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	NewStatus      string `json:"newStatus"`
	Note           string `json:"note,omitempty"`
	ActorID        string `json:"actorId,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

func buildOrderPayload(view services.OrderView) orderPayload {
	order := view.Order
	payload := orderPayload{
		ID:                  order.ID,
		Status:              string(order.Status),
		CustomerID:          order.CustomerID,
		RecipientName:       order.RecipientName,
		Phone:               order.Phone,
		ShippingAddress:     order.ShippingAddress,
		PaymentMethod:       string(order.PaymentMethod),
		Savings:             money(order.Savings),
		AdminDiscount:       moneyPtr(order.AdminDiscount),
		AdminDiscountReason: order.AdminDiscountReason,
		PromoCodeID:         order.PromoCodeID,
		PromoCode:           order.PromoCode,
		PromoDiscount:       moneyPtr(order.PromoDiscount),
		ItemsEdited:         order.ItemsEdited,
		Items:               make([]itemPayload, 0, len(order.Items)),
		Totals: totalsPayload{
			Subtotal:       money(view.Totals.Subtotal),
			AdminDiscount:  money(view.Totals.AdminDiscount),
			PromoDiscount:  money(view.Totals.PromoDiscount),
			PromoEstimated: view.Totals.PromoEstimated,
			Total:          money(view.Totals.Total),
		},
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, buildItemPayload(item))
	}
	return payload
}

func buildItemPayload(item domain.OrderItem) itemPayload {
	payload := itemPayload{
		ID:             item.ID,
		ProductID:      item.ProductID,
		ProductName:    item.ProductName,
		Quantity:       item.Quantity,
		Price:          money(item.Price),
		LineTotal:      money(item.LineTotal()),
		PriceEdited:    item.PriceEdited,
		QuantityEdited: item.QuantityEdited,
		AdminAdded:     item.AdminAdded,
	}
	if len(item.OriginalValues) > 0 {
		payload.OriginalValues = make(map[string]auditPayload, len(item.OriginalValues))
		for field, entry := range item.OriginalValues {
			prior := entry.PriorValue.String()
			if field == domain.AuditFieldPrice {
				prior = money(entry.PriorValue)
			}
			payload.OriginalValues[string(field)] = auditPayload{PriorValue: prior, Note: entry.Note}
		}
	}
	return payload
}

func buildHistoryPayload(entry domain.OrderStatusHistory) historyPayload {
	return historyPayload{
		ID:             entry.ID,
		PreviousStatus: string(entry.PreviousStatus),
		NewStatus:      string(entry.NewStatus),
		Note:           entry.Note,
		ActorID:        entry.ActorID,
		CreatedAt:      formatTime(entry.CreatedAt),
	}
}

func money(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func moneyPtr(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	s := money(*value)
	return &s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
