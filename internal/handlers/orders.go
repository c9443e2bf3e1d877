package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/auth"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/httpx"
	"github.com/Abdullah97825/Matjary-sub000/internal/services"
)

const (
	defaultPromoAttemptLimit  = 10
	defaultPromoAttemptWindow = time.Minute
)

// OrderHandlers exposes the order lifecycle to customers and admins.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	mutating    []func(http.Handler) http.Handler
	promoLimits rateLimiter
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithMutationMiddlewares wraps every state-changing route, after authentication.
func WithMutationMiddlewares(mw ...func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.mutating = append(h.mutating, mw...)
	}
}

// WithPromoAttemptLimit caps promo code attempts per actor within window. A non-positive limit disables it.
func WithPromoAttemptLimit(limit int, window time.Duration, clock func() time.Time) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.promoLimits = newAttemptLimiter(limit, window, clock)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:       authn,
		orders:      orders,
		promoLimits: newAttemptLimiter(defaultPromoAttemptLimit, defaultPromoAttemptWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleCustomer, auth.RoleAdmin))
	}
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/history", h.listHistory)

	r.Group(func(m chi.Router) {
		for _, mw := range h.mutating {
			if mw != nil {
				m.Use(mw)
			}
		}
		m.Post("/", h.placeOrder)
		m.Patch("/{orderID}", h.updateOrder)
		m.Post("/{orderID}:cancel", h.cancelOrder)
		m.Post("/{orderID}:promo", h.applyPromo)
		m.Delete("/{orderID}/promo", h.removePromo)
	})
}

type placeOrderRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	RecipientName   string `json:"recipientName"`
	Phone           string `json:"phone"`
	ShippingAddress string `json:"shippingAddress"`
	PromoCode       string `json:"promoCode"`
}

type itemUpdateRequest struct {
	ID       string           `json:"id"`
	Quantity *int             `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
	Note     string           `json:"note"`
}

type newItemRequest struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price"`
	Note      string           `json:"note"`
}

type updateOrderRequest struct {
	Status              *string             `json:"status"`
	StatusNote          string              `json:"statusNote"`
	Items               []itemUpdateRequest `json:"items"`
	NewItems            []newItemRequest    `json:"newItems"`
	RemovedItemIDs      []string            `json:"removedItemIds"`
	AdminDiscount       *decimal.Decimal    `json:"adminDiscount"`
	AdminDiscountReason *string             `json:"adminDiscountReason"`
}

type cancelOrderRequest struct {
	RestoreStock *bool  `json:"restoreStock"`
	Note         string `json:"note"`
}

type applyPromoRequest struct {
	Code string `json:"code"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	cmd := services.PlaceOrderCommand{
		Actor:           actor,
		RecipientName:   req.RecipientName,
		Phone:           req.Phone,
		ShippingAddress: req.ShippingAddress,
		PromoCode:       req.PromoCode,
		Lines:           make([]domain.CartLine, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		cmd.Lines = append(cmd.Lines, domain.CartLine{ProductID: strings.TrimSpace(item.ProductID), Quantity: item.Quantity})
	}

	view, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(view)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	view, err := h.orders.GetOrder(ctx, orderID, actor)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

func (h *OrderHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	entries, err := h.orders.ListHistory(ctx, orderID, actor)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	payload := historyResponse{Items: make([]historyPayload, 0, len(entries))}
	for _, entry := range entries {
		payload.Items = append(payload.Items, buildHistoryPayload(entry))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req updateOrderRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	cmd := services.UpdateOrderCommand{
		OrderID:             orderID,
		Actor:               actor,
		StatusNote:          req.StatusNote,
		RemovedItemIDs:      req.RemovedItemIDs,
		AdminDiscount:       req.AdminDiscount,
		AdminDiscountReason: req.AdminDiscountReason,
	}
	if req.Status != nil {
		status, ok := parseOrderStatus(*req.Status)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is not a known order status", http.StatusBadRequest).
				WithDetails(map[string]any{"field": "status"}))
			return
		}
		cmd.Status = &status
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.ItemUpdate{ItemID: item.ID, Quantity: item.Quantity, Price: item.Price, Note: item.Note})
	}
	for _, item := range req.NewItems {
		cmd.NewItems = append(cmd.NewItems, services.NewItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price, Note: item.Note})
	}

	view, err := h.orders.UpdateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		writeBadRequest(ctx, w, err)
		return
	}

	view, err := h.orders.CancelAcceptedOrder(ctx, services.CancelOrderCommand{
		OrderID:      orderID,
		Actor:        actor,
		RestoreStock: req.RestoreStock,
		Note:         req.Note,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

func (h *OrderHandlers) applyPromo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}
	if h.promoLimits != nil && !h.promoLimits.Allow(string(actor.Role)+":"+actor.ID) {
		httpx.WriteError(ctx, w, httpx.NewError("promo_rate_limited", "too many promo code attempts, try again later", http.StatusTooManyRequests))
		return
	}

	var req applyPromoRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	view, err := h.orders.ApplyPromoCode(ctx, services.ApplyPromoCodeCommand{OrderID: orderID, Actor: actor, Code: req.Code})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

func (h *OrderHandlers) removePromo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	view, err := h.orders.RemovePromoCode(ctx, services.RemovePromoCodeCommand{OrderID: orderID, Actor: actor})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

func (h *OrderHandlers) requireActor(ctx context.Context, w http.ResponseWriter) (domain.Actor, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return domain.Actor{}, false
	}
	actor, ok := auth.ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.ID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Actor{}, false
	}
	return actor, true
}

func orderIDParam(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

// writeOrderError maps service errors to HTTP responses, surfacing the context carried by typed errors.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var (
		fieldErr      *services.FieldError
		transitionErr *services.TransitionError
		stockErr      *services.StockShortageError
		archivedErr   *services.ArchivedProductsError
		promoErr      *services.PromoRejectedError
		discountErr   *services.DiscountExceedsSubtotalError
	)

	switch {
	case errors.As(err, &fieldErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fieldErr.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"field": fieldErr.Field, "reason": fieldErr.Message}))
	case errors.As(err, &discountErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", discountErr.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{
				"field":    "adminDiscount",
				"discount": discountErr.Discount.StringFixed(2),
				"subtotal": discountErr.Subtotal.StringFixed(2),
			}))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.As(err, &transitionErr):
		httpx.WriteError(ctx, w, httpx.NewError("order_illegal_transition", transitionErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{
				"from":   string(transitionErr.From),
				"to":     string(transitionErr.To),
				"role":   string(transitionErr.Role),
				"reason": transitionErr.Reason,
			}))
	case errors.Is(err, services.ErrOrderIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_illegal_transition", err.Error(), http.StatusConflict))
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("order_insufficient_stock", stockErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{
				"productId":   stockErr.ProductID,
				"productName": stockErr.ProductName,
				"available":   stockErr.Available,
				"required":    stockErr.Required,
			}))
	case errors.As(err, &archivedErr):
		httpx.WriteError(ctx, w, httpx.NewError("order_archived_products", archivedErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{"productIds": archivedErr.ProductIDs, "names": archivedErr.Names}))
	case errors.As(err, &promoErr):
		httpx.WriteError(ctx, w, httpx.NewError("order_promo_rejected", promoErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{"code": promoErr.Code, "reason": promoErr.Reason}))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvariantViolation):
		httpx.WriteError(ctx, w, httpx.NewError("order_invariant_violation", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderUnavailable), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("order_store_unavailable", "order storage temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
