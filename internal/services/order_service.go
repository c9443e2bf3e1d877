package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix   = "ord_"
	historyIDPrefix = "osh_"

	transitionResultOK       = "ok"
	transitionResultRejected = "rejected"
	transitionResultFailed   = "failed"

	orderPlacedNote = "Order placed"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Store       repositories.UnitOfWork
	Promos      PromoValidator
	Events      OrderEventPublisher
	Metrics     OrderMetrics
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	// Sanitizer cleans free text (notes, reasons) before it is stored.
	Sanitizer func(string) string
	// CancelRestoresStock is used when a cancel request does not say whether to restore stock.
	CancelRestoresStock bool
}

type orderService struct {
	store               repositories.UnitOfWork
	promos              PromoValidator
	mutator             *OrderItemMutator
	finalizer           *OrderFinalizer
	events              OrderEventPublisher
	metrics             OrderMetrics
	clock               func() time.Time
	newID               func() string
	logger              func(context.Context, string, map[string]any)
	sanitize            func(string) string
	cancelRestoresStock bool
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Store == nil {
		return nil, errors.New("order service: store is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utc := func() time.Time { return clock().UTC() }

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = strings.TrimSpace
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}

	promos := deps.Promos
	if promos == nil {
		promos = NewPromoValidator(utc)
	}

	return &orderService{
		store:               deps.Store,
		promos:              promos,
		mutator:             NewOrderItemMutator(utc, idGen),
		finalizer:           NewOrderFinalizer(promos, utc, metrics),
		events:              deps.Events,
		metrics:             metrics,
		clock:               utc,
		newID:               idGen,
		logger:              logger,
		sanitize:            sanitize,
		cancelRestoresStock: deps.CancelRestoresStock,
	}, nil
}

func defaultIDGenerator() string {
	return ulid.Make().String()
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (OrderView, error) {
	if err := validateActor(cmd.Actor); err != nil {
		return OrderView{}, err
	}
	lines, err := mergeCartLines(cmd.Lines)
	if err != nil {
		return OrderView{}, err
	}
	recipient := s.sanitize(cmd.RecipientName)
	phone := strings.TrimSpace(cmd.Phone)
	address := s.sanitize(cmd.ShippingAddress)
	switch {
	case recipient == "":
		return OrderView{}, invalidField("recipientName", "recipient name is required")
	case phone == "":
		return OrderView{}, invalidField("phone", "phone is required")
	case address == "":
		return OrderView{}, invalidField("shippingAddress", "shipping address is required")
	}

	now := s.clock()
	var view OrderView
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		ids := make([]string, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.ProductID)
		}
		products, err := tx.Products().FindMany(ctx, ids)
		if err != nil {
			return mapRepositoryError(err)
		}
		byID := make(map[string]domain.Product, len(products))
		for _, product := range products {
			byID[product.ID] = product
		}

		order := domain.Order{
			ID:              orderIDPrefix + s.newID(),
			Status:          domain.OrderStatusPending,
			CustomerID:      cmd.Actor.ID,
			RecipientName:   recipient,
			Phone:           phone,
			ShippingAddress: address,
			PaymentMethod:   domain.PaymentMethodPending,
			Savings:         decimal.Zero,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		archived := &ArchivedProductsError{}
		for _, line := range lines {
			product, ok := byID[line.ProductID]
			if !ok {
				return fmt.Errorf("%w: product %s not found", ErrOrderNotFound, line.ProductID)
			}
			if product.IsArchived {
				archived.ProductIDs = append(archived.ProductIDs, product.ID)
				archived.Names = append(archived.Names, product.Name)
				continue
			}
			if product.UseStock && product.Stock < line.Quantity {
				return &StockShortageError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.Stock,
					Required:    line.Quantity,
				}
			}
			if product.RequiresAdminReview() {
				order.Status = domain.OrderStatusAdminPending
			}
			if product.CompareAtPrice != nil && product.CompareAtPrice.GreaterThan(product.Price) {
				saving := product.CompareAtPrice.Sub(product.Price).Mul(decimal.NewFromInt(int64(line.Quantity)))
				order.Savings = order.Savings.Add(saving)
			}
			order.Items = append(order.Items, domain.OrderItem{
				ID:          orderItemIDPrefix + s.newID(),
				OrderID:     order.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				Price:       product.Price,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		if len(archived.ProductIDs) > 0 {
			return archived
		}

		var promo *domain.PromoCode
		if code := strings.TrimSpace(cmd.PromoCode); code != "" {
			validation, err := s.promos.Validate(ctx, tx.Promotions(), code, order.CustomerID, order.Subtotal())
			if err != nil {
				return err
			}
			if !validation.Valid {
				return &PromoRejectedError{Code: NormalizePromoCode(code), Reason: validation.Message}
			}
			attachPromo(&order, validation.Promo)
			promo = &validation.Promo
		}

		if err := tx.Orders().Insert(ctx, order); err != nil {
			return mapRepositoryError(err)
		}
		if err := tx.History().Append(ctx, domain.OrderStatusHistory{
			ID:        historyIDPrefix + s.newID(),
			OrderID:   order.ID,
			NewStatus: order.Status,
			Note:      orderPlacedNote,
			ActorID:   cmd.Actor.ID,
			CreatedAt: now,
		}); err != nil {
			return mapRepositoryError(err)
		}

		view = OrderView{Order: order, Totals: EstimateTotals(order, promo)}
		return nil
	})
	if err != nil {
		return OrderView{}, mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       view.Order.ID,
		CustomerID:    view.Order.CustomerID,
		CurrentStatus: string(view.Order.Status),
		ActorID:       cmd.Actor.ID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"items": len(view.Order.Items),
			"total": view.Totals.Total.StringFixed(moneyPlaces),
		},
	})
	return view, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor domain.Actor) (OrderView, error) {
	if err := validateActor(actor); err != nil {
		return OrderView{}, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderView{}, invalidField("orderId", "order id is required")
	}

	var view OrderView
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		order, err := s.loadOrder(ctx, tx, orderID, actor)
		if err != nil {
			return err
		}
		view, err = s.priced(ctx, tx, order)
		return err
	})
	if err != nil {
		return OrderView{}, mapRepositoryError(err)
	}
	return view, nil
}

func (s *orderService) ListHistory(ctx context.Context, orderID string, actor domain.Actor) ([]domain.OrderStatusHistory, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, invalidField("orderId", "order id is required")
	}

	var entries []domain.OrderStatusHistory
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if _, err := s.loadOrder(ctx, tx, orderID, actor); err != nil {
			return err
		}
		found, err := tx.History().ListByOrder(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err)
		}
		entries = found
		return nil
	})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return entries, nil
}

func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (OrderView, error) {
	if err := s.validateUpdate(cmd); err != nil {
		return OrderView{}, err
	}

	now := s.clock()
	statusNote := s.sanitize(cmd.StatusNote)
	var (
		view     OrderView
		previous domain.OrderStatus
		changed  bool
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		order, err := s.loadOrder(ctx, tx, cmd.OrderID, cmd.Actor)
		if err != nil {
			return err
		}
		previous = order.Status

		hasItemChanges := cmd.HasItemChanges()
		target := order.Status
		if cmd.Status != nil {
			target = *cmd.Status
		}
		changed = target != order.Status

		if hasItemChanges && !itemsEditable(order.Status) {
			decision := ValidateTransition(TransitionRequest{
				Current:        order.Status,
				ItemsEdited:    order.ItemsEdited,
				Requested:      target,
				Role:           cmd.Actor.Role,
				HasItemChanges: true,
			})
			return &TransitionError{From: order.Status, To: target, Role: cmd.Actor.Role, Reason: decision.Message}
		}
		if changed {
			decision := ValidateTransition(TransitionRequest{
				Current:        order.Status,
				ItemsEdited:    order.ItemsEdited,
				Requested:      target,
				Role:           cmd.Actor.Role,
				HasItemChanges: hasItemChanges,
			})
			if !decision.Valid {
				return &TransitionError{From: order.Status, To: target, Role: cmd.Actor.Role, Reason: decision.Message}
			}
		}

		batch := s.mutator.Begin(order)
		if hasItemChanges {
			if err := s.applyItemChanges(ctx, tx, batch, cmd); err != nil {
				return err
			}
		}
		working := batch.Order()
		if len(working.Items) == 0 {
			return invalidField("removedItemIds", "an order must keep at least one item")
		}

		if cmd.AdminDiscount != nil {
			if order.Status.Terminal() || order.Status == domain.OrderStatusAccepted {
				return fmt.Errorf("%w: admin discount cannot change while the order is %s", ErrOrderConflict, order.Status)
			}
			setAdminDiscount(&working, *cmd.AdminDiscount, s.sanitizeReason(cmd.AdminDiscountReason))
		} else if cmd.AdminDiscountReason != nil && working.AdminDiscount != nil {
			working.AdminDiscountReason = s.sanitizeReason(cmd.AdminDiscountReason)
		}
		if working.AdminDiscount != nil {
			subtotal := working.Subtotal()
			if working.AdminDiscount.GreaterThan(subtotal) {
				return &DiscountExceedsSubtotalError{Discount: *working.AdminDiscount, Subtotal: subtotal}
			}
		}

		historyNote := statusNote
		if changed {
			if target == domain.OrderStatusAccepted {
				result, err := s.finalizer.Finalize(ctx, tx, working)
				if err != nil {
					return err
				}
				working = result.Order
				historyNote = joinNotes(statusNote, result.SystemNote)
			}
			if order.Status == domain.OrderStatusCustomerPending && target == domain.OrderStatusPending {
				// The customer confirmed the quoted pricing.
				working.ItemsEdited = false
			}
			working.Status = target
		}

		if err := persistItemChanges(ctx, tx, working.ID, batch.Changes()); err != nil {
			return err
		}
		working.UpdatedAt = now
		if err := tx.Orders().Update(ctx, working); err != nil {
			return mapRepositoryError(err)
		}
		if changed {
			if err := tx.History().Append(ctx, domain.OrderStatusHistory{
				ID:             historyIDPrefix + s.newID(),
				OrderID:        working.ID,
				PreviousStatus: previous,
				NewStatus:      target,
				Note:           historyNote,
				ActorID:        cmd.Actor.ID,
				CreatedAt:      now,
			}); err != nil {
				return mapRepositoryError(err)
			}
		}

		view, err = s.priced(ctx, tx, working)
		return err
	})
	if err != nil {
		if changed {
			result := transitionResultFailed
			if errors.Is(err, ErrOrderIllegalTransition) {
				result = transitionResultRejected
			}
			s.metrics.ObserveTransition(previous, *cmd.Status, result)
		}
		return OrderView{}, mapRepositoryError(err)
	}

	if changed {
		s.metrics.ObserveTransition(previous, view.Order.Status, transitionResultOK)
		s.publishStatusChange(ctx, view.Order, previous, cmd.Actor, now, nil)
	}
	return view, nil
}

func (s *orderService) CancelAcceptedOrder(ctx context.Context, cmd CancelOrderCommand) (OrderView, error) {
	if err := validateActor(cmd.Actor); err != nil {
		return OrderView{}, err
	}
	if !cmd.Actor.IsAdmin() {
		return OrderView{}, fmt.Errorf("%w: only admins can cancel accepted orders", ErrOrderForbidden)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderView{}, invalidField("orderId", "order id is required")
	}

	restore := s.cancelRestoresStock
	if cmd.RestoreStock != nil {
		restore = *cmd.RestoreStock
	}
	note := s.sanitize(cmd.Note)
	now := s.clock()

	var view OrderView
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		order, err := s.loadOrder(ctx, tx, orderID, cmd.Actor)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusAccepted {
			return fmt.Errorf("%w: only %s orders can be cancelled through this operation, order %s is %s",
				ErrOrderInvariantViolation, domain.OrderStatusAccepted, order.ID, order.Status)
		}

		if restore {
			products := tx.Products()
			for _, item := range order.Items {
				product, err := products.FindByID(ctx, item.ProductID)
				if err != nil {
					return mapRepositoryError(err)
				}
				if !product.UseStock {
					continue
				}
				if err := products.IncrementStock(ctx, product.ID, item.Quantity); err != nil {
					return mapRepositoryError(err)
				}
			}
		}

		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = now
		if err := tx.Orders().Update(ctx, order); err != nil {
			return mapRepositoryError(err)
		}
		if err := tx.History().Append(ctx, domain.OrderStatusHistory{
			ID:             historyIDPrefix + s.newID(),
			OrderID:        order.ID,
			PreviousStatus: domain.OrderStatusAccepted,
			NewStatus:      domain.OrderStatusCancelled,
			Note:           note,
			ActorID:        cmd.Actor.ID,
			CreatedAt:      now,
		}); err != nil {
			return mapRepositoryError(err)
		}

		view, err = s.priced(ctx, tx, order)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrOrderInvariantViolation) && !errors.Is(err, ErrOrderNotFound) {
			s.metrics.ObserveTransition(domain.OrderStatusAccepted, domain.OrderStatusCancelled, transitionResultFailed)
		}
		return OrderView{}, mapRepositoryError(err)
	}

	s.metrics.ObserveTransition(domain.OrderStatusAccepted, domain.OrderStatusCancelled, transitionResultOK)
	s.publishStatusChange(ctx, view.Order, domain.OrderStatusAccepted, cmd.Actor, now, map[string]any{
		"restoreStock": restore,
	})
	return view, nil
}

func (s *orderService) ApplyPromoCode(ctx context.Context, cmd ApplyPromoCodeCommand) (OrderView, error) {
	if err := validateActor(cmd.Actor); err != nil {
		return OrderView{}, err
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderView{}, invalidField("orderId", "order id is required")
	}
	if NormalizePromoCode(cmd.Code) == "" {
		return OrderView{}, invalidField("code", "promo code is required")
	}

	var view OrderView
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		order, err := s.loadOrder(ctx, tx, orderID, cmd.Actor)
		if err != nil {
			return err
		}
		if !promoEditable(order.Status) {
			return fmt.Errorf("%w: promo codes cannot change while the order is %s", ErrOrderConflict, order.Status)
		}
		if order.PromoCodeID != nil {
			return fmt.Errorf("%w: promo already applied", ErrOrderConflict)
		}

		validation, err := s.promos.Validate(ctx, tx.Promotions(), cmd.Code, order.CustomerID, order.Subtotal())
		if err != nil {
			return err
		}
		if !validation.Valid {
			return &PromoRejectedError{Code: NormalizePromoCode(cmd.Code), Reason: validation.Message}
		}

		attachPromo(&order, validation.Promo)
		order.UpdatedAt = s.clock()
		if err := tx.Orders().Update(ctx, order); err != nil {
			return mapRepositoryError(err)
		}
		view = OrderView{Order: order, Totals: EstimateTotals(order, &validation.Promo)}
		return nil
	})
	if err != nil {
		return OrderView{}, mapRepositoryError(err)
	}
	return view, nil
}

func (s *orderService) RemovePromoCode(ctx context.Context, cmd RemovePromoCodeCommand) (OrderView, error) {
	if err := validateActor(cmd.Actor); err != nil {
		return OrderView{}, err
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderView{}, invalidField("orderId", "order id is required")
	}

	var view OrderView
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		order, err := s.loadOrder(ctx, tx, orderID, cmd.Actor)
		if err != nil {
			return err
		}
		if order.PromoCodeID == nil {
			view = OrderView{Order: order, Totals: EstimateTotals(order, nil)}
			return nil
		}
		if !promoEditable(order.Status) {
			return fmt.Errorf("%w: promo codes cannot change while the order is %s", ErrOrderConflict, order.Status)
		}

		order.PromoCodeID = nil
		order.PromoCode = nil
		order.PromoDiscount = nil
		order.UpdatedAt = s.clock()
		if err := tx.Orders().Update(ctx, order); err != nil {
			return mapRepositoryError(err)
		}
		view = OrderView{Order: order, Totals: EstimateTotals(order, nil)}
		return nil
	})
	if err != nil {
		return OrderView{}, mapRepositoryError(err)
	}
	return view, nil
}

func (s *orderService) validateUpdate(cmd UpdateOrderCommand) error {
	if err := validateActor(cmd.Actor); err != nil {
		return err
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		return invalidField("orderId", "order id is required")
	}
	if cmd.Status != nil && !cmd.Status.Valid() {
		return invalidField("status", "unknown status %q", *cmd.Status)
	}
	if cmd.Status == nil && !cmd.HasItemChanges() && cmd.AdminDiscount == nil && cmd.AdminDiscountReason == nil {
		return fmt.Errorf("%w: request does not change anything", ErrOrderInvalidInput)
	}

	admin := cmd.Actor.IsAdmin()
	for i, update := range cmd.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(update.ItemID) == "" {
			return invalidField(field+".id", "item id is required")
		}
		if update.Quantity == nil && update.Price == nil {
			return invalidField(field, "quantity or price is required")
		}
		if update.Quantity != nil && *update.Quantity < 1 {
			return invalidField(field+".quantity", "quantity must be at least 1")
		}
		if update.Price != nil {
			if !admin {
				return fmt.Errorf("%w: only admins can change item prices", ErrOrderForbidden)
			}
			if update.Price.IsNegative() {
				return invalidField(field+".price", "price must not be negative")
			}
			if !wholeCents(*update.Price) {
				return invalidField(field+".price", "price must have at most %d decimal places", moneyPlaces)
			}
		}
	}
	if len(cmd.NewItems) > 0 && !admin {
		return fmt.Errorf("%w: only admins can add items to an order", ErrOrderForbidden)
	}
	for i, item := range cmd.NewItems {
		field := fmt.Sprintf("newItems[%d]", i)
		if strings.TrimSpace(item.ProductID) == "" {
			return invalidField(field+".productId", "product id is required")
		}
		if item.Quantity < 1 {
			return invalidField(field+".quantity", "quantity must be at least 1")
		}
		if item.Price != nil && item.Price.IsNegative() {
			return invalidField(field+".price", "price must not be negative")
		}
		if item.Price != nil && !wholeCents(*item.Price) {
			return invalidField(field+".price", "price must have at most %d decimal places", moneyPlaces)
		}
	}
	for i, id := range cmd.RemovedItemIDs {
		if strings.TrimSpace(id) == "" {
			return invalidField(fmt.Sprintf("removedItemIds[%d]", i), "item id is required")
		}
	}
	if cmd.AdminDiscount != nil || cmd.AdminDiscountReason != nil {
		if !admin {
			return fmt.Errorf("%w: only admins can set an admin discount", ErrOrderForbidden)
		}
		if cmd.AdminDiscount != nil && cmd.AdminDiscount.IsNegative() {
			return invalidField("adminDiscount", "admin discount must not be negative")
		}
	}
	return nil
}

// applyItemChanges runs updates, additions and removals in that order. Items missing from the
// order are skipped so the rest of the batch still applies.
func (s *orderService) applyItemChanges(ctx context.Context, tx repositories.Tx, batch *ItemEditBatch, cmd UpdateOrderCommand) error {
	orderID := batch.original.ID
	for _, update := range cmd.Items {
		note := s.sanitize(update.Note)
		if update.Price != nil {
			if err := batch.EditPrice(update.ItemID, *update.Price, note); err != nil {
				if s.skipMissing(ctx, err, orderID, update.ItemID, "price") {
					continue
				}
				return err
			}
		}
		if update.Quantity != nil {
			if err := batch.EditQuantity(update.ItemID, *update.Quantity, note); err != nil {
				if s.skipMissing(ctx, err, orderID, update.ItemID, "quantity") {
					continue
				}
				return err
			}
		}
	}

	for _, item := range cmd.NewItems {
		product, err := tx.Products().FindByID(ctx, strings.TrimSpace(item.ProductID))
		if err != nil {
			return mapRepositoryError(err)
		}
		price := product.Price
		if item.Price != nil {
			price = *item.Price
		}
		if _, err := batch.AddItem(product, item.Quantity, price, s.sanitize(item.Note)); err != nil {
			return err
		}
	}

	for _, id := range cmd.RemovedItemIDs {
		if err := batch.RemoveItem(id); err != nil {
			if s.skipMissing(ctx, err, orderID, id, "remove") {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *orderService) skipMissing(ctx context.Context, err error, orderID, itemID, change string) bool {
	if !errors.Is(err, ErrOrderNotFound) {
		return false
	}
	s.logger(ctx, "order.item.skipped", map[string]any{
		"level":  "warn",
		"order":  orderID,
		"item":   itemID,
		"change": change,
		"reason": err.Error(),
	})
	return true
}

func persistItemChanges(ctx context.Context, tx repositories.Tx, orderID string, changes ItemChanges) error {
	orders := tx.Orders()
	for _, id := range changes.Deleted {
		if err := orders.DeleteItem(ctx, orderID, id); err != nil {
			return mapRepositoryError(err)
		}
	}
	for _, item := range changes.Updated {
		if err := orders.UpdateItem(ctx, item); err != nil {
			return mapRepositoryError(err)
		}
	}
	for _, item := range changes.Inserted {
		if err := orders.InsertItem(ctx, item); err != nil {
			return mapRepositoryError(err)
		}
	}
	return nil
}

// loadOrder reads the order and hides other customers' orders behind not found.
func (s *orderService) loadOrder(ctx context.Context, tx repositories.Tx, orderID string, actor domain.Actor) (domain.Order, error) {
	order, err := tx.Orders().FindByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, mapRepositoryError(err)
	}
	if !actor.IsAdmin() && order.CustomerID != actor.ID {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

// priced estimates totals, reading the live promo when the discount is not yet materialized.
func (s *orderService) priced(ctx context.Context, tx repositories.Tx, order domain.Order) (OrderView, error) {
	if order.PromoDiscount != nil || order.PromoCodeID == nil {
		return OrderView{Order: order, Totals: EstimateTotals(order, nil)}, nil
	}
	promo, err := tx.Promotions().FindByID(ctx, *order.PromoCodeID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return OrderView{Order: order, Totals: EstimateTotals(order, nil)}, nil
		}
		return OrderView{}, mapRepositoryError(err)
	}
	return OrderView{Order: order, Totals: EstimateTotals(order, &promo)}, nil
}

func (s *orderService) sanitizeReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	cleaned := s.sanitize(*reason)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

func (s *orderService) publishStatusChange(ctx context.Context, order domain.Order, previous domain.OrderStatus, actor domain.Actor, at time.Time, metadata map[string]any) {
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actor.ID,
		OccurredAt:     at,
		Metadata:       metadata,
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func validateActor(actor domain.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return invalidField("actor.id", "actor id is required")
	}
	if actor.Role != domain.ActorRoleAdmin && actor.Role != domain.ActorRoleCustomer {
		return invalidField("actor.role", "unknown actor role %q", actor.Role)
	}
	return nil
}

func mergeCartLines(lines []domain.CartLine) ([]domain.CartLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cart must contain at least one item", ErrOrderInvalidInput)
	}
	merged := make([]domain.CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for i, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, invalidField(fmt.Sprintf("items[%d].productId", i), "product id is required")
		}
		if line.Quantity < 1 {
			return nil, invalidField(fmt.Sprintf("items[%d].quantity", i), "quantity must be at least 1")
		}
		if pos, ok := index[productID]; ok {
			merged[pos].Quantity += line.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, domain.CartLine{ProductID: productID, Quantity: line.Quantity})
	}
	return merged, nil
}

func attachPromo(order *domain.Order, promo domain.PromoCode) {
	id, code := promo.ID, promo.Code
	order.PromoCodeID = &id
	order.PromoCode = &code
	order.PromoDiscount = nil
}

func setAdminDiscount(order *domain.Order, amount decimal.Decimal, reason *string) {
	if amount.IsZero() {
		order.AdminDiscount = nil
		order.AdminDiscountReason = nil
		return
	}
	rounded := amount.Round(moneyPlaces)
	order.AdminDiscount = &rounded
	order.AdminDiscountReason = reason
}

func joinNotes(notes ...string) string {
	parts := make([]string, 0, len(notes))
	for _, note := range notes {
		if note = strings.TrimSpace(note); note != "" {
			parts = append(parts, note)
		}
	}
	return strings.Join(parts, "\n")
}
