package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
)

const tracerName = "github.com/Abdullah97825/Matjary-sub000/internal/services"

const (
	finalizeResultOK            = "ok"
	finalizeResultArchived      = "archived_products"
	finalizeResultPromoRejected = "promo_rejected"
	finalizeResultStockShortage = "stock_shortage"
	finalizeResultError         = "error"
)

// OrderMetrics records order lifecycle measurements.
type OrderMetrics interface {
	ObserveTransition(from, to domain.OrderStatus, result string)
	ObserveFinalization(result string, elapsed time.Duration)
	IncStockShortage(productID string)
}

type noopOrderMetrics struct{}

func (noopOrderMetrics) ObserveTransition(domain.OrderStatus, domain.OrderStatus, string) {}
func (noopOrderMetrics) ObserveFinalization(string, time.Duration)                        {}
func (noopOrderMetrics) IncStockShortage(string)                                          {}

// FinalizeResult carries the order as it must be persisted after acceptance side effects.
type FinalizeResult struct {
	Order domain.Order
	// SystemNote describes a promo discount materialized during finalization; empty otherwise.
	SystemNote string
}

// OrderFinalizer runs the side effects of moving an order into ACCEPTED. Every read and write
// goes through the supplied transaction handle; any error must abort that transaction.
type OrderFinalizer struct {
	promos  PromoValidator
	clock   func() time.Time
	metrics OrderMetrics
	tracer  trace.Tracer
}

// NewOrderFinalizer constructs a finalizer. Nil collaborators fall back to defaults.
func NewOrderFinalizer(promos PromoValidator, clock func() time.Time, metrics OrderMetrics) *OrderFinalizer {
	if clock == nil {
		clock = time.Now
	}
	if promos == nil {
		promos = NewPromoValidator(clock)
	}
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}
	return &OrderFinalizer{
		promos:  promos,
		clock:   clock,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// Finalize validates and commits stock and promo side effects for order. It does not change the
// order status; the caller does that inside the same transaction.
func (f *OrderFinalizer) Finalize(ctx context.Context, tx repositories.Tx, order domain.Order) (result FinalizeResult, err error) {
	if tx == nil {
		return FinalizeResult{}, fmt.Errorf("%w: finalization requires a transaction", ErrOrderInvariantViolation)
	}

	ctx, span := f.tracer.Start(ctx, "orders.finalize", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.status", string(order.Status)),
		attribute.Int("order.items", len(order.Items)),
	))
	started := f.clock()
	defer func() {
		outcome := finalizeOutcome(err)
		f.metrics.ObserveFinalization(outcome, f.clock().Sub(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
	}()

	if len(order.Items) == 0 {
		return FinalizeResult{}, fmt.Errorf("%w: order %s has no items to accept", ErrOrderConflict, order.ID)
	}

	working := order.Clone()
	if err := f.guardArchived(ctx, tx, working); err != nil {
		return FinalizeResult{}, err
	}

	note, err := f.commitPromo(ctx, tx, &working)
	if err != nil {
		return FinalizeResult{}, err
	}

	if err := f.decrementStock(ctx, tx, working); err != nil {
		return FinalizeResult{}, err
	}

	if order.Status == domain.OrderStatusAdminPending {
		working.PaymentMethod = domain.PaymentMethodCash
	}

	return FinalizeResult{Order: working, SystemNote: note}, nil
}

// guardArchived re-reads archive flags for every referenced product.
func (f *OrderFinalizer) guardArchived(ctx context.Context, tx repositories.Tx, order domain.Order) error {
	ids := order.ProductIDs()
	products, err := tx.Products().FindMany(ctx, ids)
	if err != nil {
		return mapRepositoryError(err)
	}

	byID := make(map[string]domain.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	archived := &ArchivedProductsError{}
	for _, id := range ids {
		product, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: product %s referenced by order %s no longer exists", ErrOrderNotFound, id, order.ID)
		}
		if product.IsArchived {
			archived.ProductIDs = append(archived.ProductIDs, product.ID)
			archived.Names = append(archived.Names, product.Name)
		}
	}
	if len(archived.ProductIDs) > 0 {
		return archived
	}
	return nil
}

// commitPromo revalidates the attached promo code against the live subtotal, records its usage and
// materializes the discount when it is not yet stored on the order.
func (f *OrderFinalizer) commitPromo(ctx context.Context, tx repositories.Tx, order *domain.Order) (string, error) {
	if order.PromoCodeID == nil || *order.PromoCodeID == "" {
		return "", nil
	}

	promos := tx.Promotions()
	promo, err := promos.FindByID(ctx, *order.PromoCodeID)
	if err != nil {
		if repositories.IsNotFound(err) {
			code := ""
			if order.PromoCode != nil {
				code = *order.PromoCode
			}
			return "", &PromoRejectedError{Code: code, Reason: "promo code no longer exists"}
		}
		return "", mapRepositoryError(err)
	}

	subtotal := order.Subtotal()
	validation, err := f.promos.Validate(ctx, promos, promo.Code, order.CustomerID, subtotal)
	if err != nil {
		return "", err
	}
	if !validation.Valid {
		return "", &PromoRejectedError{Code: promo.Code, Reason: validation.Message}
	}

	if err := promos.IncrementUsage(ctx, promo.ID); err != nil {
		return "", mapRepositoryError(err)
	}
	if assignment := validation.Assignment; assignment != nil && !assignment.Used {
		if err := promos.MarkAssignmentUsed(ctx, assignment.ID, f.clock().UTC()); err != nil {
			return "", mapRepositoryError(err)
		}
	}

	if order.PromoDiscount != nil {
		return "", nil
	}
	discount := CalculatePromoDiscount(subtotal, DescriptorFor(promo))
	order.PromoDiscount = &discount
	return promoAppliedNote(promo.Code, discount), nil
}

// decrementStock re-reads every product row inside the transaction and takes the item quantity
// from stock-managed products.
func (f *OrderFinalizer) decrementStock(ctx context.Context, tx repositories.Tx, order domain.Order) error {
	products := tx.Products()
	for _, item := range order.Items {
		product, err := products.FindByID(ctx, item.ProductID)
		if err != nil {
			return mapRepositoryError(err)
		}
		if !product.UseStock {
			continue
		}
		if product.Stock < item.Quantity {
			f.metrics.IncStockShortage(product.ID)
			return &StockShortageError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Stock,
				Required:    item.Quantity,
			}
		}
		if err := products.DecrementStock(ctx, product.ID, item.Quantity); err != nil {
			if repositories.IsInsufficientStock(err) {
				// Another writer took the units between the read and the guarded decrement.
				f.metrics.IncStockShortage(product.ID)
				return &StockShortageError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   0,
					Required:    item.Quantity,
				}
			}
			return mapRepositoryError(err)
		}
	}
	return nil
}

func promoAppliedNote(code string, discount decimal.Decimal) string {
	return fmt.Sprintf("Promo code %s applied with a discount of %s", code, discount.StringFixed(moneyPlaces))
}

func finalizeOutcome(err error) string {
	if err == nil {
		return finalizeResultOK
	}
	var archived *ArchivedProductsError
	var promo *PromoRejectedError
	var shortage *StockShortageError
	switch {
	case errors.As(err, &archived):
		return finalizeResultArchived
	case errors.As(err, &promo):
		return finalizeResultPromoRejected
	case errors.As(err, &shortage):
		return finalizeResultStockShortage
	default:
		return finalizeResultError
	}
}
