// Package sqlstore stores orders in MySQL through gorm. Every unit of work runs as one SERIALIZABLE
// transaction; rows that a decision depends on are read with SELECT ... FOR UPDATE.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	drivermysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
)

const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213

	defaultTxAttempts = 3
)

// Store implements repositories.Registry on MySQL.
type Store struct {
	db       *gorm.DB
	attempts int
}

var _ repositories.Registry = (*Store)(nil)

// Option customises the Store.
type Option func(*Store)

// WithTxAttempts sets how often a unit of work is retried after a deadlock or lock wait timeout.
func WithTxAttempts(attempts int) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// New wraps an opened gorm handle.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore requires db")
	}
	store := &Store{db: db, attempts: defaultTxAttempts}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&orderRecord{},
		&orderItemRecord{},
		&productRecord{},
		&promoCodeRecord{},
		&promoAssignmentRecord{},
		&historyRecord{},
	)
	return mapError("sqlstore.migrate", err)
}

// RunInTx executes fn in a SERIALIZABLE transaction and retries it when MySQL picks it as a
// deadlock victim.
func (s *Store) RunInTx(ctx context.Context, fn repositories.TxFunc) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			return fn(ctx, &tx{db: gtx})
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err == nil || !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return mapError("sqlstore.tx", err)
}

// Close closes the connection pool.
func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return mapError("sqlstore.health", err)
	}
	return mapError("sqlstore.health", sqlDB.PingContext(ctx))
}

// PutProduct seeds or replaces a product.
func (s *Store) PutProduct(ctx context.Context, product domain.Product) error {
	record := newProductRecord(product)
	return mapError("products.put", s.db.WithContext(ctx).Save(&record).Error)
}

// PutPromoCode seeds or replaces a promo code.
func (s *Store) PutPromoCode(ctx context.Context, promo domain.PromoCode) error {
	record := newPromoCodeRecord(promo)
	return mapError("promoCodes.put", s.db.WithContext(ctx).Save(&record).Error)
}

// PutAssignment seeds or replaces a promo assignment.
func (s *Store) PutAssignment(ctx context.Context, assignment domain.PromoAssignment) error {
	record := promoAssignmentRecord{
		ID:          assignment.ID,
		PromoCodeID: assignment.PromoCodeID,
		UserID:      assignment.UserID,
		Used:        assignment.Used,
		UsedAt:      assignment.UsedAt,
	}
	return mapError("promoAssignments.put", s.db.WithContext(ctx).Save(&record).Error)
}

func retryable(err error) bool {
	var mysqlErr *drivermysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == mysqlDeadlock || mysqlErr.Number == mysqlLockWaitTimeout
}

// mapError converts driver and gorm failures into repositories.Error. Errors that already carry
// repository semantics and errors returned by the unit-of-work callback pass through.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.NewError(op, repositories.ErrorNotFound, "record not found", err)
	}
	var mysqlErr *drivermysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlDuplicateEntry, mysqlDeadlock, mysqlLockWaitTimeout:
			return repositories.NewError(op, repositories.ErrorConflict, mysqlErr.Message, err)
		default:
			return repositories.NewError(op, repositories.ErrorUnknown, mysqlErr.Message, err)
		}
	}
	if errors.Is(err, drivermysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return repositories.NewError(op, repositories.ErrorUnavailable, err.Error(), err)
	}
	return err
}

type tx struct {
	db *gorm.DB
}

func (t *tx) Orders() repositories.OrderGateway         { return orderGateway{db: t.db} }
func (t *tx) Products() repositories.ProductGateway     { return productGateway{db: t.db} }
func (t *tx) Promotions() repositories.PromoCodeGateway { return promoGateway{db: t.db} }
func (t *tx) History() repositories.HistorySink         { return historySink{db: t.db} }

func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

type orderGateway struct {
	db *gorm.DB
}

func (g orderGateway) Insert(ctx context.Context, order domain.Order) error {
	record := newOrderRecord(order)
	if err := g.db.WithContext(ctx).Create(&record).Error; err != nil {
		return mapError("orders.insert", err)
	}
	for _, item := range order.Items {
		if err := g.InsertItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (g orderGateway) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var record orderRecord
	err := forUpdate(g.db.WithContext(ctx)).Where("id = ?", orderID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Order{}, repositories.NotFound("orders.find", "order %s not found", orderID)
	}
	if err != nil {
		return domain.Order{}, mapError("orders.find", err)
	}

	var items []orderItemRecord
	err = forUpdate(g.db.WithContext(ctx)).
		Where("order_id = ?", orderID).
		Order("created_at ASC").Order("id ASC").
		Find(&items).Error
	if err != nil {
		return domain.Order{}, mapError("orders.findItems", err)
	}
	return record.toDomain(items), nil
}

func (g orderGateway) Update(ctx context.Context, order domain.Order) error {
	record := newOrderRecord(order)
	result := g.db.WithContext(ctx).Model(&orderRecord{ID: order.ID}).Select(orderHeaderColumns).Updates(&record)
	if result.Error != nil {
		return mapError("orders.update", result.Error)
	}
	if result.RowsAffected == 0 {
		return g.requireOrder(ctx, "orders.update", order.ID)
	}
	return nil
}

func (g orderGateway) InsertItem(ctx context.Context, item domain.OrderItem) error {
	record := newOrderItemRecord(item)
	return mapError("orders.insertItem", g.db.WithContext(ctx).Create(&record).Error)
}

func (g orderGateway) UpdateItem(ctx context.Context, item domain.OrderItem) error {
	record := newOrderItemRecord(item)
	result := g.db.WithContext(ctx).
		Model(&orderItemRecord{}).
		Where("id = ? AND order_id = ?", item.ID, item.OrderID).
		Select("product_id", "product_name", "quantity", "price", "price_edited", "quantity_edited",
			"admin_added", "original_values", "updated_at").
		Updates(&record)
	if result.Error != nil {
		return mapError("orders.updateItem", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.NotFound("orders.updateItem", "item %s not found", item.ID)
	}
	return nil
}

func (g orderGateway) DeleteItem(ctx context.Context, orderID, itemID string) error {
	result := g.db.WithContext(ctx).Where("id = ? AND order_id = ?", itemID, orderID).Delete(&orderItemRecord{})
	if result.Error != nil {
		return mapError("orders.deleteItem", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.NotFound("orders.deleteItem", "item %s not found", itemID)
	}
	return nil
}

// requireOrder distinguishes "no such order" from an update that changed nothing, which MySQL
// reports as zero affected rows.
func (g orderGateway) requireOrder(ctx context.Context, op, orderID string) error {
	var count int64
	if err := g.db.WithContext(ctx).Model(&orderRecord{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return mapError(op, err)
	}
	if count == 0 {
		return repositories.NotFound(op, "order %s not found", orderID)
	}
	return nil
}

type productGateway struct {
	db *gorm.DB
}

func (g productGateway) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	var record productRecord
	err := forUpdate(g.db.WithContext(ctx)).Where("id = ?", productID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Product{}, repositories.NotFound("products.find", "product %s not found", productID)
	}
	if err != nil {
		return domain.Product{}, mapError("products.find", err)
	}
	return record.toDomain(), nil
}

// FindMany returns the products that exist, in the order their ids were requested.
func (g productGateway) FindMany(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var records []productRecord
	if err := forUpdate(g.db.WithContext(ctx)).Where("id IN ?", productIDs).Find(&records).Error; err != nil {
		return nil, mapError("products.findMany", err)
	}
	byID := make(map[string]productRecord, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}
	products := make([]domain.Product, 0, len(records))
	for _, id := range productIDs {
		if record, ok := byID[id]; ok {
			products = append(products, record.toDomain())
			delete(byID, id)
		}
	}
	return products, nil
}

// DecrementStock issues a guarded update so stock can never go negative even without a prior lock.
func (g productGateway) DecrementStock(ctx context.Context, productID string, amount int) error {
	result := g.db.WithContext(ctx).
		Model(&productRecord{}).
		Where("id = ? AND stock >= ?", productID, amount).
		Update("stock", gorm.Expr("stock - ?", amount))
	if result.Error != nil {
		return mapError("products.decrement", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := g.FindByID(ctx, productID); err != nil {
		return err
	}
	return repositories.NewError("products.decrement", repositories.ErrorInsufficientStock, "insufficient stock for "+productID, nil)
}

func (g productGateway) IncrementStock(ctx context.Context, productID string, amount int) error {
	result := g.db.WithContext(ctx).
		Model(&productRecord{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", amount))
	if result.Error != nil {
		return mapError("products.increment", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.NotFound("products.increment", "product %s not found", productID)
	}
	return nil
}

type promoGateway struct {
	db *gorm.DB
}

func (g promoGateway) FindByCode(ctx context.Context, code string) (domain.PromoCode, error) {
	var record promoCodeRecord
	err := forUpdate(g.db.WithContext(ctx)).Where("UPPER(code) = UPPER(?)", code).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.PromoCode{}, repositories.NotFound("promoCodes.findByCode", "promo code %s not found", code)
	}
	if err != nil {
		return domain.PromoCode{}, mapError("promoCodes.findByCode", err)
	}
	return record.toDomain(), nil
}

func (g promoGateway) FindByID(ctx context.Context, promoID string) (domain.PromoCode, error) {
	var record promoCodeRecord
	err := forUpdate(g.db.WithContext(ctx)).Where("id = ?", promoID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.PromoCode{}, repositories.NotFound("promoCodes.find", "promo %s not found", promoID)
	}
	if err != nil {
		return domain.PromoCode{}, mapError("promoCodes.find", err)
	}
	return record.toDomain(), nil
}

func (g promoGateway) IncrementUsage(ctx context.Context, promoID string) error {
	result := g.db.WithContext(ctx).
		Model(&promoCodeRecord{}).
		Where("id = ?", promoID).
		Update("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return mapError("promoCodes.incrementUsage", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.NotFound("promoCodes.incrementUsage", "promo %s not found", promoID)
	}
	return nil
}

func (g promoGateway) FindUserAssignment(ctx context.Context, userID, promoID string) (domain.PromoAssignment, error) {
	var record promoAssignmentRecord
	err := forUpdate(g.db.WithContext(ctx)).
		Where("user_id = ? AND promo_code_id = ?", userID, promoID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.PromoAssignment{}, repositories.NotFound("promoAssignments.find", "no assignment of %s to %s", promoID, userID)
	}
	if err != nil {
		return domain.PromoAssignment{}, mapError("promoAssignments.find", err)
	}
	return record.toDomain(), nil
}

func (g promoGateway) MarkAssignmentUsed(ctx context.Context, assignmentID string, usedAt time.Time) error {
	usedAt = usedAt.UTC()
	result := g.db.WithContext(ctx).
		Model(&promoAssignmentRecord{}).
		Where("id = ? AND used = ?", assignmentID, false).
		Updates(map[string]any{"used": true, "used_at": usedAt})
	if result.Error != nil {
		return mapError("promoAssignments.markUsed", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := g.db.WithContext(ctx).Model(&promoAssignmentRecord{}).Where("id = ?", assignmentID).Count(&count).Error; err != nil {
		return mapError("promoAssignments.markUsed", err)
	}
	if count == 0 {
		return repositories.NotFound("promoAssignments.markUsed", "assignment %s not found", assignmentID)
	}
	return nil
}

type historySink struct {
	db *gorm.DB
}

func (h historySink) Append(ctx context.Context, entry domain.OrderStatusHistory) error {
	if entry.ID == "" {
		return fmt.Errorf("sqlstore: history entry id is required")
	}
	record := newHistoryRecord(entry)
	return mapError("history.append", h.db.WithContext(ctx).Create(&record).Error)
}

func (h historySink) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	var records []historyRecord
	err := h.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, mapError("history.list", err)
	}
	entries := make([]domain.OrderStatusHistory, 0, len(records))
	for _, record := range records {
		entries = append(entries, record.toDomain())
	}
	return entries, nil
}
