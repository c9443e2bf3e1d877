// Command orderctl prints orders from the configured store for operators.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/config"
	"github.com/Abdullah97825/Matjary-sub000/internal/platform/observability"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories/backends"
	"github.com/Abdullah97825/Matjary-sub000/internal/services"
)

const usage = `usage:
  orderctl show -order <id>    print an order with its items, audit trail and status history`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout, logger.Named("orderctl")); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "orderctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, out io.Writer, logger *zap.Logger) error {
	switch command {
	case "show":
		fs := flag.NewFlagSet("show", flag.ContinueOnError)
		orderID := fs.String("order", "", "order id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if strings.TrimSpace(*orderID) == "" {
			return errors.New("show: -order is required")
		}
		store, err := openStore(ctx, logger)
		if err != nil {
			return err
		}
		defer store.Close(ctx)
		return showOrder(ctx, store, strings.TrimSpace(*orderID), out)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func openStore(ctx context.Context, logger *zap.Logger) (repositories.Registry, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Storage.Backend == config.StorageBackendMemory {
		return nil, errors.New("the memory backend has no data outside the api process; set API_STORAGE_BACKEND")
	}
	return backends.Open(ctx, cfg, logger)
}

// showOrder reads the order and its history in one unit of work and renders them as tables.
func showOrder(ctx context.Context, store repositories.UnitOfWork, orderID string, out io.Writer) error {
	var (
		order   domain.Order
		history []domain.OrderStatusHistory
	)
	err := store.RunInTx(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		order, err = tx.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		history, err = tx.History().ListByOrder(ctx, orderID)
		return err
	})
	if err != nil {
		if repositories.IsNotFound(err) {
			return fmt.Errorf("order %s not found", orderID)
		}
		return err
	}

	totals := services.EstimateTotals(order, nil)
	fmt.Fprintf(out, "Order %s  status=%s  customer=%s  created=%s\n",
		order.ID, order.Status, order.CustomerID, order.CreatedAt.UTC().Format(time.RFC3339))
	if order.PromoCode != nil {
		fmt.Fprintf(out, "Promo %s\n", *order.PromoCode)
	}
	if order.AdminDiscountReason != nil {
		fmt.Fprintf(out, "Admin discount reason: %s\n", *order.AdminDiscountReason)
	}

	items := tablewriter.NewWriter(out)
	items.Header("Item", "Product", "Qty", "Price", "Line total", "Edited", "Admin added")
	for _, item := range order.Items {
		if err := items.Append([]string{
			item.ID,
			item.ProductName,
			fmt.Sprint(item.Quantity),
			item.Price.StringFixed(2),
			item.LineTotal().StringFixed(2),
			editedFlags(item),
			fmt.Sprint(item.AdminAdded),
		}); err != nil {
			return err
		}
	}
	if err := items.Render(); err != nil {
		return err
	}

	if rows := auditRows(order.Items); len(rows) > 0 {
		audit := tablewriter.NewWriter(out)
		audit.Header("Item", "Field", "Prior value", "Note")
		for _, row := range rows {
			if err := audit.Append(row); err != nil {
				return err
			}
		}
		if err := audit.Render(); err != nil {
			return err
		}
	}

	summary := tablewriter.NewWriter(out)
	summary.Header("Subtotal", "Admin discount", "Promo discount", "Total")
	if err := summary.Append([]string{
		totals.Subtotal.StringFixed(2),
		totals.AdminDiscount.StringFixed(2),
		totals.PromoDiscount.StringFixed(2),
		totals.Total.StringFixed(2),
	}); err != nil {
		return err
	}
	if err := summary.Render(); err != nil {
		return err
	}

	ledger := tablewriter.NewWriter(out)
	ledger.Header("At", "From", "To", "Actor", "Note")
	for _, entry := range history {
		from := string(entry.PreviousStatus)
		if from == "" {
			from = "-"
		}
		if err := ledger.Append([]string{
			entry.CreatedAt.UTC().Format(time.RFC3339),
			from,
			string(entry.NewStatus),
			entry.ActorID,
			entry.Note,
		}); err != nil {
			return err
		}
	}
	return ledger.Render()
}

func editedFlags(item domain.OrderItem) string {
	var flags []string
	if item.PriceEdited {
		flags = append(flags, "price")
	}
	if item.QuantityEdited {
		flags = append(flags, "quantity")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func auditRows(items []domain.OrderItem) [][]string {
	var rows [][]string
	for _, item := range items {
		fields := make([]string, 0, len(item.OriginalValues))
		for field := range item.OriginalValues {
			fields = append(fields, string(field))
		}
		sort.Strings(fields)
		for _, field := range fields {
			entry := item.OriginalValues[domain.AuditField(field)]
			prior := entry.PriorValue.String()
			if domain.AuditField(field) == domain.AuditFieldPrice {
				prior = entry.PriorValue.StringFixed(2)
			}
			rows = append(rows, []string{item.ID, field, prior, entry.Note})
		}
	}
	return rows
}
