package application

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/wyfcoding/storefront/internal/order/domain"
)

var (
	orderHeader = []string{"Order ID", "User", "Email", "Status", "Fulfillment", "Subtotal", "Tax", "Shipping", "Total", "Created At"}
	itemHeader  = []string{"Order ID", "Order Status", "Order Created At", "User", "Product", "Qty", "Unit Price", "Line Total", "Is Digital", "Is Service"}
)

// ExportOrders 以 CSV 导出订单
func (s *OrderService) ExportOrders(ctx context.Context, w io.Writer, filter domain.Filter) error {
	filter.WithItems = false
	orders, _, err := s.orders.List(ctx, filter)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(orderHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, o := range orders {
		row := []string{
			strconv.FormatUint(uint64(o.ID), 10),
			userColumn(o),
			o.Email,
			string(o.Status),
			string(o.Fulfillment),
			o.Subtotal.StringFixed(2),
			o.Tax.StringFixed(2),
			o.Shipping.StringFixed(2),
			o.Total.StringFixed(2),
			o.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportItems 以 CSV 导出订单项
func (s *OrderService) ExportItems(ctx context.Context, w io.Writer, filter domain.Filter) error {
	filter.WithItems = true
	orders, _, err := s.orders.List(ctx, filter)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(itemHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, o := range orders {
		for _, it := range o.Items {
			row := []string{
				strconv.FormatUint(uint64(o.ID), 10),
				string(o.Status),
				o.CreatedAt.UTC().Format(time.RFC3339),
				userColumn(o),
				it.ProductName,
				strconv.Itoa(it.Quantity),
				it.UnitPrice.StringFixed(2),
				it.LineTotal().StringFixed(2),
				strconv.FormatBool(it.IsDigital()),
				strconv.FormatBool(it.IsService()),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func userColumn(o *domain.Order) string {
	if o.UserID == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*o.UserID), 10)
}
