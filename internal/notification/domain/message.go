package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderLine 确认邮件中的一行
type OrderLine struct {
	Name      string
	Quantity  int
	LineTotal decimal.Decimal
}

// OrderSummary 订单确认所需的数据
type OrderSummary struct {
	OrderID       uint
	Email         string
	CustomerName  string
	Lines         []OrderLine
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Shipping      decimal.Decimal
	ShippingLabel string
	Total         decimal.Decimal
	// 配送或自提说明，纯数字/服务订单为空
	Fulfillment string
}

// DownloadLink 一条下载链接，只包含令牌，不暴露授权 ID
type DownloadLink struct {
	ProductName string
	Token       string
}

// ConfirmationMessage 订单确认邮件
func ConfirmationMessage(s OrderSummary) (subject, body string) {
	subject = fmt.Sprintf("Order #%d confirmed", s.OrderID)

	var b strings.Builder
	if s.CustomerName != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", s.CustomerName)
	}
	fmt.Fprintf(&b, "Thank you for your order #%d.\n\n", s.OrderID)
	for _, l := range s.Lines {
		fmt.Fprintf(&b, "%d x %s: $%s\n", l.Quantity, l.Name, l.LineTotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nSubtotal: $%s\n", s.Subtotal.StringFixed(2))
	fmt.Fprintf(&b, "Tax: $%s\n", s.Tax.StringFixed(2))
	fmt.Fprintf(&b, "Shipping: $%s (%s)\n", s.Shipping.StringFixed(2), s.ShippingLabel)
	fmt.Fprintf(&b, "Total: $%s\n", s.Total.StringFixed(2))
	if s.Fulfillment != "" {
		fmt.Fprintf(&b, "\n%s\n", s.Fulfillment)
	}
	return subject, b.String()
}

// DownloadLinksMessage 下载链接邮件，链接形如 {siteURL}/api/v1/downloads/{token}
func DownloadLinksMessage(orderID uint, siteURL string, links []DownloadLink) (subject, body string) {
	subject = fmt.Sprintf("Your digital downloads for Order #%d", orderID)

	base := strings.TrimRight(siteURL, "/")
	var b strings.Builder
	b.WriteString("Your downloads are ready:\n\n")
	for _, l := range links {
		fmt.Fprintf(&b, "%s: %s/api/v1/downloads/%s\n", l.ProductName, base, l.Token)
	}
	return subject, b.String()
}
