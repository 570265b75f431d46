package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PricingRules 结算定价参数
type PricingRules struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShipping          decimal.Decimal
}

// NewPricingRules 解析配置中的金额字符串
func NewPricingRules(taxRate, freeThreshold, flatShipping string) (PricingRules, error) {
	var r PricingRules
	var err error
	if r.TaxRate, err = decimal.NewFromString(taxRate); err != nil {
		return r, fmt.Errorf("invalid tax rate %q: %w", taxRate, err)
	}
	if r.FreeShippingThreshold, err = decimal.NewFromString(freeThreshold); err != nil {
		return r, fmt.Errorf("invalid free shipping threshold %q: %w", freeThreshold, err)
	}
	if r.FlatShipping, err = decimal.NewFromString(flatShipping); err != nil {
		return r, fmt.Errorf("invalid flat shipping %q: %w", flatShipping, err)
	}
	return r, nil
}

// Quote 一次报价
type Quote struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Shipping      decimal.Decimal `json:"shipping"`
	ShippingLabel string          `json:"shipping_label"`
	Total         decimal.Decimal `json:"total"`
}

// Totals 转为订单金额
func (q Quote) Totals() Totals {
	return Totals{Subtotal: q.Subtotal, Tax: q.Tax, Shipping: q.Shipping, Total: q.Total}
}

// Quote 计算报价。各行金额先保留两位再求和；
// 自提、无实物、达到免运费门槛时运费为 0，否则收取固定运费。
func (r PricingRules) Quote(lineTotals []decimal.Decimal, hasPhysical, pickup bool) Quote {
	subtotal := decimal.Zero
	for _, lt := range lineTotals {
		subtotal = subtotal.Add(lt.Round(2))
	}

	q := Quote{Subtotal: subtotal, Tax: subtotal.Mul(r.TaxRate).RoundBank(2)}
	switch {
	case pickup:
		q.Shipping, q.ShippingLabel = decimal.Zero, "No shipping (pickup order)"
	case !hasPhysical:
		q.Shipping, q.ShippingLabel = decimal.Zero, "No shipping (digital / service only)"
	case subtotal.GreaterThanOrEqual(r.FreeShippingThreshold):
		q.Shipping = decimal.Zero
		q.ShippingLabel = fmt.Sprintf("Free shipping for physical orders over $%s", r.FreeShippingThreshold.StringFixed(2))
	default:
		q.Shipping = r.FlatShipping
		q.ShippingLabel = fmt.Sprintf("Flat $%s shipping for physical products", r.FlatShipping.StringFixed(2))
	}
	q.Total = q.Subtotal.Add(q.Tax).Add(q.Shipping).Round(2)
	return q
}
