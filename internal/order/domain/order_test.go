package domain

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func rules() PricingRules {
	r, err := NewPricingRules("0.05", "100.00", "15.00")
	if err != nil {
		panic(err)
	}
	return r
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name        string
		lines       []string
		hasPhysical bool
		pickup      bool
		subtotal    string
		tax         string
		shipping    string
		label       string
		total       string
	}{
		{"flat shipping", []string{"40.00"}, true, false, "40", "2", "15", "Flat $15.00 shipping for physical products", "57"},
		{"pickup", []string{"40.00"}, true, true, "40", "2", "0", "No shipping (pickup order)", "42"},
		{"digital only", []string{"10.00"}, false, false, "10", "0.5", "0", "No shipping (digital / service only)", "10.5"},
		{"threshold reached", []string{"60.00", "40.00"}, true, false, "100", "5", "0", "Free shipping for physical orders over $100.00", "105"},
		{"just below threshold", []string{"99.99"}, true, false, "99.99", "5", "15", "Flat $15.00 shipping for physical products", "119.99"},
		{"line totals rounded first", []string{"3.335", "3.335"}, false, false, "6.68", "0.33", "0", "No shipping (digital / service only)", "7.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := make([]decimal.Decimal, len(tt.lines))
			for i, l := range tt.lines {
				lines[i] = dec(l)
			}
			q := rules().Quote(lines, tt.hasPhysical, tt.pickup)
			assert.True(t, dec(tt.subtotal).Equal(q.Subtotal), "subtotal %s", q.Subtotal)
			assert.True(t, dec(tt.tax).Equal(q.Tax), "tax %s", q.Tax)
			assert.True(t, dec(tt.shipping).Equal(q.Shipping), "shipping %s", q.Shipping)
			assert.Equal(t, tt.label, q.ShippingLabel)
			assert.True(t, dec(tt.total).Equal(q.Total), "total %s", q.Total)
		})
	}
}

func TestQuoteTotalsAlwaysReconcile(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 500; i++ {
		n := 1 + r.IntN(6)
		lines := make([]decimal.Decimal, n)
		for j := range lines {
			cents := r.Int64N(20000)
			qty := 1 + r.Int64N(5)
			lines[j] = decimal.New(cents, -2).Mul(decimal.NewFromInt(qty))
		}
		q := rules().Quote(lines, r.IntN(2) == 0, r.IntN(4) == 0)

		_, err := NewOrder(1, "a@example.com", FulfillmentShip, nil, q.Totals())
		require.NoError(t, err)
		assert.True(t, q.Tax.Equal(q.Tax.Round(2)))
		assert.True(t, q.Total.Equal(q.Subtotal.Add(q.Tax).Add(q.Shipping)))
		assert.False(t, q.Shipping.IsPositive() && q.Subtotal.GreaterThanOrEqual(dec("100")))
	}
}

func TestNewOrderRejectsMismatchedTotal(t *testing.T) {
	_, err := NewOrder(1, "a@example.com", FulfillmentShip, nil, Totals{
		Subtotal: dec("40"), Tax: dec("2"), Shipping: dec("15"), Total: dec("56.99"),
	})
	assert.ErrorIs(t, err, ErrTotalMismatch)

	o, err := NewOrder(0, "a@example.com", FulfillmentNone, nil, Totals{
		Subtotal: dec("10"), Tax: dec("0.5"), Shipping: decimal.Zero, Total: dec("10.5"),
	})
	require.NoError(t, err)
	assert.Nil(t, o.UserID)
	assert.Equal(t, StatusPaid, o.Status)
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:    {StatusPaid, StatusCancelled},
		StatusPaid:       {StatusProcessing, StatusShipped, StatusCancelled},
		StatusProcessing: {StatusShipped, StatusCancelled},
		StatusShipped:    {StatusDelivered},
	}
	all := []Status{StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			want := from == to
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestApplyKeepsLockedSnapshot(t *testing.T) {
	original := Address{Name: "Ada Lovelace", Address1: "1 Main St", City: "Toronto", Province: "ON", PostalCode: "M5H 2N2", Country: "Canada"}
	changed := original
	changed.Address1 = "99 Other Rd"

	o := &Order{Status: StatusPaid, Address: original}
	shipped := StatusShipped
	carrier := CarrierUPS
	tracking := " 1Z999 "
	require.NoError(t, o.Apply(Update{Status: &shipped, Carrier: &carrier, TrackingNumber: &tracking, Address: &changed}))
	assert.Equal(t, StatusShipped, o.Status)
	assert.Equal(t, original, o.Address)
	assert.Equal(t, CarrierUPS, o.Carrier)
	assert.Equal(t, "1Z999", o.TrackingNumber)

	processing := StatusProcessing
	o = &Order{Status: StatusPaid, Address: original}
	require.NoError(t, o.Apply(Update{Status: &processing, Address: &changed}))
	assert.Equal(t, changed, o.Address)
}

func TestApplyRejectsInvalidChanges(t *testing.T) {
	o := &Order{Status: StatusDelivered}
	cancelled := StatusCancelled
	assert.ErrorIs(t, o.Apply(Update{Status: &cancelled}), ErrInvalidTransition)
	assert.Equal(t, StatusDelivered, o.Status)

	bogus := Status("lost")
	o = &Order{Status: StatusPaid}
	assert.ErrorIs(t, o.Apply(Update{Status: &bogus}), ErrInvalidTransition)

	pigeon := Carrier("pigeon")
	assert.ErrorIs(t, o.Apply(Update{Carrier: &pigeon}), ErrInvalidCarrier)
}

func TestShippingFormValidate(t *testing.T) {
	valid := ShippingForm{
		FirstName: "Ada", LastName: "Lovelace", Address1: "1 Main St",
		City: "Toronto", Province: "ON", PostalCode: " m5h2n2 ", Phone: "(416) 555-0199",
	}
	addr, err := valid.Validate()
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", addr.Name)
	assert.Equal(t, "M5H2N2", addr.PostalCode)
	assert.Equal(t, "Canada", addr.Country)

	tests := []struct {
		name  string
		edit  func(f *ShippingForm)
		field string
	}{
		{"missing first name", func(f *ShippingForm) { f.FirstName = " " }, "first_name"},
		{"missing city", func(f *ShippingForm) { f.City = "" }, "city"},
		{"bad postal", func(f *ShippingForm) { f.PostalCode = "12345" }, "postal_code"},
		{"no address lines", func(f *ShippingForm) { f.Address1 = "" }, "address1"},
		{"short phone", func(f *ShippingForm) { f.Phone = "555-12" }, "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.edit(&f)
			_, err := f.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	f := valid
	f.Address1, f.Address2 = "", "Unit 4"
	_, err = f.Validate()
	assert.NoError(t, err)
}

func TestAddressLines(t *testing.T) {
	a := Address{Name: "Ada", Address1: "1 Main St", City: "Toronto", Province: "ON", PostalCode: "M5H 2N2", Country: "Canada"}
	assert.Equal(t, "Ada\n1 Main St\nToronto ON M5H 2N2\nCanada", a.Lines())
}
