package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// 加拿大邮编，如 M5H 2N2
var postalPattern = regexp.MustCompile(`^[A-Z]\d[A-Z]\s?\d[A-Z]\d$`)

// ValidationError 字段级校验错误，field -> message
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StockConflict 一条库存不足明细
type StockConflict struct {
	ProductID uint   `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockConflictError 预检发现库存不足
type StockConflictError struct {
	Conflicts []StockConflict
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Conflicts))
}

// ShippingForm 结算页提交的收货信息
type ShippingForm struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// NormalizePostalCode 去空白并转大写
func NormalizePostalCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Validate 校验并返回地址快照
func (f ShippingForm) Validate() (Address, error) {
	fields := map[string]string{}
	required := func(field, value string) string {
		v := strings.TrimSpace(value)
		if v == "" {
			fields[field] = "This field is required."
		}
		return v
	}

	first := required("first_name", f.FirstName)
	last := required("last_name", f.LastName)
	city := required("city", f.City)
	province := required("province", f.Province)

	postal := NormalizePostalCode(f.PostalCode)
	switch {
	case postal == "":
		fields["postal_code"] = "This field is required."
	case !postalPattern.MatchString(postal):
		fields["postal_code"] = "Enter a valid postal code (e.g. M5H 2N2)."
	}

	addr1, addr2 := strings.TrimSpace(f.Address1), strings.TrimSpace(f.Address2)
	if addr1 == "" && addr2 == "" {
		fields["address1"] = "At least one address line is required."
	}

	phone := strings.TrimSpace(f.Phone)
	if phone != "" && countDigits(phone) < 7 {
		fields["phone"] = "Enter a valid phone number."
	}

	if len(fields) > 0 {
		return Address{}, &ValidationError{Fields: fields}
	}

	country := strings.TrimSpace(f.Country)
	if country == "" {
		country = "Canada"
	}
	return Address{
		Name:       first + " " + last,
		Phone:      phone,
		Address1:   addr1,
		Address2:   addr2,
		City:       city,
		Province:   province,
		PostalCode: postal,
		Country:    country,
	}, nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
