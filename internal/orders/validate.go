package orders

import (
	"fmt"
	"strings"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	maxShippingField = 500
	maxLines         = 100
)

// ValidateCreateInput checks the request shape and returns trimmed shipping
// data plus the line total computed from the submitted prices.
func ValidateCreateInput(input CreateOrderInput, tolerance decimal.Decimal) (ShippingInput, decimal.Decimal, error) {
	details := map[string]string{}

	switch {
	case len(input.Items) == 0:
		details["items"] = "must contain at least one item"
	case len(input.Items) > maxLines:
		details["items"] = fmt.Sprintf("must contain at most %d items", maxLines)
	}

	sum := decimal.Zero
	for i, line := range input.Items {
		key := fmt.Sprintf("items[%d]", i)
		if line.ProductID <= 0 {
			details[key+".productId"] = "is required"
		}
		if line.Quantity <= 0 {
			details[key+".quantity"] = "must be greater than 0"
		}
		if line.Price == nil {
			details[key+".price"] = "is required"
			continue
		}
		if line.Price.IsNegative() {
			details[key+".price"] = "must not be negative"
			continue
		}
		sum = sum.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	switch {
	case input.Total == nil:
		details["total"] = "is required"
	case input.Total.IsNegative():
		details["total"] = "must not be negative"
	}

	shipping := ShippingInput{
		Name:    strings.TrimSpace(input.Shipping.Name),
		Phone:   strings.TrimSpace(input.Shipping.Phone),
		Address: strings.TrimSpace(input.Shipping.Address),
	}
	for field, value := range map[string]string{
		"shipping.name":    shipping.Name,
		"shipping.phone":   shipping.Phone,
		"shipping.address": shipping.Address,
	} {
		switch {
		case value == "":
			details[field] = "is required"
		case utf8.RuneCountInString(value) > maxShippingField:
			details[field] = fmt.Sprintf("must be at most %d characters", maxShippingField)
		}
	}

	if len(details) > 0 {
		return ShippingInput{}, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}

	if sum.Sub(*input.Total).Abs().GreaterThan(tolerance) {
		return ShippingInput{}, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "total does not match items").
			WithDetails(map[string]string{
				"total":    input.Total.StringFixed(2),
				"computed": sum.StringFixed(2),
			})
	}

	return shipping, sum.Round(2), nil
}
