package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/shopspring/decimal"
)

// Scale is the number of fraction digits every stored amount carries.
const Scale = 2

var (
	// ErrAmountMustBePositive is returned when an amount is zero or negative.
	ErrAmountMustBePositive = fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	// ErrTooManyDecimals is returned when an amount has more than two fraction digits.
	ErrTooManyDecimals = fmt.Errorf("%w: amount must have at most 2 decimal places", domain.ErrValidation)
	// ErrInvalidCurrencyCode is returned when a currency is not a 3 letter ISO 4217 code.
	ErrInvalidCurrencyCode = fmt.Errorf("%w: invalid currency code", domain.ErrValidation)
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidateAmount checks that amount is strictly positive and fits the fixed scale.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountMustBePositive
	}
	if !amount.Equal(amount.Truncate(Scale)) {
		return ErrTooManyDecimals
	}
	return nil
}

// Round rounds to the fixed scale using banker's rounding.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(Scale)
}

// Parse parses a decimal string and validates it as a positive amount.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal", domain.ErrValidation, s)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// NormalizeCurrency upper-cases code and validates its format.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !currencyPattern.MatchString(code) {
		return "", ErrInvalidCurrencyCode
	}
	return code, nil
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
