package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func newParseError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// ParsePrice parses a venue price string. An empty string is the absent marker and yields 0.
func ParsePrice(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, newParseError("invalid price %q", s)
	}
	if d.IsNegative() {
		return 0, newParseError("negative price %q", s)
	}
	f, _ := d.Float64()
	return f, nil
}

// ParseLevel reads [price, quantity, ...] where price and quantity are JSON strings or numbers.
// Trailing elements such as order counts or timestamps are ignored.
func ParseLevel(entry []interface{}) (PriceLevel, error) {
	if len(entry) < 2 {
		return PriceLevel{}, newParseError("price level needs 2 elements, got %d", len(entry))
	}

	price, err := toDecimal(entry[0])
	if err != nil {
		return PriceLevel{}, err
	}
	quantity, err := toDecimal(entry[1])
	if err != nil {
		return PriceLevel{}, err
	}

	if price.Sign() <= 0 || quantity.IsNegative() {
		return PriceLevel{}, newParseError("invalid price level %v", entry)
	}

	p, _ := price.Float64()
	q, _ := quantity.Float64()
	return PriceLevel{Price: p, Quantity: q}, nil
}

func ParseLevels(entries [][]interface{}) ([]PriceLevel, error) {
	levels := make([]PriceLevel, 0, len(entries))
	for _, entry := range entries {
		level, err := ParseLevel(entry)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch value := v.(type) {
	case string:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, newParseError("invalid number %q", value)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(value), nil
	case int64:
		return decimal.NewFromInt(value), nil
	case fmt.Stringer:
		return toDecimal(value.String())
	default:
		return decimal.Zero, newParseError("unexpected level element %T", v)
	}
}
