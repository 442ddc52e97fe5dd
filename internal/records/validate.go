package records

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRecord wraps every validation failure returned by Validate.
var ErrInvalidRecord = errors.New("invalid record")

func invalid(kind string, i int, format string, args ...any) error {
	return fmt.Errorf("%w: %s[%d]: %s", ErrInvalidRecord, kind, i, fmt.Sprintf(format, args...))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks a batch before it is written and reports every problem
// found, joined.
func (b Batch) Validate() error {
	var errs []error
	for i, ing := range b.Ingredients {
		if ing.ID == "" {
			errs = append(errs, invalid("ingredients", i, "id is required"))
		}
		if ing.Name == "" {
			errs = append(errs, invalid("ingredients", i, "name is required"))
		}
		if !finite(ing.CurrentPrice) || ing.CurrentPrice < 0 {
			errs = append(errs, invalid("ingredients", i, "currentPrice must be a non-negative number"))
		}
	}
	for i, e := range b.PriceEvents {
		if e.IngredientID == "" {
			errs = append(errs, invalid("priceHistory", i, "ingredientId is required"))
		}
		if e.OccurredAt.IsZero() {
			errs = append(errs, invalid("priceHistory", i, "occurredAt is required"))
		}
		if !finite(e.Price) || e.Price < 0 {
			errs = append(errs, invalid("priceHistory", i, "price must be a non-negative number"))
		}
	}
	for i, e := range b.UsageEvents {
		if e.IngredientID == "" {
			errs = append(errs, invalid("usage", i, "ingredientId is required"))
		}
		if e.Unit == "" {
			errs = append(errs, invalid("usage", i, "unit is required"))
		}
		if e.OccurredAt.IsZero() {
			errs = append(errs, invalid("usage", i, "occurredAt is required"))
		}
		if !finite(e.Quantity) || e.Quantity <= 0 {
			errs = append(errs, invalid("usage", i, "quantity must be a positive number"))
		}
		if ut, err := ParseUsageType(string(e.UsageType)); err != nil || ut == "" {
			errs = append(errs, invalid("usage", i, "usageType %q is not one of production, waste, adjustment, purchase, correction", e.UsageType))
		}
	}
	return errors.Join(errs...)
}
