package analytics

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/nixlim/pantrycost/internal/period"
	"github.com/nixlim/pantrycost/internal/records"
)

// ErrInvalidInput matches every *InputError via errors.Is.
var ErrInvalidInput = errors.New("invalid analytics input")

// InputError reports a request parameter the engine refuses to compute with.
// It is the only error kind that aborts a request before fetching.
type InputError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

var ingredientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func validateGranularity(g period.Granularity) error {
	if _, err := period.ParseGranularity(string(g)); err != nil {
		return &InputError{Field: "granularity", Value: g, Reason: "must be daily, weekly or monthly"}
	}
	return nil
}

func validateFilter(f Filter) error {
	if f.IngredientID != "" && !ingredientIDPattern.MatchString(f.IngredientID) {
		return &InputError{Field: "ingredientId", Value: f.IngredientID, Reason: "must be 1-128 letters, digits, '_' or '-'"}
	}
	if _, err := records.ParseUsageType(string(f.UsageType)); err != nil {
		return &InputError{Field: "usageType", Value: f.UsageType, Reason: err.Error()}
	}
	return nil
}
