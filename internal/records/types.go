package records

import (
	"fmt"
	"strings"
	"time"
)

// PriceEvent records a single price change for an ingredient.
type PriceEvent struct {
	ID               string    `json:"id,omitempty"`
	IngredientID     string    `json:"ingredientId"`
	Price            float64   `json:"price"`
	OccurredAt       time.Time `json:"occurredAt"`
	SupplierID       string    `json:"supplierId,omitempty"`
	ChangePercentage *float64  `json:"changePercentage,omitempty"`
	Notes            string    `json:"notes,omitempty"`
}

// UsageEvent records an amount of an ingredient consumed, wasted or adjusted.
type UsageEvent struct {
	ID           string    `json:"id,omitempty"`
	IngredientID string    `json:"ingredientId"`
	Quantity     float64   `json:"quantity"`
	Unit         string    `json:"unit"`
	OccurredAt   time.Time `json:"occurredAt"`
	UsageType    UsageType `json:"usageType"`
	RecipeID     string    `json:"recipeId,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

// Ingredient is the lookup entry used to attach display names to events.
// Inactive ingredients are soft-deleted and do not resolve.
type Ingredient struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     Category `json:"category"`
	Unit         Unit     `json:"unit"`
	CurrentPrice float64  `json:"currentPrice"`
	Active       bool     `json:"isActive"`
}

type UsageType string

const (
	UsageProduction UsageType = "production"
	UsageWaste      UsageType = "waste"
	UsageAdjustment UsageType = "adjustment"
	UsagePurchase   UsageType = "purchase"
	UsageCorrection UsageType = "correction"
)

var usageTypes = []UsageType{UsageProduction, UsageWaste, UsageAdjustment, UsagePurchase, UsageCorrection}

// ParseUsageType accepts the canonical lowercase names. An empty string
// parses to the zero value, meaning "any usage type".
func ParseUsageType(s string) (UsageType, error) {
	if s == "" {
		return "", nil
	}
	for _, ut := range usageTypes {
		if strings.EqualFold(s, string(ut)) {
			return ut, nil
		}
	}
	return "", fmt.Errorf("unknown usage type %q", s)
}

type Category string

const (
	CategoryFlour         Category = "flour"
	CategorySugar         Category = "sugar"
	CategoryDairy         Category = "dairy"
	CategoryEggs          Category = "eggs"
	CategoryFats          Category = "fats"
	CategoryLeavening     Category = "leavening"
	CategoryFlavoring     Category = "flavoring"
	CategoryNuts          Category = "nuts"
	CategoryFruits        Category = "fruits"
	CategoryChocolate     Category = "chocolate"
	CategorySpices        Category = "spices"
	CategoryPreservatives Category = "preservatives"
	CategoryOther         Category = "other"
)

// Categories lists every known ingredient category.
var Categories = []Category{
	CategoryFlour, CategorySugar, CategoryDairy, CategoryEggs, CategoryFats,
	CategoryLeavening, CategoryFlavoring, CategoryNuts, CategoryFruits,
	CategoryChocolate, CategorySpices, CategoryPreservatives, CategoryOther,
}

// ParseCategory maps unknown or empty values to CategoryOther.
func ParseCategory(s string) Category {
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CategoryOther
}

type Unit string

const (
	UnitKilogram   Unit = "kilogram"
	UnitGram       Unit = "gram"
	UnitLiter      Unit = "liter"
	UnitMilliliter Unit = "milliliter"
	UnitPiece      Unit = "unit"
)

// Units lists every known measurement unit.
var Units = []Unit{UnitKilogram, UnitGram, UnitLiter, UnitMilliliter, UnitPiece}

func ParseUnit(s string) (Unit, error) {
	for _, u := range Units {
		if strings.EqualFold(s, string(u)) {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

// Lookup resolves an ingredient id against an ingredient table. Missing
// and inactive ingredients both report ok=false.
func Lookup(ingredients map[string]Ingredient, id string) (Ingredient, bool) {
	ing, ok := ingredients[id]
	if !ok || !ing.Active {
		return Ingredient{}, false
	}
	return ing, true
}
