package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Category string

const (
	CategoryTravel        Category = "travel"
	CategoryAccommodation Category = "accommodation"
	CategoryFood          Category = "food"
	CategoryOther         Category = "other"
)

// CategoryInfo is the display metadata for a category.
type CategoryInfo struct {
	Label string
	Icon  string
}

// Categories lists every category in display order.
var Categories = []Category{CategoryTravel, CategoryAccommodation, CategoryFood, CategoryOther}

var categoryInfo = map[Category]CategoryInfo{
	CategoryTravel:        {Label: "Reise", Icon: "car"},
	CategoryAccommodation: {Label: "Unterkunft", Icon: "bed"},
	CategoryFood:          {Label: "Verpflegung", Icon: "utensils"},
	CategoryOther:         {Label: "Sonstiges", Icon: "receipt"},
}

func (c Category) Valid() bool {
	_, ok := categoryInfo[c]
	return ok
}

// Info returns the label and icon. Unknown categories fall back to their raw value.
func (c Category) Info() CategoryInfo {
	if info, ok := categoryInfo[c]; ok {
		return info
	}
	return CategoryInfo{Label: string(c)}
}

func (c Category) Label() string { return c.Info().Label }

// ParseCategory is case-insensitive and accepts the German label as well.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) || strings.EqualFold(s, c.Label()) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCategory, b)
	}
	if s == "" {
		*c = ""
		return nil
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
