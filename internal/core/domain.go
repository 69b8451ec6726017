package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// MaxDescriptionLength bounds the free text stored with an expense.
const MaxDescriptionLength = 500

type (
	Date struct {
		time.Time
	}

	// Expense is a persisted travel expense. ID is assigned by the repository.
	Expense struct {
		ID          string    `json:"id"`
		Amount      Money     `json:"amount"`
		Category    Category  `json:"category"`
		Description string    `json:"description"`
		Date        Date      `json:"date"`
		Image       string    `json:"image"`
		Kilometers  *Distance `json:"kilometers,omitempty"`
	}

	// NewExpense is an expense that has not been persisted yet.
	NewExpense struct {
		Amount      Money     `json:"amount"`
		Category    Category  `json:"category"`
		Description string    `json:"description"`
		Date        Date      `json:"date"`
		Image       string    `json:"image"`
		Kilometers  *Distance `json:"kilometers,omitempty"`
	}

	// ExpensePatch carries a partial update. Nil fields are left untouched.
	// ClearKilometers removes a stored distance.
	ExpensePatch struct {
		Amount          *Money    `json:"amount,omitempty"`
		Category        *Category `json:"category,omitempty"`
		Description     *string   `json:"description,omitempty"`
		Date            *Date     `json:"date,omitempty"`
		Image           *string   `json:"image,omitempty"`
		Kilometers      *Distance `json:"kilometers,omitempty"`
		ClearKilometers bool      `json:"clear_kilometers,omitempty"`
	}

	// Distance is a travelled distance in kilometers.
	Distance struct {
		decimal.Decimal
	}
)

var (
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrMissingImage       = errors.New("missing receipt file")
	ErrInvalidKilometers  = errors.New("invalid kilometers")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrEmptyPatch         = errors.New("empty update")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, b)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDistance parses a kilometer value with dot or comma separator.
func ParseDistance(s string) (Distance, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Distance{}, fmt.Errorf("%w: %q", ErrInvalidKilometers, s)
	}
	return Distance{Decimal: v}, nil
}

func (d Distance) Validate() error {
	if !d.IsPositive() {
		return ErrInvalidKilometers
	}
	return nil
}

// MarshalJSON writes the distance as a bare JSON number.
func (d Distance) MarshalJSON() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

func (d *Distance) UnmarshalJSON(b []byte) error {
	return d.Decimal.UnmarshalJSON(b)
}

// Normalize drops the distance for every category except travel.
func (e NewExpense) Normalize() NewExpense {
	if e.Category != CategoryTravel {
		e.Kilometers = nil
	}
	e.Description = strings.TrimSpace(e.Description)
	return e
}

func (e NewExpense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if !e.Category.Valid() {
		return &ValidationError{Field: "category", Err: ErrInvalidCategory}
	}
	if strings.TrimSpace(e.Image) == "" {
		return &ValidationError{Field: "image", Err: ErrMissingImage}
	}
	if err := e.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Err: err}
	}
	if len(e.Description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Err: ErrDescriptionTooLong}
	}
	if e.Category == CategoryTravel && e.Kilometers != nil {
		if err := e.Kilometers.Validate(); err != nil {
			return &ValidationError{Field: "kilometers", Err: err}
		}
	}
	return nil
}

// EffectiveKilometers is the distance only when the expense is a travel expense.
func (e Expense) EffectiveKilometers() *Distance {
	if e.Category != CategoryTravel {
		return nil
	}
	return e.Kilometers
}

// Apply merges p into e. The ID never changes.
func (e Expense) Apply(p ExpensePatch) Expense {
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Description != nil {
		e.Description = strings.TrimSpace(*p.Description)
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Image != nil {
		e.Image = *p.Image
	}
	if p.Kilometers != nil {
		k := *p.Kilometers
		e.Kilometers = &k
	}
	if p.ClearKilometers {
		e.Kilometers = nil
	}
	if e.Category != CategoryTravel {
		e.Kilometers = nil
	}
	return e
}

func (p ExpensePatch) IsEmpty() bool {
	return p.Amount == nil && p.Category == nil && p.Description == nil &&
		p.Date == nil && p.Image == nil && p.Kilometers == nil && !p.ClearKilometers
}

func (p ExpensePatch) Validate() error {
	if p.IsEmpty() {
		return &ValidationError{Err: ErrEmptyPatch}
	}
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return &ValidationError{Field: "amount", Err: err}
		}
	}
	if p.Category != nil && !p.Category.Valid() {
		return &ValidationError{Field: "category", Err: ErrInvalidCategory}
	}
	if p.Image != nil && strings.TrimSpace(*p.Image) == "" {
		return &ValidationError{Field: "image", Err: ErrMissingImage}
	}
	if p.Date != nil {
		if err := p.Date.Validate(); err != nil {
			return &ValidationError{Field: "date", Err: err}
		}
	}
	if p.Description != nil && len(*p.Description) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Err: ErrDescriptionTooLong}
	}
	if p.Kilometers != nil {
		if err := p.Kilometers.Validate(); err != nil {
			return &ValidationError{Field: "kilometers", Err: err}
		}
	}
	return nil
}
