package intake

import (
	"strings"

	"reisekosten/internal/analyzer"
	"reisekosten/internal/core"
)

// Draft is the editable expense assembled for the current queue item.
// A zero Amount or empty Category means the value is still unknown.
type Draft struct {
	Amount      core.Money     `json:"amount"`
	Category    core.Category  `json:"category"`
	Description string         `json:"description"`
	Date        core.Date      `json:"date"`
	Kilometers  *core.Distance `json:"kilometers,omitempty"`
}

// DraftPatch edits a draft. Nil fields are left untouched.
type DraftPatch struct {
	Amount          *core.Money    `json:"amount,omitempty"`
	Category        *core.Category `json:"category,omitempty"`
	Description     *string        `json:"description,omitempty"`
	Date            *core.Date     `json:"date,omitempty"`
	Kilometers      *core.Distance `json:"kilometers,omitempty"`
	ClearKilometers bool           `json:"clear_kilometers,omitempty"`
}

func (p DraftPatch) validate() error {
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return &core.ValidationError{Field: "amount", Err: err}
		}
	}
	if p.Category != nil && !p.Category.Valid() {
		return &core.ValidationError{Field: "category", Err: core.ErrInvalidCategory}
	}
	if p.Date != nil {
		if err := p.Date.Validate(); err != nil {
			return &core.ValidationError{Field: "date", Err: err}
		}
	}
	if p.Kilometers != nil {
		if err := p.Kilometers.Validate(); err != nil {
			return &core.ValidationError{Field: "kilometers", Err: err}
		}
	}
	return nil
}

// apply merges p into d. Leaving the travel category clears the distance.
func (d Draft) apply(p DraftPatch) Draft {
	if p.Amount != nil {
		d.Amount = *p.Amount
	}
	if p.Category != nil {
		if d.Category == core.CategoryTravel && *p.Category != core.CategoryTravel {
			d.Kilometers = nil
		}
		d.Category = *p.Category
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.Date != nil {
		d.Date = *p.Date
	}
	if p.Kilometers != nil {
		k := *p.Kilometers
		d.Kilometers = &k
	}
	if p.ClearKilometers {
		d.Kilometers = nil
	}
	return d
}

// merge fills the draft with whatever the analyzer recognized.
func (d Draft) merge(r analyzer.Result) Draft {
	if r.Amount != nil {
		if m, err := core.MoneyFromDecimal(*r.Amount); err == nil {
			d.Amount = m
		}
	}
	if r.Date != nil {
		d.Date = *r.Date
	}
	if r.Description != nil {
		d.Description = *r.Description
	}
	if r.Category != nil {
		d.Category = *r.Category
	}
	return d
}

// withDefaults is the draft automatic mode commits: unknown category
// becomes other, unknown amount stays zero.
func (d Draft) withDefaults() Draft {
	if !d.Category.Valid() {
		d.Category = core.CategoryOther
	}
	return d
}

// check enforces the manual submit rules field by field.
func (d Draft) check(file PendingFile) error {
	if strings.TrimSpace(file.DataURI) == "" {
		return &core.ValidationError{Field: "image", Err: core.ErrMissingImage}
	}
	if err := d.Amount.Validate(); err != nil {
		return &core.ValidationError{Field: "amount", Err: err}
	}
	if !d.Category.Valid() {
		return &core.ValidationError{Field: "category", Err: core.ErrInvalidCategory}
	}
	return nil
}

func (d Draft) expense(file PendingFile) core.NewExpense {
	return core.NewExpense{
		Amount:      d.Amount,
		Category:    d.Category,
		Description: d.Description,
		Date:        d.Date,
		Image:       file.DataURI,
		Kilometers:  d.Kilometers,
	}.Normalize()
}
