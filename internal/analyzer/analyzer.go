// Package analyzer extracts a best-effort expense draft from a receipt image or PDF.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"reisekosten/internal/core"
)

var (
	ErrNotConfigured     = errors.New("no API key configured")
	ErrUnusableResponse  = errors.New("unusable analyzer response")
	ErrUnsupportedFormat = errors.New("unsupported document type")
)

// Document is a decoded receipt ready for analysis.
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}

// DocumentFromDataURI decodes an encoded receipt.
func DocumentFromDataURI(name, uri string) (Document, error) {
	mimeType, data, err := core.DecodeDataURI(uri)
	if err != nil {
		return Document{}, err
	}
	return Document{Name: name, MIMEType: mimeType, Data: data}, nil
}

// Supported reports whether the analyzer accepts the document's media type.
func (d Document) Supported() bool {
	return strings.HasPrefix(d.MIMEType, "image/") || d.MIMEType == "application/pdf"
}

// Result holds the extracted fields. Nil means the analyzer could not tell.
type Result struct {
	Amount      *decimal.Decimal
	Date        *core.Date
	Description *string
	Category    *core.Category
}

func (r Result) IsEmpty() bool {
	return r.Amount == nil && r.Date == nil && r.Description == nil && r.Category == nil
}

type Analyzer interface {
	Analyze(ctx context.Context, doc Document) (Result, error)
}

// Disabled is used when no credentials are configured. Every call reports a ConfigurationError.
type Disabled struct{}

func (Disabled) Analyze(context.Context, Document) (Result, error) {
	return Result{}, &core.ConfigurationError{Service: "receipt analyzer", Err: ErrNotConfigured}
}

// BuildPrompt renders the extraction instructions for the given categories.
func BuildPrompt(categories []core.Category) string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, string(c))
	}

	var b strings.Builder
	b.WriteString("You are reading a receipt from a business trip. ")
	b.WriteString("Extract the following fields and answer with a single JSON object only:\n")
	b.WriteString(`{"amount": number|null, "date": "YYYY-MM-DD"|null, "description": string|null, "category": string|null}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- amount is the total paid, as a positive number with a dot as decimal separator.\n")
	b.WriteString("- date is the date printed on the receipt.\n")
	b.WriteString("- description is a short German summary of what was bought, at most 100 characters.\n")
	fmt.Fprintf(&b, "- category must be exactly one of: %s.\n", strings.Join(names, ", "))
	b.WriteString("- Use null for any field you cannot read with confidence.\n")
	return b.String()
}

type rawResult struct {
	Amount      json.RawMessage `json:"amount"`
	Date        *string         `json:"date"`
	Description *string         `json:"description"`
	Category    *string         `json:"category"`
}

// ParseResult decodes the analyzer's JSON answer. Markdown code fences are
// tolerated. Fields that are present but invalid become nil; an answer that
// is not a JSON object is an error.
func ParseResult(text string) (Result, error) {
	text = stripFences(text)
	if text == "" {
		return Result{}, ErrUnusableResponse
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnusableResponse, err)
	}

	var res Result
	if amount, ok := parseAmount(raw.Amount); ok {
		res.Amount = &amount
	}
	if raw.Date != nil {
		if d, err := core.ParseDate(*raw.Date); err == nil {
			res.Date = &d
		}
	}
	if raw.Description != nil {
		if desc := strings.TrimSpace(*raw.Description); desc != "" {
			if len(desc) > core.MaxDescriptionLength {
				desc = strings.ToValidUTF8(desc[:core.MaxDescriptionLength], "")
			}
			res.Description = &desc
		}
	}
	if raw.Category != nil {
		if c, err := core.ParseCategory(*raw.Category); err == nil {
			res.Category = &c
		}
	}
	return res, nil
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Decimal{}, false
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "€"))
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
