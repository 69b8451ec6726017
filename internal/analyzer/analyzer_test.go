package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reisekosten/internal/core"
)

func TestParseResult(t *testing.T) {
	res, err := ParseResult("```json\n{\"amount\": 23.4, \"date\": \"2025-05-02\", \"description\": \" Taxi Flughafen \", \"category\": \"travel\"}\n```")
	require.NoError(t, err)
	require.NotNil(t, res.Amount)
	assert.Equal(t, "23.4", res.Amount.String())
	require.NotNil(t, res.Date)
	assert.Equal(t, "2025-05-02", res.Date.String())
	require.NotNil(t, res.Description)
	assert.Equal(t, "Taxi Flughafen", *res.Description)
	require.NotNil(t, res.Category)
	assert.Equal(t, core.CategoryTravel, *res.Category)
}

func TestParseResult_NullAndInvalidFields(t *testing.T) {
	res, err := ParseResult(`{"amount": null, "date": "yesterday", "description": "", "category": "fuel"}`)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty(), "invalid fields must become nil: %+v", res)

	res, err = ParseResult(`{"amount": "12,50", "category": "Verpflegung"}`)
	require.NoError(t, err)
	require.NotNil(t, res.Amount)
	assert.Equal(t, "12.5", res.Amount.String())
	assert.Equal(t, core.CategoryFood, *res.Category)

	res, err = ParseResult(`{"amount": -4}`)
	require.NoError(t, err)
	assert.Nil(t, res.Amount)
}

func TestParseResult_Unusable(t *testing.T) {
	for _, in := range []string{"", "I cannot read this receipt", "[1,2]"} {
		_, err := ParseResult(in)
		assert.ErrorIs(t, err, ErrUnusableResponse, "input %q", in)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(core.Categories)
	assert.Contains(t, p, "travel, accommodation, food, other")
	assert.True(t, strings.Contains(p, "null"))
}

func TestDocumentFromDataURI(t *testing.T) {
	doc, err := DocumentFromDataURI("beleg.pdf", core.EncodeDataURI("application/pdf", []byte("%PDF")))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.MIMEType)
	assert.True(t, doc.Supported())

	doc.MIMEType = "text/plain"
	assert.False(t, doc.Supported())

	_, err = DocumentFromDataURI("x", "not a uri")
	assert.ErrorIs(t, err, core.ErrInvalidDataURI)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Analyze(context.Background(), Document{})
	var cfgErr *core.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, ErrNotConfigured)
}
