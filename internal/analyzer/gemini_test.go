package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"reisekosten/internal/core"
)

type fakeModels struct {
	text   string
	err    error
	calls  int
	model  string
	config *genai.GenerateContentConfig
	parts  []*genai.Part
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.config = config
	if len(contents) > 0 {
		f.parts = contents[0].Parts
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func pngDoc() Document {
	return Document{Name: "beleg.png", MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
}

func TestGemini_Analyze(t *testing.T) {
	fake := &fakeModels{text: `{"amount": 89.9, "date": "2025-06-01", "description": "Hotel", "category": "accommodation"}`}
	g := newGemini(fake, "", nil)

	res, err := g.Analyze(context.Background(), pngDoc())
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, fake.model)
	assert.Equal(t, "application/json", fake.config.ResponseMIMEType)
	require.Len(t, fake.parts, 2)
	require.NotNil(t, fake.parts[0].InlineData)
	assert.Equal(t, "image/png", fake.parts[0].InlineData.MIMEType)

	require.NotNil(t, res.Category)
	assert.Equal(t, core.CategoryAccommodation, *res.Category)
	assert.Equal(t, "89.9", res.Amount.String())
}

func TestGemini_Errors(t *testing.T) {
	var analysisErr *core.AnalysisError

	g := newGemini(&fakeModels{err: errors.New("quota exceeded")}, "m", nil)
	_, err := g.Analyze(context.Background(), pngDoc())
	require.True(t, errors.As(err, &analysisErr))
	assert.Equal(t, "beleg.png", analysisErr.File)

	g = newGemini(&fakeModels{text: "sorry"}, "m", nil)
	_, err = g.Analyze(context.Background(), pngDoc())
	assert.ErrorIs(t, err, ErrUnusableResponse)

	fake := &fakeModels{}
	g = newGemini(fake, "m", nil)
	_, err = g.Analyze(context.Background(), Document{Name: "a.txt", MIMEType: "text/plain"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Zero(t, fake.calls)
}

func TestNewGemini_MissingKey(t *testing.T) {
	_, err := NewGemini(context.Background(), " ", "", nil)
	var cfgErr *core.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, ErrNotConfigured)
}
