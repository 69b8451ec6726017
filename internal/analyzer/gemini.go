package analyzer

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"reisekosten/internal/core"
	"reisekosten/internal/log"
)

const DefaultModel = "gemini-2.0-flash"

// generator is the subset of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini analyzes receipts with the Gemini API.
type Gemini struct {
	models generator
	model  string
	prompt string
	logger *log.Logger
}

// NewGemini connects to the Gemini API. An empty key yields a ConfigurationError.
func NewGemini(ctx context.Context, apiKey, model string, logger *log.Logger) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &core.ConfigurationError{Service: "receipt analyzer", Err: ErrNotConfigured}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGemini(client.Models, model, logger), nil
}

func newGemini(models generator, model string, logger *log.Logger) *Gemini {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Gemini{
		models: models,
		model:  model,
		prompt: BuildPrompt(core.Categories),
		logger: logger.WithComponent(log.ComponentAnalyzer),
	}
}

func responseSchema() *genai.Schema {
	categories := make([]string, 0, len(core.Categories))
	for _, c := range core.Categories {
		categories = append(categories, string(c))
	}
	nullable := genai.Ptr(true)
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"amount":      {Type: genai.TypeNumber, Nullable: nullable, Description: "Total amount paid"},
			"date":        {Type: genai.TypeString, Nullable: nullable, Description: "Receipt date as YYYY-MM-DD"},
			"description": {Type: genai.TypeString, Nullable: nullable},
			"category":    {Type: genai.TypeString, Nullable: nullable, Enum: categories},
		},
		Required: []string{"amount", "date", "description", "category"},
	}
}

func (g *Gemini) Analyze(ctx context.Context, doc Document) (Result, error) {
	if !doc.Supported() {
		return Result{}, &core.AnalysisError{File: doc.Name, Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, doc.MIMEType)}
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(doc.Data, doc.MIMEType),
		genai.NewPartFromText(g.prompt),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
		Temperature:      genai.Ptr[float32](0),
	}

	resp, err := g.models.GenerateContent(ctx, g.model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		g.logger.WarnContext(ctx, "Receipt analysis request failed",
			log.FieldOperation, log.OpAnalyze,
			log.FieldFile, doc.Name,
			log.FieldError, err)
		return Result{}, &core.AnalysisError{File: doc.Name, Err: err}
	}
	if resp == nil {
		return Result{}, &core.AnalysisError{File: doc.Name, Err: ErrUnusableResponse}
	}

	res, err := ParseResult(resp.Text())
	if err != nil {
		g.logger.WarnContext(ctx, "Receipt analysis returned unusable JSON",
			log.FieldOperation, log.OpParse,
			log.FieldFile, doc.Name,
			log.FieldError, err)
		return Result{}, &core.AnalysisError{File: doc.Name, Err: err}
	}

	g.logger.DebugContext(ctx, "Receipt analyzed",
		log.FieldFile, doc.Name,
		"empty", res.IsEmpty())
	return res, nil
}
