/*
Package ai sends disclosure PDFs to the Gemini API and parses the response
into structured financial signals. Every failure mode degrades to a valid
Analysis with placeholder fields; this package never returns an error to
the pipeline.
*/
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/shanehull/tdnetwatch/internal/types"
)

const (
	// SummaryAnalysisFailed is stored when the model response could not be
	// parsed at all.
	SummaryAnalysisFailed = "分析に失敗しました"

	// SummaryNone is stored when the response parsed but carried no usable
	// summary field.
	SummaryNone = "要約なし"
)

// The model is asked for JSON only, but the response is not guaranteed to
// contain only JSON; ParseResponse scans for the first brace-delimited span.
var jsonSpan = regexp.MustCompile(`(?s)\{.*\}`)

// Analyzer extracts earnings signals from disclosure PDFs via Gemini.
type Analyzer struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewAnalyzer creates a Gemini-backed analyzer.
func NewAnalyzer(ctx context.Context, apiKey, model string, log zerolog.Logger) (*Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Analyzer{
		client: client,
		model:  model,
		log:    log,
	}, nil
}

// AnalyzePDF sends the document with the fixed extraction prompt and parses
// the reply. On any failure it returns the documented fallback instead of
// an error.
func (a *Analyzer) AnalyzePDF(ctx context.Context, pdf []byte) types.Analysis {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     pdf,
					},
				},
				{Text: analysisPrompt},
			},
		},
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		a.log.Error().Err(err).Msg("gemini API call failed")
		return failedAnalysis()
	}

	return ParseResponse(resp.Text())
}

// ParseResponse extracts the first brace-delimited JSON span from the raw
// model output and decodes the three expected fields. Absent or mistyped
// numeric fields become nil; a missing summary becomes a fixed placeholder.
func ParseResponse(text string) types.Analysis {
	span := jsonSpan.FindString(text)
	if span == "" {
		return failedAnalysis()
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return failedAnalysis()
	}

	analysis := types.Analysis{Summary: SummaryNone}
	if v, ok := raw["sales_pct"].(float64); ok {
		analysis.SalesPct = &v
	}
	if v, ok := raw["profit_pct"].(float64); ok {
		analysis.ProfitPct = &v
	}
	if s, ok := raw["summary"].(string); ok && s != "" {
		analysis.Summary = s
	}
	return analysis
}

func failedAnalysis() types.Analysis {
	return types.Analysis{Summary: SummaryAnalysisFailed}
}
