// -----------------------------------------------------------------------
// Gemini extractor - Google GenAI-backed portfolio extraction
// -----------------------------------------------------------------------

package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiExtractor implements PortfolioExtractor using the Gemini API
type GeminiExtractor struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  arbor.ILogger
}

// NewGeminiExtractor creates a Gemini-backed extractor
func NewGeminiExtractor(config *common.LLMConfig, logger arbor.ILogger) (*GeminiExtractor, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for the gemini provider (set llm.api_key or FOLIO_LLM_API_KEY)")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
	}

	extractor := &GeminiExtractor{
		client:  client,
		model:   model,
		timeout: common.Duration(config.Timeout, 2*time.Minute),
		logger:  logger,
	}

	logger.Debug().
		Str("model", model).
		Dur("timeout", extractor.timeout).
		Msg("Gemini extractor initialized")

	return extractor, nil
}

func (e *GeminiExtractor) Provider() string {
	return "gemini"
}

// ExtractPortfolio asks for a JSON response and validates it against the
// extraction schema
func (e *GeminiExtractor) ExtractPortfolio(ctx context.Context, block models.SheetBlock) (*models.Portfolio, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(extractionSystemPrompt, genai.RoleUser),
	}

	contents := []*genai.Content{
		genai.NewContentFromText(renderSheet(block), genai.RoleUser),
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, config)
	if err != nil {
		e.logger.Warn().Err(err).Str("sheet", block.Name).Msg("Gemini API call failed")
		if ctx.Err() != nil {
			return nil, models.NewJobError(models.ErrKindUpstreamTimeout, "Gemini extraction timed out")
		}
		return nil, interfaces.ErrFallbackToManual
	}

	var text strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
			}
			if text.Len() > 0 {
				break
			}
		}
	}
	if text.Len() == 0 {
		return nil, models.NewJobError(models.ErrKindUpstreamParse, "Gemini returned no text content")
	}

	return decodeExtraction(text.String())
}

var _ interfaces.PortfolioExtractor = (*GeminiExtractor)(nil)
