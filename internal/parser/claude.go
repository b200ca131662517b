// -----------------------------------------------------------------------
// Claude extractor - Anthropic-backed portfolio extraction
// -----------------------------------------------------------------------

package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// ClaudeExtractor implements PortfolioExtractor using the Anthropic API
type ClaudeExtractor struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	logger  arbor.ILogger
}

// NewClaudeExtractor creates a Claude-backed extractor
func NewClaudeExtractor(config *common.LLMConfig, logger arbor.ILogger) (*ClaudeExtractor, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for the claude provider (set llm.api_key or FOLIO_LLM_API_KEY)")
	}

	model := config.Model
	if model == "" {
		model = defaultClaudeModel
	}

	extractor := &ClaudeExtractor{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: common.Duration(config.Timeout, 2*time.Minute),
		logger:  logger,
	}

	logger.Debug().
		Str("model", model).
		Dur("timeout", extractor.timeout).
		Msg("Claude extractor initialized")

	return extractor, nil
}

func (e *ClaudeExtractor) Provider() string {
	return "claude"
}

// ExtractPortfolio renders the sheet into the prompt and validates the
// response against the extraction schema. Provider transport failures
// signal the manual fallback; malformed responses are upstream_parse errors.
func (e *ClaudeExtractor) ExtractPortfolio(ctx context.Context, block models.SheetBlock) (*models.Portfolio, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: extractionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(renderSheet(block))),
		},
	}

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		e.logger.Warn().Err(err).Str("sheet", block.Name).Msg("Claude API call failed")
		if ctx.Err() != nil {
			return nil, models.NewJobError(models.ErrKindUpstreamTimeout, "Claude extraction timed out")
		}
		return nil, interfaces.ErrFallbackToManual
	}

	var text strings.Builder
	for _, blk := range resp.Content {
		if blk.Type == "text" {
			text.WriteString(blk.Text)
		}
	}
	if text.Len() == 0 {
		return nil, models.NewJobError(models.ErrKindUpstreamParse, "Claude returned no text content")
	}

	return decodeExtraction(text.String())
}

var _ interfaces.PortfolioExtractor = (*ClaudeExtractor)(nil)
