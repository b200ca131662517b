package parser

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
)

// NewExtractor selects the configured LLM provider. An empty provider means
// manual-only parsing; nil is returned and the workflow never attempts LLM
// extraction.
func NewExtractor(config *common.LLMConfig, logger arbor.ILogger) (interfaces.PortfolioExtractor, error) {
	switch config.Provider {
	case "":
		return nil, nil
	case "claude":
		return NewClaudeExtractor(config, logger)
	case "gemini":
		return NewGeminiExtractor(config, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", config.Provider)
	}
}
