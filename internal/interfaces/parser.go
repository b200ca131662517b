package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/folio/internal/models"
)

// ErrFallbackToManual signals that the LLM adapter could not reach its
// provider; the workflow retries the sheet with the manual parser instead of
// recording a per-sheet error.
var ErrFallbackToManual = errors.New("llm extraction unavailable, fall back to manual parsing")

// WorkbookDecoder turns raw workbook bytes into per-sheet tabular blocks
type WorkbookDecoder interface {
	Decode(data []byte) ([]models.SheetBlock, error)
}

// SheetParser extracts a portfolio from one tabular block
type SheetParser interface {
	ParseSheet(ctx context.Context, block models.SheetBlock) (*models.Portfolio, error)
}

// PortfolioExtractor is the LLM capability behind the "llm" parse method.
// Implementations return ErrFallbackToManual when the provider call fails
// before its deadline; a timeout is an upstream_timeout error, and a response
// that is malformed or fails schema validation is an upstream_parse error.
type PortfolioExtractor interface {
	ExtractPortfolio(ctx context.Context, block models.SheetBlock) (*models.Portfolio, error)
	Provider() string
}
