// -----------------------------------------------------------------------
// Workbook ingest - decompose, parse per sheet, persist with sheet identity
// -----------------------------------------------------------------------

package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
)

// ParseMethod selects how sheets are parsed
const (
	ParseMethodManual = "manual"
	ParseMethodLLM    = "llm"
)

// Observer receives progress during an ingest run. The queue's JobContext
// satisfies it directly; the synchronous upload path passes a context-backed
// no-op.
type Observer interface {
	SetTotal(total int)
	Advance(succeeded bool, currentItem string)
	Cancelled() bool
}

// Summary is the result of one ingest run
type Summary struct {
	TotalSheets  int                 `json:"total_sheets"`
	ParsedSheets int                 `json:"parsed_sheets"`
	FailedSheets int                 `json:"failed_sheets"`
	PortfolioIDs []string            `json:"portfolio_ids"`
	SheetErrors  []models.SheetError `json:"sheet_errors,omitempty"`
}

// ToResult renders the summary as a job result map
func (s *Summary) ToResult() map[string]any {
	result := map[string]any{
		"total_sheets":  s.TotalSheets,
		"parsed_sheets": s.ParsedSheets,
		"failed_sheets": s.FailedSheets,
		"portfolio_ids": s.PortfolioIDs,
	}
	if len(s.SheetErrors) > 0 {
		errs := make([]map[string]any, len(s.SheetErrors))
		for i, se := range s.SheetErrors {
			errs[i] = map[string]any{
				"sheet_name": se.SheetName,
				"kind":       se.Kind,
				"message":    se.Message,
			}
		}
		result["sheet_errors"] = errs
	}
	return result
}

// Service runs the spreadsheet workflow: decompose the workbook, parse each
// sheet, and upsert portfolios under their sheet identity. Per-sheet errors
// are collected, never raised; the run fails only when no sheet succeeds.
type Service struct {
	decoder    interfaces.WorkbookDecoder
	manual     interfaces.SheetParser
	extractor  interfaces.PortfolioExtractor // nil when no provider is configured
	portfolios interfaces.PortfolioStorage
	logger     arbor.ILogger
}

// NewService wires the workflow capabilities
func NewService(decoder interfaces.WorkbookDecoder, manual interfaces.SheetParser, extractor interfaces.PortfolioExtractor, portfolios interfaces.PortfolioStorage, logger arbor.ILogger) *Service {
	return &Service{
		decoder:    decoder,
		manual:     manual,
		extractor:  extractor,
		portfolios: portfolios,
		logger:     logger,
	}
}

// ResolveMethod normalizes the requested parse method. An empty request
// prefers LLM extraction when a provider is configured.
func (s *Service) ResolveMethod(requested string) (method string, pinned bool, err error) {
	switch requested {
	case "":
		if s.extractor != nil {
			return ParseMethodLLM, false, nil
		}
		return ParseMethodManual, false, nil
	case ParseMethodManual, ParseMethodLLM:
		return requested, true, nil
	default:
		return "", false, fmt.Errorf("unknown parse method: %s", requested)
	}
}

// Ingest runs the full pipeline over raw workbook bytes
func (s *Service) Ingest(ctx context.Context, data []byte, method string, pinned bool, observer Observer) (*Summary, *models.JobError) {
	blocks, err := s.decoder.Decode(data)
	if err != nil {
		return nil, models.NewJobError(models.ErrKindParseTotalFailure, err.Error())
	}

	observer.SetTotal(len(blocks))

	summary := &Summary{TotalSheets: len(blocks)}

	for _, block := range blocks {
		// Yield point: stop before starting the next sheet
		if observer.Cancelled() {
			return nil, models.NewJobError(models.ErrKindCancelled,
				fmt.Sprintf("cancelled after %d of %d sheets", summary.ParsedSheets+summary.FailedSheets, len(blocks)))
		}

		sid := common.SheetID(block.ContentHash, block.Index, block.Name)

		portfolio, sheetErr := s.parseSheet(ctx, block, method, pinned)
		if sheetErr != nil {
			s.logger.Warn().
				Str("sheet", block.Name).
				Str("kind", string(sheetErr.Kind)).
				Str("error", sheetErr.Message).
				Msg("Sheet parse failed")
			summary.FailedSheets++
			summary.SheetErrors = append(summary.SheetErrors, *sheetErr)
			observer.Advance(false, block.Name)
			continue
		}

		portfolio.ID = sid
		storedID, err := s.portfolios.Upsert(ctx, portfolio)
		if err != nil {
			summary.FailedSheets++
			summary.SheetErrors = append(summary.SheetErrors, models.SheetError{
				SheetName: block.Name,
				Kind:      models.ErrKindStoreUnavailable,
				Message:   err.Error(),
			})
			observer.Advance(false, block.Name)
			continue
		}

		s.logger.Info().
			Str("sheet", block.Name).
			Str("portfolio_id", storedID).
			Str("fund", portfolio.MutualFundName).
			Int("holdings", portfolio.TotalHoldings).
			Msg("Sheet parsed and portfolio stored")

		summary.ParsedSheets++
		summary.PortfolioIDs = append(summary.PortfolioIDs, storedID)
		observer.Advance(true, block.Name)
	}

	if summary.ParsedSheets == 0 {
		return nil, models.NewJobError(models.ErrKindParseTotalFailure,
			fmt.Sprintf("no sheet produced a portfolio (%d failed)", summary.FailedSheets))
	}
	return summary, nil
}

// parseSheet runs one sheet through the selected parser. LLM extraction
// falls back to manual parsing when the adapter signals it, unless the
// caller pinned the llm method and the adapter is absent entirely.
func (s *Service) parseSheet(ctx context.Context, block models.SheetBlock, method string, pinned bool) (*models.Portfolio, *models.SheetError) {
	if method == ParseMethodLLM {
		if s.extractor == nil {
			if pinned {
				return nil, &models.SheetError{
					SheetName: block.Name,
					Kind:      models.ErrKindParseSheet,
					Message:   "llm parse method requested but no provider is configured",
				}
			}
			return s.parseManual(ctx, block)
		}

		portfolio, err := s.extractor.ExtractPortfolio(ctx, block)
		if err == nil {
			return portfolio, nil
		}
		if errors.Is(err, interfaces.ErrFallbackToManual) {
			s.logger.Debug().Str("sheet", block.Name).Msg("LLM adapter unavailable, falling back to manual parsing")
			return s.parseManual(ctx, block)
		}

		kind := models.ErrKindParseSheet
		if jobErr, ok := err.(*models.JobError); ok {
			kind = jobErr.Kind
		}
		return nil, &models.SheetError{
			SheetName: block.Name,
			Kind:      kind,
			Message:   err.Error(),
		}
	}

	return s.parseManual(ctx, block)
}

func (s *Service) parseManual(ctx context.Context, block models.SheetBlock) (*models.Portfolio, *models.SheetError) {
	portfolio, err := s.manual.ParseSheet(ctx, block)
	if err != nil {
		kind := models.ErrKindParseSheet
		if jobErr, ok := err.(*models.JobError); ok {
			kind = jobErr.Kind
		}
		return nil, &models.SheetError{
			SheetName: block.Name,
			Kind:      kind,
			Message:   err.Error(),
		}
	}
	return portfolio, nil
}
