// -----------------------------------------------------------------------
// Manual parser - header-normalization extraction of holdings tables
// -----------------------------------------------------------------------

package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
)

// Canonical column names the extractor works with
const (
	colName   = "name_of_instrument"
	colISIN   = "isin_code"
	colWeight = "percentage_to_nav"
)

// defaultHeaderMap maps lowercased header synonyms to canonical columns
var defaultHeaderMap = map[string]string{
	"name of the instrument": colName,
	"name of instrument":     colName,
	"security name":          colName,
	"instrument":             colName,
	"company":                colName,
	"holding":                colName,
	"isin":                   colISIN,
	"isin code":              colISIN,
	"% to nav":               colWeight,
	"% to net assets":        colWeight,
	"% of nav":               colWeight,
	"percentage to nav":      colWeight,
	"weight":                 colWeight,
	"allocation":             colWeight,
	"portfolio %":            colWeight,
	"%":                      colWeight,
}

// ManualParser extracts holdings by normalizing header synonyms against a
// configurable dictionary. A sheet with no recognizable holdings table is a
// per-sheet error, never a job failure.
type ManualParser struct {
	headerMap map[string]string
	logger    arbor.ILogger
}

// NewManualParser builds the parser; extra synonym entries override defaults
func NewManualParser(extra map[string]string, logger arbor.ILogger) *ManualParser {
	headerMap := make(map[string]string, len(defaultHeaderMap)+len(extra))
	for k, v := range defaultHeaderMap {
		headerMap[k] = v
	}
	for k, v := range extra {
		headerMap[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &ManualParser{
		headerMap: headerMap,
		logger:    logger,
	}
}

// ParseSheet implements interfaces.SheetParser
func (p *ManualParser) ParseSheet(ctx context.Context, block models.SheetBlock) (*models.Portfolio, error) {
	headerRow, colmap := p.locateHeader(block.Rows)
	if colmap == nil {
		return nil, models.NewJobError(models.ErrKindParseSheet,
			fmt.Sprintf("sheet %s has no recognizable holdings table", block.Name))
	}

	holdings := p.extractHoldings(block.Rows[headerRow+1:], colmap)
	if len(holdings) == 0 {
		return nil, models.NewJobError(models.ErrKindParseSheet,
			fmt.Sprintf("sheet %s holdings table is empty", block.Name))
	}

	fundName, portfolioDate := p.scanPreamble(block.Rows[:headerRow], block.Name)

	portfolio := &models.Portfolio{
		MutualFundName:    fundName,
		PortfolioDate:     portfolioDate,
		PortfolioHoldings: holdings,
	}
	portfolio.Normalize()
	return portfolio, nil
}

// locateHeader finds the first row where at least two canonical columns,
// one of them the instrument-name column, resolve through the synonym map.
// Returns the row index and a map of
// canonical column -> cell index.
func (p *ManualParser) locateHeader(rows [][]string) (int, map[string]int) {
	for i, row := range rows {
		colmap := make(map[string]int)
		for j, cell := range row {
			key := strings.ToLower(strings.TrimSpace(cell))
			if canonical, ok := p.headerMap[key]; ok {
				if _, taken := colmap[canonical]; !taken {
					colmap[canonical] = j
				}
			}
		}
		if len(colmap) >= 2 {
			if _, hasName := colmap[colName]; hasName {
				return i, colmap
			}
		}
	}
	return 0, nil
}

// extractHoldings walks data rows below the header until the table ends.
// Rows without a name and ISIN are skipped; a run of blank rows ends the
// table so footer totals are not swallowed as holdings.
func (p *ManualParser) extractHoldings(rows [][]string, colmap map[string]int) []models.Holding {
	cell := func(row []string, canonical string) string {
		idx, ok := colmap[canonical]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var holdings []models.Holding
	blanks := 0
	for _, row := range rows {
		name := cell(row, colName)
		isin := cell(row, colISIN)
		weight := cell(row, colWeight)

		if name == "" && isin == "" {
			blanks++
			if blanks >= 3 {
				break
			}
			continue
		}
		blanks = 0

		if name == "" {
			continue
		}
		// Subtotal and grand-total lines repeat the table shape without an ISIN
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "total") || strings.HasPrefix(lower, "grand total") || strings.HasPrefix(lower, "sub total") {
			continue
		}

		holdings = append(holdings, models.Holding{
			NameOfInstrument: name,
			ISINCode:         isin,
			PercentageToNAV:  weight,
		})
	}
	return holdings
}

// scanPreamble pulls the fund name and statement date from the rows above
// the holdings table. Values stay free-form as received; the sheet name is
// the fallback fund name.
func (p *ManualParser) scanPreamble(rows [][]string, sheetName string) (string, string) {
	fundName := ""
	portfolioDate := ""

	months := []string{
		"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december",
	}

	for _, row := range rows {
		for _, cell := range row {
			value := strings.TrimSpace(cell)
			if value == "" {
				continue
			}
			lower := strings.ToLower(value)

			if fundName == "" && strings.Contains(lower, "fund") {
				fundName = value
				continue
			}
			if portfolioDate == "" {
				if strings.Contains(lower, "as on") || strings.Contains(lower, "as at") {
					portfolioDate = value
					continue
				}
				for _, month := range months {
					if strings.Contains(lower, month) {
						portfolioDate = value
						break
					}
				}
			}
		}
	}

	if fundName == "" {
		fundName = sheetName
	}
	if portfolioDate == "" {
		portfolioDate = "unknown"
	}
	return fundName, portfolioDate
}

var _ interfaces.SheetParser = (*ManualParser)(nil)
