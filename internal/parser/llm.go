// -----------------------------------------------------------------------
// LLM extraction - shared prompt, rendering, and response validation
// -----------------------------------------------------------------------

package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/folio/internal/models"
)

// extractionSystemPrompt instructs the provider to emit schema-shaped JSON
const extractionSystemPrompt = `You are given one sheet of a mutual fund portfolio statement as a table.
Return a STRICT JSON object with exactly these keys:
  mutual_fund_name   (string, the fund's name as printed)
  portfolio_date     (string, the statement date as printed, e.g. "March 2025")
  portfolio_holdings (array of {name_of_instrument, isin_code, percentage_to_nav})
Keep percentage_to_nav exactly as printed, including any "%" suffix.
Exclude total and subtotal rows. No commentary, no markdown fences.`

// maxRenderRows caps the table rendered into the prompt
const maxRenderRows = 400

// renderSheet flattens a tabular block into pipe-separated text for the prompt
func renderSheet(block models.SheetBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sheet: %s\n\n", block.Name)

	rows := block.Rows
	if len(rows) > maxRenderRows {
		rows = rows[:maxRenderRows]
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = strings.ReplaceAll(strings.TrimSpace(cell), "|", "/")
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// extractedPortfolio is the schema the provider response must satisfy
type extractedPortfolio struct {
	MutualFundName    string `json:"mutual_fund_name" validate:"required"`
	PortfolioDate     string `json:"portfolio_date" validate:"required"`
	PortfolioHoldings []struct {
		NameOfInstrument string `json:"name_of_instrument" validate:"required"`
		ISINCode         string `json:"isin_code"`
		PercentageToNAV  string `json:"percentage_to_nav"`
	} `json:"portfolio_holdings" validate:"required,min=1,dive"`
}

var validate = validator.New()

// decodeExtraction parses and validates a provider response. Markdown fences
// are tolerated; anything failing schema validation is an upstream_parse error.
func decodeExtraction(raw string) (*models.Portfolio, error) {
	text := strings.TrimSpace(raw)
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = strings.TrimPrefix(text[idx:], "```json")
		text = strings.TrimPrefix(text, "```")
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	// Be tolerant of stray prose around the object
	if start := strings.Index(text, "{"); start > 0 {
		text = text[start:]
	}
	if end := strings.LastIndex(text, "}"); end >= 0 {
		text = text[:end+1]
	}

	var extracted extractedPortfolio
	if err := json.Unmarshal([]byte(text), &extracted); err != nil {
		return nil, models.NewJobError(models.ErrKindUpstreamParse,
			fmt.Sprintf("provider response is not valid JSON: %v", err))
	}
	if err := validate.Struct(&extracted); err != nil {
		return nil, models.NewJobError(models.ErrKindUpstreamParse,
			fmt.Sprintf("provider response failed schema validation: %v", err))
	}

	portfolio := &models.Portfolio{
		MutualFundName: strings.TrimSpace(extracted.MutualFundName),
		PortfolioDate:  strings.TrimSpace(extracted.PortfolioDate),
	}
	for _, h := range extracted.PortfolioHoldings {
		portfolio.PortfolioHoldings = append(portfolio.PortfolioHoldings, models.Holding{
			NameOfInstrument: strings.TrimSpace(h.NameOfInstrument),
			ISINCode:         strings.TrimSpace(h.ISINCode),
			PercentageToNAV:  strings.TrimSpace(h.PercentageToNAV),
		})
	}
	portfolio.Normalize()
	return portfolio, nil
}
