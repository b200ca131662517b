// -----------------------------------------------------------------------
// Workbook decoder - raw bytes to per-sheet tabular blocks
// -----------------------------------------------------------------------

package workbook

import (
	"bytes"
	"fmt"

	"github.com/ternarybob/folio/internal/common"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
	"github.com/xuri/excelize/v2"
)

// ExcelDecoder decodes xlsx workbooks into per-sheet tabular blocks
type ExcelDecoder struct{}

// NewExcelDecoder creates the default workbook decoder
func NewExcelDecoder() interfaces.WorkbookDecoder {
	return &ExcelDecoder{}
}

// Decode reads workbook bytes and emits one block per sheet, in workbook
// order. The workbook content hash is stamped on every block so sheet
// identities stay content-addressed.
func (d *ExcelDecoder) Decode(data []byte) ([]models.SheetBlock, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("workbook is empty")
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	contentHash := common.ContentHash(data)

	var blocks []models.SheetBlock
	for index, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
		}
		blocks = append(blocks, models.SheetBlock{
			Index:       index,
			Name:        name,
			Rows:        rows,
			ContentHash: contentHash,
		})
	}

	if len(blocks) == 0 {
		return nil, fmt.Errorf("workbook contains no sheets")
	}
	return blocks, nil
}
