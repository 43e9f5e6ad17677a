package rows

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JulianTonti/specify7/internal/upload"
)

// FromXLSX reads one sheet of a spreadsheet into rows. An empty sheet name
// selects the workbook's first sheet.
func FromXLSX(r io.Reader, sheet string) ([]upload.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return fromRecords(records)
}
