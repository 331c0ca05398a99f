package export

import (
	"github.com/xuri/excelize/v2"
)

// DefaultTemplate builds the built-in template workbook: title in A1,
// headers in A3, data in A4 and footers in A5.
func DefaultTemplate() (*excelize.File, error) {
	file := excelize.NewFile()
	sheet := file.GetSheetName(0)
	if sheet != defaultSheetName {
		file.SetSheetName(sheet, defaultSheetName)
		sheet = defaultSheetName
	}

	border := func(side string) []excelize.Border {
		return []excelize.Border{{Type: side, Color: "000000", Style: 1}}
	}

	titleID, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	headerID, err := file.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9D9D9"}},
		Border: border("bottom"),
	})
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	footerID, err := file.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Border: border("top"),
	})
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	cells := []struct {
		cell  string
		value string
		style int
	}{
		{"A1", DefaultTitlePlaceholder, titleID},
		{"A3", DefaultHeadersPlaceholder, headerID},
		{"A4", DefaultDataPlaceholder, 0},
		{"A5", DefaultFootersPlaceholder, footerID},
	}
	for _, c := range cells {
		if err := file.SetCellStr(sheet, c.cell, c.value); err != nil {
			_ = file.Close()
			return nil, err
		}
		if c.style == 0 {
			continue
		}
		if err := file.SetCellStyle(sheet, c.cell, c.cell, c.style); err != nil {
			_ = file.Close()
			return nil, err
		}
	}
	return file, nil
}
