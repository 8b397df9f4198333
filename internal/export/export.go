// Package export writes the order sheet uploaded to the supplier portal.
package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sisco70/tabacchi/internal/shared"
)

const sheetName = "Ordine"

// Header is the first row of the sheet, in the layout the portal expects.
var Header = []string{"Codice AAMS", "Peso", "Descrizione"}

// Row is one article of the exported order.
type Row struct {
	Code        string
	Weight      float64
	Description string
}

// FileName is the name the sheet is saved under.
func FileName(placedAt time.Time) string {
	return fmt.Sprintf("OrdineTabacchi_%s.xlsx", placedAt.Format("20060102_1504"))
}

// Prepare keeps rows with a positive weight, rounded to grams, sorted by description.
func Prepare(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		w := shared.RoundKg(r.Weight)
		if w <= 0 {
			continue
		}
		r.Weight = w
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Description < out[j].Description })
	return out
}

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteOrder writes rows as an xlsx workbook to w.
func WriteOrder(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("export: sheet name: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	for col, h := range Header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("export: header: %w", err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("export: header: %w", err)
		}
	}
	for i, r := range Prepare(rows) {
		line := i + 2
		values := []any{r.Code, r.Weight, r.Description}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, line)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("export: row %d: %w", line, err)
			}
		}
	}
	if err := f.SetColWidth(sheetName, "C", "C", 40); err != nil {
		return fmt.Errorf("export: column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	return nil
}
