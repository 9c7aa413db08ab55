package dashboard

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
)

// Workbook sheet names.
const (
	SheetHighRisk  = "High Risk"
	SheetHospitals = "Hospitals"
)

var (
	highRiskHeader = []any{"ID", "District", "Location", "Action", "Start date", "End date", "Case no", "Latitude", "Longitude", "Selected"}
	hospitalHeader = []any{"Hospital", "Address", "Cluster", "Top wait", "Top wait (hours)", "Updated at", "Latitude", "Longitude", "Selected"}
)

// ExportXLSX writes the high-risk and hospital tables, flagged with the
// filter's selection, as an Excel workbook.
func ExportXLSX(w io.Writer, ds covid.Dataset, filter covid.MapFilter) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	locRows := HighRiskTable(ds, filter)
	locValues := make([][]any, 0, len(locRows))
	for _, r := range locRows {
		locValues = append(locValues, []any{
			r.ID, r.District, r.Location, r.Action, r.StartDate, r.EndDate, r.CaseNo,
			floatCell(r.Lat), floatCell(r.Lng), r.Selected,
		})
	}
	if err := writeSheet(f, SheetHighRisk, highRiskHeader, locValues, bold); err != nil {
		return err
	}

	hospRows := HospitalTable(ds, filter)
	hospValues := make([][]any, 0, len(hospRows))
	for _, r := range hospRows {
		var lat, lng any
		if r.HasLocation {
			lat, lng = r.Latitude, r.Longitude
		}
		hospValues = append(hospValues, []any{
			r.Name, r.Address, r.Cluster, r.TopWait, r.TopWaitHours, r.UpdatedAt, lat, lng, r.Selected,
		})
	}
	if err := writeSheet(f, SheetHospitals, hospitalHeader, hospValues, bold); err != nil {
		return err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(SheetHighRisk)
	if err != nil {
		return fmt.Errorf("locate sheet: %w", err)
	}
	f.SetActiveSheet(idx)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any, headerStyle int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return fmt.Errorf("header width: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i, err)
		}
	}
	return nil
}

func floatCell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
