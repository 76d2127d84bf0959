package interfaces

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"fuelmap-cloud/internal/directory/application"
	directory "fuelmap-cloud/internal/directory/domain"
)

const stationsSheet = "stations"

var stationHeader = []string{
	"ID", "Name", "Region", "Sub Region", "Latitude", "Longitude",
	"Fuel Types", "Additional Info", "Created At",
}

// BuildStationsXLSX renders the station dataset as an XLSX workbook.
func BuildStationsXLSX(stations []directory.Station) ([]byte, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", stationsSheet)

	for i, title := range stationHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(stationsSheet, cell, title)
	}
	for i, station := range stations {
		row := i + 2
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("A%d", row), station.ID)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("B%d", row), station.Name)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("C%d", row), station.Region)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("D%d", row), station.SubRegion)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("E%d", row), station.Latitude)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("F%d", row), station.Longitude)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("G%d", row), station.FuelTypes)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("H%d", row), station.AdditionalInfo)
		if !station.CreatedAt.IsZero() {
			_ = f.SetCellValue(stationsSheet, fmt.Sprintf("I%d", row), station.CreatedAt.Format(time.RFC3339))
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseStationsXLSX reads a station workbook back into records. The
// first sheet is used, the first row is treated as a header and rows
// without a name are skipped. Rows with unparseable coordinates are
// reported per-row so one bad line does not sink the import.
func ParseStationsXLSX(r io.Reader) ([]directory.Station, []string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open workbook: %v", directory.ErrInvalidRecord, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read sheet %s: %v", directory.ErrInvalidRecord, sheet, err)
	}
	if len(rows) <= 1 {
		return nil, nil, nil
	}

	var stations []directory.Station
	var rowErrors []string
	for i, row := range rows[1:] {
		rowNum := i + 2
		name := cellAt(row, 1)
		if name == "" {
			continue
		}
		lat, err := strconv.ParseFloat(cellAt(row, 4), 64)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: bad latitude %q", rowNum, cellAt(row, 4)))
			continue
		}
		lon, err := strconv.ParseFloat(cellAt(row, 5), 64)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: bad longitude %q", rowNum, cellAt(row, 5)))
			continue
		}
		station := directory.Station{
			ID:             cellAt(row, 0),
			Name:           name,
			Region:         cellAt(row, 2),
			SubRegion:      cellAt(row, 3),
			Latitude:       lat,
			Longitude:      lon,
			FuelTypes:      cellAt(row, 6),
			AdditionalInfo: cellAt(row, 7),
		}
		if err := station.Validate(); err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		stations = append(stations, station)
	}
	return stations, rowErrors, nil
}

func cellAt(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// BuildResolutionReportPDF renders a minimal PDF summary of a duplicate
// resolution run.
func BuildResolutionReportPDF(result application.ResolveResult, scanned int) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Duplicate Resolution Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Records Scanned: %d", scanned))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Records Deleted: %d", result.DeletedCount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Records Remaining: %d", len(result.Remaining)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Delete Errors: %d", len(result.Errors)))
	pdf.Ln(8)

	if len(result.Errors) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, "Errors")
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 9)
		for _, msg := range result.Errors {
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(55, 6, "ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(65, 6, "Name", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Latitude", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Longitude", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, station := range result.Remaining {
		pdf.CellFormat(55, 6, station.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(65, 6, station.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.6f", station.Latitude), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.6f", station.Longitude), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
