package http

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	consumption "tariffwatch/internal/consumption/domain"
	tariff "tariffwatch/internal/tariff/domain"
)

// BuildCostPDF renders a minimal PDF for one period's cost summary.
func BuildCostPDF(tariffCode, period string, summary *consumption.PeriodCostSummary) ([]byte, error) {
	if summary == nil {
		return nil, errNoSummary
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Consumption Cost Summary")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Tariff: %s", tariffCode))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", period))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("From: %s", summary.PeriodStart.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("To: %s", summary.PeriodEnd.Format(time.RFC3339)))
	pdf.Ln(5)

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Total Energy (kWh): %.4f", summary.TotalQuantity))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Cost (GBP): %.4f", summary.TotalCost))
	pdf.Ln(5)
	if summary.StandingChargeCost != nil && summary.TotalCostIncludingStanding != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Standing Charge (GBP): %.4f", *summary.StandingChargeCost))
		pdf.Ln(5)
		pdf.Cell(0, 6, fmt.Sprintf("Total incl. Standing (GBP): %.4f", *summary.TotalCostIncludingStanding))
		pdf.Ln(5)
	}
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Phase", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Energy (kWh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Cost", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, phase := range sortedPhases(summary.PerPhase) {
		bucket := summary.PerPhase[phase]
		pdf.CellFormat(40, 6, string(phase), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.4f", bucket.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.4f", bucket.Cost), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "End", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Phase", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Price (p)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "kWh", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Cost", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, slot := range summary.PerSlot {
		pdf.CellFormat(30, 6, slot.Start.Format("15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, slot.End.Format("15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, string(slot.Phase), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", slot.Price), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.4f", slot.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.4f", slot.Cost), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildCostXLSX renders a minimal XLSX for one period's cost summary.
func BuildCostXLSX(tariffCode, period string, summary *consumption.PeriodCostSummary) ([]byte, error) {
	if summary == nil {
		return nil, errNoSummary
	}
	f := excelize.NewFile()
	summarySheet := "summary"
	slotsSheet := "slots"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(slotsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Consumption Cost Summary")
	_ = f.SetCellValue(summarySheet, "A3", "Tariff")
	_ = f.SetCellValue(summarySheet, "B3", tariffCode)
	_ = f.SetCellValue(summarySheet, "A4", "Period")
	_ = f.SetCellValue(summarySheet, "B4", period)
	_ = f.SetCellValue(summarySheet, "A5", "From")
	_ = f.SetCellValue(summarySheet, "B5", summary.PeriodStart.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "To")
	_ = f.SetCellValue(summarySheet, "B6", summary.PeriodEnd.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A7", "Total Energy (kWh)")
	_ = f.SetCellValue(summarySheet, "B7", summary.TotalQuantity)
	_ = f.SetCellValue(summarySheet, "A8", "Total Cost")
	_ = f.SetCellValue(summarySheet, "B8", summary.TotalCost)
	row := 9
	if summary.StandingChargeCost != nil && summary.TotalCostIncludingStanding != nil {
		_ = f.SetCellValue(summarySheet, "A9", "Standing Charge")
		_ = f.SetCellValue(summarySheet, "B9", *summary.StandingChargeCost)
		_ = f.SetCellValue(summarySheet, "A10", "Total incl. Standing")
		_ = f.SetCellValue(summarySheet, "B10", *summary.TotalCostIncludingStanding)
		row = 11
	}
	row++
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "Phase")
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), "Energy (kWh)")
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), "Cost")
	for _, phase := range sortedPhases(summary.PerPhase) {
		row++
		bucket := summary.PerPhase[phase]
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), string(phase))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), bucket.Quantity)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), bucket.Cost)
	}

	_ = f.SetCellValue(slotsSheet, "A1", "Start")
	_ = f.SetCellValue(slotsSheet, "B1", "End")
	_ = f.SetCellValue(slotsSheet, "C1", "Phase")
	_ = f.SetCellValue(slotsSheet, "D1", "Price")
	_ = f.SetCellValue(slotsSheet, "E1", "Energy (kWh)")
	_ = f.SetCellValue(slotsSheet, "F1", "Cost")
	for i, slot := range summary.PerSlot {
		r := i + 2
		_ = f.SetCellValue(slotsSheet, fmt.Sprintf("A%d", r), slot.Start.Format(time.RFC3339))
		_ = f.SetCellValue(slotsSheet, fmt.Sprintf("B%d", r), slot.End.Format(time.RFC3339))
		_ = f.SetCellValue(slotsSheet, fmt.Sprintf("C%d", r), string(slot.Phase))
		_ = f.SetCellValue(slotsSheet, fmt.Sprintf("D%d", r), slot.Price)
		_ = f.SetCellValue(slotsSheet, fmt.Sprintf("E%d", r), slot.Quantity)
		_ = f.SetCellValue(slotsSheet, fmt.Sprintf("F%d", r), slot.Cost)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedPhases(perPhase map[tariff.Phase]consumption.PhaseCost) []tariff.Phase {
	out := make([]tariff.Phase, 0, len(perPhase))
	for phase := range perPhase {
		out = append(out, phase)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
