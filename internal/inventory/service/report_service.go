package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/inventory/entity"
	"github.com/bitfantasy/nimo-mes/internal/inventory/repository"
	"github.com/xuri/excelize/v2"
)

type ReportService struct {
	repos *repository.Repositories
}

func NewReportService(repos *repository.Repositories) *ReportService {
	return &ReportService{repos: repos}
}

var stockExportHeaders = []string{
	"物料编号", "名称", "分类", "单位", "现存量", "预留量", "可用量", "最低库存", "标准成本", "库存金额", "供应商", "预警",
}

// ExportStock 导出库存报表为xlsx
func (s *ReportService) ExportStock(ctx context.Context) (*excelize.File, string, error) {
	materials, err := s.repos.Material.ListAll(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("list materials: %w", err)
	}
	f, err := BuildStockWorkbook(materials)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("stock_%s.xlsx", time.Now().Format("20060102_150405"))
	return f, filename, nil
}

// BuildStockWorkbook renders one row per material. Quantities use a
// two-decimal number format.
func BuildStockWorkbook(materials []entity.Material) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Stock"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	numFmt := "0.00"
	qtyStyle, _ := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	alertStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#C00000", Bold: true},
	})

	for i, h := range stockExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for idx, m := range materials {
		row := idx + 2
		value := m.CurrentStock.Mul(m.StandardCost)
		supplier := ""
		if m.Supplier != nil {
			supplier = m.Supplier.Name
		}
		alert := ""
		if m.IsLowStock() {
			alert = "低库存"
		}

		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), m.MaterialID)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), m.Name)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), m.Category)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), m.UnitOfMeasure)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), m.CurrentStock.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), m.ReservedStock.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), m.AvailableStock.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), m.MinimumStock.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), m.StandardCost.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), value.Round(2).InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("K%d", row), supplier)
		f.SetCellValue(sheet, fmt.Sprintf("L%d", row), alert)
		f.SetCellStyle(sheet, fmt.Sprintf("E%d", row), fmt.Sprintf("J%d", row), qtyStyle)
		if alert != "" {
			f.SetCellStyle(sheet, fmt.Sprintf("L%d", row), fmt.Sprintf("L%d", row), alertStyle)
		}
	}

	colWidths := []float64{14, 24, 12, 8, 12, 12, 12, 12, 12, 14, 20, 8}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
	return f, nil
}
