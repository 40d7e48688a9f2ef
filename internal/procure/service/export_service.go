package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/sitemat/internal/procure/entity"
	"github.com/bitfantasy/sitemat/internal/procure/repository"
	"github.com/xuri/excelize/v2"
)

var groupExportHeaders = []string{
	"序号", "物料名称", "规格", "数量", "单位", "紧急", "需用日期",
	"状态", "许可", "PO号", "驳回原因", "申请人", "创建时间",
}

// ExportService 申请组Excel导出
type ExportService struct {
	repo *repository.RequestRepository
}

func NewExportService(repo *repository.RequestRepository) *ExportService {
	return &ExportService{repo: repo}
}

// ExportGroup 导出申请组为xlsx
func (s *ExportService) ExportGroup(ctx context.Context, requestNumber string) (*excelize.File, error) {
	items, err := s.repo.FindByGroup(ctx, requestNumber)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		return nil, repository.ErrNotFound
	}

	f := excelize.NewFile()
	sheet := requestNumber
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range groupExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for rowIdx, item := range items {
		row := rowIdx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), item.ItemOrder)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), item.MaterialName)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), item.Specification)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), item.Quantity)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), item.Unit)
		urgent := "否"
		if item.Urgent {
			urgent = "是"
		}
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), urgent)
		if item.RequiredDate != nil {
			f.SetCellValue(sheet, fmt.Sprintf("G%d", row), item.RequiredDate.Format("2006-01-02"))
		}
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), item.Status)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), describeGrant(item))
		if item.PONumber != nil {
			f.SetCellValue(sheet, fmt.Sprintf("J%d", row), *item.PONumber)
		}
		f.SetCellValue(sheet, fmt.Sprintf("K%d", row), item.RejectionReason)
		f.SetCellValue(sheet, fmt.Sprintf("L%d", row), item.CreatedBy)
		f.SetCellValue(sheet, fmt.Sprintf("M%d", row), item.CreatedAt.Format("2006-01-02 15:04"))
	}

	colWidths := []float64{6, 24, 20, 8, 6, 6, 12, 14, 18, 14, 24, 12, 16}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	return f, nil
}

func describeGrant(item entity.RequestItem) string {
	if item.DirectAction == "" && !item.IsSplitApproved {
		return ""
	}
	if item.DirectAction == "" {
		return "split"
	}
	return item.DirectAction
}
