package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const summarySheet = "Summary"

// WriteMonthSummaryXLSX renders s as a workbook: a header block with the
// month totals followed by one row per calendar day.
func WriteMonthSummaryXLSX(w io.Writer, s MonthSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}

	head := [][]interface{}{
		{"Employee", s.EmployeeID},
		{"Month", s.Month},
		{"Total orders", s.TotalOrders},
		{"Total revenue", s.TotalRevenue.InexactFloat64()},
		{"Present days", s.PresentDays},
		{"Absent days", s.AbsentDays},
		{},
		{"Date", "Status", "Orders", "Revenue"},
	}
	for i, row := range head {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}

	for i, d := range s.Days {
		status := "absent"
		if d.Present {
			status = "present"
		}
		cell := fmt.Sprintf("A%d", len(head)+i+1)
		row := []interface{}{d.Date, status, d.Orders, d.Revenue.InexactFloat64()}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}
