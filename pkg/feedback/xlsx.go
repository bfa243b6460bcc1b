package feedback

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/valentinpelus/attackref/pkg/types"
)

// XLSXSheet is the worksheet name used by WriteXLSX
const XLSXSheet = "Feedback"

// WriteXLSX writes records as a single-sheet workbook with the CSV header as the first row
func WriteXLSX(w io.Writer, records []types.FeedbackRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", XLSXSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(XLSXSheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	// ID, Technique, Comment and Timestamp get wider columns
	if err := sw.SetColWidth(1, 1, 28); err != nil {
		return err
	}
	if err := sw.SetColWidth(2, 2, 32); err != nil {
		return err
	}
	if err := sw.SetColWidth(7, 8, 40); err != nil {
		return err
	}

	if err := sw.SetRow("A1", toCells(Header)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(recordRow(record))); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush workbook: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
