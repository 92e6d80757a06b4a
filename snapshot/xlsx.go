package snapshot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/aluiziolira/go-product-monitor/models"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Products"

// XLSXStore keeps snapshots as Excel workbooks with a single sheet.
type XLSXStore struct{}

// LoadIdentifiers reads the SKU column of the first sheet.
func (XLSXStore) LoadIdentifiers(path string) (map[string]struct{}, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return map[string]struct{}{}, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return map[string]struct{}{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows %s: %w", path, err)
	}
	return identifiers(rows), nil
}

// Write replaces the workbook at path with a header row and one row per record.
func (XLSXStore) Write(path string, records []models.Product) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := setRow(f, 1, Header); err != nil {
		return err
	}
	for i, p := range records {
		if err := setRow(f, i+2, row(p)); err != nil {
			return err
		}
	}

	return writeAtomic(path, func(w io.Writer) error {
		return f.Write(w)
	})
}

func setRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("%w: row %d: %w", ErrWrite, rowNum, err)
	}
	return nil
}
