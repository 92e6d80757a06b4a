package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/aluiziolira/go-product-monitor/models"
)

// CSVStore keeps snapshots as comma-separated files.
type CSVStore struct{}

// LoadIdentifiers reads the SKU column of a CSV snapshot.
func (CSVStore) LoadIdentifiers(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	return identifiers(rows), nil
}

// Write replaces the CSV file at path.
func (CSVStore) Write(path string, records []models.Product) error {
	return writeAtomic(path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write(Header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for _, p := range records {
			if err := writer.Write(row(p)); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("flush csv records: %w", err)
		}
		return nil
	})
}
