package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Header is the column layout of the ledger CSV. Value is appended on
// valued runs.
var Header = []string{"Date", "Description", "Account", "Commodity", "Amount"}

// WriteCSV writes splits as CSV, one row per split. When withValue is set a
// Value column holds the USD value rounded to cents; splits without a value
// leave it empty.
func WriteCSV(w io.Writer, splits []Split, withValue bool) error {
	cw := csv.NewWriter(w)

	header := Header
	if withValue {
		header = append(append([]string{}, Header...), "Value")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, s := range splits {
		row := []string{
			s.Date.UTC().Format(time.DateOnly),
			s.Description,
			s.Account,
			s.Commodity,
			strconv.FormatFloat(s.Amount, 'f', -1, 64),
		}
		if withValue {
			cell := ""
			if s.Value != nil {
				cell = FormatUSD(*s.Value)
			}
			row = append(row, cell)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write split %s: %w", s.TxHash.Hex(), err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// WriteCSVFile writes splits to path through a temporary file in the same
// directory, so a failed write never leaves a partial ledger at path.
func WriteCSVFile(path string, splits []Split, withValue bool) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	if err := WriteCSV(f, splits, withValue); err != nil {
		f.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("failed to move ledger into place: %w", err)
	}
	return nil
}

// USD rounds a float to whole cents.
func USD(v float64) *money.Money {
	cents := decimal.NewFromFloat(v).Shift(2).Round(0)
	return money.New(cents.IntPart(), money.USD)
}

// FormatUSD renders a value as a plain decimal with two places, e.g. -12.30.
func FormatUSD(v float64) string {
	return strconv.FormatFloat(USD(v).AsMajorUnits(), 'f', 2, 64)
}
