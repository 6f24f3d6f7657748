package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpay/reconciler/internal/domain"
)

// OrderRow is one parsed line of an order import file, before merchant
// resolution.
type OrderRow struct {
	MerchantID      string
	MerchantOrderID string
	Amount          decimal.Decimal
	Currency        string
	OrderDate       time.Time
	Description     string
	Status          domain.Status
}

// ParseOrdersCSV parses the bulk order import format.
//
// Expected header:
//
//	merchant_id,merchant_order_id,amount,currency,order_date,status,description
//
// status and description are optional per line; status defaults to completed.
func ParseOrdersCSV(data []byte) ([]OrderRow, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 5 {
		return nil, fmt.Errorf("expected at least 5 columns, got %d", len(header))
	}

	var rows []OrderRow
	lineNum := 1
	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if len(row) < 5 {
			return nil, fmt.Errorf("line %d: expected at least 5 fields, got %d", lineNum, len(row))
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(row[2]))
		if err != nil {
			return nil, fmt.Errorf("line %d amount: %w", lineNum, err)
		}
		orderDate, err := parseDate(strings.TrimSpace(row[4]))
		if err != nil {
			return nil, fmt.Errorf("line %d date: %w", lineNum, err)
		}

		parsed := OrderRow{
			MerchantID:      strings.TrimSpace(row[0]),
			MerchantOrderID: strings.TrimSpace(row[1]),
			Amount:          amount,
			Currency:        strings.ToUpper(strings.TrimSpace(row[3])),
			OrderDate:       orderDate,
			Status:          domain.StatusCompleted,
		}
		if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
			status := domain.Status(strings.TrimSpace(row[5]))
			if !status.Valid() {
				return nil, fmt.Errorf("line %d: unknown status %q", lineNum, row[5])
			}
			parsed.Status = status
		}
		if len(row) > 6 {
			parsed.Description = strings.TrimSpace(row[6])
		}
		if parsed.MerchantID == "" || parsed.MerchantOrderID == "" {
			return nil, fmt.Errorf("line %d: merchant_id and merchant_order_id are required", lineNum)
		}
		if len(parsed.Currency) != 3 {
			return nil, fmt.Errorf("line %d: currency must be a 3-letter code, got %q", lineNum, row[3])
		}

		rows = append(rows, parsed)
	}

	return rows, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}
