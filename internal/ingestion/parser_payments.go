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

// PaymentRow is one parsed line of a payment import file.
type PaymentRow struct {
	MerchantID      string
	MerchantOrderID string
	Amount          decimal.Decimal
	Currency        string
	PaymentDate     time.Time
	Description     string
	Status          domain.Status
}

// ParsePaymentsCSV parses the processor payment export format.
//
// Expected header:
//
//	merchant_id,merchant_order_id,amount,currency,payment_date,status,description
//
// status and description are optional per line; status defaults to completed.
func ParsePaymentsCSV(data []byte) ([]PaymentRow, error) {
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

	var rows []PaymentRow
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
		paymentDate, err := parseDate(strings.TrimSpace(row[4]))
		if err != nil {
			return nil, fmt.Errorf("line %d date: %w", lineNum, err)
		}

		parsed := PaymentRow{
			MerchantID:      strings.TrimSpace(row[0]),
			MerchantOrderID: strings.TrimSpace(row[1]),
			Amount:          amount,
			Currency:        strings.ToUpper(strings.TrimSpace(row[3])),
			PaymentDate:     paymentDate,
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
