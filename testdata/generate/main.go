// Command generate writes a larger deterministic seed.json with a controlled
// mix of clean matches and injected mismatches.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
)

type merchant struct {
	MerchantID string `json:"merchant_id"`
	Name       string `json:"merchant_name"`
}

type record struct {
	MerchantID      string `json:"merchant_id"`
	MerchantOrderID string `json:"merchant_order_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Date            string `json:"date"`
	Status          string `json:"status"`
	Description     string `json:"description,omitempty"`
}

type seedFile struct {
	Merchants []merchant `json:"merchants"`
	Orders    []record   `json:"orders"`
	Payments  []record   `json:"payments"`
}

func main() {
	rng := rand.New(rand.NewSource(42))

	merchants := []merchant{
		{"MERCHANT_A", "Acme Retail"},
		{"MERCHANT_B", "Blue Harbor Goods"},
		{"MERCHANT_C", "Cascade Supply Co"},
		{"MERCHANT_D", "Delta Freight"},
	}
	currencies := []string{"USD", "USD", "USD", "EUR", "GBP"}

	var sf seedFile
	sf.Merchants = merchants

	for _, m := range merchants {
		for i := 1; i <= 40; i++ {
			orderID := fmt.Sprintf("ORD-%s-%03d", m.MerchantID[len(m.MerchantID)-1:], i)
			cents := rng.Int63n(49000) + 500
			amount := decimal.New(cents, -2)
			currency := currencies[rng.Intn(len(currencies))]
			day := rng.Intn(14) + 1
			orderDate := fmt.Sprintf("2025-01-%02d", day)

			sf.Orders = append(sf.Orders, record{
				MerchantID:      m.MerchantID,
				MerchantOrderID: orderID,
				Amount:          amount.StringFixed(2),
				Currency:        currency,
				Date:            orderDate,
				Status:          "completed",
			})

			pay := record{
				MerchantID:      m.MerchantID,
				MerchantOrderID: orderID,
				Amount:          amount.StringFixed(2),
				Currency:        currency,
				Date:            fmt.Sprintf("2025-01-%02d", day+rng.Intn(3)),
				Status:          "completed",
			}

			// Inject mismatches: 70% clean, 10% amount off by a cent,
			// 5% wrong currency, 5% out-of-window date, 10% missing payment.
			switch roll := rng.Float64(); {
			case roll < 0.70:
			case roll < 0.80:
				pay.Amount = amount.Add(decimal.New(1, -2)).StringFixed(2)
				pay.Description = "amount off by one cent"
			case roll < 0.85:
				pay.Currency = "JPY"
				pay.Description = "wrong currency reported"
			case roll < 0.90:
				pay.Date = fmt.Sprintf("2025-01-%02d", day+6)
				pay.Description = "settled outside window"
			default:
				continue // orphan order, no payment at all
			}
			sf.Payments = append(sf.Payments, pay)
		}
	}

	// A few orphan payments with no order on file.
	for i := 1; i <= 5; i++ {
		sf.Payments = append(sf.Payments, record{
			MerchantID:      "MERCHANT_D",
			MerchantOrderID: fmt.Sprintf("ORD-X-%03d", i),
			Amount:          "42.00",
			Currency:        "USD",
			Date:            "2025-01-10",
			Status:          "completed",
			Description:     "no matching order",
		})
	}

	out := filepath.Join("testdata", "seed.json")
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		log.Fatalf("write %s: %v", out, err)
	}
	log.Printf("Wrote %s: %d merchants, %d orders, %d payments",
		out, len(sf.Merchants), len(sf.Orders), len(sf.Payments))
}
