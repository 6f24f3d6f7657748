package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/meridianpay/reconciler/internal/domain"
	"github.com/meridianpay/reconciler/internal/ingestion"
	"github.com/meridianpay/reconciler/internal/reconcile"
	"github.com/meridianpay/reconciler/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	merchantRepo *repository.MerchantRepo
	orderRepo    *repository.OrderRepo
	paymentRepo  *repository.PaymentRepo
	reconSvc     *reconcile.Service
	ingestionSvc *ingestion.Service
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// resolveMerchant translates a business merchant id into its database row.
func (h *Handlers) resolveMerchant(w http.ResponseWriter, businessID string) (*domain.Merchant, bool) {
	m, err := h.merchantRepo.GetByMerchantID(businessID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "merchant '"+businessID+"' not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return m, true
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "payment reconciliation API is running",
		"database": "sqlite (connected)",
	})
}

// --- Merchants ---

type createMerchantRequest struct {
	MerchantID string `json:"merchant_id"`
	Name       string `json:"merchant_name"`
}

func (h *Handlers) CreateMerchant(w http.ResponseWriter, r *http.Request) {
	var req createMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.MerchantID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "merchant_id and merchant_name are required")
		return
	}

	m := &domain.Merchant{MerchantID: req.MerchantID, Name: req.Name}
	if err := h.merchantRepo.Insert(m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "merchant '"+req.MerchantID+"' already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handlers) ListMerchants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	merchants, total, err := h.merchantRepo.List(
		parseIntDefault(q.Get("page"), 1),
		parseIntDefault(q.Get("limit"), 50),
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"merchants": merchants,
		"total":     total,
	})
}

func (h *Handlers) GetMerchant(w http.ResponseWriter, r *http.Request) {
	m, ok := h.resolveMerchant(w, chi.URLParam(r, "merchantID"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// --- Orders ---

type createRecordRequest struct {
	MerchantID      string          `json:"merchant_id"`
	MerchantOrderID string          `json:"merchant_order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
	OrderDate       string          `json:"order_date"`
	PaymentDate     string          `json:"payment_date"`
	Status          domain.Status   `json:"status"`
}

// validate checks the fields shared by orders and payments and returns the
// parsed date from the named field.
func (req *createRecordRequest) validate(dateField, dateValue string) (time.Time, string) {
	if req.MerchantID == "" || req.MerchantOrderID == "" {
		return time.Time{}, "merchant_id and merchant_order_id are required"
	}
	if req.Amount.Sign() <= 0 {
		return time.Time{}, "amount must be positive"
	}
	if len(req.Currency) != 3 {
		return time.Time{}, "currency must be a 3-letter code"
	}
	if req.Status == "" {
		req.Status = domain.StatusPending
	}
	if !req.Status.Valid() {
		return time.Time{}, "unknown status '" + string(req.Status) + "'"
	}
	date, err := time.Parse("2006-01-02", dateValue)
	if err != nil {
		return time.Time{}, dateField + " must be formatted YYYY-MM-DD"
	}
	return date, ""
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	orderDate, msg := req.validate("order_date", req.OrderDate)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	m, ok := h.resolveMerchant(w, req.MerchantID)
	if !ok {
		return
	}

	o := &domain.Order{
		MerchantID:      m.ID,
		MerchantOrderID: req.MerchantOrderID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Description:     req.Description,
		OrderDate:       orderDate,
		Status:          req.Status,
	}
	if err := h.orderRepo.Insert(o); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusBadRequest,
				"order with merchant_order_id '"+req.MerchantOrderID+"' already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.recordFilter(w, r)
	if !ok {
		return
	}
	orders, total, err := h.orderRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  total,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	merchantBusinessID := r.URL.Query().Get("merchant_id")
	if merchantBusinessID == "" {
		writeError(w, http.StatusBadRequest, "merchant_id query parameter is required")
		return
	}
	m, ok := h.resolveMerchant(w, merchantBusinessID)
	if !ok {
		return
	}

	o, err := h.orderRepo.GetByMerchantOrderID(m.ID, chi.URLParam(r, "merchantOrderID"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// --- Payments ---

func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	paymentDate, msg := req.validate("payment_date", req.PaymentDate)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	m, ok := h.resolveMerchant(w, req.MerchantID)
	if !ok {
		return
	}

	p := &domain.Payment{
		MerchantID:      m.ID,
		MerchantOrderID: req.MerchantOrderID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Description:     req.Description,
		PaymentDate:     paymentDate,
		Status:          req.Status,
	}
	if err := h.paymentRepo.Insert(p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusBadRequest,
				"payment with merchant_order_id '"+req.MerchantOrderID+"' already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.recordFilter(w, r)
	if !ok {
		return
	}
	payments, total, err := h.paymentRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payments": payments,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	merchantBusinessID := r.URL.Query().Get("merchant_id")
	if merchantBusinessID == "" {
		writeError(w, http.StatusBadRequest, "merchant_id query parameter is required")
		return
	}
	m, ok := h.resolveMerchant(w, merchantBusinessID)
	if !ok {
		return
	}

	p, err := h.paymentRepo.GetByMerchantOrderID(m.ID, chi.URLParam(r, "merchantOrderID"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) recordFilter(w http.ResponseWriter, r *http.Request) (repository.RecordFilter, bool) {
	q := r.URL.Query()
	filter := repository.RecordFilter{
		Status: q.Get("status"),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	}
	if businessID := q.Get("merchant_id"); businessID != "" {
		m, ok := h.resolveMerchant(w, businessID)
		if !ok {
			return filter, false
		}
		filter.MerchantID = m.ID
	}
	return filter, true
}

// --- Reconciliation ---

func (h *Handlers) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconSvc.Run()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var unmatchedOrders, unmatchedPayments []string
	for _, d := range result.Report.Discrepancies {
		switch d.Entity {
		case domain.EntityOrder:
			unmatchedOrders = append(unmatchedOrders, d.MerchantOrderID)
		case domain.EntityPayment:
			unmatchedPayments = append(unmatchedPayments, d.MerchantOrderID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"matched_count":      result.Report.Summary.MatchedCount,
		"matched_pairs":      result.Report.Matches,
		"unmatched_orders":   unmatchedOrders,
		"unmatched_payments": unmatchedPayments,
		"transitions":        result.Transitions,
		"summary":            result.Report.Summary,
	})
}

func (h *Handlers) GetReconciliationReport(w http.ResponseWriter, r *http.Request) {
	reconciledCount, reconciledAmount, err := h.paymentRepo.StatusTotals(domain.StatusReconciled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	orderCount, orderAmount, err := h.orderRepo.StatusTotals(domain.StatusCompleted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	paymentCount, paymentAmount, err := h.paymentRepo.StatusTotals(domain.StatusCompleted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reconciledByMerchant, err := h.paymentRepo.MerchantStatusTotals(domain.StatusReconciled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ordersByMerchant, err := h.orderRepo.MerchantStatusTotals(domain.StatusCompleted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	paymentsByMerchant, err := h.paymentRepo.MerchantStatusTotals(domain.StatusCompleted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type merchantSummary struct {
		MerchantID        int64                  `json:"merchant_id"`
		Reconciled        repository.CountAmount `json:"reconciled"`
		UnmatchedOrders   repository.CountAmount `json:"unmatched_orders"`
		UnmatchedPayments repository.CountAmount `json:"unmatched_payments"`
	}

	seen := make(map[int64]struct{})
	var summaries []merchantSummary
	collect := func(m map[int64]repository.CountAmount) {
		for id := range m {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			summaries = append(summaries, merchantSummary{
				MerchantID:        id,
				Reconciled:        reconciledByMerchant[id],
				UnmatchedOrders:   ordersByMerchant[id],
				UnmatchedPayments: paymentsByMerchant[id],
			})
		}
	}
	collect(reconciledByMerchant)
	collect(ordersByMerchant)
	collect(paymentsByMerchant)

	writeJSON(w, http.StatusOK, map[string]any{
		"total_reconciled_count":    reconciledCount,
		"total_reconciled_amount":   reconciledAmount,
		"total_unmatched_orders":    orderCount,
		"unmatched_orders_amount":   orderAmount,
		"total_unmatched_payments":  paymentCount,
		"unmatched_payments_amount": paymentAmount,
		"merchants_summary":         summaries,
	})
}

func (h *Handlers) GetDiscrepancies(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconSvc.Preview()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"discrepancies": report.Discrepancies,
		"summary":       report.Summary,
	})
}

// --- Imports ---

func (h *Handlers) ImportFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	kind := r.FormValue("kind")
	if kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required (orders or payments)")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	result, err := h.ingestionSvc.Import(data, kind)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
