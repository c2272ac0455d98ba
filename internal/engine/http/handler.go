// Package enginehttp exposes the ledger engine as a JSON API.
package enginehttp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Request headers carrying the actor and idempotency key.
const (
	HeaderTenantID       = "X-Tenant-ID"
	HeaderUserID         = "X-User-ID"
	HeaderBaseCurrency   = "X-Base-Currency"
	HeaderIdempotencyKey = "Idempotency-Key"
)

const defaultHistoryLimit = 100

// Handler serves the engine endpoints.
type Handler struct {
	engine       *engine.Engine
	logger       *slog.Logger
	validator    *validator.Validate
	baseCurrency string
}

// NewHandler builds a Handler. baseCurrency is used when the caller sends none.
func NewHandler(eng *engine.Engine, baseCurrency string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: eng, logger: logger, validator: validator.New(), baseCurrency: baseCurrency}
}

// MountRoutes registers the API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.actor)

	r.Post("/accounts", h.openAccount)
	r.Get("/accounts/{id}", h.accountBalance)
	r.Get("/ledger", h.history)
	r.Get("/ledger/integrity", h.integrity)
	r.Post("/journal-entries", h.createJournalEntry)
	r.Get("/transactions/{id}", h.transactionRows)
	r.Post("/transactions/{id}/reverse", h.reverse)

	r.Put("/rates", h.putRate)
	r.Get("/rates", h.getRate)

	r.Post("/suppliers", h.registerSupplier)
	r.Post("/customers", h.registerCustomer)
	r.Post("/payment-methods", h.configureMethod)
	r.Post("/sales-invoices", h.postSalesInvoice)

	r.Post("/payments", h.recordPayment)
	r.Post("/payments/{id}/void", h.voidPayment)
	r.Get("/cheques/pending", h.pendingCheques)
	r.Post("/cheques/{id}/clear", h.clearCheque)
	r.Post("/cheques/{id}/bounce", h.bounceCheque)

	r.Post("/purchase-orders", h.createPurchaseOrder)
	r.Post("/purchase-orders/{id}/place", h.placeOrder)
	r.Post("/purchase-orders/{id}/cancel", h.cancelOrder)
	r.Post("/goods-receipts", h.receiveGoods)
	r.Post("/supplier-invoices", h.postSupplierInvoice)

	r.Post("/payment-plans", h.createPlan)
	r.Post("/payment-plans/{id}/installments/{index}/pay", h.payInstallment)
	r.Get("/installments/due", h.dueInstallments)

	r.Post("/returns", h.processReturn)
	r.Post("/vouchers/{code}/redeem", h.redeemVoucher)
	r.Get("/stock/{branch}/{variant}", h.stockOnHand)
}

// actor resolves the tenant and user from request headers.
func (h *Handler) actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := strconv.ParseInt(r.Header.Get(HeaderTenantID), 10, 64)
		if err != nil || tenantID <= 0 {
			httpx.RespondError(w, fmt.Errorf("%s header: %w", HeaderTenantID, httpx.ErrUnauthorized))
			return
		}
		var userID int64
		if raw := r.Header.Get(HeaderUserID); raw != "" {
			if userID, err = strconv.ParseInt(raw, 10, 64); err != nil {
				httpx.RespondError(w, fmt.Errorf("%s header: %w", HeaderUserID, httpx.ErrBadRequest))
				return
			}
		}
		base := r.Header.Get(HeaderBaseCurrency)
		if base == "" {
			base = h.baseCurrency
		}
		ctx := shared.ContextWithActor(r.Context(), shared.Actor{
			TenantID:     tenantID,
			UserID:       userID,
			BaseCurrency: base,
			Locale:       locale(r.Header.Get("Accept-Language")),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func locale(acceptLanguage string) string {
	first, _, _ := strings.Cut(acceptLanguage, ",")
	first, _, _ = strings.Cut(first, ";")
	return strings.TrimSpace(first)
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
}

// decode reads and validates the JSON body into target.
func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return shared.Invalid(first.Namespace(), fmt.Sprintf("failed %q validation", first.Tag()))
		}
		return fmt.Errorf("%v: %w", err, httpx.ErrBadRequest)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _, _ := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathInt(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, shared.Invalid(name, "must be an integer")
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, shared.Invalid(name, "must be an integer")
	}
	return v, nil
}

// queryDate accepts YYYY-MM-DD or RFC3339 and falls back to fallback when absent.
func queryDate(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, shared.Invalid(name, "must be a date")
	}
	return t, nil
}

// Ledger.

func (h *Handler) openAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.engine.OpenAccount(r.Context(), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.engine.AccountBalance(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	accountID, err := queryInt(r, "account_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := queryDate(r, "from", time.Time{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := queryDate(r, "to", time.Time{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.engine.History(r.Context(), ledger.HistoryFilter{
		AccountID: accountID,
		From:      from,
		To:        to,
		Limit:     int(limit),
		Offset:    int(offset),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) integrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.VerifyIntegrity(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, report)
}

func (h *Handler) createJournalEntry(w http.ResponseWriter, r *http.Request) {
	var req journalRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	posting, err := h.engine.CreateJournalEntry(r.Context(), idempotencyKey(r), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posting)
}

func transactionParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, shared.Invalid("id", "must be a uuid")
	}
	return id, nil
}

func (h *Handler) transactionRows(w http.ResponseWriter, r *http.Request) {
	id, err := transactionParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.engine.TransactionRows(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := transactionParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req reverseRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	posting, err := h.engine.Reverse(r.Context(), idempotencyKey(r), id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posting)
}

// Rates.

func (h *Handler) putRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rate, err := h.engine.PutRate(r.Context(), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

func (h *Handler) getRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := queryDate(r, "date", time.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rate, err := h.engine.GetRate(r.Context(), q.Get("from"), q.Get("to"), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"from": strings.ToUpper(q.Get("from")),
		"to":   strings.ToUpper(q.Get("to")),
		"date": date.Format(time.DateOnly),
		"rate": rate,
	})
}

// Parties and configuration.

func (h *Handler) registerSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	supplier, err := h.engine.RegisterSupplier(r.Context(), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) registerCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	customer, err := h.engine.RegisterCustomer(r.Context(), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) configureMethod(w http.ResponseWriter, r *http.Request) {
	var req methodRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	method, err := h.engine.ConfigurePaymentMethod(r.Context(), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, method)
}

func (h *Handler) postSalesInvoice(w http.ResponseWriter, r *http.Request) {
	var req salesInvoiceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.engine.PostSalesInvoice(r.Context(), idempotencyKey(r), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

// Payments.

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	payment, err := h.engine.RecordPayment(r.Context(), idempotencyKey(r), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) voidPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req reverseRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	payment, err := h.engine.VoidPayment(r.Context(), idempotencyKey(r), id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) pendingCheques(w http.ResponseWriter, r *http.Request) {
	dueBy, err := queryDate(r, "due_by", time.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cheques, err := h.engine.PendingCheques(r.Context(), dueBy)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cheques)
}

func (h *Handler) chequeAction(w http.ResponseWriter, r *http.Request, clearing bool) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req chequeActionRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if req.At.IsZero() {
		req.At = time.Now()
	}
	apply := h.engine.BounceCheque
	if clearing {
		apply = h.engine.ClearCheque
	}
	cheque, err := apply(r.Context(), idempotencyKey(r), id, req.At)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cheque)
}

func (h *Handler) clearCheque(w http.ResponseWriter, r *http.Request) {
	h.chequeAction(w, r, true)
}

func (h *Handler) bounceCheque(w http.ResponseWriter, r *http.Request) {
	h.chequeAction(w, r, false)
}

// Purchasing.

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req purchaseOrderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.engine.CreatePurchaseOrder(r.Context(), idempotencyKey(r), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.engine.PlaceOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.engine.CancelOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) receiveGoods(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, err := h.engine.ReceiveGoods(r.Context(), idempotencyKey(r), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) postSupplierInvoice(w http.ResponseWriter, r *http.Request) {
	var req supplierInvoiceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.engine.PostSupplierInvoice(r.Context(), idempotencyKey(r), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

// Installments.

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	plan, err := h.engine.CreatePlan(r.Context(), idempotencyKey(r), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) payInstallment(w http.ResponseWriter, r *http.Request) {
	planID, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	index, err := pathInt(r, "index")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req installmentPaymentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.engine.ApplyPaymentToInstallment(r.Context(), idempotencyKey(r), planID, int(index), toLineInputs(req.Lines), req.PaidAt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) dueInstallments(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of", time.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	due, err := h.engine.DueInstallments(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, due)
}

// Returns and stock.

func (h *Handler) processReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.engine.ProcessReturn(r.Context(), idempotencyKey(r), req.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) redeemVoucher(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	voucher, err := h.engine.RedeemVoucher(r.Context(), idempotencyKey(r), chi.URLParam(r, "code"), req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, voucher)
}

func (h *Handler) stockOnHand(w http.ResponseWriter, r *http.Request) {
	branchID, err := pathInt(r, "branch")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	variantID, err := pathInt(r, "variant")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	balance, err := h.engine.StockOnHand(r.Context(), branchID, variantID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}
