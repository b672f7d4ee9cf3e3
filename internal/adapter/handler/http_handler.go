package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hafizdr/stock-ledger/internal/core/domain"
	"github.com/hafizdr/stock-ledger/internal/core/service"
)

type HTTPHandler struct {
	ledger *service.LedgerService
}

func NewHTTPHandler(ledger *service.LedgerService) *HTTPHandler {
	return &HTTPHandler{ledger: ledger}
}

type itemRequest struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}

type createTransactionRequest struct {
	Type    string        `json:"type"`
	Note    string        `json:"note"`
	ActorID string        `json:"actorId"`
	Items   []itemRequest `json:"items"`
}

type itemResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Qty         int             `json:"qty"`
	Price       decimal.Decimal `json:"price"`
}

type transactionResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Note      string         `json:"note,omitempty"`
	ActorID   string         `json:"actorId,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Items     []itemResponse `json:"items"`
}

type createProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CategoryID  string          `json:"categoryId"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type productResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CategoryID  string          `json:"categoryId,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Transactions serves POST (create) and GET (list) on /api/transactions.
func (h *HTTPHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createTransaction(w, r)
	case http.MethodGet:
		h.listTransactions(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", nil)
		return
	}

	items := make([]service.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.ItemRequest{ProductID: it.ProductID, Qty: it.Qty})
	}

	txn, err := h.ledger.CreateTransaction(r.Context(), service.CreateTransactionRequest{
		Type:    domain.TransactionType(req.Type),
		Note:    req.Note,
		ActorID: req.ActorID,
		Items:   items,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

func (h *HTTPHandler) listTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := h.ledger.ListTransactions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]transactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, toTransactionResponse(&txns[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// Products serves POST (create) and GET (list) on /api/products.
func (h *HTTPHandler) Products(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createProduct(w, r)
	case http.MethodGet:
		h.listProducts(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", nil)
		return
	}

	product, err := h.ledger.CreateProduct(r.Context(), &domain.Product{
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *HTTPHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.ledger.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for i := range products {
		out = append(out, toProductResponse(&products[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// Product serves GET /api/products/{id} and GET /api/products/{id}/stock.
func (h *HTTPHandler) Product(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/products/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "product id is required", nil)
		return
	}

	switch sub {
	case "":
		product, err := h.ledger.GetProduct(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toProductResponse(product))
	case "stock":
		stock, err := h.ledger.GetProductStock(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"productId": id, "stock": stock})
	default:
		http.NotFound(w, r)
	}
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toTransactionResponse(txn *domain.Transaction) transactionResponse {
	items := make([]itemResponse, 0, len(txn.Items))
	for _, it := range txn.Items {
		items = append(items, itemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Qty:         it.Qty,
			Price:       it.Price,
		})
	}
	return transactionResponse{
		ID:        txn.ID,
		Type:      string(txn.Type),
		Note:      txn.Note,
		ActorID:   txn.ActorID,
		CreatedAt: txn.CreatedAt,
		Items:     items,
	}
}

func toProductResponse(p *domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CategoryID:  p.CategoryID,
		Price:       p.Price,
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		stockErr      *domain.InsufficientStockError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", validationErr.Reason, nil)
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", notFoundErr.Error(), map[string]any{
			"productId": notFoundErr.ProductID,
		})
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, "INSUFFICIENT_STOCK", stockErr.Error(), map[string]any{
			"productId": stockErr.ProductID,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
	case errors.Is(err, domain.ErrLockTimeout):
		writeError(w, http.StatusConflict, "CONFLICT", "could not lock stock in time, retry the request", map[string]any{
			"retryable": true,
		})
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, fields map[string]any) {
	body := map[string]any{
		"code":    code,
		"message": message,
	}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
