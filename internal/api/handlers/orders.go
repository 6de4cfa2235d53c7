package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/tablesplit-backend/internal/api/dto"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/storage"
)

// OrdersHandler handles order-related HTTP requests.
type OrdersHandler struct {
	*Base
}

// NewOrdersHandler creates a new orders handler.
func NewOrdersHandler(repo storage.Repository) *OrdersHandler {
	return &OrdersHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/orders - returns paginated list of orders.
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	defaults := dto.DefaultOrderListParams()
	filters := storage.OrderFilters{
		TableID:       r.URL.Query().Get("table_id"),
		Status:        r.URL.Query().Get("status"),
		ParentOrderID: r.URL.Query().Get("parent_order_id"),
		Limit:         ParseIntParam(r, "limit", defaults.Limit),
		Offset:        ParseIntParam(r, "offset", defaults.Offset),
	}

	result, err := h.repo.ListOrders(r.Context(), filters)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.OrderListResponse{
		Orders:     make([]dto.OrderResponse, 0, len(result.Orders)),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	}

	for _, order := range result.Orders {
		response.Orders = append(response.Orders, toOrderResponse(order))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/orders/{id} - returns a single order with its items.
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("order ID is required"))
		return
	}

	order, err := h.repo.GetOrder(r.Context(), orderID)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	if order == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("order"))
		return
	}

	h.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

// ListSplits handles GET /api/orders/{id}/splits - returns committed splits.
func (h *OrdersHandler) ListSplits(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	order, err := h.repo.GetOrder(r.Context(), orderID)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if order == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("order"))
		return
	}

	records, err := h.repo.ListSplits(r.Context(), orderID)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.SplitListResponse{
		Splits: make([]dto.SplitRecordResponse, 0, len(records)),
		Count:  len(records),
	}
	for _, rec := range records {
		response.Splits = append(response.Splits, dto.SplitRecordResponse{
			ID:          rec.ID,
			OrderID:     rec.OrderID,
			NewOrderIDs: rec.NewOrderIDs,
			BucketCount: rec.BucketCount,
			CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
		})
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// toOrderResponse converts a storage order to an API response.
func toOrderResponse(order *storage.Order) dto.OrderResponse {
	response := dto.OrderResponse{
		ID:               order.ID,
		ParentOrderID:    order.ParentOrderID,
		TableID:          order.TableID,
		CustomerName:     order.CustomerName,
		CustomerCount:    order.CustomerCount,
		Subtotal:         order.Subtotal,
		Tax:              order.Tax,
		Discount:         order.Discount,
		Total:            order.Total,
		PriceIncludesTax: order.PriceIncludesTax,
		Status:           order.Status,
		Version:          order.Version,
		CreatedAt:        order.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        order.UpdatedAt.Format(time.RFC3339),
		Items:            make([]dto.ItemResponse, 0, len(order.Items)),
	}

	for _, item := range order.Items {
		response.Items = append(response.Items, dto.ItemResponse{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			Total:          item.Total,
			Discount:       item.Discount,
			TaxRate:        item.TaxRate,
			PriceBeforeTax: item.PriceBeforeTax,
		})
	}

	return response
}
