package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
)

type ShippingAddressRequest struct {
	Name       string `json:"name" validate:"required,min=2"`
	Phone      string `json:"phone" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Line1      string `json:"line1" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country" validate:"required"`
}

type CreateOrderItemRequest struct {
	ProductID   string          `json:"product_id" validate:"required,uuid"`
	ProductName string          `json:"product_name" validate:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity" validate:"required,gt=0"`
	ProductData json.RawMessage `json:"product_data,omitempty"`
}

type CreateOrderRequest struct {
	UserID          string                   `json:"user_id" validate:"required,uuid"`
	Items           []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddressRequest   `json:"shipping_address"`
	ShippingMethod  string                   `json:"shipping_method"`
	ShippingCost    decimal.Decimal          `json:"shipping_cost"`
	Currency        string                   `json:"currency" validate:"omitempty,len=3"`
	PaymentMethod   string                   `json:"payment_method"`
	Notes           string                   `json:"notes"`
}

type UpdateOrderStatusRequest struct {
	Status         string  `json:"status" validate:"required"`
	TrackingNumber *string `json:"tracking_number,omitempty" validate:"omitempty,min=1"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders/{id}", h.handleGetOrderByID)
	router.Get("/orders/{id}/tracking", h.handleGetTracking)
	router.Get("/users/{id}/orders", h.handleGetUserOrders)
}

// RegisterAdminRoutes expects a router that already requires an admin session.
func (h *OrderHandler) RegisterAdminRoutes(router chi.Router) {
	router.Get("/orders", h.handleListOrders)
	router.Patch("/orders/{id}/status", h.handleUpdateStatus)
	router.Post("/orders/{id}/approve", h.handleApprove)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	items := make([]order.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.OrderItem{
			ProductID:   uuid.FromStringOrNil(it.ProductID),
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			ProductData: it.ProductData,
		})
	}

	input := &order.Order{
		UserID: uuid.FromStringOrNil(req.UserID),
		ShippingAddress: order.ShippingAddress{
			Name:       req.ShippingAddress.Name,
			Phone:      req.ShippingAddress.Phone,
			Email:      req.ShippingAddress.Email,
			Line1:      req.ShippingAddress.Line1,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		ShippingMethod: req.ShippingMethod,
		ShippingCost:   req.ShippingCost,
		Currency:       req.Currency,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		Items:          items,
	}

	created, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create order via service")
		respondWithServiceError(w, err, "Failed to create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetOrderByID(r.Context(), orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to get order by id via service")
		respondWithServiceError(w, err, "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleGetTracking(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	tracking, err := h.service.GetTracking(r.Context(), orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to get order tracking via service")
		respondWithServiceError(w, err, "Failed to get order tracking")
		return
	}

	respondWithJSON(w, http.StatusOK, tracking)
}

func (h *OrderHandler) handleGetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	orders, err := h.service.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to get user orders via service")
		respondWithServiceError(w, err, "Failed to get orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	filter := order.ListFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = order.ParseOrderStatus(status)
		if filter.Status == order.StatusUnknown {
			respondWithError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}
	filter.Limit, filter.Offset = pagination(r)

	orders, err := h.service.ListOrders(r.Context(), session.FromContext(r.Context()), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list orders via service")
		respondWithServiceError(w, err, "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateOrderStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	auth := session.FromContext(r.Context())
	if err := h.service.UpdateOrderStatus(r.Context(), auth, orderID, order.ParseOrderStatus(req.Status), req.TrackingNumber); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Str("status", req.Status).Msg("Failed to update order status via service")
		respondWithServiceError(w, err, "Failed to update order status")
		return
	}

	h.respondWithOrder(w, r, orderID)
}

func (h *OrderHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.ApproveOrder(r.Context(), session.FromContext(r.Context()), orderID); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to approve order via service")
		respondWithServiceError(w, err, "Failed to approve order")
		return
	}

	h.respondWithOrder(w, r, orderID)
}

func (h *OrderHandler) respondWithOrder(w http.ResponseWriter, r *http.Request, orderID uuid.UUID) {
	updated, err := h.service.GetOrderByID(r.Context(), orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to reload order after update")
		respondWithServiceError(w, err, "Failed to get order")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}
