package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	"github.com/vibek01/ECOM-D1/internal/platform/auth"
	"github.com/vibek01/ECOM-D1/internal/platform/httpx"
	"github.com/vibek01/ECOM-D1/internal/platform/requestctx"
	"github.com/vibek01/ECOM-D1/internal/services"
)

// OrderHandlers exposes order placement for shoppers and order management for administrators.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
	userMW      []func(http.Handler) http.Handler
}

// OrderHandlersOption customises the order handlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency wraps order placement with the given idempotency middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithOrderUserMiddlewares appends middleware that runs after authentication on shopper routes.
func WithOrderUserMiddlewares(mw ...func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.userMW = append(h.userMW, mw...)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(user chi.Router) {
		if h.authn != nil {
			user.Use(h.authn.RequireAuth())
		}
		for _, mw := range h.userMW {
			if mw != nil {
				user.Use(mw)
			}
		}
		place := http.Handler(http.HandlerFunc(h.placeOrder))
		if h.idempotency != nil {
			place = h.idempotency(place)
		}
		user.Method(http.MethodPost, "/", place)
		user.Get("/my-orders", h.listMyOrders)
	})

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(auth.RoleAdmin))
		}
		admin.Get("/admin", h.listAllOrders)
		admin.Put("/admin/{orderID}", h.updateOrderStatus)
	})
}

type placeOrderRequest struct {
	Items           []placeOrderItemRequest `json:"items"`
	ShippingAddress addressPayload          `json:"shippingAddress"`
	TotalAmount     decimal.Decimal         `json:"totalAmount"`
	PaymentID       string                  `json:"paymentId"`
}

type placeOrderItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type updateOrderStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"trackingNumber"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := identityFrom(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(r, maxBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.PlaceOrderCommand{
		UserID:          identity.UID,
		Items:           make([]services.PlaceOrderItem, 0, len(req.Items)),
		ShippingAddress: req.ShippingAddress.toDomain(),
		TotalAmount:     req.TotalAmount,
		PaymentID:       req.PaymentID,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.PlaceOrderItem{
			Ref:      services.VariantRef{ProductID: item.ProductID, VariantID: item.VariantID},
			Quantity: item.Quantity,
		})
	}

	order, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := identityFrom(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListUserOrders(ctx, identity.UID, pager)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Orders: items, NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListAllOrders(ctx, pager)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		payload := buildOrderPayload(entry.Order)
		if entry.User != nil {
			payload.User = &userSummaryPayload{
				ID:       entry.User.ID,
				Username: entry.User.Username,
				Email:    entry.User.Email,
			}
		}
		items = append(items, payload)
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Orders: items, NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateOrderStatusRequest
	if err := decodeJSONBody(r, maxBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if !domain.OrderStatus(strings.TrimSpace(req.Status)).Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", "invalid order status", http.StatusBadRequest))
		return
	}

	var actorID string
	if identity, ok := identityFrom(r); ok {
		actorID = identity.UID
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:        orderID,
		Status:         req.Status,
		TrackingNumber: req.TrackingNumber,
		ActorID:        actorID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type orderPayload struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	User            *userSummaryPayload `json:"user,omitempty"`
	Items           []orderItemPayload  `json:"items"`
	ShippingAddress addressPayload      `json:"shippingAddress"`
	TotalAmount     json.Number         `json:"totalAmount"`
	Status          string              `json:"status"`
	PaymentDetails  paymentPayload      `json:"paymentDetails"`
	TrackingNumber  *string             `json:"trackingNumber,omitempty"`
	CreatedAt       string              `json:"createdAt"`
	UpdatedAt       string              `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	ProductID string      `json:"productId"`
	VariantID string      `json:"variantId"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Quantity  int         `json:"quantity"`
	Size      string      `json:"size"`
	Color     string      `json:"color"`
	Image     string      `json:"image"`
}

type addressPayload struct {
	FullName   string `json:"fullName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (a addressPayload) toDomain() services.ShippingAddress {
	return services.ShippingAddress{
		FullName:   a.FullName,
		Street:     a.Street,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type paymentPayload struct {
	PaymentID     string `json:"paymentId"`
	PaymentStatus string `json:"paymentStatus"`
}

type userSummaryPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:     order.ID,
		UserID: order.UserID,
		Items:  make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress: addressPayload{
			FullName:   order.ShippingAddress.FullName,
			Street:     order.ShippingAddress.Street,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		TotalAmount: amount(order.TotalAmount),
		Status:      string(order.Status),
		PaymentDetails: paymentPayload{
			PaymentID:     order.Payment.PaymentID,
			PaymentStatus: string(order.Payment.PaymentStatus),
		},
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	if order.TrackingNumber != nil && *order.TrackingNumber != "" {
		tracking := *order.TrackingNumber
		payload.TrackingNumber = &tracking
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Price:     amount(item.Price),
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			Image:     item.ImageURL,
		})
	}
	return payload
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

// writeOrderError maps service failures onto the error envelope. Stock failures keep the message
// raised inside the transaction.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var stockErr *services.StockError
	switch {
	case errors.As(err, &stockErr):
		writeStockError(ctx, w, stockErr)
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order could not be committed because of a concurrent update", http.StatusConflict))
	default:
		requestctx.Logger(ctx).Error("order request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeStockError(ctx context.Context, w http.ResponseWriter, err *services.StockError) {
	switch err.Code {
	case services.StockErrorProductNotFound:
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound).
			WithDetails(map[string]any{"productId": err.ProductID}))
	case services.StockErrorVariantNotFound:
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", err.Error(), http.StatusNotFound).
			WithDetails(map[string]any{"productId": err.ProductID, "variantId": err.VariantID}))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{
				"productId": err.ProductID,
				"variantId": err.VariantID,
				"available": err.Available,
				"requested": err.Requested,
			}))
	}
}
