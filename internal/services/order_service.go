package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/vibek01/ECOM-D1/internal/domain"
	"github.com/vibek01/ECOM-D1/internal/payments"
	"github.com/vibek01/ECOM-D1/internal/platform/pagination"
	"github.com/vibek01/ECOM-D1/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates the transaction lost a concurrent write or the id already exists.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the backing store could not be reached.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Users       repositories.UserRepository
	UnitOfWork  repositories.UnitOfWork
	Payments    payments.Processor
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Meter       metric.Meter
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	users      repositories.UserRepository
	ledger     stockLedger
	unitOfWork repositories.UnitOfWork
	payments   payments.Processor
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	metrics    *orderMetrics
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("order service: unit of work is required")
	}

	processor := deps.Payments
	if processor == nil {
		processor = payments.NewSimulator()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utcClock := func() time.Time { return clock().UTC() }

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		users:      deps.Users,
		ledger:     stockLedger{products: deps.Products, clock: utcClock},
		unitOfWork: deps.UnitOfWork,
		payments:   processor,
		clock:      utcClock,
		newID:      idGen,
		events:     deps.Events,
		metrics:    newOrderMetrics(deps.Meter),
		logger:     logger,
	}, nil
}

// PlaceOrder validates the request, then reserves every line item in request order and writes the
// order inside one transaction. A failure at any step discards all reservations and the failing
// step's error is returned.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	cmd, err := normalizePlaceOrderCommand(cmd)
	if err != nil {
		s.metrics.placementFailed(ctx, "invalid_input")
		return Order{}, err
	}

	now := s.now()
	orderID := s.nextOrderID()

	var order Order
	err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		items := make([]OrderItem, 0, len(cmd.Items))
		for _, item := range cmd.Items {
			res, err := s.ledger.Reserve(ctx, item.Ref, item.Quantity)
			if err != nil {
				return err
			}
			items = append(items, snapshotItem(res, item.Quantity))
		}

		charge, err := s.payments.Charge(ctx, payments.ChargeRequest{
			OrderID:    orderID,
			CustomerID: cmd.UserID,
			Amount:     cmd.TotalAmount,
			PaymentID:  cmd.PaymentID,
		})
		if err != nil {
			return err
		}

		order = Order{
			ID:              orderID,
			UserID:          cmd.UserID,
			Items:           items,
			ShippingAddress: cmd.ShippingAddress,
			TotalAmount:     cmd.TotalAmount,
			Status:          domain.OrderStatusPending,
			Payment: PaymentDetails{
				PaymentID:     charge.PaymentID,
				PaymentStatus: domain.PaymentStatus(charge.Status),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.orders.Insert(ctx, order)
	})
	if err != nil {
		s.metrics.placementFailed(ctx, placementFailureReason(err))
		s.logger(ctx, "order.place.failed", map[string]any{
			"userId": cmd.UserID,
			"order":  orderID,
			"error":  err.Error(),
		})
		return Order{}, s.mapPlacementError(err)
	}

	units := 0
	for _, item := range order.Items {
		units += item.Quantity
	}
	s.metrics.orderPlaced(ctx, units)
	s.logger(ctx, "order.placed", map[string]any{
		"order":  order.ID,
		"userId": order.UserID,
		"items":  len(order.Items),
		"units":  units,
	})
	s.publishEvent(ctx, newOrderCreatedEvent(order, now))
	return order, nil
}

// ListUserOrders returns the orders placed by userID, newest first.
func (s *orderService) ListUserOrders(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{UserID: userID, Pagination: pager})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// ListAllOrders returns every order newest first, joined with the placing user's summary.
func (s *orderService) ListAllOrders(ctx context.Context, pager Pagination) (domain.CursorPage[AdminOrder], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{Pagination: pager})
	if err != nil {
		return domain.CursorPage[AdminOrder]{}, s.mapRepositoryError(err)
	}

	users := map[string]User{}
	if s.users != nil && len(page.Items) > 0 {
		ids := make([]string, 0, len(page.Items))
		for _, order := range page.Items {
			ids = append(ids, order.UserID)
		}
		found, err := s.users.FindByIDs(ctx, ids)
		if err != nil {
			return domain.CursorPage[AdminOrder]{}, s.mapRepositoryError(err)
		}
		users = found
	}

	result := domain.CursorPage[AdminOrder]{
		Items:         make([]AdminOrder, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		entry := AdminOrder{Order: order}
		if user, ok := users[order.UserID]; ok {
			summary := user.Summary()
			entry.User = &summary
		}
		result.Items = append(result.Items, entry)
	}
	return result, nil
}

// UpdateStatus moves the order to the requested status. A non-blank tracking number replaces the
// stored one. The stored order is untouched when the status is not part of the lifecycle.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := OrderStatus(strings.TrimSpace(cmd.Status))
	if !target.Valid() {
		return Order{}, fmt.Errorf("%w: invalid order status %q", ErrOrderInvalidInput, cmd.Status)
	}
	var tracking string
	if cmd.TrackingNumber != nil {
		tracking = sanitizeText(*cmd.TrackingNumber)
	}

	var (
		updated  Order
		previous OrderStatus
	)
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !domain.CanTransitionOrderStatus(order.Status, target) {
			return fmt.Errorf("%w: cannot move order from %s to %s", ErrOrderInvalidInput, order.Status, target)
		}
		previous = order.Status
		order.Status = target
		if tracking != "" {
			order.TrackingNumber = &tracking
		}
		order.UpdatedAt = s.now()
		if err := s.orders.Update(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.metrics.statusUpdated(ctx, updated.Status)
	s.logger(ctx, "order.status.updated", map[string]any{
		"order": updated.ID,
		"from":  string(previous),
		"to":    string(updated.Status),
		"actor": cmd.ActorID,
	})
	s.publishEvent(ctx, newOrderStatusChangedEvent(updated, previous, strings.TrimSpace(cmd.ActorID), updated.UpdatedAt))
	return updated, nil
}

func normalizePlaceOrderCommand(cmd PlaceOrderCommand) (PlaceOrderCommand, error) {
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	if cmd.UserID == "" {
		return cmd, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return cmd, fmt.Errorf("%w: cannot create an order with no items", ErrOrderInvalidInput)
	}

	items := make([]PlaceOrderItem, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		item.Ref.ProductID = strings.TrimSpace(item.Ref.ProductID)
		item.Ref.VariantID = strings.TrimSpace(item.Ref.VariantID)
		if item.Ref.ProductID == "" || item.Ref.VariantID == "" {
			return cmd, fmt.Errorf("%w: items[%d] requires productId and variantId", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return cmd, fmt.Errorf("%w: items[%d] quantity must be positive", ErrOrderInvalidInput, i)
		}
		items = append(items, item)
	}
	cmd.Items = items

	addr := ShippingAddress{
		FullName:   sanitizeText(cmd.ShippingAddress.FullName),
		Street:     sanitizeText(cmd.ShippingAddress.Street),
		City:       sanitizeText(cmd.ShippingAddress.City),
		PostalCode: sanitizeText(cmd.ShippingAddress.PostalCode),
		Country:    sanitizeText(cmd.ShippingAddress.Country),
	}
	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"fullName", addr.FullName},
		{"street", addr.Street},
		{"city", addr.City},
		{"postalCode", addr.PostalCode},
		{"country", addr.Country},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return cmd, fmt.Errorf("%w: shipping address requires %s", ErrOrderInvalidInput, strings.Join(missing, ", "))
	}
	cmd.ShippingAddress = addr

	if cmd.TotalAmount.IsNegative() {
		return cmd, fmt.Errorf("%w: total amount must not be negative", ErrOrderInvalidInput)
	}
	cmd.PaymentID = strings.TrimSpace(cmd.PaymentID)
	return cmd, nil
}

// mapPlacementError keeps stock errors as raised and categorises repository failures.
func (s *orderService) mapPlacementError(err error) error {
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		return err
	}
	if errors.Is(err, payments.ErrInvalidRequest) {
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	return err
}

func placementFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrVariantNotFound):
		return "variant_not_found"
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return "conflict"
	}
	return "internal"
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}
