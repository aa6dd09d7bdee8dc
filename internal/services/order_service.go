package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"arokya/internal/models"
	"arokya/internal/payment"
	"arokya/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "arokya/internal/services"

// EventPublisher delivers ledger events to the broker.
type EventPublisher interface {
	PublishOrderEvent(event models.OrderEvent) error
}

// OrderService mints payment orders and keeps the per-user order ledger.
type OrderService struct {
	orderRepo repositories.OrderRepository
	userRepo  repositories.UserRepository
	gateway   payment.Gateway
	publisher EventPublisher // optional
	currency  string
	recorded  metric.Int64Counter

	recordCreated bool
}

// NewOrderService creates a new OrderService. publisher may be nil.
func NewOrderService(orderRepo repositories.OrderRepository, userRepo repositories.UserRepository, gateway payment.Gateway, publisher EventPublisher, currency string) *OrderService {
	if currency == "" {
		currency = "INR"
	}
	recorded, err := otel.Meter(instrumentationName).Int64Counter(
		"arokya.ledger.orders_recorded",
		metric.WithDescription("Order records written to the ledger"),
	)
	if err != nil {
		log.Printf("Warning: failed to create ledger counter: %v", err)
	}
	return &OrderService{
		orderRepo: orderRepo,
		userRepo:  userRepo,
		gateway:   gateway,
		publisher: publisher,
		currency:  strings.ToUpper(currency),
		recorded:  recorded,
	}
}

// SetRecordCreated makes CreatePaymentOrder put a "created" entry in the
// ledger of a signed-in user. Off by default: only finished checkouts are
// recorded.
func (s *OrderService) SetRecordCreated(on bool) {
	s.recordCreated = on
}

// CreatePaymentOrder asks the payment provider for an order worth amount
// (major units). userID is optional and is passed to the provider as a note.
// Provider failures are returned as upstream errors and are not retried.
func (s *OrderService) CreatePaymentOrder(ctx context.Context, userID string, amount decimal.Decimal) (*models.PaymentOrder, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "OrderService.CreatePaymentOrder")
	defer span.End()

	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	minor := models.ToMinorUnits(amount)
	if minor <= 0 {
		return nil, ErrInvalidAmount
	}
	span.SetAttributes(attribute.Int64("order.amount_minor", minor), attribute.String("order.currency", s.currency))

	req := payment.OrderRequest{
		Amount:   minor,
		Currency: s.currency,
		Receipt:  newReceipt(),
	}
	if userID != "" {
		req.Notes = map[string]string{"user_id": userID}
	}

	order, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment order failed")
		log.Printf("Error creating payment order for %d %s: %v", minor, s.currency, err)
		return nil, fmt.Errorf("failed to create payment order: %w", err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	if userID != "" && s.recordCreated {
		_, err := s.record(&models.OrderRecord{
			UserID:   userID,
			OrderID:  order.ID,
			Amount:   order.Amount,
			Currency: order.Currency,
			Status:   models.OrderStatusCreated,
		})
		if err != nil {
			// no money has moved yet, the order is still usable
			log.Printf("Warning: failed to record created order %s for user %s: %v", order.ID, userID, err)
		}
	}

	return &models.PaymentOrder{
		ID:       order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Key:      s.gateway.KeyID(),
	}, nil
}

// AppendOrder records an order for a user. Repeating the call with the same
// order id updates the existing entry, so client retries never duplicate it.
func (s *OrderService) AppendOrder(userID string, req models.SaveOrderRequest) (*models.OrderRecord, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	switch {
	case req.OrderID == "":
		return nil, fmt.Errorf("%w: orderId is required", ErrInvalidOrder)
	case req.Amount <= 0:
		return nil, fmt.Errorf("%w: amount must be positive minor units", ErrInvalidOrder)
	case len(req.Currency) != 3:
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidOrder)
	case !req.Status.Valid():
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, req.Status)
	}

	if err := s.requireUser(userID); err != nil {
		return nil, err
	}

	return s.record(&models.OrderRecord{
		UserID:   userID,
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   req.Status,
	})
}

// ListOrders returns the user's ledger, oldest first.
func (s *OrderService) ListOrders(userID string) ([]models.OrderRecord, error) {
	if err := s.requireUser(userID); err != nil {
		return nil, err
	}
	return s.orderRepo.ListByUser(userID)
}

func (s *OrderService) requireUser(userID string) error {
	if _, err := s.userRepo.GetByID(userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *OrderService) record(record *models.OrderRecord) (*models.OrderRecord, error) {
	stored, err := s.orderRepo.Upsert(record)
	if err != nil {
		return nil, fmt.Errorf("failed to record order %s: %w", record.OrderID, err)
	}
	if s.recorded != nil {
		s.recorded.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", string(stored.Status))))
	}

	if s.publisher != nil {
		event := models.OrderEvent{
			Type:       models.OrderEventRecorded,
			UserID:     record.UserID,
			OrderID:    stored.OrderID,
			Amount:     stored.Amount,
			Currency:   stored.Currency,
			Status:     stored.Status,
			OccurredAt: time.Now().UTC(),
		}
		if err := s.publisher.PublishOrderEvent(event); err != nil {
			log.Printf("Warning: Failed to publish order event for order %s: %v", stored.OrderID, err)
		}
	}
	return stored, nil
}

// newReceipt builds a receipt id within the provider's 40 character limit.
func newReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
