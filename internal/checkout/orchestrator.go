// Package checkout drives a cart through payment: it mints a provider order,
// hands it to the payment widget and records the outcome in the order ledger.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"arokya/internal/apperr"
	"arokya/internal/cart"
	"arokya/internal/models"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const instrumentationName = "arokya/internal/checkout"

var (
	ErrEmptyCart          = fmt.Errorf("%w: cart is empty", apperr.ErrValidation)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be a positive number", apperr.ErrValidation)
	ErrCheckoutInProgress = fmt.Errorf("%w: a checkout is already in progress", apperr.ErrConflict)
	ErrNoPendingPayment   = fmt.Errorf("%w: no payment is awaiting an outcome", apperr.ErrConflict)
	ErrMissingPaymentID   = fmt.Errorf("%w: payment id is required", apperr.ErrValidation)

	// ErrRecordingFailed means the payment went through but the ledger write
	// did not. The cart is kept and Confirm may be called again.
	ErrRecordingFailed = errors.New("payment succeeded but recording failed")
	// ErrPaymentFailed is returned by Checkout when the widget reports a failure.
	ErrPaymentFailed = errors.New("payment failed")
)

// State is a step of the checkout state machine.
type State int

const (
	Idle State = iota
	OrderRequested
	WidgetOpen
	PaymentConfirmed
	PaymentFailed
	PaymentCancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case OrderRequested:
		return "OrderRequested"
	case WidgetOpen:
		return "WidgetOpen"
	case PaymentConfirmed:
		return "PaymentConfirmed"
	case PaymentFailed:
		return "PaymentFailed"
	case PaymentCancelled:
		return "PaymentCancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Backend is the part of the storefront API checkout talks to.
// *client.APIClient implements it.
type Backend interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal) (*models.PaymentOrder, error)
	SaveOrder(ctx context.Context, req models.SaveOrderRequest) error
}

// WidgetOptions is everything the payment widget needs to collect a payment.
type WidgetOptions struct {
	Key         string
	Amount      int64
	Currency    string
	OrderID     string
	Name        string
	Description string
}

// WidgetResult is what the widget reports back. State is one of
// PaymentConfirmed, PaymentFailed or PaymentCancelled.
type WidgetResult struct {
	State     State
	PaymentID string
	Reason    string
}

// Widget collects a payment for a provider order. Open blocks until the user
// finishes; a cancelled context counts as the user dismissing the widget.
type Widget interface {
	Open(ctx context.Context, opts WidgetOptions) (WidgetResult, error)
}

// Result describes how a Checkout call ended.
type Result struct {
	State     State
	OrderID   string
	PaymentID string
	Reason    string
	Order     *models.OrderRecord
}

// PendingPayment is the provider order the orchestrator is working on.
type PendingPayment struct {
	OrderID   string
	Amount    int64
	Currency  string
	PaymentID string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMerchant sets the name and description shown in the widget.
func WithMerchant(name, description string) Option {
	return func(o *Orchestrator) {
		o.name = name
		o.description = description
	}
}

// Orchestrator runs one checkout at a time for a cart.
type Orchestrator struct {
	mu          sync.Mutex
	cart        *cart.Cart
	backend     Backend
	state       State
	pending     *PendingPayment
	saving      bool
	name        string
	description string
}

// New creates an Orchestrator in the Idle state.
func New(c *cart.Cart, backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cart:        c,
		backend:     backend,
		state:       Idle,
		name:        "Arokya Collections",
		description: "Jewellery purchase",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Pending returns the payment in flight, if any.
func (o *Orchestrator) Pending() (PendingPayment, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return PendingPayment{}, false
	}
	return *o.pending, true
}

// Begin mints a provider order for the cart total and returns the options to
// open the widget with. The lock is not held while the backend is called; the
// OrderRequested state keeps other callers out.
func (o *Orchestrator) Begin(ctx context.Context) (*WidgetOptions, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "Orchestrator.Begin")
	defer span.End()

	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}
	total := o.cart.Total()
	if !total.IsPositive() {
		o.mu.Unlock()
		return nil, ErrEmptyCart
	}
	minor := models.ToMinorUnits(total)
	if minor <= 0 {
		o.mu.Unlock()
		return nil, ErrInvalidAmount
	}
	o.state = OrderRequested
	o.mu.Unlock()

	span.SetAttributes(attribute.Int64("checkout.amount_minor", minor))

	order, err := o.backend.CreateOrder(ctx, total)
	if err == nil {
		err = checkOrder(order, minor)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.state = Idle
		span.RecordError(err)
		span.SetStatus(codes.Error, "order creation failed")
		return nil, err
	}

	currency := order.Currency
	if currency == "" {
		currency = "INR"
	}
	o.pending = &PendingPayment{OrderID: order.ID, Amount: minor, Currency: currency}
	o.state = WidgetOpen
	span.SetAttributes(attribute.String("checkout.order_id", order.ID))

	return &WidgetOptions{
		Key:         order.Key,
		Amount:      minor,
		Currency:    currency,
		OrderID:     order.ID,
		Name:        o.name,
		Description: o.description,
	}, nil
}

func checkOrder(order *models.PaymentOrder, minor int64) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("%w: payment order has no id", apperr.ErrUpstream)
	}
	if order.Amount != minor {
		return fmt.Errorf("%w: payment order is for %d, expected %d", apperr.ErrUpstream, order.Amount, minor)
	}
	return nil
}

// Confirm records a successful payment in the ledger and clears the cart. If
// recording fails the state stays PaymentConfirmed, the cart is kept and
// Confirm can be called again; an empty paymentID reuses the previous one.
func (o *Orchestrator) Confirm(ctx context.Context, paymentID string) (*models.OrderRecord, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "Orchestrator.Confirm")
	defer span.End()

	o.mu.Lock()
	if o.state != WidgetOpen && o.state != PaymentConfirmed {
		o.mu.Unlock()
		return nil, ErrNoPendingPayment
	}
	if o.saving {
		o.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}
	if paymentID == "" {
		paymentID = o.pending.PaymentID
	}
	if paymentID == "" {
		o.mu.Unlock()
		return nil, ErrMissingPaymentID
	}
	o.pending.PaymentID = paymentID
	o.state = PaymentConfirmed
	o.saving = true
	p := *o.pending
	o.mu.Unlock()

	span.SetAttributes(
		attribute.String("checkout.order_id", p.OrderID),
		attribute.String("checkout.payment_id", p.PaymentID),
	)

	err := o.backend.SaveOrder(ctx, models.SaveOrderRequest{
		OrderID:  p.OrderID,
		Amount:   p.Amount,
		Currency: p.Currency,
		Status:   models.OrderStatusPaid,
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	o.saving = false
	if err != nil {
		log.Printf("Payment %s for order %s succeeded but could not be recorded: %v", p.PaymentID, p.OrderID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "recording failed")
		return nil, fmt.Errorf("%w: %w", ErrRecordingFailed, err)
	}
	if err := o.cart.Clear(ctx); err != nil {
		// The ledger upsert is idempotent, so a retry of Confirm is safe.
		span.RecordError(err)
		return nil, err
	}
	o.state = Idle
	o.pending = nil

	return &models.OrderRecord{
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    models.OrderStatusPaid,
		CreatedAt: time.Now(),
	}, nil
}

// Fail records that the widget reported a failed payment. The cart is kept.
func (o *Orchestrator) Fail(reason string) error {
	return o.close(PaymentFailed, reason)
}

// Cancel records that the user dismissed the widget. The cart is kept.
func (o *Orchestrator) Cancel() error {
	return o.close(PaymentCancelled, "")
}

func (o *Orchestrator) close(outcome State, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != WidgetOpen {
		return ErrNoPendingPayment
	}
	if outcome == PaymentFailed {
		log.Printf("Payment for order %s failed: %s", o.pending.OrderID, reason)
	}
	o.state = Idle
	o.pending = nil
	return nil
}

// Discard gives up on a payment whose recording keeps failing and returns it
// so the caller can show it to the user. The cart is kept.
func (o *Orchestrator) Discard() (PendingPayment, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != PaymentConfirmed || o.saving {
		return PendingPayment{}, ErrNoPendingPayment
	}
	p := *o.pending
	log.Printf("Discarding unrecorded payment %s for order %s", p.PaymentID, p.OrderID)
	o.state = Idle
	o.pending = nil
	return p, nil
}

// Checkout runs the whole flow: Begin, open the widget and apply its outcome.
// A cancelled payment is not an error.
func (o *Orchestrator) Checkout(ctx context.Context, widget Widget) (*Result, error) {
	opts, err := o.Begin(ctx)
	if err != nil {
		return nil, err
	}

	res, err := widget.Open(ctx, *opts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			res = WidgetResult{State: PaymentCancelled}
		} else {
			res = WidgetResult{State: PaymentFailed, Reason: err.Error()}
		}
	}

	result := &Result{State: res.State, OrderID: opts.OrderID, PaymentID: res.PaymentID, Reason: res.Reason}
	switch res.State {
	case PaymentConfirmed:
		record, err := o.Confirm(ctx, res.PaymentID)
		if err != nil {
			return result, err
		}
		result.Order = record
		return result, nil
	case PaymentCancelled:
		if err := o.Cancel(); err != nil {
			return result, err
		}
		return result, nil
	default:
		result.State = PaymentFailed
		if err := o.Fail(res.Reason); err != nil {
			return result, err
		}
		return result, fmt.Errorf("%w: %s", ErrPaymentFailed, res.Reason)
	}
}
