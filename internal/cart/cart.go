// Package cart implements the session-scoped shopping cart. The cart is held
// in memory and written back to a kvstore.Store after every mutation.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"arokya/internal/apperr"
	"arokya/internal/models"
	"arokya/pkg/kvstore"

	"github.com/shopspring/decimal"
)

// StorageKey is the key the cart is persisted under.
const StorageKey = "cart"

var (
	// ErrUnknownProduct is returned when removing a product that is not in the cart.
	ErrUnknownProduct = fmt.Errorf("%w: product is not in the cart", apperr.ErrNotFound)
	// ErrInvalidLine is returned for an empty product id or a negative price.
	ErrInvalidLine = fmt.Errorf("%w: invalid cart line", apperr.ErrValidation)
)

// Cart is a collection of lines with at most one line per product id.
type Cart struct {
	mu    sync.Mutex
	lines []models.CartLine
	store kvstore.Store
}

// Open loads the cart persisted in store. A store without a cart yields an
// empty cart.
func Open(ctx context.Context, store kvstore.Store) (*Cart, error) {
	c := &Cart{store: store}

	raw, err := store.Get(ctx, StorageKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load cart: %v", apperr.ErrPersistence, err)
	}
	if err := json.Unmarshal(raw, &c.lines); err != nil {
		return nil, fmt.Errorf("%w: stored cart is corrupt: %v", apperr.ErrValidation, err)
	}
	return c, nil
}

// Add puts one unit of a product into the cart, merging with an existing line
// for the same product. It returns the number of items in the cart.
func (c *Cart) Add(ctx context.Context, productID, name string, unitPrice decimal.Decimal) (int, error) {
	if productID == "" || unitPrice.IsNegative() {
		return 0, ErrInvalidLine
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snapshot()
	if i := indexOf(next, productID); i >= 0 {
		next[i].Quantity++
	} else {
		next = append(next, models.CartLine{
			ProductID: productID,
			Name:      name,
			UnitPrice: unitPrice,
			Quantity:  1,
		})
	}
	if err := c.commit(ctx, next); err != nil {
		return 0, err
	}
	return count(c.lines), nil
}

// Decrement takes one unit of a product out of the cart. The line goes away
// when its quantity reaches zero.
func (c *Cart) Decrement(ctx context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snapshot()
	i := indexOf(next, productID)
	if i < 0 {
		return ErrUnknownProduct
	}
	next[i].Quantity--
	if next[i].Quantity <= 0 {
		next = append(next[:i], next[i+1:]...)
	}
	return c.commit(ctx, next)
}

// Remove drops the whole line for a product.
func (c *Cart) Remove(ctx context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snapshot()
	i := indexOf(next, productID)
	if i < 0 {
		return ErrUnknownProduct
	}
	next = append(next[:i], next[i+1:]...)
	return c.commit(ctx, next)
}

// Clear empties the cart.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commit(ctx, nil)
}

// Total is the sum of UnitPrice × Quantity over all lines, computed on every call.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Count is the number of items across all lines.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return count(c.lines)
}

// Lines returns a copy of the cart lines in the order they were first added.
func (c *Cart) Lines() []models.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshot()
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.lines) == 0
}

func (c *Cart) snapshot() []models.CartLine {
	out := make([]models.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// commit persists next and only then makes it the in-memory state, so a
// failed write leaves the cart exactly as it was.
func (c *Cart) commit(ctx context.Context, next []models.CartLine) error {
	if next == nil {
		next = []models.CartLine{}
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := c.store.Set(ctx, StorageKey, raw); err != nil {
		return fmt.Errorf("%w: failed to save cart: %v", apperr.ErrPersistence, err)
	}
	c.lines = next
	return nil
}

func indexOf(lines []models.CartLine, productID string) int {
	for i := range lines {
		if lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func count(lines []models.CartLine) int {
	n := 0
	for _, line := range lines {
		n += line.Quantity
	}
	return n
}
