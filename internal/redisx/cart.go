package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-drops/internal/drops"
	"github.com/redis/go-redis/v9"
)

const cartMaxRetries = 5

type CartItem struct {
	DropID         string `json:"drop_id"`
	VariantID      string `json:"variant_id"`
	Label          string `json:"label"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int    `json:"unit_price_cents"`
	Currency       string `json:"currency"`
}

type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartSink writes checked-out selections into one user's cart.
type CartSink struct {
	rdb    *redis.Client
	userID string
	ttl    time.Duration
	now    func() time.Time
}

func NewCartSink(rdb *redis.Client, userID string, ttl time.Duration) *CartSink {
	if ttl <= 0 {
		ttl = TTLCart
	}
	return &CartSink{rdb: rdb, userID: userID, ttl: ttl, now: time.Now}
}

// AddItem upserts the line for drop+variant. The quantity replaces any
// earlier quantity for the same line.
func (c *CartSink) AddItem(ctx context.Context, d *drops.Drop, v drops.Variant, quantity int) error {
	key := fmt.Sprintf(KeyCart, c.userID)
	item := CartItem{
		DropID:         d.ID,
		VariantID:      v.ID,
		Label:          v.Label,
		Quantity:       quantity,
		UnitPriceCents: v.BasePriceCents,
		Currency:       d.Currency,
	}

	txf := func(tx *redis.Tx) error {
		cart, err := readCart(ctx, tx, key, c.userID)
		if err != nil {
			return err
		}
		cart.upsert(item)
		cart.UpdatedAt = c.now().UTC()
		b, err := json.Marshal(cart)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, c.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < cartMaxRetries; i++ {
		err := c.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("cart %s: too much contention", c.userID)
}

// Get returns the user's cart; a missing cart is empty.
func (c *CartSink) Get(ctx context.Context) (Cart, error) {
	return readCart(ctx, c.rdb, fmt.Sprintf(KeyCart, c.userID), c.userID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readCart(ctx context.Context, r getter, key, userID string) (Cart, error) {
	cart := Cart{UserID: userID, Items: []CartItem{}}
	b, err := r.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart, nil
	}
	if err != nil {
		return Cart{}, err
	}
	if err := json.Unmarshal(b, &cart); err != nil {
		return Cart{}, fmt.Errorf("decode cart %s: %w", userID, err)
	}
	return cart, nil
}

func (c *Cart) upsert(item CartItem) {
	for i := range c.Items {
		if c.Items[i].DropID == item.DropID && c.Items[i].VariantID == item.VariantID {
			c.Items[i] = item
			return
		}
	}
	c.Items = append(c.Items, item)
}
