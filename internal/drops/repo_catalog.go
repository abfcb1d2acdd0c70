package drops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool the repositories need.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CatalogRepo reads drops from Postgres. Variants and shipping options are
// stored as JSONB documents on the drop row.
type CatalogRepo struct{ DB DBTX }

func (r *CatalogRepo) GetDrop(ctx context.Context, id string) (*Drop, error) {
	var (
		d                   Drop
		variants, shippings []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, currency, max_per_user, default_variant_id, progress, interest_count,
		       variants, shipping_options
		FROM drops WHERE id=$1`, id).
		Scan(&d.ID, &d.Name, &d.Currency, &d.MaxPerUser, &d.DefaultVariantID, &d.Progress, &d.InterestCount,
			&variants, &shippings)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDropNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(variants, &d.Variants); err != nil {
		return nil, fmt.Errorf("decode variants of %s: %w", id, err)
	}
	if len(shippings) > 0 {
		if err := json.Unmarshal(shippings, &d.ShippingOptions); err != nil {
			return nil, fmt.Errorf("decode shipping options of %s: %w", id, err)
		}
	}
	// a drop that fails validation cannot be resolved, so callers see it as absent
	if err := ValidateDrop(&d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDropNotFound, err)
	}
	return &d, nil
}
