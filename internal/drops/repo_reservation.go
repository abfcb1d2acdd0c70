package drops

import "context"

// ReservationRepo keeps an audit trail of created reservations.
type ReservationRepo struct{ DB DBTX }

// Insert is idempotent on reservation id.
func (r *ReservationRepo) Insert(ctx context.Context, userID string, res Reservation) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO drop_reservations(id, user_id, drop_id, variant_id, quantity, unit_price_cents,
		                              shipping_cents, total_cents, currency, shipping_option_id,
		                              origin_option_id, invite_required, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO NOTHING`,
		res.ID, userID, res.DropID, res.VariantID, res.Quantity, res.UnitPriceCents,
		res.ShippingCents, res.TotalCents, res.Currency, res.ShippingID,
		res.OriginOptionID, res.InviteRequired, res.CreatedAt,
	)
	return err
}
