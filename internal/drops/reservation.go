package drops

import (
	"time"

	"github.com/google/uuid"
)

const DefaultHistoryCap = 12

// NewReservation prices a selection against the drop. The selection is
// re-resolved and the shipping option looked up fresh from the drop, so a
// stale or malformed selection still yields a valid record.
func NewReservation(d *Drop, sel Selection, id string, now time.Time) Reservation {
	r := Resolve(d, sel)

	shipping := 0
	shippingID := ""
	if r.ShippingOption != nil {
		if so, ok := d.Shipping(r.ShippingOption.ID); ok {
			shipping = so.PriceCents
			shippingID = so.ID
		}
	}
	origin := ""
	if r.OriginOption != nil {
		origin = r.OriginOption.ID
	}
	if id == "" {
		id = uuid.NewString()
	}

	unit := r.Variant.BasePriceCents
	return Reservation{
		ID:             id,
		DropID:         d.ID,
		VariantID:      r.Variant.ID,
		Quantity:       r.Quantity,
		UnitPriceCents: unit,
		ShippingCents:  shipping,
		TotalCents:     unit*r.Quantity + shipping,
		Currency:       d.Currency,
		ShippingID:     shippingID,
		OriginOptionID: origin,
		InviteRequired: r.Variant.InviteRequired,
		CreatedAt:      now.UTC(),
	}
}
