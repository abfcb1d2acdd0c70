package drops

import "slices"

// The resolvers are total: given a drop with at least one variant they
// always produce a value, repairing the candidate to the nearest valid one.

const defaultMaxMultiplier = 4

// ResolveVariant returns the candidate variant if it exists, then the drop's
// default variant, then the first variant.
func ResolveVariant(d *Drop, candidateID string) Variant {
	if v, ok := d.Variant(candidateID); ok {
		return v
	}
	if v, ok := d.Variant(d.DefaultVariantID); ok {
		return v
	}
	return d.Variants[0]
}

// VariantLimits computes the quantity bounds of a variant. The ceiling is the
// smallest of the explicit max (or 4x min), the per-user cap, and the stock
// when stock is positive. Zero stock applies no ceiling; out-of-stock is
// signaled separately.
func VariantLimits(d *Drop, v Variant) Limits {
	lo := max(v.MinQuantity, 1)

	variantMax := defaultMaxMultiplier * v.MinQuantity
	if v.MaxQuantity != nil {
		variantMax = *v.MaxQuantity
	}
	perUser := variantMax
	if d.MaxPerUser != nil {
		perUser = *d.MaxPerUser
	}
	stockCap := variantMax
	if v.Stock > 0 {
		stockCap = v.Stock
	}

	return Limits{Min: lo, Max: max(lo, min(variantMax, perUser, stockCap))}
}

func ClampQuantity(d *Drop, v Variant, value int) int {
	l := VariantLimits(d, v)
	return min(max(value, l.Min), l.Max)
}

// ResolveShipping returns the shipping option id to use for v, or "" when the
// drop or the variant offers none.
func ResolveShipping(d *Drop, v Variant, candidateID string) string {
	if len(d.ShippingOptions) == 0 || len(v.ShippingOptionIDs) == 0 {
		return ""
	}
	if candidateID != "" && v.allowsShipping(candidateID) && d.hasShipping(candidateID) {
		return candidateID
	}
	if id := v.DefaultShippingOptionID; id != "" && v.allowsShipping(id) && d.hasShipping(id) {
		return id
	}
	for _, id := range v.ShippingOptionIDs {
		if d.hasShipping(id) {
			return id
		}
	}
	// the allow-list names nothing the drop offers
	return ""
}

// ResolveOrigin returns the origin id to use for v, or "" when v has none.
func ResolveOrigin(v Variant, candidateID string) string {
	if len(v.OriginOptions) == 0 {
		return ""
	}
	if candidateID != "" {
		if _, ok := v.Origin(candidateID); ok {
			return candidateID
		}
	}
	for _, o := range v.OriginOptions {
		if o.IsDefault {
			return o.ID
		}
	}
	return v.OriginOptions[0].ID
}

// Resolve runs variant, quantity, shipping and origin resolution in order so
// a change of variant repairs every dependent field.
func Resolve(d *Drop, sel Selection) ResolvedSelection {
	v := ResolveVariant(d, sel.VariantID)
	limits := VariantLimits(d, v)

	qty := min(max(sel.Quantity, limits.Min), limits.Max)

	out := ResolvedSelection{
		DropID:               d.ID,
		Variant:              v,
		Quantity:             qty,
		Limits:               limits,
		QuickQuantityOptions: quickOptions(v, limits),
		OutOfStock:           v.Stock <= 0,
	}
	if id := ResolveShipping(d, v, sel.ShippingOptionID); id != "" {
		so, _ := d.Shipping(id)
		out.ShippingOption = &so
	}
	if id := ResolveOrigin(v, sel.OriginOptionID); id != "" {
		o, _ := v.Origin(id)
		out.OriginOption = &o
	}
	return out
}

func quickOptions(v Variant, l Limits) []int {
	out := make([]int, 0, len(v.QuickQuantityOptions))
	for _, q := range v.QuickQuantityOptions {
		if q >= l.Min && q <= l.Max {
			out = append(out, q)
		}
	}
	return out
}

func (d *Drop) Variant(id string) (Variant, bool) {
	if id == "" {
		return Variant{}, false
	}
	for _, v := range d.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

func (d *Drop) Shipping(id string) (ShippingOption, bool) {
	for _, s := range d.ShippingOptions {
		if s.ID == id {
			return s, true
		}
	}
	return ShippingOption{}, false
}

func (d *Drop) hasShipping(id string) bool {
	_, ok := d.Shipping(id)
	return ok
}

func (v Variant) Origin(id string) (OriginOption, bool) {
	for _, o := range v.OriginOptions {
		if o.ID == id {
			return o, true
		}
	}
	return OriginOption{}, false
}

func (v Variant) allowsShipping(id string) bool {
	return slices.Contains(v.ShippingOptionIDs, id)
}
