package drops

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateDrop checks struct-level constraints with validator tags, then the
// cross-field ones tags cannot express. Errors wrap ErrInvalidDrop.
func ValidateDrop(d *Drop) error {
	if d == nil {
		return fmt.Errorf("%w: nil drop", ErrInvalidDrop)
	}
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDrop, d.ID, err)
	}
	if _, ok := d.Variant(d.DefaultVariantID); !ok {
		return fmt.Errorf("%w: %s: default variant %q is not a variant", ErrInvalidDrop, d.ID, d.DefaultVariantID)
	}

	seen := make(map[string]bool, len(d.Variants))
	for _, v := range d.Variants {
		if seen[v.ID] {
			return fmt.Errorf("%w: %s: duplicate variant %q", ErrInvalidDrop, d.ID, v.ID)
		}
		seen[v.ID] = true

		for _, id := range v.ShippingOptionIDs {
			if !d.hasShipping(id) {
				return fmt.Errorf("%w: %s: variant %q allows unknown shipping option %q", ErrInvalidDrop, d.ID, v.ID, id)
			}
		}
		if v.DefaultShippingOptionID != "" && !v.allowsShipping(v.DefaultShippingOptionID) {
			return fmt.Errorf("%w: %s: variant %q default shipping %q not allowed", ErrInvalidDrop, d.ID, v.ID, v.DefaultShippingOptionID)
		}
		if v.MaxQuantity != nil && *v.MaxQuantity < v.MinQuantity {
			return fmt.Errorf("%w: %s: variant %q max quantity below min", ErrInvalidDrop, d.ID, v.ID)
		}
	}
	return nil
}
