package drops

import "time"

// Drop is a limited-stock product release. Prices are in cents.
type Drop struct {
	ID               string           `json:"id" yaml:"id" validate:"required"`
	Name             string           `json:"name" yaml:"name" validate:"required"`
	Currency         string           `json:"currency" yaml:"currency" validate:"required,len=3"`
	MaxPerUser       *int             `json:"max_per_user,omitempty" yaml:"max_per_user,omitempty" validate:"omitempty,gte=1"`
	Variants         []Variant        `json:"variants" yaml:"variants" validate:"required,min=1,dive"`
	DefaultVariantID string           `json:"default_variant_id" yaml:"default_variant_id" validate:"required"`
	ShippingOptions  []ShippingOption `json:"shipping_options" yaml:"shipping_options" validate:"omitempty,dive"`
	Progress         float64          `json:"progress" yaml:"progress" validate:"gte=0,lte=1"`
	InterestCount    int              `json:"interest_count" yaml:"interest_count" validate:"gte=0"`
}

type Variant struct {
	ID                      string         `json:"id" yaml:"id" validate:"required"`
	Label                   string         `json:"label" yaml:"label"`
	BasePriceCents          int            `json:"base_price_cents" yaml:"base_price_cents" validate:"gte=0"`
	Stock                   int            `json:"stock" yaml:"stock" validate:"gte=0"`
	MinQuantity             int            `json:"min_quantity" yaml:"min_quantity" validate:"gte=1"`
	MaxQuantity             *int           `json:"max_quantity,omitempty" yaml:"max_quantity,omitempty" validate:"omitempty,gte=1"`
	InviteRequired          bool           `json:"invite_required,omitempty" yaml:"invite_required,omitempty"`
	ShippingOptionIDs       []string       `json:"shipping_option_ids" yaml:"shipping_option_ids"`
	DefaultShippingOptionID string         `json:"default_shipping_option_id,omitempty" yaml:"default_shipping_option_id,omitempty"`
	OriginOptions           []OriginOption `json:"origin_options,omitempty" yaml:"origin_options,omitempty" validate:"omitempty,dive"`
	QuickQuantityOptions    []int          `json:"quick_quantity_options,omitempty" yaml:"quick_quantity_options,omitempty"`
}

type ShippingOption struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	Label       string `json:"label" yaml:"label"`
	PriceCents  int    `json:"price_cents" yaml:"price_cents" validate:"gte=0"`
	Carrier     string `json:"carrier,omitempty" yaml:"carrier,omitempty"`
	MinDays     int    `json:"min_days,omitempty" yaml:"min_days,omitempty"`
	MaxDays     int    `json:"max_days,omitempty" yaml:"max_days,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// OriginOption is a fulfillment region (DE, EU, CN...) scoped to a variant.
type OriginOption struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	Label     string `json:"label" yaml:"label"`
	IsDefault bool   `json:"is_default,omitempty" yaml:"is_default,omitempty"`
}

// Selection is the stored per-drop choice. Readers always go through
// Resolve, so a stored Selection never reaches consumers unrepaired.
type Selection struct {
	VariantID        string `json:"variant_id"`
	Quantity         int    `json:"quantity"`
	ShippingOptionID string `json:"shipping_option_id,omitempty"`
	OriginOptionID   string `json:"origin_option_id,omitempty"`
}

type Limits struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ResolvedSelection is the fully populated view handed to consumers.
type ResolvedSelection struct {
	DropID               string          `json:"drop_id"`
	Variant              Variant         `json:"variant"`
	Quantity             int             `json:"quantity"`
	Limits               Limits          `json:"limits"`
	ShippingOption       *ShippingOption `json:"shipping_option,omitempty"`
	OriginOption         *OriginOption   `json:"origin_option,omitempty"`
	QuickQuantityOptions []int           `json:"quick_quantity_options"`
	OutOfStock           bool            `json:"out_of_stock"`
}

// Selection returns the id tuple of a resolved selection.
func (r ResolvedSelection) Selection() Selection {
	s := Selection{VariantID: r.Variant.ID, Quantity: r.Quantity}
	if r.ShippingOption != nil {
		s.ShippingOptionID = r.ShippingOption.ID
	}
	if r.OriginOption != nil {
		s.OriginOptionID = r.OriginOption.ID
	}
	return s
}

// Reservation is an immutable priced snapshot of a selection.
type Reservation struct {
	ID             string    `json:"id"`
	DropID         string    `json:"drop_id"`
	VariantID      string    `json:"variant_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
	ShippingCents  int       `json:"shipping_cents"`
	TotalCents     int       `json:"total_cents"`
	Currency       string    `json:"currency"`
	ShippingID     string    `json:"shipping_option_id,omitempty"`
	OriginOptionID string    `json:"origin_option_id,omitempty"`
	InviteRequired bool      `json:"invite_required"`
	CreatedAt      time.Time `json:"created_at"`
}

// InterestEntry is one sample in a drop's recent-interest list.
type InterestEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Handle    string    `json:"handle"`
	Timestamp time.Time `json:"timestamp"`
}

// Interest is the aggregate interest view for a drop.
type Interest struct {
	DropID     string          `json:"drop_id"`
	Count      int             `json:"count"`
	Interested bool            `json:"interested"`
	Recent     []InterestEntry `json:"recent"`
}

type DropStatus string

const (
	DropStatusLive   DropStatus = "live"
	DropStatusLocked DropStatus = "locked"
)

type ActivityEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Progress  float64   `json:"progress"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressState tracks live progress of a drop as reported by upstream.
type ProgressState struct {
	DropID   string          `json:"drop_id"`
	Progress float64         `json:"progress"`
	Status   DropStatus      `json:"status"`
	Activity []ActivityEntry `json:"activity"`
}

// User identifies who issues commands against an engine.
type User struct {
	ID     string
	Handle string
}
