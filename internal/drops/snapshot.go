package drops

import (
	"context"
	"encoding/json"
	"fmt"
)

// Snapshot is the persisted part of an engine's state. Field names follow
// the blob format shared with the web client. Interests mirror the ledger at
// snapshot time; the ledger stays authoritative.
type Snapshot struct {
	Interests          map[string]bool   `json:"interests"`
	VariantSelections  map[string]string `json:"variantSelections"`
	QuantitySelections map[string]int    `json:"quantitySelections"`
	ShippingSelections map[string]string `json:"shippingSelections"`
	OriginSelections   map[string]string `json:"originSelections"`
	ReservationHistory []Reservation     `json:"reservationHistory"`
	LastReservationID  string            `json:"lastReservationId,omitempty"`
	OpenDrop           string            `json:"openDrop,omitempty"`
}

func NewSnapshot() Snapshot {
	return Snapshot{
		Interests:          map[string]bool{},
		VariantSelections:  map[string]string{},
		QuantitySelections: map[string]int{},
		ShippingSelections: map[string]string{},
		OriginSelections:   map[string]string{},
		ReservationHistory: []Reservation{},
	}
}

func (s Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

func UnmarshalSnapshot(b []byte) (Snapshot, error) {
	s := NewSnapshot()
	if err := json.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	s.fill()
	return s, nil
}

// fill replaces nil maps left by explicit JSON nulls.
func (s *Snapshot) fill() {
	e := NewSnapshot()
	if s.Interests == nil {
		s.Interests = e.Interests
	}
	if s.VariantSelections == nil {
		s.VariantSelections = e.VariantSelections
	}
	if s.QuantitySelections == nil {
		s.QuantitySelections = e.QuantitySelections
	}
	if s.ShippingSelections == nil {
		s.ShippingSelections = e.ShippingSelections
	}
	if s.OriginSelections == nil {
		s.OriginSelections = e.OriginSelections
	}
	if s.ReservationHistory == nil {
		s.ReservationHistory = e.ReservationHistory
	}
}

// Snapshot captures the engine's persistent state. Interests are read from
// the ledger.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	interested, err := e.ledger.UserInterests(ctx, e.user.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot interests: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := NewSnapshot()
	for _, id := range interested {
		s.Interests[id] = true
	}
	for id, sel := range e.selections {
		s.VariantSelections[id] = sel.VariantID
		s.QuantitySelections[id] = sel.Quantity
		if sel.ShippingOptionID != "" {
			s.ShippingSelections[id] = sel.ShippingOptionID
		}
		if sel.OriginOptionID != "" {
			s.OriginSelections[id] = sel.OriginOptionID
		}
	}
	s.ReservationHistory = append(s.ReservationHistory, e.history...)
	if e.last != nil {
		s.LastReservationID = e.last.ID
	}
	s.OpenDrop = e.openDrop
	return s, nil
}

// Restore replaces the engine's persistent state with s. Stored selections
// are re-resolved against the catalog on the next read. Interests are left
// to the ledger. A last reservation that fell out of the history is dropped.
func (e *Engine) Restore(s Snapshot) {
	s.fill()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.selections = make(map[string]Selection)
	sel := func(id string) Selection { return e.selections[id] }
	for id, v := range s.VariantSelections {
		x := sel(id)
		x.VariantID = v
		e.selections[id] = x
	}
	for id, q := range s.QuantitySelections {
		x := sel(id)
		x.Quantity = q
		e.selections[id] = x
	}
	for id, sh := range s.ShippingSelections {
		x := sel(id)
		x.ShippingOptionID = sh
		e.selections[id] = x
	}
	for id, o := range s.OriginSelections {
		x := sel(id)
		x.OriginOptionID = o
		e.selections[id] = x
	}

	history := s.ReservationHistory
	if len(history) > e.historyCap {
		history = history[:e.historyCap]
	}
	e.history = append([]Reservation{}, history...)
	e.last = nil
	for _, r := range e.history {
		if s.LastReservationID != "" && r.ID == s.LastReservationID {
			last := r
			e.last = &last
			break
		}
	}
	e.openDrop = s.OpenDrop
}
