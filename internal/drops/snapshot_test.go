package drops_test

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-realtime-drops/internal/drops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	_, err := f.engine.SetVariant(ctx, "D2", "V2")
	require.NoError(t, err)
	_, err = f.engine.SetQuantity(ctx, "D1", 3)
	require.NoError(t, err)
	_, err = f.engine.SetOrigin(ctx, "D1", "EU")
	require.NoError(t, err)
	_, err = f.engine.ToggleInterest(ctx, "D3")
	require.NoError(t, err)
	res, err := f.engine.StartReservation(ctx, "D1")
	require.NoError(t, err)
	require.NoError(t, f.engine.SelectDrop(ctx, "D2"))

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "V2", snap.VariantSelections["D2"])
	assert.Equal(t, "express", snap.ShippingSelections["D2"])
	assert.Equal(t, 3, snap.QuantitySelections["D1"])
	assert.Equal(t, "EU", snap.OriginSelections["D1"])
	assert.True(t, snap.Interests["D3"])
	assert.Equal(t, res.ID, snap.LastReservationID)
	assert.Equal(t, "D2", snap.OpenDrop)

	b, err := snap.Marshal()
	require.NoError(t, err)
	decoded, err := drops.UnmarshalSnapshot(b)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)

	restored := f.sibling("u1")
	restored.Restore(decoded)
	again, err := restored.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, again)

	last, ok := restored.LastReservation()
	require.True(t, ok)
	assert.Equal(t, res, last)
	assert.Equal(t, "D2", restored.OpenDrop())

	before, err := f.engine.Selection(ctx, "D1")
	require.NoError(t, err)
	after, err := restored.Selection(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSnapshot_BlobKeys(t *testing.T) {
	b, err := drops.NewSnapshot().Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"interests": {},
		"variantSelections": {},
		"quantitySelections": {},
		"shippingSelections": {},
		"originSelections": {},
		"reservationHistory": []
	}`, string(b))
}

func TestUnmarshalSnapshot_NullsAndGarbage(t *testing.T) {
	s, err := drops.UnmarshalSnapshot([]byte(`{"interests": null, "reservationHistory": null}`))
	require.NoError(t, err)
	assert.NotNil(t, s.Interests)
	assert.NotNil(t, s.ReservationHistory)

	_, err = drops.UnmarshalSnapshot([]byte(`not json`))
	assert.Error(t, err)
}

func TestRestore_RepairsStaleSelections(t *testing.T) {
	f := newEngine(t)
	s := drops.NewSnapshot()
	s.VariantSelections["D1"] = "deleted-variant"
	s.QuantitySelections["D1"] = 40
	s.ShippingSelections["D1"] = "teleport"
	f.engine.Restore(s)

	r, err := f.engine.Selection(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, "V1", r.Variant.ID)
	assert.Equal(t, 3, r.Quantity)
	assert.Equal(t, "standard", r.ShippingOption.ID)
}

func TestSnapshot_InterestsComeFromLedger(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	_, err := f.engine.ToggleInterest(ctx, "D1")
	require.NoError(t, err)

	// a second engine for the same user toggles D2 through the shared ledger
	other := f.sibling("u1")
	_, err = other.ToggleInterest(ctx, "D2")
	require.NoError(t, err)

	snap, err := f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"D1": true, "D2": true}, snap.Interests)

	// restoring a blob with stale interests leaves the ledger alone
	stale := drops.NewSnapshot()
	stale.Interests["D3"] = true
	f.engine.Restore(stale)
	snap, err = f.engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"D1": true, "D2": true}, snap.Interests)
}

func TestRestore_LastReservationMustBeInHistory(t *testing.T) {
	f := newEngine(t)
	s := drops.NewSnapshot()
	s.LastReservationID = "gone"
	s.OpenDrop = "D1"
	f.engine.Restore(s)

	_, ok := f.engine.LastReservation()
	assert.False(t, ok)
	assert.Equal(t, "D1", f.engine.OpenDrop())
}
