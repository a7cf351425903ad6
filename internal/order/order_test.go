package order

import (
	"testing"

	"github.com/Rituearth/SADDIE-2.0/internal/menu"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(body string) string {
	return "Sounds good!\n```json\n" + body + "\n```"
}

func TestApplyReply_CatalogPriceWins(t *testing.T) {
	s := NewState()
	_, err := s.ApplyReply(reply(`{"action":"add_item","currentOrderItems":[{"name":"Classic Pepperoni","quantity":1,"price":5}]}`), menu.Default())
	require.NoError(t, err)

	require.Len(t, s.Order.Items, 1)
	it := s.Order.Items[0]
	assert.Equal(t, "Classic Pepperoni", it.Name)
	assert.Equal(t, 1, it.Quantity)
	assert.True(t, it.UnitPrice.Equal(decimal.RequireFromString("19.00")), it.UnitPrice.String())
}

func TestApplyReply_ClearOrderEmptiesSnapshot(t *testing.T) {
	s := NewState()
	s.Order = Snapshot{Items: []Item{{Name: "Lemonade", Quantity: 2, UnitPrice: decimal.NewFromInt(4)}}}

	_, err := s.ApplyReply(reply(`{"action":"clear_order"}`), menu.Default())
	require.NoError(t, err)
	assert.True(t, s.Order.Empty())
}

func TestApplyReply_ItemListReplacesWholesale(t *testing.T) {
	s := NewState()
	s.Order = Snapshot{Items: []Item{{Name: "Lemonade", Quantity: 2, UnitPrice: decimal.NewFromInt(4)}}}

	_, err := s.ApplyReply(reply(`{"action":"update_order","currentOrderItems":[{"name":"**Garlic Knots**","quantity":3}]}`), menu.Default())
	require.NoError(t, err)
	require.Len(t, s.Order.Items, 1)
	assert.Equal(t, "Garlic Knots", s.Order.Items[0].Name)
	assert.True(t, s.Order.Total().Equal(decimal.NewFromInt(24)))
}

func TestBuildSnapshot_Validation(t *testing.T) {
	items := []PayloadItem{
		{Name: "Hawaiian Special", Quantity: 2.0, Price: 15.5}, // unknown, positive price kept
		{Name: "Mystery Box", Quantity: 1.0, Price: 0.0},       // unknown, no usable price
		{Name: "Secret Sauce", Price: "free"},                  // non-numeric price
		{Name: 42.0, Quantity: 1.0, Price: 3.0},                // non-string name
		{Name: "  ", Price: 3.0},                               // blank name
		{Name: "soda", Quantity: 0.0},                          // bad quantity defaults to 1
		{Name: "Lemonade", Quantity: 2.9},                      // truncated to 2
	}
	snap := BuildSnapshot(items, menu.Default())

	require.Len(t, snap.Items, 3)
	assert.Equal(t, "Hawaiian Special", snap.Items[0].Name)
	assert.Equal(t, 2, snap.Items[0].Quantity)
	assert.True(t, snap.Items[0].UnitPrice.Equal(decimal.RequireFromString("15.5")))

	assert.Equal(t, "soda", snap.Items[1].Name)
	assert.Equal(t, 1, snap.Items[1].Quantity)
	assert.True(t, snap.Items[1].UnitPrice.Equal(decimal.NewFromInt(3)))

	assert.Equal(t, 2, snap.Items[2].Quantity)
}

func TestApplyReply_MalformedLeavesStateUntouched(t *testing.T) {
	s := NewState()
	before := Snapshot{Items: []Item{{Name: "Soda", Quantity: 1, UnitPrice: decimal.NewFromInt(3)}}}
	s.Order = before

	_, err := s.ApplyReply(reply(`{"action":"clear_order", "currentOrderItems": [`), menu.Default())
	assert.ErrorIs(t, err, ErrMalformedTrailer)
	assert.Equal(t, before, s.Order)
	assert.Equal(t, PhaseOngoing, s.Phase)
}

func TestApplyReply_NoTrailer(t *testing.T) {
	s := NewState()
	_, err := s.ApplyReply("Just chatting, no data here.", menu.Default())
	assert.ErrorIs(t, err, ErrNoTrailer)
}

func TestApplyReply_ProfileMergesAndPhaseUpdates(t *testing.T) {
	s := NewState()
	_, err := s.ApplyReply(reply(`{"action":"collect_user_info","userInfo":{"name":"Dana","hasProvidedDetails":false},"conversationState":"collecting_info"}`), menu.Default())
	require.NoError(t, err)
	assert.Equal(t, "Dana", s.Profile.Name)
	assert.Equal(t, PhaseCollectingInfo, s.Phase)

	_, err = s.ApplyReply(reply(`{"action":"no_change","userInfo":{"phone":"555-123-4567","hasProvidedDetails":true},"conversationState":"concluded"}`), menu.Default())
	require.NoError(t, err)
	assert.Equal(t, Profile{Name: "Dana", Phone: "555-123-4567", HasProvidedDetails: true}, s.Profile)
	assert.True(t, s.Concluded())

	// a later false never clears the flag
	_, err = s.ApplyReply(reply(`{"userInfo":{"name":"","hasProvidedDetails":false},"conversationState":"bogus"}`), menu.Default())
	require.NoError(t, err)
	assert.Equal(t, "Dana", s.Profile.Name)
	assert.True(t, s.Profile.HasProvidedDetails)
	assert.True(t, s.Concluded())

	s.BeginTurn()
	assert.Equal(t, PhaseOngoing, s.Phase)
}
