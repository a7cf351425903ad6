package main

import (
	"bytes"
	"testing"

	"github.com/Rituearth/SADDIE-2.0/internal/config"
	"github.com/Rituearth/SADDIE-2.0/internal/listen"
	"github.com/Rituearth/SADDIE-2.0/internal/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleObserver_PrintsOrderChangesOnce(t *testing.T) {
	var out bytes.Buffer
	o := &consoleObserver{out: &out}
	snap := order.Snapshot{Items: []order.Item{{Name: "Soda", Quantity: 2, UnitPrice: decimal.RequireFromString("2.50")}}}
	profile := order.Profile{Name: "Ana", Phone: "555-123-4567"}

	o.OnOrder(snap, profile)
	o.OnOrder(snap, profile)
	o.OnError("")
	o.OnError("Network error")

	got := out.String()
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("[order]")))
	assert.Contains(t, got, "for Ana 555-123-4567")
	assert.Contains(t, got, "2 x Soda  $5.00")
	assert.Contains(t, got, "total $5.00")
	assert.Contains(t, got, "! Network error\n")
}

func TestTypedOnly_IsUnsupported(t *testing.T) {
	_, err := typedOnly{}.Open(listen.Options{}, nil)
	assert.ErrorIs(t, err, listen.ErrUnsupported)
}

func TestSessionConfig(t *testing.T) {
	cfg := config.Config{Voice: config.Voice{WakeWords: []string{" Hey Saddie "}}}
	sc := sessionConfig(cfg)
	require.NotNil(t, sc.Catalog)
	assert.NotEmpty(t, sc.Greeting)
	assert.Equal(t, []string{"hey saddie"}, sc.Listen.WakeWords)
}

func TestOrderSink_DisabledWithoutSupabase(t *testing.T) {
	sink, err := orderSink(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, sink)
}
