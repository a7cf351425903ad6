package rtc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/agent"
	"github.com/Rituearth/SADDIE-2.0/internal/order"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingController struct{ calls []string }

func (r *recordingController) SubmitText(text string) { r.calls = append(r.calls, "text:"+text) }
func (r *recordingController) Stop()                  { r.calls = append(r.calls, "stop") }
func (r *recordingController) ToggleListening()       { r.calls = append(r.calls, "toggle") }
func (r *recordingController) StartListening()        { r.calls = append(r.calls, "listen") }
func (r *recordingController) ClearError()            { r.calls = append(r.calls, "clear") }

func TestParseAndDispatch(t *testing.T) {
	rc := &recordingController{}
	inputs := []string{
		`{"type":"text","text":"two sodas"}`,
		`{"type":"STOP"}`,
		`barge-in`,
		`{"type":"toggle_listen"}`,
		`listen`,
		`{"type":"clear_error"}`,
	}
	for _, in := range inputs {
		cmd, ok := parseCommand([]byte(in))
		require.True(t, ok, in)
		require.True(t, dispatch(rc, cmd), in)
	}
	assert.Equal(t, []string{"text:two sodas", "stop", "stop", "toggle", "listen", "clear"}, rc.calls)

	_, ok := parseCommand([]byte("dance"))
	assert.False(t, ok)
	assert.False(t, dispatch(rc, Command{Type: "dance"}))
}

func TestControlChannel_PublishesUpdates(t *testing.T) {
	c := newControlChannel(zerolog.Nop())
	sent := make(chan string, 8)
	go c.pump(func(s string) error {
		sent <- s
		return nil
	})
	defer c.close()

	c.OnOrder(order.Snapshot{Items: []order.Item{{Name: "Soda", Quantity: 2, UnitPrice: decimal.RequireFromString("1.50")}}}, order.Profile{Name: "Ana"})
	c.OnError("")
	c.OnStatus(agent.Status{Phase: agent.PhaseIdle, Listening: true})

	next := func() map[string]any {
		select {
		case s := <-sent:
			var m map[string]any
			require.NoError(t, json.Unmarshal([]byte(s), &m))
			return m
		case <-time.After(time.Second):
			t.Fatal("no update sent")
			return nil
		}
	}

	ord := next()
	assert.Equal(t, "order", ord["type"])
	assert.Equal(t, "3", ord["total"])
	assert.Equal(t, "Ana", ord["profile"].(map[string]any)["name"])

	banner := next()
	assert.Equal(t, "error", banner["type"])
	assert.Equal(t, "", banner["error"])

	st := next()
	assert.Equal(t, true, st["status"].(map[string]any)["listening"])
}

func TestParseICEServers(t *testing.T) {
	assert.Equal(t, DefaultICEServers(), ParseICEServers(""))
	assert.Equal(t, DefaultICEServers(), ParseICEServers("not json"))
	got := ParseICEServers(`[{"urls":["turn:turn.example.com:3478"],"username":"u","credential":"p"}]`)
	require.Len(t, got, 1)
	assert.Equal(t, "turn:turn.example.com:3478", got[0].URLs[0])
}

func TestHandleOffer_RejectsInvalid(t *testing.T) {
	h := NewHandler(Deps{})
	_, err := h.HandleOffer(context.Background(), SessionDescription{Type: "answer", SDP: "x"})
	assert.ErrorIs(t, err, ErrInvalidOffer)
	assert.Zero(t, h.ActiveCalls())
}
