package rtc

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/Rituearth/SADDIE-2.0/internal/agent"
	"github.com/Rituearth/SADDIE-2.0/internal/order"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ControlLabel is the data channel the browser opens for commands and UI updates.
const ControlLabel = "control"

// Command is an inbound control message.
type Command struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Update is an outbound control message.
type Update struct {
	Type    string             `json:"type"`
	Message *agent.ChatMessage `json:"message,omitempty"`
	ID      string             `json:"id,omitempty"`
	Text    string             `json:"text,omitempty"`
	Order   *order.Snapshot    `json:"order,omitempty"`
	Total   *decimal.Decimal   `json:"total,omitempty"`
	Profile *order.Profile     `json:"profile,omitempty"`
	Error   *string            `json:"error,omitempty"`
	Status  *agent.Status      `json:"status,omitempty"`
	Level   *float64           `json:"level,omitempty"`
}

// controller is the subset of agent.Session driven by control commands.
type controller interface {
	SubmitText(text string)
	Stop()
	ToggleListening()
	StartListening()
	ClearError()
}

// parseCommand accepts JSON commands and the bare words older clients send.
func parseCommand(data []byte) (Command, bool) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err == nil && cmd.Type != "" {
		cmd.Type = strings.ToLower(cmd.Type)
		return cmd, true
	}
	switch strings.TrimSpace(strings.ToLower(string(data))) {
	case "stop", "stop-speaking", "cancel", "barge-in":
		return Command{Type: "stop"}, true
	case "listen":
		return Command{Type: "listen"}, true
	}
	return Command{}, false
}

func dispatch(c controller, cmd Command) bool {
	switch cmd.Type {
	case "text":
		c.SubmitText(cmd.Text)
	case "stop":
		c.Stop()
	case "listen":
		c.StartListening()
	case "toggle_listen":
		c.ToggleListening()
	case "clear_error":
		c.ClearError()
	default:
		return false
	}
	return true
}

// controlChannel serializes updates for the browser and implements agent.Observer.
// Sends are queued so the session loop never waits on the network.
type controlChannel struct {
	out  chan []byte
	log  zerolog.Logger
	once sync.Once
	done chan struct{}
}

func newControlChannel(logger zerolog.Logger) *controlChannel {
	return &controlChannel{out: make(chan []byte, 256), log: logger, done: make(chan struct{})}
}

// pump delivers queued updates through send until closed.
func (c *controlChannel) pump(send func(string) error) {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.out:
			if err := send(string(b)); err != nil {
				c.log.Debug().Err(err).Msg("control: send")
			}
		}
	}
}

func (c *controlChannel) close() { c.once.Do(func() { close(c.done) }) }

func (c *controlChannel) publish(u Update) {
	b, err := json.Marshal(u)
	if err != nil {
		c.log.Error().Err(err).Str("type", u.Type).Msg("control: encode update")
		return
	}
	select {
	case c.out <- b:
	default:
		c.log.Warn().Str("type", u.Type).Msg("control: backlog, dropping update")
	}
}

func (c *controlChannel) OnMessage(m agent.ChatMessage) {
	c.publish(Update{Type: "message", Message: &m})
}

func (c *controlChannel) OnMessageAppend(id, text string) {
	c.publish(Update{Type: "message_append", ID: id, Text: text})
}

func (c *controlChannel) OnMessageReplace(id, text string) {
	c.publish(Update{Type: "message_replace", ID: id, Text: text})
}

func (c *controlChannel) OnOrder(snap order.Snapshot, profile order.Profile) {
	total := snap.Total()
	c.publish(Update{Type: "order", Order: &snap, Total: &total, Profile: &profile})
}

func (c *controlChannel) OnError(message string) {
	c.publish(Update{Type: "error", Error: &message})
}

func (c *controlChannel) OnStatus(st agent.Status) {
	c.publish(Update{Type: "status", Status: &st})
}

func (c *controlChannel) OnActivity(level float64) {
	c.publish(Update{Type: "activity", Level: &level})
}
