package agent

import (
	"context"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/order"
)

// Role labels a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior exchange line passed to the LLM as context.
type Message struct {
	Role Role
	Text string
}

// LLM streams a reply to text given the conversation so far.
type LLM interface {
	Stream(ctx context.Context, history []Message, text string) (Stream, error)
}

// Stream yields reply fragments in order. Recv returns io.EOF after the last one.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// OrderSink hands a completed order off for fulfilment.
type OrderSink interface {
	Submit(ctx context.Context, sessionID string, snap order.Snapshot, profile order.Profile) error
}

// Sender identifies who wrote a chat entry.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "saddie"
)

// ChatMessage is one entry of the visible transcript.
type ChatMessage struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	Sender Sender    `json:"sender"`
	Time   time.Time `json:"timestamp"`
}

// Phase is the orchestrator's coarse state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAwaiting  Phase = "awaiting_ai_response"
	PhaseStreaming Phase = "streaming_speech"
	PhaseConcluded Phase = "concluded"
)

// Status is the indicator state shown to the user.
type Status struct {
	Phase         Phase `json:"phase"`
	Listening     bool  `json:"listening"`
	Speaking      bool  `json:"speaking"`
	WakeListening bool  `json:"wakeListening"`
}

// Observer receives presentation updates. Methods are called from the session's loop
// goroutine and must not block.
type Observer interface {
	OnMessage(m ChatMessage)
	OnMessageAppend(id, text string)
	OnMessageReplace(id, text string)
	OnOrder(snap order.Snapshot, profile order.Profile)
	// OnError shows a banner; an empty message clears it.
	OnError(message string)
	OnStatus(st Status)
}

type nopObserver struct{}

func (nopObserver) OnMessage(ChatMessage)                 {}
func (nopObserver) OnMessageAppend(string, string)        {}
func (nopObserver) OnMessageReplace(string, string)       {}
func (nopObserver) OnOrder(order.Snapshot, order.Profile) {}
func (nopObserver) OnError(string)                        {}
func (nopObserver) OnStatus(Status)                       {}
