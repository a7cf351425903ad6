package agent

import (
	"context"
	"strings"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/chunker"
	"github.com/google/uuid"
)

// interruptedMarker is appended to the history copy of a reply cut short by the user.
const interruptedMarker = "[INTERRUPTED BY USER]"

// Turn is one user input and the assistant's reply. It is owned by the session loop.
type Turn struct {
	ID        string
	Input     string
	MessageID string

	started   time.Time
	reply     strings.Builder // raw streamed text, trailer included
	displayed strings.Builder // what the user has seen so far
	chunker   *chunker.Chunker
	cancel    context.CancelFunc

	gotFragment        bool
	interrupted        bool
	canned             bool
	relistenSuppressed bool
	streamDone         bool
	finalized          bool
}

func newTurn(input, messageID string) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		Input:     input,
		MessageID: messageID,
		started:   time.Now(),
		chunker:   chunker.New(),
	}
}

// newCannedTurn is a turn whose reply is a fixed line rather than a stream.
func newCannedTurn(messageID string, relistenSuppressed bool) *Turn {
	t := newTurn("", messageID)
	t.canned = true
	t.streamDone = true
	t.relistenSuppressed = relistenSuppressed
	return t
}

// Reply is the raw accumulated reply text.
func (t *Turn) Reply() string { return t.reply.String() }

// spokenHistory is the assistant line recorded for an interrupted reply.
func (t *Turn) spokenHistory() string {
	shown := strings.TrimSpace(t.displayed.String())
	if shown == "" {
		return interruptedMarker
	}
	return shown + " " + interruptedMarker
}

func (t *Turn) stop() {
	if t.cancel != nil {
		t.cancel()
	}
}
