package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Action tags the assistant may set on a trailer.
const (
	ActionUpdateOrder     = "update_order"
	ActionAddItem         = "add_item"
	ActionRemoveItem      = "remove_item"
	ActionClearOrder      = "clear_order"
	ActionNoChange        = "no_change"
	ActionCollectUserInfo = "collect_user_info"
)

var (
	// ErrNoTrailer is returned when a reply carries no structured block.
	ErrNoTrailer = errors.New("order: no structured trailer")
	// ErrMalformedTrailer is returned when the block cannot be decoded.
	ErrMalformedTrailer = errors.New("order: malformed structured trailer")
)

var trailerBlock = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)\\n?\\s*```")

// PayloadItem is an item as the assistant wrote it. Fields are loosely typed so one bad
// item cannot fail the whole trailer.
type PayloadItem struct {
	Name     any `json:"name"`
	Quantity any `json:"quantity"`
	Price    any `json:"price"`
}

// ProfileDelta is the subset of profile fields a trailer supplies.
type ProfileDelta struct {
	Name               string `json:"name"`
	Phone              string `json:"phone"`
	HasProvidedDetails *bool  `json:"hasProvidedDetails"`
}

// Payload is the decoded structured trailer. Every field is optional.
type Payload struct {
	Action            string         `json:"action"`
	CurrentOrderItems *[]PayloadItem `json:"currentOrderItems"`
	LastActionDetail  string         `json:"lastActionDetail"`
	UserInfo          *ProfileDelta  `json:"userInfo"`
	ConversationState Phase          `json:"conversationState"`
}

// ParseTrailer extracts and decodes the structured block from a complete reply.
func ParseTrailer(reply string) (Payload, error) {
	m := trailerBlock.FindStringSubmatch(reply)
	if m == nil {
		return Payload{}, ErrNoTrailer
	}
	var p Payload
	if err := json.Unmarshal([]byte(m[1]), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedTrailer, err)
	}
	return p, nil
}

// ApplyReply parses reply and, on success, folds it into s. On any error s is untouched.
func (s *State) ApplyReply(reply string, catalog Catalog) (Payload, error) {
	p, err := ParseTrailer(reply)
	if err != nil {
		return Payload{}, err
	}
	s.Apply(p, catalog)
	return p, nil
}
