// Package order reconciles the running order and customer profile from the structured
// trailer the assistant appends to each reply.
package order

import (
	"strings"

	"github.com/Rituearth/SADDIE-2.0/internal/menu"
	"github.com/shopspring/decimal"
)

// Catalog resolves item names to authoritative menu entries.
type Catalog interface {
	Lookup(name string) (menu.Item, bool)
}

// Item is one line of the order.
type Item struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
}

// LineTotal is quantity times unit price.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Snapshot is the authoritative order. It is always replaced, never edited in place.
type Snapshot struct {
	Items []Item `json:"items"`
}

// Empty reports whether the order has no items.
func (s Snapshot) Empty() bool { return len(s.Items) == 0 }

// Total sums all line totals.
func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Profile accumulates what the customer has told us about themselves.
type Profile struct {
	Name               string `json:"name,omitempty"`
	Phone              string `json:"phone,omitempty"`
	HasProvidedDetails bool   `json:"hasProvidedDetails"`
}

// Merge overlays non-empty fields of delta onto p. Details-provided never reverts.
func (p Profile) Merge(delta ProfileDelta) Profile {
	if v := strings.TrimSpace(delta.Name); v != "" {
		p.Name = v
	}
	if v := strings.TrimSpace(delta.Phone); v != "" {
		p.Phone = v
	}
	if delta.HasProvidedDetails != nil && *delta.HasProvidedDetails {
		p.HasProvidedDetails = true
	}
	return p
}

// Phase is where the conversation stands.
type Phase string

const (
	PhaseOngoing        Phase = "ongoing"
	PhaseCollectingInfo Phase = "collecting_info"
	PhaseConcluded      Phase = "concluded"
)

// State is the session's order, profile and conversation phase.
type State struct {
	Order   Snapshot
	Profile Profile
	Phase   Phase
}

// NewState returns an empty, ongoing state.
func NewState() *State { return &State{Phase: PhaseOngoing} }

// BeginTurn clears the per-turn conclusion so a new exchange may reopen the conversation.
func (s *State) BeginTurn() { s.Phase = PhaseOngoing }

// Concluded reports whether the assistant closed the conversation.
func (s *State) Concluded() bool { return s.Phase == PhaseConcluded }

// Apply folds a decoded trailer into the state. It never fails; all validation happens
// while building the replacement snapshot.
func (s *State) Apply(p Payload, catalog Catalog) {
	switch {
	case p.CurrentOrderItems != nil:
		s.Order = BuildSnapshot(*p.CurrentOrderItems, catalog)
	case p.Action == ActionClearOrder:
		s.Order = Snapshot{}
	}
	if p.UserInfo != nil {
		s.Profile = s.Profile.Merge(*p.UserInfo)
	}
	switch p.ConversationState {
	case PhaseOngoing, PhaseCollectingInfo, PhaseConcluded:
		s.Phase = p.ConversationState
	}
}

// BuildSnapshot validates payload items. A catalog match always sets the price; an
// unknown item keeps the assistant's price only when it is positive. Items that end up
// without a positive price are dropped.
func BuildSnapshot(items []PayloadItem, catalog Catalog) Snapshot {
	out := make([]Item, 0, len(items))
	for _, pi := range items {
		name, ok := pi.Name.(string)
		if !ok {
			continue
		}
		name = strings.TrimSpace(strings.ReplaceAll(name, "*", ""))
		if name == "" {
			continue
		}
		price := decimal.Zero
		if m, found := catalog.Lookup(name); found {
			price = m.Price
		} else if v, isNum := pi.Price.(float64); isNum && v > 0 {
			price = decimal.NewFromFloat(v)
		}
		if !price.IsPositive() {
			continue
		}
		out = append(out, Item{Name: name, Quantity: quantity(pi.Quantity), UnitPrice: price})
	}
	return Snapshot{Items: out}
}

func quantity(v any) int {
	f, ok := v.(float64)
	if !ok || f < 1 {
		return 1
	}
	return int(f)
}
