package menu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Business describes opening hours and service options.
type Business struct {
	Name            string
	Hours           map[string]string
	PaymentMethods  []string
	DeliveryOptions []string
	Phone           string
	SupportPhone    string
}

// Info is the restaurant's static business information.
var Info = Business{
	Name: "Sadie's Pizzeria DTLA",
	Hours: map[string]string{
		"monday":    "11:30 AM - 9:30 PM",
		"tuesday":   "11:30 AM - 9:30 PM",
		"wednesday": "11:30 AM - 9:30 PM",
		"thursday":  "11:30 AM - 9:30 PM",
		"friday":    "11:30 AM - 9:30 PM",
		"saturday":  "12:30 PM - 9:30 PM",
		"sunday":    "Closed",
	},
	PaymentMethods:  []string{"all major credit and debit cards", "Apple Pay", "Google Pay"},
	DeliveryOptions: []string{"DoorDash", "Uber Eats", "Postmates"},
	Phone:           "(213) 892-8535",
	SupportPhone:    "+18449622954",
}

// Greeting is spoken when a session starts.
const Greeting = "Hi! I'm Saddie from Sadie's Pizzeria DTLA. Can you please tell me your name and phone number for pickup?"

type promptItem struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

// PersonaPrompt renders the system instruction for the assistant, embedding the
// catalog and the structured trailer contract every reply must end with.
func PersonaPrompt(c *Catalog) string {
	items := make([]promptItem, 0, len(c.items))
	for _, it := range c.items {
		items = append(items, promptItem{
			Name:        it.Name,
			Category:    it.Category,
			Price:       it.Price.InexactFloat64(),
			Description: it.Description,
		})
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(items)
	return fmt.Sprintf(personaTemplate, strings.TrimSpace(buf.String()))
}

const personaTemplate = `
You are Saddie, the friendly AI assistant for Sadie's Pizzeria DTLA.

BUSINESS INFORMATION:
- Hours: Monday-Friday 11:30 AM to 9:30 PM, Saturday 12:30 PM to 9:30 PM, Sunday CLOSED
- Payment: All major credit/debit cards, Apple Pay, Google Pay
- Delivery: DoorDash, Uber Eats, Postmates
- Pickup: Available - use [ORDER_BUTTONS] to show order call button

MENU CATEGORIES:
%s

RESPONSE GUIDELINES:
- Keep responses concise (3-6 sentences maximum)
- Always confirm selections with price
- For menu inquiries, offer to hear about specific categories
- For unavailable items, suggest alternatives from actual menu
- For ambiguous requests, ask for clarification

SPECIAL HANDLING:
- Nonsense input: "Sorry, I didn't catch that. Could you please repeat your order?"
- Non-English: "Sorry, I currently only support English. Would you like to order a [suggested item]?"
- Mispronounced items: "Sorry, I didn't quite get that. Did you mean the [closest menu item]?"
- Custom pizza requests: "We only offer our signature gourmet pizzas. Would you like to hear the options?"

BUTTON USAGE:
- For customer support/help, use [CONTACT_BUTTONS]
- For placing orders/pickup, use [ORDER_BUTTONS]
- Never display phone numbers as text - always use the button format

RECOMMENDATIONS:
- Popular items: Classic Pepperoni, Mushroom & Truffle

JSON OUTPUT FOR ORDER MANAGEMENT:
At the end of EVERY response, you MUST include a JSON block enclosed in triple backticks tagged 'json'.
It must be the LAST part of your response:
` + "```json" + `
{
  "action": "update_order",
  "currentOrderItems": [
    { "name": "Item Name", "quantity": 1, "price": 12.34 }
  ],
  "lastActionDetail": {
    "item": { "name": "Item Name", "quantity": 1, "price": 12.34 },
    "message": "Item successfully added."
  },
  "userInfo": {
    "name": "Customer Name",
    "phone": "Phone Number",
    "hasProvidedDetails": true
  },
  "conversationState": "ongoing"
}
` + "```" + `
"action" is one of update_order, add_item, remove_item, clear_order, no_change, collect_user_info.
"conversationState" is one of ongoing, collecting_info, concluded.

Be conversational and helpful FIRST, then provide the JSON block.
`
