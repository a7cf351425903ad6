// Package checkout hands a concluded order off: it stores the order, files a receipt and
// texts the customer a confirmation.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/order"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Row is one stored order.
type Row struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	CustomerName string          `json:"customer_name"`
	Phone        string          `json:"phone"`
	Items        []order.Item    `json:"items"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
}

type OrderStore interface {
	InsertOrder(ctx context.Context, row Row) error
}

type ReceiptStore interface {
	UploadReceipt(ctx context.Context, key string, body []byte) error
}

type Texter interface {
	SendSMS(ctx context.Context, to, body string) (sid string, err error)
}

// Service implements agent.OrderSink. Receipts and texts are optional; only the order
// insert is required to succeed.
type Service struct {
	Store    OrderStore
	Receipts ReceiptStore
	SMS      Texter
	Business string
	Now      func() time.Time
}

func New(store OrderStore, receipts ReceiptStore, sms Texter, business string) *Service {
	return &Service{Store: store, Receipts: receipts, SMS: sms, Business: business, Now: time.Now}
}

func (s *Service) Submit(ctx context.Context, sessionID string, snap order.Snapshot, profile order.Profile) error {
	if snap.Empty() {
		return errors.New("checkout: empty order")
	}
	row := Row{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		CustomerName: profile.Name,
		Phone:        profile.Phone,
		Items:        snap.Items,
		Total:        snap.Total(),
		CreatedAt:    s.Now().UTC(),
	}
	if err := s.Store.InsertOrder(ctx, row); err != nil {
		return fmt.Errorf("checkout: store order: %w", err)
	}
	logger := log.With().Str("order_id", row.ID).Str("session_id", sessionID).Logger()
	logger.Info().Int("items", len(row.Items)).Str("total", row.Total.StringFixed(2)).Msg("order stored")

	if s.Receipts != nil {
		key := fmt.Sprintf("%s/%s.txt", row.CreatedAt.Format("2006-01-02"), row.ID)
		if err := s.Receipts.UploadReceipt(ctx, key, []byte(Receipt(s.Business, row))); err != nil {
			logger.Warn().Err(err).Msg("receipt upload failed")
		}
	}

	if s.SMS != nil {
		to, ok := E164(profile.Phone)
		if !ok {
			logger.Warn().Msg("no textable phone number; skipping confirmation")
			return nil
		}
		sid, err := s.SMS.SendSMS(ctx, to, Confirmation(s.Business, row))
		if err != nil {
			logger.Warn().Err(err).Msg("confirmation text failed")
			return nil
		}
		logger.Info().Str("message_sid", sid).Msg("confirmation texted")
	}
	return nil
}

// Receipt renders a plain-text receipt.
func Receipt(business string, row Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nOrder %s\n%s\n\n", business, row.ID, row.CreatedAt.Format(time.RFC1123))
	if row.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", row.CustomerName)
	}
	if row.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", row.Phone)
	}
	b.WriteString("\n")
	for _, it := range row.Items {
		fmt.Fprintf(&b, "%d x %s  $%s\n", it.Quantity, it.Name, it.LineTotal().StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: $%s\n", row.Total.StringFixed(2))
	return b.String()
}

// Confirmation is the text message body.
func Confirmation(business string, row Row) string {
	parts := make([]string, 0, len(row.Items))
	for _, it := range row.Items {
		parts = append(parts, fmt.Sprintf("%d %s", it.Quantity, it.Name))
	}
	greeting := "Thanks"
	if row.CustomerName != "" {
		greeting += " " + row.CustomerName
	}
	return fmt.Sprintf("%s! %s got your order: %s. Total $%s.", greeting, business, strings.Join(parts, ", "), row.Total.StringFixed(2))
}

// E164 normalizes a North American number given in any common format.
func E164(phone string) (string, bool) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "+1" + d, true
	case len(d) == 11 && d[0] == '1':
		return "+" + d, true
	}
	return "", false
}
