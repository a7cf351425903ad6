package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rows []Row
	err  error
}

func (f *fakeStore) InsertOrder(_ context.Context, row Row) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

type fakeReceipts struct{ files map[string]string }

func (f *fakeReceipts) UploadReceipt(_ context.Context, key string, body []byte) error {
	f.files[key] = string(body)
	return nil
}

type fakeTexter struct {
	to, body string
	err      error
}

func (f *fakeTexter) SendSMS(_ context.Context, to, body string) (string, error) {
	f.to, f.body = to, body
	return "SM1", f.err
}

var (
	pizzaOrder = order.Snapshot{Items: []order.Item{
		{Name: "Pepperoni Pizza", Quantity: 2, UnitPrice: decimal.RequireFromString("19.00")},
		{Name: "Soda", Quantity: 1, UnitPrice: decimal.RequireFromString("2.50")},
	}}
	ana = order.Profile{Name: "Ana", Phone: "(555) 123-4567", HasProvidedDetails: true}
)

func fixedService(store OrderStore, receipts ReceiptStore, sms Texter) *Service {
	s := New(store, receipts, sms, "Saddie's Pizza")
	s.Now = func() time.Time { return time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC) }
	return s
}

func TestSubmit_StoresFilesAndTexts(t *testing.T) {
	store := &fakeStore{}
	receipts := &fakeReceipts{files: map[string]string{}}
	sms := &fakeTexter{}

	require.NoError(t, fixedService(store, receipts, sms).Submit(context.Background(), "sess-1", pizzaOrder, ana))

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, "sess-1", row.SessionID)
	assert.Equal(t, "Ana", row.CustomerName)
	assert.Equal(t, "40.50", row.Total.StringFixed(2))

	require.Len(t, receipts.files, 1)
	for key, body := range receipts.files {
		assert.Equal(t, "2026-03-01/"+row.ID+".txt", key)
		assert.Contains(t, body, "2 x Pepperoni Pizza  $38.00")
		assert.Contains(t, body, "Total: $40.50")
	}

	assert.Equal(t, "+15551234567", sms.to)
	assert.Equal(t, "Thanks Ana! Saddie's Pizza got your order: 2 Pepperoni Pizza, 1 Soda. Total $40.50.", sms.body)
}

func TestSubmit_StoreFailureIsReturned(t *testing.T) {
	sms := &fakeTexter{}
	err := fixedService(&fakeStore{err: errors.New("down")}, nil, sms).Submit(context.Background(), "s", pizzaOrder, ana)
	assert.ErrorContains(t, err, "down")
	assert.Empty(t, sms.to)
}

func TestSubmit_TextFailureIsNotFatal(t *testing.T) {
	sms := &fakeTexter{err: errors.New("bad number")}
	assert.NoError(t, fixedService(&fakeStore{}, nil, sms).Submit(context.Background(), "s", pizzaOrder, ana))
}

func TestSubmit_SkipsUntextablePhone(t *testing.T) {
	sms := &fakeTexter{}
	p := ana
	p.Phone = "12345"
	assert.NoError(t, fixedService(&fakeStore{}, nil, sms).Submit(context.Background(), "s", pizzaOrder, p))
	assert.Empty(t, sms.to)
}

func TestSubmit_EmptyOrder(t *testing.T) {
	assert.Error(t, fixedService(&fakeStore{}, nil, nil).Submit(context.Background(), "s", order.Snapshot{}, ana))
}

func TestE164(t *testing.T) {
	for in, want := range map[string]string{
		"555-123-4567":     "+15551234567",
		"1 (555) 123 4567": "+15551234567",
		"+1.555.123.4567":  "+15551234567",
	} {
		got, ok := E164(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "123", "25551234567", "555123456789"} {
		_, ok := E164(in)
		assert.False(t, ok, in)
	}
}
