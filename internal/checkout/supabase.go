package checkout

import (
	"bytes"
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseStore writes orders to a Postgres table and receipts to a storage bucket.
type SupabaseStore struct {
	client *supabase.Client
	table  string
	bucket string
}

func NewSupabaseStore(url, serviceRoleKey, table, bucket string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &SupabaseStore{client: client, table: table, bucket: bucket}, nil
}

func (s *SupabaseStore) InsertOrder(_ context.Context, row Row) error {
	if _, _, err := s.client.From(s.table).Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("insert into %s: %w", s.table, err)
	}
	return nil
}

// Receipts returns s as a ReceiptStore, or nil when no bucket is configured.
func (s *SupabaseStore) Receipts() ReceiptStore {
	if s.bucket == "" {
		return nil
	}
	return s
}

func (s *SupabaseStore) UploadReceipt(_ context.Context, key string, body []byte) error {
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("upload %s/%s: %w", s.bucket, key, err)
	}
	return nil
}
