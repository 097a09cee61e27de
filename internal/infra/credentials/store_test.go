package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	token string
	err   error
	exec  struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestAPIKey(t *testing.T) {
	store := NewStore(&stubExecutor{token: " sk-test "})
	key, err := store.APIKey(context.Background(), ProviderOpenAI)
	if err != nil {
		t.Fatalf("APIKey error: %v", err)
	}
	if key != "sk-test" {
		t.Fatalf("expected sk-test, got %q", key)
	}
}

func TestAPIKey_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.APIKey(context.Background(), ProviderAzureOpenAI)
	if err != nil {
		t.Fatalf("APIKey error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestAPIKeyUnknownProvider(t *testing.T) {
	store := NewStore(&stubExecutor{token: "x"})
	if _, err := store.APIKey(context.Background(), "gemini"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestSetAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.SetAPIKey(context.Background(), ProviderAzureOpenAI, "secret", map[string]any{"endpoint": "https://x"}); err != nil {
		t.Fatalf("SetAPIKey error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	if v, ok := exec.exec.args[2].([]byte); !ok || string(v) != `{"endpoint":"https://x"}` {
		t.Fatalf("unexpected properties %T %v", exec.exec.args[2], exec.exec.args[2])
	}
}

func TestSetAPIKeyEmpty(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.SetAPIKey(context.Background(), ProviderOpenAI, " ", nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestResolvePrefersEnvironment(t *testing.T) {
	store := NewStore(&stubExecutor{token: "stored"})
	key, err := store.Resolve(context.Background(), ProviderOpenAI, " env-key ")
	if err != nil || key != "env-key" {
		t.Fatalf("Resolve = %q, %v", key, err)
	}
	key, err = store.Resolve(context.Background(), ProviderOpenAI, "")
	if err != nil || key != "stored" {
		t.Fatalf("Resolve = %q, %v", key, err)
	}
	var none *Store
	key, err = none.Resolve(context.Background(), ProviderOpenAI, "")
	if err != nil || key != "" {
		t.Fatalf("nil store Resolve = %q, %v", key, err)
	}
}
