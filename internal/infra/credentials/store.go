// Package credentials reads language-model API keys stored in the integration_tokens table.
// Keys from the environment take precedence; the table is the fallback for deployments that
// rotate keys without restarting.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"posterd/internal/infra"
	"posterd/internal/sqlinline"
)

const (
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure"
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// APIKey returns the stored key for provider, or "" when none is stored.
func (s *Store) APIKey(ctx context.Context, provider string) (string, error) {
	if err := checkProvider(provider); err != nil {
		return "", err
	}
	row := s.sql.QueryRow(ctx, sqlinline.QSelectModelAPIKey, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetAPIKey stores or replaces the key for provider.
func (s *Store) SetAPIKey(ctx context.Context, provider, key string, props map[string]any) error {
	if err := checkProvider(provider); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is required")
	}
	return s.upsert(ctx, provider, key, props)
}

// Resolve prefers envKey and falls back to the stored key.
func (s *Store) Resolve(ctx context.Context, provider, envKey string) (string, error) {
	if key := strings.TrimSpace(envKey); key != "" {
		return key, nil
	}
	if s == nil || s.sql == nil {
		return "", nil
	}
	return s.APIKey(ctx, provider)
}

func checkProvider(provider string) error {
	switch provider {
	case ProviderOpenAI, ProviderAzureOpenAI:
		return nil
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertModelAPIKey, provider, token, raw)
	return err
}
