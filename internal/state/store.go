// Package state persists the client-side JSON documents (cart, order history,
// delivered audit log) under fixed keys. Every backend offers the same
// whole-document semantics: a Save replaces the previous value and the last
// writer wins.
package state

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "digimenu/internal/errors"
)

const (
	KeyCart           = "cart"
	KeyOrderHistory   = "orderHistory"
	KeyDeliveredAudit = "deliveredAudit"
)

type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

func notFound(key string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("state key %q not found", key))
}

// LoadJSON decodes the document under key into v. It reports false, with v
// untouched, when nothing has been stored yet.
func LoadJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, err := s.Load(ctx, key)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return false, nil
		}
		return false, fmt.Errorf("loading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.Save(ctx, key, data); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}
