// Package snapshot persists state documents such as the permission graph and
// the credential store between runs.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/jsonc"
)

// ErrNotFound is returned by Load when no document was saved under the name.
var ErrNotFound = errors.New("snapshot: not found")

// Store loads and saves named JSON documents.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// Decode unmarshals a document into v. Comments and trailing commas are
// accepted so that operators can annotate snapshot files by hand.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
		return fmt.Errorf("snapshot: decode: %w", err)
	}
	return nil
}

// Encode renders v as indented JSON.
func Encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return append(data, '\n'), nil
}

// LoadInto reads name from store and decodes it into v. A missing document
// leaves v untouched and reports false.
func LoadInto(ctx context.Context, store Store, name string, v any) (bool, error) {
	data, err := store.Load(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := Decode(data, v); err != nil {
		return false, fmt.Errorf("snapshot %s: %w", name, err)
	}
	return true, nil
}

// SaveFrom encodes v and saves it under name.
func SaveFrom(ctx context.Context, store Store, name string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	return store.Save(ctx, name, data)
}
