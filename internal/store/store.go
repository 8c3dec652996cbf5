// Package store is a small key/value state store for JSON documents.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a key holds no value.
	ErrNotFound = errors.New("store: key not found")
	// ErrConflict is returned when an update keeps losing to concurrent writers.
	ErrConflict = errors.New("store: too many concurrent updates")
)

// UpdateFunc receives the current value (nil when absent) and returns the next one.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store persists raw values by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Init stores value only when key is absent and reports whether it did.
	Init(ctx context.Context, key string, value []byte) (bool, error)
	// Update applies fn as an atomic read-modify-write.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// Load decodes the JSON value stored at key.
func Load[T any](ctx context.Context, s Store, key string) (T, error) {
	var out T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// Save encodes value as JSON and stores it at key.
func Save[T any](ctx context.Context, s Store, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// Ensure initialises key with initial on first access and returns the stored value.
func Ensure[T any](ctx context.Context, s Store, key string, initial T) (T, error) {
	raw, err := json.Marshal(initial)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := s.Init(ctx, key, raw); err != nil {
		var zero T
		return zero, err
	}
	return Load[T](ctx, s, key)
}

// Mutate applies fn to the decoded value at key, starting from initial
// when the key is absent, and stores the result atomically.
func Mutate[T any](ctx context.Context, s Store, key string, initial T, fn func(*T) error) (T, error) {
	var result T
	err := s.Update(ctx, key, func(current []byte, exists bool) ([]byte, error) {
		value := initial
		if exists {
			var decoded T
			if err := json.Unmarshal(current, &decoded); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			value = decoded
		}
		if err := fn(&value); err != nil {
			return nil, err
		}
		result = value
		return json.Marshal(value)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
