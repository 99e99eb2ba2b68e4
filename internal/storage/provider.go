// Package storage composes content stores. The primary store is authoritative;
// mirrors receive best-effort copies of every write.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Store persists artifact bytes at a destination path.
type Store interface {
	Put(ctx context.Context, path string, content []byte) error
}

// Tee writes to a primary store and then to each mirror.
type Tee struct {
	primary Store
	mirrors []Store
	logger  *zap.Logger
}

// NewTee builds a Tee. Nil mirrors are skipped.
func NewTee(primary Store, logger *zap.Logger, mirrors ...Store) (*Tee, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tee{primary: primary, logger: logger}
	for _, m := range mirrors {
		if m != nil {
			t.mirrors = append(t.mirrors, m)
		}
	}
	return t, nil
}

// Put writes to the primary store. Mirror failures are logged and never
// returned, so a run continues when a remote bucket is unavailable.
func (t *Tee) Put(ctx context.Context, path string, content []byte) error {
	if err := t.primary.Put(ctx, path, content); err != nil {
		return err //nolint:wrapcheck
	}
	for _, m := range t.mirrors {
		if err := m.Put(ctx, path, content); err != nil {
			t.logger.Warn("mirror write failed", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}
