package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	tmplerrors "github.com/kart-io/tmplhub/pkg/errors"
	"github.com/kart-io/tmplhub/pkg/logger"
)

// ReadThroughTTL bounds how long a copied-up entry lives in upper layers.
const ReadThroughTTL = time.Minute

// MultiLayerBackend reads through an ordered list of backends and writes to
// all of them. A hit in a lower layer is copied into the layers above it.
type MultiLayerBackend struct {
	layers []Backend
	names  []string
	logger logger.Logger
	// shared layers are owned by a Manager and not closed here.
	shared bool
}

// NewMultiLayerBackend creates a backend over layers, fastest first. The
// returned backend owns the layers and closes them.
func NewMultiLayerBackend(layers []Backend, log logger.Logger) *MultiLayerBackend {
	names := make([]string, len(layers))
	for i := range layers {
		names[i] = fmt.Sprintf("L%d", i+1)
	}
	return &MultiLayerBackend{layers: layers, names: names, logger: logger.OrDiscard(log)}
}

// Get returns the first hit, populating the layers above it.
func (c *MultiLayerBackend) Get(ctx context.Context, namespace, key string) (string, error) {
	for i, layer := range c.layers {
		content, err := layer.Get(ctx, namespace, key)
		if err != nil {
			if !errors.Is(err, ErrMiss) {
				c.logger.Warn("Cache layer read failed", "layer", c.names[i], "error", err)
			}
			continue
		}

		c.logger.Debug("Multi-layer cache hit", "namespace", namespace, "key", key, "layer", c.names[i])
		for j := 0; j < i; j++ {
			if setErr := c.layers[j].Set(ctx, namespace, key, content, ReadThroughTTL); setErr != nil {
				c.logger.Warn("Failed to populate cache layer", "layer", c.names[j], "error", setErr)
			}
		}
		return content, nil
	}
	return "", ErrMiss
}

// Set writes to every layer and returns the first failure.
func (c *MultiLayerBackend) Set(ctx context.Context, namespace, key, content string, ttl time.Duration) error {
	var errs tmplerrors.MultiError
	for i, layer := range c.layers {
		if err := layer.Set(ctx, namespace, key, content, ttl); err != nil {
			errs.Add(fmt.Errorf("%s cache set failed: %w", c.names[i], err))
		}
	}

	c.logger.Debug("Multi-layer cache set", "namespace", namespace, "key", key, "errors", len(errs.Errors))

	return errs.ErrorOrNil()
}

// Delete removes key from every layer.
func (c *MultiLayerBackend) Delete(ctx context.Context, namespace, key string) error {
	var errs tmplerrors.MultiError
	for _, layer := range c.layers {
		errs.Add(layer.Delete(ctx, namespace, key))
	}
	return errs.ErrorOrNil()
}

// Clear clears namespace in every layer.
func (c *MultiLayerBackend) Clear(ctx context.Context, namespace string) error {
	var errs tmplerrors.MultiError
	for _, layer := range c.layers {
		errs.Add(layer.Clear(ctx, namespace))
	}
	return errs.ErrorOrNil()
}

// Close closes the layers unless a Manager owns them.
func (c *MultiLayerBackend) Close() error {
	if c.shared {
		return nil
	}
	var errs tmplerrors.MultiError
	for _, layer := range c.layers {
		errs.Add(layer.Close())
	}
	return errs.ErrorOrNil()
}
