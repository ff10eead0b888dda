package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/observability"
)

// ResponsePrefix namespaces cached model responses.
const ResponsePrefix = "response"

// CachedModel answers repeated images from the cache instead of calling
// the model again. Cache failures are logged and never fail a request.
type CachedModel struct {
	next   domain.VisionModel
	cache  Client
	model  string
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedModel wraps next. model is part of the key so switching models
// does not serve stale answers.
func NewCachedModel(next domain.VisionModel, c Client, model string, ttl time.Duration, logger *observability.Logger) *CachedModel {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachedModel{
		next:   next,
		cache:  c,
		model:  model,
		ttl:    ttl,
		logger: logger.WithOperation("response_cache"),
	}
}

// ResponseKey derives the cache key for an image and model.
func ResponseKey(model string, image domain.Image) string {
	sum := sha256.Sum256(image.Data)
	return CacheKey(ResponsePrefix, model, hex.EncodeToString(sum[:]))
}

// Extract implements domain.VisionModel.
func (m *CachedModel) Extract(ctx context.Context, image domain.Image) (string, error) {
	key := ResponseKey(m.model, image)

	cached, err := m.cache.Get(ctx, key)
	switch {
	case err == nil:
		m.logger.Debug().Str("image", image.Name).Msg("Cache hit")
		return string(cached), nil
	case !errors.Is(err, ErrCacheMiss):
		m.logger.Warn().Err(err).Msg("Cache read failed")
	}

	answer, err := m.next.Extract(ctx, image)
	if err != nil {
		return "", err
	}

	if answer != "" {
		if err := m.cache.Set(ctx, key, []byte(answer), m.ttl); err != nil {
			m.logger.Warn().Err(err).Msg("Cache write failed")
		}
	}
	return answer, nil
}

// Purge drops every cached response.
func Purge(ctx context.Context, c Client) error {
	return c.DeleteByPrefix(ctx, ResponsePrefix+":")
}
